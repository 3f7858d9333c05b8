package pagestream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/internal/safe"
	"github.com/autom8ter/pagestream/model"
	"github.com/autom8ter/pagestream/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/segmentio/ksuid"
	"github.com/xeipuuv/gojsonschema"
)

// State is a snapshot of the engine's observable state
type State struct {
	// Data is the filtered, accumulated record sequence
	Data []Record `json:"data"`
	// RawPage is the most recently applied page, unfiltered
	RawPage []Record `json:"rawPage"`
	// Loading is true while a fetch is in flight
	Loading bool `json:"loading"`
	// Done is true once a fetch returned an empty page
	Done bool `json:"done"`
	// Err is the error of the most recent failed fetch
	Err error `json:"-"`
	// Error is the message of Err
	Error string `json:"error,omitempty"`
	// Generation increments on every Init and Refresh
	Generation uint64 `json:"generation"`
}

type engineState struct {
	rawPage []Record
	data    []Record
	loading bool
	done    bool
	err     error
}

// Engine is a paginated, search-filtered view over one owner-scoped collection of a store.
// Pages are fetched with Init, Refresh and LoadMore and folded into an accumulated record
// sequence that is published to subscribers on every state change.
type Engine struct {
	store        store.Store
	owner        string
	logger       Logger
	searchFields []string
	dateFields   []string
	fetchTimeout time.Duration
	registerer   prometheus.Registerer
	rawSchema    []byte
	schema       *gojsonschema.Schema
	metrics      *metrics

	mu         sync.Mutex
	query      *QueryConfig
	generation uint64
	state      engineState
	seq        uint64

	notifyMu    sync.Mutex
	delivered   uint64
	subscribers *safe.Map[func(State)]
}

// New returns an engine over the store scoped to the owner key. An empty owner is a configuration error
func New(s store.Store, owner string, opts ...Opt) (*Engine, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, errors.New(errors.Validation, "owner key is required")
	}
	if s == nil {
		return nil, errors.New(errors.Validation, "store is required")
	}
	e := &Engine{
		store:        s,
		owner:        owner,
		logger:       NopLogger(),
		fetchTimeout: DefaultFetchTimeout,
		subscribers:  safe.NewMap[func(State)](nil),
	}
	for _, o := range opts {
		o(e)
	}
	if e.fetchTimeout <= 0 {
		return nil, errors.New(errors.Validation, "fetch timeout must be greater than zero")
	}
	if len(e.rawSchema) > 0 {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(e.rawSchema))
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "invalid document schema")
		}
		e.schema = schema
	}
	m, err := newMetrics(e.registerer)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to register metrics")
	}
	e.metrics = m
	return e, nil
}

// Owner returns the owner key the engine is scoped to
func (e *Engine) Owner() string {
	return e.owner
}

// Query returns the current query config. false is returned before the first Init
func (e *Engine) Query() (QueryConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.query == nil {
		return QueryConfig{}, false
	}
	return *e.query, true
}

// Init replaces the query config with the options merged over the defaults, resets all state and
// fetches the first page. An invalid config is rejected and leaves the engine untouched
func (e *Engine) Init(ctx context.Context, path, sortField string, opts ...QueryOpt) error {
	query, err := NewQueryConfig(path, sortField, opts...)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.query = &query
	e.logger.Debug(ctx, "initialized query", map[string]interface{}{
		"owner": e.owner,
		"query": query,
	})
	return e.resetAndFetch(ctx)
}

// Refresh discards all state and fetches the first page. A fetch that is still in flight when
// Refresh is called is discarded when it completes
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.query == nil {
		e.mu.Unlock()
		return errNotInitialized()
	}
	return e.resetAndFetch(ctx)
}

// LoadMore fetches the page after the current boundary record. It is a no-op while a fetch is
// in flight or after the collection is exhausted
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	if e.query == nil {
		e.mu.Unlock()
		return errNotInitialized()
	}
	return e.fetchLocked(ctx, true)
}

// SetSearchValue changes the search value applied to pages fetched from now on. Records that are
// already accumulated are not filtered again; call Refresh to filter from scratch
func (e *Engine) SetSearchValue(searchValue string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.query == nil {
		return errNotInitialized()
	}
	query := *e.query
	query.SearchValue = searchValue
	e.query = &query
	return nil
}

// State returns a snapshot of the engine state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Data returns the filtered, accumulated records
func (e *Engine) Data() []Record {
	return e.State().Data
}

// Loading returns true while a fetch is in flight
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.loading
}

// Done returns true once the collection is exhausted
func (e *Engine) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.done
}

// Subscribe calls fn with the current state and then after every state change. Notifications
// are delivered one at a time and never go back in time; a change superseded before it could be
// delivered is skipped. fn must not block or call Init, Refresh, LoadMore or Subscribe synchronously.
// The returned function unsubscribes
func (e *Engine) Subscribe(fn func(State)) func() {
	id := ksuid.New().String()
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	e.mu.Lock()
	snapshot := e.snapshotLocked()
	e.delivered = e.seq
	e.mu.Unlock()
	e.subscribers.Set(id, fn)
	fn(snapshot)
	return func() {
		e.subscribers.Del(id)
	}
}

// resetAndFetch starts a new generation with empty state and fetches the first page. e.mu must be held
func (e *Engine) resetAndFetch(ctx context.Context) error {
	e.generation++
	e.state = engineState{}
	return e.fetchLocked(ctx, false)
}

// fetchLocked issues one range query and applies its result. e.mu must be held; it is released
// before the store is queried
func (e *Engine) fetchLocked(ctx context.Context, more bool) error {
	if e.state.loading || e.state.done {
		e.mu.Unlock()
		return nil
	}
	query := *e.query
	rng := store.Range{
		OrderBy:   query.SortField,
		Direction: query.Direction(),
		Limit:     query.PageSize,
	}
	if more {
		rng.After = e.boundaryCursor(query)
	}
	var (
		generation = e.generation
		collection = store.OwnerPath(e.owner, query.Path)
		tags       = map[string]interface{}{
			"collection": collection,
			"generation": generation,
			"more":       more,
		}
	)
	e.state.loading = true
	e.commit()

	e.logger.Debug(ctx, "fetching page", tags)
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	start := time.Now()
	snapshots, err := e.rangeQuery(fetchCtx, collection, rng)
	e.metrics.duration.Observe(time.Since(start).Seconds())
	tags["duration"] = time.Since(start).String()

	e.mu.Lock()
	if generation != e.generation {
		e.mu.Unlock()
		e.metrics.fetches.WithLabelValues(outcomeStale).Inc()
		e.logger.Warn(ctx, "discarding page from a superseded generation", tags)
		return nil
	}
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrap(err, errors.Timeout, "fetch timed out after %s", e.fetchTimeout)
		} else {
			err = wrapStoreErr(err, "failed to fetch page")
		}
		e.state.loading = false
		e.state.err = err
		e.commit()
		e.metrics.fetches.WithLabelValues(outcomeError).Inc()
		e.logger.Error(ctx, "failed to fetch page", err, tags)
		return err
	}
	page := mapPage(snapshots, e.dateFields, query.Prepend)
	e.state.rawPage = page
	e.state.data = Fold(e.state.data, FilterPage(page, *e.query, e.searchFields), query.Prepend)
	e.state.loading = false
	e.state.err = nil
	if len(page) == 0 {
		e.state.done = true
	}
	e.commit()

	tags["count"] = len(page)
	e.metrics.records.Add(float64(len(page)))
	if len(page) == 0 {
		e.metrics.fetches.WithLabelValues(outcomeEmpty).Inc()
		e.logger.Debug(ctx, "collection exhausted", tags)
	} else {
		e.metrics.fetches.WithLabelValues(outcomeOK).Inc()
		e.logger.Debug(ctx, "applied page", tags)
	}
	return nil
}

type rangeResult struct {
	snapshots []store.Snapshot
	err       error
}

// rangeQuery runs the range query and returns the context error as soon as ctx is done,
// whether or not the store honors ctx. A store call that outlives ctx runs to completion in
// the background and its result is dropped
func (e *Engine) rangeQuery(ctx context.Context, collection string, rng store.Range) ([]store.Snapshot, error) {
	results := make(chan rangeResult, 1)
	go func() {
		snapshots, err := e.store.RangeQuery(ctx, collection, rng)
		results <- rangeResult{snapshots: snapshots, err: err}
	}()
	select {
	case r := <-results:
		return r.snapshots, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// boundaryCursor returns the cursor the next page continues after: the first record of the current
// page when prepending, the last otherwise. e.mu must be held
func (e *Engine) boundaryCursor(query QueryConfig) store.Cursor {
	page := e.state.rawPage
	if len(page) == 0 {
		return nil
	}
	if query.Prepend {
		return page[0].Cursor
	}
	return page[len(page)-1].Cursor
}

// commit releases e.mu and publishes the state it guarded to subscribers
func (e *Engine) commit() {
	e.seq++
	seq := e.seq
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if seq <= e.delivered {
		return
	}
	e.delivered = seq
	for _, fn := range e.subscribers.Values() {
		fn(snapshot)
	}
}

func (e *Engine) snapshotLocked() State {
	s := State{
		Data:       append([]Record{}, e.state.data...),
		RawPage:    append([]Record{}, e.state.rawPage...),
		Loading:    e.state.loading,
		Done:       e.state.done,
		Err:        e.state.err,
		Generation: e.generation,
	}
	if s.Err != nil {
		s.Error = s.Err.Error()
	}
	return s
}

// Get reads the document with the given id from the query's collection
func (e *Engine) Get(ctx context.Context, id string) (Record, error) {
	collection, err := e.collection()
	if err != nil {
		return Record{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	ch, err := e.store.Watch(ctx, collection, id)
	if err != nil {
		return Record{}, wrapStoreErr(err, "failed to get document: %s", id)
	}
	select {
	case snapshot, ok := <-ch:
		if !ok {
			return Record{}, errors.New(errors.Internal, "document stream closed: %s", id)
		}
		if !snapshot.Exists {
			return Record{}, errors.New(errors.NotFound, "document not found: %s", id)
		}
		return MapSnapshot(snapshot, e.dateFields), nil
	case <-ctx.Done():
		return Record{}, errors.Wrap(ctx.Err(), errors.Timeout, "timed out getting document: %s", id)
	}
}

// Watch streams the document with the given id until the context is cancelled. The current
// document is emitted first. Deleted or missing documents are emitted as a Record with nil Fields
func (e *Engine) Watch(ctx context.Context, id string) (<-chan Record, error) {
	collection, err := e.collection()
	if err != nil {
		return nil, err
	}
	ch, err := e.store.Watch(ctx, collection, id)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to watch document: %s", id)
	}
	records := make(chan Record)
	go func() {
		defer close(records)
		for snapshot := range ch {
			record := Record{ID: snapshot.ID}
			if snapshot.Exists {
				record = MapSnapshot(snapshot, e.dateFields)
			}
			select {
			case records <- record:
			case <-ctx.Done():
				return
			}
		}
	}()
	return records, nil
}

// Create adds the value to the query's collection and returns its generated id
func (e *Engine) Create(ctx context.Context, value any) (string, error) {
	collection, err := e.collection()
	if err != nil {
		return "", err
	}
	doc, err := e.document(value)
	if err != nil {
		return "", err
	}
	id, err := e.store.AddDoc(ctx, collection, doc)
	if err != nil {
		return "", wrapStoreErr(err, "failed to create document")
	}
	e.logger.Debug(ctx, "created document", map[string]interface{}{
		"collection": collection,
		"id":         id,
	})
	return id, nil
}

// CreateAll adds the values to the query's collection in one batch and returns their generated ids
// in input order. Nothing is written if any value fails validation
func (e *Engine) CreateAll(ctx context.Context, values []any) ([]string, error) {
	collection, err := e.collection()
	if err != nil {
		return nil, err
	}
	docs := make([]*model.Document, len(values))
	for i, value := range values {
		if docs[i], err = e.document(value); err != nil {
			return nil, errors.Wrap(err, 0, "value %v", i)
		}
	}
	ids, err := e.store.AddDocs(ctx, collection, docs)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to create documents")
	}
	e.logger.Debug(ctx, "created documents", map[string]interface{}{
		"collection": collection,
		"count":      len(ids),
	})
	return ids, nil
}

// Update replaces the document with the given id
func (e *Engine) Update(ctx context.Context, id string, value any) error {
	collection, err := e.collection()
	if err != nil {
		return err
	}
	doc, err := e.document(value)
	if err != nil {
		return err
	}
	if err := e.store.SetDoc(ctx, collection, id, doc); err != nil {
		return wrapStoreErr(err, "failed to update document: %s", id)
	}
	e.logger.Debug(ctx, "updated document", map[string]interface{}{
		"collection": collection,
		"id":         id,
	})
	return nil
}

// Delete deletes the document with the given id
func (e *Engine) Delete(ctx context.Context, id string) error {
	collection, err := e.collection()
	if err != nil {
		return err
	}
	if err := e.store.DeleteDoc(ctx, collection, id); err != nil {
		return wrapStoreErr(err, "failed to delete document: %s", id)
	}
	e.logger.Debug(ctx, "deleted document", map[string]interface{}{
		"collection": collection,
		"id":         id,
	})
	return nil
}

func (e *Engine) collection() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.query == nil {
		return "", errNotInitialized()
	}
	return store.OwnerPath(e.owner, e.query.Path), nil
}

func (e *Engine) document(value any) (*model.Document, error) {
	doc, err := model.NewDocumentFrom(value)
	if err != nil {
		return nil, err
	}
	if e.schema == nil {
		return doc, nil
	}
	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(doc.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to validate document")
	}
	if !result.Valid() {
		reasons := lo.Map(result.Errors(), func(r gojsonschema.ResultError, _ int) string {
			return r.String()
		})
		return nil, errors.New(errors.Validation, "invalid document: %s", strings.Join(reasons, "; "))
	}
	return doc, nil
}

func errNotInitialized() error {
	return errors.New(errors.Validation, "engine is not initialized: call Init first")
}

// wrapStoreErr keeps the code of coded store errors and marks everything else internal
func wrapStoreErr(err error, msg string, args ...any) error {
	if _, ok := err.(*errors.Error); ok {
		return errors.Wrap(err, 0, msg, args...)
	}
	return errors.Wrap(err, errors.Internal, msg, args...)
}
