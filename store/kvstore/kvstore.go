// Package kvstore is a document store over an ordered key value database
package kvstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/internal/safe"
	"github.com/autom8ter/pagestream/kv"
	"github.com/autom8ter/pagestream/kv/registry"
	"github.com/autom8ter/pagestream/model"
	"github.com/autom8ter/pagestream/store"
	"github.com/segmentio/ksuid"
)

// Store is a store.Store backed by a kv.DB. Documents are stored as json values keyed by collection and id
type Store struct {
	db       kv.DB
	watchers *safe.Map[*watcher]
}

// New returns a document store over the key value database
func New(db kv.DB) *Store {
	return &Store{
		db:       db,
		watchers: safe.NewMap[*watcher](nil),
	}
}

// Open opens a registered key value provider and returns a document store over it
func Open(provider string, params map[string]interface{}) (*Store, error) {
	db, err := registry.Open(provider, params)
	if err != nil {
		return nil, errors.Wrap(err, 0, "failed to open kv provider: %s", provider)
	}
	return New(db), nil
}

type entry struct {
	id  string
	doc *model.Document
}

// RangeQuery scans the collection, orders it by the range field and returns up to limit documents
// after the range cursor. Documents that do not have the order by field are excluded
func (s *Store) RangeQuery(ctx context.Context, collection string, rng store.Range) ([]store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rng.Limit <= 0 {
		return nil, errors.New(errors.Validation, "range limit must be greater than zero")
	}
	if rng.OrderBy == "" {
		return nil, errors.New(errors.Validation, "range order by field is required")
	}
	var entries []entry
	prefix := collectionPrefix(collection)
	if err := s.db.Tx(false, func(tx kv.Tx) error {
		iter := tx.NewIterator(kv.IterOpts{Prefix: prefix})
		defer iter.Close()
		for ; iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			bits, err := item.Value()
			if err != nil {
				return err
			}
			doc, err := model.NewDocumentFromBytes(bits)
			if err != nil {
				return err
			}
			if !doc.Exists(rng.OrderBy) {
				continue
			}
			entries = append(entries, entry{
				id:  string(item.Key()[len(prefix):]),
				doc: doc,
			})
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, 0, "failed to scan collection: %s", collection)
	}
	desc := rng.Direction == store.Desc
	less := func(a, b position) bool {
		c := comparePositions(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	}
	sort.Slice(entries, func(i, j int) bool {
		return less(entryPosition(entries[i], rng.OrderBy), entryPosition(entries[j], rng.OrderBy))
	})
	start := 0
	if len(rng.After) > 0 {
		after, err := decodeCursor(rng.After)
		if err != nil {
			return nil, err
		}
		start = sort.Search(len(entries), func(i int) bool {
			return less(after, entryPosition(entries[i], rng.OrderBy))
		})
	}
	var snapshots []store.Snapshot
	for _, e := range entries[start:] {
		if len(snapshots) >= rng.Limit {
			break
		}
		cursor, err := encodeCursor(entryPosition(e, rng.OrderBy))
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, store.Snapshot{
			ID:     e.id,
			Exists: true,
			Data:   e.doc,
			Cursor: cursor,
		})
	}
	return snapshots, nil
}

// watcher queues the changes of one document for a single Watch call. Writers never block on it
type watcher struct {
	mu      sync.Mutex
	channel string
	pending []store.Snapshot
	signal  chan struct{}
}

func (w *watcher) send(snapshot store.Snapshot) {
	w.mu.Lock()
	w.pending = append(w.pending, snapshot)
	w.mu.Unlock()
	w.notify()
}

func (w *watcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// forward delivers queued snapshots in order until ctx is done, then closes updates
func (w *watcher) forward(ctx context.Context, updates chan<- store.Snapshot) {
	defer close(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signal:
		}
		w.mu.Lock()
		pending := w.pending
		w.pending = nil
		w.mu.Unlock()
		for _, snapshot := range pending {
			select {
			case updates <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Watch emits the current state of the document and then every change made to it.
// The watcher is registered before the current state is read so no change is missed
func (s *Store) Watch(ctx context.Context, collection, id string) (<-chan store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := ksuid.New().String()
	w := &watcher{
		channel: channel(collection, id),
		signal:  make(chan struct{}, 1),
	}
	w.mu.Lock()
	s.watchers.Set(key, w)
	current, err := s.get(ctx, collection, id)
	if err != nil {
		w.mu.Unlock()
		s.watchers.Del(key)
		return nil, err
	}
	w.pending = append(w.pending, current)
	w.mu.Unlock()
	w.notify()

	updates := make(chan store.Snapshot, 1)
	go func() {
		defer s.watchers.Del(key)
		w.forward(ctx, updates)
	}()
	return updates, nil
}

func (s *Store) publish(snapshot store.Snapshot, collection string) {
	name := channel(collection, snapshot.ID)
	for _, w := range s.watchers.Values() {
		if w.channel == name {
			w.send(snapshot)
		}
	}
}

// SetDoc creates or replaces the document
func (s *Store) SetDoc(ctx context.Context, collection, id string, doc *model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateDoc(id, doc); err != nil {
		return err
	}
	if err := s.db.Tx(true, func(tx kv.Tx) error {
		return tx.Set(documentKey(collection, id), doc.Bytes())
	}); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to set document: %s/%s", collection, id)
	}
	s.publish(store.Snapshot{
		ID:     id,
		Exists: true,
		Data:   doc.Clone(),
	}, collection)
	return nil
}

// AddDoc creates the document under a generated ksuid
func (s *Store) AddDoc(ctx context.Context, collection string, doc *model.Document) (string, error) {
	id := ksuid.New().String()
	if err := s.SetDoc(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// AddDocs writes the documents in a single write batch under generated ksuids. Nothing is
// written if any document is invalid
func (s *Store) AddDocs(ctx context.Context, collection string, docs []*model.Document) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = ksuid.New().String()
		if err := validateDoc(ids[i], doc); err != nil {
			return nil, errors.Wrap(err, 0, "document %v", i)
		}
	}
	batch := s.db.NewBatch()
	for i, doc := range docs {
		if err := batch.Set(documentKey(collection, ids[i]), doc.Bytes()); err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to batch document: %s/%s", collection, ids[i])
		}
	}
	if err := batch.Flush(); err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to flush batch: %s", collection)
	}
	for i, doc := range docs {
		s.publish(store.Snapshot{
			ID:     ids[i],
			Exists: true,
			Data:   doc.Clone(),
		}, collection)
	}
	return ids, nil
}

// DeleteDoc deletes the document. Deleting a missing document is not an error
func (s *Store) DeleteDoc(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Tx(true, func(tx kv.Tx) error {
		return tx.Delete(documentKey(collection, id))
	}); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to delete document: %s/%s", collection, id)
	}
	s.publish(store.Snapshot{
		ID:     id,
		Exists: false,
	}, collection)
	return nil
}

// Close closes the underlying key value database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, collection, id string) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Snapshot{}, err
	}
	var snapshot = store.Snapshot{ID: id}
	if err := s.db.Tx(false, func(tx kv.Tx) error {
		bits, err := tx.Get(documentKey(collection, id))
		if err != nil {
			return err
		}
		if bits == nil {
			return nil
		}
		doc, err := model.NewDocumentFromBytes(bits)
		if err != nil {
			return err
		}
		snapshot.Exists = true
		snapshot.Data = doc
		return nil
	}); err != nil {
		return store.Snapshot{}, errors.Wrap(err, errors.Internal, "failed to get document: %s/%s", collection, id)
	}
	return snapshot, nil
}

func collectionPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("doc\x00%s\x00", collection))
}

func documentKey(collection, id string) []byte {
	return append(collectionPrefix(collection), []byte(id)...)
}

func channel(collection, id string) string {
	return fmt.Sprintf("%s/%s", collection, id)
}

func validateDoc(id string, doc *model.Document) error {
	if id == "" {
		return errors.New(errors.Validation, "document id is required")
	}
	if doc == nil || !doc.Valid() {
		return errors.New(errors.Validation, "invalid document")
	}
	return nil
}
