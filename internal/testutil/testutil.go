package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autom8ter/pagestream/internal/fake"
	"github.com/autom8ter/pagestream/kv/badger"
	"github.com/autom8ter/pagestream/model"
	"github.com/autom8ter/pagestream/store"
	"github.com/autom8ter/pagestream/store/kvstore"
)

// NewStore returns an in-memory document store that is closed when the test ends
func NewStore(t *testing.T) *kvstore.Store {
	db, err := badger.New("")
	if err != nil {
		t.Fatal(err)
	}
	s := kvstore.New(db)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewTripDoc returns a fake trip starting the given number of days after fake.Epoch
func NewTripDoc(day int) *model.Document {
	doc, err := model.NewDocumentFrom(fake.Trip(day))
	if err != nil {
		panic(err)
	}
	return doc
}

// PendingQuery is a range query held by a ControlledStore
type PendingQuery struct {
	Range   store.Range
	release chan struct{}
}

// Release lets the held query run against the wrapped store
func (p *PendingQuery) Release() {
	close(p.release)
}

// ControlledStore wraps a store to count, hold or fail range queries
type ControlledStore struct {
	store.Store
	mu      sync.Mutex
	queries int
	hold    bool
	err     error
	pending chan *PendingQuery
}

// NewControlledStore wraps the store
func NewControlledStore(s store.Store) *ControlledStore {
	return &ControlledStore{
		Store:   s,
		pending: make(chan *PendingQuery, 100),
	}
}

// Hold makes subsequent range queries block until released with Next(t).Release()
func (c *ControlledStore) Hold(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = hold
}

// Fail makes subsequent range queries return the error. nil restores normal behavior
func (c *ControlledStore) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Queries returns the number of range queries issued
func (c *ControlledStore) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

// Next returns the next held query, failing the test if none arrives
func (c *ControlledStore) Next(t *testing.T) *PendingQuery {
	select {
	case p := <-c.pending:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a range query")
		return nil
	}
}

func (c *ControlledStore) RangeQuery(ctx context.Context, collection string, rng store.Range) ([]store.Snapshot, error) {
	c.mu.Lock()
	c.queries++
	hold, err := c.hold, c.err
	c.mu.Unlock()
	if hold {
		p := &PendingQuery{Range: rng, release: make(chan struct{})}
		c.pending <- p
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return c.Store.RangeQuery(ctx, collection, rng)
}
