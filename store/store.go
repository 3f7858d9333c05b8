// Package store defines the document store contract consumed by the paginated query engine.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/autom8ter/pagestream/model"
)

// Direction is the sort direction of a range query
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Cursor is an opaque, store-owned position in a sorted result set
type Cursor []byte

// Range is an ordered, bounded query against a collection
type Range struct {
	// OrderBy is the field the collection is sorted by
	OrderBy string `json:"orderBy" validate:"required"`
	// Direction is the sort direction
	Direction Direction `json:"direction" validate:"required,oneof='asc' 'desc'"`
	// Limit is the maximum number of snapshots returned
	Limit int `json:"limit" validate:"gt=0"`
	// After continues the query strictly after the cursor. nil starts at the beginning of the collection
	After Cursor `json:"after,omitempty"`
}

// Snapshot is a point in time view of one document
type Snapshot struct {
	ID     string          `json:"id"`
	Exists bool            `json:"exists"`
	Data   *model.Document `json:"data,omitempty"`
	Cursor Cursor          `json:"-"`
}

// Store is a document store supporting ordered range queries, cursor continuation,
// document crud and change notifications
type Store interface {
	// RangeQuery returns one snapshot of the documents in the range
	RangeQuery(ctx context.Context, collection string, rng Range) ([]Snapshot, error)
	// Watch emits the current state of the document followed by every change to it until the context is cancelled
	Watch(ctx context.Context, collection, id string) (<-chan Snapshot, error)
	// SetDoc creates or replaces the document
	SetDoc(ctx context.Context, collection, id string, doc *model.Document) error
	// AddDoc creates a document with a generated id
	AddDoc(ctx context.Context, collection string, doc *model.Document) (string, error)
	// AddDocs creates the documents in one batch with generated ids, returned in input order
	AddDocs(ctx context.Context, collection string, docs []*model.Document) ([]string, error)
	// DeleteDoc deletes the document
	DeleteDoc(ctx context.Context, collection, id string) error
	// Close closes the store
	Close() error
}

// OwnerPath returns the owner scoped collection path
func OwnerPath(owner, path string) string {
	return fmt.Sprintf("owner/%s/%s", owner, strings.Trim(path, "/"))
}
