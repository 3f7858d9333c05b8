package kv

// DB is an ordered key value database
type DB interface {
	// Tx executes the function within a transaction. Read-only transactions are opened when isUpdate is false
	Tx(isUpdate bool, fn func(Tx) error) error
	// NewBatch returns a write batch for bulk loading
	NewBatch() Batch
	// Close closes the database
	Close() error
}

// IterOpts configures an iterator
type IterOpts struct {
	Prefix []byte `json:"prefix"`
}

// Tx is a database transaction
type Tx interface {
	// Get returns the value for the key. A missing key returns a nil value and no error
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(opts IterOpts) Iterator
}

// Iterator iterates over keys in lexicographic order
type Iterator interface {
	Close()
	Valid() bool
	Item() Item
	Next()
}

// Item is a key value pair
type Item interface {
	Key() []byte
	Value() ([]byte, error)
}

// Batch is a write-only batch of operations
type Batch interface {
	Flush() error
	Set(key, value []byte) error
	Delete(key []byte) error
}
