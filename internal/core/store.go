package core

import "context"

// ConflictPolicy decides what an insert does when the identifier already exists.
type ConflictPolicy string

const (
	// ConflictError rejects the insert with ErrDuplicateKey.
	ConflictError ConflictPolicy = "error"

	// ConflictUpdate merges the new fields into the existing record.
	ConflictUpdate ConflictPolicy = "update"
)

// Change is the before/after image of one written record.
type Change struct {
	Old Record
	New Record
}

// WriteResult is the acknowledgement of a write.
type WriteResult struct {
	Inserted  int64
	Replaced  int64
	Unchanged int64
	Deleted   int64
	Errors    int64

	// FirstError is the first error reported by a partially applied bulk write.
	FirstError string

	// GeneratedKeys lists identifiers assigned by the store.
	GeneratedKeys []any

	// Changes holds the written records when the store can report them.
	Changes []Change
}

// QueryExecutor runs plans and writes against collections.
type QueryExecutor interface {
	// Find executes the plan and returns the matching records in plan order.
	Find(ctx context.Context, plan *Plan) ([]Record, error)

	// Get returns the record with the given identifier, or nil when absent.
	Get(ctx context.Context, collection string, id any) (Record, error)

	// Insert writes a record. A record without an id gets one assigned.
	Insert(ctx context.Context, collection string, record Record, conflict ConflictPolicy) (*WriteResult, error)

	// Update merges fields into every record matching pred (nil matches all).
	Update(ctx context.Context, collection string, pred Expr, fields Record) (*WriteResult, error)

	// Delete removes every record matching pred (nil matches all).
	Delete(ctx context.Context, collection string, pred Expr) (*WriteResult, error)

	// Count returns the number of records matching pred (nil matches all).
	Count(ctx context.Context, collection string, pred Expr) (int64, error)
}

// SchemaManager lists and creates collections and their secondary indexes.
type SchemaManager interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	ListIndexes(ctx context.Context, collection string) ([]string, error)
	CreateIndex(ctx context.Context, collection string, spec IndexSpec) error
}

// Store is a live connection to a document store.
type Store interface {
	QueryExecutor
	SchemaManager

	// Type returns the transport identifier, e.g. "mongodb".
	Type() string

	// Close releases the connection.
	Close() error
}
