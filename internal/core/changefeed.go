package core

import (
	"context"
	"time"
)

// ChangeOperation is the kind of write that produced a change event.
type ChangeOperation string

const (
	ChangeCreate ChangeOperation = "create"
	ChangeUpsert ChangeOperation = "upsert"
	ChangeUpdate ChangeOperation = "update"
	ChangeDelete ChangeOperation = "delete"
)

// ChangeEvent describes one successful write.
type ChangeEvent struct {
	Collection string          `json:"collection"`
	Operation  ChangeOperation `json:"operation"`

	// Key is the identifier of the written record for single-record writes.
	Key any `json:"key,omitempty"`

	// Document is the record as stored, when the store reported it.
	Document Record `json:"document,omitempty"`

	// Affected is the number of records the write touched.
	Affected  int64     `json:"affected"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeQueue buffers change events between the writer and the relay.
type ChangeQueue interface {
	// Enqueue adds an event. It must not block the caller on a full queue.
	Enqueue(ctx context.Context, event *ChangeEvent) error

	// Dequeue returns up to batchSize events in FIFO order.
	Dequeue(ctx context.Context, batchSize int) ([]*ChangeEvent, error)

	// Size returns the number of buffered events.
	Size() int

	// Close stops accepting events.
	Close() error
}

// ChangePublisher delivers change events to their destination.
type ChangePublisher interface {
	Publish(ctx context.Context, events []*ChangeEvent) error
	Close() error
}
