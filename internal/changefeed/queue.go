// Package changefeed buffers post-write change events and relays them to a
// publisher at a bounded rate.
package changefeed

import (
	"context"
	"errors"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

var (
	// ErrQueueClosed is returned when enqueuing to a closed queue.
	ErrQueueClosed = errors.New("change queue is closed")

	// ErrQueueFull is returned when the buffer has no room.
	ErrQueueFull = errors.New("change queue is full")
)

const defaultBufferSize = 10000

// MemoryQueue is a bounded FIFO backed by a channel.
type MemoryQueue struct {
	queue  chan *core.ChangeEvent
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding up to bufferSize events.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &MemoryQueue{queue: make(chan *core.ChangeEvent, bufferSize)}
}

// Enqueue never blocks: a full queue rejects the event.
func (q *MemoryQueue) Enqueue(ctx context.Context, event *core.ChangeEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue returns up to batchSize buffered events without waiting for more.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.ChangeEvent, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	events := make([]*core.ChangeEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		select {
		case event, ok := <-q.queue:
			if !ok {
				return events, nil
			}
			events = append(events, event)
		case <-ctx.Done():
			return events, ctx.Err()
		default:
			return events, nil
		}
	}
	return events, nil
}

func (q *MemoryQueue) Size() int {
	return len(q.queue)
}

// Close stops accepting events. Buffered events can still be dequeued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.queue)
	return nil
}
