package changefeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// Emitter hands write events to a queue. A rejected event is logged and
// dropped; the write that produced it has already succeeded.
type Emitter struct {
	queue core.ChangeQueue
	log   *slog.Logger
}

func NewEmitter(queue core.ChangeQueue) *Emitter {
	return &Emitter{queue: queue, log: logger.Component("changefeed")}
}

func (e *Emitter) Emit(ctx context.Context, event *core.ChangeEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := e.queue.Enqueue(context.WithoutCancel(ctx), event); err != nil {
		e.log.Warn("dropped change event", "collection", event.Collection, "operation", event.Operation, "error", err)
	}
}
