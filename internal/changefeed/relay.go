package changefeed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// RelayConfig controls how fast events leave the queue.
type RelayConfig struct {
	// DrainRate is the maximum number of events published per second.
	DrainRate int

	// BatchSize is how many events one Publish call carries at most.
	BatchSize int

	// PollInterval is how often an empty queue is checked again.
	PollInterval time.Duration
}

// DefaultRelayConfig returns the relay defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		DrainRate:    100,
		BatchSize:    10,
		PollInterval: 100 * time.Millisecond,
	}
}

// Relay moves events from a queue to a publisher in the background. Events
// still buffered at Stop are flushed without rate limiting.
type Relay struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	queue     core.ChangeQueue
	publisher core.ChangePublisher
	config    RelayConfig
	log       *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

func NewRelay(queue core.ChangeQueue, publisher core.ChangePublisher, config RelayConfig) *Relay {
	defaults := DefaultRelayConfig()
	if config.DrainRate <= 0 {
		config.DrainRate = defaults.DrainRate
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}

	return &Relay{
		queue:     queue,
		publisher: publisher,
		config:    config,
		log:       logger.Component("changefeed"),
	}
}

// Start launches the relay goroutine. Starting a running relay is a no-op.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
	r.log.Info("relay started", "drain_rate", r.config.DrainRate, "batch_size", r.config.BatchSize)
	return nil
}

// Stop signals the relay and waits for the final flush.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	r.log.Info("relay stopped", "published", r.published.Load(), "failed", r.failed.Load())
	return nil
}

func (r *Relay) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Published returns the number of events handed to the publisher successfully.
func (r *Relay) Published() int64 { return r.published.Load() }

// Failed returns the number of events whose publish failed.
func (r *Relay) Failed() int64 { return r.failed.Load() }

func (r *Relay) run(ctx context.Context) {
	defer close(r.doneCh)

	limiter := rate.NewLimiter(rate.Limit(r.config.DrainRate), r.config.BatchSize)
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	// waitCtx ends on Stop so a pending rate wait does not delay the flush.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for {
		select {
		case <-r.stopCh:
			r.flush(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		default:
		}

		if r.queue.Size() == 0 {
			select {
			case <-r.stopCh:
				r.flush(context.WithoutCancel(ctx))
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		events, err := r.queue.Dequeue(ctx, r.config.BatchSize)
		if err != nil {
			r.log.Error("dequeue failed", "error", err)
			continue
		}
		if len(events) == 0 {
			continue
		}

		if err := limiter.WaitN(waitCtx, len(events)); err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				flushCtx := context.WithoutCancel(ctx)
				r.publish(flushCtx, events)
				r.flush(flushCtx)
				return
			}
			r.log.Error("rate limiter error", "error", err)
		}
		r.publish(ctx, events)
	}
}

func (r *Relay) flush(ctx context.Context) {
	for {
		events, err := r.queue.Dequeue(ctx, r.config.BatchSize)
		if err != nil || len(events) == 0 {
			return
		}
		r.publish(ctx, events)
	}
}

func (r *Relay) publish(ctx context.Context, events []*core.ChangeEvent) {
	start := time.Now()
	if err := r.publisher.Publish(ctx, events); err != nil {
		r.failed.Add(int64(len(events)))
		r.log.Error("publish failed", "events", len(events), "error", err, "duration", time.Since(start))
		return
	}
	r.published.Add(int64(len(events)))
	r.log.Debug("published", "events", len(events), "queue_size", r.queue.Size(), "duration", time.Since(start))
}
