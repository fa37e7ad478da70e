// Package gate defers store operations until a connection exists.
//
// Operations submitted before Connect are queued in order and released, each on
// its own goroutine, once the handle is up. The queue is unbounded; callers that
// need a deadline pass one through the context given to Run.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// Dialer establishes a store connection.
type Dialer func(ctx context.Context) (core.Store, error)

// Task is an operation that needs a live store.
type Task func(ctx context.Context, store core.Store) error

type pendingTask struct {
	ctx  context.Context
	fn   Task
	done chan error
}

func (t *pendingTask) run(store core.Store) {
	t.done <- t.fn(t.ctx, store)
}

// Gate owns the single shared store handle.
type Gate struct {
	dial  Dialer
	hooks *HookManager
	log   *slog.Logger

	// connectMu serializes Connect and Disconnect.
	connectMu sync.Mutex

	mu      sync.Mutex
	store   core.Store
	pending []*pendingTask
}

// New returns a disconnected gate that dials through dial.
func New(dial Dialer) *Gate {
	return &Gate{
		dial:  dial,
		hooks: NewHookManager(),
		log:   logger.Component("gate"),
	}
}

// RegisterHook adds a lifecycle hook.
func (g *Gate) RegisterHook(hook Hook) {
	g.hooks.RegisterHook(hook)
}

// Submit runs fn now when connected, otherwise queues it. It never blocks and
// never fails; the channel yields fn's result.
func (g *Gate) Submit(ctx context.Context, fn Task) <-chan error {
	t, _ := g.submit(ctx, fn)
	return t.done
}

func (g *Gate) submit(ctx context.Context, fn Task) (*pendingTask, bool) {
	t := &pendingTask{ctx: ctx, fn: fn, done: make(chan error, 1)}

	g.mu.Lock()
	store := g.store
	if store == nil {
		store = connectingStore(ctx)
	}
	if store == nil {
		g.pending = append(g.pending, t)
		n := len(g.pending)
		g.mu.Unlock()
		g.log.Debug("queued operation until connected", "pending", n)
		return t, true
	}
	g.mu.Unlock()

	go t.run(store)
	return t, false
}

// Run submits fn and waits for its result. When ctx ends while the task is
// still queued, the task is withdrawn and ErrNotConnected is returned.
func (g *Gate) Run(ctx context.Context, fn Task) error {
	t, queued := g.submit(ctx, fn)
	if !queued {
		return <-t.done
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		if g.withdraw(t) {
			return fmt.Errorf("%w: %w", core.ErrNotConnected, ctx.Err())
		}
		return <-t.done
	}
}

func (g *Gate) withdraw(t *pendingTask) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, p := range g.pending {
		if p == t {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Connect dials the store, runs connect hooks and releases queued operations
// exactly once. A second call while connected returns the existing handle.
//
// The handle stays private while hooks run: hooks reach it through the context
// they are given, and everything else keeps queuing. Queued operations are
// released in submission order in the same critical section that publishes the
// handle. When a hook fails, the hooks that already ran are disconnected and the
// handle is closed; queued operations stay queued.
func (g *Gate) Connect(ctx context.Context) (core.Store, error) {
	g.connectMu.Lock()
	defer g.connectMu.Unlock()

	g.mu.Lock()
	existing := g.store
	g.mu.Unlock()
	if existing != nil {
		return existing, nil
	}

	store, err := g.dial(ctx)
	if err != nil {
		g.log.Error("connect failed", "error", err)
		return nil, err
	}

	hookCtx := context.WithValue(ctx, connectingKey{}, store)
	if err := g.hooks.ExecuteConnectHooks(hookCtx, store); err != nil {
		_ = store.Close()
		g.log.Error("connect hook failed", "error", err)
		return nil, fmt.Errorf("connect hook failed: %w", err)
	}

	g.mu.Lock()
	g.store = store
	pending := g.pending
	g.pending = nil
	for _, t := range pending {
		go t.run(store)
	}
	g.mu.Unlock()

	g.log.Info("connected", "store", store.Type(), "released", len(pending))
	return store, nil
}

type connectingKey struct{}

// connectingStore returns the handle of a Connect in progress when ctx came
// from a connect hook.
func connectingStore(ctx context.Context) core.Store {
	if ctx == nil {
		return nil
	}
	store, _ := ctx.Value(connectingKey{}).(core.Store)
	return store
}

// Disconnect runs disconnect hooks, then closes and clears the handle. Later
// operations queue until the next Connect.
func (g *Gate) Disconnect(ctx context.Context) error {
	g.connectMu.Lock()
	defer g.connectMu.Unlock()

	g.mu.Lock()
	store := g.store
	g.store = nil
	g.mu.Unlock()

	if store == nil {
		return nil
	}

	hookErr := g.hooks.ExecuteDisconnectHooks(ctx, store)
	closeErr := store.Close()
	g.log.Info("disconnected", "store", store.Type())
	return errors.Join(hookErr, closeErr)
}

// Store returns the live handle, if any.
func (g *Gate) Store() (core.Store, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store, g.store != nil
}

// Connected reports whether a handle exists.
func (g *Gate) Connected() bool {
	_, ok := g.Store()
	return ok
}

// Pending returns the number of queued operations.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
