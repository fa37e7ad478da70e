package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Hook runs around connection lifecycle events.
type Hook interface {
	// OnConnect is called after a handle is established and before queued
	// operations are released. An error aborts the connect and the hooks that
	// already connected get OnDisconnect.
	OnConnect(ctx context.Context, store core.Store) error

	// OnDisconnect is called before the handle is closed.
	OnDisconnect(ctx context.Context, store core.Store) error
}

// HookFunc lets plain functions act as a Hook. Nil functions are skipped.
type HookFunc struct {
	OnConnectFunc    func(ctx context.Context, store core.Store) error
	OnDisconnectFunc func(ctx context.Context, store core.Store) error
}

func (f HookFunc) OnConnect(ctx context.Context, store core.Store) error {
	if f.OnConnectFunc != nil {
		return f.OnConnectFunc(ctx, store)
	}
	return nil
}

func (f HookFunc) OnDisconnect(ctx context.Context, store core.Store) error {
	if f.OnDisconnectFunc != nil {
		return f.OnDisconnectFunc(ctx, store)
	}
	return nil
}

// HookManager keeps hooks in registration order.
type HookManager struct {
	mu    sync.RWMutex
	hooks []Hook
}

func NewHookManager() *HookManager {
	return &HookManager{hooks: make([]Hook, 0)}
}

func (hm *HookManager) RegisterHook(hook Hook) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.hooks = append(hm.hooks, hook)
}

func (hm *HookManager) snapshot() []Hook {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	hooks := make([]Hook, len(hm.hooks))
	copy(hooks, hm.hooks)
	return hooks
}

// ExecuteConnectHooks stops at the first failing hook and runs OnDisconnect
// for the hooks that already succeeded, in registration order.
func (hm *HookManager) ExecuteConnectHooks(ctx context.Context, store core.Store) error {
	hooks := hm.snapshot()
	for i, hook := range hooks {
		if err := hook.OnConnect(ctx, store); err != nil {
			errs := []error{err}
			for _, done := range hooks[:i] {
				if rbErr := done.OnDisconnect(ctx, store); rbErr != nil {
					errs = append(errs, rbErr)
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

// ExecuteDisconnectHooks runs every hook and joins their errors.
func (hm *HookManager) ExecuteDisconnectHooks(ctx context.Context, store core.Store) error {
	var errs []error
	for _, hook := range hm.snapshot() {
		if err := hook.OnDisconnect(ctx, store); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (hm *HookManager) HookCount() int {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return len(hm.hooks)
}
