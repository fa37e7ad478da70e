// Package schema keeps store collections and indexes in line with the
// registered model descriptors.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/gate"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// DefaultWorkers bounds concurrent index creations when no worker count is configured.
const DefaultWorkers = 8

// Runner executes a task once a store is available. *gate.Gate implements it.
type Runner interface {
	Run(ctx context.Context, fn gate.Task) error
}

// Synchronizer creates missing collections and indexes and reports drift.
type Synchronizer struct {
	runner Runner
	models core.ModelRegistry
	pool   *ants.Pool
	log    *slog.Logger
}

// New creates a synchronizer whose index creations run on a pool of at most
// workers goroutines. Close releases the pool.
func New(runner Runner, models core.ModelRegistry, workers int) (*Synchronizer, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	log := logger.Component("schema")
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		log.Error("index creation panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create index worker pool: %w", err)
	}

	return &Synchronizer{
		runner: runner,
		models: models,
		pool:   pool,
		log:    log,
	}, nil
}

// Close releases the worker pool.
func (s *Synchronizer) Close() error {
	return s.pool.ReleaseTimeout(3 * time.Second)
}

// resolve maps model names to descriptors. No names means every registered model.
func (s *Synchronizer) resolve(names []string) ([]*core.ModelDescriptor, error) {
	if len(names) == 0 {
		names = s.models.Models()
	}

	descs := make([]*core.ModelDescriptor, 0, len(names))
	for _, name := range names {
		desc, ok := s.models.Model(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownModel, name)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

// EnsureSchema creates the collection of every named model that lacks one and
// then creates its missing declared indexes. Models are processed concurrently
// and the first error is returned once all of them finish.
func (s *Synchronizer) EnsureSchema(ctx context.Context, models ...string) error {
	descs, err := s.resolve(models)
	if err != nil {
		return err
	}

	return s.runner.Run(ctx, func(ctx context.Context, store core.Store) error {
		collections, err := store.ListCollections(ctx)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		present := toSet(collections)

		var (
			wg    sync.WaitGroup
			first firstError
		)
		for _, desc := range descs {
			_, exists := present[desc.Collection()]
			wg.Add(1)
			go func() {
				defer wg.Done()
				first.set(s.ensureModel(ctx, store, desc, exists))
			}()
		}
		wg.Wait()
		return first.err
	})
}

// Autoupdate is EnsureSchema.
func (s *Synchronizer) Autoupdate(ctx context.Context, models ...string) error {
	return s.EnsureSchema(ctx, models...)
}

// Automigrate is EnsureSchema. Existing data is never dropped.
func (s *Synchronizer) Automigrate(ctx context.Context, models ...string) error {
	return s.EnsureSchema(ctx, models...)
}

func (s *Synchronizer) ensureModel(ctx context.Context, store core.Store, desc *core.ModelDescriptor, exists bool) error {
	coll := desc.Collection()
	if !exists {
		if err := store.CreateCollection(ctx, coll); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", coll, err)
		}
		s.log.Info("collection created", "collection", coll)
	}
	return s.reconcileIndexes(ctx, store, desc)
}

func (s *Synchronizer) reconcileIndexes(ctx context.Context, store core.Store, desc *core.ModelDescriptor) error {
	coll := desc.Collection()
	actual, err := store.ListIndexes(ctx, coll)
	if err != nil {
		return fmt.Errorf("failed to list indexes of %s: %w", coll, err)
	}

	missing := missingIndexes(DeclaredIndexes(desc), actual)
	if len(missing) == 0 {
		return nil
	}

	var (
		wg    sync.WaitGroup
		first firstError
	)
	for _, spec := range missing {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if err := store.CreateIndex(ctx, coll, spec); err != nil {
				first.set(fmt.Errorf("failed to create index %s on %s: %w", spec.Name, coll, err))
				return
			}
			s.log.Info("index created", "collection", coll, "index", spec.Name, "fields", spec.Fields, "unique", spec.Unique)
		})
		if err != nil {
			wg.Done()
			first.set(fmt.Errorf("failed to schedule index %s on %s: %w", spec.Name, coll, err))
		}
	}
	wg.Wait()
	return first.err
}

// IsCurrent reports whether every registered model has its collection and all
// of its declared indexes. Every model is checked even after drift is found.
func (s *Synchronizer) IsCurrent(ctx context.Context) (bool, error) {
	descs, err := s.resolve(nil)
	if err != nil {
		return false, err
	}

	var current bool
	err = s.runner.Run(ctx, func(ctx context.Context, store core.Store) error {
		collections, err := store.ListCollections(ctx)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		if len(collections) == 0 {
			current = len(descs) == 0
			return nil
		}
		present := toSet(collections)

		var (
			wg     sync.WaitGroup
			first  firstError
			actual atomic.Bool
		)
		actual.Store(true)
		for _, desc := range descs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				coll := desc.Collection()
				if _, ok := present[coll]; !ok {
					s.log.Debug("collection missing", "collection", coll)
					actual.Store(false)
					return
				}
				indexes, err := store.ListIndexes(ctx, coll)
				if err != nil {
					first.set(fmt.Errorf("failed to list indexes of %s: %w", coll, err))
					return
				}
				if missing := missingIndexes(DeclaredIndexes(desc), indexes); len(missing) > 0 {
					s.log.Debug("indexes missing", "collection", coll, "count", len(missing))
					actual.Store(false)
				}
			}()
		}
		wg.Wait()
		current = actual.Load()
		return first.err
	})
	if err != nil {
		return false, err
	}
	return current, nil
}

// IsActual is IsCurrent.
func (s *Synchronizer) IsActual(ctx context.Context) (bool, error) {
	return s.IsCurrent(ctx)
}

type firstError struct {
	once sync.Once
	err  error
}

func (f *firstError) set(err error) {
	if err != nil {
		f.once.Do(func() { f.err = err })
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
