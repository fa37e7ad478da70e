// Package connector runs CRUD operations for registered models against the
// store owned by a gate.
package connector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
	"github.com/rzpsarthak13/docbridge/internal/gate"
	"github.com/rzpsarthak13/docbridge/internal/logger"
	"github.com/rzpsarthak13/docbridge/internal/query"
)

// DefaultIDType is the identifier type stores assign.
const DefaultIDType = "string"

// Runner executes a task once a store is available. *gate.Gate implements it.
type Runner interface {
	Run(ctx context.Context, fn gate.Task) error
}

// Emitter receives an event after every successful write.
type Emitter interface {
	Emit(ctx context.Context, event *core.ChangeEvent)
}

// Option configures a Connector.
type Option func(*Connector)

// WithIncludeResolver sets the resolver used for Filter.Include.
func WithIncludeResolver(r core.IncludeResolver) Option {
	return func(c *Connector) { c.includes = r }
}

// WithEmitter sets the change event sink.
func WithEmitter(e Emitter) Option {
	return func(c *Connector) { c.emitter = e }
}

// WithStoreType sets the store type reported by Types.
func WithStoreType(t string) Option {
	return func(c *Connector) { c.storeType = t }
}

// Connector is the CRUD executor. Models not in the registry use their name
// as the collection and get no result expansion.
type Connector struct {
	runner    Runner
	models    core.ModelRegistry
	includes  core.IncludeResolver
	emitter   Emitter
	storeType string
	log       *slog.Logger
}

func New(runner Runner, models core.ModelRegistry, opts ...Option) *Connector {
	c := &Connector{
		runner: runner,
		models: models,
		log:    logger.Component("connector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Types lists the connector's type tags.
func (c *Connector) Types() []string {
	types := []string{"db", "nosql"}
	if c.storeType != "" {
		types = append(types, c.storeType)
	}
	return types
}

func (c *Connector) DefaultIDType() string {
	return DefaultIDType
}

func (c *Connector) descriptor(model string) *core.ModelDescriptor {
	if c.models == nil {
		return nil
	}
	desc, _ := c.models.Model(model)
	return desc
}

func (c *Connector) collection(model string) string {
	if desc := c.descriptor(model); desc != nil {
		return desc.Collection()
	}
	return model
}

func (c *Connector) emit(ctx context.Context, event *core.ChangeEvent) {
	if c.emitter != nil {
		c.emitter.Emit(ctx, event)
	}
}

// Create inserts a record and fails with core.ErrDuplicateKey when its id is
// taken. A nil id is dropped so the store assigns one.
func (c *Connector) Create(ctx context.Context, model string, record core.Record) (any, error) {
	data := normalize(record)
	if data.ID() == nil {
		delete(data, core.IDField)
	}
	return c.Save(ctx, model, data, true, false)
}

// Upsert merges the record into the row with the same id, inserting when none
// exists, and returns the stored row.
func (c *Connector) Upsert(ctx context.Context, model string, record core.Record) (core.Record, error) {
	data := normalize(record)
	if data.ID() == nil {
		delete(data, core.IDField)
	}

	result, err := c.Save(ctx, model, data, false, true)
	if err != nil {
		return nil, err
	}
	if rec, ok := result.(core.Record); ok {
		return rec, nil
	}
	data[core.IDField] = result
	return data, nil
}

// Save writes a record with conflict policy "error" when strict, "update"
// otherwise. It returns the stored row when returnFull is set and the store
// reported it, else the record id.
func (c *Connector) Save(ctx context.Context, model string, record core.Record, strict, returnFull bool) (any, error) {
	coll := c.collection(model)
	conflict := core.ConflictUpdate
	operation := core.ChangeUpsert
	if strict {
		conflict = core.ConflictError
		operation = core.ChangeCreate
	}

	var result *core.WriteResult
	err := c.runner.Run(ctx, func(ctx context.Context, s core.Store) error {
		var err error
		result, err = s.Insert(ctx, coll, record, conflict)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.FirstError != "" {
		return nil, &core.StoreError{Collection: coll, Message: result.FirstError}
	}

	var stored core.Record
	id := record.ID()
	if len(result.Changes) > 0 && result.Changes[0].New != nil {
		stored = result.Changes[0].New
		id = stored.ID()
	} else if len(result.GeneratedKeys) > 0 {
		id = result.GeneratedKeys[0]
	}

	c.emit(ctx, &core.ChangeEvent{
		Collection: coll,
		Operation:  operation,
		Key:        id,
		Document:   stored,
		Affected:   result.Inserted + result.Replaced,
	})
	c.log.Debug("saved", "collection", coll, "id", id, "strict", strict)

	if returnFull && stored != nil {
		return Expand(c.descriptor(model), stored.Clone()), nil
	}
	return id, nil
}

// Exists reports whether a row with id exists. Any error yields false.
func (c *Connector) Exists(ctx context.Context, model string, id any) (bool, error) {
	rec, err := c.Find(ctx, model, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Find returns the row with id, or nil when absent.
func (c *Connector) Find(ctx context.Context, model string, id any) (core.Record, error) {
	coll := c.collection(model)

	var rec core.Record
	err := c.runner.Run(ctx, func(ctx context.Context, s core.Store) error {
		var err error
		rec, err = s.Get(ctx, coll, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return Expand(c.descriptor(model), rec), nil
}

// FindMany returns the rows selected by f, expanded, with includes resolved.
func (c *Connector) FindMany(ctx context.Context, model string, f *core.Filter, options map[string]any) ([]core.Record, error) {
	plan := query.Build(c.collection(model), f)

	var rows []core.Record
	err := c.runner.Run(ctx, func(ctx context.Context, s core.Store) error {
		var err error
		rows, err = s.Find(ctx, plan)
		return err
	})
	if err != nil {
		return nil, err
	}

	desc := c.descriptor(model)
	for _, row := range rows {
		Expand(desc, row)
	}

	if f == nil || f.Include == nil {
		return rows, nil
	}
	if c.includes == nil {
		return nil, fmt.Errorf("include requested on %s but no include resolver is configured", model)
	}
	return c.includes.Include(ctx, model, rows, f.Include, options)
}

// All is FindMany.
func (c *Connector) All(ctx context.Context, model string, f *core.Filter, options map[string]any) ([]core.Record, error) {
	return c.FindMany(ctx, model, f, options)
}

// Destroy deletes the row with id.
func (c *Connector) Destroy(ctx context.Context, model string, id any) error {
	_, err := c.delete(ctx, model, core.IDEquals(id), id)
	return err
}

// DestroyAll deletes the rows matching where (nil deletes every row) and
// returns how many were removed.
func (c *Connector) DestroyAll(ctx context.Context, model string, where map[string]any) (int64, error) {
	return c.delete(ctx, model, filter.Where(where), nil)
}

func (c *Connector) delete(ctx context.Context, model string, pred core.Expr, key any) (int64, error) {
	coll := c.collection(model)

	var result *core.WriteResult
	err := c.runner.Run(ctx, func(ctx context.Context, s core.Store) error {
		var err error
		result, err = s.Delete(ctx, coll, pred)
		return err
	})
	if err != nil {
		return 0, err
	}
	if result.FirstError != "" {
		return result.Deleted, &core.StoreError{Collection: coll, Message: result.FirstError}
	}

	c.emit(ctx, &core.ChangeEvent{Collection: coll, Operation: core.ChangeDelete, Key: key, Affected: result.Deleted})
	return result.Deleted, nil
}

// Update merges data into every row matching where and returns the number of
// rows that changed.
func (c *Connector) Update(ctx context.Context, model string, where map[string]any, data core.Record) (int64, error) {
	return c.update(ctx, model, filter.Where(where), normalize(data), nil)
}

// UpdateAll is Update.
func (c *Connector) UpdateAll(ctx context.Context, model string, where map[string]any, data core.Record) (int64, error) {
	return c.Update(ctx, model, where, data)
}

// UpdateAttributes merges data into the row with id and returns the merged
// input as supplied; the row is not re-read.
func (c *Connector) UpdateAttributes(ctx context.Context, model string, id any, data core.Record) (core.Record, error) {
	merged := normalize(data)
	merged[core.IDField] = id
	if _, err := c.update(ctx, model, core.IDEquals(id), merged, id); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *Connector) update(ctx context.Context, model string, pred core.Expr, data core.Record, key any) (int64, error) {
	coll := c.collection(model)

	var result *core.WriteResult
	err := c.runner.Run(ctx, func(ctx context.Context, s core.Store) error {
		var err error
		result, err = s.Update(ctx, coll, pred, data)
		return err
	})
	if err != nil {
		return 0, err
	}
	if result.FirstError != "" {
		return result.Replaced, &core.StoreError{Collection: coll, Message: result.FirstError}
	}

	c.emit(ctx, &core.ChangeEvent{Collection: coll, Operation: core.ChangeUpdate, Key: key, Document: data, Affected: result.Replaced})
	return result.Replaced, nil
}

// Count returns the number of rows matching where (nil counts every row).
func (c *Connector) Count(ctx context.Context, model string, where map[string]any) (int64, error) {
	coll := c.collection(model)
	pred := filter.Where(where)

	var n int64
	err := c.runner.Run(ctx, func(ctx context.Context, s core.Store) error {
		var err error
		n, err = s.Count(ctx, coll, pred)
		return err
	})
	return n, err
}
