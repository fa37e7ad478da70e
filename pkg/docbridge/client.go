// Package docbridge lets application code run model CRUD and schema
// synchronization against a document store.
package docbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/changefeed"
	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/connector"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/gate"
	"github.com/rzpsarthak13/docbridge/internal/logger"
	"github.com/rzpsarthak13/docbridge/internal/models"
	"github.com/rzpsarthak13/docbridge/internal/schema"
	"github.com/rzpsarthak13/docbridge/internal/store"
)

// Client is the entry point for model operations.
//
// Typical usage:
//
//	client, _ := docbridge.NewClient(cfg)
//	defer client.Close()
//
//	client.RegisterModel(&docbridge.ModelDescriptor{Name: "users"})
//	client.Connect(ctx)
//
//	id, _ := client.Create(ctx, "users", docbridge.Record{"name": "Ann"})
//	rows, _ := client.FindMany(ctx, "users", &docbridge.Filter{Order: []string{"name"}}, nil)
//
// Operations issued before Connect completes wait for the connection.
type Client interface {
	// RegisterModel adds or replaces a model descriptor.
	RegisterModel(desc *ModelDescriptor) error

	// LoadModels registers every model declared in a YAML or JSON file.
	LoadModels(path string) error

	// Models returns the registered model names.
	Models() []string

	// Connect dials the store, starts the change feed and, when configured,
	// brings the schema up to date. Connecting twice reuses the handle.
	Connect(ctx context.Context) error

	// Disconnect stops the change feed and closes the store. Later
	// operations wait for the next Connect.
	Disconnect(ctx context.Context) error

	Connected() bool

	Create(ctx context.Context, model string, data Record) (any, error)
	Upsert(ctx context.Context, model string, data Record) (Record, error)
	Save(ctx context.Context, model string, data Record, strict, returnFull bool) (any, error)
	Exists(ctx context.Context, model string, id any) (bool, error)
	Find(ctx context.Context, model string, id any) (Record, error)
	FindMany(ctx context.Context, model string, f *Filter, options map[string]any) ([]Record, error)
	All(ctx context.Context, model string, f *Filter, options map[string]any) ([]Record, error)
	Destroy(ctx context.Context, model string, id any) error
	DestroyAll(ctx context.Context, model string, where map[string]any) (int64, error)
	Update(ctx context.Context, model string, where map[string]any, data Record) (int64, error)
	UpdateAll(ctx context.Context, model string, where map[string]any, data Record) (int64, error)
	UpdateAttributes(ctx context.Context, model string, id any, data Record) (Record, error)
	Count(ctx context.Context, model string, where map[string]any) (int64, error)

	// Autoupdate creates missing collections and indexes for the named
	// models, or for every model when none are named.
	Autoupdate(ctx context.Context, models ...string) error
	Automigrate(ctx context.Context, models ...string) error

	// IsActual reports whether the store carries every registered model's
	// collection and declared indexes.
	IsActual(ctx context.Context) (bool, error)

	Types() []string
	DefaultIDType() string

	// Close disconnects and releases background resources.
	Close() error
}

// Option configures a client.
type Option func(*options)

type options struct {
	includes core.IncludeResolver
	dialer   gate.Dialer
}

// WithIncludeResolver sets the resolver used for Filter.Include.
func WithIncludeResolver(r IncludeResolver) Option {
	return func(o *options) { o.includes = r }
}

// WithStore makes the client use s instead of dialing from configuration.
func WithStore(s core.Store) Option {
	return func(o *options) {
		o.dialer = func(ctx context.Context) (core.Store, error) { return s, nil }
	}
}

type client struct {
	*connector.Connector
	syncer *schema.Synchronizer

	gate     *gate.Gate
	registry *models.Registry
	config   *Config

	mu     sync.Mutex
	queue  *changefeed.MemoryQueue
	relay  *changefeed.Relay
	pub    core.ChangePublisher
	closed bool
}

// NewClient validates cfg and builds a client. No connection is made until
// Connect is called.
func NewClient(cfg *Config, opts ...Option) (Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.dialer == nil {
		storeCfg := cfg.Store
		o.dialer = func(ctx context.Context) (core.Store, error) {
			return store.Create(ctx, storeCfg)
		}
	}

	c := &client{
		gate:     gate.New(o.dialer),
		registry: models.NewRegistry(),
		config:   cfg,
	}

	connOpts := []connector.Option{
		connector.WithStoreType(cfg.Store.Type),
		connector.WithIncludeResolver(o.includes),
	}
	if cfg.ChangeFeed.Enabled {
		c.queue = changefeed.NewMemoryQueue(cfg.ChangeFeed.BufferSize)
		connOpts = append(connOpts, connector.WithEmitter(changefeed.NewEmitter(c.queue)))
		c.gate.RegisterHook(gate.HookFunc{
			OnConnectFunc:    c.startChangeFeed,
			OnDisconnectFunc: c.stopChangeFeed,
		})
	}
	c.Connector = connector.New(c.gate, c.registry, connOpts...)

	syncer, err := schema.New(c.gate, c.registry, cfg.Schema.Workers)
	if err != nil {
		return nil, err
	}
	c.syncer = syncer

	if cfg.Schema.AutoUpdate {
		c.gate.RegisterHook(gate.HookFunc{
			OnConnectFunc: func(ctx context.Context, _ core.Store) error {
				return c.syncer.EnsureSchema(ctx)
			},
		})
	}

	return c, nil
}

func (c *client) startChangeFeed(ctx context.Context, _ core.Store) error {
	pub, err := changefeed.NewPublisher(ctx, c.config.ChangeFeed)
	if err != nil {
		return fmt.Errorf("failed to create change publisher: %w", err)
	}

	relay := changefeed.NewRelay(c.queue, pub, changefeed.RelayConfig{
		DrainRate:    c.config.ChangeFeed.DrainRate,
		BatchSize:    c.config.ChangeFeed.BatchSize,
		PollInterval: c.config.ChangeFeed.PollInterval,
	})
	if err := relay.Start(context.WithoutCancel(ctx)); err != nil {
		_ = pub.Close()
		return err
	}

	c.mu.Lock()
	c.pub, c.relay = pub, relay
	c.mu.Unlock()
	return nil
}

func (c *client) stopChangeFeed(ctx context.Context, _ core.Store) error {
	c.mu.Lock()
	pub, relay := c.pub, c.relay
	c.pub, c.relay = nil, nil
	c.mu.Unlock()

	if relay == nil {
		return nil
	}
	return errors.Join(relay.Stop(), pub.Close())
}

func (c *client) RegisterModel(desc *ModelDescriptor) error {
	return c.registry.Register(desc)
}

func (c *client) LoadModels(path string) error {
	return models.LoadInto(c.registry, path)
}

func (c *client) Models() []string {
	return c.registry.Models()
}

func (c *client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return core.ErrStoreClosed
	}
	if _, err := c.gate.Connect(ctx); err != nil {
		return err
	}
	logger.Info("connected", "store", c.config.Store.Type)
	return nil
}

func (c *client) Disconnect(ctx context.Context) error {
	return c.gate.Disconnect(ctx)
}

func (c *client) Connected() bool {
	return c.gate.Connected()
}

func (c *client) Autoupdate(ctx context.Context, models ...string) error {
	return c.syncer.Autoupdate(ctx, models...)
}

func (c *client) Automigrate(ctx context.Context, models ...string) error {
	return c.syncer.Automigrate(ctx, models...)
}

func (c *client) IsActual(ctx context.Context) (bool, error) {
	return c.syncer.IsActual(ctx)
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if c.gate.Connected() {
		errs = append(errs, c.gate.Disconnect(context.Background()))
	}
	errs = append(errs, c.syncer.Close())
	if c.queue != nil {
		errs = append(errs, c.queue.Close())
	}
	return errors.Join(errs...)
}
