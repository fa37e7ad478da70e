package docbridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/store"
)

func memoryConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Store.Type = store.MemoryType
	cfg.Store.Database = t.Name()
	return cfg
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Store.Type = "cassandra"
	_, err = NewClient(cfg)
	assert.ErrorContains(t, err, "unsupported store type")
}

func TestClientCRUD(t *testing.T) {
	ctx := context.Background()
	c, err := NewClient(memoryConfig(t))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RegisterModel(&ModelDescriptor{
		Name: "users",
		Properties: map[string]Property{
			"email":  {Type: "String", Index: true, IndexOption: map[string]any{"unique": true}},
			"joined": {Type: "Date"},
		},
	}))
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.Connected())

	id, err := c.Create(ctx, "users", Record{"email": "ann@example.com", "joined": 1700000000})
	require.NoError(t, err)

	rec, err := c.Find(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec["joined"])

	_, err = c.Create(ctx, "users", Record{"id": id})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	n, err := c.Count(ctx, "users", map[string]any{"email": map[string]any{"like": "^ann"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, []string{"db", "nosql", "memory"}, c.Types())
	assert.Equal(t, "string", c.DefaultIDType())
}

func TestClientSchema(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Schema.AutoUpdate = true

	c, err := NewClient(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RegisterModel(&ModelDescriptor{
		Name:       "orders",
		Properties: map[string]Property{"ref": {Index: true}},
	}))
	require.NoError(t, c.Connect(ctx))

	ok, err := c.IsActual(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.RegisterModel(&ModelDescriptor{Name: "invoices"}))
	ok, err = c.IsActual(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Autoupdate(ctx, "invoices"))
	ok, err = c.IsActual(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, c.Automigrate(ctx, "ghosts"), ErrUnknownModel)
}

func TestClientQueuesUntilConnect(t *testing.T) {
	ctx := context.Background()
	c, err := NewClient(memoryConfig(t))
	require.NoError(t, err)
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Upsert(ctx, "notes", Record{"id": "n1", "text": "hi"})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("upsert completed before connect")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, <-done)

	ok, err := c.Exists(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientChangeFeedLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.ChangeFeed.Enabled = true
	cfg.ChangeFeed.Publisher = "log"

	c, err := NewClient(cfg)
	require.NoError(t, err)

	require.NoError(t, c.Connect(ctx))
	_, err = c.Create(ctx, "notes", Record{"text": "hello"})
	require.NoError(t, err)

	require.NoError(t, c.Disconnect(ctx))
	assert.False(t, c.Connected())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, c.Connect(ctx))
}

// unlistableStore fails every collection listing.
type unlistableStore struct {
	*store.MemoryStore
}

func (s unlistableStore) ListCollections(ctx context.Context) ([]string, error) {
	return nil, errors.New("boom")
}

func TestFailedConnectStopsChangeFeed(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.ChangeFeed.Enabled = true
	cfg.ChangeFeed.Publisher = "log"
	cfg.Schema.AutoUpdate = true

	c, err := NewClient(cfg, WithStore(unlistableStore{store.NewMemoryStore()}))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.RegisterModel(&ModelDescriptor{Name: "notes"}))

	impl := c.(*client)
	for range 2 {
		err = c.Connect(ctx)
		assert.ErrorContains(t, err, "boom")
		assert.False(t, c.Connected())

		impl.mu.Lock()
		relay, pub := impl.relay, impl.pub
		impl.mu.Unlock()
		assert.Nil(t, relay)
		assert.Nil(t, pub)
	}
}

func TestClientLoadModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - name: users
    properties:
      email:
        type: String
        index: true
  - name: orders
`), 0o600))

	c, err := NewClient(memoryConfig(t))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.LoadModels(path))
	assert.Equal(t, []string{"orders", "users"}, c.Models())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  type: memory
  database: cfgtest
schema:
  workers: 4
`), 0o600))
	t.Setenv("DOCBRIDGE_SCHEMA_AUTO_UPDATE", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "cfgtest", cfg.Store.Database)
	assert.Equal(t, 4, cfg.Schema.Workers)
	assert.True(t, cfg.Schema.AutoUpdate)
	assert.Equal(t, 10*time.Second, cfg.Store.ConnectTimeout)
}
