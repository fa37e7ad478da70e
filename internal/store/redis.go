package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
	"github.com/rzpsarthak13/docbridge/internal/logger"
	"github.com/rzpsarthak13/docbridge/internal/query"
)

// RedisType is the type identifier of the Redis transport.
const RedisType = "redis"

const (
	redisDefaultPort = 6379

	// redisWatchRetries bounds optimistic-lock retries of a merge insert.
	redisWatchRetries = 5
)

func init() {
	RegisterFactory(&redisFactory{})
}

type redisFactory struct{}

func (f *redisFactory) Type() string     { return RedisType }
func (f *redisFactory) DefaultPort() int { return redisDefaultPort }

func (f *redisFactory) Validate(cfg *config.StoreConfig) error {
	if cfg.Redis.DB < 0 || cfg.Redis.DB > 15 {
		return fmt.Errorf("store.redis.db must be between 0 and 15")
	}
	if cfg.Redis.MinIdleConns < 0 {
		return fmt.Errorf("store.redis.min_idle_conns must be non-negative")
	}
	if cfg.Redis.ClusterMode && cfg.Redis.DB != 0 {
		return fmt.Errorf("store.redis.db must be 0 in cluster mode")
	}
	return nil
}

func (f *redisFactory) Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return NewRedisStore(ctx, cfg)
}

// RedisStore keeps each document as a JSON string. Keys of one collection
// share a hash tag so multi-key commands stay on one cluster slot:
//
//	<ns>:{<collection>}:doc:<id>   document body
//	<ns>:{<collection>}:ids        set of document ids
//	<ns>:{<collection>}:indexes    hash of declared index specs
//	<ns>:collections               set of collection names
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	log       *slog.Logger
}

// NewRedisStore connects to a single node, a sentinel group (when a replica
// set name is configured) or a cluster.
func NewRedisStore(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	conn, err := config.ResolveConnection(cfg, redisDefaultPort)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{
		Addrs:        conn.Addresses(),
		MasterName:   conn.ReplicaSet,
		Username:     conn.Username,
		Password:     conn.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}

	var client redis.UniversalClient
	if cfg.Redis.ClusterMode {
		client = redis.NewClusterClient(opts.Cluster())
	} else {
		client = redis.NewUniversalClient(opts)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logger.Component("redis")
	log.Info("connected", "addrs", opts.Addrs, "namespace", conn.Database, "cluster", cfg.Redis.ClusterMode)

	return NewRedisStoreWithClient(client, conn.Database), nil
}

// NewRedisStoreWithClient wraps an existing client. Keys are prefixed with namespace.
func NewRedisStoreWithClient(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		log:       logger.Component("redis"),
	}
}

func (s *RedisStore) Type() string { return RedisType }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) docKey(collection string, id any) string {
	return fmt.Sprintf("%s:{%s}:doc:%s", s.namespace, collection, KeyOf(id))
}

func (s *RedisStore) idsKey(collection string) string {
	return fmt.Sprintf("%s:{%s}:ids", s.namespace, collection)
}

func (s *RedisStore) indexesKey(collection string) string {
	return fmt.Sprintf("%s:{%s}:indexes", s.namespace, collection)
}

func (s *RedisStore) collectionsKey() string {
	return s.namespace + ":collections"
}

// loadAll reads every document of a collection.
func (s *RedisStore) loadAll(ctx context.Context, collection string) ([]core.Record, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ids of %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []core.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}

	rows := make([]core.Record, 0, len(values))
	for _, v := range values {
		body, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := DecodeDocument([]byte(body))
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (s *RedisStore) Find(ctx context.Context, plan *core.Plan) ([]core.Record, error) {
	rows, err := s.loadAll(ctx, plan.Collection)
	if err != nil {
		return nil, err
	}
	return query.Apply(rows, plan), nil
}

func (s *RedisStore) Get(ctx context.Context, collection string, id any) (core.Record, error) {
	body, err := s.client.Get(ctx, s.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %v from %s: %w", id, collection, err)
	}
	return DecodeDocument(body)
}

func (s *RedisStore) Insert(ctx context.Context, collection string, record core.Record, conflict core.ConflictPolicy) (*core.WriteResult, error) {
	doc := record.Clone()
	result := &core.WriteResult{}
	if doc.ID() == nil {
		id := uuid.NewString()
		doc[core.IDField] = id
		result.GeneratedKeys = []any{id}
	}

	var err error
	if conflict == core.ConflictUpdate {
		err = s.upsert(ctx, collection, doc, result)
	} else {
		err = s.insert(ctx, collection, doc, result)
	}
	if err != nil {
		return nil, err
	}

	if err := s.client.SAdd(ctx, s.collectionsKey(), collection).Err(); err != nil {
		return nil, fmt.Errorf("failed to register collection %s: %w", collection, err)
	}
	return result, nil
}

func (s *RedisStore) insert(ctx context.Context, collection string, doc core.Record, result *core.WriteResult) error {
	body, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.docKey(collection, doc.ID()), body, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	if !ok {
		return fmt.Errorf("%w: %v in %q", core.ErrDuplicateKey, doc.ID(), collection)
	}
	if err := s.client.SAdd(ctx, s.idsKey(collection), KeyOf(doc.ID())).Err(); err != nil {
		return fmt.Errorf("failed to index %v in %s: %w", doc.ID(), collection, err)
	}

	result.Inserted = 1
	result.Changes = []core.Change{{New: doc}}
	return nil
}

// upsert merges under WATCH so a concurrent writer forces a retry.
func (s *RedisStore) upsert(ctx context.Context, collection string, doc core.Record, result *core.WriteResult) error {
	key := s.docKey(collection, doc.ID())

	txf := func(tx *redis.Tx) error {
		var old core.Record
		body, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if old, err = DecodeDocument(body); err != nil {
				return err
			}
		}

		merged := doc
		if old != nil {
			merged = old.Clone().Merge(doc)
		}
		payload, err := EncodeDocument(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, s.idsKey(collection), KeyOf(doc.ID()))
			return nil
		})
		if err != nil {
			return err
		}

		*result = core.WriteResult{GeneratedKeys: result.GeneratedKeys}
		switch {
		case old == nil:
			result.Inserted = 1
		case sameRecord(old, merged):
			result.Unchanged = 1
		default:
			result.Replaced = 1
		}
		result.Changes = []core.Change{{Old: old, New: merged}}
		return nil
	}

	for i := 0; i < redisWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to upsert into %s: %w", collection, err)
		}
		return nil
	}
	return fmt.Errorf("failed to upsert into %s: too many concurrent writers", collection)
}

// Update and Delete read the collection, evaluate the predicate in process and
// write back in one pipeline. They are not atomic across documents.
func (s *RedisStore) Update(ctx context.Context, collection string, pred core.Expr, fields core.Record) (*core.WriteResult, error) {
	rows, err := s.loadAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	patch := fields.Clone()
	delete(patch, core.IDField)

	result := &core.WriteResult{}
	pipe := s.client.Pipeline()
	for _, row := range rows {
		if !filter.Matches(pred, row) {
			continue
		}
		merged := row.Clone().Merge(patch)
		if sameRecord(row, merged) {
			result.Unchanged++
			continue
		}
		payload, err := EncodeDocument(merged)
		if err != nil {
			return nil, err
		}
		pipe.Set(ctx, s.docKey(collection, row.ID()), payload, 0)
		result.Replaced++
	}

	if result.Replaced > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", collection, err)
		}
	}
	return result, nil
}

func (s *RedisStore) Delete(ctx context.Context, collection string, pred core.Expr) (*core.WriteResult, error) {
	rows, err := s.loadAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	result := &core.WriteResult{}
	pipe := s.client.Pipeline()
	for _, row := range rows {
		if !filter.Matches(pred, row) {
			continue
		}
		pipe.Del(ctx, s.docKey(collection, row.ID()))
		pipe.SRem(ctx, s.idsKey(collection), KeyOf(row.ID()))
		result.Deleted++
	}

	if result.Deleted > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to delete from %s: %w", collection, err)
		}
	}
	return result, nil
}

func (s *RedisStore) Count(ctx context.Context, collection string, pred core.Expr) (int64, error) {
	if pred == nil {
		return s.client.SCard(ctx, s.idsKey(collection)).Result()
	}

	rows, err := s.loadAll(ctx, collection)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range rows {
		if filter.Matches(pred, row) {
			n++
		}
	}
	return n, nil
}

func (s *RedisStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.collectionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) CreateCollection(ctx context.Context, name string) error {
	added, err := s.client.SAdd(ctx, s.collectionsKey(), name).Result()
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	if added == 0 {
		return fmt.Errorf("collection %q already exists", name)
	}
	return nil
}

func (s *RedisStore) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	names, err := s.client.HKeys(ctx, s.indexesKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", collection, err)
	}
	sort.Strings(names)
	return names, nil
}

// CreateIndex records the declaration. Queries scan the collection, so the
// index is advisory.
func (s *RedisStore) CreateIndex(ctx context.Context, collection string, spec core.IndexSpec) error {
	payload, err := EncodeValue(map[string]any{
		"fields":  toAnySlice(spec.Fields),
		"unique":  spec.Unique,
		"options": spec.Options,
	})
	if err != nil {
		return err
	}

	created, err := s.client.HSetNX(ctx, s.indexesKey(collection), spec.Name, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", spec.Name, collection, err)
	}
	if !created {
		return fmt.Errorf("index %q already exists on %q", spec.Name, collection)
	}
	return nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
