package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
)

// MongoDBType is the type identifier of the MongoDB transport.
const MongoDBType = "mongodb"

const mongoDefaultPort = 27017

func init() {
	RegisterFactory(&mongoFactory{})
}

type mongoFactory struct{}

func (f *mongoFactory) Type() string     { return MongoDBType }
func (f *mongoFactory) DefaultPort() int { return mongoDefaultPort }

func (f *mongoFactory) Validate(cfg *config.StoreConfig) error {
	if cfg.PoolSize < 0 {
		return fmt.Errorf("store.pool_size must be non-negative")
	}
	return nil
}

func (f *mongoFactory) Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return NewMongoStore(ctx, cfg)
}

// MongoStore is the MongoDB transport. The record id is stored as _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *slog.Logger
}

// NewMongoStore connects to MongoDB and pings the primary.
func NewMongoStore(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	conn, err := config.ResolveConnection(cfg, mongoDefaultPort)
	if err != nil {
		return nil, err
	}

	clientOptions := options.Client()
	if strings.HasPrefix(cfg.URL, "mongodb+srv://") {
		clientOptions.ApplyURI(cfg.URL)
	} else {
		clientOptions.SetHosts(conn.Addresses())
		if conn.ReplicaSet != "" {
			clientOptions.SetReplicaSet(conn.ReplicaSet)
		}
	}
	if conn.Username != "" {
		authSource := cfg.MongoDB.AuthSource
		if authSource == "" {
			authSource = conn.Database
		}
		clientOptions.SetAuth(options.Credential{
			Username:   conn.Username,
			Password:   conn.Password,
			AuthSource: authSource,
		})
	}
	if cfg.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.PoolSize > 0 {
		clientOptions.SetMaxPoolSize(uint64(cfg.PoolSize))
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log := logger.Component("mongodb")
	log.Info("connected", "hosts", conn.Addresses(), "database", conn.Database, "replica_set", conn.ReplicaSet)

	return &MongoStore{
		client: client,
		db:     client.Database(conn.Database),
		log:    log,
	}, nil
}

func (s *MongoStore) Type() string { return MongoDBType }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Find(ctx context.Context, plan *core.Plan) ([]core.Record, error) {
	findOptions := options.Find()
	if len(plan.Order) > 0 {
		findOptions.SetSort(MongoSort(plan.Order))
	}
	if plan.Skip > 0 {
		findOptions.SetSkip(int64(plan.Skip))
	}
	if plan.Limit > 0 {
		findOptions.SetLimit(int64(plan.Limit))
	}

	cursor, err := s.db.Collection(plan.Collection).Find(ctx, MongoFilter(plan.Predicate), findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", plan.Collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", plan.Collection, err)
	}

	rows := make([]core.Record, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, fromMongoDocument(doc))
	}
	return rows, nil
}

func (s *MongoStore) Get(ctx context.Context, collection string, id any) (core.Record, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: mongoIDField, Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %v from %s: %w", id, collection, err)
	}
	return fromMongoDocument(doc), nil
}

func (s *MongoStore) Insert(ctx context.Context, collection string, record core.Record, conflict core.ConflictPolicy) (*core.WriteResult, error) {
	doc := record.Clone()
	result := &core.WriteResult{}
	if doc.ID() == nil {
		id := uuid.NewString()
		doc[core.IDField] = id
		result.GeneratedKeys = []any{id}
	}
	coll := s.db.Collection(collection)

	if conflict != core.ConflictUpdate {
		if _, err := coll.InsertOne(ctx, toMongoDocument(doc)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: %v in %q", core.ErrDuplicateKey, doc.ID(), collection)
			}
			return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
		}
		result.Inserted = 1
		result.Changes = []core.Change{{New: doc}}
		return result, nil
	}

	fields := toMongoDocument(doc)
	delete(fields, mongoIDField)
	update := bson.D{{Key: "$set", Value: fields}}
	if len(fields) == 0 {
		update = bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: mongoIDField, Value: doc.ID()}}}}
	}

	findOptions := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var before bson.M
	err := coll.FindOneAndUpdate(ctx, bson.D{{Key: mongoIDField, Value: doc.ID()}}, update, findOptions).Decode(&before)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		result.Inserted = 1
		result.Changes = []core.Change{{New: doc}}
	case err != nil:
		return nil, fmt.Errorf("failed to upsert into %s: %w", collection, err)
	default:
		old := fromMongoDocument(before)
		merged := old.Clone().Merge(doc)
		if sameRecord(old, merged) {
			result.Unchanged = 1
		} else {
			result.Replaced = 1
		}
		result.Changes = []core.Change{{Old: old, New: merged}}
	}
	return result, nil
}

func (s *MongoStore) Update(ctx context.Context, collection string, pred core.Expr, fields core.Record) (*core.WriteResult, error) {
	set := toMongoDocument(fields)
	delete(set, mongoIDField)

	coll := s.db.Collection(collection)
	filterDoc := MongoFilter(pred)

	if len(set) == 0 {
		n, err := coll.CountDocuments(ctx, filterDoc)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", collection, err)
		}
		return &core.WriteResult{Unchanged: n}, nil
	}

	res, err := coll.UpdateMany(ctx, filterDoc, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		if result, ok := mongoWriteErrors(err); ok {
			return result, nil
		}
		return nil, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	return &core.WriteResult{
		Replaced:  res.ModifiedCount,
		Unchanged: res.MatchedCount - res.ModifiedCount,
	}, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection string, pred core.Expr) (*core.WriteResult, error) {
	res, err := s.db.Collection(collection).DeleteMany(ctx, MongoFilter(pred))
	if err != nil {
		if result, ok := mongoWriteErrors(err); ok {
			return result, nil
		}
		return nil, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return &core.WriteResult{Deleted: res.DeletedCount}, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, pred core.Expr) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, MongoFilter(pred))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MongoStore) CreateCollection(ctx context.Context, name string) error {
	if err := s.db.CreateCollection(ctx, name, options.CreateCollection()); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	s.log.Debug("created collection", "collection", name)
	return nil
}

func (s *MongoStore) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	cursor, err := s.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			return nil, fmt.Errorf("failed to decode index of %s: %w", collection, err)
		}
		name, _ := index["name"].(string)
		if name == "" || name == "_id_" {
			continue
		}
		names = append(names, name)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", collection, err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MongoStore) CreateIndex(ctx context.Context, collection string, spec core.IndexSpec) error {
	keys := bson.D{}
	for _, field := range spec.Fields {
		keys = append(keys, bson.E{Key: mongoField(field), Value: 1})
	}

	indexOptions := options.Index().SetName(spec.Name)
	if spec.Unique {
		indexOptions.SetUnique(true)
	}
	if sparse, ok := spec.Options["sparse"].(bool); ok && sparse {
		indexOptions.SetSparse(true)
	}

	model := mongo.IndexModel{Keys: keys, Options: indexOptions}
	if _, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", spec.Name, collection, err)
	}
	s.log.Debug("created index", "collection", collection, "index", spec.Name)
	return nil
}

// mongoWriteErrors turns a partially applied bulk write into an acknowledgement
// carrying the first reported error.
func mongoWriteErrors(err error) (*core.WriteResult, bool) {
	var we mongo.WriteException
	if !errors.As(err, &we) || len(we.WriteErrors) == 0 {
		return nil, false
	}
	return &core.WriteResult{
		Errors:     int64(len(we.WriteErrors)),
		FirstError: we.WriteErrors[0].Message,
	}, true
}
