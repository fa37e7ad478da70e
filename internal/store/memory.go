package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
	"github.com/rzpsarthak13/docbridge/internal/query"
)

// MemoryType is the type identifier of the in-process store.
const MemoryType = "memory"

func init() {
	RegisterFactory(&memoryFactory{})
}

// memoryDatabases is shared by every handle opened through the factory, so two
// connections to the same database name see the same collections.
var (
	memoryDatabases   = make(map[string]*memoryDatabase)
	memoryDatabasesMu sync.Mutex
)

type memoryFactory struct{}

func (f *memoryFactory) Type() string     { return MemoryType }
func (f *memoryFactory) DefaultPort() int { return 0 }

func (f *memoryFactory) Validate(cfg *config.StoreConfig) error {
	return nil
}

func (f *memoryFactory) Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	name := cfg.Database
	if name == "" {
		name = config.DefaultDatabase
	}

	memoryDatabasesMu.Lock()
	db, ok := memoryDatabases[name]
	if !ok {
		db = newMemoryDatabase()
		memoryDatabases[name] = db
	}
	memoryDatabasesMu.Unlock()

	return &MemoryStore{db: db}, nil
}

type memoryCollection struct {
	docs    map[string]core.Record
	indexes map[string]core.IndexSpec
}

type memoryDatabase struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func newMemoryDatabase() *memoryDatabase {
	return &memoryDatabase{collections: make(map[string]*memoryCollection)}
}

// MemoryStore keeps collections in process. Collections are created implicitly
// by the first write.
type MemoryStore struct {
	db *memoryDatabase

	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore returns a store backed by a private, empty database.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{db: newMemoryDatabase()}
}

func (s *MemoryStore) Type() string { return MemoryType }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.ErrStoreClosed
	}
	return nil
}

// collection returns the named collection, creating it when create is set.
// Callers hold the database lock.
func (s *MemoryStore) collection(name string, create bool) *memoryCollection {
	c, ok := s.db.collections[name]
	if !ok && create {
		c = &memoryCollection{
			docs:    make(map[string]core.Record),
			indexes: make(map[string]core.IndexSpec),
		}
		s.db.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Find(ctx context.Context, plan *core.Plan) ([]core.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	c := s.collection(plan.Collection, false)
	var rows []core.Record
	if c != nil {
		rows = make([]core.Record, 0, len(c.docs))
		for _, doc := range c.docs {
			rows = append(rows, doc.Clone())
		}
	}
	s.db.mu.RUnlock()

	return query.Apply(rows, plan), nil
}

func (s *MemoryStore) Get(ctx context.Context, collection string, id any) (core.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return nil, nil
	}
	doc, ok := c.docs[KeyOf(id)]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, record core.Record, conflict core.ConflictPolicy) (*core.WriteResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	doc := record.Clone()
	result := &core.WriteResult{}
	if doc.ID() == nil {
		id := uuid.NewString()
		doc[core.IDField] = id
		result.GeneratedKeys = []any{id}
	}
	key := KeyOf(doc.ID())

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c := s.collection(collection, true)
	old, exists := c.docs[key]
	switch {
	case !exists:
		c.docs[key] = doc
		result.Inserted = 1
		result.Changes = []core.Change{{New: doc.Clone()}}
	case conflict != core.ConflictUpdate:
		return nil, fmt.Errorf("%w: %v in %q", core.ErrDuplicateKey, doc.ID(), collection)
	default:
		merged := old.Clone().Merge(doc)
		if sameRecord(old, merged) {
			result.Unchanged = 1
		} else {
			result.Replaced = 1
		}
		c.docs[key] = merged
		result.Changes = []core.Change{{Old: old.Clone(), New: merged.Clone()}}
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, pred core.Expr, fields core.Record) (*core.WriteResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	patch := fields.Clone()
	delete(patch, core.IDField)

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	result := &core.WriteResult{}
	c := s.collection(collection, false)
	if c == nil {
		return result, nil
	}
	for key, doc := range c.docs {
		if !filter.Matches(pred, doc) {
			continue
		}
		merged := doc.Clone().Merge(patch)
		if sameRecord(doc, merged) {
			result.Unchanged++
			continue
		}
		c.docs[key] = merged
		result.Replaced++
	}
	return result, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, pred core.Expr) (*core.WriteResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	result := &core.WriteResult{}
	c := s.collection(collection, false)
	if c == nil {
		return result, nil
	}
	for key, doc := range c.docs {
		if filter.Matches(pred, doc) {
			delete(c.docs, key)
			result.Deleted++
		}
	}
	return result, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, pred core.Expr) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return 0, nil
	}
	var n int64
	for _, doc := range c.docs {
		if filter.Matches(pred, doc) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	names := make([]string, 0, len(s.db.collections))
	for name := range s.db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.collection(name, false) != nil {
		return fmt.Errorf("collection %q already exists", name)
	}
	s.collection(name, true)
	return nil
}

func (s *MemoryStore) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return nil, fmt.Errorf("collection %q does not exist", collection)
	}
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) CreateIndex(ctx context.Context, collection string, spec core.IndexSpec) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	c := s.collection(collection, false)
	if c == nil {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	if _, exists := c.indexes[spec.Name]; exists {
		return fmt.Errorf("index %q already exists on %q", spec.Name, collection)
	}
	c.indexes[spec.Name] = spec
	return nil
}

// sameRecord reports whether two records hold equal values for the same fields.
func sameRecord(a, b core.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !filter.Equal(va, vb) {
			return false
		}
	}
	return true
}
