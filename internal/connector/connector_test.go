package connector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/gate"
	"github.com/rzpsarthak13/docbridge/internal/models"
	"github.com/rzpsarthak13/docbridge/internal/store"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []*core.ChangeEvent
}

func (e *recordingEmitter) Emit(ctx context.Context, event *core.ChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) operations() []core.ChangeOperation {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := make([]core.ChangeOperation, len(e.events))
	for i, ev := range e.events {
		ops[i] = ev.Operation
	}
	return ops
}

func newRegistry(t *testing.T) *models.Registry {
	r := models.NewRegistry()
	require.NoError(t, r.Register(&core.ModelDescriptor{
		Name: "users",
		Properties: map[string]core.Property{
			"name": {Type: "String"},
			"age":  {Type: "Number"},
			"born": {Type: core.TypeDate},
		},
	}))
	return r
}

type ConnectorSuite struct {
	suite.Suite
	ctx     context.Context
	gate    *gate.Gate
	conn    *Connector
	emitter *recordingEmitter
}

func (s *ConnectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.gate = gate.New(func(ctx context.Context) (core.Store, error) {
		return store.NewMemoryStore(), nil
	})
	_, err := s.gate.Connect(s.ctx)
	s.Require().NoError(err)

	s.emitter = &recordingEmitter{}
	s.conn = New(s.gate, newRegistry(s.T()), WithEmitter(s.emitter), WithStoreType(store.MemoryType))
}

func (s *ConnectorSuite) seed(ages ...int) {
	for i, age := range ages {
		_, err := s.conn.Create(s.ctx, "users", core.Record{"id": string(rune('a' + i)), "age": age})
		s.Require().NoError(err)
	}
}

func (s *ConnectorSuite) ids(rows []core.Record) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.ID()
	}
	return out
}

func (s *ConnectorSuite) TestCreateAssignsID() {
	id, err := s.conn.Create(s.ctx, "users", core.Record{"id": nil, "name": "Ann"})
	s.Require().NoError(err)
	s.IsType("", id)
	s.NotEmpty(id)

	rec, err := s.conn.Find(s.ctx, "users", id)
	s.Require().NoError(err)
	s.Equal("Ann", rec["name"])
}

func (s *ConnectorSuite) TestCreateTwiceIsDuplicate() {
	_, err := s.conn.Create(s.ctx, "users", core.Record{"id": "u1", "name": "Ann"})
	s.Require().NoError(err)

	_, err = s.conn.Create(s.ctx, "users", core.Record{"id": "u1", "name": "Bob"})
	s.ErrorIs(err, core.ErrDuplicateKey)
}

func (s *ConnectorSuite) TestUpsertTwiceKeepsOneRow() {
	first, err := s.conn.Upsert(s.ctx, "users", core.Record{"id": "u1", "name": "Ann", "age": 30})
	s.Require().NoError(err)
	s.Equal("Ann", first["name"])

	second, err := s.conn.Upsert(s.ctx, "users", core.Record{"id": "u1", "name": "Bob"})
	s.Require().NoError(err)
	s.Equal(core.Record{"id": "u1", "name": "Bob", "age": 30}, second)

	n, err := s.conn.Count(s.ctx, "users", nil)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	s.Equal([]core.ChangeOperation{core.ChangeUpsert, core.ChangeUpsert}, s.emitter.operations())
}

func (s *ConnectorSuite) TestUpsertWithoutIDReturnsStoredRow() {
	rec, err := s.conn.Upsert(s.ctx, "users", core.Record{"name": "Ann"})
	s.Require().NoError(err)
	s.NotNil(rec.ID())
	s.Equal("Ann", rec["name"])
}

func (s *ConnectorSuite) TestSaveReturnsID() {
	id, err := s.conn.Save(s.ctx, "users", core.Record{"id": "u9"}, false, false)
	s.Require().NoError(err)
	s.Equal("u9", id)
}

func (s *ConnectorSuite) TestExists() {
	s.seed(1)

	ok, err := s.conn.Exists(s.ctx, "users", "a")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.conn.Exists(s.ctx, "users", "zzz")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ConnectorSuite) TestFindMissingIsNil() {
	rec, err := s.conn.Find(s.ctx, "users", "nope")
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *ConnectorSuite) TestFindExpandsDates() {
	native := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.conn.Create(s.ctx, "users", core.Record{"id": "old", "born": 1700000000})
	s.Require().NoError(err)
	_, err = s.conn.Create(s.ctx, "users", core.Record{"id": "new", "born": native})
	s.Require().NoError(err)

	rec, err := s.conn.Find(s.ctx, "users", "old")
	s.Require().NoError(err)
	s.Equal(time.Unix(1700000000, 0).UTC(), rec["born"])

	rec, err = s.conn.Find(s.ctx, "users", "new")
	s.Require().NoError(err)
	s.Equal(native, rec["born"])
}

func (s *ConnectorSuite) TestFindManyOrderAndPage() {
	s.seed(50, 20, 40, 10, 30, 60)

	rows, err := s.conn.FindMany(s.ctx, "users", &core.Filter{Order: []string{"age DESC"}}, nil)
	s.Require().NoError(err)
	s.Require().Len(rows, 6)
	for i := 1; i < len(rows); i++ {
		s.GreaterOrEqual(rows[i-1]["age"].(int), rows[i]["age"].(int))
	}

	rows, err = s.conn.All(s.ctx, "users", &core.Filter{Skip: 2, Offset: 5, Limit: 3}, nil)
	s.Require().NoError(err)
	s.Equal([]any{"c", "d", "e"}, s.ids(rows))
}

func (s *ConnectorSuite) TestFindManyFilters() {
	s.seed(10, 15, 20)

	rows, err := s.conn.FindMany(s.ctx, "users", &core.Filter{Where: map[string]any{"age": map[string]any{"between": []any{10, 20}}}}, nil)
	s.Require().NoError(err)
	s.Equal([]any{"b"}, s.ids(rows))

	rows, err = s.conn.FindMany(s.ctx, "users", &core.Filter{Where: map[string]any{"id": map[string]any{"inq": []any{}}}}, nil)
	s.Require().NoError(err)
	s.Empty(rows)

	rows, err = s.conn.FindMany(s.ctx, "users", &core.Filter{Where: map[string]any{"id": map[string]any{"nin": []any{}}}}, nil)
	s.Require().NoError(err)
	s.Len(rows, 3)
}

func (s *ConnectorSuite) TestFindManyIncludes() {
	s.seed(1, 2)

	_, err := s.conn.FindMany(s.ctx, "users", &core.Filter{Include: "posts"}, nil)
	s.ErrorContains(err, "no include resolver")

	var gotInclude any
	conn := New(s.gate, newRegistry(s.T()), WithIncludeResolver(core.IncludeResolverFunc(
		func(ctx context.Context, model string, rows []core.Record, include any, options map[string]any) ([]core.Record, error) {
			gotInclude = include
			for _, r := range rows {
				r["posts"] = []any{}
			}
			return rows, nil
		})))

	rows, err := conn.FindMany(s.ctx, "users", &core.Filter{Include: "posts"}, map[string]any{"depth": 1})
	s.Require().NoError(err)
	s.Equal("posts", gotInclude)
	s.Require().Len(rows, 2)
	s.Contains(rows[0], "posts")
}

func (s *ConnectorSuite) TestDestroy() {
	s.seed(1, 2, 3)

	s.Require().NoError(s.conn.Destroy(s.ctx, "users", "a"))

	n, err := s.conn.DestroyAll(s.ctx, "users", map[string]any{"age": map[string]any{"gte": 3}})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.conn.DestroyAll(s.ctx, "users", nil)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.conn.Count(s.ctx, "users", nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ConnectorSuite) TestUpdateReturnsReplacedCount() {
	s.seed(1, 2, 3)

	n, err := s.conn.Update(s.ctx, "users", map[string]any{"age": map[string]any{"lt": 3}}, core.Record{"name": "young"})
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.conn.UpdateAll(s.ctx, "users", nil, core.Record{"name": "young"})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.conn.Count(s.ctx, "users", map[string]any{"name": "young"})
	s.Require().NoError(err)
	s.Equal(int64(3), n)
}

func (s *ConnectorSuite) TestUpdateAttributesTouchesOneRow() {
	s.seed(1, 2)

	var nilMap map[string]any
	merged, err := s.conn.UpdateAttributes(s.ctx, "users", "a", core.Record{"name": "Ann", "meta": nilMap})
	s.Require().NoError(err)
	s.Equal(core.Record{"id": "a", "name": "Ann", "meta": nil}, merged)

	other, err := s.conn.Find(s.ctx, "users", "b")
	s.Require().NoError(err)
	s.NotContains(other, "name")

	updated, err := s.conn.Find(s.ctx, "users", "a")
	s.Require().NoError(err)
	s.Equal("Ann", updated["name"])
	s.Equal(1, updated["age"])
}

func (s *ConnectorSuite) TestMetadata() {
	s.Equal([]string{"db", "nosql", "memory"}, s.conn.Types())
	s.Equal("string", s.conn.DefaultIDType())
}

func TestConnectorSuite(t *testing.T) {
	suite.Run(t, new(ConnectorSuite))
}

// reportingStore acknowledges deletes with a store-reported error.
type reportingStore struct {
	*store.MemoryStore
}

func (r reportingStore) Delete(ctx context.Context, collection string, pred core.Expr) (*core.WriteResult, error) {
	return &core.WriteResult{Deleted: 1, Errors: 1, FirstError: "disk full"}, nil
}

func TestStoreReportedError(t *testing.T) {
	ctx := context.Background()
	g := gate.New(func(ctx context.Context) (core.Store, error) {
		return reportingStore{store.NewMemoryStore()}, nil
	})
	_, err := g.Connect(ctx)
	require.NoError(t, err)

	n, err := New(g, nil).DestroyAll(ctx, "users", nil)
	assert.ErrorIs(t, err, core.ErrStoreReported)
	assert.Equal(t, int64(1), n)

	var storeErr *core.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "disk full", storeErr.Message)
}

func TestOperationsWaitForConnection(t *testing.T) {
	ctx := context.Background()
	g := gate.New(func(ctx context.Context) (core.Store, error) {
		return store.NewMemoryStore(), nil
	})
	conn := New(g, newRegistry(t))

	type outcome struct {
		id  any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		id, err := conn.Create(ctx, "users", core.Record{"id": "early", "born": 1700000000})
		done <- outcome{id, err}
	}()

	assert.Eventually(t, func() bool { return g.Pending() == 1 }, time.Second, time.Millisecond)

	_, err := g.Connect(ctx)
	require.NoError(t, err)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, "early", out.id)
	case <-time.After(time.Second):
		t.Fatal("deferred create did not complete")
	}

	rec, err := conn.Find(ctx, "users", "early")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec["born"])
}

func TestExpand(t *testing.T) {
	desc := &core.ModelDescriptor{Properties: map[string]core.Property{
		"at":   {Type: "Date"},
		"name": {Type: "String"},
	}}

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"integer seconds", int64(1700000000), time.Unix(1700000000, 0).UTC()},
		{"fractional seconds", 1700000000.5, time.Unix(1700000000, 500000000).UTC()},
		{"numeric string", "1700000000", time.Unix(1700000000, 0).UTC()},
		{"non-numeric string", "yesterday", "yesterday"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Expand(desc, core.Record{"at": tt.value, "name": "1700000000"})
			assert.Equal(t, tt.want, rec["at"])
			assert.Equal(t, "1700000000", rec["name"])
		})
	}
}
