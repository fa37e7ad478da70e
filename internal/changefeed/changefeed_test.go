package changefeed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
)

type mockPublisher struct {
	mock.Mock

	mu     sync.Mutex
	events []*core.ChangeEvent
}

func (m *mockPublisher) Publish(ctx context.Context, events []*core.ChangeEvent) error {
	m.mu.Lock()
	m.events = append(m.events, events...)
	m.mu.Unlock()
	return m.Called(len(events)).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func (m *mockPublisher) received() []*core.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.ChangeEvent, len(m.events))
	copy(out, m.events)
	return out
}

func event(collection string, key any) *core.ChangeEvent {
	return &core.ChangeEvent{Collection: collection, Operation: core.ChangeCreate, Key: key, Affected: 1}
}

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, event("users", i)))
	}
	assert.ErrorIs(t, q.Enqueue(ctx, event("users", 3)), ErrQueueFull)
	assert.Equal(t, 3, q.Size())

	batch, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 0, batch[0].Key)
	assert.Equal(t, 1, batch[1].Key)

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(ctx, event("users", 4)), ErrQueueClosed)

	batch, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].Key)
}

func TestEmitterStampsAndDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)
	e := NewEmitter(q)

	first := event("users", "a")
	e.Emit(ctx, first)
	assert.False(t, first.Timestamp.IsZero())

	e.Emit(ctx, event("users", "b"))
	assert.Equal(t, 1, q.Size())
}

func TestRelayPublishesEveryEvent(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(100)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything).Return(nil)

	relay := NewRelay(q, pub, RelayConfig{DrainRate: 1000, BatchSize: 5, PollInterval: 5 * time.Millisecond})
	require.NoError(t, relay.Start(ctx))
	assert.True(t, relay.IsRunning())

	for i := 0; i < 12; i++ {
		require.NoError(t, q.Enqueue(ctx, event("users", i)))
	}

	assert.Eventually(t, func() bool { return relay.Published() == 12 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, relay.Stop())
	assert.False(t, relay.IsRunning())

	got := pub.received()
	require.Len(t, got, 12)
	for i, e := range got {
		assert.Equal(t, i, e.Key)
	}
	for _, c := range pub.Calls {
		assert.LessOrEqual(t, c.Arguments.Int(0), 5)
	}
}

func TestRelayFlushesOnStop(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(100)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything).Return(nil)

	relay := NewRelay(q, pub, RelayConfig{DrainRate: 1, BatchSize: 1, PollInterval: time.Hour})
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(ctx, event("users", i)))
	}
	require.NoError(t, relay.Start(ctx))
	require.NoError(t, relay.Stop())

	assert.Len(t, pub.received(), 4)
	assert.Zero(t, q.Size())
}

func TestRelayHonorsRate(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(100)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything).Return(nil)

	relay := NewRelay(q, pub, RelayConfig{DrainRate: 20, BatchSize: 1, PollInterval: time.Millisecond})
	for i := 0; i < 6; i++ {
		require.NoError(t, q.Enqueue(ctx, event("users", i)))
	}

	start := time.Now()
	require.NoError(t, relay.Start(ctx))
	assert.Eventually(t, func() bool { return relay.Published() == 6 }, 2*time.Second, time.Millisecond)
	require.NoError(t, relay.Stop())

	// One token up front, then 20/s for the remaining five.
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRelayCountsFailures(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything).Return(assert.AnError)

	relay := NewRelay(q, pub, RelayConfig{DrainRate: 1000, BatchSize: 10, PollInterval: time.Millisecond})
	require.NoError(t, q.Enqueue(ctx, event("users", 1)))
	require.NoError(t, relay.Start(ctx))
	assert.Eventually(t, func() bool { return relay.Failed() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, relay.Stop())
	assert.Zero(t, relay.Published())
}

func TestKafkaMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	msg, err := kafkaMessage(&core.ChangeEvent{
		Collection: "users",
		Operation:  core.ChangeUpdate,
		Affected:   3,
		Timestamp:  ts,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("users"), msg.Key)
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "operation", msg.Headers[0].Key)
	assert.Equal(t, []byte("update"), msg.Headers[0].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "users", decoded["collection"])
	assert.Equal(t, float64(3), decoded["affected"])
}

func TestNewPublisher(t *testing.T) {
	ctx := context.Background()

	p, err := NewPublisher(ctx, config.ChangeFeedConfig{Publisher: PublisherLog})
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)
	assert.NoError(t, p.Publish(ctx, []*core.ChangeEvent{event("users", 1)}))

	_, err = NewPublisher(ctx, config.ChangeFeedConfig{Publisher: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported change feed publisher")

	_, err = NewPublisher(ctx, config.ChangeFeedConfig{Publisher: PublisherKafka})
	assert.ErrorContains(t, err, "broker")
}
