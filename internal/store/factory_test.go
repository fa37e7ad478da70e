package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/config"
)

func TestRegisteredTypes(t *testing.T) {
	assert.Equal(t, []string{DynamoDBType, MemoryType, MongoDBType, MySQLType, RedisType}, GetRegisteredTypes())
	assert.True(t, IsTypeRegistered(MongoDBType))
	assert.False(t, IsTypeRegistered("cassandra"))

	v, ok := config.GetValidator(RedisType)
	require.True(t, ok)
	assert.Equal(t, RedisType, v.Type())
}

func TestRegisterFactoryPanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() { RegisterFactory(&memoryFactory{}) })
	assert.Panics(t, func() { RegisterFactory(nil) })
}

func TestCreateValidates(t *testing.T) {
	ctx := context.Background()

	_, err := Create(ctx, config.StoreConfig{})
	assert.ErrorContains(t, err, "store type is required")

	_, err = Create(ctx, config.StoreConfig{Type: "cassandra"})
	assert.ErrorContains(t, err, "unsupported store type")

	_, err = Create(ctx, config.StoreConfig{Type: DynamoDBType})
	assert.ErrorContains(t, err, "store.dynamodb.region is required")

	_, err = Create(ctx, config.StoreConfig{Type: RedisType, Redis: config.RedisConfig{DB: 16}})
	assert.ErrorContains(t, err, "store.redis.db")
}

func TestDefaultPorts(t *testing.T) {
	for storeType, port := range map[string]int{
		MongoDBType: 27017,
		MySQLType:   3306,
		RedisType:   6379,
	} {
		f, ok := Lookup(storeType)
		require.True(t, ok, storeType)
		assert.Equal(t, port, f.DefaultPort(), storeType)
	}
}
