package store

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

func TestEncodeDocumentTagsTimes(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 250*int(time.Millisecond), time.UTC)

	data, err := EncodeDocument(core.Record{"id": "a", "at": at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","at":{"$type":"TIME","epoch_time":1709296200.25,"timezone":"+00:00"}}`, string(data))
}

func TestDecodeDocument(t *testing.T) {
	rec, err := DecodeDocument([]byte(`{
		"id": "a",
		"count": 3,
		"ratio": 0.5,
		"at": {"$type": "TIME", "epoch_time": 1709296200.25, "timezone": "+00:00"},
		"nested": {"tags": ["x", 2]}
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(3), rec["count"])
	assert.Equal(t, 0.5, rec["ratio"])
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 250*int(time.Millisecond), time.UTC), rec["at"])
	assert.Equal(t, map[string]any{"tags": []any{"x", int64(2)}}, rec["nested"])
}

func TestDecodeDocumentRejectsNonObjects(t *testing.T) {
	_, err := DecodeDocument([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, "abc", KeyOf("abc"))
	assert.Equal(t, "7", KeyOf(7))
	assert.Equal(t, "7", KeyOf(7.0))
	assert.Equal(t, "7.5", KeyOf(float32(7.5)))
	assert.Equal(t, "", KeyOf(nil))
	assert.Equal(t, "true", KeyOf(true))
}

func TestKeyOfKeepsLargeIntegersDistinct(t *testing.T) {
	assert.Equal(t, "9007199254740992", KeyOf(int64(1<<53)))
	assert.Equal(t, "9007199254740993", KeyOf(int64(1<<53+1)))
	assert.Equal(t, "-9223372036854775808", KeyOf(int64(math.MinInt64)))
	assert.Equal(t, "18446744073709551615", KeyOf(uint64(math.MaxUint64)))
	assert.Equal(t, "9007199254740993", KeyOf(json.Number("9007199254740993")))
}
