package db

import (
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccessors(t *testing.T) {
	now := time.Now()
	rec := Record{
		"slug":    "giza-pyramids",
		"id":      int64(42),
		"small":   int32(7),
		"rating":  4.7,
		"open":    true,
		"created": now,
	}

	assert.Equal(t, "giza-pyramids", String(rec, "slug"))
	assert.Equal(t, "", String(rec, "missing"))
	assert.EqualValues(t, 42, Int64(rec, "id"))
	assert.EqualValues(t, 7, Int64(rec, "small"))
	assert.InDelta(t, 4.7, Float64(rec, "rating"), 0.001)
	assert.True(t, Bool(rec, "open"))
	assert.Equal(t, now, Time(rec, "created"))
	assert.True(t, Time(rec, "missing").IsZero())
}

func TestRecordVector(t *testing.T) {
	rec := Record{
		"embedding": pgvector.NewVector([]float32{0.1, 0.2}),
		"raw":       []float32{0.3},
	}

	assert.Equal(t, []float32{0.1, 0.2}, Vector(rec, "embedding"))
	assert.Equal(t, []float32{0.3}, Vector(rec, "raw"))
	assert.Nil(t, Vector(rec, "missing"))
}

func TestJSONMap(t *testing.T) {
	t.Run("AlreadyDecoded", func(t *testing.T) {
		rec := Record{"extra": map[string]any{"rating": 4.5}}
		m, err := JSONMap(rec, "extra")
		require.NoError(t, err)
		assert.Equal(t, 4.5, m["rating"])
	})

	t.Run("RawBytes", func(t *testing.T) {
		rec := Record{"extra": []byte(`{"open_hours":"9-5"}`)}
		m, err := JSONMap(rec, "extra")
		require.NoError(t, err)
		assert.Equal(t, "9-5", m["open_hours"])
	})

	t.Run("StringForm", func(t *testing.T) {
		rec := Record{"extra": `{"a":1}`}
		m, err := JSONMap(rec, "extra")
		require.NoError(t, err)
		assert.EqualValues(t, 1, m["a"])
	})

	t.Run("Null", func(t *testing.T) {
		rec := Record{"extra": nil}
		m, err := JSONMap(rec, "extra")
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("Malformed", func(t *testing.T) {
		rec := Record{"extra": []byte(`{"a":`)}
		_, err := JSONMap(rec, "extra")
		assert.Error(t, err)
	})

	t.Run("WrongType", func(t *testing.T) {
		rec := Record{"extra": 12}
		_, err := JSONMap(rec, "extra")
		assert.Error(t, err)
	})
}

func TestStringMap(t *testing.T) {
	rec := Record{"name": map[string]any{"en": "Pyramids of Giza", "ar": "أهرامات الجيزة", "views": 9000}}

	m, err := StringMap(rec, "name")
	require.NoError(t, err)
	assert.Equal(t, "Pyramids of Giza", m["en"])
	assert.Equal(t, "أهرامات الجيزة", m["ar"])
	_, hasViews := m["views"]
	assert.False(t, hasViews, "non-string values are dropped")
}
