package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The 6-significant-digit rendering is part of the cache key contract for
// embeddings. Changing it silently orphans every stored vector entry, so the
// exact output is pinned here.
func TestQuantizeFloat_PinnedRendering(t *testing.T) {
	cases := map[float64]string{
		0.123456789:     "0.123457",
		1234567.0:       "1.23457e+06",
		0.1:             "0.1",
		-0.000012345678: "-1.23457e-05",
		0:               "0",
		42:              "42",
	}
	for in, want := range cases {
		assert.Equal(t, want, QuantizeFloat(in), "QuantizeFloat(%v)", in)
	}
}

func TestKey_Format(t *testing.T) {
	key := Key("query:attractions", map[string]any{"language": "en", "limit": 20})

	assert.True(t, strings.HasPrefix(key, "query:attractions:"))
	hash := strings.TrimPrefix(key, "query:attractions:")
	assert.Len(t, hash, 64, "sha-256 hex digest")
}

func TestKey_SensitiveToParamsAndNamespace(t *testing.T) {
	base := Key("query:attractions", map[string]any{"language": "en", "limit": 20})

	assert.NotEqual(t, base, Key("query:attractions", map[string]any{"language": "ar", "limit": 20}))
	assert.NotEqual(t, base, Key("query:attractions", map[string]any{"language": "en", "limit": 21}))
	assert.NotEqual(t, base, Key("query:restaurants", map[string]any{"language": "en", "limit": 20}))
	assert.Equal(t, base, Key("query:attractions", map[string]any{"limit": 20, "language": "en"}))
}

func TestKey_QuantizesEmbeddings(t *testing.T) {
	a := []float32{0.1234564, -0.9876541, 0.5}
	b := []float32{0.1234559, -0.9876544, 0.5}

	keyA := Key("vector:attractions", map[string]any{"embedding": a, "k": 8})
	keyB := Key("vector:attractions", map[string]any{"embedding": b, "k": 8})
	assert.Equal(t, keyA, keyB, "vectors equal at 6 significant digits share a key")

	c := []float32{0.1239, -0.9876541, 0.5}
	keyC := Key("vector:attractions", map[string]any{"embedding": c, "k": 8})
	assert.NotEqual(t, keyA, keyC)
}

func TestKey_Float32AndFloat64Agree(t *testing.T) {
	k32 := Key("vector:faqs", map[string]any{"embedding": []float32{0.1, 0.25, -3}})
	k64 := Key("vector:faqs", map[string]any{"embedding": []float64{0.1, 0.25, -3}})
	assert.Equal(t, k32, k64)
}
