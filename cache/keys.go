// Package cache implements the two-level cache fronting expensive reads: an
// in-process LRU ahead of a networked store. Cache failures never surface;
// they log and degrade to miss behavior.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// shapeVersion participates in every key hash so a change to the cached
// value layout invalidates old entries wholesale.
const shapeVersion = 1

// Key derives the canonical cache key for a namespace and parameter set:
// "<namespace>:<hex sha-256>" over the namespace, the sorted parameter
// pairs, and the value-shape version.
func Key(namespace string, params map[string]any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|v%d|", namespace, shapeVersion)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, canonicalValue(params[k]))
	}

	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// canonicalValue renders a parameter deterministically. Floating point
// values, embeddings above all, are quantized to 6 significant digits per
// component so near-identical vectors map to the same key across runs.
func canonicalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return QuantizeFloat(float64(t))
	case float64:
		return QuantizeFloat(t)
	case []float32:
		parts := make([]string, len(t))
		for i, f := range t {
			parts[i] = QuantizeFloat(float64(f))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []float64:
		parts := make([]string, len(t))
		for i, f := range t {
			parts[i] = QuantizeFloat(f)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []string:
		return "[" + strings.Join(t, ",") + "]"
	case []int64:
		parts := make([]string, len(t))
		for i, n := range t {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// QuantizeFloat renders a float at 6 significant digits. This is the fixed
// key-normalization for embedding components.
func QuantizeFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
