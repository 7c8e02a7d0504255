package cache

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// QueryTTL bounds cached query pages.
	QueryTTL = 30 * time.Minute
	// VectorTTL bounds cached similarity results, which age slower than
	// filtered listings.
	VectorTTL = time.Hour
)

// QueryCache is the facet for filtered listing results, namespaced per
// table so writes can drop exactly the affected entries.
type QueryCache struct {
	c *TieredCache
}

func NewQueryCache(c *TieredCache) *QueryCache {
	return &QueryCache{c: c}
}

func queryNamespace(table string) string { return "query:" + table }

// Get unmarshals a cached page into dest and reports whether one was found.
func (q *QueryCache) Get(ctx context.Context, table string, params map[string]any, dest any) bool {
	payload, ok := q.c.Get(ctx, queryNamespace(table), params)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		q.c.log.WithError(err).WithField("table", table).Warn("cached page does not decode, treating as miss")
		return false
	}
	return true
}

func (q *QueryCache) Set(ctx context.Context, table string, params map[string]any, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		q.c.log.WithError(err).WithField("table", table).Warn("failed to encode page for cache")
		return
	}
	q.c.Set(ctx, queryNamespace(table), params, payload, QueryTTL)
}

func (q *QueryCache) Invalidate(ctx context.Context, table string) int {
	return q.c.InvalidateNamespace(ctx, queryNamespace(table))
}

// VectorCache is the facet for similarity-search results. Embeddings inside
// params are quantized by the shared key derivation, so re-embedding the
// same text lands on the same entry.
type VectorCache struct {
	c *TieredCache
}

func NewVectorCache(c *TieredCache) *VectorCache {
	return &VectorCache{c: c}
}

func vectorNamespace(table string) string { return "vector:" + table }

func (v *VectorCache) Get(ctx context.Context, table string, params map[string]any, dest any) bool {
	payload, ok := v.c.Get(ctx, vectorNamespace(table), params)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		v.c.log.WithError(err).WithField("table", table).Warn("cached result does not decode, treating as miss")
		return false
	}
	return true
}

func (v *VectorCache) Set(ctx context.Context, table string, params map[string]any, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		v.c.log.WithError(err).WithField("table", table).Warn("failed to encode result for cache")
		return
	}
	v.c.Set(ctx, vectorNamespace(table), params, payload, VectorTTL)
}

func (v *VectorCache) Invalidate(ctx context.Context, table string) int {
	return v.c.InvalidateNamespace(ctx, vectorNamespace(table))
}
