package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/db"
)

// VectorSearch returns the entities nearest to embedding under cosine
// distance, post-filtered by the AND-composed filters. When filtering
// leaves fewer than limit rows, the search is re-issued once with ef_search
// doubled (ceiling 400). Storage errors degrade to an empty page with a
// logged warning.
func (k *KindRepo) VectorSearch(ctx context.Context, embedding []float32, filters map[string]any, limit int) (Page, error) {
	if !k.d.hasEmbedding {
		return Page{}, common.NewFault(common.KindBadInput, fmt.Sprintf("%s records are not vector-indexed", k.d.kind))
	}
	if len(embedding) == 0 {
		return Page{}, common.NewFault(common.KindBadInput, "embedding must not be empty")
	}
	if limit <= 0 {
		return Page{Items: []Ranked{}, Limit: 0, Offset: 0}, nil
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := map[string]any{"op": "vector", "embedding": embedding, "limit": limit}
	for col, v := range filters {
		params["f_"+col] = v
	}
	if k.r.vectors != nil {
		var cached Page
		if k.r.vectors.Get(ctx, k.d.table, params, &cached) {
			return cached, nil
		}
	}

	rows, err := k.vectorQuery(ctx, embedding, filters, limit, k.r.efSearch)
	if err == nil && len(rows) < limit && k.r.efSearch < maxEFSearch {
		widened := k.r.efSearch * 2
		if widened > maxEFSearch {
			widened = maxEFSearch
		}
		rows, err = k.vectorQuery(ctx, embedding, filters, limit, widened)
	}
	if err != nil {
		k.r.log.WithError(err).WithField("kind", k.d.kind).Warn("vector search failed, returning empty page")
		return Page{Items: []Ranked{}, Limit: limit, Offset: 0}, nil
	}

	page, err := k.decodePage(rows, limit, 0)
	if err != nil {
		return Page{}, err
	}
	if k.r.vectors != nil {
		k.r.vectors.Set(ctx, k.d.table, params, page)
	}
	return page, nil
}

// vectorQuery runs one ANN pass inside a transaction so the ef_search
// override stays local to it.
func (k *KindRepo) vectorQuery(ctx context.Context, embedding []float32, filters map[string]any, limit, efSearch int) ([]db.Record, error) {
	args := []any{pgvector.NewVector(embedding)}
	where := []string{"embedding IS NOT NULL"}

	clauses, err := k.filterClauses(filters, &args)
	if err != nil {
		return nil, err
	}
	where = append(where, clauses...)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, 1 - (embedding <=> $1) AS score FROM %s", k.selectColumns(), k.d.table)
	b.WriteString(" WHERE " + strings.Join(where, " AND "))
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, limit)

	var rows []db.Record
	err = k.r.store.WithinTransaction(ctx, func(ctx context.Context, ex db.Executor) error {
		if _, err := ex.Exec(ctx, "SELECT set_config('hnsw.ef_search', $1, true)", strconv.Itoa(efSearch)); err != nil {
			return fmt.Errorf("failed to set ef_search: %w", err)
		}
		got, err := ex.Query(ctx, b.String(), args...)
		if err != nil {
			return err
		}
		rows = got
		return nil
	})
	return rows, err
}

// NearbyByPoint returns entities within radiusKM of (lat, lon), ordered by
// ascending great-circle distance, with the computed distance attached in
// kilometers.
func (k *KindRepo) NearbyByPoint(ctx context.Context, lat, lon, radiusKM float64, limit int) (Page, error) {
	if !k.d.hasLocation {
		return Page{}, common.NewFault(common.KindBadInput, fmt.Sprintf("%s records carry no location", k.d.kind))
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Page{}, common.NewFault(common.KindBadInput, "coordinates out of range")
	}
	if radiusKM <= 0 {
		return Page{}, common.NewFault(common.KindBadInput, "radius must be positive")
	}
	if limit <= 0 {
		return Page{Items: []Ranked{}, Limit: 0, Offset: 0}, nil
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := map[string]any{"op": "nearby", "lat": lat, "lon": lon, "radius_km": radiusKM, "limit": limit}
	if k.r.queries != nil {
		var cached Page
		if k.r.queries.Get(ctx, k.d.table, params, &cached) {
			return cached, nil
		}
	}

	// ST_MakePoint takes lon before lat.
	sql := fmt.Sprintf(`SELECT %s,
  ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) / 1000.0 AS distance_km
FROM %s
WHERE location IS NOT NULL
  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
ORDER BY distance_km
LIMIT $4`, k.selectColumns(), k.d.table)

	rows, err := k.r.store.Query(ctx, sql, lon, lat, radiusKM*1000.0, limit)
	if err != nil {
		k.r.log.WithError(err).WithFields(logrus.Fields{
			"kind":      k.d.kind,
			"radius_km": radiusKM,
		}).Warn("nearby search failed, returning empty page")
		return Page{Items: []Ranked{}, Limit: limit, Offset: 0}, nil
	}

	page, err := k.decodePage(rows, limit, 0)
	if err != nil {
		return Page{}, err
	}
	if k.r.queries != nil {
		k.r.queries.Set(ctx, k.d.table, params, page)
	}
	return page, nil
}
