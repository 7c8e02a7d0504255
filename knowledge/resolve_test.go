package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marhaba-ai/marhaba/db"
)

func TestResolveEntity_ExactMatchInRequestedLanguage(t *testing.T) {
	store := &fakeStore{
		queryRowFn: func(call int, sql string, args []any) (db.Record, error) {
			if strings.Contains(sql, "name->>'ar'") {
				return db.Record{"id": int64(42)}, nil
			}
			return nil, nil
		},
	}
	r, _ := newTestRepo(t, store, false)
	res := NewResolver(r, r.log)

	id, err := res.ResolveEntity(context.Background(), "أهرامات الجيزة", KindAttraction, "ar")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Len(t, store.rowQueries, 1, "requested language matched first, no fallback needed")
}

func TestResolveEntity_FallsBackToDefaultLanguageThenFuzzy(t *testing.T) {
	store := &fakeStore{
		queryRowFn: func(call int, sql string, args []any) (db.Record, error) {
			if strings.Contains(sql, "similarity(") {
				assert.Contains(t, args, 0.85, "acceptance threshold rides as a bind value")
				return db.Record{"id": int64(7), "sim": 0.91}, nil
			}
			return nil, nil
		},
	}
	r, _ := newTestRepo(t, store, false)
	res := NewResolver(r, r.log)

	id, err := res.ResolveEntity(context.Background(), "the piramids of giza", KindAttraction, "ar")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	require.Len(t, store.rowQueries, 3, "exact ar, exact en, then fuzzy")
	assert.Contains(t, store.rowQueries[0].sql, "name->>'ar'")
	assert.Contains(t, store.rowQueries[1].sql, "name->>'en'")
	assert.Contains(t, store.rowQueries[2].sql, "GREATEST(")
	assert.Contains(t, store.rowQueries[2].sql, "ORDER BY sim DESC")
}

func TestResolveEntity_NoConfidentMatchIsZero(t *testing.T) {
	store := &fakeStore{}
	r, _ := newTestRepo(t, store, false)
	res := NewResolver(r, r.log)

	id, err := res.ResolveEntity(context.Background(), "some unknown place", KindAttraction, "en")
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = res.ResolveEntity(context.Background(), "   ", KindAttraction, "en")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Len(t, store.rowQueries, 2, "blank surface form never reaches storage")
}

func TestResolveEntity_StorageErrorDegradesToUnresolved(t *testing.T) {
	store := &fakeStore{
		queryRowFn: func(int, string, []any) (db.Record, error) {
			return nil, errors.New("connection reset")
		},
	}
	r, hook := newTestRepo(t, store, false)
	res := NewResolver(r, r.log)

	id, err := res.ResolveEntity(context.Background(), "pyramids", KindAttraction, "en")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.NotEmpty(t, hook.AllEntries(), "degradation is logged")
}

func TestLookup_DelegatesToSearch(t *testing.T) {
	store := &fakeStore{
		queryFn: func(int, string, []any) ([]db.Record, error) {
			return []db.Record{attractionRow(1, "giza-pyramids", "Pyramids of Giza")}, nil
		},
	}
	r, _ := newTestRepo(t, store, false)
	res := NewResolver(r, r.log)

	page, err := res.Lookup(context.Background(), KindAttraction, map[string]any{"destination_id": int64(1)}, "en")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Contains(t, store.queries[0].sql, "destination_id = $1")

	_, err = res.Lookup(context.Background(), Kind("bogus"), nil, "en")
	assert.Error(t, err)
}
