package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/cache"
	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/db"
)

const (
	maxLimit  = 100
	maxOffset = 10000

	defaultEFSearch = 40
	maxEFSearch     = 400
)

// Store is what the repository needs from the database core.
type Store interface {
	db.Executor
	db.TxRunner
}

// Options carries repository tunables resolved from configuration.
type Options struct {
	EFSearch        int
	DefaultLanguage string
}

// Repository is the shared base behind every entity kind: query building,
// row decoding, caching hooks and error mapping live here once.
type Repository struct {
	store    Store
	queries  *cache.QueryCache
	vectors  *cache.VectorCache
	log      *logrus.Logger
	efSearch int
	defLang  string

	kinds map[Kind]*KindRepo
}

func NewRepository(store Store, queries *cache.QueryCache, vectors *cache.VectorCache, opts Options, log *logrus.Logger) *Repository {
	if opts.EFSearch <= 0 {
		opts.EFSearch = defaultEFSearch
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	r := &Repository{
		store:    store,
		queries:  queries,
		vectors:  vectors,
		log:      log,
		efSearch: opts.EFSearch,
		defLang:  opts.DefaultLanguage,
		kinds:    make(map[Kind]*KindRepo, len(descriptors)),
	}
	for kind, d := range descriptors {
		r.kinds[kind] = &KindRepo{r: r, d: d}
	}
	return r
}

// Kind returns the repository for one entity kind.
func (r *Repository) Kind(kind Kind) (*KindRepo, error) {
	k, ok := r.kinds[kind]
	if !ok {
		return nil, common.NewFault(common.KindBadInput, fmt.Sprintf("unknown entity kind %q", kind))
	}
	return k, nil
}

// DefaultLanguage is the language every record is guaranteed to carry.
func (r *Repository) DefaultLanguage() string { return r.defLang }

// language validates lang against the allow-list, falling back to the
// repository default.
func (r *Repository) language(lang string) string {
	safe, err := db.SafeLanguage(lang)
	if err != nil {
		return r.defLang
	}
	return safe
}

// KindRepo exposes the per-kind operations over the shared base.
type KindRepo struct {
	r *Repository
	d descriptor
}

func (k *KindRepo) Table() string { return k.d.table }

// Get loads one entity by id; a missing row returns nil, nil.
func (k *KindRepo) Get(ctx context.Context, id int64) (*Entity, error) {
	if id <= 0 {
		return nil, nil
	}
	params := map[string]any{"op": "get", "id": id}
	if k.r.queries != nil {
		var cached Entity
		if k.r.queries.Get(ctx, k.d.table, params, &cached) {
			return &cached, nil
		}
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", k.selectColumns(), k.d.table)
	rec, err := k.r.store.QueryRow(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", k.d.kind, id, err)
	}
	if rec == nil {
		return nil, nil
	}
	ent, err := k.decodeEntity(rec)
	if err != nil {
		return nil, err
	}
	if k.r.queries != nil {
		k.r.queries.Set(ctx, k.d.table, params, ent)
	}
	return ent, nil
}

// GetBySlug loads one entity by its stable slug; a missing row returns
// nil, nil.
func (k *KindRepo) GetBySlug(ctx context.Context, slug string) (*Entity, error) {
	if slug == "" {
		return nil, nil
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE slug = $1", k.selectColumns(), k.d.table)
	rec, err := k.r.store.QueryRow(ctx, sql, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %q: %w", k.d.kind, slug, err)
	}
	if rec == nil {
		return nil, nil
	}
	return k.decodeEntity(rec)
}

// Search returns a page of entities matching the text query and filters.
// Filters compose with AND; the query matches the requested language with a
// fallback to the default language. Underlying storage errors are logged
// and surface as an empty page.
func (k *KindRepo) Search(ctx context.Context, query string, filters map[string]any, limit, offset int, language string) (Page, error) {
	// A non-positive limit asks for nothing; answer without touching
	// storage or cache.
	if limit <= 0 {
		return Page{Items: []Ranked{}, Limit: 0, Offset: 0}, nil
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	} else if offset > maxOffset {
		offset = maxOffset
	}
	lang := k.r.language(language)

	params := map[string]any{"op": "search", "q": query, "limit": limit, "offset": offset, "language": lang}
	for col, v := range filters {
		params["f_"+col] = v
	}
	if k.r.queries != nil {
		var cached Page
		if k.r.queries.Get(ctx, k.d.table, params, &cached) {
			return cached, nil
		}
	}

	sql, args, err := k.buildSearch(query, filters, limit, offset, lang)
	if err != nil {
		return Page{}, err
	}
	rows, err := k.r.store.Query(ctx, sql, args...)
	if err != nil {
		k.r.log.WithError(err).WithFields(logrus.Fields{
			"kind":  k.d.kind,
			"query": query,
		}).Warn("search failed, returning empty page")
		return Page{Items: []Ranked{}, Limit: limit, Offset: offset}, nil
	}

	page, err := k.decodePage(rows, limit, offset)
	if err != nil {
		return Page{}, err
	}
	if k.r.queries != nil {
		k.r.queries.Set(ctx, k.d.table, params, page)
	}
	return page, nil
}

// buildSearch assembles the filtered, ranked, paginated SELECT.
func (k *KindRepo) buildSearch(query string, filters map[string]any, limit, offset int, lang string) (string, []any, error) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT %s FROM %s", k.selectColumns(), k.d.table)

	where, err := k.filterClauses(filters, &args)
	if err != nil {
		return "", nil, err
	}

	orderBy := "id"
	if query != "" {
		qPos := len(args) + 1
		args = append(args, query)

		current := fmt.Sprintf("%s @@ websearch_to_tsquery('%s', $%d)", ftsExpr(lang), tsConfig(lang), qPos)
		rank := fmt.Sprintf("ts_rank(%s, websearch_to_tsquery('%s', $%d)) DESC", ftsExpr(lang), tsConfig(lang), qPos)
		if lang != k.r.defLang {
			fallback := fmt.Sprintf("%s @@ websearch_to_tsquery('%s', $%d)", ftsExpr(k.r.defLang), tsConfig(k.r.defLang), qPos)
			where = append(where, "("+current+" OR "+fallback+")")
			rank += fmt.Sprintf(", ts_rank(%s, websearch_to_tsquery('%s', $%d)) DESC", ftsExpr(k.r.defLang), tsConfig(k.r.defLang), qPos)
		} else {
			where = append(where, current)
		}
		orderBy = rank
	}

	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	return b.String(), args, nil
}

// filterClauses renders AND-composed equality filters over allow-listed
// columns. Values always travel as bind arguments.
func (k *KindRepo) filterClauses(filters map[string]any, args *[]any) ([]string, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	clauses := make([]string, 0, len(cols))
	for _, col := range cols {
		safe, err := db.SafeColumn(k.d.table, col)
		if err != nil {
			return nil, common.WrapFault(common.KindBadInput, fmt.Sprintf("filter %q is not queryable", col), err)
		}
		*args = append(*args, filters[col])
		clauses = append(clauses, fmt.Sprintf("%s = $%d", safe, len(*args)))
	}
	return clauses, nil
}

// selectColumns is the shared projection for this kind.
func (k *KindRepo) selectColumns() string {
	cols := []string{"id", "slug", "name", "description", "extra", "created_at", "updated_at"}
	if k.d.hasEmbedding {
		cols = append(cols, "embedding")
	}
	if k.d.hasLocation {
		cols = append(cols, "ST_Y(location::geometry) AS lat", "ST_X(location::geometry) AS lon")
	}
	cols = append(cols, k.d.extraCols...)
	return strings.Join(cols, ", ")
}

// decodePage turns raw rows into a Page.
func (k *KindRepo) decodePage(rows []db.Record, limit, offset int) (Page, error) {
	items := make([]Ranked, 0, len(rows))
	for _, rec := range rows {
		ent, err := k.decodeEntity(rec)
		if err != nil {
			return Page{}, err
		}
		ranked := Ranked{Entity: *ent}
		if v, ok := rec["score"]; ok && v != nil {
			ranked.Score = db.Float64(rec, "score")
		}
		if v, ok := rec["distance_km"]; ok && v != nil {
			ranked.DistanceKM = db.Float64(rec, "distance_km")
		}
		items = append(items, ranked)
	}
	return Page{Items: items, Limit: limit, Offset: offset}, nil
}

// decodeEntity maps one record onto the entity core. JSON documents are
// parsed here, once, at the storage boundary.
func (k *KindRepo) decodeEntity(rec db.Record) (*Entity, error) {
	ent := &Entity{
		ID:   db.Int64(rec, "id"),
		Kind: k.d.kind,
		Slug: db.String(rec, "slug"),
	}
	if ent.ID == 0 {
		return nil, fmt.Errorf("%s row has no id", k.d.kind)
	}

	name, err := db.StringMap(rec, "name")
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %d name: %w", k.d.kind, ent.ID, err)
	}
	ent.Name = name

	desc, err := db.StringMap(rec, "description")
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %d description: %w", k.d.kind, ent.ID, err)
	}
	ent.Description = desc

	extra, err := db.JSONMap(rec, "extra")
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %d extra: %w", k.d.kind, ent.ID, err)
	}
	ent.Extra = extra
	for _, col := range k.d.extraCols {
		if v, ok := rec[col]; ok && v != nil {
			if ent.Extra == nil {
				ent.Extra = make(map[string]any)
			}
			ent.Extra[col] = v
		}
	}

	if k.d.hasEmbedding {
		ent.Embedding = db.Vector(rec, "embedding")
	}
	if k.d.hasLocation && rec["lat"] != nil && rec["lon"] != nil {
		ent.Location = &GeoPoint{Lat: db.Float64(rec, "lat"), Lon: db.Float64(rec, "lon")}
	}
	ent.CreatedAt = db.Time(rec, "created_at")
	ent.UpdatedAt = db.Time(rec, "updated_at")
	return ent, nil
}

// tsConfig maps a language code to the text-search configuration backing
// its index expression. Languages without stemmer support use 'simple'.
func tsConfig(lang string) string {
	switch lang {
	case "en":
		return "english"
	case "fr":
		return "french"
	case "de":
		return "german"
	case "es":
		return "spanish"
	case "it":
		return "italian"
	case "ru":
		return "russian"
	default:
		return "simple"
	}
}

// ftsExpr is the indexed full-text expression for lang. lang must already
// be allow-listed.
func ftsExpr(lang string) string {
	return fmt.Sprintf("to_tsvector('%s', coalesce(name->>'%s', '') || ' ' || coalesce(description->>'%s', ''))",
		tsConfig(lang), lang, lang)
}
