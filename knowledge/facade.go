package knowledge

import "context"

// Convenience wrappers over the per-kind repositories. Callers that hold a
// kind as data (dialog actions, retrieval) use these instead of managing
// KindRepo handles themselves.

// Entity fetches one record by kind and id.
func (r *Repository) Entity(ctx context.Context, kind Kind, id int64) (*Entity, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return nil, err
	}
	return k.Get(ctx, id)
}

// EntityBySlug fetches one record by kind and slug.
func (r *Repository) EntityBySlug(ctx context.Context, kind Kind, slug string) (*Entity, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return nil, err
	}
	return k.GetBySlug(ctx, slug)
}

// Find runs a text search over one kind, first page only.
func (r *Repository) Find(ctx context.Context, kind Kind, query string, filters map[string]any, limit int, language string) (Page, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return Page{}, err
	}
	return k.Search(ctx, query, filters, limit, 0, language)
}

// Similar runs a vector search over one kind.
func (r *Repository) Similar(ctx context.Context, kind Kind, embedding []float32, limit int) (Page, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return Page{}, err
	}
	return k.VectorSearch(ctx, embedding, nil, limit)
}

// Near runs a geo search over one kind.
func (r *Repository) Near(ctx context.Context, kind Kind, lat, lon, radiusKM float64, limit int) (Page, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return Page{}, err
	}
	return k.NearbyByPoint(ctx, lat, lon, radiusKM, limit)
}

// EmbeddingKinds lists the kinds whose tables carry a vector column, in the
// same stable order as Kinds.
func EmbeddingKinds() []Kind {
	var kinds []Kind
	for _, k := range Kinds() {
		if descriptors[k].hasEmbedding {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
