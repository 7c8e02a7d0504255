package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/db"
)

// resolveThreshold is the minimum normalized similarity for a fuzzy match
// to count as a resolution.
const resolveThreshold = 0.85

// lookupLimit bounds unqualified lookups.
const lookupLimit = 10

// Resolver canonicalizes surface forms ("the pyramids", "خان الخليلي") to
// knowledge-base ids and answers structured lookups.
type Resolver struct {
	r   *Repository
	log *logrus.Logger
}

func NewResolver(r *Repository, log *logrus.Logger) *Resolver {
	return &Resolver{r: r, log: log}
}

// Lookup returns entities of kind matching the structured filters.
func (res *Resolver) Lookup(ctx context.Context, kind Kind, filters map[string]any, language string) (Page, error) {
	k, err := res.r.Kind(kind)
	if err != nil {
		return Page{}, err
	}
	return k.Search(ctx, "", filters, lookupLimit, 0, language)
}

// ResolveEntity maps a surface form to an entity id, or 0 when nothing
// matches confidently. Matching tries the exact multilingual name in the
// requested language, then the default language, then trigram similarity at
// or above the acceptance threshold. Storage errors degrade to no
// resolution with a logged warning.
func (res *Resolver) ResolveEntity(ctx context.Context, surface string, kind Kind, language string) (int64, error) {
	surface = strings.TrimSpace(surface)
	if surface == "" {
		return 0, nil
	}
	k, err := res.r.Kind(kind)
	if err != nil {
		return 0, err
	}
	lang := res.r.language(language)

	for _, l := range res.nameLanguages(lang) {
		sql := fmt.Sprintf("SELECT id FROM %s WHERE lower(name->>'%s') = lower($1) LIMIT 1", k.d.table, l)
		rec, err := res.r.store.QueryRow(ctx, sql, surface)
		if err != nil {
			res.log.WithError(err).WithFields(logrus.Fields{
				"kind":    kind,
				"surface": surface,
			}).Warn("entity resolution query failed")
			return 0, nil
		}
		if rec != nil {
			return db.Int64(rec, "id"), nil
		}
	}

	return res.resolveFuzzy(ctx, k, surface, lang)
}

// resolveFuzzy runs the trigram pass over the requested and default
// language names.
func (res *Resolver) resolveFuzzy(ctx context.Context, k *KindRepo, surface, lang string) (int64, error) {
	simExprs := make([]string, 0, 2)
	for _, l := range res.nameLanguages(lang) {
		simExprs = append(simExprs, fmt.Sprintf("similarity(coalesce(name->>'%s', ''), $1)", l))
	}
	simExpr := simExprs[0]
	if len(simExprs) > 1 {
		simExpr = "GREATEST(" + strings.Join(simExprs, ", ") + ")"
	}

	sql := fmt.Sprintf(`SELECT id, %s AS sim FROM %s WHERE %s >= $2 ORDER BY sim DESC LIMIT 1`,
		simExpr, k.d.table, simExpr)
	rec, err := res.r.store.QueryRow(ctx, sql, surface, resolveThreshold)
	if err != nil {
		res.log.WithError(err).WithFields(logrus.Fields{
			"kind":    k.d.kind,
			"surface": surface,
		}).Warn("fuzzy entity resolution failed")
		return 0, nil
	}
	if rec == nil {
		return 0, nil
	}
	return db.Int64(rec, "id"), nil
}

// nameLanguages is the resolution order: requested language first, default
// language second when they differ.
func (res *Resolver) nameLanguages(lang string) []string {
	if lang == res.r.defLang {
		return []string{lang}
	}
	return []string{lang, res.r.defLang}
}
