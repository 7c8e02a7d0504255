// Package rag answers open questions from the knowledge corpus. A question
// is embedded, nearby entities are retrieved and re-ranked, and a language
// model writes the final answer grounded on those snippets. Every stage has
// a cheaper fallback so the pipeline degrades instead of failing: no vector
// index means text search, no language model means quoting the best match,
// no matches means an honest "I don't know".
package rag

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/knowledge"
	"github.com/marhaba-ai/marhaba/nlu"
	"github.com/marhaba-ai/marhaba/session"
)

const (
	// DefaultTopK is how many snippets reach the prompt.
	DefaultTopK = 8
	// DefaultSnippetBudget bounds the concatenated snippet bytes.
	DefaultSnippetBudget = 4096
	// DefaultHistoryTurns is how much recent conversation the prompt sees.
	DefaultHistoryTurns = 4

	// Re-rank weights. Retrieval similarity dominates; freshness or
	// editorial popularity only breaks near-ties.
	vectorWeight = 0.8
	auxWeight    = 0.2

	answerMaxTokens = 512
)

// Searcher is the slice of the knowledge base retrieval needs. It is
// satisfied by *knowledge.Repository.
type Searcher interface {
	Find(ctx context.Context, kind knowledge.Kind, query string, filters map[string]any, limit int, language string) (knowledge.Page, error)
	Similar(ctx context.Context, kind knowledge.Kind, embedding []float32, limit int) (knowledge.Page, error)
}

// Caller invokes hub services; the pipeline only ever calls llm.complete.
type Caller interface {
	Execute(ctx context.Context, service, method string, params map[string]any) (map[string]any, error)
}

// Source names one entity an answer was grounded on.
type Source struct {
	Kind knowledge.Kind `json:"kind"`
	ID   int64          `json:"id"`
	Name string         `json:"name"`
}

// Answer is the pipeline result. NoInformation means the corpus had nothing
// relevant; FromFallback means the model was unavailable and the text is the
// best candidate's own description.
type Answer struct {
	Text          string
	Sources       []Source
	NoInformation bool
	FromFallback  bool
}

// Options tune the pipeline. Zero values select the defaults.
type Options struct {
	TopK          int
	SnippetBudget int
	HistoryTurns  int
	// Kinds to vector-search. Defaults to every embedding-backed kind.
	Kinds []knowledge.Kind
	// TextKinds to fall back to. Defaults to every kind.
	TextKinds []knowledge.Kind
}

// Pipeline wires the embedder, the knowledge base and the service hub into
// the retrieval-augmented answer path.
type Pipeline struct {
	search   Searcher
	embedder nlu.Embedder
	caller   Caller
	opts     Options
	defLang  string
	log      *logrus.Logger
	now      func() time.Time
}

// NewPipeline builds a pipeline. defaultLanguage is used when a candidate
// has no localized description for the request language.
func NewPipeline(search Searcher, embedder nlu.Embedder, caller Caller, defaultLanguage string, opts Options, log *logrus.Logger) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.SnippetBudget <= 0 {
		opts.SnippetBudget = DefaultSnippetBudget
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = knowledge.EmbeddingKinds()
	}
	if len(opts.TextKinds) == 0 {
		opts.TextKinds = knowledge.Kinds()
	}
	return &Pipeline{
		search:   search,
		embedder: embedder,
		caller:   caller,
		opts:     opts,
		defLang:  defaultLanguage,
		log:      log,
		now:      time.Now,
	}
}

type candidate struct {
	kind  knowledge.Kind
	both  knowledge.Ranked
	final float64
}

// Answer runs the full pipeline for one question.
func (p *Pipeline) Answer(ctx context.Context, question, language string, history []session.Turn) (Answer, error) {
	if language == "" {
		language = p.defLang
	}

	candidates := p.retrieve(ctx, question, language)
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	if len(candidates) == 0 {
		return Answer{NoInformation: true}, nil
	}

	p.rerank(candidates)
	if len(candidates) > p.opts.TopK {
		candidates = candidates[:p.opts.TopK]
	}

	prompt, used := buildPrompt(question, language, p.defLang, candidates, recent(history, p.opts.HistoryTurns), p.opts.SnippetBudget)
	sources := make([]Source, 0, len(used))
	for _, c := range used {
		sources = append(sources, Source{
			Kind: c.kind,
			ID:   c.both.Entity.ID,
			Name: c.both.Entity.LocalizedName(language, p.defLang),
		})
	}

	out, err := p.caller.Execute(ctx, "llm", "complete", map[string]any{
		"prompt":     prompt,
		"max_tokens": answerMaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		p.log.WithField("error", err.Error()).Warn("Completion failed, answering from best candidate")
		return p.fallbackAnswer(used, language), nil
	}

	text, _ := out["text"].(string)
	if text == "" {
		return p.fallbackAnswer(used, language), nil
	}
	return Answer{Text: text, Sources: sources}, nil
}

// retrieve gathers candidates, preferring the vector index and falling back
// to text search when embeddings are unavailable or match nothing.
func (p *Pipeline) retrieve(ctx context.Context, question, language string) []candidate {
	var candidates []candidate

	embedding, err := p.embedder.Embed(ctx, question)
	if err != nil {
		p.log.WithField("error", err.Error()).Warn("Question embedding failed, using text search")
	} else {
		for _, kind := range p.opts.Kinds {
			page, err := p.search.Similar(ctx, kind, embedding, p.opts.TopK)
			if err != nil {
				p.log.WithFields(logrus.Fields{
					"kind":  string(kind),
					"error": err.Error(),
				}).Warn("Vector retrieval failed for kind")
				continue
			}
			for _, r := range page.Items {
				candidates = append(candidates, candidate{kind: kind, both: r})
			}
		}
	}

	if len(candidates) > 0 || ctx.Err() != nil {
		return candidates
	}

	for _, kind := range p.opts.TextKinds {
		page, err := p.search.Find(ctx, kind, question, nil, p.opts.TopK, language)
		if err != nil {
			continue
		}
		for _, r := range page.Items {
			candidates = append(candidates, candidate{kind: kind, both: r})
		}
	}
	return candidates
}

// rerank orders candidates by blended score. The auxiliary component is the
// editorial popularity when the record carries one, otherwise how recently
// the record was updated, decaying to zero over a year.
func (p *Pipeline) rerank(candidates []candidate) {
	now := p.now()
	for i := range candidates {
		c := &candidates[i]
		c.final = vectorWeight*c.both.Score + auxWeight*p.auxScore(&c.both.Entity, now)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].final > candidates[j].final
	})
}

func (p *Pipeline) auxScore(e *knowledge.Entity, now time.Time) float64 {
	if pop, ok := e.Extra["popularity"]; ok {
		if f, ok := toFloat(pop); ok {
			return clamp01(f)
		}
	}
	if e.UpdatedAt.IsZero() {
		return 0
	}
	ageDays := now.Sub(e.UpdatedAt).Hours() / 24
	return clamp01(1 - ageDays/365)
}

func (p *Pipeline) fallbackAnswer(used []candidate, language string) Answer {
	for _, c := range used {
		desc := c.both.Entity.LocalizedDescription(language, p.defLang)
		if desc == "" {
			continue
		}
		return Answer{
			Text: desc,
			Sources: []Source{{
				Kind: c.kind,
				ID:   c.both.Entity.ID,
				Name: c.both.Entity.LocalizedName(language, p.defLang),
			}},
			FromFallback: true,
		}
	}
	return Answer{NoInformation: true}
}

func recent(history []session.Turn, n int) []session.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	default:
		return 0, false
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
