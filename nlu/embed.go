package nlu

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

// Embedder maps text to a fixed-size vector. Implementations must be safe
// for concurrent use.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

const localEmbedderDims = 256

// LocalEmbedder is a deterministic hashing featurizer: word unigrams and
// character trigrams are hashed into a fixed number of buckets with a
// sign bit, then L2-normalized. It needs no external model and gives
// stable vectors for the same input, which makes it the default provider
// and the one the tests run against.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder returns a hashing featurizer with the given number of
// dimensions. Non-positive dims fall back to 256.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = localEmbedderDims
	}
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Name() string { return "local-hashing" }

func (e *LocalEmbedder) Dimensions() int { return e.dims }

// Embed hashes the normalized tokens of text into the vector. It never
// fails and ignores the context; the signature matches the interface so
// remote providers can drop in.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		e.bump(vec, token)
		runes := []rune(token)
		for i := 0; i+3 <= len(runes); i++ {
			e.bump(vec, "#"+string(runes[i:i+3]))
		}
	}
	normalize(vec)
	return vec, nil
}

func (e *LocalEmbedder) bump(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

// LangChainEmbedder adapts a langchaingo embeddings provider to the
// Embedder interface so remote models (OpenAI, Ollama and friends) can
// back the pipeline.
type LangChainEmbedder struct {
	name  string
	dims  int
	inner embeddings.Embedder
}

// NewLangChainEmbedder wraps inner under the given provider name. dims
// must match what the provider actually returns.
func NewLangChainEmbedder(name string, inner embeddings.Embedder, dims int) *LangChainEmbedder {
	return &LangChainEmbedder{name: name, dims: dims, inner: inner}
}

func (e *LangChainEmbedder) Name() string { return e.name }

func (e *LangChainEmbedder) Dimensions() int { return e.dims }

func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text with %s: %w", e.name, err)
	}
	if len(vec) != e.dims {
		return nil, fmt.Errorf("embedder %s returned %d dimensions, expected %d", e.name, len(vec), e.dims)
	}
	return vec, nil
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit. Works for Latin and Arabic script alike.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// cosine returns the cosine similarity of two vectors, 0 when either is
// empty or all zero.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
