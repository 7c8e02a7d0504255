package nlu

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// intentMargin is the minimum lead the best intent needs over the runner
// up before the classifier commits to it.
const intentMargin = 0.05

// IntentExample is one labeled training utterance.
type IntentExample struct {
	Intent string
	Text   string
}

// IntentClassifier scores an utterance against per-intent prototype
// vectors, each the mean of its example embeddings. Prototypes are built
// lazily on the first Classify so constructing the classifier stays
// cheap.
type IntentClassifier struct {
	embedder Embedder
	examples []IntentExample

	mu     sync.Mutex
	protos map[string][]float32
}

// NewIntentClassifier builds a classifier over the given examples.
func NewIntentClassifier(embedder Embedder, examples []IntentExample) *IntentClassifier {
	return &IntentClassifier{embedder: embedder, examples: examples}
}

// Classify returns the best-matching intent and its cosine score. When
// the lead over the runner-up intent is under the margin, or no intents
// are registered, it returns the fallback intent.
func (c *IntentClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	protos, err := c.prototypes(ctx)
	if err != nil {
		return IntentFallback, 0, err
	}
	if len(protos) == 0 {
		return IntentFallback, 0, nil
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return IntentFallback, 0, fmt.Errorf("failed to embed utterance: %w", err)
	}

	best, runnerUp := "", 0.0
	bestScore := -1.0
	for intent, proto := range protos {
		score := cosine(vec, proto)
		switch {
		case score > bestScore:
			runnerUp = bestScore
			best, bestScore = intent, score
		case score > runnerUp:
			runnerUp = score
		}
	}
	if runnerUp < 0 {
		runnerUp = 0
	}
	if bestScore-runnerUp < intentMargin {
		return IntentFallback, bestScore, nil
	}
	return best, bestScore, nil
}

// Intents returns the registered intent names in sorted order.
func (c *IntentClassifier) Intents() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ex := range c.examples {
		if !seen[ex.Intent] {
			seen[ex.Intent] = true
			names = append(names, ex.Intent)
		}
	}
	sort.Strings(names)
	return names
}

func (c *IntentClassifier) prototypes(ctx context.Context) (map[string][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.protos != nil {
		return c.protos, nil
	}

	sums := make(map[string][]float32)
	counts := make(map[string]int)
	for _, ex := range c.examples {
		vec, err := c.embedder.Embed(ctx, ex.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed example for intent %s: %w", ex.Intent, err)
		}
		sum := sums[ex.Intent]
		if sum == nil {
			sum = make([]float32, len(vec))
			sums[ex.Intent] = sum
		}
		for i := range vec {
			sum[i] += vec[i]
		}
		counts[ex.Intent]++
	}

	protos := make(map[string][]float32, len(sums))
	for intent, sum := range sums {
		n := float32(counts[intent])
		for i := range sum {
			sum[i] /= n
		}
		normalize(sum)
		protos[intent] = sum
	}
	c.protos = protos
	return protos, nil
}
