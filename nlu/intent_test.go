package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingEmbedder errors on every call.
type failingEmbedder struct{ err error }

func (f *failingEmbedder) Name() string    { return "failing" }
func (f *failingEmbedder) Dimensions() int { return 8 }
func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, f.err
}

func TestIntentClassifier_ClassifiesDefaultExamples(t *testing.T) {
	c := NewIntentClassifier(NewLocalEmbedder(0), DefaultIntentExamples())
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "Greeting", text: "hello there", want: "greeting"},
		{name: "Transport", text: "how do I get from cairo to alexandria", want: "transport_info"},
		{name: "ArabicAttraction", text: "أخبرني عن أهرامات الجيزة", want: "attraction_info"},
		{name: "Weather", text: "what is the weather like in luxor", want: "weather_query"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			intent, score, err := c.Classify(ctx, tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, intent)
			assert.Positive(t, score)
		})
	}
}

func TestIntentClassifier_TieFallsBack(t *testing.T) {
	// Two intents trained on the same text produce identical prototypes,
	// so no lead can reach the margin.
	c := NewIntentClassifier(NewLocalEmbedder(0), []IntentExample{
		{Intent: "book_tour", Text: "book a ticket"},
		{Intent: "cancel_tour", Text: "book a ticket"},
	})

	intent, score, err := c.Classify(context.Background(), "book a ticket")
	require.NoError(t, err)
	assert.Equal(t, IntentFallback, intent)
	assert.Positive(t, score)
}

func TestIntentClassifier_NoExamplesFallsBack(t *testing.T) {
	c := NewIntentClassifier(NewLocalEmbedder(0), nil)
	intent, score, err := c.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, IntentFallback, intent)
	assert.Zero(t, score)
}

func TestIntentClassifier_EmbedderFailureSurfaces(t *testing.T) {
	c := NewIntentClassifier(&failingEmbedder{err: errors.New("model offline")}, DefaultIntentExamples())
	intent, _, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed")
	assert.Equal(t, IntentFallback, intent)
}

func TestIntentClassifier_PrototypesBuildOnce(t *testing.T) {
	embedder := &countingEmbedder{inner: NewLocalEmbedder(0)}
	examples := []IntentExample{
		{Intent: "greeting", Text: "hello"},
		{Intent: "farewell", Text: "goodbye"},
	}
	c := NewIntentClassifier(embedder, examples)
	ctx := context.Background()

	_, _, err := c.Classify(ctx, "hello")
	require.NoError(t, err)
	afterFirst := embedder.calls

	_, _, err = c.Classify(ctx, "goodbye")
	require.NoError(t, err)
	assert.Equal(t, afterFirst+1, embedder.calls, "second classify must only embed the utterance")
}

func TestIntentClassifier_Intents(t *testing.T) {
	c := NewIntentClassifier(NewLocalEmbedder(0), []IntentExample{
		{Intent: "greeting", Text: "hello"},
		{Intent: "farewell", Text: "bye"},
		{Intent: "greeting", Text: "hi"},
	})
	assert.Equal(t, []string{"farewell", "greeting"}, c.Intents())
}

// countingEmbedder counts Embed calls while delegating to a real embedder.
type countingEmbedder struct {
	inner Embedder
	calls int
}

func (c *countingEmbedder) Name() string    { return c.inner.Name() }
func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}
