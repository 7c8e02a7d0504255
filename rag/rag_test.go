package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/knowledge"
	"github.com/marhaba-ai/marhaba/session"
)

type fakeSearcher struct {
	similarCalls int
	findCalls    int
	similarFn    func(kind knowledge.Kind, embedding []float32, limit int) (knowledge.Page, error)
	findFn       func(kind knowledge.Kind, query string, limit int, language string) (knowledge.Page, error)
}

func (f *fakeSearcher) Similar(_ context.Context, kind knowledge.Kind, embedding []float32, limit int) (knowledge.Page, error) {
	f.similarCalls++
	if f.similarFn == nil {
		return knowledge.Page{}, nil
	}
	return f.similarFn(kind, embedding, limit)
}

func (f *fakeSearcher) Find(_ context.Context, kind knowledge.Kind, query string, _ map[string]any, limit int, language string) (knowledge.Page, error) {
	f.findCalls++
	if f.findFn == nil {
		return knowledge.Page{}, nil
	}
	return f.findFn(kind, query, limit, language)
}

type fakeCaller struct {
	calls  int
	prompt string
	out    map[string]any
	err    error
}

func (f *fakeCaller) Execute(_ context.Context, service, method string, params map[string]any) (map[string]any, error) {
	f.calls++
	f.prompt, _ = params["prompt"].(string)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return 4 }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

func ranked(id int64, name, desc string, score float64, updated time.Time) knowledge.Ranked {
	return knowledge.Ranked{
		Entity: knowledge.Entity{
			ID:          id,
			Name:        map[string]string{"en": name},
			Description: map[string]string{"en": desc},
			UpdatedAt:   updated,
		},
		Score: score,
	}
}

func newTestPipeline(s *fakeSearcher, e *fakeEmbedder, c *fakeCaller, opts Options) *Pipeline {
	log, _ := test.NewNullLogger()
	return NewPipeline(s, e, c, "en", opts, log)
}

func TestAnswerHappyPath(t *testing.T) {
	now := time.Now()
	s := &fakeSearcher{
		similarFn: func(kind knowledge.Kind, _ []float32, _ int) (knowledge.Page, error) {
			if kind != knowledge.KindAttraction {
				return knowledge.Page{}, nil
			}
			return knowledge.Page{Items: []knowledge.Ranked{
				ranked(42, "Pyramids of Giza", "The last standing wonder of the ancient world.", 0.91, now),
				ranked(43, "Saqqara", "Home of the step pyramid of Djoser.", 0.74, now),
			}}, nil
		},
	}
	c := &fakeCaller{out: map[string]any{"text": "The pyramids open at 8am."}}

	p := newTestPipeline(s, &fakeEmbedder{}, c, Options{})
	history := []session.Turn{{UserText: "hello", Reply: "Welcome!"}}

	a, err := p.Answer(context.Background(), "When do the pyramids open?", "en", history)
	require.NoError(t, err)

	assert.Equal(t, "The pyramids open at 8am.", a.Text)
	assert.False(t, a.NoInformation)
	assert.False(t, a.FromFallback)
	require.NotEmpty(t, a.Sources)
	assert.Equal(t, int64(42), a.Sources[0].ID)
	assert.Equal(t, "Pyramids of Giza", a.Sources[0].Name)

	assert.Contains(t, c.prompt, "- Pyramids of Giza: The last standing wonder")
	assert.Contains(t, c.prompt, "Reply in English.")
	assert.Contains(t, c.prompt, "User: hello")
	assert.Contains(t, c.prompt, "Question: When do the pyramids open?")
}

func TestAnswerRerankPrefersPopularOnTie(t *testing.T) {
	sleeper := ranked(1, "Quiet Museum", "A small museum.", 0.5, time.Time{})
	popular := ranked(2, "Khan el-Khalili", "The famous bazaar.", 0.5, time.Time{})
	popular.Extra = map[string]any{"popularity": 0.95}

	s := &fakeSearcher{
		similarFn: func(kind knowledge.Kind, _ []float32, _ int) (knowledge.Page, error) {
			if kind != knowledge.KindAttraction {
				return knowledge.Page{}, nil
			}
			return knowledge.Page{Items: []knowledge.Ranked{sleeper, popular}}, nil
		},
	}
	c := &fakeCaller{out: map[string]any{"text": "answer"}}

	p := newTestPipeline(s, &fakeEmbedder{}, c, Options{})
	a, err := p.Answer(context.Background(), "what should I see?", "en", nil)
	require.NoError(t, err)
	require.Len(t, a.Sources, 2)
	assert.Equal(t, int64(2), a.Sources[0].ID)
}

func TestAnswerTextFallbackWhenEmbeddingFails(t *testing.T) {
	s := &fakeSearcher{
		findFn: func(kind knowledge.Kind, query string, _ int, _ string) (knowledge.Page, error) {
			if kind != knowledge.KindFAQ {
				return knowledge.Page{}, nil
			}
			assert.Equal(t, "do I need a visa?", query)
			return knowledge.Page{Items: []knowledge.Ranked{
				ranked(9, "Visa requirements", "Most visitors can buy a visa on arrival.", 0.4, time.Now()),
			}}, nil
		},
	}
	c := &fakeCaller{out: map[string]any{"text": "Yes, on arrival."}}

	p := newTestPipeline(s, &fakeEmbedder{err: errors.New("model offline")}, c, Options{})
	a, err := p.Answer(context.Background(), "do I need a visa?", "en", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, s.similarCalls)
	assert.Positive(t, s.findCalls)
	assert.Equal(t, "Yes, on arrival.", a.Text)
}

func TestAnswerTextFallbackWhenVectorsEmpty(t *testing.T) {
	s := &fakeSearcher{
		findFn: func(kind knowledge.Kind, _ string, _ int, _ string) (knowledge.Page, error) {
			if kind != knowledge.KindPracticalInfo {
				return knowledge.Page{}, nil
			}
			return knowledge.Page{Items: []knowledge.Ranked{
				ranked(3, "Tipping", "Baksheesh of 10% is customary.", 0.2, time.Now()),
			}}, nil
		},
	}
	c := &fakeCaller{out: map[string]any{"text": "Tip around ten percent."}}

	p := newTestPipeline(s, &fakeEmbedder{}, c, Options{})
	a, err := p.Answer(context.Background(), "how much should I tip?", "en", nil)
	require.NoError(t, err)

	assert.Positive(t, s.similarCalls)
	assert.Positive(t, s.findCalls)
	assert.Equal(t, "Tip around ten percent.", a.Text)
}

func TestAnswerNoInformation(t *testing.T) {
	s := &fakeSearcher{}
	c := &fakeCaller{out: map[string]any{"text": "should not be called"}}

	p := newTestPipeline(s, &fakeEmbedder{}, c, Options{})
	a, err := p.Answer(context.Background(), "what is the meaning of life?", "en", nil)
	require.NoError(t, err)

	assert.True(t, a.NoInformation)
	assert.Equal(t, 0, c.calls)
}

func TestAnswerFallsBackToBestCandidateWhenLLMFails(t *testing.T) {
	s := &fakeSearcher{
		similarFn: func(kind knowledge.Kind, _ []float32, _ int) (knowledge.Page, error) {
			if kind != knowledge.KindDestination {
				return knowledge.Page{}, nil
			}
			return knowledge.Page{Items: []knowledge.Ranked{
				ranked(7, "Luxor", "An open-air museum on the Nile.", 0.8, time.Now()),
			}}, nil
		},
	}
	c := &fakeCaller{err: common.NewFault(common.KindServiceUnavailable, "llm down")}

	p := newTestPipeline(s, &fakeEmbedder{}, c, Options{})
	a, err := p.Answer(context.Background(), "tell me about luxor", "en", nil)
	require.NoError(t, err)

	assert.True(t, a.FromFallback)
	assert.Equal(t, "An open-air museum on the Nile.", a.Text)
	require.Len(t, a.Sources, 1)
	assert.Equal(t, int64(7), a.Sources[0].ID)
}

func TestAnswerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(&fakeSearcher{}, &fakeEmbedder{}, &fakeCaller{}, Options{})
	_, err := p.Answer(ctx, "anything", "en", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPromptBudget(t *testing.T) {
	long := strings.Repeat("very long description ", 60) // ~1.3 kB each
	var candidates []candidate
	for i := int64(1); i <= 6; i++ {
		candidates = append(candidates, candidate{
			kind: knowledge.KindAttraction,
			both: ranked(i, "Place", long, 0.5, time.Time{}),
		})
	}

	prompt, used := buildPrompt("q", "en", "en", candidates, nil, 4096)
	assert.Less(t, len(used), len(candidates))
	assert.NotEmpty(t, used)
	assert.Less(t, len(prompt), 4096+512)
	assert.True(t, utf8.ValidString(prompt))
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	s := "الأهرامات في الجيزة رائعة"
	for n := 0; n <= len(s); n++ {
		cut := truncateUTF8(s, n)
		assert.True(t, utf8.ValidString(cut))
		assert.LessOrEqual(t, len(cut), n)
	}
}

func TestRecentTurnsWindow(t *testing.T) {
	history := make([]session.Turn, 6)
	for i := range history {
		history[i].UserText = strings.Repeat("x", i+1)
	}
	got := recent(history, 4)
	require.Len(t, got, 4)
	assert.Equal(t, "xxx", got[0].UserText)
}
