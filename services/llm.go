package services

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/marhaba-ai/marhaba/common"
)

// LLMProvider exposes text completion over any langchaingo model. Completions
// are not idempotent, so the hub must register it without retries.
type LLMProvider struct {
	model llms.Model
}

// NewLLMProvider wraps a langchaingo model.
func NewLLMProvider(model llms.Model) *LLMProvider {
	return &LLMProvider{model: model}
}

func (p *LLMProvider) Name() string { return "llm" }

func (p *LLMProvider) CanHandle(method string) bool { return method == "complete" }

func (p *LLMProvider) Execute(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	prompt := paramString(params, "prompt")
	if prompt == "" {
		return nil, common.NewFault(common.KindBadInput, "completion needs a prompt")
	}

	var opts []llms.CallOption
	if mt := paramInt(params, "max_tokens"); mt > 0 {
		opts = append(opts, llms.WithMaxTokens(mt))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt, opts...)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text": strings.TrimSpace(text)}, nil
}

// StubModel is the offline completion backend used when no LLM provider is
// configured. It answers by echoing the first context snippet in the prompt,
// which keeps development setups and tests deterministic without an API key.
type StubModel struct{}

func (StubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return stubAnswer(prompt), nil
}

func (StubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var b strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				b.WriteString(tc.Text)
				b.WriteByte('\n')
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: stubAnswer(b.String())}},
	}, nil
}

// stubAnswer picks the first bulleted snippet out of a retrieval prompt.
func stubAnswer(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "- "); ok && rest != "" {
			return rest
		}
	}
	return "I do not have enough information to answer that."
}
