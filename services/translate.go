package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/marhaba-ai/marhaba/common"
)

// TranslationProvider translates short phrases between English and Arabic.
// A small phrasebook covers the greetings and courtesies tourists actually
// ask for; everything else goes to the language model when one is wired in.
type TranslationProvider struct {
	model llms.Model
}

// NewTranslationProvider builds the provider. model may be nil, in which
// case only phrasebook entries translate.
func NewTranslationProvider(model llms.Model) *TranslationProvider {
	return &TranslationProvider{model: model}
}

func (p *TranslationProvider) Name() string { return "translation" }

func (p *TranslationProvider) CanHandle(method string) bool { return method == "translate" }

var phrasebook = map[string]map[string]string{
	"en->ar": {
		"hello":                 "مرحبا",
		"thank you":             "شكرا",
		"goodbye":               "مع السلامة",
		"yes":                   "نعم",
		"no":                    "لا",
		"how much":              "بكام",
		"where is":              "فين",
		"excuse me":             "لو سمحت",
		"help":                  "مساعدة",
		"i do not speak arabic": "أنا لا أتكلم العربية",
	},
	"ar->en": {
		"مرحبا":      "hello",
		"شكرا":       "thank you",
		"مع السلامة": "goodbye",
		"نعم":        "yes",
		"لا":         "no",
		"بكام":       "how much",
		"فين":        "where is",
		"لو سمحت":    "excuse me",
		"مساعدة":     "help",
	},
}

func (p *TranslationProvider) Execute(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	text := strings.TrimSpace(paramString(params, "text"))
	if text == "" {
		return nil, common.NewFault(common.KindBadInput, "translation needs text")
	}
	from := normalizeLang(paramString(params, "from"))
	to := normalizeLang(paramString(params, "to"))
	if to == "" {
		return nil, common.NewFault(common.KindBadInput, "translation needs a target language")
	}
	if from == "" {
		from = "en"
	}

	if entries, ok := phrasebook[from+"->"+to]; ok {
		if out, ok := entries[strings.ToLower(text)]; ok {
			return map[string]any{"text": out, "source": "phrasebook"}, nil
		}
	}

	if p.model == nil {
		return nil, fmt.Errorf("no translation backend for %s->%s", from, to)
	}

	prompt := fmt.Sprintf("Translate the following text from %s to %s. Reply with the translation only.\n\n%s", languageName(from), languageName(to), text)
	out, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text": strings.TrimSpace(out), "source": "llm"}, nil
}

func normalizeLang(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	switch code {
	case "english":
		return "en"
	case "arabic":
		return "ar"
	}
	return code
}

func languageName(code string) string {
	switch code {
	case "ar":
		return "Arabic"
	case "en":
		return "English"
	default:
		return code
	}
}
