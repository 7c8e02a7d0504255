package chat

import (
	"strings"

	"github.com/marhaba-ai/marhaba/knowledge"
)

// Generator renders localized response text from template ids, entity
// records and result lists.
type Generator struct {
	defLang string
}

func NewGenerator(defaultLanguage string) *Generator {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Generator{defLang: defaultLanguage}
}

// Text renders templateID in language, expanding {name} placeholders from
// params. Unknown template ids are returned verbatim so a miswired flow
// override stays visible instead of failing silently.
func (g *Generator) Text(language, templateID string, params map[string]string) string {
	byLang, ok := templates[templateID]
	if !ok {
		return expand(templateID, params)
	}
	return expand(g.pick(byLang, language), params)
}

// Suggestions localizes flow suggestion keys. Unknown keys pass through
// verbatim so flows can carry literal suggestion text.
func (g *Generator) Suggestions(language string, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if byLang, ok := suggestionLabels[key]; ok {
			out = append(out, g.pick(byLang, language))
			continue
		}
		out = append(out, key)
	}
	return out
}

// Condition localizes a weather condition bucket reported by the weather
// provider.
func (g *Generator) Condition(language, key string) string {
	if byLang, ok := conditionLabels[key]; ok {
		return g.pick(byLang, language)
	}
	return key
}

// EntityCard renders a short card for one entity: localized name on the
// first line, the description below it.
func (g *Generator) EntityCard(language string, e *knowledge.Entity) string {
	name := e.LocalizedName(language, g.defLang)
	desc := e.LocalizedDescription(language, g.defLang)
	if desc == "" {
		return name
	}
	return name + "\n" + desc
}

// ResultList renders a bulleted list of entity names.
func (g *Generator) ResultList(language string, items []knowledge.Ranked) string {
	var b strings.Builder
	for i := range items {
		e := &items[i].Entity
		name := e.LocalizedName(language, g.defLang)
		if name == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(name)
	}
	return b.String()
}

func (g *Generator) pick(byLang map[string]string, language string) string {
	if v, ok := byLang[language]; ok && v != "" {
		return v
	}
	if v, ok := byLang[g.defLang]; ok && v != "" {
		return v
	}
	return byLang["en"]
}

func expand(s string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(s, "{") {
		return s
	}
	for k, v := range params {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
