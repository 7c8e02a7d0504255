package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marhaba-ai/marhaba/knowledge"
)

func TestTextPicksLanguageWithFallback(t *testing.T) {
	g := NewGenerator("en")

	assert.Contains(t, g.Text("en", "greeting", nil), "Welcome to Marhaba")
	assert.Contains(t, g.Text("ar", "greeting", nil), "أهلاً")
	// Unsupported language falls back to the default.
	assert.Contains(t, g.Text("fr", "greeting", nil), "Welcome to Marhaba")
}

func TestTextExpandsParams(t *testing.T) {
	g := NewGenerator("en")

	got := g.Text("en", "no_results", map[string]string{"destination": "Luxor"})
	assert.Equal(t, "I couldn't find any matches in Luxor.", got)
}

func TestTextUnknownTemplatePassesThrough(t *testing.T) {
	g := NewGenerator("en")

	assert.Equal(t, "custom_welcome", g.Text("en", "custom_welcome", nil))
	assert.Equal(t, "hello Luxor", g.Text("en", "hello {destination}",
		map[string]string{"destination": "Luxor"}))
}

func TestSuggestionsLocalizeKnownKeys(t *testing.T) {
	g := NewGenerator("en")

	got := g.Suggestions("en", []string{"top_attractions", "Visit the museum"})
	assert.Equal(t, []string{"Top attractions in Cairo", "Visit the museum"}, got)

	ar := g.Suggestions("ar", []string{"ask_weather"})
	assert.Equal(t, []string{"كيف الطقس في الأقصر؟"}, ar)

	assert.Nil(t, g.Suggestions("en", nil))
}

func TestConditionLabels(t *testing.T) {
	g := NewGenerator("en")

	assert.Equal(t, "clear skies", g.Condition("en", "clear"))
	assert.Equal(t, "صحو", g.Condition("ar", "clear"))
	assert.Equal(t, "haboob", g.Condition("en", "haboob"))
}

func TestEntityCard(t *testing.T) {
	g := NewGenerator("en")
	ent := &knowledge.Entity{
		Name:        map[string]string{"en": "Karnak Temple", "ar": "معبد الكرنك"},
		Description: map[string]string{"en": "A vast temple complex in Luxor."},
	}

	assert.Equal(t, "Karnak Temple\nA vast temple complex in Luxor.", g.EntityCard("en", ent))
	// Arabic name with description falling back to the default language.
	assert.Equal(t, "معبد الكرنك\nA vast temple complex in Luxor.", g.EntityCard("ar", ent))

	bare := &knowledge.Entity{Name: map[string]string{"en": "Karnak Temple"}}
	assert.Equal(t, "Karnak Temple", g.EntityCard("en", bare))
}

func TestResultListSkipsUnnamed(t *testing.T) {
	g := NewGenerator("en")
	items := []knowledge.Ranked{
		{Entity: knowledge.Entity{Name: map[string]string{"en": "Sofra"}}},
		{Entity: knowledge.Entity{Name: map[string]string{}}},
		{Entity: knowledge.Entity{Name: map[string]string{"en": "Zooba"}}},
	}

	assert.Equal(t, "- Sofra\n- Zooba", g.ResultList("en", items))
}
