package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/knowledge"
)

// Canonicalizer maps a surface form to a knowledge-base id, 0 when
// nothing matches. knowledge.Resolver satisfies it.
type Canonicalizer interface {
	ResolveEntity(ctx context.Context, surface string, kind knowledge.Kind, language string) (int64, error)
}

// GazetteerEntry is one known surface form. Language narrows the entry to
// utterances in that language; empty matches any.
type GazetteerEntry struct {
	Surface  string
	Type     string
	Language string
}

// Entity types the tagger emits. The place types map onto knowledge kinds
// for canonicalization; number and date are value entities.
const (
	EntityAttraction    = "attraction"
	EntityDestination   = "destination"
	EntityAccommodation = "accommodation"
	EntityRestaurant    = "restaurant"
	EntityEvent         = "event"
	EntityNumber        = "number"
	EntityDate          = "date"
)

var entityKinds = map[string]knowledge.Kind{
	EntityAttraction:    knowledge.KindAttraction,
	EntityDestination:   knowledge.KindDestination,
	EntityAccommodation: knowledge.KindAccommodation,
	EntityRestaurant:    knowledge.KindRestaurant,
	EntityEvent:         knowledge.KindEvent,
}

var numberPattern = regexp.MustCompile(`^[0-9٠-٩]+$`)

// dateWords maps normalized relative-date tokens to their canonical value.
var dateWords = map[string]string{
	"today":    "today",
	"tomorrow": "tomorrow",
	"tonight":  "tonight",
	"اليوم":    "today",
	"غدا":      "tomorrow",
	"غداً":     "tomorrow",
	"الليلة":   "tonight",
}

// EntityTagger finds gazetteer spans by longest match over normalized
// tokens, tags numbers and relative dates, and canonicalizes place
// entities through the knowledge base. Resolution failures keep the
// surface form.
type EntityTagger struct {
	index     map[string]GazetteerEntry
	maxTokens int
	resolver  Canonicalizer
	log       *logrus.Logger
}

// NewEntityTagger indexes the gazetteer. resolver may be nil, in which
// case entities keep their surface forms.
func NewEntityTagger(gazetteer []GazetteerEntry, resolver Canonicalizer, log *logrus.Logger) *EntityTagger {
	t := &EntityTagger{
		index:    make(map[string]GazetteerEntry, len(gazetteer)),
		resolver: resolver,
		log:      log,
	}
	for _, entry := range gazetteer {
		key := strings.Join(tokenize(entry.Surface), " ")
		if key == "" {
			continue
		}
		t.index[key] = entry
		if n := len(tokenize(entry.Surface)); n > t.maxTokens {
			t.maxTokens = n
		}
	}
	return t
}

// Tag extracts entities from text in the given language. Each token
// position belongs to at most one entity; longer gazetteer spans win over
// shorter ones starting at the same position.
func (t *EntityTagger) Tag(ctx context.Context, text, language string) []Entity {
	tokens := tokenize(text)
	var entities []Entity

	for i := 0; i < len(tokens); {
		if entity, span := t.matchAt(tokens, i, language); span > 0 {
			entities = append(entities, t.canonicalize(ctx, entity, language))
			i += span
			continue
		}
		if numberPattern.MatchString(tokens[i]) {
			entities = append(entities, Entity{
				Type:    EntityNumber,
				Surface: tokens[i],
				Value:   asciiDigits(tokens[i]),
			})
			i++
			continue
		}
		if value, ok := dateWords[tokens[i]]; ok {
			entities = append(entities, Entity{Type: EntityDate, Surface: tokens[i], Value: value})
			i++
			continue
		}
		i++
	}
	return entities
}

// matchAt tries gazetteer windows from longest to shortest at position i.
func (t *EntityTagger) matchAt(tokens []string, i int, language string) (Entity, int) {
	max := t.maxTokens
	if rest := len(tokens) - i; rest < max {
		max = rest
	}
	for n := max; n >= 1; n-- {
		key := strings.Join(tokens[i:i+n], " ")
		entry, ok := t.index[key]
		if !ok {
			continue
		}
		if entry.Language != "" && entry.Language != language {
			continue
		}
		return Entity{Type: entry.Type, Surface: entry.Surface}, n
	}
	return Entity{}, 0
}

func (t *EntityTagger) canonicalize(ctx context.Context, entity Entity, language string) Entity {
	kind, ok := entityKinds[entity.Type]
	if !ok || t.resolver == nil {
		return entity
	}
	id, err := t.resolver.ResolveEntity(ctx, entity.Surface, kind, language)
	if err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"type":    entity.Type,
			"surface": entity.Surface,
		}).Warn("entity canonicalization failed, keeping surface form")
		return entity
	}
	entity.ID = id
	return entity
}

// asciiDigits rewrites Arabic-Indic digits to ASCII so downstream slot
// values stay uniform.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '٠' && r <= '٩' {
			return '0' + (r - '٠')
		}
		return r
	}, s)
}
