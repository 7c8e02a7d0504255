// Package knowledge gives typed access to the tourism knowledge base:
// destinations, attractions, places to stay and eat, events, tours, FAQs and
// practical information, with text, vector and geospatial search.
package knowledge

import (
	"fmt"
	"time"

	"github.com/marhaba-ai/marhaba/db"
)

// Kind identifies an entity family and its backing table.
type Kind string

const (
	KindDestination    Kind = "destination"
	KindAttraction     Kind = "attraction"
	KindAccommodation  Kind = "accommodation"
	KindRestaurant     Kind = "restaurant"
	KindEvent          Kind = "event"
	KindTourPackage    Kind = "tour_package"
	KindFAQ            Kind = "faq"
	KindPracticalInfo  Kind = "practical_info"
	KindTransportRoute Kind = "transport_route"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Entity is the common record core shared by all kinds. Name and
// Description map language codes to localized text; Extra carries the
// kind-specific fields as an opaque document.
type Entity struct {
	ID          int64             `json:"id"`
	Kind        Kind              `json:"kind"`
	Slug        string            `json:"slug"`
	Name        map[string]string `json:"name"`
	Description map[string]string `json:"description,omitempty"`
	Location    *GeoPoint         `json:"location,omitempty"`
	Embedding   []float32         `json:"embedding,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
}

// LocalizedName returns the entity name in lang, falling back to fallback.
func (e *Entity) LocalizedName(lang, fallback string) string {
	if v, ok := e.Name[lang]; ok && v != "" {
		return v
	}
	return e.Name[fallback]
}

// LocalizedDescription returns the description in lang, falling back to
// fallback.
func (e *Entity) LocalizedDescription(lang, fallback string) string {
	if v, ok := e.Description[lang]; ok && v != "" {
		return v
	}
	return e.Description[fallback]
}

// Ranked is an entity with its retrieval rank attached. Score is cosine
// similarity for vector results; DistanceKM is set by nearby queries.
type Ranked struct {
	Entity
	Score      float64 `json:"score,omitempty"`
	DistanceKM float64 `json:"distance_km,omitempty"`
}

// Page is one slice of results.
type Page struct {
	Items  []Ranked `json:"items"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// descriptor captures what the backing table supports.
type descriptor struct {
	kind         Kind
	table        string
	hasLocation  bool
	hasEmbedding bool
	// extraCols are kind-specific columns surfaced through Extra on read
	// and accepted as filters.
	extraCols []string
}

var descriptors = map[Kind]descriptor{
	KindDestination: {
		kind: KindDestination, table: "destinations",
		hasLocation: true, hasEmbedding: true,
	},
	KindAttraction: {
		kind: KindAttraction, table: "attractions",
		hasLocation: true, hasEmbedding: true,
		extraCols: []string{"destination_id", "category_id", "curator_id"},
	},
	KindAccommodation: {
		kind: KindAccommodation, table: "accommodations",
		hasLocation: true, hasEmbedding: true,
		extraCols: []string{"destination_id", "category_id", "curator_id"},
	},
	KindRestaurant: {
		kind: KindRestaurant, table: "restaurants",
		hasLocation: true, hasEmbedding: true,
		extraCols: []string{"destination_id", "category_id", "curator_id"},
	},
	KindEvent: {
		kind: KindEvent, table: "events",
		hasLocation: true, hasEmbedding: true,
		extraCols: []string{"destination_id", "category_id", "starts_at", "ends_at"},
	},
	KindTourPackage: {
		kind: KindTourPackage, table: "tour_packages",
		hasEmbedding: true,
		extraCols:    []string{"destination_id"},
	},
	KindFAQ: {
		kind: KindFAQ, table: "faqs",
		hasEmbedding: true,
	},
	KindPracticalInfo: {
		kind: KindPracticalInfo, table: "practical_info",
		hasEmbedding: true,
	},
	KindTransportRoute: {
		kind: KindTransportRoute, table: "transportation_routes",
		extraCols: []string{"origin_id", "destination_id"},
	},
}

// Kinds lists every known entity kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindDestination, KindAttraction, KindAccommodation, KindRestaurant,
		KindEvent, KindTourPackage, KindFAQ, KindPracticalInfo,
		KindTransportRoute,
	}
}

// KindFromString maps an external kind label to a Kind.
func KindFromString(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := descriptors[k]; !ok {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

func init() {
	for _, d := range descriptors {
		cols := []string{"id", "slug", "name", "description", "extra", "created_at", "updated_at"}
		if d.hasEmbedding {
			cols = append(cols, "embedding")
		}
		cols = append(cols, d.extraCols...)
		db.RegisterTable(d.table, cols...)
	}
}
