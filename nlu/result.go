// Package nlu turns raw utterances into structured meaning: detected
// language, classified intent and extracted entities. Every stage sits
// behind a lazily loaded model handle and degrades on failure instead of
// surfacing errors.
package nlu

// Result is the pipeline output for one utterance.
type Result struct {
	Language      string   `json:"language"`
	LanguageScore float64  `json:"language_score"`
	Intent        string   `json:"intent"`
	IntentScore   float64  `json:"intent_score"`
	Entities      []Entity `json:"entities,omitempty"`
}

// Entity is one extracted span. ID is the knowledge-base id when the
// surface form resolved; unresolved entities keep the surface form only.
type Entity struct {
	Type    string `json:"type"`
	Surface string `json:"surface"`
	Value   string `json:"value,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// IntentFallback is emitted whenever classification cannot commit to a
// specific intent.
const IntentFallback = "fallback"
