// Package chat is the conversation engine: it turns one user message plus a
// session context into one reply, coordinating language detection, dialog
// flow, knowledge lookups, retrieval answers and external services.
package chat

import (
	"fmt"
	"strings"

	"github.com/marhaba-ai/marhaba/common"
)

// MaxMessageBytes bounds the raw utterance size.
const MaxMessageBytes = 1024

// Response types. Errors surfaced through the envelope (as opposed to an
// HTTP error) still read as a normal assistant reply.
const (
	TypeText  = "text"
	TypeCard  = "card"
	TypeError = "error"
)

// Request is one inbound user message. SessionID is optional: absent or
// stale ids get a fresh session. Language pins the reply language and skips
// detection-based switching.
type Request struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	Language  string `json:"language,omitempty"`
}

// Validate normalizes the request and rejects what the engine cannot
// process. An empty message is allowed; the engine answers it with a
// clarification prompt instead of an error.
func (r *Request) Validate(languages []string) error {
	if len(r.Message) > MaxMessageBytes {
		return common.NewFault(common.KindBadInput,
			fmt.Sprintf("message exceeds %d bytes", MaxMessageBytes))
	}
	r.Message = strings.TrimSpace(r.Message)
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language != "" && !contains(languages, r.Language) {
		return common.NewFault(common.KindBadInput,
			fmt.Sprintf("unsupported language %q", r.Language))
	}
	return nil
}

// Response is one assistant reply.
type Response struct {
	SessionID    string         `json:"session_id"`
	Text         string         `json:"text"`
	ResponseType string         `json:"response_type"`
	Language     string         `json:"language"`
	Suggestions  []string       `json:"suggestions,omitempty"`
	DebugInfo    map[string]any `json:"debug_info,omitempty"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
