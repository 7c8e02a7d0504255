// Package session persists conversation context across turns. The primary
// backend is a networked key-value store fronted by a circuit breaker; an
// in-process fallback keeps the assistant answering while the primary is
// unreachable.
package session

import (
	"time"
)

// historyWindow bounds the rolling conversation history kept per session.
const historyWindow = 20

// Turn is one exchange in the conversation history.
type Turn struct {
	UserText string            `json:"user_text"`
	Intent   string            `json:"intent,omitempty"`
	Entities map[string]string `json:"entities,omitempty"`
	Language string            `json:"language,omitempty"`
	Reply    string            `json:"reply"`
	At       time.Time         `json:"at"`
}

// SlotValue is a filled dialog slot together with the turn it was filled on,
// so the dialog manager can expire stale values.
type SlotValue struct {
	Value    string `json:"value"`
	FilledAt int    `json:"filled_at"`
}

// DialogState is where a session stands inside its active flow.
type DialogState struct {
	FlowID string               `json:"flow_id,omitempty"`
	NodeID string               `json:"node_id,omitempty"`
	Slots  map[string]SlotValue `json:"slots,omitempty"`
}

// Context is the canonical per-session record. Exactly one request mutates a
// Context at a time; the Version counter detects overlapping writers after
// the fact.
type Context struct {
	ID           string         `json:"id"`
	Token        string         `json:"token,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Language     string         `json:"language,omitempty"`
	RememberMe   bool           `json:"remember_me,omitempty"`
	Dialog       DialogState    `json:"dialog"`
	History      []Turn         `json:"history,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	TurnCount    int            `json:"turn_count"`
	Incomplete   bool           `json:"incomplete,omitempty"`
	Version      int64          `json:"version"`
}

// Touch records activity at now. LastActiveAt never moves backwards, which
// keeps it monotonic across saves even if clocks wobble between requests.
func (c *Context) Touch(now time.Time) {
	if now.After(c.LastActiveAt) {
		c.LastActiveAt = now
	}
}

// AddTurn appends to the history ring, dropping the oldest turn beyond the
// window, and advances the turn counter.
func (c *Context) AddTurn(t Turn) {
	c.History = append(c.History, t)
	if len(c.History) > historyWindow {
		c.History = c.History[len(c.History)-historyWindow:]
	}
	c.TurnCount++
}

// RecentTurns returns up to n most recent turns, oldest first.
func (c *Context) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	return c.History[len(c.History)-n:]
}

// TokenMatches reports whether tok is the bearer issued for this session.
// Tokens are opaque; equality is the whole contract.
func (c *Context) TokenMatches(tok string) bool {
	return c.Token != "" && c.Token == tok
}

// Expired reports whether the context is past its expiry at now.
func (c *Context) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
