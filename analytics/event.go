// Package analytics records one event per conversation turn. Events are
// emitted asynchronously through a bounded buffer into a pluggable sink, so
// a slow or dead analytics backend can never hold up a reply.
package analytics

import "time"

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Event is the canonical per-turn record. Entities maps entity type to the
// canonical value the turn resolved. ErrorKind is set only for error
// outcomes; PrimaryStoreDegraded marks turns served while the session store
// was running on its in-process fallback.
type Event struct {
	SessionID            string            `json:"session_id"`
	Intent               string            `json:"intent,omitempty"`
	Entities             map[string]string `json:"entities,omitempty"`
	LatencyMS            int64             `json:"latency_ms"`
	Outcome              Outcome           `json:"outcome"`
	ErrorKind            string            `json:"error_kind,omitempty"`
	PrimaryStoreDegraded bool              `json:"primary_store_degraded,omitempty"`
	At                   time.Time         `json:"at"`
}

// Sink delivers events to a backend. Record may block; the emitter calls it
// from a single worker goroutine.
type Sink interface {
	Record(event Event) error
	Close() error
}
