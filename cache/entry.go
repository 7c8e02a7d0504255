package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the stored form of a cache value. The networked store holds it
// as a 4-byte big-endian length prefix followed by this JSON document, so a
// truncated write is detectable on read.
type envelope struct {
	V         int             `json:"v"`
	ExpiresAt int64           `json:"expires_at"`
	Hits      uint64          `json:"hits"`
	Payload   json.RawMessage `json:"payload"`
}

func encodeEntry(payload []byte, expiresAt time.Time, hits uint64) ([]byte, error) {
	env := envelope{
		V:         shapeVersion,
		ExpiresAt: expiresAt.UnixMilli(),
		Hits:      hits,
		Payload:   json.RawMessage(payload),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(body)))
	copy(framed[4:], body)
	return framed, nil
}

func decodeEntry(raw []byte) (*envelope, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("cache entry shorter than length prefix: %d bytes", len(raw))
	}
	want := binary.BigEndian.Uint32(raw[:4])
	body := raw[4:]
	if uint32(len(body)) != want {
		return nil, fmt.Errorf("cache entry length mismatch: prefix says %d, have %d", want, len(body))
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if env.V != shapeVersion {
		return nil, fmt.Errorf("cache entry shape version %d not supported", env.V)
	}
	return &env, nil
}

func (e *envelope) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.UnixMilli() >= e.ExpiresAt
}
