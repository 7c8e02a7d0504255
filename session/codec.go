package session

import (
	"encoding/json"
	"fmt"
)

// codecVersion is written as the "v" field of every stored record. Decoders
// accept any v >= 1; the field exists so a future layout change can be
// detected instead of silently misread.
const codecVersion = 1

type record struct {
	V int `json:"v"`
	*Context
}

func encodeContext(c *Context) ([]byte, error) {
	data, err := json.Marshal(record{V: codecVersion, Context: c})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", c.ID, err)
	}
	return data, nil
}

func decodeContext(data []byte) (*Context, error) {
	rec := record{Context: &Context{}}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	if rec.V < 1 {
		return nil, fmt.Errorf("session record version %d is invalid", rec.V)
	}
	return rec.Context, nil
}

// storedVersion extracts just the context version counter from an encoded
// record, for conflict detection without a full decode. Returns -1 when the
// record does not parse.
func storedVersion(data []byte) int64 {
	var probe struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return -1
	}
	return probe.Version
}
