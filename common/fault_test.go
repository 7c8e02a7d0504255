package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFault_KindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "NilError",
			err:  nil,
			want: "",
		},
		{
			name: "DirectFault",
			err:  NewFault(KindNotFound, "attraction not found"),
			want: KindNotFound,
		},
		{
			name: "WrappedFault",
			err:  fmt.Errorf("failed to load session: %w", NewFault(KindSessionExpired, "session expired")),
			want: KindSessionExpired,
		},
		{
			name: "DeadlineExceeded",
			err:  context.DeadlineExceeded,
			want: KindTimeout,
		},
		{
			name: "Cancelled",
			err:  context.Canceled,
			want: KindTimeout,
		},
		{
			name: "UntypedError",
			err:  errors.New("boom"),
			want: KindInternal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestFault_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	f := WrapFault(KindServiceUnavailable, "weather service unavailable", cause)

	assert.True(t, errors.Is(f, cause))

	var extracted *Fault
	require.True(t, errors.As(fmt.Errorf("hub: %w", f), &extracted))
	assert.Equal(t, KindServiceUnavailable, extracted.Kind)
}

func TestFault_CorrelationID(t *testing.T) {
	f := NewFault(KindTimeout, "request timed out").WithID("abc-123")

	assert.Equal(t, "abc-123", CorrelationOf(f))
	assert.Equal(t, "abc-123", CorrelationOf(fmt.Errorf("wrapped: %w", f)))
	assert.Equal(t, "", CorrelationOf(errors.New("plain")))
}

func TestFault_UserMessage(t *testing.T) {
	assert.Equal(t, "request timed out", UserMessage(NewFault(KindTimeout, "request timed out")))
	assert.Equal(t, "something went wrong, please try again", UserMessage(errors.New("pq: relation attractions does not exist")))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"Empty", "", "<not set>"},
		{"Short", "short", "***"},
		{"ExactlyEight", "12345678", "***"},
		{"Long", "myverylongsecretkey123", "myve...y123"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MaskSecret(tc.secret))
		})
	}
}
