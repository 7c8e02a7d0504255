package analytics

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records events in memory. A non-nil gate blocks Record until
// the gate closes, letting tests park the delivery worker deterministically.
type captureSink struct {
	mu        sync.Mutex
	recorded  []Event
	failFor   map[string]error
	closed    bool
	gate      chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func (s *captureSink) Record(event Event) error {
	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[event.SessionID]; err != nil {
		return err
	}
	s.recorded = append(s.recorded, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.recorded...)
}

func TestEmitterDeliversInOrder(t *testing.T) {
	log, _ := test.NewNullLogger()
	sink := &captureSink{}
	e := NewEmitter(sink, 8, nil, log)

	for i := 0; i < 5; i++ {
		e.Emit(Event{SessionID: fmt.Sprintf("s%d", i)})
	}
	require.NoError(t, e.Close())

	got := sink.events()
	require.Len(t, got, 5)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("s%d", i), ev.SessionID)
	}
	assert.True(t, sink.closed)
}

func TestEmitterDropsWhenBufferFull(t *testing.T) {
	sink := &captureSink{
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	log, hook := test.NewNullLogger()
	e := NewEmitter(sink, 1, nil, log)

	// The worker takes the first event and parks inside Record, leaving
	// exactly one buffer slot.
	e.Emit(Event{SessionID: "s0"})
	<-sink.started
	e.Emit(Event{SessionID: "s1"})
	e.Emit(Event{SessionID: "s2"})
	e.Emit(Event{SessionID: "s3"})

	close(sink.gate)
	require.NoError(t, e.Close())

	got := sink.events()
	require.Len(t, got, 2)
	assert.Equal(t, "s0", got[0].SessionID)
	assert.Equal(t, "s1", got[1].SessionID)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.dropped))

	drops := 0
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Analytics buffer full, event dropped" {
			drops++
		}
	}
	assert.Equal(t, 2, drops)
}

func TestEmitterContinuesAfterSinkError(t *testing.T) {
	sink := &captureSink{failFor: map[string]error{"bad": errors.New("broker gone")}}
	log, hook := test.NewNullLogger()
	e := NewEmitter(sink, 4, nil, log)

	e.Emit(Event{SessionID: "bad"})
	e.Emit(Event{SessionID: "good"})
	require.NoError(t, e.Close())

	got := sink.events()
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].SessionID)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.failed))

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Failed to record analytics event" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	log, _ := test.NewNullLogger()
	e := NewEmitter(&captureSink{}, 4, nil, log)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestEmitterRegistersMetrics(t *testing.T) {
	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	e := NewEmitter(&captureSink{}, 4, reg, log)

	e.Emit(Event{SessionID: "s1"})
	require.NoError(t, e.Close())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.emitted))
}

func TestLogSink(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := &LogSink{Log: log}

	require.NoError(t, s.Record(Event{
		SessionID: "s1",
		Intent:    "greeting",
		LatencyMS: 42,
		Outcome:   OutcomeSuccess,
	}))
	require.NoError(t, s.Close())

	require.Len(t, hook.Entries, 1)
	entry := hook.Entries[0]
	assert.Equal(t, "Turn recorded", entry.Message)
	assert.Equal(t, "s1", entry.Data["session_id"])
	assert.Equal(t, "success", entry.Data["outcome"])
}
