package analytics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultBuffer is the emit queue depth when the config leaves it zero.
const DefaultBuffer = 256

// LogSink writes events to the structured log. It is the sink of last
// resort when no broker is configured and is useful in development.
type LogSink struct {
	Log *logrus.Logger
}

func (s *LogSink) Record(event Event) error {
	s.Log.WithFields(logrus.Fields{
		"session_id": event.SessionID,
		"intent":     event.Intent,
		"latency_ms": event.LatencyMS,
		"outcome":    string(event.Outcome),
		"error_kind": event.ErrorKind,
		"degraded":   event.PrimaryStoreDegraded,
	}).Info("Turn recorded")
	return nil
}

func (s *LogSink) Close() error { return nil }

// Emitter decouples turn handling from analytics delivery. Emit never
// blocks: events go into a bounded buffer drained by one worker, and when
// the buffer is full the event is dropped and counted. Losing an analytics
// record must never cost a user their reply.
type Emitter struct {
	sink Sink
	ch   chan Event
	done chan struct{}
	once sync.Once
	log  *logrus.Logger

	emitted prometheus.Counter
	dropped prometheus.Counter
	failed  prometheus.Counter
}

// NewEmitter starts the delivery worker. Registering on a nil Registerer
// skips metrics export, which tests use.
func NewEmitter(sink Sink, buffer int, reg prometheus.Registerer, log *logrus.Logger) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	e := &Emitter{
		sink: sink,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		log:  log,
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marhaba_analytics_events_total",
			Help: "Turn events accepted for delivery.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marhaba_analytics_events_dropped_total",
			Help: "Turn events dropped because the buffer was full.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marhaba_analytics_delivery_failures_total",
			Help: "Events the sink failed to record.",
		}),
	}
	if reg != nil {
		reg.MustRegister(e.emitted, e.dropped, e.failed)
	}

	go e.run()
	return e
}

// Emit queues one event. Safe for concurrent use; never blocks.
func (e *Emitter) Emit(event Event) {
	select {
	case e.ch <- event:
		e.emitted.Inc()
	default:
		e.dropped.Inc()
		e.log.WithField("session_id", event.SessionID).Warn("Analytics buffer full, event dropped")
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for event := range e.ch {
		if err := e.sink.Record(event); err != nil {
			e.failed.Inc()
			e.log.WithFields(logrus.Fields{
				"session_id": event.SessionID,
				"error":      err.Error(),
			}).Warn("Failed to record analytics event")
		}
	}
}

// Close drains buffered events, stops the worker and closes the sink.
func (e *Emitter) Close() error {
	e.once.Do(func() {
		close(e.ch)
	})
	<-e.done
	return e.sink.Close()
}
