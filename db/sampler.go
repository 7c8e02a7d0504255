package db

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// sampleInterval is how often the pool is sampled.
	sampleInterval = 30 * time.Second

	// sampleRingSize is how many samples are retained for introspection.
	sampleRingSize = 1024
)

// PoolStat is a point-in-time snapshot of pool telemetry. Counter fields are
// cumulative since pool creation; the sampler differences them per interval.
type PoolStat struct {
	Active           int64
	Idle             int64
	Total            int64
	EmptyAcquires    int64
	CanceledAcquires int64
	AcquireCount     int64
	AcquireDuration  time.Duration
}

// StatProvider is the slice of Core the sampler needs.
type StatProvider interface {
	Stat() PoolStat
}

// PoolSample is one retained measurement.
type PoolSample struct {
	At            time.Time
	Active        int64
	Idle          int64
	Waiters       int64
	Errors        int64
	MeanAcquireMS float64
}

// Sampler periodically records pool samples into a bounded ring and mirrors
// the latest values onto prometheus gauges.
type Sampler struct {
	provider StatProvider
	interval time.Duration
	log      *logrus.Logger

	mu    sync.Mutex
	ring  [sampleRingSize]PoolSample
	head  int
	count int
	prev  PoolStat

	gaugeActive  prometheus.Gauge
	gaugeIdle    prometheus.Gauge
	gaugeAcquire prometheus.Gauge

	stop chan struct{}
	done chan struct{}
}

// NewSampler builds a sampler over the given provider. Registering on a nil
// Registerer skips metrics export, which tests use.
func NewSampler(provider StatProvider, reg prometheus.Registerer, log *logrus.Logger) *Sampler {
	s := &Sampler{
		provider: provider,
		interval: sampleInterval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		gaugeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marhaba_db_pool_active_connections",
			Help: "Connections currently checked out of the pool.",
		}),
		gaugeIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marhaba_db_pool_idle_connections",
			Help: "Connections sitting idle in the pool.",
		}),
		gaugeAcquire: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marhaba_db_pool_mean_acquire_ms",
			Help: "Mean connection acquisition latency over the last interval.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.gaugeActive, s.gaugeIdle, s.gaugeAcquire)
	}
	return s
}

// SetInterval overrides the sampling cadence. Call before Start.
func (s *Sampler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start launches the sampling loop. It runs until Stop or ctx cancellation.
func (s *Sampler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.SampleOnce()
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (s *Sampler) Stop() {
	close(s.stop)
	<-s.done
}

// SampleOnce takes a single sample immediately. The loop calls this on every
// tick; tests call it directly.
func (s *Sampler) SampleOnce() PoolSample {
	stat := s.provider.Stat()

	s.mu.Lock()
	defer s.mu.Unlock()

	acquires := stat.AcquireCount - s.prev.AcquireCount
	meanMS := 0.0
	if acquires > 0 {
		meanMS = float64((stat.AcquireDuration-s.prev.AcquireDuration).Milliseconds()) / float64(acquires)
	}

	sample := PoolSample{
		At:            time.Now(),
		Active:        stat.Active,
		Idle:          stat.Idle,
		Waiters:       stat.EmptyAcquires - s.prev.EmptyAcquires,
		Errors:        stat.CanceledAcquires - s.prev.CanceledAcquires,
		MeanAcquireMS: meanMS,
	}
	s.prev = stat

	s.ring[s.head] = sample
	s.head = (s.head + 1) % sampleRingSize
	if s.count < sampleRingSize {
		s.count++
	}

	s.gaugeActive.Set(float64(sample.Active))
	s.gaugeIdle.Set(float64(sample.Idle))
	s.gaugeAcquire.Set(sample.MeanAcquireMS)

	return sample
}

// Samples returns the retained samples, oldest first.
func (s *Sampler) Samples() []PoolSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PoolSample, 0, s.count)
	start := s.head - s.count
	if start < 0 {
		start += sampleRingSize
	}
	for i := 0; i < s.count; i++ {
		out = append(out, s.ring[(start+i)%sampleRingSize])
	}
	return out
}
