// Package services routes dialog actions to external providers behind a
// shared reliability layer. Every call runs under a per-service timeout,
// a bounded retry budget and a circuit breaker, so one misbehaving backend
// degrades its own feature instead of the whole conversation engine.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/marhaba-ai/marhaba/common"
)

// Provider is one external capability (weather, translation, language
// model). Execute must honour ctx cancellation; the hub owns timeouts and
// retries so providers should attempt each call exactly once.
type Provider interface {
	Name() string
	CanHandle(method string) bool
	Execute(ctx context.Context, method string, params map[string]any) (map[string]any, error)
}

// Policy tunes the reliability layer for one provider.
type Policy struct {
	// Timeout bounds a single attempt. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first. Only
	// idempotent providers should allow retries.
	Retries int
	// RetryBase is the first backoff delay, doubled each retry. Zero
	// selects DefaultRetryBase.
	RetryBase time.Duration
	// RetryCap bounds the backoff growth. Zero selects DefaultRetryCap.
	RetryCap time.Duration
	// RateLimit caps calls per second when > 0. Burst defaults to 1.
	RateLimit rate.Limit
	RateBurst int
}

const (
	DefaultTimeout   = 5 * time.Second
	DefaultRetryBase = 100 * time.Millisecond
	DefaultRetryCap  = 2 * time.Second

	breakerFailureThreshold = 3
	breakerOpenFor          = 15 * time.Second
)

// DefaultPolicy suits idempotent HTTP backends.
func DefaultPolicy() Policy {
	return Policy{Timeout: DefaultTimeout, Retries: 2}
}

// OncePolicy suits expensive non-idempotent calls such as LLM completions.
func OncePolicy(timeout time.Duration) Policy {
	return Policy{Timeout: timeout, Retries: 0}
}

type registration struct {
	provider Provider
	policy   Policy
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// Hub registers providers and executes calls against them. Registration
// happens at startup; Execute is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	providers map[string]*registration
	log       *logrus.Logger
}

// NewHub returns an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{providers: make(map[string]*registration), log: log}
}

// Register adds a provider under its own name. Registering the same name
// again replaces the previous provider and resets its breaker.
func (h *Hub) Register(p Provider, pol Policy) {
	if pol.Timeout <= 0 {
		pol.Timeout = DefaultTimeout
	}
	if pol.Retries < 0 {
		pol.Retries = 0
	}
	if pol.RetryBase <= 0 {
		pol.RetryBase = DefaultRetryBase
	}
	if pol.RetryCap <= 0 {
		pol.RetryCap = DefaultRetryCap
	}

	name := p.Name()
	reg := &registration{
		provider: p,
		policy:   pol,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "service-" + name,
			MaxRequests: 1,
			Timeout:     breakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(n string, from, to gobreaker.State) {
				h.log.WithFields(logrus.Fields{
					"breaker": n,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Service circuit breaker state changed")
			},
		}),
	}
	if pol.RateLimit > 0 {
		burst := pol.RateBurst
		if burst < 1 {
			burst = 1
		}
		reg.limiter = rate.NewLimiter(pol.RateLimit, burst)
	}

	h.mu.Lock()
	h.providers[name] = reg
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"service": name,
		"timeout": pol.Timeout,
		"retries": pol.Retries,
	}).Info("Service provider registered")
}

// Execute runs one logical call. Retries happen inside the breaker so a
// fully failed call counts as a single breaker tally, matching how the
// session store treats its primary.
func (h *Hub) Execute(ctx context.Context, service, method string, params map[string]any) (map[string]any, error) {
	h.mu.RLock()
	reg := h.providers[service]
	h.mu.RUnlock()

	if reg == nil {
		return nil, common.NewFault(common.KindBadInput, fmt.Sprintf("unknown service %q", service))
	}
	if !reg.provider.CanHandle(method) {
		return nil, common.NewFault(common.KindBadInput, fmt.Sprintf("service %q does not handle %q", service, method))
	}

	if reg.limiter != nil {
		if err := reg.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, common.WrapFault(common.KindTimeout, fmt.Sprintf("call to %s timed out waiting for rate limit", service), err)
			}
			return nil, common.WrapFault(common.KindServiceUnavailable, fmt.Sprintf("service %s is rate limited", service), err)
		}
	}

	out, err := reg.breaker.Execute(func() (interface{}, error) {
		return h.attempt(ctx, reg, method, params)
	})
	if err != nil {
		return nil, h.wrapError(ctx, service, err)
	}

	result, _ := out.(map[string]any)
	return result, nil
}

// attempt runs the retry loop for one logical call.
func (h *Hub) attempt(ctx context.Context, reg *registration, method string, params map[string]any) (map[string]any, error) {
	var lastErr error
	for i := 0; i <= reg.policy.Retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(reg.policy, i)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, reg.policy.Timeout)
		out, err := reg.provider.Execute(callCtx, method, params)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retriable(err) {
			break
		}
		h.log.WithFields(logrus.Fields{
			"service": reg.provider.Name(),
			"method":  method,
			"attempt": i + 1,
			"error":   err.Error(),
		}).Warn("Service call failed, retrying")
	}
	return nil, lastErr
}

// backoff doubles the base delay per retry: 100ms, 200ms, 400ms... capped.
func backoff(pol Policy, attempt int) time.Duration {
	d := pol.RetryBase * time.Duration(1<<uint(attempt-1))
	if d > pol.RetryCap {
		return pol.RetryCap
	}
	return d
}

// retriable reports whether another attempt could help. Client errors and
// caller mistakes never improve on retry; timeouts and server errors might.
func retriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	if common.IsKind(err, common.KindBadInput) || common.IsKind(err, common.KindNotFound) {
		return false
	}
	return true
}

func (h *Hub) wrapError(ctx context.Context, service string, err error) error {
	var fault *common.Fault
	if errors.As(err, &fault) {
		return err
	}
	if ctx.Err() != nil {
		return common.WrapFault(common.KindTimeout, fmt.Sprintf("call to %s timed out", service), err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return common.WrapFault(common.KindServiceUnavailable, fmt.Sprintf("service %s is temporarily unavailable", service), err)
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return common.WrapFault(common.KindBadInput, se.Message, err)
	}
	return common.WrapFault(common.KindServiceUnavailable, fmt.Sprintf("service %s failed", service), err)
}

// Known reports whether a provider is registered under the name.
func (h *Hub) Known(service string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.providers[service] != nil
}

// States exposes each provider's breaker state for health reporting.
func (h *Hub) States() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	states := make(map[string]string, len(h.providers))
	for name, reg := range h.providers {
		states[name] = reg.breaker.State().String()
	}
	return states
}

// Services lists registered provider names in sorted order.
func (h *Hub) Services() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
