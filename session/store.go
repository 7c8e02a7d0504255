package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/marhaba-ai/marhaba/common"
)

const (
	keyPrefix = "session:"

	// The breaker opens after this many consecutive failed logical calls
	// and stays open for breakerOpenFor before admitting one probe.
	breakerFailures = 3
	breakerOpenFor  = 15 * time.Second

	// Each logical primary call retries this many times beyond the first
	// attempt, doubling from retryBase and never exceeding retryCap. The
	// retried attempts share one breaker tally.
	primaryRetries = 2
	retryBase      = 100 * time.Millisecond
	retryCap       = 500 * time.Millisecond
)

// Options carries the store's tunables; the caller resolves them from
// configuration.
type Options struct {
	TTL           time.Duration
	RememberMeTTL time.Duration
}

// Credentials is issued once at session creation.
type Credentials struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// Validation is the summary returned for liveness checks.
type Validation struct {
	Valid        bool      `json:"valid"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
}

// Store persists session contexts. All primary-store traffic flows through
// the circuit breaker; while it is open every call is served by the
// in-process fallback without touching the network.
type Store struct {
	primary  redis.UniversalClient
	fallback *memoryStore
	breaker  *gobreaker.CircuitBreaker

	ttl         time.Duration
	rememberTTL time.Duration
	log         *logrus.Logger
	now         func() time.Time
}

func NewStore(primary redis.UniversalClient, opts Options, log *logrus.Logger) *Store {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.RememberMeTTL <= 0 {
		opts.RememberMeTTL = 30 * 24 * time.Hour
	}
	s := &Store{
		primary:     primary,
		fallback:    newMemoryStore(),
		ttl:         opts.TTL,
		rememberTTL: opts.RememberMeTTL,
		log:         log,
		now:         time.Now,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "session-primary",
		MaxRequests: 1,
		Timeout:     breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("session primary circuit changed state")
		},
	})
	return s
}

// Close stops the fallback janitor. The redis client is owned by the caller.
func (s *Store) Close() {
	s.fallback.close()
}

// Degraded reports whether session traffic is currently being absorbed by
// the fallback instead of the primary.
func (s *Store) Degraded() bool {
	return s.primary == nil || s.breaker.State() != gobreaker.StateClosed
}

func primaryKey(id string) string { return keyPrefix + id }

// Create issues a new session with a fresh id and bearer token and persists
// it. rememberMe selects the extended lifetime.
func (s *Store) Create(ctx context.Context, metadata map[string]any, rememberMe bool) (*Context, Credentials, error) {
	id, err := NewID()
	if err != nil {
		return nil, Credentials{}, common.WrapFault(common.KindInternal, "could not create session", err)
	}
	token, err := NewToken()
	if err != nil {
		return nil, Credentials{}, common.WrapFault(common.KindInternal, "could not create session", err)
	}

	now := s.now()
	ttl := s.ttlFor(rememberMe)
	c := &Context{
		ID:           id,
		Token:        token,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
		RememberMe:   rememberMe,
		Metadata:     metadata,
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, Credentials{}, err
	}
	return c, Credentials{Token: token, TokenType: "bearer", ExpiresIn: int64(ttl / time.Second)}, nil
}

// Get loads a context by id. A missing or expired session returns nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*Context, error) {
	if id == "" {
		return nil, nil
	}
	now := s.now()

	var data []byte
	err := s.primaryDo(ctx, func(ctx context.Context) error {
		b, err := s.primary.Get(ctx, primaryKey(id)).Bytes()
		if err == redis.Nil {
			data = nil
			return nil
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		if !breakerOpen(err) {
			s.log.WithError(err).WithField("session_id", id).Warn("session primary read failed, consulting fallback")
		}
		b, ok := s.fallback.get(id, now)
		if !ok {
			return nil, nil
		}
		data = b
	}
	if data == nil {
		return nil, nil
	}

	c, err := decodeContext(data)
	if err != nil {
		return nil, common.WrapFault(common.KindInternal, "stored session is unreadable", err)
	}
	if c.Expired(now) {
		return nil, nil
	}
	return c, nil
}

// Save persists the context to the primary and mirrors it into the fallback.
// The write is last-writer-wins; a stored version that is not exactly one
// behind the one being written is logged as a conflicting overwrite. Save
// only fails when the record cannot be encoded or the session has already
// expired; a primary outage degrades to the fallback silently.
func (s *Store) Save(ctx context.Context, c *Context) error {
	if c == nil || c.ID == "" {
		return common.NewFault(common.KindBadInput, "session context has no id")
	}
	// LastActiveAt carries the time captured at request entry; reusing it
	// for the TTL arithmetic keeps fallback and primary expiries aligned.
	now := c.LastActiveAt
	if now.IsZero() {
		now = s.now()
	}
	remaining := c.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return common.NewFault(common.KindSessionExpired, "session has expired")
	}

	c.Version++
	data, err := encodeContext(c)
	if err != nil {
		return common.WrapFault(common.KindInternal, "could not persist session", err)
	}

	s.fallback.set(c.ID, data, c.ExpiresAt)

	err = s.primaryDo(ctx, func(ctx context.Context) error {
		return s.writePrimary(ctx, c, data, remaining)
	})
	if err != nil {
		if !breakerOpen(err) {
			s.log.WithError(err).WithField("session_id", c.ID).Warn("session save degraded to fallback")
		}
	}
	return nil
}

// writePrimary performs the version probe and the write as one logical call.
func (s *Store) writePrimary(ctx context.Context, c *Context, data []byte, remaining time.Duration) error {
	key := primaryKey(c.ID)

	prev, err := s.primary.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		// First write for this key.
	case err != nil:
		return err
	default:
		if pv := storedVersion(prev); pv >= 0 && pv != c.Version-1 {
			s.log.WithFields(logrus.Fields{
				"session_id":     c.ID,
				"stored_version": pv,
				"saving_version": c.Version,
			}).Warn("conflicting session overwrite, last writer wins")
		}
	}

	return s.primary.Set(ctx, key, data, remaining).Err()
}

// Delete removes the session from both backends. Deletion is idempotent and
// never surfaces a primary outage.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	s.fallback.delete(id)
	err := s.primaryDo(ctx, func(ctx context.Context) error {
		return s.primary.Del(ctx, primaryKey(id)).Err()
	})
	if err != nil && !breakerOpen(err) {
		s.log.WithError(err).WithField("session_id", id).Warn("session delete did not reach primary")
	}
	return nil
}

// Validate reports liveness without mutating the session.
func (s *Store) Validate(ctx context.Context, id string) (Validation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Validation{}, err
	}
	if c == nil {
		return Validation{}, nil
	}
	return Validation{Valid: true, CreatedAt: c.CreatedAt, LastAccessed: c.LastActiveAt}, nil
}

// Refresh extends the session lifetime from now and returns the new expiry.
func (s *Store) Refresh(ctx context.Context, id string) (time.Time, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if c == nil {
		return time.Time{}, common.NewFault(common.KindSessionExpired, "session not found or expired")
	}
	now := s.now()
	c.Touch(now)
	c.ExpiresAt = now.Add(s.ttlFor(c.RememberMe))
	if err := s.Save(ctx, c); err != nil {
		return time.Time{}, err
	}
	return c.ExpiresAt, nil
}

func (s *Store) ttlFor(rememberMe bool) time.Duration {
	if rememberMe {
		return s.rememberTTL
	}
	return s.ttl
}

// primaryDo runs one logical primary call through the breaker, retrying
// transient failures inside it so the whole call counts as a single tally.
func (s *Store) primaryDo(ctx context.Context, fn func(context.Context) error) error {
	if s.primary == nil {
		return gobreaker.ErrOpenState
	}
	_, err := s.breaker.Execute(func() (any, error) {
		var err error
		for attempt := 0; attempt <= primaryRetries; attempt++ {
			if attempt > 0 {
				if werr := waitBackoff(ctx, attempt); werr != nil {
					return nil, werr
				}
			}
			if err = fn(ctx); err == nil {
				return nil, nil
			}
		}
		return nil, err
	})
	return err
}

func waitBackoff(ctx context.Context, attempt int) error {
	d := retryBase << uint(attempt-1)
	if d > retryCap {
		d = retryCap
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
