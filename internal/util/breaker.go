package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// HealthCheck reports whether the guarded backend answers again.
type HealthCheck func() bool

// BreakerSnapshot is a point-in-time view of a Breaker. RetryAt is set only
// while the breaker is open.
type BreakerSnapshot struct {
	Name     string
	State    BreakerState
	Failures int
	RetryAt  *time.Time
}

// Breaker rejects calls to one model operation after a run of service
// failures. An open breaker always admits a trial call once its cooldown has
// elapsed; a health check, when set, can only end the cooldown early.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	check      HealthCheck
	checkEvery time.Duration

	mu        sync.Mutex
	state     BreakerState
	failures  int
	retryAt   time.Time
	nextCheck time.Time
	checking  bool

	now    func() time.Time
	logger *zap.Logger
}

func NewBreaker(name string, threshold int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logger.With(zap.String("breaker", name)),
	}
}

// WithHealthCheck runs fn in the background at most once per interval while open.
func (b *Breaker) WithHealthCheck(interval time.Duration, fn HealthCheck) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.check = fn
	b.checkEvery = interval
	return b
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return true
	}

	now := b.now()
	if !now.Before(b.retryAt) {
		b.setState(BreakerHalfOpen)
		return true
	}

	if b.check != nil && !b.checking && !now.Before(b.nextCheck) {
		b.checking = true
		go b.runHealthCheck()
	}
	return false
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != BreakerClosed {
		b.setState(BreakerClosed)
	}
}

// Failure counts one service failure. A positive cooldown replaces the
// default for this opening (rate limits ask for a longer wait).
func (b *Breaker) Failure(cooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if cooldown <= 0 {
		cooldown = b.cooldown
	}

	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		now := b.now()
		b.retryAt = now.Add(cooldown)
		b.nextCheck = now.Add(b.checkEvery)
		b.setState(BreakerOpen)
		return
	}

	b.logger.Debug("Model call failure counted",
		zap.Int("failures", b.failures),
		zap.Int("threshold", b.threshold),
	)
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.retryAt = time.Time{}
	b.setState(BreakerClosed)
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{Name: b.name, State: b.state, Failures: b.failures}
	if b.state == BreakerOpen {
		retry := b.retryAt
		snap.RetryAt = &retry
	}
	return snap
}

func (b *Breaker) runHealthCheck() {
	healthy := b.check()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.checking = false
	if b.state != BreakerOpen {
		return
	}
	if healthy {
		b.setState(BreakerHalfOpen)
		return
	}
	b.nextCheck = b.now().Add(b.checkEvery)
}

// setState must be called with mu held.
func (b *Breaker) setState(next BreakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next

	fields := []zap.Field{
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Int("failures", b.failures),
	}
	if next == BreakerOpen {
		fields = append(fields, zap.Time("retry_at", b.retryAt))
		b.logger.Warn("Model breaker opened", fields...)
		return
	}
	b.logger.Info("Model breaker state changed", fields...)
}
