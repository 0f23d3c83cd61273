package provider

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when calls are refused because the breaker
// tripped. It is retryable in the pipeline sense: the run halts and the
// operator may retry once the cooldown passes.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Breaker is a simple consecutive-failure circuit breaker. After Threshold
// consecutive retryable failures it refuses calls for the Cooldown period,
// then allows a probe through.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
}

// NewBreaker creates a breaker with the given threshold and cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{Threshold: threshold, Cooldown: cooldown}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Threshold <= 0 || b.failures < b.Threshold {
		return true
	}
	if time.Since(b.openedAt) >= b.Cooldown {
		// Half-open: allow a probe, one failure re-opens
		b.failures = b.Threshold - 1
		return true
	}
	return false
}

// Record updates the breaker with a call outcome. Only retryable failures
// count toward tripping; permanent failures reflect the request, not the
// service.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || !IsRetryable(err) {
		b.failures = 0
		return
	}
	b.failures++
	if b.Threshold > 0 && b.failures == b.Threshold {
		b.openedAt = time.Now()
	}
}

// Open reports whether the breaker is currently refusing calls. Unlike
// Allow, it never transitions the breaker to half-open.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Threshold <= 0 || b.failures < b.Threshold {
		return false
	}
	return time.Since(b.openedAt) < b.Cooldown
}
