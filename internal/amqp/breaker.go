package amqp

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker opens after maxFailures consecutive publish failures. Once
// openTimeout has elapsed it goes half-open and lets a single publish
// through; the others are refused until that one is recorded.
type breaker struct {
	state        int32
	failureCount int64
	probing      int32

	mu          sync.Mutex
	lastFailure time.Time
}

func (b *breaker) isCircuitOpen() bool {
	switch atomic.LoadInt32(&b.state) {
	case StateClosed:
		return false
	case StateHalfOpen:
		return !atomic.CompareAndSwapInt32(&b.probing, 0, 1)
	}
	b.mu.Lock()
	elapsed := time.Since(b.lastFailure)
	b.mu.Unlock()
	if elapsed <= openTimeout {
		return true
	}
	atomic.CompareAndSwapInt32(&b.state, StateOpen, StateHalfOpen)
	return !atomic.CompareAndSwapInt32(&b.probing, 0, 1)
}

func (b *breaker) recordSuccess() {
	atomic.StoreInt64(&b.failureCount, 0)
	atomic.StoreInt32(&b.state, StateClosed)
	atomic.StoreInt32(&b.probing, 0)
}

func (b *breaker) recordFailure() {
	n := atomic.AddInt64(&b.failureCount, 1)
	b.mu.Lock()
	b.lastFailure = time.Now()
	b.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&b.state) == StateHalfOpen {
		atomic.StoreInt32(&b.state, StateOpen)
	}
	atomic.StoreInt32(&b.probing, 0)
}

// State reports the current breaker state.
func (b *breaker) State() int32 {
	return atomic.LoadInt32(&b.state)
}

// exponentialBackoff returns the reconnect delay for attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Second << uint(attempt)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
