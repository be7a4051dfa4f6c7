// Package resilience shields the relay from misbehaving gateway backends.
//
// A [Breaker] is a classic three-state circuit breaker (closed, open,
// half-open). The provider decorators in this package wrap the stt, llm and
// tts interfaces with one breaker each, so a backend that keeps failing is
// rejected locally instead of being hammered on every utterance. The
// pipeline already degrades on provider errors, which makes a fast
// [ErrOpen] rejection behave exactly like any other gateway failure.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without trying the
// backend.
var ErrOpen = errors.New("resilience: circuit open")

const (
	stateClosed = iota
	stateOpen
	stateHalfOpen
)

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before
	// letting probes through. Default: 30s.
	ResetTimeout time.Duration

	// ProbeBudget is how many probe calls the half-open state allows.
	// Default: 3.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeBudget  int

	mu         sync.Mutex
	state      int
	failures   int
	trippedAt  time.Time
	probes     int
	probeFails int
}

// NewBreaker returns a closed Breaker with defaults applied.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeBudget:  cfg.ProbeBudget,
	}
}

// Do runs fn unless the breaker is open. Failures while closed count toward
// tripping; a failure while half-open re-opens immediately; enough
// half-open successes close the breaker again.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case stateOpen:
		if time.Since(b.trippedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = stateHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("circuit half-open, probing backend", "breaker", b.name)

	case stateHalfOpen:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == stateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.trippedAt = time.Now()
	if probing {
		b.probeFails++
		b.state = stateOpen
		b.failures = b.maxFailures
		slog.Warn("circuit re-opened after failed probe", "breaker", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = stateOpen
		slog.Warn("circuit opened", "breaker", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = stateClosed
			b.failures = 0
			slog.Info("circuit closed", "breaker", b.name)
		}
		return
	}
	b.failures = 0
}

// Open reports whether a call made now would be rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.trippedAt) < b.resetTimeout
}
