// Package resilience guards calls to remote collaborators with a circuit
// breaker so that a failing rephrase service is bypassed instead of being
// retried on every transcript update.
//
// The breaker is a three-state machine (closed, open, half-open). While it is
// open, [Breaker.Execute] returns [ErrOpen] without calling the guarded
// function; callers treat that exactly like any other failure and take their
// local fallback path.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. One failed
	// probe re-opens the breaker; enough successful probes close it.
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero values select the defaults.
type Config struct {
	// Name labels the breaker in log records.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenProbes is the number of successful probes required to close the
	// breaker again. Default: 1.
	HalfOpenProbes int

	// Now returns the current time. Default: [time.Now].
	Now func() time.Time

	// OnStateChange, when set, is called after every transition. It runs with
	// the breaker's lock released.
	OnStateChange func(name string, from, to State)
}

// Breaker is a circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probes       int
	now          func() time.Time
	onChange     func(name string, from, to State)

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probesInUse int
	probeWins   int
}

// New creates a [Breaker] from cfg.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probes:       cfg.HalfOpenProbes,
		now:          cfg.Now,
		onChange:     cfg.OnStateChange,
	}
}

// Execute calls fn unless the breaker is open. The error from fn is returned
// unchanged. A failure caused by ctx being cancelled is not held against the
// guarded service.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}

	err = fn(ctx)

	switch {
	case err == nil:
		b.succeed(probe)
	case ctx.Err() != nil:
		b.release(probe)
	default:
		b.fail(probe)
	}
	return err
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probesInUse = 0
	b.probeWins = 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	var changed bool
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.probesInUse = 0
		b.probeWins = 0
		changed = true
	}
	if b.state == StateHalfOpen {
		if b.probesInUse >= b.probes {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.probesInUse++
		probe = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(StateOpen, StateHalfOpen)
	}
	return probe, nil
}

func (b *Breaker) succeed(probe bool) {
	b.mu.Lock()
	if !probe {
		b.failures = 0
		b.mu.Unlock()
		return
	}
	if b.state != StateHalfOpen {
		b.mu.Unlock()
		return
	}
	b.probeWins++
	b.probesInUse--
	if b.probeWins < b.probes {
		b.mu.Unlock()
		return
	}
	b.state = StateClosed
	b.failures = 0
	b.mu.Unlock()
	b.notify(StateHalfOpen, StateClosed)
}

func (b *Breaker) fail(probe bool) {
	b.mu.Lock()
	from := b.state
	if probe {
		if b.state != StateHalfOpen {
			b.mu.Unlock()
			return
		}
		b.trip()
		b.mu.Unlock()
		b.notify(from, StateOpen)
		return
	}
	b.failures++
	if b.state != StateClosed || b.failures < b.maxFailures {
		b.mu.Unlock()
		return
	}
	b.trip()
	b.mu.Unlock()
	b.notify(from, StateOpen)
}

// release returns a probe slot without judging the outcome.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.probesInUse > 0 {
		b.probesInUse--
	}
	b.mu.Unlock()
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probesInUse = 0
	b.probeWins = 0
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	if to == StateOpen {
		slog.Warn("circuit breaker opened", "name", b.name, "from", from.String())
	} else {
		slog.Info("circuit breaker state changed", "name", b.name, "from", from.String(), "to", to.String())
	}
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
