// Package playback sequences sign animations. A [Scheduler] holds one queue
// of vocabulary words, shows each for its resolved duration and moves on
// until the queue is exhausted.
//
// Every operation that replaces or interrupts the running sequence stops the
// pending timer and bumps a generation number, so a timer that fires late
// can never advance a queue it was not armed for.
package playback

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultDuration is how long a word is shown when no duration is known.
const DefaultDuration = 3 * time.Second

// State is the scheduler's playback state.
type State int

const (
	// StateIdle means nothing is playing: no queue was loaded yet, or
	// playback was stopped.
	StateIdle State = iota

	// StatePlaying means a word is on screen and a timer is pending.
	StatePlaying

	// StateFinished means the last word of the queue has been shown.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of a [Scheduler].
type Snapshot struct {
	State State
	Queue []string

	// Index is the position of the current word, len(Queue) once finished
	// and -1 while idle.
	Index int

	// Word is the word on screen, or "" unless State is StatePlaying.
	Word string

	// Duration is how long Word stays on screen.
	Duration time.Duration

	// Generation increases with every transition.
	Generation uint64
}

// Observer receives a [Snapshot] after every transition. It is called with
// the scheduler's lock held and must neither block nor call back into the
// scheduler.
type Observer func(Snapshot)

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithDefaultDuration sets the wait used for words without a resolved
// duration. Default: [DefaultDuration].
func WithDefaultDuration(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.fallback = d
		}
	}
}

// WithObserver registers fn to receive snapshots.
func WithObserver(fn Observer) Option {
	return func(s *Scheduler) { s.observer = fn }
}

// Scheduler plays one queue at a time. It is safe for concurrent use.
type Scheduler struct {
	clock    Clock
	fallback time.Duration
	observer Observer

	mu        sync.Mutex
	queue     []string
	durations map[string]time.Duration
	index     int
	state     State
	gen       uint64
	timer     Timer
	wait      time.Duration
}

// New returns an idle scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     SystemClock(),
		fallback:  DefaultDuration,
		durations: make(map[string]time.Duration),
		index:     -1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoadQueue replaces the queue with words and starts playing from the first
// word. durations replaces the known durations. An empty words is ignored
// and leaves the current playback untouched.
func (s *Scheduler) LoadQueue(words []string, durations map[string]time.Duration) {
	if len(words) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.queue = slices.Clone(words)
	s.durations = maps.Clone(durations)
	if s.durations == nil {
		s.durations = make(map[string]time.Duration)
	}
	s.index = 0
	s.playLocked()
}

// Advance moves to the next word immediately. It has no effect unless the
// scheduler is playing.
func (s *Scheduler) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return
	}
	s.cancelLocked()
	s.index++
	s.playLocked()
}

// Restart plays the current queue again from the first word. It has no
// effect when no queue was ever loaded.
func (s *Scheduler) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return
	}
	s.cancelLocked()
	s.index = 0
	s.playLocked()
}

// Stop cancels the pending wait and goes idle. The queue is kept so that
// [Scheduler.Restart] can replay it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	s.cancelLocked()
	s.state = StateIdle
	s.index = -1
	s.wait = 0
	s.notifyLocked()
}

// SetDurations merges m into the known durations. Only waits armed after
// the call use the new values.
func (s *Scheduler) SetDurations(m map[string]time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.durations, m)
}

// Snapshot returns the current state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// cancelLocked stops the pending timer and invalidates its callback.
func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// playLocked shows the word at s.index, or finishes when the queue is
// exhausted.
func (s *Scheduler) playLocked() {
	if s.index >= len(s.queue) {
		s.state = StateFinished
		s.wait = 0
		s.notifyLocked()
		return
	}
	s.state = StatePlaying
	word := s.queue[s.index]
	d, ok := s.durations[word]
	if !ok || d <= 0 {
		d = s.fallback
	}
	s.wait = d
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() { s.expire(gen) })
	s.notifyLocked()
}

// expire is the timer callback for the wait armed at generation gen.
func (s *Scheduler) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StatePlaying {
		return
	}
	s.timer = nil
	s.gen++
	s.index++
	s.playLocked()
}

func (s *Scheduler) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      s.state,
		Queue:      slices.Clone(s.queue),
		Index:      s.index,
		Generation: s.gen,
	}
	if s.state == StatePlaying {
		snap.Word = s.queue[s.index]
		snap.Duration = s.wait
	}
	return snap
}

func (s *Scheduler) notifyLocked() {
	if s.observer != nil {
		s.observer(s.snapshotLocked())
	}
}
