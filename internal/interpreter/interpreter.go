// Package interpreter runs one live signing session: it turns transcript
// updates into translated, timed playback.
//
// An [Interpreter] is the single logical owner of the session state. At most
// one transcript cycle (translate, then preload durations, then load the
// queue) is in flight at a time. Updates that arrive meanwhile only record
// the latest text; when the cycle completes, whatever was added since is
// picked up by an immediate follow-up cycle. Each cycle carries a
// generation number and only the newest generation may replace the playback
// queue, so a slow translation can never overwrite a newer one and nothing
// started before [Interpreter.Clear] reaches the screen.
package interpreter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/playback"
	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/transcript"
)

// Translator converts a sentence into vocabulary words.
// [*rephrase.Rephraser] implements it.
type Translator interface {
	Rephrase(ctx context.Context, sentence string) rephrase.Result
}

// Durations resolves display durations ahead of playback.
// [*media.Resolver] implements it.
type Durations interface {
	Preload(ctx context.Context, words []string) map[string]time.Duration
}

// Player consumes translated queues. [*playback.Scheduler] implements it.
type Player interface {
	LoadQueue(words []string, durations map[string]time.Duration)
	Restart()
	Stop()
	Snapshot() playback.Snapshot
}

// Trigger names what started a translation.
type Trigger string

const (
	TriggerTranscript Trigger = "transcript"
	TriggerPlayAll    Trigger = "play_all"
)

// Translation reports a finished translation cycle.
type Translation struct {
	Generation uint64
	Trigger    Trigger
	Result     rephrase.Result
	Durations  map[string]time.Duration

	// Applied reports whether the result replaced the playback queue. It is
	// false for superseded cycles and for results without words.
	Applied bool
}

// Option configures an [Interpreter].
type Option func(*Interpreter)

// WithPreloadTimeout bounds duration preloading per cycle. Words still
// unresolved when it expires play with the default duration. Default: 5s.
func WithPreloadTimeout(d time.Duration) Option {
	return func(in *Interpreter) {
		if d > 0 {
			in.preloadTimeout = d
		}
	}
}

// WithTranslationHandler registers fn to be called after every cycle. fn runs
// on the cycle's goroutine without the interpreter lock held.
func WithTranslationHandler(fn func(Translation)) Option {
	return func(in *Interpreter) { in.onTranslation = fn }
}

// WithMetrics records queue loads on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(in *Interpreter) { in.metrics = m }
}

// Interpreter is one live session. It is safe for concurrent use.
type Interpreter struct {
	translator     Translator
	durations      Durations
	player         Player
	preloadTimeout time.Duration
	onTranslation  func(Translation)
	metrics        *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	cursor transcript.Cursor
	latest string
	busy   bool
	gen    uint64
	closed bool
}

// New creates an interpreter whose background work is bound to ctx.
func New(ctx context.Context, t Translator, d Durations, p Player, opts ...Option) *Interpreter {
	ctx, cancel := context.WithCancel(ctx)
	in := &Interpreter{
		translator:     t,
		durations:      d,
		player:         p,
		preloadTimeout: 5 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, o := range opts {
		o(in)
	}
	if in.metrics == nil {
		in.metrics = observe.DefaultMetrics()
	}
	return in
}

// OnTranscript records the latest full transcript text and starts a cycle
// for its new words unless one is already running.
func (in *Interpreter) OnTranscript(text string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.latest = text
	if !in.busy {
		in.startCycleLocked()
	}
}

// PlayAll translates the whole transcript received so far and plays it,
// superseding any cycle in flight.
func (in *Interpreter) PlayAll() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed || strings.TrimSpace(in.latest) == "" {
		return
	}
	in.cursor.Advance(in.latest)
	in.gen++
	in.spawnLocked(in.gen, TriggerPlayAll, in.latest)
}

// Replay plays the current queue again from the start.
func (in *Interpreter) Replay() {
	in.player.Restart()
}

// Stop halts playback and keeps the queue.
func (in *Interpreter) Stop() {
	in.player.Stop()
}

// Clear forgets the transcript, stops playback and invalidates every cycle
// in flight.
func (in *Interpreter) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.gen++
	in.cursor.Reset()
	in.latest = ""
	in.player.Stop()
}

// Playback returns the player's current state.
func (in *Interpreter) Playback() playback.Snapshot {
	return in.player.Snapshot()
}

// Close stops playback, cancels background work and waits for it to finish.
func (in *Interpreter) Close() {
	in.mu.Lock()
	in.closed = true
	in.gen++
	in.mu.Unlock()

	in.cancel()
	in.player.Stop()
	in.wg.Wait()
}

// startCycleLocked starts a transcript cycle for words not yet handed out.
func (in *Interpreter) startCycleLocked() {
	words := in.cursor.Advance(in.latest)
	if len(words) == 0 {
		return
	}
	in.busy = true
	in.gen++
	in.spawnLocked(in.gen, TriggerTranscript, strings.Join(words, " "))
}

func (in *Interpreter) spawnLocked(gen uint64, trigger Trigger, sentence string) {
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.run(gen, trigger, sentence)
	}()
}

func (in *Interpreter) run(gen uint64, trigger Trigger, sentence string) {
	ctx := in.ctx
	log := observe.Logger(ctx)

	res := in.translator.Rephrase(ctx, sentence)

	var durs map[string]time.Duration
	if len(res.Words) > 0 {
		pctx, cancel := context.WithTimeout(ctx, in.preloadTimeout)
		durs = in.durations.Preload(pctx, res.Words)
		cancel()
	}

	in.mu.Lock()
	if trigger == TriggerTranscript {
		in.busy = false
	}
	applied := false
	switch {
	case gen != in.gen || in.closed:
		log.Debug("discarding superseded translation", "generation", gen, "current", in.gen)
	case len(res.Words) == 0:
		log.Debug("nothing translatable", "sentence", sentence)
	default:
		in.player.LoadQueue(res.Words, durs)
		in.metrics.RecordQueueLoad(ctx, string(trigger))
		applied = true
	}
	in.mu.Unlock()

	if in.onTranslation != nil {
		in.onTranslation(Translation{
			Generation: gen,
			Trigger:    trigger,
			Result:     res,
			Durations:  durs,
			Applied:    applied,
		})
	}

	// Pick up text that arrived while this cycle was busy.
	in.mu.Lock()
	if !in.closed && !in.busy {
		in.startCycleLocked()
	}
	in.mu.Unlock()
}
