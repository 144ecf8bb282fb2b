// Package media resolves how long each sign animation should stay on screen.
//
// Animations carry no reliable duration metadata, so the length is estimated
// from the asset's transferred size (see [Classify]) and cached per word for
// the lifetime of the process.
package media

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/signflow/internal/observe"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultDuration is used for words without media and whenever an asset
// cannot be fetched.
const DefaultDuration = 3 * time.Second

const (
	smallAsset  = 100 << 10
	mediumAsset = 300 << 10
)

// Classify maps an asset size in bytes to a display duration:
// under 100 KiB is 2s, under 300 KiB is 3s, anything larger is 4s.
func Classify(size int64) time.Duration {
	switch {
	case size < smallAsset:
		return 2 * time.Second
	case size < mediumAsset:
		return 3 * time.Second
	default:
		return 4 * time.Second
	}
}

// Locator returns the fetchable URL of a word's animation.
// [*vocab.Store] implements it.
type Locator interface {
	MediaURL(word string) (string, bool)
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithCache shares c between resolvers. Default: a private cache.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithFetchTimeout bounds a single asset fetch. Default: 5s.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithConcurrency limits the number of parallel fetches per
// [Resolver.Preload] call. Default: 8.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMetrics records lookups on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver estimates and caches animation durations. It is safe for
// concurrent use; concurrent lookups of the same uncached word share one
// fetch.
type Resolver struct {
	loc          Locator
	fetcher      Fetcher
	cache        *Cache
	fetchTimeout time.Duration
	concurrency  int
	metrics      *observe.Metrics

	inflight singleflight.Group
}

// NewResolver returns a resolver that finds assets through loc and sizes
// them with f.
func NewResolver(loc Locator, f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		loc:          loc,
		fetcher:      f,
		fetchTimeout: 5 * time.Second,
		concurrency:  8,
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		r.cache = NewCache()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Cache returns the cache backing r.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the display duration of word. It never fails: words
// without media and failed fetches yield [DefaultDuration], which is not
// cached so a later lookup can retry.
func (r *Resolver) Resolve(ctx context.Context, word string) time.Duration {
	word = strings.ToUpper(word)
	if d, ok := r.cache.Get(word); ok {
		r.metrics.RecordMediaLookup(ctx, "hit")
		return d
	}
	url, ok := r.loc.MediaURL(word)
	if !ok {
		r.metrics.RecordMediaLookup(ctx, "no_media")
		return DefaultDuration
	}

	// The shared fetch outlives any single caller; each caller only waits
	// as long as its own ctx allows.
	ch := r.inflight.DoChan(word, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		start := time.Now()
		size, err := r.fetcher.Size(fctx, url)
		r.metrics.MediaFetchDuration.Record(fctx, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		d := Classify(size)
		r.cache.Put(word, d)
		return d, nil
	})
	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		r.metrics.RecordMediaLookup(ctx, "error")
		observe.Logger(ctx).Debug("media fetch failed, using default duration",
			"word", word, "err", err)
		return DefaultDuration
	}
	r.metrics.RecordMediaLookup(ctx, "miss")
	return v.(time.Duration)
}

// Preload resolves every word concurrently and returns one entry per input
// word, keyed as given. Words that differ only in case share one lookup. A
// slow or failing word never blocks the others beyond the fetch timeout.
func (r *Resolver) Preload(ctx context.Context, words []string) map[string]time.Duration {
	resolved := make(map[string]time.Duration, len(words))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToUpper(w)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		g.Go(func() error {
			d := r.Resolve(ctx, w)
			mu.Lock()
			resolved[w] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]time.Duration, len(words))
	for _, w := range words {
		out[w] = resolved[strings.ToUpper(w)]
	}
	return out
}
