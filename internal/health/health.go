// Package health serves the liveness and readiness probes.
//
//   - /healthz always returns 200 while the process can serve HTTP.
//   - /readyz runs every registered [Checker] concurrently and returns 200
//     unless one of them fails.
//
// A checker may report a degraded dependency by returning an error that wraps
// [ErrDegraded]. Degraded checks are reported in the body but do not fail
// readiness: Signflow keeps translating with its rule-based reducer when the
// rephrase service is unavailable.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a check result that should be surfaced without failing
// readiness.
var ErrDegraded = errors.New("degraded")

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] for the given checkers.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				checks[c.Name] = "ok"
			case errors.Is(err, ErrDegraded):
				checks[c.Name] = err.Error()
			default:
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Vocabulary returns a checker that fails when size reports an empty
// vocabulary.
func Vocabulary(size func() int) Checker {
	return Checker{
		Name: "vocabulary",
		Check: func(context.Context) error {
			if size() == 0 {
				return errors.New("vocabulary is empty")
			}
			return nil
		},
	}
}

// Rephrase returns a checker that reports the assisted rephrase path as
// degraded whenever status returns a non-empty reason, e.g. an open circuit
// breaker or a missing model configuration.
func Rephrase(status func() string) Checker {
	return Checker{
		Name: "rephrase",
		Check: func(context.Context) error {
			if reason := status(); reason != "" {
				return fmt.Errorf("%w: %s", ErrDegraded, reason)
			}
			return nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
