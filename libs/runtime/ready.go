package runtime

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/servicebay/servicebay/libs/httpx"
	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Readiness backs /readyz. Checks run in parallel with a per-check budget, and Drain makes
// the endpoint fail so load balancers stop routing before the server shuts down.
type Readiness struct {
	checks   []ReadyCheck
	timeout  time.Duration
	draining atomic.Bool
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewReadiness(checks ...ReadyCheck) *Readiness {
	return &Readiness{checks: checks, timeout: 2 * time.Second}
}

func (r *Readiness) Add(c ReadyCheck) {
	r.checks = append(r.checks, c)
}

func (r *Readiness) Drain() {
	r.draining.Store(true)
}

// Run executes every check and returns the per-check result ("ok" or the error text).
func (r *Readiness) Run(ctx context.Context) (map[string]string, bool) {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(r.checks))
		healthy = true
	)
	var g errgroup.Group
	for i, c := range r.checks {
		if c.Check == nil {
			continue
		}
		name := c.Name
		if name == "" {
			name = "check_" + strconv.Itoa(i)
		}
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			res := "ok"
			if err := c.Check(checkCtx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			results[name] = res
			if res != "ok" {
				healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, healthy
}

// Mux serves /healthz (process liveness) and /readyz.
func (r *Readiness) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, readyReport{Status: "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if r.draining.Load() {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, readyReport{Status: "draining"})
			return
		}
		results, healthy := r.Run(req.Context())
		if !healthy {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, readyReport{Status: "unavailable", Checks: results})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, readyReport{Status: "ready", Checks: results})
	})
	return mux
}
