package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"plexident/launchpad/internal/probe"
	"plexident/launchpad/internal/sequencer"
)

// statusSource is the subset of *sequencer.Tracker used by the handlers.
type statusSource interface {
	Snapshot() sequencer.Report
	Ready() bool
	Uptime(now time.Time) time.Duration
}

// Target is one dependency checked by GET /health/deep.
type Target struct {
	Name     string
	Prober   sequencer.Prober
	Endpoint sequencer.Endpoint
}

type target struct {
	Target
	cb *gobreaker.CircuitBreaker
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	status  statusSource
	targets []target
	now     func() time.Time
}

func newHandler(status statusSource, targets []Target) *Handler {
	h := &Handler{status: status, now: time.Now}
	for _, t := range targets {
		h.targets = append(h.targets, target{Target: t, cb: probe.NewCircuitBreaker(t.Name)})
	}
	return h
}

// Health handles GET /health. It always returns 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"state":  h.status.Snapshot().State,
	})
}

// Ready handles GET /ready: 200 once the server has been handed off to, 503
// before that and after a failure.
func (h *Handler) Ready(c *gin.Context) {
	if h.status.Ready() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}

type statusResponse struct {
	sequencer.Report
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Report:        h.status.Snapshot(),
		UptimeSeconds: h.status.Uptime(h.now()).Seconds(),
	})
}

// DeepHealth handles GET /health/deep. Every target is probed concurrently
// and the response is 200 only when all of them are reachable.
func (h *Handler) DeepHealth(c *gin.Context) {
	ctx := c.Request.Context()
	results := make(map[string]probe.Result, len(h.targets))
	var mu sync.Mutex
	var g errgroup.Group

	for _, t := range h.targets {
		t := t
		g.Go(func() error {
			r := probe.Check(ctx, t.Name, t.Prober, t.Endpoint, t.cb)
			mu.Lock()
			results[t.Name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	allOK := true
	for _, r := range results {
		if !r.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": results,
	})
}
