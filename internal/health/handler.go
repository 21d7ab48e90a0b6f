// Package health serves liveness, readiness and diagnostics endpoints.
package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"propdesk/internal/httputil"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = time.Second

type Handler struct {
	store     Pinger
	driver    string
	startedAt time.Time
	now       func() time.Time
}

func NewHandler(store Pinger, driver string, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		store:     store,
		driver:    strings.TrimSpace(driver),
		startedAt: start,
		now:       time.Now,
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type storeStat struct {
	Driver     string `json:"driver"`
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
	CheckedAt  string `json:"checked_at"`
	TimeoutSec int    `json:"timeout_sec"`
}

type readinessResponse struct {
	liveResponse
	Store storeStat `json:"store"`
}

type runtimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	GoMaxProcs int    `json:"gomaxprocs"`
	NumGC      uint32 `json:"num_gc"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
}

type fullResponse struct {
	readinessResponse
	PID      int          `json:"pid"`
	Hostname string       `json:"hostname"`
	Runtime  runtimeStats `json:"runtime"`
	Version  string       `json:"version,omitempty"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) live(now time.Time) liveResponse {
	uptime := h.uptime(now)
	return liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	}
}

func (h *Handler) checkStore(ctx context.Context) storeStat {
	stat := storeStat{Driver: h.driver, TimeoutSec: int(pingTimeout / time.Second)}
	if h.store == nil {
		stat.Error = "store is not configured"
		stat.CheckedAt = h.now().UTC().Format(time.RFC3339)
		return stat
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := h.store.Ping(ctx)
	cancel()
	stat.PingMs = time.Since(start).Milliseconds()
	stat.CheckedAt = h.now().UTC().Format(time.RFC3339)
	if err != nil {
		stat.Error = err.Error()
		return stat
	}
	stat.Reachable = true
	return stat
}

func (h *Handler) ready(r *http.Request) (readinessResponse, int) {
	resp := readinessResponse{liveResponse: h.live(h.now().UTC()), Store: h.checkStore(r.Context())}
	if !resp.Store.Reachable {
		resp.Status = "degraded"
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

// Live does not touch the store.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.live(h.now().UTC()))
}

// Ready returns 503 while the store is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp, status := h.ready(r)
	httputil.WriteJSON(w, status, resp)
}

// Full adds process and runtime diagnostics. It is mounted behind the
// internal token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	ready, status := h.ready(r)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	resp := fullResponse{
		readinessResponse: ready,
		PID:               os.Getpid(),
		Runtime: runtimeStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			GoMaxProcs: runtime.GOMAXPROCS(0),
			NumGC:      mem.NumGC,
			HeapAlloc:  mem.HeapAlloc,
			SysBytes:   mem.Sys,
		},
	}
	if host, err := os.Hostname(); err == nil {
		resp.Hostname = host
	}
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		resp.Version = strings.TrimSpace(info.Main.Version)
	}
	httputil.WriteJSON(w, status, resp)
}
