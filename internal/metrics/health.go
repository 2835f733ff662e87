package metrics

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger is a dependency whose reachability is probed periodically.
type Pinger interface {
	Ping(ctx context.Context) error
}

type probe struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthStatus tracks feed liveness and dependency probes.
type HealthStatus struct {
	mu sync.RWMutex

	feedConnected bool
	lastTick      time.Time
	deps          map[string]Pinger
	probes        map[string]probe
	lastCheckAt   time.Time
	startedAt     time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		deps:      make(map[string]Pinger),
		probes:    make(map[string]probe),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Register adds a dependency to probe under name.
func (h *HealthStatus) Register(name string, p Pinger) {
	h.mu.Lock()
	h.deps[name] = p
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.feedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.lastTick = t
	h.mu.Unlock()
}

// Check probes every registered dependency once.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	deps := make(map[string]Pinger, len(h.deps))
	for k, v := range h.deps {
		deps[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]probe, len(deps))
	for name, p := range deps {
		start := time.Now()
		err := p.Ping(ctx)
		r := probe{OK: err == nil, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
		if err != nil {
			r.Error = err.Error()
		}
		results[name] = r
	}

	h.mu.Lock()
	h.probes = results
	h.lastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Any failing dependency or a
// disconnected feed reports "degraded" with 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	failing := 0
	for _, p := range h.probes {
		if !p.OK {
			failing++
		}
	}
	if !h.feedConnected || failing > 0 {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}
	if failing > 0 && failing == len(h.probes) && !h.feedConnected {
		overall = "unhealthy"
	}

	tickAge := ""
	if !h.lastTick.IsZero() {
		tickAge = h.now().Sub(h.lastTick).Round(time.Millisecond).String()
	}
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	status := struct {
		Status        string           `json:"status"`
		Uptime        string           `json:"uptime"`
		FeedConnected bool             `json:"feed_connected"`
		LastTickTime  string           `json:"last_tick_time,omitempty"`
		TickAge       string           `json:"tick_age,omitempty"`
		Dependencies  []string         `json:"dependencies"`
		Probes        map[string]probe `json:"probes"`
		LastCheckAt   string           `json:"last_check_at,omitempty"`
	}{
		Status:        overall,
		Uptime:        h.now().Sub(h.startedAt).Round(time.Second).String(),
		FeedConnected: h.feedConnected,
		TickAge:       tickAge,
		Dependencies:  names,
		Probes:        h.probes,
	}
	if !h.lastTick.IsZero() {
		status.LastTickTime = h.lastTick.Format(time.RFC3339)
	}
	if !h.lastCheckAt.IsZero() {
		status.LastCheckAt = h.lastCheckAt.Format(time.RFC3339)
	}

	body, err := sonic.Marshal(status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server serving metrics from g.
func NewServer(addr string, g prometheus.Gatherer, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Handle mounts h under pattern. Call before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.srv.Handler.(*http.ServeMux).Handle(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
