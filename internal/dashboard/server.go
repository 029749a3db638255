// Package dashboard implements the external, read-only-by-default HTTP/WS
// surface onto PumpGuard's core state: stats, recent tokens/whales/alerts,
// Prometheus exposition, a live alert WebSocket feed, and the control verbs
// (set_filter, blacklist/whitelist_creator, watch_token, watch_wallet,
// start/stop) spec.md §6 lists. Grounded on
// adred-codev-ws_poc/go-server/internal/server/server.go for the HTTP
// server/shutdown shape and .../pkg/websocket/client.go for the
// per-connection read/write pump pattern.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pumpguard-dev/pumpguard/internal/alerts"
	"github.com/pumpguard-dev/pumpguard/internal/detector"
	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/rug"
	"github.com/pumpguard-dev/pumpguard/internal/store"
	"github.com/pumpguard-dev/pumpguard/internal/whale"
)

// AnalyzerControl lets the dashboard start/stop one analyzer without the
// dashboard package needing to know how each analyzer is wired (context,
// log-bus subscription, etc.) — main.go supplies the closures.
type AnalyzerControl struct {
	Name      string
	IsRunning func() bool
	Stop      func()
	Start     func()
}

// Config configures the dashboard's listen address and optional auth.
type Config struct {
	Port int

	// JWTSecret, if non-empty, requires a valid bearer token on every
	// control-verb endpoint. Empty (the default) disables auth entirely.
	JWTSecret      string
	TokenDuration  time.Duration
}

// Server is the dashboard's HTTP+WS surface.
type Server struct {
	cfg     Config
	httpSrv *http.Server
	jwt     *jwtManager

	tokenDetector *detector.Detector
	rugDetector   *rug.Detector
	whaleTracker  *whale.Tracker
	alertBus      *alerts.Bus
	store         store.Store
	metrics       *metrics.Registry
	analyzers     map[string]AnalyzerControl

	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New constructs the dashboard server and registers its routes.
func New(cfg Config, tokenDetector *detector.Detector, rugDetector *rug.Detector, whaleTracker *whale.Tracker,
	alertBus *alerts.Bus, db store.Store, reg *metrics.Registry, analyzers []AnalyzerControl, logger zerolog.Logger) *Server {

	s := &Server{
		cfg:           cfg,
		tokenDetector: tokenDetector,
		rugDetector:   rugDetector,
		whaleTracker:  whaleTracker,
		alertBus:      alertBus,
		store:         db,
		metrics:       reg,
		analyzers:     make(map[string]AnalyzerControl, len(analyzers)),
		logger:        logger.With().Str("component", "dashboard").Logger(),
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	for _, a := range analyzers {
		s.analyzers[a.Name] = a
	}
	if cfg.JWTSecret != "" {
		duration := cfg.TokenDuration
		if duration == 0 {
			duration = 24 * time.Hour
		}
		s.jwt = newJWTManager(cfg.JWTSecret, duration)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/tokens", s.handleTokens)
	mux.HandleFunc("/whales", s.handleWhales)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/metrics/system", s.handleSystemMetrics)
	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("/control/set_filter", s.requireAuth(s.handleSetFilter))
	mux.HandleFunc("/control/blacklist_creator", s.requireAuth(s.handleBlacklistCreator))
	mux.HandleFunc("/control/whitelist_creator", s.requireAuth(s.handleWhitelistCreator))
	mux.HandleFunc("/control/watch_token", s.requireAuth(s.handleWatchToken))
	mux.HandleFunc("/control/watch_wallet", s.requireAuth(s.handleWatchWallet))
	mux.HandleFunc("/control/start", s.requireAuth(s.handleStartAnalyzer))
	mux.HandleFunc("/control/stop", s.requireAuth(s.handleStopAnalyzer))

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until ctx is cancelled, matching
// spec.md §7's "the dashboard server is the terminal blocking call of the
// process."
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("dashboard listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
