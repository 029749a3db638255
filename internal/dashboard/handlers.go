package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pumpguard-dev/pumpguard/internal/stream"
)

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// handleStats serves the aggregate view across C4's durable stats plus the
// in-memory analyzer counters, per spec.md §6's "get stats" verb.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dbStats, err := s.store.GetStats(ctx)
	if err != nil {
		http.Error(w, "failed to read stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	tokensDetected, alertsSent, alertsSkipped := s.tokenDetector.Stats()

	writeJSON(w, http.StatusOK, map[string]any{
		"db":              dbStats,
		"tokens_detected": tokensDetected,
		"alerts_sent":     alertsSent,
		"alerts_skipped":  alertsSkipped,
		"tokens_watched":  s.rugDetector.Count(),
		"rugs_detected":   s.rugDetector.RugsDetected(),
		"wallets_tracked": s.whaleTracker.WalletCount(),
		"uptime_seconds":  s.metrics.Uptime().Seconds(),
	})
}

// handleTokens serves the newest-first recent-tokens view.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 50)
	recs, err := s.store.GetRecentTokens(r.Context(), n)
	if err != nil {
		http.Error(w, "failed to read tokens: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleWhales serves every wallet currently flagged is_whale.
func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.GetWhales(r.Context())
	if err != nil {
		http.Error(w, "failed to read whales: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleAlerts serves the newest-first in-memory alert history.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 50)
	writeJSON(w, http.StatusOK, s.alertBus.Recent(n))
}

func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, collectSystemStats())
}

// handleWebSocket upgrades the connection and streams every alert published
// on alertBus to it as JSON, one message per Publish, until the client
// disconnects. A lag notice from the alert bus is logged and the stream
// continues; the connection is not dropped for lagging. Subscribes directly to
// internal/stream.Broadcast rather than replicating the teacher's
// register/unregister Hub — the broadcast already gives non-blocking
// multi-subscriber fan-out.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, subID := s.alertBus.Subscribe()
	defer s.alertBus.Unsubscribe(subID)

	s.metrics.DashboardConnections.Inc()
	defer s.metrics.DashboardConnections.Dec()

	// Drain client reads in the background so we notice disconnects/pongs;
	// the dashboard feed is one-way so any inbound frame just signals close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch v := msg.(type) {
			case stream.Lag:
				s.logger.Warn().Uint64("skipped", v.Skipped).Msg("dashboard websocket client lagging")
			default:
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			}
		}
	}
}

type setFilterRequest struct {
	MinLiquidity float64 `json:"min_liquidity"`
	MaxLiquidity float64 `json:"max_liquidity"`
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.tokenDetector.Filters().SetLiquidityBand(req.MinLiquidity, req.MaxLiquidity)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type creatorRequest struct {
	Creator string `json:"creator"`
}

func (s *Server) handleBlacklistCreator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req creatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Creator == "" {
		http.Error(w, "invalid body: creator is required", http.StatusBadRequest)
		return
	}
	s.tokenDetector.Filters().BlacklistCreator(req.Creator)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWhitelistCreator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req creatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Creator == "" {
		http.Error(w, "invalid body: creator is required", http.StatusBadRequest)
		return
	}
	s.tokenDetector.Filters().WhitelistCreator(req.Creator)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type watchTokenRequest struct {
	Mint             string  `json:"mint"`
	Name             string  `json:"name"`
	Symbol           string  `json:"symbol"`
	Creator          string  `json:"creator"`
	InitialLiquidity float64 `json:"initial_liquidity"`
}

func (s *Server) handleWatchToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req watchTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mint == "" {
		http.Error(w, "invalid body: mint is required", http.StatusBadRequest)
		return
	}
	s.rugDetector.WatchToken(req.Mint, req.Name, req.Symbol, req.Creator, req.InitialLiquidity)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type watchWalletRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

func (s *Server) handleWatchWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req watchWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		http.Error(w, "invalid body: address is required", http.StatusBadRequest)
		return
	}
	s.whaleTracker.WatchWallet(req.Address, req.Label)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzerRequest struct {
	Analyzer string `json:"analyzer"`
}

func (s *Server) handleStartAnalyzer(w http.ResponseWriter, r *http.Request) {
	s.handleAnalyzerVerb(w, r, func(a AnalyzerControl) { a.Start() })
}

func (s *Server) handleStopAnalyzer(w http.ResponseWriter, r *http.Request) {
	s.handleAnalyzerVerb(w, r, func(a AnalyzerControl) { a.Stop() })
}

func (s *Server) handleAnalyzerVerb(w http.ResponseWriter, r *http.Request, apply func(AnalyzerControl)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req analyzerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Analyzer == "" {
		http.Error(w, "invalid body: analyzer is required", http.StatusBadRequest)
		return
	}
	a, ok := s.analyzers[req.Analyzer]
	if !ok {
		http.Error(w, "unknown analyzer: "+req.Analyzer, http.StatusNotFound)
		return
	}
	apply(a)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": a.IsRunning()})
}
