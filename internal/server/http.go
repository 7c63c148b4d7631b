// Package server exposes the snapshot and historical query APIs over
// HTTP JSON, plus a WebSocket stream of snapshot updates.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"TradeScope/internal/observability"
	"TradeScope/internal/pattern"
	"TradeScope/internal/query"
	"TradeScope/internal/snapshot"
)

type Server struct {
	httpServer *http.Server
	pub        *snapshot.Publisher
	queries    *query.Service
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func New(
	addr string,
	pub *snapshot.Publisher,
	queries *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		pub:     pub,
		queries: queries,
		health:  health,
		metrics: metrics,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/positions", s.instrument("positions", s.handlePositions))
	mux.HandleFunc("/positions/", s.instrument("position", s.handlePosition))
	mux.HandleFunc("/patterns", s.instrument("patterns", s.handlePatterns))
	mux.HandleFunc("/wallets/", s.instrument("wallet", s.handleWallet))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// GET /positions[?wallet=0x...] — current snapshot views.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	snap := s.pub.Current()

	views := snap.Views
	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		views = snap.ByWallet(wallet)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   snap.Version,
		"taken_at":  snap.TakenAt,
		"positions": views,
	})
}

// GET /positions/{wallet}/{market} — one view from the current
// snapshot, falling back to Postgres for markets no longer in memory.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/positions/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "expected /positions/{wallet}/{market}")
		return
	}
	wallet, marketSlug := parts[0], parts[1]

	snap := s.pub.Current()
	if view, ok := snap.Get(wallet, marketSlug); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"version":  snap.Version,
			"position": view,
		})
		return
	}

	rec, err := s.queries.GetPosition(r.Context(), wallet, marketSlug)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("position lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"position": rec})
}

// GET /patterns[?strategy=ARBITRAGE] — pattern records from the current
// snapshot, optionally filtered by strategy label.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	snap := s.pub.Current()
	filter := pattern.Strategy(r.URL.Query().Get("strategy"))

	records := make([]pattern.Record, 0, len(snap.Views))
	for _, v := range snap.Views {
		if filter != "" && v.Pattern.Hedge.Strategy != filter {
			continue
		}
		records = append(records, v.Pattern)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  snap.Version,
		"patterns": records,
	})
}

// GET /wallets/{wallet} — historical summary and positions from
// Postgres. Optional /wallets/{wallet}/trades for the trade log.
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/wallets/")
	parts := strings.SplitN(rest, "/", 2)
	wallet := parts[0]
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "expected /wallets/{wallet}")
		return
	}

	if len(parts) == 2 && parts[1] == "trades" {
		s.handleWalletTrades(w, r, wallet)
		return
	}

	summary, err := s.queries.GetWalletSummary(r.Context(), wallet)
	if err != nil {
		s.logger.Error().Err(err).Msg("wallet summary failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	positions, err := s.queries.GetWalletPositions(r.Context(), wallet)
	if err != nil {
		s.logger.Error().Err(err).Msg("wallet positions failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":   summary,
		"positions": positions,
	})
}

func (s *Server) handleWalletTrades(w http.ResponseWriter, r *http.Request, wallet string) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	var marketSlug *string
	if m := r.URL.Query().Get("market"); m != "" {
		marketSlug = &m
	}
	var beforeTS *int64
	if b := r.URL.Query().Get("before"); b != "" {
		if ts, err := strconv.ParseInt(b, 10, 64); err == nil {
			beforeTS = &ts
		}
	}

	trades, err := s.queries.GetTradeHistory(r.Context(), wallet, marketSlug, limit, beforeTS)
	if err != nil {
		s.logger.Error().Err(err).Msg("trade history failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
