// Package webhook exposes the signal ingress over HTTP. The server is a
// thin dispatch layer: it validates the request shape, hands the signal
// to the lifecycle controller, and serializes the controller's result.
// All trading decisions happen behind the SignalHandler.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradePilot/internal/app"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 1 << 20
)

// SignalHandler is the slice of the lifecycle controller the server
// dispatches to.
type SignalHandler interface {
	HandleOpen(ctx context.Context, symbol string, side domain.Side) *app.OpenResult
	HandleClose(ctx context.Context, symbol string) *app.CloseResult
	HandleThresholdTouch(ctx context.Context, symbol string) *app.TouchResult
	States() map[string]domain.LifecycleState
}

// ServerConfig holds the HTTP listener parameters.
type ServerConfig struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// Server receives signal webhooks and serves the operational read
// endpoints: health, open positions and prometheus metrics.
type Server struct {
	cfg     ServerConfig
	logger  ports.Logger
	handler SignalHandler
	ledger  ports.TradeLedger
	mux     *http.ServeMux
	started time.Time
}

// NewServer validates dependencies and assembles the route table.
func NewServer(cfg ServerConfig, logger ports.Logger, handler SignalHandler, ledger ports.TradeLedger) (*Server, error) {
	if logger == nil || handler == nil || ledger == nil {
		return nil, fmt.Errorf("missing required dependencies for webhook server")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("configuration ListenAddr must not be empty")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		ledger:  ledger,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /positions", s.handlePositions)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s, nil
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until the context is canceled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	op := "Webhook.Start"
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, op+": listening", map[string]interface{}{"addr": s.cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info(ctx, op+": shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// webhookRequest is the inbound signal payload.
type webhookRequest struct {
	Event    string `json:"event"`
	Symbol   string `json:"symbol"`
	Position string `json:"position,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	op := "Webhook.handle"
	ctx := r.Context()
	start := time.Now()

	var req webhookRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectRequest(ctx, w, fmt.Sprintf("request body must be valid JSON: %v", err))
		return
	}
	if req.Event == "" || req.Symbol == "" {
		s.rejectRequest(ctx, w, "missing required fields: event or symbol")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	s.logger.Info(ctx, op+": signal received", map[string]interface{}{
		"event":  req.Event,
		"symbol": symbol,
	})

	var (
		status app.Status
		result interface{}
	)
	switch req.Event {
	case app.EventOpen:
		if req.Position == "" {
			s.rejectRequest(ctx, w, fmt.Sprintf("missing position field for %s", app.EventOpen))
			return
		}
		side, err := domain.ParseSide(req.Position)
		if err != nil {
			s.rejectRequest(ctx, w, err.Error())
			return
		}
		res := s.handler.HandleOpen(ctx, symbol, side)
		status, result = res.Status, res
	case app.EventClose:
		res := s.handler.HandleClose(ctx, symbol)
		status, result = res.Status, res
	case app.EventTrendTouch:
		res := s.handler.HandleThresholdTouch(ctx, symbol)
		status, result = res.Status, res
	default:
		s.rejectRequest(ctx, w, fmt.Sprintf("unknown event type %q", req.Event))
		return
	}

	s.logger.Info(ctx, op+": signal processed", map[string]interface{}{
		"event":   req.Event,
		"symbol":  symbol,
		"status":  status,
		"elapsed": time.Since(start).String(),
	})
	s.writeJSON(ctx, w, http.StatusOK, result)
}

// rejectRequest answers a malformed signal with 400 without touching the
// controller.
func (s *Server) rejectRequest(ctx context.Context, w http.ResponseWriter, msg string) {
	err := fmt.Errorf("%w: %s", ports.ErrValidation, msg)
	s.logger.Warn(ctx, "Webhook.handle: rejected invalid request", map[string]interface{}{"error": err.Error()})
	s.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Status: "error", Message: msg})
}

type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	ActiveSymbols []string          `json:"active_symbols"`
	States        map[string]string `json:"states"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	states := s.handler.States()
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		ActiveSymbols: make([]string, 0, len(states)),
		States:        make(map[string]string, len(states)),
	}
	for symbol, state := range states {
		resp.States[symbol] = string(state)
		if state == domain.StateOpen {
			resp.ActiveSymbols = append(resp.ActiveSymbols, symbol)
		}
	}
	sort.Strings(resp.ActiveSymbols)
	s.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// positionRecord is the outbound shape of one open ledger record.
type positionRecord struct {
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Size       float64   `json:"size"`
	Leverage   int       `json:"leverage"`
	TakeProfit float64   `json:"tp_price"`
	StopLoss   float64   `json:"sl_price"`
	Reason     string    `json:"reason"`
}

type positionsResponse struct {
	Status    string           `json:"status"`
	Count     int              `json:"count"`
	Positions []positionRecord `json:"positions"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	op := "Webhook.positions"
	ctx := r.Context()
	records, err := s.ledger.FindAll(ctx)
	if err != nil {
		s.logger.Error(ctx, err, op+": ledger query failed")
		s.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "failed to read open positions"})
		return
	}
	resp := positionsResponse{Status: "success", Positions: make([]positionRecord, 0, len(records))}
	for _, rec := range records {
		if !rec.IsOpen() {
			continue
		}
		resp.Positions = append(resp.Positions, positionRecord{
			TradeID:    rec.ID,
			Symbol:     rec.Symbol,
			Side:       string(rec.Side),
			EntryPrice: rec.EntryPrice,
			EntryTime:  rec.EntryTime,
			Size:       rec.Size,
			Leverage:   rec.Leverage,
			TakeProfit: rec.TakeProfit,
			StopLoss:   rec.StopLoss,
			Reason:     rec.Reason,
		})
	}
	sort.Slice(resp.Positions, func(i, j int) bool { return resp.Positions[i].Symbol < resp.Positions[j].Symbol })
	resp.Count = len(resp.Positions)
	s.writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(ctx, err, "Webhook.writeJSON: failed to encode response")
	}
}
