// Package server exposes the pipeline over HTTP: two websocket feeds
// (options chain and payoff curve) plus a small REST surface for
// session control, history loading, and simulation queries. Handlers
// stay thin; all behavior lives in the core services.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hedge-lords/internal/broadcast"
	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/ingest"
	"hedge-lords/internal/logging"
	"hedge-lords/internal/models"
	"hedge-lords/internal/payoff"
	"hedge-lords/internal/simulation"
)

const expiryLayout = "2006-01-02"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config holds server settings.
type Config struct {
	Addr       string
	Iterations int
	Resolution models.Resolution
}

// Server wires the HTTP surface to the core services.
type Server struct {
	cfg         Config
	producer    *ingest.Producer
	engine      *simulation.Engine
	aggregator  *payoff.Aggregator
	broadcaster *broadcast.Broadcaster
	logger      zerolog.Logger

	httpServer *http.Server
}

// New creates the server and its route table.
func New(cfg Config, producer *ingest.Producer, engine *simulation.Engine, aggregator *payoff.Aggregator, broadcaster *broadcast.Broadcaster, logger zerolog.Logger) *Server {
	if cfg.Resolution == "" {
		cfg.Resolution = models.Hour1
	}
	s := &Server{
		cfg:         cfg,
		producer:    producer,
		engine:      engine,
		aggregator:  aggregator,
		broadcaster: broadcaster,
		logger:      logging.WithService(logger, "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream/options", s.handleOptionsStream)
	mux.HandleFunc("/stream/trading", s.handleTradingStream)
	mux.HandleFunc("/subscribe", s.handleSubscribe)
	mux.HandleFunc("/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("/load-ohlcv", s.handleLoadOHLCV)
	mux.HandleFunc("/simulate", s.handleSimulate)
	mux.HandleFunc("/expected-value", s.handleExpectedValue)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError maps the error taxonomy to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDataNotFound), errors.Is(err, apperrors.ErrSymbolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrNotComputable):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrNotConnected):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, channel string, onCommand func(*wsHandle, []byte)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", channel).Msg("Websocket upgrade failed")
		return
	}

	handle := newWSHandle(conn)
	s.broadcaster.Connect(channel, handle)
	defer s.broadcaster.Disconnect(channel, handle)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if onCommand != nil {
			onCommand(handle, message)
		}
	}
}

func (s *Server) handleOptionsStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, broadcast.ChannelPremiums, nil)
}

func (s *Server) handleTradingStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, broadcast.ChannelTrading, s.dispatchCommand)
}

// command is one inbound trading-socket message.
type command struct {
	Action   string          `json:"action"`
	Symbol   string          `json:"symbol"`
	Position models.Position `json:"position"`
	Value    float64         `json:"value"`
}

// dispatchCommand applies a trading command and echoes the resulting
// selection snapshot, or the error, back on the same socket.
func (s *Server) dispatchCommand(handle *wsHandle, message []byte) {
	var cmd command
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.sendCommandResult(handle, payoff.Confirmation{}, apperrors.NewDecodeError("command", "malformed command", err))
		return
	}

	var conf payoff.Confirmation
	var err error
	switch cmd.Action {
	case "select":
		conf, err = s.aggregator.Select(cmd.Symbol, cmd.Position)
	case "deselect":
		conf, err = s.aggregator.Deselect(cmd.Symbol)
	case "set_price_range":
		conf, err = s.aggregator.SetPriceRange(cmd.Value)
	case "set_lot_size":
		conf, err = s.aggregator.SetLotSize(cmd.Value)
	case "clear_selection":
		conf, err = s.aggregator.ClearSelection()
	default:
		err = apperrors.NewValidationError("action", cmd.Action, "unknown action")
	}

	s.sendCommandResult(handle, conf, err)
}

func (s *Server) sendCommandResult(handle *wsHandle, conf payoff.Confirmation, err error) {
	if err != nil {
		if sendErr := handle.Send(map[string]string{"error": err.Error()}); sendErr != nil {
			s.logger.Debug().Err(sendErr).Msg("Failed to echo command error")
		}
		return
	}
	if sendErr := handle.Send(conf); sendErr != nil {
		s.logger.Debug().Err(sendErr).Msg("Failed to echo confirmation")
	}
}

type subscribeRequest struct {
	Coin   string `json:"coin"`
	Expiry string `json:"expiry"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewValidationError("body", nil, "malformed request"))
		return
	}
	if req.Coin == "" {
		s.writeError(w, apperrors.NewValidationError("coin", req.Coin, "coin required"))
		return
	}
	expiry, err := time.ParseInLocation(expiryLayout, req.Expiry, time.UTC)
	if err != nil {
		s.writeError(w, apperrors.NewValidationError("expiry", req.Expiry, "expected YYYY-MM-DD"))
		return
	}

	symbols, err := s.producer.StartStreaming(r.Context(), req.Coin, expiry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"coin":      req.Coin,
		"expiry":    req.Expiry,
		"contracts": len(symbols),
	})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.producer.StopStreaming(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type loadOHLCVRequest struct {
	Symbol     string `json:"symbol"`
	Resolution string `json:"resolution"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

func (s *Server) handleLoadOHLCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loadOHLCVRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewValidationError("body", nil, "malformed request"))
		return
	}

	resolution := models.Resolution(req.Resolution)
	if !resolution.Valid() {
		s.writeError(w, apperrors.NewValidationError("resolution", req.Resolution, "unknown resolution"))
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		s.writeError(w, apperrors.NewValidationError("start", req.Start, "expected RFC3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		s.writeError(w, apperrors.NewValidationError("end", req.End, "expected RFC3339"))
		return
	}
	if !end.After(start) {
		s.writeError(w, apperrors.NewValidationError("end", req.End, "must be after start"))
		return
	}

	bars, err := s.producer.LoadOHLCV(r.Context(), req.Symbol, resolution, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": req.Symbol, "bars": bars})
}

// simulationKey resolves the shared simulate/expected-value parameters.
func (s *Server) simulationKey(symbol, expiryStr, resolutionStr, iterationsStr string) (simulation.CacheKey, error) {
	if symbol == "" {
		return simulation.CacheKey{}, apperrors.NewValidationError("symbol", symbol, "symbol required")
	}
	expiry, err := time.ParseInLocation(expiryLayout, expiryStr, time.UTC)
	if err != nil {
		return simulation.CacheKey{}, apperrors.NewValidationError("expiry", expiryStr, "expected YYYY-MM-DD")
	}

	resolution := s.cfg.Resolution
	if resolutionStr != "" {
		resolution = models.Resolution(resolutionStr)
		if !resolution.Valid() {
			return simulation.CacheKey{}, apperrors.NewValidationError("resolution", resolutionStr, "unknown resolution")
		}
	}

	iterations := s.cfg.Iterations
	if iterationsStr != "" {
		n, err := strconv.Atoi(iterationsStr)
		if err != nil {
			return simulation.CacheKey{}, apperrors.NewValidationError("iterations", iterationsStr, "expected integer")
		}
		iterations = n
	}
	if iterations < 1 {
		return simulation.CacheKey{}, apperrors.NewValidationError("iterations", iterations, "must be positive")
	}

	return simulation.CacheKey{Symbol: symbol, Expiry: expiry, Resolution: resolution, Iterations: iterations}, nil
}

type simulateRequest struct {
	Symbol     string      `json:"symbol"`
	Expiry     string      `json:"expiry"`
	Resolution string      `json:"resolution"`
	Iterations json.Number `json:"iterations"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewValidationError("body", nil, "malformed request"))
		return
	}

	key, err := s.simulationKey(req.Symbol, req.Expiry, req.Resolution, req.Iterations.String())
	if err != nil {
		s.writeError(w, err)
		return
	}

	prices, err := s.engine.TerminalPrices(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     key.Symbol,
		"iterations": len(prices),
		"artifact":   key.Filename(),
	})
}

func (s *Server) handleExpectedValue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	key, err := s.simulationKey(q.Get("coin"), q.Get("expiry"), q.Get("resolution"), q.Get("iterations"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	prices, err := s.engine.TerminalPrices(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ev, err := s.aggregator.ExpectedValue(r.Context(), key.Symbol, key.Expiry, prices)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoSelection) {
			s.writeJSON(w, http.StatusOK, map[string]string{"detail": "no contracts selected"})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}
