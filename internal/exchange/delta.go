// Package exchange provides the Delta Exchange gateway: one websocket
// connection for ticker streaming plus the REST endpoints for contract
// discovery and historical candles.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hedge-lords/internal/contract"
	apperrors "hedge-lords/internal/errors"
	"hedge-lords/pkg/utils"
)

// tickerChannel is the exchange channel carrying ticker snapshots.
const tickerChannel = "v2/ticker"

// Config holds gateway configuration.
type Config struct {
	BaseURL     string
	WSURL       string
	PageSize    int     // max bars per history request
	HistoryRate float64 // history requests per second
	MaxRetries  int     // dial attempts before giving up
	DialTimeout time.Duration
}

// MessageHandler receives raw websocket frames from the ticker stream.
type MessageHandler func(message []byte)

// Gateway manages one exchange-level connection.
type Gateway struct {
	cfg        Config
	logger     zerolog.Logger
	httpClient *http.Client
	limiter    *rate.Limiter

	onMessage MessageHandler

	mu      sync.RWMutex
	writeMu sync.Mutex // protects websocket writes
	conn    *websocket.Conn
	done    chan struct{}
}

// NewGateway creates a new gateway instance.
func NewGateway(cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.HistoryRate <= 0 {
		cfg.HistoryRate = 5
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	return &Gateway{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.HistoryRate), 1),
	}
}

// OnMessage sets the handler for inbound ticker frames. Must be set
// before Connect.
func (g *Gateway) OnMessage(handler MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onMessage = handler
}

// Connect establishes the websocket connection and starts the listener
// goroutine. A transport failure is returned (and logged) so the caller
// may retry; it never panics the pipeline.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: g.cfg.DialTimeout}
	retryCfg := utils.DefaultRetryConfig()
	if g.cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = g.cfg.MaxRetries
	}

	var conn *websocket.Conn
	err := utils.Retry(ctx, retryCfg, func() error {
		var dialErr error
		conn, _, dialErr = dialer.DialContext(ctx, g.cfg.WSURL, nil)
		return dialErr
	})
	if err != nil {
		terr := apperrors.NewTransportError("connect", g.cfg.WSURL, err)
		g.logger.Error().Err(terr).Msg("Failed to connect to exchange")
		return terr
	}

	g.conn = conn
	g.done = make(chan struct{})
	go g.listen(conn, g.done)

	g.logger.Info().Str("url", g.cfg.WSURL).Msg("Connected to exchange")
	return nil
}

// listen pumps inbound frames to the message handler until the
// connection dies or Disconnect is called.
func (g *Gateway) listen(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			g.logger.Error().Err(err).Msg("Exchange listener stopped")
			g.mu.Lock()
			if g.conn == conn {
				g.conn = nil
			}
			g.mu.Unlock()
			return
		}

		g.mu.RLock()
		handler := g.onMessage
		g.mu.RUnlock()

		if handler != nil {
			handler(message)
		}
	}
}

// Disconnect closes the websocket connection. Safe to call when not
// connected.
func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}

	close(g.done)
	err := g.conn.Close()
	g.conn = nil

	if err != nil {
		return apperrors.NewTransportError("disconnect", g.cfg.WSURL, err)
	}
	return nil
}

// IsConnected reports whether the websocket connection is live.
func (g *Gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn != nil
}

// subscribeFrame is the wire shape of subscribe/unsubscribe requests.
type subscribeFrame struct {
	Type    string           `json:"type"`
	Payload subscribePayload `json:"payload"`
}

type subscribePayload struct {
	Channels []subscribeChannel `json:"channels"`
}

type subscribeChannel struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// Subscribe resolves the live option contracts for (coin, expiry) and
// subscribes the ticker channel to them plus the raw coin symbol (the
// futures/spot reference leg).
func (g *Gateway) Subscribe(ctx context.Context, coin string, expiry time.Time) ([]string, error) {
	g.mu.RLock()
	connected := g.conn != nil
	g.mu.RUnlock()
	if !connected {
		return nil, apperrors.ErrNotConnected
	}

	contracts, err := g.FilteredContracts(ctx, coin, expiry)
	if err != nil {
		return nil, err
	}

	symbols := append(contracts, coin)
	frame := subscribeFrame{
		Type: "subscribe",
		Payload: subscribePayload{
			Channels: []subscribeChannel{{Name: tickerChannel, Symbols: symbols}},
		},
	}

	if err := g.writeJSON(frame); err != nil {
		terr := apperrors.NewTransportError("subscribe", g.cfg.WSURL, err)
		g.logger.Error().Err(terr).Msg("Failed to subscribe")
		return nil, terr
	}

	return symbols, nil
}

// Unsubscribe sends an unsubscribe frame for the ticker channel.
// Not being connected is a no-op, not an error.
func (g *Gateway) Unsubscribe(ctx context.Context) error {
	g.mu.RLock()
	connected := g.conn != nil
	g.mu.RUnlock()
	if !connected {
		return nil
	}

	frame := subscribeFrame{
		Type: "unsubscribe",
		Payload: subscribePayload{
			Channels: []subscribeChannel{{Name: tickerChannel, Symbols: []string{""}}},
		},
	}

	if err := g.writeJSON(frame); err != nil {
		terr := apperrors.NewTransportError("unsubscribe", g.cfg.WSURL, err)
		g.logger.Error().Err(terr).Msg("Failed to unsubscribe")
		return terr
	}
	return nil
}

func (g *Gateway) writeJSON(v interface{}) error {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn == nil {
		return apperrors.ErrNotConnected
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// productsResponse is the wire shape of /v2/products.
type productsResponse struct {
	Success bool `json:"success"`
	Result  []struct {
		Symbol string `json:"symbol"`
	} `json:"result"`
}

// LiveOptionContracts returns the symbols of all live call/put option
// contracts on the exchange. Network failures degrade to an empty list.
func (g *Gateway) LiveOptionContracts(ctx context.Context) ([]string, error) {
	endpoint := g.cfg.BaseURL + "/v2/products"
	params := url.Values{
		"contract_types": {"call_options,put_options"},
		"states":         {"live"},
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building products request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		terr := apperrors.NewTransportError("products", endpoint, err)
		g.logger.Error().Err(terr).Dur("duration", time.Since(start)).Msg("Products request failed")
		return nil, terr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		terr := apperrors.NewTransportError("products", endpoint, fmt.Errorf("status %d", resp.StatusCode))
		g.logger.Error().Err(terr).Msg("Products request failed")
		return nil, terr
	}

	var decoded productsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewDecodeError("products", "malformed response body", err)
	}
	if !decoded.Success {
		return nil, nil
	}

	symbols := make([]string, 0, len(decoded.Result))
	for _, p := range decoded.Result {
		symbols = append(symbols, p.Symbol)
	}
	return symbols, nil
}

// FilteredContracts returns the live option contracts whose underlying
// prefix matches the coin and whose expiry falls on the given date.
func (g *Gateway) FilteredContracts(ctx context.Context, coin string, expiry time.Time) ([]string, error) {
	all, err := g.LiveOptionContracts(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []string
	for _, symbol := range all {
		sym, err := contract.Parse(symbol)
		if err != nil {
			continue
		}
		if sym.MatchesUnderlying(coin) && sym.ExpiresOn(expiry) {
			filtered = append(filtered, symbol)
		}
	}
	return filtered, nil
}
