package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/logging"
	"hedge-lords/internal/models"
	"hedge-lords/internal/store"
)

// Gateway is the slice of the exchange client the producer needs.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Subscribe(ctx context.Context, coin string, expiry time.Time) ([]string, error)
	Unsubscribe(ctx context.Context) error
	HistoricalCandles(ctx context.Context, symbol string, resolution models.Resolution, start, end time.Time) ([]models.Candle, error)
}

// OnMessageSetter is implemented by gateways that deliver raw frames
// through a callback.
type OnMessageSetter interface {
	OnMessage(func(message []byte))
}

// Producer owns the streaming session: it subscribes the gateway to a
// (coin, expiry) option chain and upserts every normalized ticker into
// the store.
type Producer struct {
	gateway Gateway
	store   store.Store
	logger  zerolog.Logger

	mu      sync.RWMutex
	coin    string
	expiry  time.Time
	symbols []string
	active  bool
}

// NewProducer creates a producer and wires itself as the gateway's
// message handler when the gateway supports it.
func NewProducer(gateway Gateway, st store.Store, logger zerolog.Logger) *Producer {
	p := &Producer{
		gateway: gateway,
		store:   st,
		logger:  logging.WithService(logger, "ingest"),
	}
	if setter, ok := gateway.(OnMessageSetter); ok {
		setter.OnMessage(p.handleMessage)
	}
	return p
}

// StartStreaming switches the session to a new (coin, expiry) chain.
// Any previous subscription is dropped first and the ticker table is
// cleared, so stale contracts from the old chain never leak into the
// new one. Returns the subscribed symbols.
func (p *Producer) StartStreaming(ctx context.Context, coin string, expiry time.Time) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		if err := p.gateway.Unsubscribe(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Unsubscribe before resubscribe failed")
		}
		p.active = false
	}

	if err := p.store.ClearAll(ctx); err != nil {
		return nil, apperrors.Wrap(err, "clearing tickers")
	}

	if !p.gateway.IsConnected() {
		if err := p.gateway.Connect(ctx); err != nil {
			return nil, err
		}
	}

	symbols, err := p.gateway.Subscribe(ctx, coin, expiry)
	if err != nil {
		return nil, err
	}

	p.coin = coin
	p.expiry = expiry
	p.symbols = symbols
	p.active = true

	logging.LogSubscription(p.logger, coin, expiry.Format("2006-01-02"), len(symbols))
	return symbols, nil
}

// StopStreaming unsubscribes the current chain. Stopping an idle
// producer is a no-op.
func (p *Producer) StopStreaming(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil
	}

	p.active = false
	p.symbols = nil
	return p.gateway.Unsubscribe(ctx)
}

// Session returns the currently streamed coin and expiry, and whether a
// session is active.
func (p *Producer) Session() (string, time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coin, p.expiry, p.active
}

// Symbols returns the symbols of the active subscription.
func (p *Producer) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// handleMessage normalizes one raw frame and upserts it. Frames that
// are not tickers, and tickers that fail to decode, are dropped without
// disturbing the stream.
func (p *Producer) handleMessage(raw []byte) {
	ticker, err := Normalize(raw)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Dropping frame")
		return
	}

	if err := p.store.Upsert(context.Background(), ticker); err != nil {
		p.logger.Error().Err(err).Str("symbol", ticker.Symbol).Msg("Failed to save ticker")
		return
	}

	logging.LogTickerSaved(p.logger, ticker.Symbol, string(ticker.ContractType))
}

// LoadOHLCV fetches candle history for the symbol and replaces the
// stored series with it. Returns the number of bars loaded.
func (p *Producer) LoadOHLCV(ctx context.Context, symbol string, resolution models.Resolution, start, end time.Time) (int, error) {
	candles, err := p.gateway.HistoricalCandles(ctx, symbol, resolution, start, end)
	if err != nil {
		return 0, err
	}

	if err := p.store.Replace(ctx, candles); err != nil {
		return 0, apperrors.Wrap(err, "replacing candle history")
	}

	p.logger.Info().
		Str("symbol", symbol).
		Str("resolution", string(resolution)).
		Int("bars", len(candles)).
		Msg("Loaded candle history")
	return len(candles), nil
}
