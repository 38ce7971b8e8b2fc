package payoff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"hedge-lords/internal/contract"
	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/logging"
	"hedge-lords/internal/models"
	"hedge-lords/internal/store"
)

const (
	// DefaultPriceRange is the strike padding fraction of the payoff grid.
	DefaultPriceRange = 0.10
	// DefaultLotSize scales every leg's payoff.
	DefaultLotSize = 1.0
	// DefaultPricePoints is the payoff grid density.
	DefaultPricePoints = 500

	minPriceRange = 0.01
	maxPriceRange = 0.5
)

// Confirmation is the state snapshot returned after every command, so
// clients always see the selection the command left behind.
type Confirmation struct {
	Type       string                     `json:"type"`
	Selected   map[string]models.Position `json:"selected_contracts"`
	PriceRange float64                    `json:"price_range_percentage"`
	LotSize    float64                    `json:"lot_size"`
}

// Aggregator owns the contract selection and computes payoff curves and
// expected values from it. All methods are safe for concurrent use.
type Aggregator struct {
	tickers store.TickerStore
	logger  zerolog.Logger

	mu         sync.RWMutex
	selection  map[string]models.Position
	priceRange float64
	lotSize    float64
	points     int
}

// NewAggregator creates an aggregator with default curve parameters.
func NewAggregator(tickers store.TickerStore, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		tickers:    tickers,
		logger:     logging.WithService(logger, "payoff"),
		selection:  make(map[string]models.Position),
		priceRange: DefaultPriceRange,
		lotSize:    DefaultLotSize,
		points:     DefaultPricePoints,
	}
}

// snapshotLocked builds a confirmation; callers hold at least a read lock.
func (a *Aggregator) snapshotLocked() Confirmation {
	selected := make(map[string]models.Position, len(a.selection))
	for symbol, position := range a.selection {
		selected[symbol] = position
	}
	return Confirmation{Type: "confirmation", Selected: selected, PriceRange: a.priceRange, LotSize: a.lotSize}
}

// Snapshot returns the current selection state.
func (a *Aggregator) Snapshot() Confirmation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Select adds or re-sides a contract leg. Selecting an already selected
// symbol just updates its side.
func (a *Aggregator) Select(symbol string, position models.Position) (Confirmation, error) {
	if symbol == "" {
		return a.Snapshot(), apperrors.NewValidationError("symbol", symbol, "symbol required")
	}
	if !position.Valid() {
		return a.Snapshot(), apperrors.NewValidationError("position", position, "must be buy or sell")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.selection[symbol] = position
	return a.snapshotLocked(), nil
}

// Deselect removes a leg. Removing a symbol that is not selected is a
// no-op, not an error.
func (a *Aggregator) Deselect(symbol string) (Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.selection, symbol)
	return a.snapshotLocked(), nil
}

// ClearSelection drops every selected leg.
func (a *Aggregator) ClearSelection() (Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selection = make(map[string]models.Position)
	return a.snapshotLocked(), nil
}

// SetPriceRange updates the grid padding fraction. Out-of-range values
// leave the state untouched.
func (a *Aggregator) SetPriceRange(rangePct float64) (Confirmation, error) {
	if rangePct < minPriceRange || rangePct > maxPriceRange {
		return a.Snapshot(), apperrors.NewValidationError("price_range", rangePct,
			fmt.Sprintf("must be within [%v, %v]", minPriceRange, maxPriceRange))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.priceRange = rangePct
	return a.snapshotLocked(), nil
}

// SetLotSize updates the payoff scale. Must be positive.
func (a *Aggregator) SetLotSize(lotSize float64) (Confirmation, error) {
	if lotSize <= 0 {
		return a.Snapshot(), apperrors.NewValidationError("lot_size", lotSize, "must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lotSize = lotSize
	return a.snapshotLocked(), nil
}

// Curve computes the aggregate payoff curve of the current selection
// against live market data. An empty selection yields an empty curve.
func (a *Aggregator) Curve(ctx context.Context) (models.Curve, error) {
	a.mu.RLock()
	selection := make(map[string]models.Position, len(a.selection))
	for s, p := range a.selection {
		selection[s] = p
	}
	rangePct, lotSize, points := a.priceRange, a.lotSize, a.points
	a.mu.RUnlock()

	if len(selection) == 0 {
		return models.Curve{X: []float64{}, Y: []float64{}}, nil
	}

	symbols := make([]string, 0, len(selection))
	for s := range selection {
		symbols = append(symbols, s)
	}
	tickers, err := a.tickers.ListBySymbols(ctx, symbols)
	if err != nil {
		return models.Curve{}, apperrors.Wrap(err, "loading selected tickers")
	}

	legs := resolveLegs(selection, tickers)
	if dropped := len(selection) - len(legs); dropped > 0 {
		a.logger.Warn().Int("dropped", dropped).Msg("Selected legs without usable market data")
	}
	return curveFromLegs(legs, rangePct, lotSize, points), nil
}

// ExpectedValue scores the current selection against simulated terminal
// prices for (coin, expiry). Every selected leg must belong to that
// underlying and expiry, otherwise the mix would silently price one
// chain against another's simulation.
func (a *Aggregator) ExpectedValue(ctx context.Context, coin string, expiry time.Time, terminalPrices []float64) (*models.ExpectedValue, error) {
	a.mu.RLock()
	selection := make(map[string]models.Position, len(a.selection))
	for s, p := range a.selection {
		selection[s] = p
	}
	lotSize := a.lotSize
	a.mu.RUnlock()

	if len(selection) == 0 {
		return nil, apperrors.ErrNoSelection
	}
	if len(terminalPrices) == 0 {
		return nil, apperrors.ErrDataNotFound
	}

	symbols := make([]string, 0, len(selection))
	for symbol := range selection {
		sym, err := contract.Parse(symbol)
		if err != nil {
			return nil, apperrors.NewValidationError("symbol", symbol, "selected leg is not an option contract")
		}
		if !sym.MatchesUnderlying(coin) || !sym.ExpiresOn(expiry) {
			return nil, apperrors.NewValidationError("symbol", symbol,
				"selected leg does not match the simulated underlying and expiry")
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	tickers, err := a.tickers.ListBySymbols(ctx, symbols)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading selected tickers")
	}

	legs := resolveLegs(selection, tickers)
	if len(legs) == 0 {
		return nil, apperrors.ErrDataNotFound
	}

	payoffs := make([]float64, len(terminalPrices))
	for _, l := range legs {
		for i, price := range terminalPrices {
			payoffs[i] += PayoffAt(price, l.strike, l.premium, l.direction, lotSize, l.isCall)
		}
	}

	payoffDist, err := describe(payoffs)
	if err != nil {
		return nil, apperrors.NewComputationError("expected-value", coin, err)
	}
	priceDist, err := describe(terminalPrices)
	if err != nil {
		return nil, apperrors.NewComputationError("expected-value", coin, err)
	}

	return &models.ExpectedValue{Payoffs: payoffDist, Prices: priceDist}, nil
}

// describe reduces a sample to its summary distribution.
func describe(sample []float64) (models.Distribution, error) {
	mean, err := stats.Mean(sample)
	if err != nil {
		return models.Distribution{}, err
	}
	median, err := stats.Median(sample)
	if err != nil {
		return models.Distribution{}, err
	}
	min, err := stats.Min(sample)
	if err != nil {
		return models.Distribution{}, err
	}
	max, err := stats.Max(sample)
	if err != nil {
		return models.Distribution{}, err
	}
	// PercentileNearestRank is defined for any non-empty sample, while
	// Percentile errors whenever the rank falls below one element.
	p5, err := stats.PercentileNearestRank(sample, 5)
	if err != nil {
		return models.Distribution{}, err
	}
	p95, err := stats.PercentileNearestRank(sample, 95)
	if err != nil {
		return models.Distribution{}, err
	}

	return models.Distribution{Mean: mean, Median: median, Min: min, Max: max, P5: p5, P95: p95}, nil
}
