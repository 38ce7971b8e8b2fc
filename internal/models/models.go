// Package models provides domain models for the market data pipeline.
package models

import (
	"time"
)

// Position represents the side of a selected contract leg.
type Position string

const (
	PositionBuy  Position = "buy"
	PositionSell Position = "sell"
)

// Valid reports whether the position is a known value.
func (p Position) Valid() bool {
	return p == PositionBuy || p == PositionSell
}

// Direction returns +1 for a held (bought) position and -1 for a written (sold) one.
func (p Position) Direction() float64 {
	if p == PositionSell {
		return -1
	}
	return 1
}

// Resolution represents a candle bar resolution.
type Resolution string

const (
	Minute1  Resolution = "1m"
	Minute5  Resolution = "5m"
	Minute15 Resolution = "15m"
	Minute30 Resolution = "30m"
	Hour1    Resolution = "1h"
	Hour2    Resolution = "2h"
	Hour4    Resolution = "4h"
	Hour6    Resolution = "6h"
	Day1     Resolution = "1d"
	Day7     Resolution = "7d"
	Day30    Resolution = "30d"
	Week1    Resolution = "1w"
	Week2    Resolution = "2w"
)

// resolutionSeconds maps each resolution to its bar length in seconds.
var resolutionSeconds = map[Resolution]int64{
	Minute1:  60,
	Minute5:  300,
	Minute15: 900,
	Minute30: 1800,
	Hour1:    3600,
	Hour2:    7200,
	Hour4:    14400,
	Hour6:    21600,
	Day1:     86400,
	Day7:     86400 * 7,
	Day30:    86400 * 30,
	Week1:    86400 * 7,
	Week2:    86400 * 14,
}

// resolutionNames maps each resolution to a stable name used in cache keys.
var resolutionNames = map[Resolution]string{
	Minute1:  "MINUTE_1",
	Minute5:  "MINUTE_5",
	Minute15: "MINUTE_15",
	Minute30: "MINUTE_30",
	Hour1:    "HOUR_1",
	Hour2:    "HOUR_2",
	Hour4:    "HOUR_4",
	Hour6:    "HOUR_6",
	Day1:     "DAY_1",
	Day7:     "DAY_7",
	Day30:    "DAY_30",
	Week1:    "WEEK_1",
	Week2:    "WEEK_2",
}

// Valid reports whether the resolution is a known value.
func (r Resolution) Valid() bool {
	_, ok := resolutionSeconds[r]
	return ok
}

// Seconds returns the bar length in seconds, or 0 for an unknown resolution.
func (r Resolution) Seconds() int64 {
	return resolutionSeconds[r]
}

// Duration returns the bar length as a time.Duration.
func (r Resolution) Duration() time.Duration {
	return time.Duration(r.Seconds()) * time.Second
}

// Name returns a stable uppercase name for the resolution, used in
// simulation cache file names.
func (r Resolution) Name() string {
	if name, ok := resolutionNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Candle represents OHLCV data for a single bar.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ClosePoint is one point of a time-ordered close-price series.
type ClosePoint struct {
	Timestamp time.Time
	Close     float64
}

// Curve is an ordered payoff curve: X ascending prices, Y the aggregate
// payoff at each price. Both slices always have equal length.
type Curve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Distribution summarizes a sample of values.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P5     float64 `json:"percentile_5"`
	P95    float64 `json:"percentile_95"`
}

// ExpectedValue holds the payoff and terminal-price distributions for the
// current selection against one simulated expiry.
type ExpectedValue struct {
	Payoffs Distribution `json:"expected_values"`
	Prices  Distribution `json:"expected_prices"`
}

// ChainEntry is the reduced per-contract projection served on the
// options-chain feed.
type ChainEntry struct {
	Symbol       string   `json:"symbol"`
	ContractType string   `json:"contract_type"`
	Strike       *float64 `json:"strike_price"`
	BestBid      *float64 `json:"best_bid"`
	BestAsk      *float64 `json:"best_ask"`
	SpotPrice    *float64 `json:"spot_price"`
	ExpiryDate   string   `json:"expiry_date,omitempty"`
}

// SelectedLeg is a chain entry plus the chosen position, as used by the
// payoff feed.
type SelectedLeg struct {
	ChainEntry
	Position Position `json:"position"`
}
