package models

import (
	"github.com/shopspring/decimal"
)

// ContractType classifies a contract as an option or a future, using the
// exchange's own type tags.
type ContractType string

const (
	CallOption      ContractType = "call_options"
	PutOption       ContractType = "put_options"
	PerpetualFuture ContractType = "perpetual_futures"
)

// IsOption reports whether the contract is a call or put option.
func (c ContractType) IsOption() bool {
	return c == CallOption || c == PutOption
}

// IsFuture reports whether the contract is a futures contract.
func (c ContractType) IsFuture() bool {
	return c == PerpetualFuture
}

// Known reports whether the contract type is one the pipeline understands.
func (c ContractType) Known() bool {
	return c.IsOption() || c.IsFuture()
}

// Short returns the abbreviated form used on the options-chain feed
// ("call", "put", or the raw tag for futures).
func (c ContractType) Short() string {
	switch c {
	case CallOption:
		return "call"
	case PutOption:
		return "put"
	default:
		return string(c)
	}
}

// Quote holds the top-of-book quote block of a ticker. Every field is
// optional: an individual tick frequently omits fields that were present
// moments earlier.
type Quote struct {
	BestBid        *decimal.Decimal `json:"best_bid"`
	BestAsk        *decimal.Decimal `json:"best_ask"`
	BidSize        *decimal.Decimal `json:"bid_size"`
	AskSize        *decimal.Decimal `json:"ask_size"`
	BidIV          *decimal.Decimal `json:"bid_iv"`
	AskIV          *decimal.Decimal `json:"ask_iv"`
	MarkIV         *decimal.Decimal `json:"mark_iv"`
	ImpactMidPrice *decimal.Decimal `json:"impact_mid_price"`
}

// Greeks holds option sensitivities. Futures tickers never carry greeks.
type Greeks struct {
	Delta *decimal.Decimal `json:"delta"`
	Gamma *decimal.Decimal `json:"gamma"`
	Theta *decimal.Decimal `json:"theta"`
	Vega  *decimal.Decimal `json:"vega"`
	Rho   *decimal.Decimal `json:"rho"`
}

// PriceBand holds the exchange circuit limits for a contract.
type PriceBand struct {
	LowerLimit *decimal.Decimal `json:"lower_limit"`
	UpperLimit *decimal.Decimal `json:"upper_limit"`
}

// OptionDetail carries the option-only fields of a ticker. StrikePrice can
// be absent on a garbled tick; the merge then keeps the stored value.
type OptionDetail struct {
	StrikePrice *decimal.Decimal `json:"strike_price"`
	Greeks      *Greeks          `json:"greeks"`
}

// FutureDetail carries the futures-only fields of a ticker.
type FutureDetail struct {
	MarkBasis   *decimal.Decimal `json:"mark_basis"`
	FundingRate *decimal.Decimal `json:"funding_rate"`
}

// Ticker is the canonical market snapshot for one contract. Exactly one of
// Option or Future is set, matching ContractType; MarkPrice is always
// present, everything else is optional.
type Ticker struct {
	Symbol       string
	Timestamp    int64 // epoch milliseconds
	ContractType ContractType
	Underlying   string

	MarkPrice decimal.Decimal
	SpotPrice *decimal.Decimal

	Open  *decimal.Decimal
	High  *decimal.Decimal
	Low   *decimal.Decimal
	Close *decimal.Decimal

	Volume      *decimal.Decimal
	Turnover    *decimal.Decimal
	OI          *decimal.Decimal
	OIValue     *decimal.Decimal
	OIContracts *int64

	Quote     *Quote
	PriceBand *PriceBand

	Option *OptionDetail
	Future *FutureDetail
}

// IsOption reports whether the ticker describes an option contract.
func (t *Ticker) IsOption() bool {
	return t.Option != nil
}

// IsFuture reports whether the ticker describes a futures contract.
func (t *Ticker) IsFuture() bool {
	return t.Future != nil
}

// BestBid returns the best bid as a float, or false when absent.
func (t *Ticker) BestBid() (float64, bool) {
	if t.Quote == nil || t.Quote.BestBid == nil {
		return 0, false
	}
	return t.Quote.BestBid.InexactFloat64(), true
}

// BestAsk returns the best ask as a float, or false when absent.
func (t *Ticker) BestAsk() (float64, bool) {
	if t.Quote == nil || t.Quote.BestAsk == nil {
		return 0, false
	}
	return t.Quote.BestAsk.InexactFloat64(), true
}

// Strike returns the option strike as a float, or false for futures and
// options whose strike is not known yet.
func (t *Ticker) Strike() (float64, bool) {
	if t.Option == nil || t.Option.StrikePrice == nil {
		return 0, false
	}
	return t.Option.StrikePrice.InexactFloat64(), true
}
