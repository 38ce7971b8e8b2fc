// Package ingest turns raw exchange frames into canonical tickers and
// drives them into the store.
package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/models"
)

// rawTicker mirrors the exchange's v2/ticker frame. Numeric fields
// arrive as strings or numbers depending on the field, so everything is
// decoded loosely and coerced afterwards.
type rawTicker struct {
	Type         string      `json:"type"`
	Symbol       string      `json:"symbol"`
	Timestamp    int64       `json:"timestamp"` // epoch microseconds
	ContractType string      `json:"contract_type"`
	Underlying   string      `json:"underlying_asset_symbol"`
	MarkPrice    interface{} `json:"mark_price"`
	SpotPrice    interface{} `json:"spot_price"`
	Open         interface{} `json:"open"`
	High         interface{} `json:"high"`
	Low          interface{} `json:"low"`
	Close        interface{} `json:"close"`
	Volume       interface{} `json:"volume"`
	Turnover     interface{} `json:"turnover"`
	OI           interface{} `json:"oi"`
	OIValue      interface{} `json:"oi_value"`
	OIContracts  interface{} `json:"oi_contracts"`
	StrikePrice  interface{} `json:"strike_price"`
	MarkBasis    interface{} `json:"mark_basis"`
	FundingRate  interface{} `json:"funding_rate"`

	Quotes *struct {
		BestBid        interface{} `json:"best_bid"`
		BestAsk        interface{} `json:"best_ask"`
		BidSize        interface{} `json:"bid_size"`
		AskSize        interface{} `json:"ask_size"`
		BidIV          interface{} `json:"bid_iv"`
		AskIV          interface{} `json:"ask_iv"`
		MarkIV         interface{} `json:"mark_iv"`
		ImpactMidPrice interface{} `json:"impact_mid_price"`
	} `json:"quotes"`

	Greeks *struct {
		Delta interface{} `json:"delta"`
		Gamma interface{} `json:"gamma"`
		Theta interface{} `json:"theta"`
		Vega  interface{} `json:"vega"`
		Rho   interface{} `json:"rho"`
	} `json:"greeks"`

	PriceBand *struct {
		LowerLimit interface{} `json:"lower_limit"`
		UpperLimit interface{} `json:"upper_limit"`
	} `json:"price_band"`
}

// coerceDecimal converts a loosely typed field to a decimal. Anything
// unparsable comes back nil: a garbled field means "absent", never
// zero.
func coerceDecimal(v interface{}) *decimal.Decimal {
	if v == nil {
		return nil
	}

	var d decimal.Decimal
	var err error
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		d, err = decimal.NewFromString(t)
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case float64:
		d = decimal.NewFromFloat(t)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}

// coerceInt converts a loosely typed field to an int64 pointer.
func coerceInt(v interface{}) *int64 {
	d := coerceDecimal(v)
	if d == nil {
		return nil
	}
	n := d.IntPart()
	return &n
}

// Normalize parses a raw ticker frame into the canonical model.
// Non-ticker frames (subscription acks, heartbeats) and structurally
// broken tickers produce a DecodeError so the caller can drop them.
func Normalize(raw []byte) (*models.Ticker, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var frame rawTicker
	if err := decoder.Decode(&frame); err != nil {
		return nil, apperrors.NewDecodeError("unknown", "malformed frame", err)
	}

	if frame.Type != "v2/ticker" {
		return nil, apperrors.NewDecodeError(frame.Type, "not a ticker frame", nil)
	}
	if frame.Symbol == "" {
		return nil, apperrors.NewDecodeError(frame.Type, "missing symbol", nil)
	}

	contractType := models.ContractType(frame.ContractType)
	if !contractType.Known() {
		return nil, apperrors.NewDecodeError(frame.Type, "unknown contract type "+frame.ContractType, nil)
	}

	markPrice := coerceDecimal(frame.MarkPrice)
	if markPrice == nil {
		return nil, apperrors.NewDecodeError(frame.Type, "missing mark price", nil)
	}

	ticker := &models.Ticker{
		Symbol:       frame.Symbol,
		Timestamp:    frame.Timestamp / 1000, // exchange sends microseconds
		ContractType: contractType,
		Underlying:   frame.Underlying,
		MarkPrice:    *markPrice,
		SpotPrice:    coerceDecimal(frame.SpotPrice),
		Open:         coerceDecimal(frame.Open),
		High:         coerceDecimal(frame.High),
		Low:          coerceDecimal(frame.Low),
		Close:        coerceDecimal(frame.Close),
		Volume:       coerceDecimal(frame.Volume),
		Turnover:     coerceDecimal(frame.Turnover),
		OI:           coerceDecimal(frame.OI),
		OIValue:      coerceDecimal(frame.OIValue),
		OIContracts:  coerceInt(frame.OIContracts),
	}

	if frame.Quotes != nil {
		quote := &models.Quote{
			BestBid:        coerceDecimal(frame.Quotes.BestBid),
			BestAsk:        coerceDecimal(frame.Quotes.BestAsk),
			BidSize:        coerceDecimal(frame.Quotes.BidSize),
			AskSize:        coerceDecimal(frame.Quotes.AskSize),
			BidIV:          coerceDecimal(frame.Quotes.BidIV),
			AskIV:          coerceDecimal(frame.Quotes.AskIV),
			MarkIV:         coerceDecimal(frame.Quotes.MarkIV),
			ImpactMidPrice: coerceDecimal(frame.Quotes.ImpactMidPrice),
		}
		if *quote != (models.Quote{}) {
			ticker.Quote = quote
		}
	}

	if frame.PriceBand != nil {
		band := &models.PriceBand{
			LowerLimit: coerceDecimal(frame.PriceBand.LowerLimit),
			UpperLimit: coerceDecimal(frame.PriceBand.UpperLimit),
		}
		if *band != (models.PriceBand{}) {
			ticker.PriceBand = band
		}
	}

	switch {
	case contractType.IsOption():
		// A garbled strike becomes absent like any other numeric field;
		// the stored value survives the merge.
		detail := &models.OptionDetail{StrikePrice: coerceDecimal(frame.StrikePrice)}
		if frame.Greeks != nil {
			greeks := &models.Greeks{
				Delta: coerceDecimal(frame.Greeks.Delta),
				Gamma: coerceDecimal(frame.Greeks.Gamma),
				Theta: coerceDecimal(frame.Greeks.Theta),
				Vega:  coerceDecimal(frame.Greeks.Vega),
				Rho:   coerceDecimal(frame.Greeks.Rho),
			}
			if *greeks != (models.Greeks{}) {
				detail.Greeks = greeks
			}
		}
		ticker.Option = detail
	case contractType.IsFuture():
		ticker.Future = &models.FutureDetail{
			MarkBasis:   coerceDecimal(frame.MarkBasis),
			FundingRate: coerceDecimal(frame.FundingRate),
		}
	}

	return ticker, nil
}
