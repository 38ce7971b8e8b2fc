// Package contract parses and formats dash-delimited derivative contract
// symbols of the form C-BTC-75600-010325.
package contract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"hedge-lords/internal/errors"
)

// expiryLayout is the DDMMYY expiry encoding used by the exchange.
const expiryLayout = "020106"

// Symbol is the structured view of a contract symbol string. A symbol has
// exactly four dash-separated parts: kind, three-letter underlying, strike
// and DDMMYY expiry.
type Symbol struct {
	Kind       string
	Underlying string
	Strike     float64
	Expiry     time.Time
}

// Parse decodes a contract symbol string.
func Parse(s string) (Symbol, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Symbol{}, errors.NewValidationError("symbol", s, "expected 4 dash-separated parts")
	}
	if parts[0] != "C" && parts[0] != "P" {
		return Symbol{}, errors.NewValidationError("kind", parts[0], "expected C or P")
	}

	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Symbol{}, errors.NewValidationError("strike", parts[2], "not numeric")
	}

	expiry, err := time.ParseInLocation(expiryLayout, parts[3], time.UTC)
	if err != nil {
		return Symbol{}, errors.NewValidationError("expiry", parts[3], "not a valid DDMMYY date")
	}

	return Symbol{
		Kind:       parts[0],
		Underlying: parts[1],
		Strike:     strike,
		Expiry:     expiry,
	}, nil
}

// String re-encodes the symbol into its wire form.
func (s Symbol) String() string {
	return fmt.Sprintf("%s-%s-%s-%s",
		s.Kind,
		s.Underlying,
		strconv.FormatFloat(s.Strike, 'f', -1, 64),
		s.Expiry.Format(expiryLayout),
	)
}

// MatchesUnderlying reports whether the symbol's underlying prefix matches
// the first three letters of the requested coin (e.g. BTCUSD -> BTC).
func (s Symbol) MatchesUnderlying(coin string) bool {
	return s.Underlying == UnderlyingCode(coin)
}

// ExpiresOn reports whether the symbol expires on the given calendar day.
func (s Symbol) ExpiresOn(date time.Time) bool {
	y1, m1, d1 := s.Expiry.Date()
	y2, m2, d2 := date.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ExpiryInstant anchors the expiry date at the given UTC time of day.
func (s Symbol) ExpiryInstant(anchor time.Duration) time.Time {
	y, m, d := s.Expiry.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(anchor)
}

// ExpiryISO returns the expiry date in ISO form (YYYY-MM-DD).
func (s Symbol) ExpiryISO() string {
	return s.Expiry.Format("2006-01-02")
}

// UnderlyingCode reduces a coin symbol to its three-letter contract code.
func UnderlyingCode(coin string) string {
	if len(coin) < 3 {
		return coin
	}
	return coin[:3]
}

// ExpiryISOFromSymbol extracts the ISO expiry date from a raw symbol
// string, or "" when the symbol does not parse.
func ExpiryISOFromSymbol(symbol string) string {
	s, err := Parse(symbol)
	if err != nil {
		return ""
	}
	return s.ExpiryISO()
}
