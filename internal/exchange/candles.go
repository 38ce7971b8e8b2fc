package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/models"
)

// window is one history request range, inclusive start to exclusive end,
// both unix seconds.
type window struct {
	Start int64
	End   int64
}

// paginate splits [start, end) into successive windows of at most
// pageSize bars, walking backward from end. The earliest window absorbs
// the remainder, so windows never overlap and cover the range exactly.
func paginate(start, end time.Time, resolution time.Duration, pageSize int) []window {
	step := int64(resolution / time.Second)
	if step <= 0 || pageSize <= 0 || !end.After(start) {
		return nil
	}

	total := (end.Unix() - start.Unix()) / step
	if total <= 0 {
		return nil
	}

	var windows []window
	cursor := end.Unix()
	remaining := total
	for remaining > 0 {
		bars := int64(pageSize)
		if bars > remaining {
			bars = remaining
		}
		windows = append(windows, window{Start: cursor - bars*step, End: cursor})
		cursor -= bars * step
		remaining -= bars
	}

	// Oldest first, so the concatenated result is nearly sorted.
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	return windows
}

// candlesResponse is the wire shape of /v2/history/candles.
type candlesResponse struct {
	Success bool `json:"success"`
	Result  []struct {
		Time   int64   `json:"time"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"result"`
}

// HistoricalCandles fetches OHLCV bars for the symbol over [start, end),
// paging backward in windows of at most PageSize bars. Individual page
// failures degrade to missing data rather than failing the whole load.
// The result is ascending by timestamp with duplicates removed.
func (g *Gateway) HistoricalCandles(ctx context.Context, symbol string, resolution models.Resolution, start, end time.Time) ([]models.Candle, error) {
	if !resolution.Valid() {
		return nil, apperrors.NewValidationError("resolution", string(resolution), "unknown resolution")
	}

	windows := paginate(start, end, resolution.Duration(), g.cfg.PageSize)

	var candles []models.Candle
	for _, w := range windows {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := g.fetchCandlePage(ctx, symbol, resolution, w)
		if err != nil {
			g.logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Int64("start", w.Start).
				Int64("end", w.End).
				Msg("Candle page failed, skipping")
			continue
		}
		candles = append(candles, page...)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })

	deduped := candles[:0]
	var lastTS time.Time
	for _, c := range candles {
		if !lastTS.IsZero() && c.Timestamp.Equal(lastTS) {
			continue
		}
		deduped = append(deduped, c)
		lastTS = c.Timestamp
	}
	return deduped, nil
}

func (g *Gateway) fetchCandlePage(ctx context.Context, symbol string, resolution models.Resolution, w window) ([]models.Candle, error) {
	endpoint := g.cfg.BaseURL + "/v2/history/candles"
	params := url.Values{
		"resolution": {string(resolution)},
		"symbol":     {symbol},
		"start":      {strconv.FormatInt(w.Start, 10)},
		"end":        {strconv.FormatInt(w.End, 10)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building candles request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError("candles", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewTransportError("candles", endpoint, fmt.Errorf("status %d", resp.StatusCode))
	}

	var decoded candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewDecodeError("candles", "malformed response body", err)
	}
	if !decoded.Success {
		return nil, apperrors.NewDecodeError("candles", "exchange reported failure", nil)
	}

	candles := make([]models.Candle, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Timestamp: time.Unix(r.Time, 0).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return candles, nil
}
