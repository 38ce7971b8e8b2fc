package payoff

import (
	"context"
	"sort"

	"hedge-lords/internal/contract"
	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/models"
	"hedge-lords/internal/store"
)

// Chain projects every stored option ticker into the reduced shape the
// options-chain feed serves, sorted by strike then symbol. Futures rows
// are skipped; they carry no strike to sort on.
func Chain(ctx context.Context, tickers store.TickerStore) ([]models.ChainEntry, error) {
	all, err := tickers.All(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading tickers")
	}

	entries := make([]models.ChainEntry, 0, len(all))
	for i := range all {
		t := &all[i]
		if !t.IsOption() {
			continue
		}

		entry := models.ChainEntry{
			Symbol:       t.Symbol,
			ContractType: t.ContractType.Short(),
			ExpiryDate:   contract.ExpiryISOFromSymbol(t.Symbol),
		}
		if strike, ok := t.Strike(); ok {
			entry.Strike = &strike
		}
		if bid, ok := t.BestBid(); ok {
			entry.BestBid = &bid
		}
		if ask, ok := t.BestAsk(); ok {
			entry.BestAsk = &ask
		}
		if t.SpotPrice != nil {
			spot := t.SpotPrice.InexactFloat64()
			entry.SpotPrice = &spot
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		si, sj := entries[i], entries[j]
		switch {
		case si.Strike == nil:
			return false
		case sj.Strike == nil:
			return true
		case *si.Strike != *sj.Strike:
			return *si.Strike < *sj.Strike
		}
		return si.Symbol < sj.Symbol
	})
	return entries, nil
}
