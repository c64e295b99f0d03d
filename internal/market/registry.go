package market

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Metadata is the per-market precision and minimum size data needed to build orders.
type Metadata struct {
	Ticker         string
	MarketIndex    int
	PricePrecision int32
	SizePrecision  int32
	MinBaseAmount  decimal.Decimal
	// MinQuoteAmount is reported by the exchange but not enforced locally.
	MinQuoteAmount decimal.Decimal
}

// Registry is an immutable ticker <-> index table. It is only ever handed out
// fully built, so readers never lock.
type Registry struct {
	byTicker map[string]Metadata
	byIndex  map[int]Metadata
	tickers  []string
}

// Populate builds a registry from an orderBooks listing. The listing may be the
// full response object or its order_books array.
func Populate(listing any) (*Registry, error) {
	entries, err := listingEntries(listing)
	if err != nil {
		return nil, err
	}
	reg := &Registry{
		byTicker: make(map[string]Metadata, len(entries)),
		byIndex:  make(map[int]Metadata, len(entries)),
		tickers:  make([]string, 0, len(entries)),
	}
	for i, raw := range entries {
		meta, err := parseMetadata(i, raw)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.byTicker[meta.Ticker]; dup {
			return nil, &PopulationError{Entry: i, Field: "symbol", Reason: fmt.Sprintf("duplicate ticker %q", meta.Ticker)}
		}
		if _, dup := reg.byIndex[meta.MarketIndex]; dup {
			return nil, &PopulationError{Entry: i, Field: "market_id", Reason: fmt.Sprintf("duplicate market index %d", meta.MarketIndex)}
		}
		reg.byTicker[meta.Ticker] = meta
		reg.byIndex[meta.MarketIndex] = meta
		reg.tickers = append(reg.tickers, meta.Ticker)
	}
	sort.Strings(reg.tickers)
	return reg, nil
}

func listingEntries(listing any) ([]any, error) {
	if listing == nil {
		return nil, &PopulationError{Entry: -1, Reason: "listing is empty"}
	}
	if m, ok := toMap(listing); ok {
		raw, present := m["order_books"]
		if !present {
			return nil, &PopulationError{Entry: -1, Field: "order_books", Reason: "missing order_books"}
		}
		listing = raw
	}
	entries, ok := toSlice(listing)
	if !ok {
		return nil, &PopulationError{Entry: -1, Field: "order_books", Reason: fmt.Sprintf("expected array, got %T", listing)}
	}
	if len(entries) == 0 {
		return nil, &PopulationError{Entry: -1, Reason: "listing is empty"}
	}
	return entries, nil
}

func parseMetadata(i int, raw any) (Metadata, error) {
	entry, ok := toMap(raw)
	if !ok {
		return Metadata{}, &PopulationError{Entry: i, Reason: fmt.Sprintf("expected object, got %T", raw)}
	}
	missing := func(field string) error {
		return &PopulationError{Entry: i, Field: field, Reason: "missing or malformed"}
	}
	ticker := stringFromMap(entry, "symbol")
	if ticker == "" {
		return Metadata{}, missing("symbol")
	}
	index, ok := intFromAny(entry["market_id"])
	if !ok {
		return Metadata{}, missing("market_id")
	}
	if index < 0 {
		return Metadata{}, &PopulationError{Entry: i, Field: "market_id", Reason: "negative market index"}
	}
	pricePrec, ok := intFromAny(entry["supported_price_decimals"])
	if !ok {
		return Metadata{}, missing("supported_price_decimals")
	}
	sizePrec, ok := intFromAny(entry["supported_size_decimals"])
	if !ok {
		return Metadata{}, missing("supported_size_decimals")
	}
	if pricePrec < 0 || sizePrec < 0 || pricePrec > maxPrecision || sizePrec > maxPrecision {
		return Metadata{}, &PopulationError{Entry: i, Field: "supported_decimals", Reason: "precision out of range"}
	}
	minBase, ok := decimalFromAny(entry["min_base_amount"])
	if !ok {
		return Metadata{}, missing("min_base_amount")
	}
	minQuote, ok := decimalFromAny(entry["min_quote_amount"])
	if !ok {
		return Metadata{}, missing("min_quote_amount")
	}
	return Metadata{
		Ticker:         ticker,
		MarketIndex:    index,
		PricePrecision: int32(pricePrec),
		SizePrecision:  int32(sizePrec),
		MinBaseAmount:  minBase,
		MinQuoteAmount: minQuote,
	}, nil
}

const maxPrecision = 18

func (r *Registry) Resolve(ticker string) (Metadata, error) {
	if r == nil {
		return Metadata{}, ErrNotPopulated
	}
	meta, ok := r.byTicker[ticker]
	if !ok {
		return Metadata{}, &UnknownTickerError{Ticker: ticker}
	}
	return meta, nil
}

// ResolveIndex maps a ref to a market index. Index refs pass through without a
// registry check.
func (r *Registry) ResolveIndex(ref Ref) (int, error) {
	if ref.IsIndex() {
		return ref.MarketIndex(), nil
	}
	meta, err := r.Resolve(ref.TickerName())
	if err != nil {
		return 0, err
	}
	return meta.MarketIndex, nil
}

// Lookup returns metadata for either kind of ref. Unlike ResolveIndex it needs
// the market to be listed, since callers want its precision.
func (r *Registry) Lookup(ref Ref) (Metadata, error) {
	if !ref.IsIndex() {
		return r.Resolve(ref.TickerName())
	}
	if r == nil {
		return Metadata{}, ErrNotPopulated
	}
	meta, ok := r.byIndex[ref.MarketIndex()]
	if !ok {
		return Metadata{}, &UnknownTickerError{Index: ref.MarketIndex(), ByIndex: true}
	}
	return meta, nil
}

func (r *Registry) Ticker(index int) (string, bool) {
	if r == nil {
		return "", false
	}
	meta, ok := r.byIndex[index]
	return meta.Ticker, ok
}

func (r *Registry) Tickers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.tickers))
	copy(out, r.tickers)
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byTicker)
}
