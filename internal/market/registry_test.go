package market

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func listing() map[string]any {
	return map[string]any{
		"code": json.Number("200"),
		"order_books": []any{
			map[string]any{
				"symbol":                   "ETH",
				"market_id":                json.Number("0"),
				"supported_price_decimals": json.Number("2"),
				"supported_size_decimals":  json.Number("4"),
				"min_base_amount":          "0.0050",
				"min_quote_amount":         "10.000000",
			},
			map[string]any{
				"symbol":                   "XRP",
				"market_id":                json.Number("7"),
				"supported_price_decimals": json.Number("4"),
				"supported_size_decimals":  json.Number("0"),
				"min_base_amount":          "20",
				"min_quote_amount":         "10",
			},
		},
	}
}

func mustPopulate(t *testing.T) *Registry {
	t.Helper()
	reg, err := Populate(listing())
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	return reg
}

func TestPopulateAndResolve(t *testing.T) {
	reg := mustPopulate(t)
	if reg.Len() != 2 {
		t.Fatalf("expected 2 markets, got %d", reg.Len())
	}
	meta, err := reg.Resolve("XRP")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.MarketIndex != 7 || meta.PricePrecision != 4 || meta.SizePrecision != 0 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if !meta.MinBaseAmount.Equal(decimal.NewFromInt(20)) || !meta.MinQuoteAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected minimums %+v", meta)
	}
	if got := reg.Tickers(); len(got) != 2 || got[0] != "ETH" || got[1] != "XRP" {
		t.Fatalf("unexpected tickers %v", got)
	}
}

func TestTickerIndexRoundTrip(t *testing.T) {
	reg := mustPopulate(t)
	for _, ticker := range reg.Tickers() {
		idx, err := reg.ResolveIndex(Ticker(ticker))
		if err != nil {
			t.Fatalf("resolve %s: %v", ticker, err)
		}
		back, ok := reg.Ticker(idx)
		if !ok || back != ticker {
			t.Fatalf("round trip %s -> %d -> %s", ticker, idx, back)
		}
	}
}

func TestResolveUnknownTicker(t *testing.T) {
	reg := mustPopulate(t)
	_, err := reg.ResolveIndex(Ticker("DOGE"))
	if !errors.Is(err, ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker, got %v", err)
	}
	var unknown *UnknownTickerError
	if !errors.As(err, &unknown) || unknown.Ticker != "DOGE" {
		t.Fatalf("expected ticker in error, got %v", err)
	}
}

func TestResolveIndexPassesThroughIndexRefs(t *testing.T) {
	reg := mustPopulate(t)
	idx, err := reg.ResolveIndex(Index(99))
	if err != nil || idx != 99 {
		t.Fatalf("expected unchecked passthrough, got %d %v", idx, err)
	}
	if _, err := reg.Lookup(Index(99)); !errors.Is(err, ErrUnknownTicker) {
		t.Fatalf("expected lookup of unlisted index to fail, got %v", err)
	}
	meta, err := reg.Lookup(Index(7))
	if err != nil || meta.Ticker != "XRP" {
		t.Fatalf("expected XRP by index, got %+v %v", meta, err)
	}
}

func TestNilRegistryFails(t *testing.T) {
	var reg *Registry
	if _, err := reg.Resolve("XRP"); !errors.Is(err, ErrNotPopulated) {
		t.Fatalf("expected ErrNotPopulated from Resolve, got %v", err)
	}
	if _, err := reg.ResolveIndex(Ticker("XRP")); !errors.Is(err, ErrNotPopulated) {
		t.Fatalf("expected ErrNotPopulated from ResolveIndex, got %v", err)
	}
	if _, err := reg.Lookup(Index(7)); !errors.Is(err, ErrNotPopulated) {
		t.Fatalf("expected ErrNotPopulated from Lookup, got %v", err)
	}
	if _, ok := reg.Ticker(7); ok {
		t.Fatalf("expected no ticker from nil registry")
	}
	if reg.Tickers() != nil || reg.Len() != 0 {
		t.Fatalf("expected empty nil registry")
	}
}

func TestPopulateErrors(t *testing.T) {
	withEntry := func(mutate func(map[string]any)) map[string]any {
		l := listing()
		entry := l["order_books"].([]any)[1].(map[string]any)
		mutate(entry)
		return l
	}
	cases := []struct {
		name    string
		listing any
		field   string
	}{
		{"nil", nil, ""},
		{"missing key", map[string]any{"code": 200}, "order_books"},
		{"not array", map[string]any{"order_books": "x"}, "order_books"},
		{"empty", map[string]any{"order_books": []any{}}, ""},
		{"missing symbol", withEntry(func(e map[string]any) { delete(e, "symbol") }), "symbol"},
		{"missing market id", withEntry(func(e map[string]any) { delete(e, "market_id") }), "market_id"},
		{"fractional market id", withEntry(func(e map[string]any) { e["market_id"] = json.Number("1.5") }), "market_id"},
		{"missing price decimals", withEntry(func(e map[string]any) { delete(e, "supported_price_decimals") }), "supported_price_decimals"},
		{"negative size decimals", withEntry(func(e map[string]any) { e["supported_size_decimals"] = json.Number("-1") }), "supported_decimals"},
		{"bad min base", withEntry(func(e map[string]any) { e["min_base_amount"] = "abc" }), "min_base_amount"},
		{"missing min quote", withEntry(func(e map[string]any) { delete(e, "min_quote_amount") }), "min_quote_amount"},
		{"duplicate ticker", withEntry(func(e map[string]any) { e["symbol"] = "ETH" }), "symbol"},
		{"duplicate index", withEntry(func(e map[string]any) { e["market_id"] = json.Number("0") }), "market_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg, err := Populate(tc.listing)
			if reg != nil {
				t.Fatalf("expected no registry on error")
			}
			if !errors.Is(err, ErrRegistryPopulation) {
				t.Fatalf("expected ErrRegistryPopulation, got %v", err)
			}
			var popErr *PopulationError
			if !errors.As(err, &popErr) || popErr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestPopulateAcceptsBareArray(t *testing.T) {
	entries := listing()["order_books"]
	reg, err := Populate(entries)
	if err != nil || reg.Len() != 2 {
		t.Fatalf("expected bare array to populate, got %v", err)
	}
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef(" 7 ", true)
	if err != nil || !ref.IsIndex() || ref.MarketIndex() != 7 {
		t.Fatalf("expected index ref 7, got %+v %v", ref, err)
	}
	ref, err = ParseRef("ETH", false)
	if err != nil || ref.IsIndex() || ref.TickerName() != "ETH" {
		t.Fatalf("expected ticker ref, got %+v %v", ref, err)
	}
	if _, err := ParseRef("ETH", true); err == nil {
		t.Fatalf("expected non-numeric index to fail")
	}
	if _, err := ParseRef("-2", true); err == nil {
		t.Fatalf("expected negative index to fail")
	}
	if _, err := ParseRef("  ", false); !errors.Is(err, ErrUnknownTicker) {
		t.Fatalf("expected empty ticker to be unknown, got %v", err)
	}
	if Index(3).String() != "#3" || Ticker("BTC").String() != "BTC" {
		t.Fatalf("unexpected ref strings")
	}
}
