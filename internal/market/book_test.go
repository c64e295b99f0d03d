package market

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestCache(maxAge time.Duration, now *time.Time) *BookCache {
	c := NewBookCache(nil, maxAge, zap.NewNop())
	c.now = func() time.Time { return *now }
	return c
}

func TestBookCacheSnapshotAndDeltas(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := newTestCache(5*time.Second, &now)

	cache.HandleMessage(json.RawMessage(`{"type":"subscribed/order_book","channel":"order_book:1","order_book":{
		"bids":[{"price":"99","size":"1"},{"price":"98.5","size":"3"}],
		"asks":[{"price":"101","size":"2"},{"price":"102","size":"1"}]}}`))

	top, err := cache.BestBidAsk(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected fresh top, got %v", err)
	}
	if !top.Bid.Equal(decimal.NewFromInt(99)) || !top.Ask.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("unexpected top %+v", top)
	}

	// size 0 removes the level
	cache.HandleMessage(json.RawMessage(`{"type":"update/order_book","channel":"order_book:1","order_book":{
		"bids":[{"price":"99.00","size":"0"}],"asks":[{"price":"100.5","size":"4"}]}}`))
	top, _ = cache.Top(1)
	if !top.Bid.Equal(decimal.RequireFromString("98.5")) {
		t.Fatalf("expected bid 98.5 after delete, got %s", top.Bid)
	}
	if !top.Ask.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("expected ask 100.5, got %s", top.Ask)
	}

	cache.HandleMessage(json.RawMessage(`{"type":"subscribed/order_book","channel":"order_book:1","order_book":{"bids":[],"asks":[{"price":"105","size":"1"}]}}`))
	top, _ = cache.Top(1)
	if top.HasBid || !top.Ask.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("snapshot should replace book, got %+v", top)
	}
}

func TestBookCacheStaleness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := newTestCache(time.Second, &now)
	if _, err := cache.BestBidAsk(context.Background(), 2); !errors.Is(err, ErrStaleBook) {
		t.Fatalf("expected ErrStaleBook for unknown market, got %v", err)
	}
	cache.HandleMessage(json.RawMessage(`{"type":"subscribed/order_book","channel":"order_book:2","order_book":{"bids":[{"price":"1","size":"1"}],"asks":[{"price":"2","size":"1"}]}}`))
	if _, ok := cache.Top(2); !ok {
		t.Fatalf("expected fresh book")
	}
	now = now.Add(2 * time.Second)
	if _, err := cache.BestBidAsk(context.Background(), 2); !errors.Is(err, ErrStaleBook) {
		t.Fatalf("expected stale book, got %v", err)
	}
}

func TestBookCacheObserverAndIgnoredMessages(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := newTestCache(0, &now)
	var seen []Top
	cache.SetTopObserver(func(top Top) { seen = append(seen, top) })

	cache.HandleMessage(json.RawMessage(`{"type":"connected"}`))
	cache.HandleMessage(json.RawMessage(`not json`))
	cache.HandleMessage(json.RawMessage(`{"type":"update/order_book","channel":"order_book:x","order_book":{}}`))
	cache.HandleMessage(json.RawMessage(`{"type":"update/order_book","channel":"order_book:4","order_book":{"bids":[{"price":"7","size":"1"}]}}`))

	if len(seen) != 1 || seen[0].MarketIndex != 4 || !seen[0].Bid.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected observed tops %+v", seen)
	}
}

func TestMarketFromChannel(t *testing.T) {
	cases := map[string]int{"order_book:3": 3, "order_book/12": 12}
	for in, want := range cases {
		got, ok := marketFromChannel(in)
		if !ok || got != want {
			t.Fatalf("marketFromChannel(%q) = %d %v", in, got, ok)
		}
	}
	for _, in := range []string{"", "order_book:", "order_book:-1", "trades"} {
		if _, ok := marketFromChannel(in); ok {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
