package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lighter-sdk/internal/config"
	"lighter-sdk/internal/exec"
	"lighter-sdk/internal/lighter"
	"lighter-sdk/internal/lighter/exchange"
	"lighter-sdk/internal/market"
	"lighter-sdk/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2"

type fakeLighter struct {
	mu     sync.Mutex
	sent   []string
	nonces []string
}

func (f *fakeLighter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var body any
	switch r.URL.Path {
	case lighter.PathAccountsByL1Address:
		body = map[string]any{"code": 200, "sub_accounts": []any{map[string]any{"index": 11}}}
	case lighter.PathOrderBooks:
		body = map[string]any{"code": 200, "order_books": []any{map[string]any{
			"symbol":                   "XRP",
			"market_id":                7,
			"supported_price_decimals": 4,
			"supported_size_decimals":  0,
			"min_base_amount":          "20",
			"min_quote_amount":         "10",
		}}}
	case lighter.PathNextNonce:
		body = map[string]any{"code": 200, "nonce": 3}
	case exchange.PathSendTx:
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, r.PostForm.Get("tx_type"))
		f.nonces = append(f.nonces, r.PostForm.Get("tx_info"))
		f.mu.Unlock()
		body = map[string]any{"code": 200, "tx_hash": "0xfeed"}
	default:
		body = map[string]any{"code": 200}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	slippage := 0.03
	enabled := false
	return &config.Config{
		REST:      config.RESTConfig{BaseURL: baseURL, Timeout: time.Second},
		Signer:    config.SignerConfig{ChainID: config.DefaultChainID, AuthExpiry: time.Minute},
		Bootstrap: config.BootstrapConfig{PollInterval: time.Millisecond},
		Orders:    config.OrdersConfig{DefaultTIF: "GTC", Slippage: &slippage},
		State:     config.StateConfig{SQLitePath: filepath.Join(t.TempDir(), "state", "lighter.db")},
		Metrics:   config.MetricsConfig{Enabled: &enabled, Path: "/metrics"},
		Account:   config.AccountConfig{L1Address: "0xabc", PrivateKey: testKey},
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.Account.L1Address = ""
	if _, err := New(cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error without LIGHTER_KEY")
	}
	cfg = testConfig(t, "http://unused")
	cfg.Account.PrivateKey = ""
	if _, err := New(cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error without LIGHTER_SECRET")
	}
}

func TestBootstrapAndPlaceLimitOrder(t *testing.T) {
	fake := &fakeLighter{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	application, err := New(testConfig(t, srv.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer application.Close()

	ctx := context.Background()
	ready, err := application.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if ready.Account.AccountIndex != 11 {
		t.Fatalf("expected account 11, got %d", ready.Account.AccountIndex)
	}
	snap, ok, err := state.LoadSessionSnapshot(ctx, application.store)
	if err != nil || !ok {
		t.Fatalf("expected session snapshot, ok=%v err=%v", ok, err)
	}
	if snap.AccountIndex != 11 || snap.MarketCount != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	res, err := application.Client().LimitOrder(ctx, lighter.LimitOrderParams{
		Market:           market.Ticker("XRP"),
		Amount:           decimal.NewFromInt(25),
		Price:            decimal.RequireFromString("0.5"),
		ClientOrderIndex: 9,
	})
	if err != nil {
		t.Fatalf("limit order: %v", err)
	}
	if res.TxHash != "0xfeed" || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}
	again, err := application.Client().LimitOrder(ctx, lighter.LimitOrderParams{
		Market:           market.Ticker("XRP"),
		Amount:           decimal.NewFromInt(25),
		Price:            decimal.RequireFromString("0.5"),
		ClientOrderIndex: 9,
	})
	if err != nil || !again.Duplicate {
		t.Fatalf("expected duplicate result, got %+v %v", again, err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 1 || fake.sent[0] != "14" {
		t.Fatalf("expected one create tx, got %v", fake.sent)
	}
}

func TestRunFailsBeforeServingOnUnknownStreamMarket(t *testing.T) {
	srv := httptest.NewServer(&fakeLighter{})
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := testConfig(t, srv.URL)
	enabled := true
	cfg.Metrics = config.MetricsConfig{Enabled: &enabled, Address: addr, Path: "/metrics"}
	cfg.WS = config.WSConfig{Enabled: true, URL: "ws://127.0.0.1:1/stream", Markets: []string{"DOGE"}, MaxBookAge: time.Second}
	application, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Run(ctx); !errors.Is(err, market.ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker, got %v", err)
	}
	ln, err = net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("metrics address still held after Run returned: %v", err)
	}
	_ = ln.Close()
}

func TestResolveMarkets(t *testing.T) {
	reg, err := market.Populate([]any{
		map[string]any{"symbol": "ETH", "market_id": json.Number("0"), "supported_price_decimals": json.Number("2"), "supported_size_decimals": json.Number("4"), "min_base_amount": "0.005", "min_quote_amount": "10"},
		map[string]any{"symbol": "XRP", "market_id": json.Number("7"), "supported_price_decimals": json.Number("4"), "supported_size_decimals": json.Number("0"), "min_base_amount": "20", "min_quote_amount": "10"},
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	got, err := resolveMarkets(reg, []string{"XRP", " 0 ", "7", ""})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 0 {
		t.Fatalf("unexpected markets %v", got)
	}
	if _, err := resolveMarkets(reg, []string{"DOGE"}); !errors.Is(err, market.ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker, got %v", err)
	}
	if _, err := resolveMarkets(reg, []string{"3"}); !errors.Is(err, market.ErrUnknownTicker) {
		t.Fatalf("expected ErrUnknownTicker for unlisted index, got %v", err)
	}
}

func TestOrderRecordFromAttempt(t *testing.T) {
	started := time.Unix(1_700_000_000, 0)
	rec := orderRecord(exec.Attempt{
		Kind:     exec.KindCreate,
		Create:   exchange.CreateOrderTx{MarketIndex: 7, ClientOrderIndex: 3, BaseAmount: 20, Price: 25000, IsAsk: true, TimeInForce: 1, ReduceOnly: 1},
		Result:   exchange.TxResult{TxHash: "0x1"},
		Err:      errors.New("boom"),
		Started:  started,
		Duration: 1500 * time.Millisecond,
	}, "XRP")
	if rec.Kind != "create" || rec.Ticker != "XRP" || rec.MarketIndex != 7 || rec.Price != 25000 || !rec.IsAsk || !rec.ReduceOnly {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Error != "boom" || rec.LatencyMS != 1500 || !rec.Time.Equal(started) {
		t.Fatalf("unexpected record metadata %+v", rec)
	}
	cancel := orderRecord(exec.Attempt{Kind: exec.KindCancel, Cancel: exchange.CancelOrderTx{MarketIndex: 2, OrderIndex: 55}}, "")
	if cancel.MarketIndex != 2 || cancel.OrderIndex != 55 || cancel.Error != "" {
		t.Fatalf("unexpected cancel record %+v", cancel)
	}
}

func TestBookTopSample(t *testing.T) {
	top := bookTop(market.Top{MarketIndex: 1, Bid: decimal.RequireFromString("99.5"), HasBid: true, UpdatedAt: time.Unix(5, 0)}, "ETH")
	if top.Bid != "99.5" || top.Ask != "" || top.Ticker != "ETH" || top.Time.Unix() != 5 {
		t.Fatalf("unexpected top %+v", top)
	}
}
