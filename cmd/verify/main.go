package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lighter-sdk/internal/app"
	"lighter-sdk/internal/config"
	"lighter-sdk/internal/lighter"
	"lighter-sdk/internal/logging"
	"lighter-sdk/internal/market"
	"lighter-sdk/internal/order"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultVerifyEnvFile = ".env"

type options struct {
	action     string
	market     string
	isIndex    bool
	amount     string
	price      string
	tif        string
	slippage   string
	orderIndex int64
	coi        int64
	reduceOnly bool
	dryRun     bool
}

func main() {
	configPath := flag.String("config", "", "optional config path")
	var opts options
	flag.StringVar(&opts.action, "action", "limit", "limit, market, cancel or reads")
	flag.StringVar(&opts.market, "market", "XRP", "market ticker, or index with -index")
	flag.BoolVar(&opts.isIndex, "index", false, "treat -market as a market index")
	flag.StringVar(&opts.amount, "amount", "-20", "base amount; negative sells")
	flag.StringVar(&opts.price, "price", "2.5", "limit price")
	flag.StringVar(&opts.tif, "tif", "", "GTC, IOC or ALO (default from config)")
	flag.StringVar(&opts.slippage, "slippage", "", "market order slippage (default from config)")
	flag.Int64Var(&opts.orderIndex, "order-index", -1, "order to cancel; -1 cancels the first active order")
	flag.Int64Var(&opts.coi, "coi", 0, "client order index; 0 disables dedupe")
	flag.BoolVar(&opts.reduceOnly, "reduce-only", false, "reduce only order")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "print the normalized order and exit")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		fatal(err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready, err := application.Bootstrap(ctx)
	if err != nil {
		fatal(err)
	}
	log.Info("session ready", zap.Int64("account_index", ready.Account.AccountIndex), zap.Int("markets", ready.Registry.Len()))

	ref, err := market.ParseRef(opts.market, opts.isIndex)
	if err != nil {
		fatal(err)
	}
	if err := run(ctx, application.Client(), ref, opts); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, client *lighter.Client, ref market.Ref, opts options) error {
	switch opts.action {
	case "limit":
		amount, err := decimal.NewFromString(opts.amount)
		if err != nil {
			return fmt.Errorf("invalid -amount: %w", err)
		}
		price, err := decimal.NewFromString(opts.price)
		if err != nil {
			return fmt.Errorf("invalid -price: %w", err)
		}
		params := lighter.LimitOrderParams{
			Market:           ref,
			Amount:           amount,
			Price:            price,
			TIF:              opts.tif,
			ClientOrderIndex: opts.coi,
			ReduceOnly:       opts.reduceOnly,
		}
		n, err := client.PrepareLimit(params)
		if err != nil {
			return err
		}
		printOrder(n)
		if opts.dryRun {
			return nil
		}
		res, err := client.LimitOrder(ctx, params)
		if err != nil {
			return err
		}
		fmt.Printf("exchange response: tx_hash=%s duplicate=%t\n", res.TxHash, res.Duplicate)
	case "market":
		amount, err := decimal.NewFromString(opts.amount)
		if err != nil {
			return fmt.Errorf("invalid -amount: %w", err)
		}
		params := lighter.MarketOrderParams{
			Market:           ref,
			Amount:           amount,
			TIF:              opts.tif,
			ClientOrderIndex: opts.coi,
			ReduceOnly:       opts.reduceOnly,
		}
		if opts.slippage != "" {
			s, err := decimal.NewFromString(opts.slippage)
			if err != nil {
				return fmt.Errorf("invalid -slippage: %w", err)
			}
			params.Slippage = &s
		}
		n, err := client.PrepareMarket(ctx, params)
		if err != nil {
			return err
		}
		printOrder(n)
		if opts.dryRun {
			return nil
		}
		res, err := client.MarketOrder(ctx, params)
		if err != nil {
			return err
		}
		fmt.Printf("exchange response: tx_hash=%s duplicate=%t\n", res.TxHash, res.Duplicate)
	case "cancel":
		orderIndex := opts.orderIndex
		if orderIndex < 0 {
			resp, err := client.AccountActiveOrders(ctx, lighter.AccountActiveOrdersParams{Market: ref})
			if err != nil {
				return err
			}
			idx, ok := firstOrderIndex(resp)
			if !ok {
				return fmt.Errorf("no active orders on %s", ref)
			}
			orderIndex = idx
		}
		fmt.Printf("verify cancel: market=%s order_index=%d\n", ref, orderIndex)
		if opts.dryRun {
			return nil
		}
		res, err := client.CancelOrder(ctx, ref, orderIndex)
		if err != nil {
			return err
		}
		fmt.Printf("exchange response: tx_hash=%s\n", res.TxHash)
	case "reads":
		return runReads(ctx, client, ref)
	default:
		return fmt.Errorf("unknown -action %q", opts.action)
	}
	return nil
}

func runReads(ctx context.Context, client *lighter.Client, ref market.Ref) error {
	reads := []struct {
		name string
		call func() (map[string]any, error)
	}{
		{"status", func() (map[string]any, error) { return client.Status(ctx) }},
		{"info", func() (map[string]any, error) { return client.Info(ctx) }},
		{"account", func() (map[string]any, error) { return client.Account(ctx, lighter.AccountParams{}) }},
		{"accounts", func() (map[string]any, error) { return client.Accounts(ctx, lighter.AccountsParams{}) }},
		{"accounts_by_l1_address", func() (map[string]any, error) {
			return client.AccountsByL1Address(ctx, lighter.AccountsByL1AddressParams{})
		}},
		{"apikeys", func() (map[string]any, error) { return client.APIKeys(ctx, lighter.APIKeysParams{}) }},
		{"fee_bucket", func() (map[string]any, error) { return client.FeeBucket(ctx, lighter.FeeBucketParams{}) }},
		{"pnl", func() (map[string]any, error) { return client.PnL(ctx, lighter.PnLParams{}) }},
		{"public_pools", func() (map[string]any, error) { return client.PublicPools(ctx, lighter.PublicPoolsParams{}) }},
		{"exchange_stats", func() (map[string]any, error) { return client.ExchangeStats(ctx) }},
		{"account_orders", func() (map[string]any, error) {
			return client.AccountOrders(ctx, lighter.AccountOrdersParams{Market: ref})
		}},
		{"orderbook_details", func() (map[string]any, error) {
			return client.OrderBookDetails(ctx, lighter.OrderBooksParams{Market: &ref})
		}},
		{"orderbook_orders", func() (map[string]any, error) {
			return client.OrderBookOrders(ctx, lighter.OrderBookOrdersParams{Market: ref})
		}},
		{"candlesticks", func() (map[string]any, error) {
			return client.Candlesticks(ctx, lighter.CandlesticksParams{CandleParams: lighter.CandleParams{Market: ref}})
		}},
	}
	var errs []error
	for _, r := range reads {
		resp, err := r.call()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
			continue
		}
		pretty, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n%s\n", r.name, pretty)
	}
	return errors.Join(errs...)
}

func printOrder(n order.Normalized) {
	fmt.Printf("verify order: ticker=%s market_index=%d base_amount=%d price=%d is_ask=%t time_in_force=%d reduce_only=%d coi=%d\n",
		n.Ticker, n.MarketIndex, n.BaseAmount, n.Price, n.IsAsk, n.TimeInForce, n.ReduceOnly, n.ClientOrderIndex)
}

// firstOrderIndex reads orders[0].order_index from accountActiveOrders.
func firstOrderIndex(resp map[string]any) (int64, bool) {
	orders, ok := resp["orders"].([]any)
	if !ok || len(orders) == 0 {
		return 0, false
	}
	first, ok := orders[0].(map[string]any)
	if !ok {
		return 0, false
	}
	for _, key := range []string{"order_index", "order_id"} {
		switch v := first[key].(type) {
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return i, true
			}
		case float64:
			return int64(v), true
		case string:
			var i int64
			if _, err := fmt.Sscan(strings.TrimSpace(v), &i); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

