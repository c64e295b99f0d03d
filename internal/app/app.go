package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lighter-sdk/internal/alerts"
	"lighter-sdk/internal/config"
	"lighter-sdk/internal/lighter"
	"lighter-sdk/internal/lighter/exchange"
	"lighter-sdk/internal/lighter/rest"
	"lighter-sdk/internal/lighter/ws"
	"lighter-sdk/internal/market"
	"lighter-sdk/internal/metrics"
	"lighter-sdk/internal/session"
	"lighter-sdk/internal/state"
	"lighter-sdk/internal/state/sqlite"
	"lighter-sdk/internal/timescale"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	rest     *rest.Client
	exchange *exchange.Client
	client   *lighter.Client
	ws       *ws.Client
	books    *market.BookCache
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	alerts   *alerts.Telegram
	audit    *timescale.Writer
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	l1Address := strings.TrimSpace(cfg.Account.L1Address)
	if l1Address == "" {
		return nil, errors.New("LIGHTER_KEY is required")
	}
	privateKey := strings.TrimSpace(cfg.Account.PrivateKey)
	if privateKey == "" {
		return nil, errors.New("LIGHTER_SECRET is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, store: store, metrics: metrics.NewNoop()}
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}

	a.rest = rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log.Named("rest"))
	a.rest.SetRetries(cfg.REST.Retries, cfg.REST.RetryWait)
	a.rest.SetRetryObserver(func(method, path string) {
		a.metrics.HTTPRetries.Inc()
	})

	signer, err := exchange.NewSigner(privateKey)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.exchange, err = exchange.NewClient(a.rest, signer, l1Address, cfg.Signer.APIKeyIndex, cfg.Signer.ChainID)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.exchange.SetLogger(log.Named("exchange"))

	slippage := cfg.Orders.SlippageDecimal()
	a.client = lighter.New(a.rest, a.exchange, lighter.Options{
		L1Address:   l1Address,
		APIKeyIndex: cfg.Signer.APIKeyIndex,
		DefaultTIF:  cfg.Orders.DefaultTIF,
		Slippage:    &slippage,
		AuthExpiry:  cfg.Signer.AuthExpiry,
		Bootstrap: session.Config{
			PollInterval:     cfg.Bootstrap.PollInterval,
			NewAccountSettle: cfg.Bootstrap.NewAccountSettle,
			ProvisionTimeout: cfg.Bootstrap.ProvisionTimeout,
			MaxAttempts:      cfg.Bootstrap.MaxAttempts,
		},
		Store:   store,
		Metrics: a.metrics,
	}, log)

	if cfg.WS.Enabled {
		a.ws = ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log.Named("ws"))
		a.books = market.NewBookCache(a.ws, cfg.WS.MaxBookAge, log.Named("books"))
		a.client.SetBookSource(lighter.CachedBooks{Cache: a.books, Fallback: a.client.RESTBooks(), Log: log})
	}

	a.alerts = alerts.NewTelegram(cfg.Telegram, log.Named("alerts"))
	a.audit, err = timescale.New(cfg.Timescale, log.Named("timescale"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	a.wireObservers()
	return a, nil
}

func (a *App) Client() *lighter.Client {
	return a.client
}

// Bootstrap restores the persisted nonce floor and then runs the session
// bootstrap.
func (a *App) Bootstrap(ctx context.Context) (*session.Ready, error) {
	if err := a.exchange.InitNonceStore(ctx, a.store); err != nil {
		a.log.Warn("nonce store init failed", zap.Error(err))
	}
	if snap, ok, err := state.LoadSessionSnapshot(ctx, a.store); err != nil {
		a.log.Warn("session snapshot load failed", zap.Error(err))
	} else if ok {
		a.log.Info("previous session",
			zap.Int64("account_index", snap.AccountIndex),
			zap.Int("markets", snap.MarketCount),
			zap.Time("ready_at", time.UnixMilli(snap.ReadyAtMS)),
		)
	}
	ready, err := a.client.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	if ns, ok := a.exchange.NonceState(); ok {
		a.log.Info("nonce persistence enabled", zap.String("nonce_key", ns.Key))
	}
	return ready, nil
}

// Run bootstraps the session and serves the metrics endpoint, the order book
// stream and the audit writer until ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	ready, err := a.Bootstrap(ctx)
	if err != nil {
		return err
	}
	var markets []int
	if a.books != nil {
		markets, err = resolveMarkets(ready.Registry, a.cfg.WS.Markets)
		if err != nil {
			return err
		}
	}
	a.audit.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if a.prom != nil {
		g.Go(func() error { return a.serveMetrics(gctx) })
	}
	if len(markets) > 0 {
		g.Go(func() error { return a.books.Run(gctx, markets) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (a *App) Close() error {
	var errs []error
	if a.ws != nil {
		errs = append(errs, a.ws.Close())
	}
	errs = append(errs, a.audit.Close())
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// resolveMarkets maps configured stream markets to indexes. Entries are
// tickers or numeric market indexes.
func resolveMarkets(reg *market.Registry, names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	seen := make(map[int]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ref := market.Ticker(name)
		if n, err := strconv.Atoi(name); err == nil {
			ref = market.Index(n)
		}
		meta, err := reg.Lookup(ref)
		if err != nil {
			return nil, fmt.Errorf("ws.markets: %w", err)
		}
		if _, dup := seen[meta.MarketIndex]; dup {
			continue
		}
		seen[meta.MarketIndex] = struct{}{}
		out = append(out, meta.MarketIndex)
	}
	return out, nil
}
