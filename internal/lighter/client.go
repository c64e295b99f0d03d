package lighter

import (
	"context"
	"fmt"
	"time"

	"lighter-sdk/internal/exec"
	"lighter-sdk/internal/lighter/exchange"
	"lighter-sdk/internal/lighter/rest"
	"lighter-sdk/internal/market"
	"lighter-sdk/internal/metrics"
	"lighter-sdk/internal/order"
	"lighter-sdk/internal/session"
	"lighter-sdk/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Signer is the signed transaction side of the exchange.
type Signer interface {
	SetAccountIndex(ctx context.Context) error
	CreateOrder(ctx context.Context, tx exchange.CreateOrderTx) (exchange.TxResult, error)
	CancelOrder(ctx context.Context, tx exchange.CancelOrderTx) (exchange.TxResult, error)
	CreateAuthToken(expiry time.Duration) (string, error)
}

// DefaultSlippage prices market orders when Options.Slippage is nil.
var DefaultSlippage = decimal.RequireFromString("0.03")

type Options struct {
	L1Address   string
	APIKeyIndex int
	DefaultTIF  string
	Slippage    *decimal.Decimal // nil uses DefaultSlippage; an explicit zero is kept
	AuthExpiry  time.Duration
	Bootstrap   session.Config
	Store       state.Store
	Metrics     *metrics.Metrics
}

// Client exposes the exchange read endpoints and the order methods. Order
// methods need a completed Bootstrap.
type Client struct {
	rest    *rest.Client
	signer  Signer
	boot    *session.Bootstrapper
	exec    *exec.Executor
	pricer  order.Pricer
	log     *zap.Logger
	metrics *metrics.Metrics

	l1Address   string
	apiKeyIndex int
	defaultTIF  string
	slippage    decimal.Decimal
	authExpiry  time.Duration
	now         func() time.Time
}

func New(restClient *rest.Client, signer Signer, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DefaultTIF == "" {
		opts.DefaultTIF = "GTC"
	}
	if opts.AuthExpiry <= 0 {
		opts.AuthExpiry = 10 * time.Minute
	}
	slippage := DefaultSlippage
	if opts.Slippage != nil {
		slippage = *opts.Slippage
	}
	m := metrics.OrDefault(opts.Metrics)
	c := &Client{
		rest:        restClient,
		signer:      signer,
		log:         log,
		metrics:     m,
		l1Address:   opts.L1Address,
		apiKeyIndex: opts.APIKeyIndex,
		defaultTIF:  opts.DefaultTIF,
		slippage:    slippage,
		authExpiry:  opts.AuthExpiry,
		now:         time.Now,
	}
	c.pricer = order.Pricer{Books: restBooks{c: c}}

	bootCfg := opts.Bootstrap
	if bootCfg.L1Address == "" {
		bootCfg.L1Address = opts.L1Address
	}
	if bootCfg.BaseURL == "" && restClient != nil {
		bootCfg.BaseURL = restClient.BaseURL()
	}
	bootCfg.APIKeyIndex = opts.APIKeyIndex
	c.boot = session.NewBootstrapper(signer, directory{c: c}, bootCfg, log.Named("session"))
	c.boot.SetMetrics(m)
	if opts.Store != nil {
		c.boot.SetStore(opts.Store)
	}

	c.exec = exec.New(signer, opts.Store, log.Named("exec"))
	c.exec.SetMetrics(m)
	return c
}

// Bootstrap provisions the account and loads the market registry. See
// session.Bootstrapper.Bootstrap.
func (c *Client) Bootstrap(ctx context.Context) (*session.Ready, error) {
	return c.boot.Bootstrap(ctx)
}

func (c *Client) Session() *session.Bootstrapper {
	return c.boot
}

func (c *Client) Executor() *exec.Executor {
	return c.exec
}

// Registry returns the published market registry or session.ErrNotInitialized.
func (c *Client) Registry() (*market.Registry, error) {
	ready, err := c.boot.Current()
	if err != nil {
		return nil, err
	}
	return ready.Registry, nil
}

// SetBookSource replaces the order book source used to price market orders.
// A nil source restores REST lookups.
func (c *Client) SetBookSource(src order.BookSource) {
	if src == nil {
		src = restBooks{c: c}
	}
	c.pricer = order.Pricer{Books: src}
}

// RESTBooks returns a book source backed by orderBookOrders.
func (c *Client) RESTBooks() order.BookSource {
	return restBooks{c: c}
}

type LimitOrderParams struct {
	Market market.Ref
	// Amount is in base units. A negative amount sells.
	Amount           decimal.Decimal
	Price            decimal.Decimal
	TIF              string
	ClientOrderIndex int64
	ReduceOnly       bool
}

type MarketOrderParams struct {
	Market           market.Ref
	Amount           decimal.Decimal
	Slippage         *decimal.Decimal // nil uses the configured slippage
	TIF              string
	ClientOrderIndex int64
	ReduceOnly       bool
}

// PrepareLimit normalizes a limit order without submitting it.
func (c *Client) PrepareLimit(p LimitOrderParams) (order.Normalized, error) {
	ready, err := c.boot.Current()
	if err != nil {
		return order.Normalized{}, err
	}
	n, err := order.NormalizeLimit(ready.Registry, order.LimitRequest{
		Market:           p.Market,
		Amount:           p.Amount,
		Price:            p.Price,
		TIF:              c.tif(p.TIF),
		ClientOrderIndex: p.ClientOrderIndex,
		ReduceOnly:       p.ReduceOnly,
	})
	if err != nil {
		c.metrics.OrdersRejected.Inc()
		return order.Normalized{}, err
	}
	return n, nil
}

// LimitOrder normalizes and submits a limit order.
func (c *Client) LimitOrder(ctx context.Context, p LimitOrderParams) (exec.Result, error) {
	n, err := c.PrepareLimit(p)
	if err != nil {
		return exec.Result{}, err
	}
	return c.submit(ctx, n)
}

// PrepareMarket prices a market order off the book midpoint and normalizes it
// without submitting it.
func (c *Client) PrepareMarket(ctx context.Context, p MarketOrderParams) (order.Normalized, error) {
	ready, err := c.boot.Current()
	if err != nil {
		return order.Normalized{}, err
	}
	slippage := c.slippage
	if p.Slippage != nil {
		slippage = *p.Slippage
	}
	n, err := c.pricer.NormalizeMarketOrder(ctx, ready.Registry, order.MarketRequest{
		Market:           p.Market,
		Amount:           p.Amount,
		Slippage:         slippage,
		TIF:              c.tif(p.TIF),
		ClientOrderIndex: p.ClientOrderIndex,
		ReduceOnly:       p.ReduceOnly,
	})
	if err != nil {
		c.metrics.OrdersRejected.Inc()
		return order.Normalized{}, err
	}
	return n, nil
}

// MarketOrder submits a market order as a marketable limit order.
func (c *Client) MarketOrder(ctx context.Context, p MarketOrderParams) (exec.Result, error) {
	n, err := c.PrepareMarket(ctx, p)
	if err != nil {
		return exec.Result{}, err
	}
	return c.submit(ctx, n)
}

// CancelOrder cancels a resting order by its exchange order index.
func (c *Client) CancelOrder(ctx context.Context, ref market.Ref, orderIndex int64) (exec.Result, error) {
	ready, err := c.boot.Current()
	if err != nil {
		return exec.Result{}, err
	}
	idx, err := ready.Registry.ResolveIndex(ref)
	if err != nil {
		c.metrics.OrdersRejected.Inc()
		return exec.Result{}, err
	}
	if orderIndex < 0 {
		c.metrics.OrdersRejected.Inc()
		return exec.Result{}, fmt.Errorf("cancel %s: negative order index %d", ref, orderIndex)
	}
	return c.exec.CancelOrder(ctx, exchange.CancelOrderTx{MarketIndex: idx, OrderIndex: orderIndex})
}

func (c *Client) submit(ctx context.Context, n order.Normalized) (exec.Result, error) {
	c.log.Debug("submitting order",
		zap.String("ticker", n.Ticker),
		zap.Int("market_index", n.MarketIndex),
		zap.Int64("base_amount", n.BaseAmount),
		zap.Int64("price", n.Price),
		zap.Bool("is_ask", n.IsAsk),
		zap.Int("time_in_force", n.TimeInForce),
	)
	return c.exec.PlaceOrder(ctx, CreateOrderTx(n))
}

// CreateOrderTx maps a normalized order onto the create order transaction.
func CreateOrderTx(n order.Normalized) exchange.CreateOrderTx {
	return exchange.CreateOrderTx{
		MarketIndex:      n.MarketIndex,
		ClientOrderIndex: n.ClientOrderIndex,
		BaseAmount:       n.BaseAmount,
		Price:            n.Price,
		IsAsk:            n.IsAsk,
		OrderType:        n.OrderType,
		TimeInForce:      n.TimeInForce,
		ReduceOnly:       n.ReduceOnly,
		TriggerPrice:     n.TriggerPrice,
	}
}

func (c *Client) tif(v string) string {
	if v == "" {
		return c.defaultTIF
	}
	return v
}
