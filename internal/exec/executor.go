package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lighter-sdk/internal/lighter/exchange"
	"lighter-sdk/internal/metrics"
	"lighter-sdk/internal/state"

	"go.uber.org/zap"
)

// acceptedMarker is stored when the exchange acknowledged a submission without a hash.
const acceptedMarker = "accepted"

type Submitter interface {
	CreateOrder(ctx context.Context, tx exchange.CreateOrderTx) (exchange.TxResult, error)
	CancelOrder(ctx context.Context, tx exchange.CancelOrderTx) (exchange.TxResult, error)
}

type Kind string

const (
	KindCreate Kind = "create"
	KindCancel Kind = "cancel"
)

// Attempt describes one submission handed to the exchange.
type Attempt struct {
	Kind      Kind
	Create    exchange.CreateOrderTx
	Cancel    exchange.CancelOrderTx
	Result    exchange.TxResult
	Err       error
	Duplicate bool
	Started   time.Time
	Duration  time.Duration
}

// Result is a submission outcome. Duplicate is set when a client order index was
// already submitted and no new transaction was sent.
type Result struct {
	exchange.TxResult
	Duplicate bool
}

// Executor submits transactions exactly once. It never retries: the first error is
// returned as is, and orders carrying a client order index are deduplicated.
type Executor struct {
	tx      Submitter
	store   state.Store
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	cache    map[string]string
	inflight map[string]struct{}
	observer func(Attempt)
}

func New(tx Submitter, store state.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		tx:       tx,
		store:    store,
		log:      log,
		metrics:  metrics.NewNoop(),
		cache:    make(map[string]string),
		inflight: make(map[string]struct{}),
	}
}

func (e *Executor) SetMetrics(m *metrics.Metrics) {
	e.metrics = metrics.OrDefault(m)
}

// SetObserver registers a callback for every attempt, including duplicates.
func (e *Executor) SetObserver(fn func(Attempt)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

// DedupeKey is the store key of a client order index on one market.
func DedupeKey(marketIndex int, clientOrderIndex int64) string {
	return fmt.Sprintf("coi:%d:%d", marketIndex, clientOrderIndex)
}

func (e *Executor) PlaceOrder(ctx context.Context, tx exchange.CreateOrderTx) (Result, error) {
	if tx.ClientOrderIndex == 0 {
		return e.submitCreate(ctx, tx)
	}
	key := DedupeKey(tx.MarketIndex, tx.ClientOrderIndex)
	hash, ok, err := e.lookup(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return e.duplicate(tx, hash), nil
	}
	// A concurrent call may have recorded the key after our lookup missed.
	hash, ok, claimed := e.claim(key)
	if ok {
		return e.duplicate(tx, hash), nil
	}
	if !claimed {
		return Result{}, fmt.Errorf("client order index %d on market %d is already being submitted", tx.ClientOrderIndex, tx.MarketIndex)
	}
	defer e.release(key)

	res, err := e.submitCreate(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	value := res.TxHash
	if value == "" {
		value = acceptedMarker
	}
	if e.store != nil {
		if err := e.store.Set(ctx, key, value); err != nil {
			e.log.Warn("failed to persist tx hash", zap.String("key", key), zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[key] = value
	e.mu.Unlock()
	return res, nil
}

func (e *Executor) duplicate(tx exchange.CreateOrderTx, hash string) Result {
	e.log.Info("duplicate client order index, not resubmitting",
		zap.Int("market_index", tx.MarketIndex),
		zap.Int64("client_order_index", tx.ClientOrderIndex),
	)
	res := Result{TxResult: exchange.TxResult{TxType: exchange.TxTypeCreateOrder, TxHash: txHashFromMarker(hash)}, Duplicate: true}
	e.observe(Attempt{Kind: KindCreate, Create: tx, Result: res.TxResult, Duplicate: true, Started: time.Now()})
	return res
}

func (e *Executor) CancelOrder(ctx context.Context, tx exchange.CancelOrderTx) (Result, error) {
	started := time.Now()
	res, err := e.tx.CancelOrder(ctx, tx)
	e.observe(Attempt{Kind: KindCancel, Cancel: tx, Result: res, Err: err, Started: started, Duration: time.Since(started)})
	if err != nil {
		return Result{}, err
	}
	e.metrics.CancelsSubmitted.Inc()
	return Result{TxResult: res}, nil
}

func (e *Executor) submitCreate(ctx context.Context, tx exchange.CreateOrderTx) (Result, error) {
	started := time.Now()
	res, err := e.tx.CreateOrder(ctx, tx)
	e.observe(Attempt{Kind: KindCreate, Create: tx, Result: res, Err: err, Started: started, Duration: time.Since(started)})
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return Result{}, err
	}
	e.metrics.OrdersSubmitted.Inc()
	return Result{TxResult: res}, nil
}

func (e *Executor) lookup(ctx context.Context, key string) (string, bool, error) {
	e.mu.Lock()
	if hash, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return hash, true, nil
	}
	e.mu.Unlock()
	if e.store == nil {
		return "", false, nil
	}
	hash, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	e.mu.Lock()
	e.cache[key] = hash
	e.mu.Unlock()
	return hash, true, nil
}

// claim marks key in flight. It reports a recorded hash instead when the key was
// completed since the caller's lookup.
func (e *Executor) claim(key string) (hash string, done bool, claimed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.cache[key]; ok {
		return v, true, false
	}
	if _, busy := e.inflight[key]; busy {
		return "", false, false
	}
	e.inflight[key] = struct{}{}
	return "", false, true
}

func (e *Executor) release(key string) {
	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()
}

func (e *Executor) observe(a Attempt) {
	e.mu.Lock()
	fn := e.observer
	e.mu.Unlock()
	if fn != nil {
		fn(a)
	}
}

func txHashFromMarker(v string) string {
	if v == acceptedMarker {
		return ""
	}
	return v
}
