package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"lighter-sdk/internal/market"
	"lighter-sdk/internal/metrics"
	"lighter-sdk/internal/state"

	"go.uber.org/zap"
)

// Provisioner binds the signer to its exchange account. It fails until the
// account exists.
type Provisioner interface {
	SetAccountIndex(ctx context.Context) error
}

// Directory is the read side the bootstrap needs.
type Directory interface {
	SubAccountIndexes(ctx context.Context, l1Address string) ([]int64, error)
	MarketListing(ctx context.Context) (any, error)
}

type Account struct {
	L1Address    string
	AccountIndex int64
}

// Ready is the published result of a bootstrap. It is never modified after
// publication.
type Ready struct {
	Account  Account
	Registry *market.Registry
	At       time.Time
}

type Config struct {
	L1Address        string
	APIKeyIndex      int
	BaseURL          string
	PollInterval     time.Duration
	NewAccountSettle time.Duration
	ProvisionTimeout time.Duration
	MaxAttempts      int
}

type Bootstrapper struct {
	signer  Provisioner
	dir     Directory
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   state.Store
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	sm      *StateMachine
	ready   atomic.Pointer[Ready]
	onReady func(*Ready)
}

func NewBootstrapper(signer Provisioner, dir Directory, cfg Config, log *zap.Logger) *Bootstrapper {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Bootstrapper{
		signer:  signer,
		dir:     dir,
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewNoop(),
		sleep:   sleepContext,
		now:     time.Now,
		sm:      NewStateMachine(),
	}
}

func (b *Bootstrapper) SetMetrics(m *metrics.Metrics) {
	b.metrics = metrics.OrDefault(m)
}

// SetStore enables saving a session snapshot after every successful bootstrap.
func (b *Bootstrapper) SetStore(store state.Store) {
	b.store = store
}

// OnReady registers a callback run once the session is published.
func (b *Bootstrapper) OnReady(fn func(*Ready)) {
	b.onReady = fn
}

func (b *Bootstrapper) State() State {
	return b.sm.State()
}

// Current returns the published session or ErrNotInitialized.
func (b *Bootstrapper) Current() (*Ready, error) {
	if ready := b.ready.Load(); ready != nil {
		return ready, nil
	}
	return nil, ErrNotInitialized
}

// Bootstrap provisions the account, resolves it and loads the market registry.
// It returns the existing session when already ready and ErrAlreadyBootstrapping
// while another call is in flight.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*Ready, error) {
	if ready := b.ready.Load(); ready != nil {
		return ready, nil
	}
	if !b.sm.Begin() {
		if ready := b.ready.Load(); ready != nil {
			return ready, nil
		}
		return nil, ErrAlreadyBootstrapping
	}
	ready, err := b.run(ctx)
	if err != nil {
		b.sm.Apply(EventFailed)
		b.log.Warn("bootstrap failed", zap.Error(err))
		return nil, err
	}
	b.ready.Store(ready)
	b.sm.Apply(EventMarketsLoaded)
	b.log.Info("session ready",
		zap.String("l1_address", ready.Account.L1Address),
		zap.Int64("account_index", ready.Account.AccountIndex),
		zap.Int("markets", ready.Registry.Len()),
	)
	b.saveSnapshot(ctx, ready)
	if b.onReady != nil {
		b.onReady(ready)
	}
	return ready, nil
}

func (b *Bootstrapper) run(ctx context.Context) (*Ready, error) {
	if err := b.provision(ctx); err != nil {
		return nil, err
	}
	b.sm.Apply(EventProvisioned)

	subs, err := b.dir.SubAccountIndexes(ctx, b.cfg.L1Address)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	if len(subs) == 0 {
		return nil, &NoSubAccountError{L1Address: b.cfg.L1Address}
	}
	account := Account{L1Address: b.cfg.L1Address, AccountIndex: subs[0]}
	b.sm.Apply(EventAccountResolved)

	listing, err := b.dir.MarketListing(ctx)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	reg, err := market.Populate(listing)
	if err != nil {
		return nil, err
	}
	return &Ready{Account: account, Registry: reg, At: b.now()}, nil
}

// provision retries SetAccountIndex until it succeeds. A freshly created
// account gets a settle delay before it is used.
func (b *Bootstrapper) provision(ctx context.Context) error {
	if b.cfg.ProvisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.ProvisionTimeout)
		defer cancel()
	}
	newAccount := false
	for attempt := 1; ; attempt++ {
		b.metrics.BootstrapAttempts.Inc()
		err := b.signer.SetAccountIndex(ctx)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return provisionErr(ctxErr, err)
		}
		newAccount = true
		b.log.Info("account not ready, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if b.cfg.MaxAttempts > 0 && attempt >= b.cfg.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrProvisionTimeout, attempt, err)
		}
		if sleepErr := b.sleep(ctx, b.cfg.PollInterval); sleepErr != nil {
			return provisionErr(sleepErr, err)
		}
	}
	if newAccount && b.cfg.NewAccountSettle > 0 {
		b.log.Info("new account provisioned, waiting to settle", zap.Duration("delay", b.cfg.NewAccountSettle))
		if err := b.sleep(ctx, b.cfg.NewAccountSettle); err != nil {
			return err
		}
	}
	return nil
}

func provisionErr(ctxErr, last error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w (last error: %v)", ErrProvisionTimeout, ctxErr, last)
	}
	return ctxErr
}

func (b *Bootstrapper) saveSnapshot(ctx context.Context, ready *Ready) {
	if b.store == nil {
		return
	}
	snap := state.SessionSnapshot{
		BaseURL:      b.cfg.BaseURL,
		L1Address:    ready.Account.L1Address,
		AccountIndex: ready.Account.AccountIndex,
		APIKeyIndex:  b.cfg.APIKeyIndex,
		MarketCount:  ready.Registry.Len(),
		ReadyAtMS:    ready.At.UnixMilli(),
	}
	if err := state.SaveSessionSnapshot(ctx, b.store, snap); err != nil {
		b.log.Warn("session snapshot save failed", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
