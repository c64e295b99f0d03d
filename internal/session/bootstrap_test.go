package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lighter-sdk/internal/market"
	"lighter-sdk/internal/state"

	"go.uber.org/zap"
)

type fakeProvisioner struct {
	mu       sync.Mutex
	failures int
	calls    int
	block    chan struct{}
}

func (f *fakeProvisioner) SetAccountIndex(ctx context.Context) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("account not found")
	}
	return nil
}

type fakeDirectory struct {
	subs       []int64
	subsErr    error
	listing    any
	listingErr error
}

func (f *fakeDirectory) SubAccountIndexes(context.Context, string) ([]int64, error) {
	return f.subs, f.subsErr
}

func (f *fakeDirectory) MarketListing(context.Context) (any, error) {
	return f.listing, f.listingErr
}

func validListing() any {
	return map[string]any{"order_books": []any{
		map[string]any{
			"symbol":                   "ETH",
			"market_id":                json.Number("0"),
			"supported_price_decimals": json.Number("2"),
			"supported_size_decimals":  json.Number("4"),
			"min_base_amount":          "0.005",
			"min_quote_amount":         "10",
		},
	}}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestBootstrapper(prov Provisioner, dir Directory, cfg Config) (*Bootstrapper, *sleepRecorder) {
	if cfg.L1Address == "" {
		cfg.L1Address = "0xabc"
	}
	b := NewBootstrapper(prov, dir, cfg, zap.NewNop())
	rec := &sleepRecorder{}
	b.sleep = rec.sleep
	return b, rec
}

type memStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]string{}
	}
	m.items[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func TestCurrentBeforeBootstrap(t *testing.T) {
	b, _ := newTestBootstrapper(&fakeProvisioner{}, &fakeDirectory{}, Config{})
	if _, err := b.Current(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestBootstrapExistingAccount(t *testing.T) {
	store := &memStore{}
	b, rec := newTestBootstrapper(&fakeProvisioner{}, &fakeDirectory{subs: []int64{42, 43}, listing: validListing()}, Config{
		NewAccountSettle: 5 * time.Second,
		APIKeyIndex:      2,
	})
	b.SetStore(store)
	var notified *Ready
	b.OnReady(func(r *Ready) { notified = r })

	ready, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if ready.Account.AccountIndex != 42 || ready.Registry.Len() != 1 {
		t.Fatalf("unexpected ready %+v", ready)
	}
	if len(rec.delays) != 0 {
		t.Fatalf("existing account must not wait, got %v", rec.delays)
	}
	if b.State() != StateReady {
		t.Fatalf("expected ready state, got %s", b.State())
	}
	current, err := b.Current()
	if err != nil || current != ready {
		t.Fatalf("expected published session, got %v", err)
	}
	if notified != ready {
		t.Fatalf("expected ready callback")
	}
	again, err := b.Bootstrap(context.Background())
	if err != nil || again != ready {
		t.Fatalf("bootstrap after ready must return existing session")
	}
	snap, ok, err := state.LoadSessionSnapshot(context.Background(), store)
	if err != nil || !ok || snap.AccountIndex != 42 || snap.APIKeyIndex != 2 || snap.MarketCount != 1 {
		t.Fatalf("unexpected snapshot %+v %v %v", snap, ok, err)
	}
}

func TestBootstrapNewAccountPollsThenSettles(t *testing.T) {
	prov := &fakeProvisioner{failures: 3}
	b, rec := newTestBootstrapper(prov, &fakeDirectory{subs: []int64{7}, listing: validListing()}, Config{
		PollInterval:     time.Second,
		NewAccountSettle: 5 * time.Second,
	})
	if _, err := b.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	want := []time.Duration{time.Second, time.Second, time.Second, 5 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("expected delays %v, got %v", want, rec.delays)
		}
	}
	if prov.calls != 4 {
		t.Fatalf("expected 4 provisioning calls, got %d", prov.calls)
	}
}

func TestBootstrapNoSubAccount(t *testing.T) {
	b, _ := newTestBootstrapper(&fakeProvisioner{}, &fakeDirectory{listing: validListing()}, Config{L1Address: "0xdef"})
	_, err := b.Bootstrap(context.Background())
	if !errors.Is(err, ErrNoSubAccount) {
		t.Fatalf("expected ErrNoSubAccount, got %v", err)
	}
	var subErr *NoSubAccountError
	if !errors.As(err, &subErr) || subErr.L1Address != "0xdef" {
		t.Fatalf("expected address in error, got %v", err)
	}
	if b.State() != StateIdle {
		t.Fatalf("failure must return to idle, got %s", b.State())
	}
	if _, err := b.Current(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected no published session, got %v", err)
	}
}

func TestBootstrapPopulationErrorPublishesNothing(t *testing.T) {
	dir := &fakeDirectory{subs: []int64{1}, listing: map[string]any{"order_books": []any{}}}
	b, _ := newTestBootstrapper(&fakeProvisioner{}, dir, Config{})
	if _, err := b.Bootstrap(context.Background()); !errors.Is(err, market.ErrRegistryPopulation) {
		t.Fatalf("expected population error, got %v", err)
	}
	if _, err := b.Current(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected no published session, got %v", err)
	}
	dir.listing = validListing()
	if _, err := b.Bootstrap(context.Background()); err != nil {
		t.Fatalf("retry after failure should succeed: %v", err)
	}
}

func TestBootstrapDirectoryErrors(t *testing.T) {
	boom := errors.New("boom")
	b, _ := newTestBootstrapper(&fakeProvisioner{}, &fakeDirectory{subsErr: boom}, Config{})
	if _, err := b.Bootstrap(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected account lookup error, got %v", err)
	}
	b, _ = newTestBootstrapper(&fakeProvisioner{}, &fakeDirectory{subs: []int64{1}, listingErr: boom}, Config{})
	if _, err := b.Bootstrap(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected listing error, got %v", err)
	}
}

func TestBootstrapCancellation(t *testing.T) {
	prov := &fakeProvisioner{failures: 1_000_000}
	b := NewBootstrapper(prov, &fakeDirectory{}, Config{L1Address: "0xabc", PollInterval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Bootstrap(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if b.State() != StateIdle {
		t.Fatalf("expected idle after cancellation, got %s", b.State())
	}
}

func TestBootstrapMaxAttempts(t *testing.T) {
	prov := &fakeProvisioner{failures: 10}
	b, rec := newTestBootstrapper(prov, &fakeDirectory{}, Config{MaxAttempts: 3})
	_, err := b.Bootstrap(context.Background())
	if !errors.Is(err, ErrProvisionTimeout) {
		t.Fatalf("expected ErrProvisionTimeout, got %v", err)
	}
	if prov.calls != 3 || len(rec.delays) != 2 {
		t.Fatalf("expected 3 calls and 2 waits, got %d and %v", prov.calls, rec.delays)
	}
}

func TestBootstrapConcurrentCallFailsFast(t *testing.T) {
	prov := &fakeProvisioner{block: make(chan struct{})}
	b, _ := newTestBootstrapper(prov, &fakeDirectory{subs: []int64{1}, listing: validListing()}, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := b.Bootstrap(context.Background())
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for b.State() == StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := b.Bootstrap(context.Background()); !errors.Is(err, ErrAlreadyBootstrapping) {
		t.Fatalf("expected ErrAlreadyBootstrapping, got %v", err)
	}
	close(prov.block)
	if err := <-done; err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
}
