package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lighter-sdk/internal/lighter/rest"

	"go.uber.org/zap"
)

const (
	pathAccountsByL1Address = "/api/v1/accountsByL1Address"
	pathNextNonce           = "/api/v1/nextNonce"
	PathSendTx              = "/api/v1/sendTx"

	txExpiry = 10 * time.Minute
)

var (
	ErrAccountNotProvisioned = errors.New("account not provisioned")
	ErrAccountIndexUnset     = errors.New("account index not set")
	ErrMalformedSubAccount   = errors.New("malformed sub-account entry")
)

// Client signs and submits transactions for one API key of one account.
type Client struct {
	rest        *rest.Client
	signer      *Signer
	l1Address   string
	apiKeyIndex int
	chainID     int
	log         *zap.Logger
	now         func() time.Time

	accountIndex atomic.Int64
	accountSet   atomic.Bool

	nonceMu       sync.Mutex
	nonceReady    atomic.Bool
	lastNonce     atomic.Int64
	lastPersisted atomic.Int64
	nonceStore    NonceStore
	persistMu     sync.Mutex
	persistWarned atomic.Bool
}

type NonceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type NonceState struct {
	Key       string
	Last      int64
	Persisted int64
}

func NewClient(restClient *rest.Client, signer *Signer, l1Address string, apiKeyIndex, chainID int) (*Client, error) {
	if restClient == nil {
		return nil, errors.New("rest client is required")
	}
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if strings.TrimSpace(l1Address) == "" {
		return nil, errors.New("l1 address is required")
	}
	if apiKeyIndex < 0 || apiKeyIndex > 255 {
		return nil, fmt.Errorf("api key index %d out of range", apiKeyIndex)
	}
	return &Client{
		rest:        restClient,
		signer:      signer,
		l1Address:   strings.TrimSpace(l1Address),
		apiKeyIndex: apiKeyIndex,
		chainID:     chainID,
		log:         zap.NewNop(),
		now:         time.Now,
	}, nil
}

func (c *Client) SetLogger(log *zap.Logger) {
	if log != nil {
		c.log = log
	}
}

func (c *Client) L1Address() string {
	return c.l1Address
}

func (c *Client) APIKeyIndex() int {
	return c.apiKeyIndex
}

// SetAccountIndex binds the client to the first sub-account of its L1 address.
// It fails until the exchange has provisioned that account.
func (c *Client) SetAccountIndex(ctx context.Context) error {
	resp, err := c.rest.Get(ctx, pathAccountsByL1Address, url.Values{"l1_address": {c.l1Address}})
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	subs, err := SubAccountIndexes(resp)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotProvisioned, c.l1Address)
	}
	idx := subs[0]
	if c.accountSet.Load() && c.accountIndex.Load() != idx {
		c.InvalidateNonce()
	}
	c.accountIndex.Store(idx)
	c.accountSet.Store(true)
	return nil
}

func (c *Client) AccountIndex() (int64, bool) {
	if !c.accountSet.Load() {
		return 0, false
	}
	return c.accountIndex.Load(), true
}

func (c *Client) CreateOrder(ctx context.Context, tx CreateOrderTx) (TxResult, error) {
	account, ok := c.AccountIndex()
	if !ok {
		return TxResult{}, ErrAccountIndexUnset
	}
	nonce, err := c.nextNonce(ctx)
	if err != nil {
		return TxResult{}, err
	}
	expiry := DefaultOrderExpiry
	if tx.TimeInForce == timeInForceIOC {
		expiry = ImmediateOrderExpiry
	}
	isAsk := 0
	if tx.IsAsk {
		isAsk = 1
	}
	info := CreateOrderInfo{
		AccountIndex:     account,
		ApiKeyIndex:      c.apiKeyIndex,
		MarketIndex:      tx.MarketIndex,
		ClientOrderIndex: tx.ClientOrderIndex,
		BaseAmount:       tx.BaseAmount,
		Price:            tx.Price,
		IsAsk:            isAsk,
		Type:             tx.OrderType,
		TimeInForce:      tx.TimeInForce,
		ReduceOnly:       tx.ReduceOnly,
		TriggerPrice:     tx.TriggerPrice,
		OrderExpiry:      expiry,
		ExpiredAt:        c.now().Add(txExpiry).UnixMilli(),
		Nonce:            nonce,
	}
	payload, err := EncodeCreateOrder(c.chainID, info)
	if err != nil {
		c.InvalidateNonce()
		return TxResult{}, err
	}
	if info.Sig, err = c.signer.SignPayload(payload); err != nil {
		c.InvalidateNonce()
		return TxResult{}, err
	}
	return c.sendTx(ctx, TxTypeCreateOrder, nonce, info)
}

func (c *Client) CancelOrder(ctx context.Context, tx CancelOrderTx) (TxResult, error) {
	account, ok := c.AccountIndex()
	if !ok {
		return TxResult{}, ErrAccountIndexUnset
	}
	nonce, err := c.nextNonce(ctx)
	if err != nil {
		return TxResult{}, err
	}
	info := CancelOrderInfo{
		AccountIndex: account,
		ApiKeyIndex:  c.apiKeyIndex,
		MarketIndex:  tx.MarketIndex,
		Index:        tx.OrderIndex,
		ExpiredAt:    c.now().Add(txExpiry).UnixMilli(),
		Nonce:        nonce,
	}
	payload, err := EncodeCancelOrder(c.chainID, info)
	if err != nil {
		c.InvalidateNonce()
		return TxResult{}, err
	}
	if info.Sig, err = c.signer.SignPayload(payload); err != nil {
		c.InvalidateNonce()
		return TxResult{}, err
	}
	return c.sendTx(ctx, TxTypeCancelOrder, nonce, info)
}

// CreateAuthToken returns "{deadline}:{account}:{apiKeyIndex}:{sig}" valid until now+expiry.
func (c *Client) CreateAuthToken(expiry time.Duration) (string, error) {
	account, ok := c.AccountIndex()
	if !ok {
		return "", ErrAccountIndexUnset
	}
	if expiry <= 0 {
		expiry = txExpiry
	}
	deadline := c.now().Add(expiry).Unix()
	msg := fmt.Sprintf("%d:%d:%d", deadline, account, c.apiKeyIndex)
	sig, err := c.signer.SignMessage(msg)
	if err != nil {
		return "", err
	}
	return msg + ":" + sig, nil
}

// sendTx posts a signed transaction. Submissions are never retried; any failure
// drops the local nonce so the next transaction refetches it.
func (c *Client) sendTx(ctx context.Context, txType int, nonce int64, info any) (TxResult, error) {
	body, err := json.Marshal(info)
	if err != nil {
		c.InvalidateNonce()
		return TxResult{}, err
	}
	form := url.Values{
		"tx_type": {strconv.Itoa(txType)},
		"tx_info": {string(body)},
	}
	resp, err := c.rest.PostForm(ctx, PathSendTx, form)
	if err == nil {
		err = rest.CheckCode(PathSendTx, resp)
	}
	if err != nil {
		c.InvalidateNonce()
		c.log.Warn("send tx failed", zap.Int("tx_type", txType), zap.Int64("nonce", nonce), zap.Error(err))
		return TxResult{}, err
	}
	return TxResult{TxType: txType, TxHash: TxHashFromResponse(resp), Nonce: nonce, Raw: resp}, nil
}

func (c *Client) InitNonceStore(ctx context.Context, store NonceStore) error {
	if store == nil {
		return nil
	}
	c.nonceMu.Lock()
	c.nonceStore = store
	c.nonceMu.Unlock()
	c.InvalidateNonce()
	return nil
}

func (c *Client) NonceState() (NonceState, bool) {
	if c.nonceStore == nil || !c.accountSet.Load() {
		return NonceState{}, false
	}
	return NonceState{
		Key:       c.nonceStoreKey(),
		Last:      c.lastNonce.Load(),
		Persisted: c.lastPersisted.Load(),
	}, true
}

// InvalidateNonce forces the next transaction to fetch its nonce from the exchange.
func (c *Client) InvalidateNonce() {
	c.nonceReady.Store(false)
}

func (c *Client) nextNonce(ctx context.Context) (int64, error) {
	if !c.nonceReady.Load() {
		if err := c.refreshNonce(ctx); err != nil {
			return 0, err
		}
	}
	for {
		prev := c.lastNonce.Load()
		next := prev + 1
		if c.lastNonce.CompareAndSwap(prev, next) {
			c.persistNonce(next)
			return next, nil
		}
	}
}

func (c *Client) refreshNonce(ctx context.Context) error {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	if c.nonceReady.Load() {
		return nil
	}
	account, ok := c.AccountIndex()
	if !ok {
		return ErrAccountIndexUnset
	}
	resp, err := c.rest.Get(ctx, pathNextNonce, url.Values{
		"account_index": {strconv.FormatInt(account, 10)},
		"api_key_index": {strconv.Itoa(c.apiKeyIndex)},
	})
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	next, ok := int64FromAny(resp["nonce"])
	if !ok {
		return errors.New("fetch nonce: response missing nonce")
	}
	if floor, ok := c.storedNonce(ctx); ok && floor >= next {
		next = floor + 1
	}
	c.lastNonce.Store(next - 1)
	c.lastPersisted.Store(next - 1)
	c.nonceReady.Store(true)
	return nil
}

func (c *Client) storedNonce(ctx context.Context) (int64, bool) {
	if c.nonceStore == nil {
		return 0, false
	}
	raw, ok, err := c.nonceStore.Get(ctx, c.nonceStoreKey())
	if err != nil || !ok {
		if err != nil {
			c.log.Warn("nonce store read failed", zap.Error(err))
		}
		return 0, false
	}
	stored, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		c.log.Warn("invalid stored nonce", zap.String("value", raw), zap.Error(err))
		return 0, false
	}
	return stored, true
}

func (c *Client) persistNonce(nonce int64) {
	if c.nonceStore == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if nonce <= c.lastPersisted.Load() {
		return
	}
	if err := c.nonceStore.Set(context.Background(), c.nonceStoreKey(), strconv.FormatInt(nonce, 10)); err != nil {
		if c.persistWarned.CompareAndSwap(false, true) {
			c.log.Warn("nonce persistence failed", zap.String("nonce_key", c.nonceStoreKey()), zap.Error(err))
		}
		return
	}
	c.lastPersisted.Store(nonce)
	c.persistWarned.Store(false)
}

func (c *Client) nonceStoreKey() string {
	return fmt.Sprintf("exchange:nonce:%s:%d:%d", strings.ToLower(c.rest.BaseURL()), c.accountIndex.Load(), c.apiKeyIndex)
}
