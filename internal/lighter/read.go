package lighter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"lighter-sdk/internal/market"
)

// Every read method returns the decoded JSON object. Extra is merged into the
// query last and may override the defaults.

type AccountParams struct {
	// By is "l1_address" (default) or "index".
	By    string
	Value string
	Extra map[string]string
}

// Account looks up an account. Without a Value it uses the client's L1 address,
// or the session account index when By is "index".
func (c *Client) Account(ctx context.Context, p AccountParams) (map[string]any, error) {
	by := orDefault(p.By, "l1_address")
	value := p.Value
	if value == "" {
		if by == "index" {
			idx, err := c.accountIndex(nil)
			if err != nil {
				return nil, err
			}
			value = strconv.FormatInt(idx, 10)
		} else {
			value = c.l1Address
		}
	}
	q := newQuery().set("by", by).set("value", value)
	return c.get(ctx, PathAccount, q, p.Extra)
}

type AccountsParams struct {
	Index *int64
	Limit int
	Extra map[string]string
}

func (c *Client) Accounts(ctx context.Context, p AccountsParams) (map[string]any, error) {
	q := newQuery().setInt("limit", limitOrDefault(p.Limit))
	if p.Index != nil {
		q.setInt64("index", *p.Index)
	}
	return c.get(ctx, PathAccounts, q, p.Extra)
}

type AccountsByL1AddressParams struct {
	L1Address string
}

func (c *Client) AccountsByL1Address(ctx context.Context, p AccountsByL1AddressParams) (map[string]any, error) {
	q := newQuery().set("l1_address", orDefault(p.L1Address, c.l1Address))
	return c.get(ctx, PathAccountsByL1Address, q, nil)
}

type APIKeysParams struct {
	Account     *int64
	APIKeyIndex *int
}

// APIKeys lists API keys. The default key index 255 returns every key.
func (c *Client) APIKeys(ctx context.Context, p APIKeysParams) (map[string]any, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	keyIndex := defaultAPIKeyIndex
	if p.APIKeyIndex != nil {
		keyIndex = *p.APIKeyIndex
	}
	q := newQuery().setInt64("account_index", account).setInt("api_key_index", keyIndex)
	return c.get(ctx, PathAPIKeys, q, nil)
}

type FeeBucketParams struct {
	Account *int64
}

func (c *Client) FeeBucket(ctx context.Context, p FeeBucketParams) (map[string]any, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, PathFeeBucket, newQuery().setInt64("account_index", account), nil)
}

type PnLParams struct {
	// By is "index" (default) or "l1_address".
	By         string
	Value      string
	Resolution string
	Start      time.Time
	End        time.Time
	CountBack  int
	Extra      map[string]string
}

// PnL defaults to the session account over the last 24 hours at 1h resolution.
func (c *Client) PnL(ctx context.Context, p PnLParams) (map[string]any, error) {
	by := orDefault(p.By, "index")
	value := p.Value
	if value == "" {
		if by == "index" {
			idx, err := c.accountIndex(nil)
			if err != nil {
				return nil, err
			}
			value = strconv.FormatInt(idx, 10)
		} else {
			value = c.l1Address
		}
	}
	q := newQuery().set("by", by).set("value", value)
	c.window(q, p.Resolution, p.Start, p.End, p.CountBack)
	return c.get(ctx, PathPnL, q, p.Extra)
}

type PublicPoolsParams struct {
	Index  int64
	Limit  int
	Filter string
	Extra  map[string]string
}

func (c *Client) PublicPools(ctx context.Context, p PublicPoolsParams) (map[string]any, error) {
	q := newQuery().setInt64("index", p.Index).setInt("limit", limitOrDefault(p.Limit))
	if p.Filter != "" {
		q.set("filter", p.Filter)
	}
	return c.get(ctx, PathPublicPools, q, p.Extra)
}

type AccountActiveOrdersParams struct {
	Market  market.Ref
	Account *int64
}

// AccountActiveOrders is authenticated with a fresh auth token.
func (c *Client) AccountActiveOrders(ctx context.Context, p AccountActiveOrdersParams) (map[string]any, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	idx, err := c.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt64("account_index", account).setInt("market_id", idx)
	if err := c.authorize(q); err != nil {
		return nil, err
	}
	return c.get(ctx, PathAccountActiveOrders, q, nil)
}

type AccountInactiveOrdersParams struct {
	Market    *market.Ref
	Account   *int64
	Limit     int
	Cursor    string
	AskFilter *int
	Extra     map[string]string
}

// AccountInactiveOrders lists filled and canceled orders. It is authenticated.
func (c *Client) AccountInactiveOrders(ctx context.Context, p AccountInactiveOrdersParams) (map[string]any, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt64("account_index", account).setInt("limit", limitOrDefault(p.Limit))
	if p.Market != nil {
		idx, err := c.marketIndex(*p.Market)
		if err != nil {
			return nil, err
		}
		q.setInt("market_id", idx)
	}
	if p.Cursor != "" {
		q.set("cursor", p.Cursor)
	}
	if p.AskFilter != nil {
		q.setInt("ask_filter", *p.AskFilter)
	}
	if err := c.authorize(q); err != nil {
		return nil, err
	}
	return c.get(ctx, PathAccountInactiveOrders, q, p.Extra)
}

type AccountOrdersParams struct {
	Market  market.Ref
	Account *int64
	Limit   int
	Cursor  string
	Extra   map[string]string
}

func (c *Client) AccountOrders(ctx context.Context, p AccountOrdersParams) (map[string]any, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	idx, err := c.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	q := newQuery().
		setInt64("account_index", account).
		setInt("market_id", idx).
		setInt("limit", limitOrDefault(p.Limit))
	if p.Cursor != "" {
		q.set("cursor", p.Cursor)
	}
	return c.get(ctx, PathAccountOrders, q, p.Extra)
}

type OrderBooksParams struct {
	// Market filters to one market. Nil lists every market.
	Market *market.Ref
}

func (c *Client) OrderBookDetails(ctx context.Context, p OrderBooksParams) (map[string]any, error) {
	q, err := c.optionalMarket(p.Market)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, PathOrderBookDetails, q, nil)
}

// OrderBooks returns the market listing the registry is built from.
func (c *Client) OrderBooks(ctx context.Context, p OrderBooksParams) (map[string]any, error) {
	q, err := c.optionalMarket(p.Market)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, PathOrderBooks, q, nil)
}

type OrderBookOrdersParams struct {
	Market market.Ref
	Limit  int
	Extra  map[string]string
}

func (c *Client) OrderBookOrders(ctx context.Context, p OrderBookOrdersParams) (map[string]any, error) {
	idx, err := c.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt("market_id", idx).setInt("limit", limitOrDefault(p.Limit))
	return c.get(ctx, PathOrderBookOrders, q, p.Extra)
}

type RecentTradesParams struct {
	Market market.Ref
	Limit  int
	Extra  map[string]string
}

func (c *Client) RecentTrades(ctx context.Context, p RecentTradesParams) (map[string]any, error) {
	idx, err := c.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt("market_id", idx).setInt("limit", limitOrDefault(p.Limit))
	return c.get(ctx, PathRecentTrades, q, p.Extra)
}

type TradesParams struct {
	Market *market.Ref
	Limit  int
	// SortBy defaults to "timestamp".
	SortBy string
	Extra  map[string]string
}

func (c *Client) Trades(ctx context.Context, p TradesParams) (map[string]any, error) {
	q, err := c.optionalMarket(p.Market)
	if err != nil {
		return nil, err
	}
	q.setInt("limit", limitOrDefault(p.Limit)).set("sort_by", orDefault(p.SortBy, "timestamp"))
	return c.get(ctx, PathTrades, q, p.Extra)
}

type AccountTxsParams struct {
	// By defaults to "account_index".
	By    string
	Value string
	Limit int
	Extra map[string]string
}

func (c *Client) AccountTxs(ctx context.Context, p AccountTxsParams) (map[string]any, error) {
	by := orDefault(p.By, "account_index")
	value := p.Value
	if value == "" {
		idx, err := c.accountIndex(nil)
		if err != nil {
			return nil, err
		}
		value = strconv.FormatInt(idx, 10)
	}
	q := newQuery().set("by", by).set("value", value).setInt("limit", limitOrDefault(p.Limit))
	return c.get(ctx, PathAccountTxs, q, p.Extra)
}

// BlockRef selects a block by commitment or by height. Commitment wins when
// both are set.
type BlockRef struct {
	Commitment string
	Height     int64
}

func (b BlockRef) byValue(commitmentKey, heightKey string) (string, string) {
	if b.Commitment != "" {
		return commitmentKey, b.Commitment
	}
	return heightKey, strconv.FormatInt(b.Height, 10)
}

func (c *Client) BlockTxs(ctx context.Context, b BlockRef) (map[string]any, error) {
	by, value := b.byValue("block_commitment", "block_height")
	return c.get(ctx, PathBlockTxs, newQuery().set("by", by).set("value", value), nil)
}

func (c *Client) Block(ctx context.Context, b BlockRef) (map[string]any, error) {
	by, value := b.byValue("commitment", "height")
	return c.get(ctx, PathBlock, newQuery().set("by", by).set("value", value), nil)
}

type BlocksParams struct {
	Index *int64
	Limit int
	// Sort is "asc" or "desc". Empty leaves the server default.
	Sort  string
	Extra map[string]string
}

func (c *Client) Blocks(ctx context.Context, p BlocksParams) (map[string]any, error) {
	q := newQuery().setInt("limit", limitOrDefault(p.Limit))
	if p.Index != nil {
		q.setInt64("index", *p.Index)
	}
	if p.Sort != "" {
		q.set("sort", p.Sort)
	}
	return c.get(ctx, PathBlocks, q, p.Extra)
}

type NextNonceParams struct {
	Account     *int64
	APIKeyIndex int
}

func (c *Client) NextNonce(ctx context.Context, p NextNonceParams) (map[string]any, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt64("account_index", account).setInt("api_key_index", p.APIKeyIndex)
	return c.get(ctx, PathNextNonce, q, nil)
}

type TxParams struct {
	// By is "hash" (default) or "sequence_index".
	By    string
	Value string
}

func (c *Client) Tx(ctx context.Context, p TxParams) (map[string]any, error) {
	q := newQuery().set("by", orDefault(p.By, "hash")).set("value", p.Value)
	return c.get(ctx, PathTx, q, nil)
}

func (c *Client) TxFromL1TxHash(ctx context.Context, hash string) (map[string]any, error) {
	return c.get(ctx, PathTxFromL1TxHash, newQuery().set("hash", hash), nil)
}

type TxsParams struct {
	Index *int64
	Limit int
	Extra map[string]string
}

func (c *Client) Txs(ctx context.Context, p TxsParams) (map[string]any, error) {
	q := newQuery().setInt("limit", limitOrDefault(p.Limit))
	if p.Index != nil {
		q.setInt64("index", *p.Index)
	}
	return c.get(ctx, PathTxs, q, p.Extra)
}

type HistoryParams struct {
	Account *int64
	Cursor  string
	// Filter is "all", "pending" or "claimable". Empty leaves the server default.
	Filter string
	Extra  map[string]string
}

// WithdrawHistory is authenticated.
func (c *Client) WithdrawHistory(ctx context.Context, p HistoryParams) (map[string]any, error) {
	q, err := c.historyQuery(p)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, PathWithdrawHistory, q, p.Extra)
}

// DepositHistory is authenticated and scoped to the client's L1 address.
func (c *Client) DepositHistory(ctx context.Context, p HistoryParams) (map[string]any, error) {
	q, err := c.historyQuery(p)
	if err != nil {
		return nil, err
	}
	q.set("l1_address", c.l1Address)
	return c.get(ctx, PathDepositHistory, q, p.Extra)
}

func (c *Client) historyQuery(p HistoryParams) (*query, error) {
	account, err := c.accountIndex(p.Account)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt64("account_index", account)
	if p.Cursor != "" {
		q.set("cursor", p.Cursor)
	}
	if p.Filter != "" {
		q.set("filter", p.Filter)
	}
	if err := c.authorize(q); err != nil {
		return nil, err
	}
	return q, nil
}

type CandleParams struct {
	Market     market.Ref
	Resolution string
	Start      time.Time
	End        time.Time
	CountBack  int
	Extra      map[string]string
}

func (c *Client) Fundings(ctx context.Context, p CandleParams) (map[string]any, error) {
	idx, err := c.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt("market_id", idx)
	c.window(q, p.Resolution, p.Start, p.End, p.CountBack)
	return c.get(ctx, PathFundings, q, p.Extra)
}

type CandlesticksParams struct {
	CandleParams
	SetTimestampToEnd bool
}

func (c *Client) Candlesticks(ctx context.Context, p CandlesticksParams) (map[string]any, error) {
	idx, err := c.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	q := newQuery().setInt("market_id", idx)
	c.window(q, p.Resolution, p.Start, p.End, p.CountBack)
	q.set("set_timestamp_to_end", strconv.FormatBool(p.SetTimestampToEnd))
	return c.get(ctx, PathCandlesticks, q, p.Extra)
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, PathStatus, newQuery(), nil)
}

func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, PathInfo, newQuery(), nil)
}

func (c *Client) ExchangeStats(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, PathExchangeStats, newQuery(), nil)
}

func (c *Client) Announcement(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, PathAnnouncement, newQuery(), nil)
}

func (c *Client) CurrentHeight(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, PathCurrentHeight, newQuery(), nil)
}

func (c *Client) Layer2BasicInfo(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, PathLayer2BasicInfo, newQuery(), nil)
}

func (c *Client) get(ctx context.Context, path string, q *query, extra map[string]string) (map[string]any, error) {
	for k, v := range extra {
		q.set(k, v)
	}
	return c.rest.Get(ctx, path, q.values)
}

// accountIndex returns the explicit index or the bootstrapped session account.
func (c *Client) accountIndex(explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	ready, err := c.boot.Current()
	if err != nil {
		return 0, err
	}
	return ready.Account.AccountIndex, nil
}

// marketIndex resolves a ticker through the registry. Index refs are used as
// given and work before bootstrap.
func (c *Client) marketIndex(ref market.Ref) (int, error) {
	if ref.IsIndex() {
		return ref.MarketIndex(), nil
	}
	reg, err := c.Registry()
	if err != nil {
		return 0, err
	}
	return reg.ResolveIndex(ref)
}

func (c *Client) optionalMarket(ref *market.Ref) (*query, error) {
	q := newQuery()
	if ref == nil {
		return q, nil
	}
	idx, err := c.marketIndex(*ref)
	if err != nil {
		return nil, err
	}
	return q.setInt("market_id", idx), nil
}

func (c *Client) authorize(q *query) error {
	token, err := c.signer.CreateAuthToken(c.authExpiry)
	if err != nil {
		return err
	}
	q.set("auth", token)
	return nil
}

// window fills resolution, start_timestamp, end_timestamp and count_back.
// Timestamps are unix seconds.
func (c *Client) window(q *query, resolution string, start, end time.Time, countBack int) {
	if end.IsZero() {
		end = c.now()
	}
	if start.IsZero() {
		start = end.Add(-defaultLookback * time.Second)
	}
	if countBack <= 0 {
		countBack = defaultCountBack
	}
	q.set("resolution", orDefault(resolution, defaultResolution)).
		setInt64("start_timestamp", start.Unix()).
		setInt64("end_timestamp", end.Unix()).
		setInt("count_back", countBack)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
