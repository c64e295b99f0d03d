package lighter

import (
	"context"
	"errors"
	"fmt"

	"lighter-sdk/internal/lighter/exchange"
	"lighter-sdk/internal/market"
	"lighter-sdk/internal/order"

	"go.uber.org/zap"
)

// restBooks reads the top of book from orderBookOrders.
type restBooks struct {
	c *Client
}

func (b restBooks) BestBidAsk(ctx context.Context, marketIndex int) (market.Top, error) {
	resp, err := b.c.OrderBookOrders(ctx, OrderBookOrdersParams{Market: market.Index(marketIndex), Limit: 1})
	if err != nil {
		return market.Top{}, fmt.Errorf("order book %d: %w", marketIndex, err)
	}
	top := market.ParseTop(resp)
	top.MarketIndex = marketIndex
	top.UpdatedAt = b.c.now()
	return top, nil
}

// CachedBooks answers from the streamed book cache and falls back to another
// source when the cached book is missing or stale.
type CachedBooks struct {
	Cache    *market.BookCache
	Fallback order.BookSource
	Log      *zap.Logger
}

func (s CachedBooks) BestBidAsk(ctx context.Context, marketIndex int) (market.Top, error) {
	if s.Cache != nil {
		top, err := s.Cache.BestBidAsk(ctx, marketIndex)
		if err == nil {
			return top, nil
		}
		if !errors.Is(err, market.ErrStaleBook) || s.Fallback == nil {
			return market.Top{}, err
		}
		if s.Log != nil {
			s.Log.Debug("book cache miss, using fallback", zap.Int("market_index", marketIndex))
		}
	}
	if s.Fallback == nil {
		return market.Top{}, market.ErrStaleBook
	}
	return s.Fallback.BestBidAsk(ctx, marketIndex)
}

// directory adapts the read endpoints to session.Directory.
type directory struct {
	c *Client
}

func (d directory) SubAccountIndexes(ctx context.Context, l1Address string) ([]int64, error) {
	resp, err := d.c.AccountsByL1Address(ctx, AccountsByL1AddressParams{L1Address: l1Address})
	if err != nil {
		return nil, err
	}
	return exchange.SubAccountIndexes(resp)
}

func (d directory) MarketListing(ctx context.Context) (any, error) {
	return d.c.OrderBooks(ctx, OrderBooksParams{})
}
