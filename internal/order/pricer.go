package order

import (
	"context"

	"lighter-sdk/internal/market"

	"github.com/shopspring/decimal"
)

// BookSource supplies the current best bid and ask of a market.
type BookSource interface {
	BestBidAsk(ctx context.Context, marketIndex int) (market.Top, error)
}

// MarketRequest is a market order in human units. A negative Amount sells.
type MarketRequest struct {
	Market           market.Ref
	Amount           decimal.Decimal
	Slippage         decimal.Decimal
	TIF              string
	ClientOrderIndex int64
	ReduceOnly       bool
}

type Pricer struct {
	Books BookSource
}

var two = decimal.NewFromInt(2)

// PriceMarketOrder returns a marketable limit price: the book midpoint moved by
// slippage against the taker.
func (p Pricer) PriceMarketOrder(ctx context.Context, reg *market.Registry, ref market.Ref, amount, slippage decimal.Decimal) (decimal.Decimal, error) {
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, &SlippageError{Slippage: slippage}
	}
	idx, err := reg.ResolveIndex(ref)
	if err != nil {
		return decimal.Decimal{}, err
	}
	top, err := p.Books.BestBidAsk(ctx, idx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	hasBid := top.HasBid && top.Bid.IsPositive()
	hasAsk := top.HasAsk && top.Ask.IsPositive()
	if !hasBid || !hasAsk {
		return decimal.Decimal{}, &EmptyBookError{MarketIndex: idx, MissingBids: !hasBid, MissingAsks: !hasAsk}
	}
	mid := top.Bid.Add(top.Ask).Div(two)
	one := decimal.NewFromInt(1)
	if amount.IsNegative() {
		return mid.Mul(one.Sub(slippage)), nil
	}
	return mid.Mul(one.Add(slippage)), nil
}

// NormalizeMarketOrder validates, prices and normalizes a market order. Market
// orders go out as limit orders at a marketable price.
func (p Pricer) NormalizeMarketOrder(ctx context.Context, reg *market.Registry, req MarketRequest) (Normalized, error) {
	if _, err := Validate(reg, req.Market, req.Amount, req.TIF); err != nil {
		return Normalized{}, err
	}
	price, err := p.PriceMarketOrder(ctx, reg, req.Market, req.Amount, req.Slippage)
	if err != nil {
		return Normalized{}, err
	}
	return NormalizeLimit(reg, LimitRequest{
		Market:           req.Market,
		Amount:           req.Amount,
		Price:            price,
		TIF:              req.TIF,
		ClientOrderIndex: req.ClientOrderIndex,
		ReduceOnly:       req.ReduceOnly,
	})
}
