package order

import (
	"math"
	"strings"

	"lighter-sdk/internal/market"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeLimit  = 0
	OrderTypeMarket = 1
)

// Time in force wire codes.
const (
	TimeInForceIOC = 0
	TimeInForceGTC = 1
	TimeInForceALO = 2
)

// LimitRequest is a human-unit order. A negative Amount sells.
type LimitRequest struct {
	Market           market.Ref
	Amount           decimal.Decimal
	Price            decimal.Decimal
	TIF              string
	ClientOrderIndex int64
	ReduceOnly       bool
}

// Normalized is the fixed-point, index-addressed form of an order.
type Normalized struct {
	Ticker           string
	MarketIndex      int
	ClientOrderIndex int64
	BaseAmount       int64
	Price            int64
	IsAsk            bool
	OrderType        int
	TimeInForce      int
	ReduceOnly       int
	TriggerPrice     int64
}

// ParseTimeInForce maps GTC, IOC and ALO to wire codes. Matching ignores case.
func ParseTimeInForce(tif string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(tif)) {
	case "GTC":
		return TimeInForceGTC, nil
	case "IOC":
		return TimeInForceIOC, nil
	case "ALO":
		return TimeInForceALO, nil
	default:
		return 0, &TimeInForceError{Value: tif}
	}
}

// Validate runs every check that does not need a price.
func Validate(reg *market.Registry, ref market.Ref, amount decimal.Decimal, tif string) (market.Metadata, error) {
	meta, err := reg.Lookup(ref)
	if err != nil {
		return market.Metadata{}, err
	}
	if amount.IsZero() {
		return market.Metadata{}, &AmountError{Ticker: meta.Ticker, Amount: amount, Reason: "must be non-zero"}
	}
	if _, err := ParseTimeInForce(tif); err != nil {
		return market.Metadata{}, err
	}
	if abs := amount.Abs(); abs.LessThan(meta.MinBaseAmount) {
		return market.Metadata{}, &MinimumSizeError{Ticker: meta.Ticker, Amount: abs, Minimum: meta.MinBaseAmount}
	}
	return meta, nil
}

// NormalizeLimit converts a limit request into wire units. It is pure: the
// registry is only read.
func NormalizeLimit(reg *market.Registry, req LimitRequest) (Normalized, error) {
	meta, err := reg.Lookup(req.Market)
	if err != nil {
		return Normalized{}, err
	}
	if req.Amount.IsZero() {
		return Normalized{}, &AmountError{Ticker: meta.Ticker, Amount: req.Amount, Reason: "must be non-zero"}
	}
	isAsk := req.Amount.IsNegative()
	tif, err := ParseTimeInForce(req.TIF)
	if err != nil {
		return Normalized{}, err
	}
	price, ok := scale(req.Price, meta.PricePrecision)
	if !ok {
		return Normalized{}, &PriceError{Ticker: meta.Ticker, Price: req.Price, Reason: "overflows wire range"}
	}
	if price <= 0 {
		return Normalized{}, &PriceError{Ticker: meta.Ticker, Price: req.Price, Reason: "must be positive at market precision"}
	}
	abs := req.Amount.Abs()
	if abs.LessThan(meta.MinBaseAmount) {
		return Normalized{}, &MinimumSizeError{Ticker: meta.Ticker, Amount: abs, Minimum: meta.MinBaseAmount}
	}
	base, ok := scale(abs, meta.SizePrecision)
	if !ok {
		return Normalized{}, &AmountError{Ticker: meta.Ticker, Amount: req.Amount, Reason: "overflows wire range"}
	}
	if base <= 0 {
		return Normalized{}, &AmountError{Ticker: meta.Ticker, Amount: req.Amount, Reason: "rounds to zero at market precision"}
	}
	reduceOnly := 0
	if req.ReduceOnly {
		reduceOnly = 1
	}
	return Normalized{
		Ticker:           meta.Ticker,
		MarketIndex:      meta.MarketIndex,
		ClientOrderIndex: req.ClientOrderIndex,
		BaseAmount:       base,
		Price:            price,
		IsAsk:            isAsk,
		OrderType:        OrderTypeLimit,
		TimeInForce:      tif,
		ReduceOnly:       reduceOnly,
		TriggerPrice:     0,
	}, nil
}

var (
	maxWire = decimal.NewFromInt(math.MaxInt64)
	minWire = decimal.NewFromInt(math.MinInt64)
)

// scale returns round(v * 10^precision) with halves rounded away from zero.
func scale(v decimal.Decimal, precision int32) (int64, bool) {
	scaled := v.Shift(precision).Round(0)
	if scaled.GreaterThan(maxWire) || scaled.LessThan(minWire) {
		return 0, false
	}
	return scaled.IntPart(), true
}
