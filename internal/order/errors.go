package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidTimeInForce = errors.New("invalid time in force")
	ErrBelowMinimumSize   = errors.New("below minimum size")
	ErrEmptyOrderBook     = errors.New("empty order book")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidSlippage    = errors.New("invalid slippage")
)

type AmountError struct {
	Ticker string
	Amount decimal.Decimal
	Reason string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%s amount %s: %s", e.Ticker, e.Amount, e.Reason)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

type TimeInForceError struct {
	Value string
}

func (e *TimeInForceError) Error() string {
	return fmt.Sprintf("time in force %q must be one of GTC, IOC, ALO", e.Value)
}

func (e *TimeInForceError) Unwrap() error { return ErrInvalidTimeInForce }

type MinimumSizeError struct {
	Ticker  string
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *MinimumSizeError) Error() string {
	return fmt.Sprintf("%s amount %s below minimum %s", e.Ticker, e.Amount, e.Minimum)
}

func (e *MinimumSizeError) Unwrap() error { return ErrBelowMinimumSize }

type EmptyBookError struct {
	MarketIndex int
	MissingBids bool
	MissingAsks bool
}

func (e *EmptyBookError) Error() string {
	side := "both sides"
	switch {
	case e.MissingBids && !e.MissingAsks:
		side = "bids"
	case e.MissingAsks && !e.MissingBids:
		side = "asks"
	}
	return fmt.Sprintf("market %d order book has no %s", e.MarketIndex, side)
}

func (e *EmptyBookError) Unwrap() error { return ErrEmptyOrderBook }

type PriceError struct {
	Ticker string
	Price  decimal.Decimal
	Reason string
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("%s price %s: %s", e.Ticker, e.Price, e.Reason)
}

func (e *PriceError) Unwrap() error { return ErrInvalidPrice }

type SlippageError struct {
	Slippage decimal.Decimal
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage %s must be in [0,1)", e.Slippage)
}

func (e *SlippageError) Unwrap() error { return ErrInvalidSlippage }
