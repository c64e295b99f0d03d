package market

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref addresses a market either by ticker or by exchange market index.
type Ref struct {
	ticker  string
	index   int
	byIndex bool
}

func Ticker(symbol string) Ref {
	return Ref{ticker: strings.TrimSpace(symbol)}
}

func Index(index int) Ref {
	return Ref{index: index, byIndex: true}
}

// ParseRef reads a market reference from text. With isIndex the value must be a
// non-negative integer market index, otherwise it is taken as a ticker.
func ParseRef(value string, isIndex bool) (Ref, error) {
	value = strings.TrimSpace(value)
	if !isIndex {
		if value == "" {
			return Ref{}, &UnknownTickerError{Ticker: value}
		}
		return Ticker(value), nil
	}
	idx, err := strconv.Atoi(value)
	if err != nil {
		return Ref{}, fmt.Errorf("market index %q: %w", value, err)
	}
	if idx < 0 {
		return Ref{}, fmt.Errorf("market index %d must be >= 0", idx)
	}
	return Index(idx), nil
}

func (r Ref) IsIndex() bool { return r.byIndex }

func (r Ref) TickerName() string { return r.ticker }

func (r Ref) MarketIndex() int { return r.index }

func (r Ref) IsZero() bool { return !r.byIndex && r.ticker == "" }

func (r Ref) String() string {
	if r.byIndex {
		return "#" + strconv.Itoa(r.index)
	}
	return r.ticker
}
