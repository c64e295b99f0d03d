package market

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTicker      = errors.New("unknown ticker")
	ErrRegistryPopulation = errors.New("market registry population failed")
	ErrStaleBook          = errors.New("order book not fresh")
	ErrNotPopulated       = errors.New("market registry not populated")
)

type UnknownTickerError struct {
	Ticker  string
	Index   int
	ByIndex bool
}

func (e *UnknownTickerError) Error() string {
	if e.ByIndex {
		return fmt.Sprintf("unknown market index %d", e.Index)
	}
	return fmt.Sprintf("unknown ticker %q", e.Ticker)
}

func (e *UnknownTickerError) Unwrap() error { return ErrUnknownTicker }

// PopulationError names the listing entry and field that could not be used.
// Entry is -1 when the listing itself is malformed.
type PopulationError struct {
	Entry  int
	Field  string
	Reason string
}

func (e *PopulationError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("market listing: %s", e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("market listing entry %d: %s", e.Entry, e.Reason)
	}
	return fmt.Sprintf("market listing entry %d: %s: %s", e.Entry, e.Field, e.Reason)
}

func (e *PopulationError) Unwrap() error { return ErrRegistryPopulation }
