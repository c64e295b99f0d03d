package market

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Level is one price level of an order book side.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ParseTop extracts the best bid and ask from an orderBookOrders response or a
// book snapshot. Either side may be absent.
func ParseTop(payload map[string]any) Top {
	var top Top
	bids := parseLevels(payload["bids"])
	asks := parseLevels(payload["asks"])
	for _, lvl := range bids {
		if !lvl.Price.IsPositive() {
			continue
		}
		if !top.HasBid || lvl.Price.GreaterThan(top.Bid) {
			top.Bid = lvl.Price
			top.HasBid = true
		}
	}
	for _, lvl := range asks {
		if !lvl.Price.IsPositive() {
			continue
		}
		if !top.HasAsk || lvl.Price.LessThan(top.Ask) {
			top.Ask = lvl.Price
			top.HasAsk = true
		}
	}
	return top
}

func parseLevels(v any) []Level {
	items, ok := toSlice(v)
	if !ok {
		return nil
	}
	levels := make([]Level, 0, len(items))
	for _, item := range items {
		var price, size decimal.Decimal
		var okPrice, okSize bool
		switch lvl := item.(type) {
		case map[string]any:
			price, okPrice = decimalFromAny(lvl["price"])
			size, okSize = decimalFromAny(firstPresent(lvl, "size", "remaining_base_amount", "initial_base_amount"))
		case []any:
			// [price, size] pairs
			if len(lvl) >= 2 {
				price, okPrice = decimalFromAny(lvl[0])
				size, okSize = decimalFromAny(lvl[1])
			}
		}
		if !okPrice {
			continue
		}
		if !okSize {
			size = decimal.Zero
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func decimalFromAny(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	default:
		return decimal.Decimal{}, false
	}
}

// intFromAny accepts only integral values.
func intFromAny(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		return int(i), err == nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int(val), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		return i, err == nil
	default:
		return 0, false
	}
}
