package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TxHashFromResponse reads the transaction hash from a sendTx acknowledgement.
func TxHashFromResponse(resp map[string]any) string {
	if resp == nil {
		return ""
	}
	for _, key := range []string{"tx_hash", "txHash", "hash"} {
		if hash := stringFromAny(resp[key]); hash != "" {
			return hash
		}
	}
	return ""
}

// SubAccountIndexes returns sub_accounts[].index from an accountsByL1Address
// response in listing order. A missing list yields nil. Any entry without a
// usable index fails the whole listing, so position 0 is always the primary.
func SubAccountIndexes(resp map[string]any) ([]int64, error) {
	subs, ok := resp["sub_accounts"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]int64, 0, len(subs))
	for i, raw := range subs {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: position %d is not an object", ErrMalformedSubAccount, i)
		}
		idx, ok := int64FromAny(entry["index"])
		if !ok {
			return nil, fmt.Errorf("%w: position %d has index %v", ErrMalformedSubAccount, i, entry["index"])
		}
		out = append(out, idx)
	}
	return out, nil
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func int64FromAny(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		i, err := val.Int64()
		return i, err == nil
	case float64:
		return int64(val), val == float64(int64(val))
	case int:
		return int64(val), true
	case int64:
		return val, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
