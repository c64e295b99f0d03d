package exchange

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeCreateOrder serializes the signed fields of a create order in a fixed
// order. Sig is never part of the encoding.
func EncodeCreateOrder(chainID int, info CreateOrderInfo) ([]byte, error) {
	if info.AccountIndex < 0 {
		return nil, errors.New("account index is required")
	}
	return encodeFields(
		int64(chainID),
		TxTypeCreateOrder,
		info.Nonce,
		info.ExpiredAt,
		info.AccountIndex,
		int64(info.ApiKeyIndex),
		int64(info.MarketIndex),
		info.ClientOrderIndex,
		info.BaseAmount,
		info.Price,
		int64(info.IsAsk),
		int64(info.Type),
		int64(info.TimeInForce),
		int64(info.ReduceOnly),
		info.TriggerPrice,
		info.OrderExpiry,
	)
}

func EncodeCancelOrder(chainID int, info CancelOrderInfo) ([]byte, error) {
	if info.AccountIndex < 0 {
		return nil, errors.New("account index is required")
	}
	return encodeFields(
		int64(chainID),
		TxTypeCancelOrder,
		info.Nonce,
		info.ExpiredAt,
		info.AccountIndex,
		int64(info.ApiKeyIndex),
		int64(info.MarketIndex),
		info.Index,
	)
}

func encodeFields(fields ...int64) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(len(fields)); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := enc.EncodeInt(f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
