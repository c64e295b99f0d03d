package exchange

const (
	TxTypeCreateOrder = 14
	TxTypeCancelOrder = 15
)

const (
	// DefaultOrderExpiry asks the exchange for its standard resting lifetime.
	DefaultOrderExpiry int64 = -1
	// ImmediateOrderExpiry is required for immediate-or-cancel orders.
	ImmediateOrderExpiry int64 = 0

	timeInForceIOC = 0
)

// CreateOrderTx holds already normalized order fields in exchange units.
type CreateOrderTx struct {
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

type CancelOrderTx struct {
	MarketIndex int
	OrderIndex  int64
}

// CreateOrderInfo is the signed tx_info payload of a create order transaction.
type CreateOrderInfo struct {
	AccountIndex     int64  `json:"AccountIndex"`
	ApiKeyIndex      int    `json:"ApiKeyIndex"`
	MarketIndex      int    `json:"MarketIndex"`
	ClientOrderIndex int64  `json:"ClientOrderIndex"`
	BaseAmount       int64  `json:"BaseAmount"`
	Price            int64  `json:"Price"`
	IsAsk            int    `json:"IsAsk"`
	Type             int    `json:"Type"`
	TimeInForce      int    `json:"TimeInForce"`
	ReduceOnly       int    `json:"ReduceOnly"`
	TriggerPrice     int64  `json:"TriggerPrice"`
	OrderExpiry      int64  `json:"OrderExpiry"`
	ExpiredAt        int64  `json:"ExpiredAt"`
	Nonce            int64  `json:"Nonce"`
	Sig              []byte `json:"Sig,omitempty"`
}

type CancelOrderInfo struct {
	AccountIndex int64  `json:"AccountIndex"`
	ApiKeyIndex  int    `json:"ApiKeyIndex"`
	MarketIndex  int    `json:"MarketIndex"`
	Index        int64  `json:"Index"`
	ExpiredAt    int64  `json:"ExpiredAt"`
	Nonce        int64  `json:"Nonce"`
	Sig          []byte `json:"Sig,omitempty"`
}

// TxResult is the exchange acknowledgement of a submitted transaction.
type TxResult struct {
	TxType int
	TxHash string
	Nonce  int64
	Raw    map[string]any
}
