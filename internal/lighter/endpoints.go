package lighter

const (
	PathStatus                = "/"
	PathInfo                  = "/info"
	PathAccount               = "/api/v1/account"
	PathAccounts              = "/api/v1/accounts"
	PathAccountsByL1Address   = "/api/v1/accountsByL1Address"
	PathAPIKeys               = "/api/v1/apikeys"
	PathFeeBucket             = "/api/v1/feeBucket"
	PathPnL                   = "/api/v1/pnl"
	PathPublicPools           = "/api/v1/publicPools"
	PathAccountActiveOrders   = "/api/v1/accountActiveOrders"
	PathAccountInactiveOrders = "/api/v1/accountInactiveOrders"
	PathAccountOrders         = "/api/v1/accountOrders"
	PathExchangeStats         = "/api/v1/exchangeStats"
	PathOrderBookDetails      = "/api/v1/orderBookDetails"
	PathOrderBookOrders       = "/api/v1/orderBookOrders"
	PathOrderBooks            = "/api/v1/orderBooks"
	PathRecentTrades          = "/api/v1/recentTrades"
	PathTrades                = "/api/v1/trades"
	PathAccountTxs            = "/api/v1/accountTxs"
	PathBlockTxs              = "/api/v1/blockTxs"
	PathNextNonce             = "/api/v1/nextNonce"
	PathTx                    = "/api/v1/tx"
	PathTxFromL1TxHash        = "/api/v1/txFromL1TxHash"
	PathTxs                   = "/api/v1/txs"
	PathWithdrawHistory       = "/api/v1/withdrawHistory"
	PathDepositHistory        = "/api/v1/deposit/history"
	PathAnnouncement          = "/api/v1/announcement"
	PathBlock                 = "/api/v1/block"
	PathBlocks                = "/api/v1/blocks"
	PathCurrentHeight         = "/api/v1/currentHeight"
	PathFundings              = "/api/v1/fundings"
	PathCandlesticks          = "/api/v1/candlesticks"
	PathLayer2BasicInfo       = "/api/v1/layer2BasicInfo"
)

const (
	defaultLimit      = 100
	defaultResolution = "1h"
	defaultCountBack  = 2
	defaultLookback   = 24 * 60 * 60
	// defaultAPIKeyIndex asks apikeys for every key of the account.
	defaultAPIKeyIndex = 255
)
