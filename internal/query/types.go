package query

import "github.com/shopspring/decimal"

// PositionRecord is a persisted position for API queries. Unlike the
// snapshot API this reads Postgres, so it covers resolved markets long
// after they left the hot path.
type PositionRecord struct {
	Wallet         string          `json:"wallet"`
	MarketSlug     string          `json:"market_slug"`
	UpShares       decimal.Decimal `json:"up_shares"`
	DownShares     decimal.Decimal `json:"down_shares"`
	UpCost         decimal.Decimal `json:"up_cost"`
	DownCost       decimal.Decimal `json:"down_cost"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	TotalTrades    int64           `json:"total_trades"`
	MakerTrades    int64           `json:"maker_trades"`
	TakerTrades    int64           `json:"taker_trades"`
	FirstTradeTS   int64           `json:"first_trade_ts"`
	LastTradeTS    int64           `json:"last_trade_ts"`
	PartialHistory bool            `json:"partial_history"`
	Version        int64           `json:"version"`
}

// TradeRecord is one applied trade for API queries.
type TradeRecord struct {
	TradeID    string          `json:"trade_id"`
	TxHash     string          `json:"tx_hash"`
	Timestamp  int64           `json:"timestamp"`
	Wallet     string          `json:"wallet"`
	MarketSlug string          `json:"market_slug"`
	Role       string          `json:"role"`
	Side       string          `json:"side"`
	Outcome    string          `json:"outcome"`
	Shares     decimal.Decimal `json:"shares"`
	USDC       decimal.Decimal `json:"usdc"`
	Price      decimal.Decimal `json:"price"`
}

// WalletSummary aggregates a wallet's activity across all markets.
type WalletSummary struct {
	Wallet           string          `json:"wallet"`
	MarketsTraded    int64           `json:"markets_traded"`
	TotalTrades      int64           `json:"total_trades"`
	TotalRealizedPnL decimal.Decimal `json:"total_realized_pnl"`
	PartialPositions int64           `json:"partial_positions"`
}
