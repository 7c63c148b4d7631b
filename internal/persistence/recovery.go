package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"TradeScope/internal/ledger"
)

// LoadPositions reloads every persisted position, used to rebuild the
// in-memory ledger at startup. The recovered watermarks make any feed
// redelivery after the restart a no-op.
func LoadPositions(ctx context.Context, db *sql.DB) ([]*ledger.Position, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT wallet, market_slug, up_shares, down_shares, up_cost, down_cost,
		       realized_pnl, total_trades, maker_trades, taker_trades,
		       first_trade_ts, last_trade_ts, last_applied_id, partial_history, version
		FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Position
	for rows.Next() {
		p := &ledger.Position{}
		if err := rows.Scan(
			&p.Wallet, &p.MarketSlug, &p.UpShares, &p.DownShares, &p.UpCost, &p.DownCost,
			&p.RealizedPnL, &p.TotalTrades, &p.MakerTrades, &p.TakerTrades,
			&p.FirstTradeTS, &p.LastTradeTS, &p.LastAppliedID, &p.PartialHistory, &p.Version,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
