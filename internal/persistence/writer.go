package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"TradeScope/internal/event"
	"TradeScope/internal/ledger"
)

// TradeLogWriter writes the applied-trade log and position upserts using
// multi-row statements. Multi-row INSERT keeps the writer portable;
// switch to pgx CopyFrom if the trade log becomes the bottleneck.
type TradeLogWriter struct {
	db *sql.DB
}

func NewTradeLogWriter(db *sql.DB) *TradeLogWriter {
	return &TradeLogWriter{db: db}
}

// WriteTradeBatch appends applied trades to the log. Conflicting ids are
// ignored: the log is also the tier-2 dedup source, so redelivered rows
// must not error.
func (w *TradeLogWriter) WriteTradeBatch(ctx context.Context, tx *sql.Tx, trades []*event.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}

	query := `INSERT INTO applied_trades
		(trade_id, tx_hash, ts, wallet, market_slug, role, side, outcome, shares, usdc, price)
		VALUES `

	values := make([]string, 0, len(trades))
	args := make([]interface{}, 0, len(trades)*11)

	for i, t := range trades {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			t.ID, t.TxHash, t.Timestamp, t.Wallet, t.MarketSlug,
			t.Role.String(), t.Side.String(), t.Outcome.String(),
			t.Shares, t.USDC, t.Price,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (trade_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertPositions writes position states, keeping the row with the
// highest version when writes race with a redelivered older batch.
func (w *TradeLogWriter) UpsertPositions(ctx context.Context, tx *sql.Tx, positions []*ledger.Position) error {
	if len(positions) == 0 {
		return nil
	}

	query := `INSERT INTO positions
		(wallet, market_slug, up_shares, down_shares, up_cost, down_cost, realized_pnl,
		 total_trades, maker_trades, taker_trades, first_trade_ts, last_trade_ts,
		 last_applied_id, partial_history, version)
		VALUES `

	values := make([]string, 0, len(positions))
	args := make([]interface{}, 0, len(positions)*15)

	for i, p := range positions {
		base := i * 15
		ph := make([]string, 15)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			p.Wallet, p.MarketSlug, p.UpShares, p.DownShares, p.UpCost, p.DownCost,
			p.RealizedPnL, p.TotalTrades, p.MakerTrades, p.TakerTrades,
			p.FirstTradeTS, p.LastTradeTS, p.LastAppliedID, p.PartialHistory, p.Version,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (wallet, market_slug) DO UPDATE SET
		up_shares = EXCLUDED.up_shares,
		down_shares = EXCLUDED.down_shares,
		up_cost = EXCLUDED.up_cost,
		down_cost = EXCLUDED.down_cost,
		realized_pnl = EXCLUDED.realized_pnl,
		total_trades = EXCLUDED.total_trades,
		maker_trades = EXCLUDED.maker_trades,
		taker_trades = EXCLUDED.taker_trades,
		first_trade_ts = EXCLUDED.first_trade_ts,
		last_trade_ts = EXCLUDED.last_trade_ts,
		last_applied_id = EXCLUDED.last_applied_id,
		partial_history = EXCLUDED.partial_history,
		version = EXCLUDED.version,
		updated_at = NOW()
	WHERE positions.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
