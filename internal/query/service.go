// Package query serves read-only historical lookups from Postgres.
// The snapshot API answers "what is the state now"; this package answers
// "what did this wallet do", including markets resolved long ago.
package query

import (
	"context"
	"database/sql"
	"fmt"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const positionColumns = `
	wallet, market_slug, up_shares, down_shares, up_cost, down_cost,
	realized_pnl, total_trades, maker_trades, taker_trades,
	first_trade_ts, last_trade_ts, partial_history, version`

// GetWalletPositions returns every persisted position for a wallet,
// newest activity first.
func (s *Service) GetWalletPositions(ctx context.Context, wallet string) ([]PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet = $1
		ORDER BY last_trade_ts DESC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query wallet positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetPosition returns one persisted position, or sql.ErrNoRows.
func (s *Service) GetPosition(ctx context.Context, wallet, marketSlug string) (*PositionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet = $1 AND market_slug = $2
	`, wallet, marketSlug)

	p, err := scanPosition(row)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetWalletSummary aggregates a wallet's activity across all markets.
func (s *Service) GetWalletSummary(ctx context.Context, wallet string) (*WalletSummary, error) {
	summary := &WalletSummary{Wallet: wallet}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_trades), 0),
		       COALESCE(SUM(realized_pnl), 0),
		       COUNT(*) FILTER (WHERE partial_history)
		FROM positions
		WHERE wallet = $1
	`, wallet).Scan(
		&summary.MarketsTraded,
		&summary.TotalTrades,
		&summary.TotalRealizedPnL,
		&summary.PartialPositions,
	)
	if err != nil {
		return nil, fmt.Errorf("query wallet summary: %w", err)
	}
	return summary, nil
}

// GetTradeHistory returns applied trades for a wallet with cursor-based
// pagination: pass the last row's timestamp as beforeTS for the next
// page. marketSlug narrows to one market when non-nil.
func (s *Service) GetTradeHistory(
	ctx context.Context,
	wallet string,
	marketSlug *string,
	limit int,
	beforeTS *int64,
) ([]TradeRecord, error) {
	query := `
		SELECT trade_id, tx_hash, ts, wallet, market_slug, role, side, outcome, shares, usdc, price
		FROM applied_trades
		WHERE wallet = $1
	`
	args := []interface{}{wallet}
	argIdx := 2

	if marketSlug != nil {
		query += fmt.Sprintf(" AND market_slug = $%d", argIdx)
		args = append(args, *marketSlug)
		argIdx++
	}
	if beforeTS != nil {
		query += fmt.Sprintf(" AND ts < $%d", argIdx)
		args = append(args, *beforeTS)
		argIdx++
	}

	query += " ORDER BY ts DESC, trade_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.TradeID, &t.TxHash, &t.Timestamp, &t.Wallet, &t.MarketSlug,
			&t.Role, &t.Side, &t.Outcome, &t.Shares, &t.USDC, &t.Price,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*PositionRecord, error) {
	var p PositionRecord
	err := row.Scan(
		&p.Wallet, &p.MarketSlug, &p.UpShares, &p.DownShares, &p.UpCost, &p.DownCost,
		&p.RealizedPnL, &p.TotalTrades, &p.MakerTrades, &p.TakerTrades,
		&p.FirstTradeTS, &p.LastTradeTS, &p.PartialHistory, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPositions(rows *sql.Rows) ([]PositionRecord, error) {
	var out []PositionRecord
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
