package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresDedup answers "have we applied this trade before" from the
// applied-trade log. It is the second tier behind the normalizer's
// in-memory window, used mostly right after a restart.
type PostgresDedup struct {
	db *sql.DB
}

func NewPostgresDedup(db *sql.DB) *PostgresDedup {
	return &PostgresDedup{db: db}
}

// IsDuplicate checks whether the trade id exists in the applied log.
func (d *PostgresDedup) IsDuplicate(ctx context.Context, tradeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var exists int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM applied_trades WHERE trade_id = $1 LIMIT 1`,
		tradeID,
	).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoadRecentIDs returns the (trade id, timestamp) pairs from the log
// tail, used to warm the normalizer's recent-id window at startup.
func (d *PostgresDedup) LoadRecentIDs(ctx context.Context, since time.Duration) (map[string]int64, error) {
	horizon := time.Now().Add(-since).Unix()

	rows, err := d.db.QueryContext(ctx,
		`SELECT trade_id, ts FROM applied_trades WHERE ts >= $1`,
		horizon,
	)
	if err != nil {
		return nil, fmt.Errorf("load recent trade ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id string
		var ts int64
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("scan trade id: %w", err)
		}
		ids[id] = ts
	}
	return ids, rows.Err()
}
