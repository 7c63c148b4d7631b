package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"TradeScope/internal/event"
	"TradeScope/internal/ledger"
	"TradeScope/internal/observability"
)

// Applied is one trade and the position state it produced, queued for
// durable storage after the ledger writer applied it.
type Applied struct {
	Trade    *event.TradeEvent
	Position *ledger.Position
}

// PersistenceWorker drains the persist channel and batch-writes to
// Postgres. The ledger writers send to the channel with blocking sends,
// so if this worker falls behind, applies stall rather than losing the
// durable record.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *TradeLogWriter
	inputChan    <-chan Applied
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan Applied,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		writer:       NewTradeLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run batches incoming applies and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the channel
// closes; remaining entries are flushed on the way out.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]Applied, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case applied, ok := <-pw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, applied)
			if len(batch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				batch = batch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never
// drops a batch: it retries until the write succeeds or shutdown forces
// one final attempt.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch []Applied) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, trades=%d)",
				attempt, backoff, len(batch))
			select {
			case <-ctx.Done():
				finalErr := pw.flush(context.Background(), batch)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		pw.metrics.PersistRetry.Inc()
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch []Applied) error {
	start := time.Now()

	trades := make([]*event.TradeEvent, 0, len(batch))
	// Keep only the newest position state per key; earlier intermediate
	// states in the same batch are superseded.
	latest := make(map[ledger.Key]*ledger.Position, len(batch))
	for _, a := range batch {
		trades = append(trades, a.Trade)
		key := ledger.Key{Wallet: a.Position.Wallet, MarketSlug: a.Position.MarketSlug}
		if cur, ok := latest[key]; !ok || a.Position.Version > cur.Version {
			latest[key] = a.Position
		}
	}
	positions := make([]*ledger.Position, 0, len(latest))
	for _, p := range latest {
		positions = append(positions, p)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteTradeBatch(ctx, tx, trades); err != nil {
		pw.metrics.PersistErrors.WithLabelValues("write_trades").Inc()
		return err
	}
	if err := pw.writer.UpsertPositions(ctx, tx, positions); err != nil {
		pw.metrics.PersistErrors.WithLabelValues("upsert_positions").Inc()
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		return err
	}

	pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	pw.metrics.PersistBatchSize.Observe(float64(len(trades)))
	pw.metrics.PersistRowsWritten.WithLabelValues("applied_trades").Add(float64(len(trades)))
	pw.metrics.PersistRowsWritten.WithLabelValues("positions").Add(float64(len(positions)))

	return nil
}
