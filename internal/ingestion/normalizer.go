package ingestion

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"TradeScope/internal/event"
	"TradeScope/internal/observability"
)

// DuplicateChecker is the second dedup tier behind the in-memory
// recent-id window, typically backed by the applied-trade log in
// Postgres.
type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, tradeID string) (bool, error)
}

// Normalizer turns raw at-least-once trade batches into an ordered,
// validated, deduplicated stream. Not safe for concurrent use; it is
// owned by the single feed-consumer goroutine.
type Normalizer struct {
	window  time.Duration
	wallets map[string]struct{} // empty = track all
	dbCheck DuplicateChecker
	metrics *observability.Metrics
	logger  zerolog.Logger

	// Recent-id window: trade id -> event timestamp. Evicted once the
	// feed has moved `window` past an entry's timestamp.
	seen  map[string]int64
	maxTS int64
}

func NewNormalizer(
	window time.Duration,
	wallets []string,
	dbCheck DuplicateChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Normalizer {
	ws := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		ws[w] = struct{}{}
	}
	return &Normalizer{
		window:  window,
		wallets: ws,
		dbCheck: dbCheck,
		metrics: metrics,
		logger:  logger,
		seen:    make(map[string]int64),
	}
}

// WarmWindow preloads the recent-id window, used at startup from the
// applied-trade log tail so a restart does not re-apply redeliveries.
func (n *Normalizer) WarmWindow(ids map[string]int64) {
	for id, ts := range ids {
		n.seen[id] = ts
		if ts > n.maxTS {
			n.maxTS = ts
		}
	}
	n.metrics.DedupWindowSize.Set(float64(len(n.seen)))
}

// Normalize validates, orders, and deduplicates one batch. The returned
// trades are new, in (timestamp, id) order, and safe to apply exactly
// once. Malformed records are dropped and counted, never fatal.
func (n *Normalizer) Normalize(ctx context.Context, trades []*event.TradeEvent) []*event.TradeEvent {
	valid := trades[:0]
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			n.metrics.TradesRejected.WithLabelValues(err.Error()).Inc()
			n.logger.Warn().
				Err(err).
				Str("trade_id", t.ID).
				Str("wallet", t.Wallet).
				Msg("dropping malformed trade")
			continue
		}
		if !n.tracked(t.Wallet) {
			continue
		}
		valid = append(valid, t)
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Before(valid[j])
	})

	out := make([]*event.TradeEvent, 0, len(valid))
	for _, t := range valid {
		if _, dup := n.seen[t.ID]; dup {
			n.metrics.TradesDuplicate.WithLabelValues("window").Inc()
			continue
		}
		if n.dbCheck != nil {
			start := time.Now()
			dup, err := n.dbCheck.IsDuplicate(ctx, t.ID)
			n.metrics.DedupDBDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				// Let it through: the ledger watermark still rejects
				// genuine duplicates for positions we have seen.
				n.logger.Warn().Err(err).Str("trade_id", t.ID).Msg("dedup lookup failed")
			} else if dup {
				n.metrics.TradesDuplicate.WithLabelValues("postgres").Inc()
				n.seen[t.ID] = t.Timestamp
				continue
			}
		}

		n.seen[t.ID] = t.Timestamp
		if t.Timestamp > n.maxTS {
			n.maxTS = t.Timestamp
		}
		out = append(out, t)
	}

	n.evict()
	n.metrics.DedupWindowSize.Set(float64(len(n.seen)))
	return out
}

// tracked reports whether the wallet is in the configured set.
func (n *Normalizer) tracked(wallet string) bool {
	if len(n.wallets) == 0 {
		return true
	}
	_, ok := n.wallets[wallet]
	return ok
}

// evict drops window entries older than the retention horizon, measured
// in event time against the newest trade seen.
func (n *Normalizer) evict() {
	horizon := n.maxTS - int64(n.window.Seconds())
	for id, ts := range n.seen {
		if ts < horizon {
			delete(n.seen, id)
		}
	}
}
