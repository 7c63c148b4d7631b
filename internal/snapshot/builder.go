package snapshot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"TradeScope/internal/ledger"
	"TradeScope/internal/market"
	"TradeScope/internal/observability"
	"TradeScope/internal/pattern"
)

// Builder periodically assembles a snapshot from the ledger store and
// publishes it. It only builds when something changed since the last
// publish, at most once per interval.
type Builder struct {
	store    *ledger.Store
	markets  *market.Store
	patterns *pattern.Engine
	pub      *Publisher
	interval time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger

	dirty atomic.Bool
}

func NewBuilder(
	store *ledger.Store,
	markets *market.Store,
	patterns *pattern.Engine,
	pub *Publisher,
	interval time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Builder {
	return &Builder{
		store:    store,
		markets:  markets,
		patterns: patterns,
		pub:      pub,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// MarkDirty flags that ledger state changed. Safe from any goroutine;
// the ledger writers call it from OnApplied.
func (b *Builder) MarkDirty() {
	b.dirty.Store(true)
}

// Run publishes on a ticker until ctx is done. A final snapshot is
// published on shutdown if changes are pending.
func (b *Builder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if b.dirty.Swap(false) {
				b.publish()
			}
			return
		case <-ticker.C:
			if b.dirty.Swap(false) {
				b.publish()
			}
		}
	}
}

// BuildNow assembles and publishes a snapshot immediately, regardless of
// the dirty flag. Used at startup after recovery.
func (b *Builder) BuildNow() *Snapshot {
	b.dirty.Store(false)
	return b.publish()
}

func (b *Builder) publish() *Snapshot {
	start := time.Now()
	positions := b.store.SnapshotAll()

	views := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		mctx, ok := b.markets.Get(pos.MarketSlug)
		view := PositionView{
			Position: pos,
			Pattern:  b.patterns.Derive(pos, mctx, ok),
		}
		if ok && mctx.Resolved {
			sv := pos.SettlementValue(mctx.WinningOutcome)
			view.SettlementValue = &sv
		}
		views = append(views, view)
	}

	snap := b.pub.Publish(&Snapshot{
		TakenAt: time.Now(),
		Views:   views,
	})

	b.metrics.SnapshotVersion.Set(float64(snap.Version))
	b.metrics.SnapshotPositions.Set(float64(len(views)))
	b.metrics.SnapshotBuildDur.Observe(time.Since(start).Seconds())

	b.logger.Debug().
		Uint64("version", snap.Version).
		Int("positions", len(views)).
		Dur("build_time", time.Since(start)).
		Msg("snapshot published")

	return snap
}
