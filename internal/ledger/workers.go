package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TradeScope/internal/event"
	"TradeScope/internal/observability"
)

// Pool runs one writer goroutine per store shard. Trades are routed by
// fnv32(wallet|market), so all trades of a (wallet, market) pair hit the
// same writer in submission order. Shards share no mutable state;
// cross-shard ordering is neither needed nor provided.
type Pool struct {
	store   *Store
	inputs  []chan *event.TradeEvent
	metrics *observability.Metrics
	logger  zerolog.Logger
	wg      sync.WaitGroup

	// OnApplied receives a clone of the post-apply position for every
	// trade that mutated state. Called from the shard writer; must not
	// block for long.
	OnApplied func(pos *Position, t *event.TradeEvent)

	// OnStale receives trades dropped at the watermark.
	OnStale func(t *event.TradeEvent)
}

// NewPool creates a pool sized to the store's shard count. bufSize is
// the per-shard channel capacity.
func NewPool(store *Store, bufSize int, metrics *observability.Metrics, logger zerolog.Logger) *Pool {
	inputs := make([]chan *event.TradeEvent, store.ShardCount())
	for i := range inputs {
		inputs[i] = make(chan *event.TradeEvent, bufSize)
	}
	return &Pool{
		store:   store,
		inputs:  inputs,
		metrics: metrics,
		logger:  logger,
	}
}

// Start launches the shard writers. They drain their channels until
// Close, then exit; ctx cancellation abandons buffered trades.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.inputs {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info().Int("shards", len(p.inputs)).Msg("ledger writers started")
}

// Submit routes a trade to its shard writer, blocking when the shard's
// buffer is full (backpressure toward the normalizer).
func (p *Pool) Submit(ctx context.Context, t *event.TradeEvent) error {
	idx := p.store.ShardIndex(t.ShardKey())
	select {
	case p.inputs[idx] <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting trades and waits for the writers to drain.
func (p *Pool) Close() {
	for _, ch := range p.inputs {
		close(ch)
	}
	p.wg.Wait()
	p.logger.Info().Msg("ledger writers stopped")
}

func (p *Pool) run(ctx context.Context, idx int) {
	defer p.wg.Done()
	ch := p.inputs[idx]

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			start := time.Now()
			pos, status := p.store.Apply(t)
			p.metrics.ApplyDuration.Observe(time.Since(start).Seconds())
			switch status {
			case StatusApplied:
				p.metrics.TradesApplied.Inc()
				p.metrics.PositionsTotal.Set(float64(p.store.Len()))
				if t.Side == event.SideSell && (pos.UpShares.IsNegative() || pos.DownShares.IsNegative()) {
					p.metrics.OversellsTotal.Inc()
				}
				if p.OnApplied != nil {
					p.OnApplied(pos, t)
				}
			case StatusStale:
				p.metrics.TradesStale.Inc()
				p.logger.Debug().
					Str("trade_id", t.ID).
					Str("wallet", t.Wallet).
					Str("market", t.MarketSlug).
					Msg("trade at or behind watermark, skipped")
				if p.OnStale != nil {
					p.OnStale(t)
				}
			}
		}
	}
}
