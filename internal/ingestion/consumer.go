package ingestion

import (
	"context"

	"github.com/rs/zerolog"

	"TradeScope/internal/ledger"
	"TradeScope/internal/market"
	"TradeScope/internal/observability"
)

// Consumer is the single feed-consumer goroutine: it drains raw feed
// messages, runs trades through the normalizer, and hands the survivors
// to the ledger writers. Messages are acked only after every surviving
// trade is queued on its shard; a crash before that redelivers, and the
// dedup tiers absorb the replay.
type Consumer struct {
	rawChan    <-chan RawEvent
	normalizer *Normalizer
	pool       *ledger.Pool
	markets    *market.Store
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewConsumer(
	rawChan <-chan RawEvent,
	normalizer *Normalizer,
	pool *ledger.Pool,
	markets *market.Store,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Consumer {
	return &Consumer{
		rawChan:    rawChan,
		normalizer: normalizer,
		pool:       pool,
		markets:    markets,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes feed messages until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-c.rawChan:
			if !ok {
				return nil
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw RawEvent) {
	switch raw.Kind {
	case "markets":
		c.handleMarkets(raw)
	default:
		c.handleTrades(ctx, raw)
	}
}

func (c *Consumer) handleTrades(ctx context.Context, raw RawEvent) {
	c.metrics.FeedBatches.WithLabelValues(sourceOf(raw)).Inc()

	trades, errs := ParseTradeBatch(raw.Data)
	for _, err := range errs {
		c.metrics.TradesRejected.WithLabelValues("parse").Inc()
		c.logger.Warn().Err(err).Msg("dropping unparseable trade")
	}

	fresh := c.normalizer.Normalize(ctx, trades)
	for _, t := range fresh {
		if err := c.pool.Submit(ctx, t); err != nil {
			// Shutdown mid-batch: let the whole message redeliver.
			if raw.NakFunc != nil {
				raw.NakFunc()
			}
			return
		}
		c.metrics.TradesIngested.WithLabelValues(sourceOf(raw)).Inc()
	}

	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func (c *Consumer) handleMarkets(raw RawEvent) {
	u, err := ParseMarketUpdate(raw.Data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping unparseable market update")
		// Malformed metadata is never redelivered; it will not improve.
		if raw.AckFunc != nil {
			raw.AckFunc()
		}
		return
	}

	c.markets.ApplyUpdate(*u)
	c.logger.Debug().
		Str("market", u.MarketSlug).
		Bool("resolved", u.Resolved).
		Msg("market context updated")

	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func sourceOf(raw RawEvent) string {
	if len(raw.Subject) > 4 && raw.Subject[:4] == "http" {
		return "poll"
	}
	return "nats"
}
