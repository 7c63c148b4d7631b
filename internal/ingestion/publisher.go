package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"TradeScope/internal/ledger"
	"TradeScope/internal/pattern"
)

// OutboundPublisher pushes per-position deltas to NATS for downstream
// consumers as trades are applied. Subjects follow the pattern
// tradescope.positions.{wallet}.{market_slug}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PositionDelta
}

// PositionDelta is one applied trade's resulting position state plus its
// derived pattern, ready for outbound publishing.
type PositionDelta struct {
	TradeID   string           `json:"trade_id"`
	Position  *ledger.Position `json:"position"`
	Pattern   pattern.Record   `json:"pattern"`
	AppliedAt time.Time        `json:"applied_at"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PositionDelta) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case delta, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, delta); err != nil {
				log.Printf("WARN: outbound publish failed trade=%s: %v", delta.TradeID, err)
				// Non-fatal: consumers can read the snapshot API instead
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, delta PositionDelta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}

	subject := fmt.Sprintf("tradescope.positions.%s.%s",
		delta.Position.Wallet, delta.Position.MarketSlug)

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound position stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "TRADESCOPE_POSITIONS",
		Subjects:  []string{"tradescope.positions.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream TRADESCOPE_POSITIONS")
	return nil
}
