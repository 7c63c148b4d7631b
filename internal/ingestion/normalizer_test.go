package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TradeScope/internal/event"
	"TradeScope/internal/observability"
)

// Prometheus collectors register globally; one set per test binary.
var testMetrics = observability.NewMetrics()

func rawTrade(id string, ts int64, wallet string) *event.TradeEvent {
	return &event.TradeEvent{
		ID:         id,
		TxHash:     "0x" + id,
		Timestamp:  ts,
		Wallet:     wallet,
		Role:       event.RoleTaker,
		Side:       event.SideBuy,
		Outcome:    event.OutcomeUp,
		Shares:     decimal.NewFromInt(10),
		USDC:       decimal.NewFromInt(5),
		Price:      decimal.RequireFromString("0.5"),
		MarketSlug: "m",
	}
}

func newNormalizer(dbCheck DuplicateChecker, wallets ...string) *Normalizer {
	return NewNormalizer(300*time.Second, wallets, dbCheck, testMetrics, zerolog.Nop())
}

func TestNormalize_SortsByTimestampThenID(t *testing.T) {
	n := newNormalizer(nil)

	out := n.Normalize(context.Background(), []*event.TradeEvent{
		rawTrade("b", 200, "w"),
		rawTrade("a", 100, "w"),
		rawTrade("c", 200, "w"),
		rawTrade("a2", 200, "w"),
	})

	want := []string{"a", "a2", "b", "c"}
	if len(out) != len(want) {
		t.Fatalf("got %d trades, want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, out[i].ID, id)
		}
	}
}

func TestNormalize_DropsMalformed(t *testing.T) {
	n := newNormalizer(nil)

	bad := rawTrade("bad", 100, "w")
	bad.Price = decimal.RequireFromString("1.5")
	noWallet := rawTrade("nw", 100, "")

	out := n.Normalize(context.Background(), []*event.TradeEvent{
		bad,
		noWallet,
		rawTrade("ok", 100, "w"),
	})

	if len(out) != 1 || out[0].ID != "ok" {
		t.Errorf("got %v, want only the valid trade", ids(out))
	}
}

func TestNormalize_DedupAcrossBatches(t *testing.T) {
	n := newNormalizer(nil)
	ctx := context.Background()

	first := n.Normalize(ctx, []*event.TradeEvent{
		rawTrade("a", 100, "w"),
		rawTrade("b", 110, "w"),
	})
	if len(first) != 2 {
		t.Fatalf("first batch: got %d, want 2", len(first))
	}

	// Redelivered poll: overlap plus one genuinely new trade.
	second := n.Normalize(ctx, []*event.TradeEvent{
		rawTrade("a", 100, "w"),
		rawTrade("b", 110, "w"),
		rawTrade("c", 120, "w"),
	})
	if len(second) != 1 || second[0].ID != "c" {
		t.Errorf("second batch: got %v, want only c", ids(second))
	}
}

func TestNormalize_DedupWithinBatch(t *testing.T) {
	n := newNormalizer(nil)

	out := n.Normalize(context.Background(), []*event.TradeEvent{
		rawTrade("a", 100, "w"),
		rawTrade("a", 100, "w"),
	})
	if len(out) != 1 {
		t.Errorf("got %d trades, want 1", len(out))
	}
}

func TestNormalize_WindowEviction(t *testing.T) {
	n := newNormalizer(nil)
	ctx := context.Background()

	n.Normalize(ctx, []*event.TradeEvent{rawTrade("old", 100, "w")})

	// Advance event time past the 300s window; "old" should be evicted
	// and a redelivery of it accepted again (the ledger watermark is the
	// backstop at that point).
	n.Normalize(ctx, []*event.TradeEvent{rawTrade("new", 500, "w")})

	out := n.Normalize(ctx, []*event.TradeEvent{rawTrade("old", 100, "w")})
	if len(out) != 1 {
		t.Errorf("evicted id not re-accepted: got %d trades", len(out))
	}
}

func TestNormalize_WalletFilter(t *testing.T) {
	n := newNormalizer(nil, "0xtracked")

	out := n.Normalize(context.Background(), []*event.TradeEvent{
		rawTrade("a", 100, "0xtracked"),
		rawTrade("b", 100, "0xother"),
	})
	if len(out) != 1 || out[0].Wallet != "0xtracked" {
		t.Errorf("got %v, want only tracked wallet's trade", ids(out))
	}
}

type fakeDBCheck struct {
	dups map[string]bool
	err  error
}

func (f *fakeDBCheck) IsDuplicate(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.dups[id], nil
}

func TestNormalize_PostgresTier(t *testing.T) {
	db := &fakeDBCheck{dups: map[string]bool{"a": true}}
	n := newNormalizer(db)

	out := n.Normalize(context.Background(), []*event.TradeEvent{
		rawTrade("a", 100, "w"),
		rawTrade("b", 100, "w"),
	})
	if len(out) != 1 || out[0].ID != "b" {
		t.Errorf("got %v, want only b", ids(out))
	}

	// A db-confirmed duplicate joins the window: no second lookup.
	db.dups = nil
	out = n.Normalize(context.Background(), []*event.TradeEvent{rawTrade("a", 100, "w")})
	if len(out) != 0 {
		t.Errorf("db duplicate re-admitted: %v", ids(out))
	}
}

func TestNormalize_DBErrorPassesThrough(t *testing.T) {
	n := newNormalizer(&fakeDBCheck{err: errors.New("connection refused")})

	out := n.Normalize(context.Background(), []*event.TradeEvent{rawTrade("a", 100, "w")})
	if len(out) != 1 {
		t.Errorf("db error must not drop trades: got %d", len(out))
	}
}

func TestWarmWindow(t *testing.T) {
	n := newNormalizer(nil)
	n.WarmWindow(map[string]int64{"a": 100, "b": 110})

	out := n.Normalize(context.Background(), []*event.TradeEvent{
		rawTrade("a", 100, "w"),
		rawTrade("c", 120, "w"),
	})
	if len(out) != 1 || out[0].ID != "c" {
		t.Errorf("got %v, want only c after warm start", ids(out))
	}
}

func ids(trades []*event.TradeEvent) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.ID
	}
	return out
}
