package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"TradeScope/internal/event"
	"TradeScope/internal/observability"
)

// Registered once: promauto panics on duplicate registration.
var testMetrics = observability.NewMetrics()

func TestStore_CreatesOnFirstTrade(t *testing.T) {
	s := NewStore(4)

	if _, ok := s.Get("0xwallet", "btc-updown-1400"); ok {
		t.Fatal("position exists before any trade")
	}

	pos, status := s.Apply(trade("a:0", 100, event.SideBuy, event.OutcomeUp, "10", "0.5"))
	if status != StatusApplied {
		t.Fatalf("apply: got %v, want applied", status)
	}
	if pos.Version != 1 {
		t.Errorf("Version: got %d, want 1", pos.Version)
	}
	if _, ok := s.Get("0xwallet", "btc-updown-1400"); !ok {
		t.Error("position missing after first trade")
	}
}

func TestStore_ReturnsClone(t *testing.T) {
	s := NewStore(2)
	s.Apply(trade("a:0", 100, event.SideBuy, event.OutcomeUp, "10", "0.5"))

	got, _ := s.Get("0xwallet", "btc-updown-1400")
	got.TotalTrades = 999

	again, _ := s.Get("0xwallet", "btc-updown-1400")
	if again.TotalTrades != 1 {
		t.Errorf("mutating a returned position leaked into the store: %d", again.TotalTrades)
	}
}

func TestStore_ShardIndexStable(t *testing.T) {
	s := NewStore(8)
	key := "0xwallet|btc-updown-1400"
	idx := s.ShardIndex(key)
	for i := 0; i < 100; i++ {
		if got := s.ShardIndex(key); got != idx {
			t.Fatalf("ShardIndex unstable: got %d, want %d", got, idx)
		}
	}
}

func TestStore_RestoreThenApplyRespectsWatermark(t *testing.T) {
	s := NewStore(4)

	recovered := NewPosition("0xwallet", "btc-updown-1400")
	recovered.Apply(trade("b:0", 200, event.SideBuy, event.OutcomeUp, "10", "0.5"))
	s.Restore(recovered)

	// A redelivered trade from before the recovered watermark is stale.
	_, status := s.Apply(trade("a:0", 150, event.SideBuy, event.OutcomeUp, "10", "0.5"))
	if status != StatusStale {
		t.Errorf("pre-watermark redelivery: got %v, want stale", status)
	}

	_, status = s.Apply(trade("c:0", 250, event.SideBuy, event.OutcomeUp, "10", "0.5"))
	if status != StatusApplied {
		t.Errorf("post-watermark trade: got %v, want applied", status)
	}
}

func TestStore_SnapshotAll(t *testing.T) {
	s := NewStore(4)
	for i := 0; i < 10; i++ {
		tr := trade("a:0", 100, event.SideBuy, event.OutcomeUp, "10", "0.5")
		tr.Wallet = fmt.Sprintf("0xw%02d", i)
		s.Apply(tr)
	}

	all := s.SnapshotAll()
	if len(all) != 10 {
		t.Errorf("SnapshotAll: got %d positions, want 10", len(all))
	}
	if s.Len() != 10 {
		t.Errorf("Len: got %d, want 10", s.Len())
	}
}

// Interleaving order across different (wallet, market) pairs must not
// change any pair's final state.
func TestPool_CrossShardOrderIndependence(t *testing.T) {
	run := func(walletOrder []int) map[string]string {
		s := NewStore(4)
		pool := NewPool(s, 16, testMetrics, zerolog.Nop())

		var mu sync.Mutex
		done := make(map[string]int)
		var wg sync.WaitGroup
		wg.Add(30)
		pool.OnApplied = func(pos *Position, tr *event.TradeEvent) {
			mu.Lock()
			done[pos.Wallet]++
			mu.Unlock()
			wg.Done()
		}

		ctx := context.Background()
		pool.Start(ctx)

		// Each wallet gets the same 10 in-order trades; only the
		// interleaving across wallets differs between runs.
		for i := 0; i < 10; i++ {
			for _, w := range walletOrder {
				tr := trade(fmt.Sprintf("t%02d:0", i), int64(100+i), event.SideBuy, event.OutcomeUp, "5", "0.5")
				tr.Wallet = fmt.Sprintf("0xw%d", w)
				if err := pool.Submit(ctx, tr); err != nil {
					t.Fatalf("Submit: %v", err)
				}
			}
		}
		wg.Wait()
		pool.Close()

		out := make(map[string]string)
		for _, pos := range s.SnapshotAll() {
			out[pos.Wallet] = fmt.Sprintf("%s|%s|%d", pos.UpShares, pos.UpCost, pos.TotalTrades)
		}
		return out
	}

	a := run([]int{0, 1, 2})
	b := run([]int{2, 0, 1})

	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 positions, got %d and %d", len(a), len(b))
	}
	for w, state := range a {
		if b[w] != state {
			t.Errorf("wallet %s diverged across interleavings: %s vs %s", w, state, b[w])
		}
	}
}

func TestPool_StaleCallback(t *testing.T) {
	s := NewStore(2)
	pool := NewPool(s, 4, testMetrics, zerolog.Nop())

	applied := make(chan string, 4)
	stale := make(chan string, 4)
	pool.OnApplied = func(pos *Position, tr *event.TradeEvent) { applied <- tr.ID }
	pool.OnStale = func(tr *event.TradeEvent) { stale <- tr.ID }

	ctx := context.Background()
	pool.Start(ctx)

	tr := trade("a:0", 100, event.SideBuy, event.OutcomeUp, "10", "0.5")
	if err := pool.Submit(ctx, tr); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := pool.Submit(ctx, tr); err != nil {
		t.Fatalf("Submit duplicate: %v", err)
	}
	pool.Close()

	if got := <-applied; got != "a:0" {
		t.Errorf("applied: got %q, want a:0", got)
	}
	if got := <-stale; got != "a:0" {
		t.Errorf("stale: got %q, want a:0", got)
	}
}
