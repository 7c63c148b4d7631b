package market

import (
	"sync"
	"testing"

	"TradeScope/internal/event"
)

func TestStore_GetMissing(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("btc-updown-2026-08-28-1400")
	if ok {
		t.Error("expected ok=false for unknown market")
	}
}

func TestStore_PutGet(t *testing.T) {
	s := NewStore()
	s.Put(Context{
		MarketSlug: "btc-updown-2026-08-28-1400",
		StartTime:  1000,
		EndTime:    1900,
	})

	ctx, ok := s.Get("btc-updown-2026-08-28-1400")
	if !ok {
		t.Fatal("expected market to be present")
	}
	if ctx.Duration() != 900 {
		t.Errorf("Duration: got %d, want 900", ctx.Duration())
	}
	if ctx.Resolved {
		t.Error("unresolved market reported as resolved")
	}
}

func TestStore_ApplyUpdateResolution(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(event.MarketUpdate{
		MarketSlug: "eth-updown-2026-08-28-1415",
		StartTime:  2000,
		EndTime:    2900,
	})
	s.ApplyUpdate(event.MarketUpdate{
		MarketSlug:     "eth-updown-2026-08-28-1415",
		StartTime:      2000,
		EndTime:        2900,
		Resolved:       true,
		WinningOutcome: event.OutcomeUp,
	})

	ctx, ok := s.Get("eth-updown-2026-08-28-1415")
	if !ok {
		t.Fatal("expected market to be present")
	}
	if !ctx.Resolved || ctx.WinningOutcome != event.OutcomeUp {
		t.Errorf("resolution not applied: %+v", ctx)
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	s.Put(Context{MarketSlug: "m", StartTime: 1, EndTime: 901})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, ok := s.Get("m"); !ok {
					t.Error("market disappeared during concurrent reads")
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Put(Context{MarketSlug: "m", StartTime: 1, EndTime: 901})
			}
		}(i)
	}
	wg.Wait()
}
