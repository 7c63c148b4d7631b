package pattern

import (
	"testing"

	"github.com/shopspring/decimal"

	"TradeScope/internal/event"
	"TradeScope/internal/ledger"
	"TradeScope/internal/market"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func apply(t *testing.T, pos *ledger.Position, id string, ts int64, side event.Side, outcome event.Outcome, role event.Role, shares, price string) {
	t.Helper()
	sh := d(shares)
	pr := d(price)
	status := pos.Apply(&event.TradeEvent{
		ID:         id,
		Timestamp:  ts,
		Wallet:     pos.Wallet,
		Role:       role,
		Side:       side,
		Outcome:    outcome,
		Shares:     sh,
		USDC:       sh.Mul(pr),
		Price:      pr,
		MarketSlug: pos.MarketSlug,
	})
	if status != ledger.StatusApplied {
		t.Fatalf("apply %s: got %v, want applied", id, status)
	}
}

func TestDerive_Arbitrage(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "100", "0.48")
	apply(t, pos, "a:1", 100, event.SideBuy, event.OutcomeDown, event.RoleTaker, "100", "0.49")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)

	if rec.Hedge.Strategy != StrategyArbitrage {
		t.Errorf("Strategy: got %s, want ARBITRAGE", rec.Hedge.Strategy)
	}
	if !rec.Price.HasBothSides || !rec.Price.BoughtBelowDollar {
		t.Errorf("Price: %+v, want both sides below a dollar", rec.Price)
	}
	if !rec.Price.CombinedBuyPrice.Equal(d("0.97")) {
		t.Errorf("CombinedBuyPrice: got %s, want 0.97", rec.Price.CombinedBuyPrice)
	}
	if !rec.Hedge.CompleteSets.Equal(d("100")) {
		t.Errorf("CompleteSets: got %s, want 100", rec.Hedge.CompleteSets)
	}
}

func TestDerive_HedgedAboveDollarIsNotArbitrage(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "100", "0.55")
	apply(t, pos, "a:1", 100, event.SideBuy, event.OutcomeDown, event.RoleTaker, "100", "0.55")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)

	if rec.Hedge.Strategy == StrategyArbitrage {
		t.Error("combined price above 1 must not classify as ARBITRAGE")
	}
	if rec.Price.BoughtBelowDollar {
		t.Error("BoughtBelowDollar set with combined 1.10")
	}
}

func TestDerive_MarketMaking(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	// Mostly maker fills, moderately hedged, combined above a dollar.
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleMaker, "100", "0.52")
	apply(t, pos, "b:0", 110, event.SideBuy, event.OutcomeDown, event.RoleMaker, "60", "0.53")
	apply(t, pos, "c:0", 120, event.SideBuy, event.OutcomeUp, event.RoleMaker, "20", "0.52")
	apply(t, pos, "d:0", 130, event.SideBuy, event.OutcomeDown, event.RoleTaker, "10", "0.53")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)

	if rec.Price.MakerPercentage != 0.75 {
		t.Errorf("MakerPercentage: got %v, want 0.75", rec.Price.MakerPercentage)
	}
	if rec.Hedge.Strategy != StrategyMarketMaking {
		t.Errorf("Strategy: got %s, want MARKET_MAKING", rec.Hedge.Strategy)
	}
}

func TestDerive_Directional(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "200", "0.6")
	apply(t, pos, "b:0", 110, event.SideBuy, event.OutcomeDown, event.RoleTaker, "10", "0.4")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)

	if rec.Hedge.Strategy != StrategyDirectional {
		t.Errorf("Strategy: got %s, want DIRECTIONAL", rec.Hedge.Strategy)
	}
}

func TestDerive_Mixed(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	// Hedge ratio 0.5: not arbitrage (ratio), not MM (taker), not
	// directional (ratio above max).
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "100", "0.5")
	apply(t, pos, "b:0", 110, event.SideBuy, event.OutcomeDown, event.RoleTaker, "50", "0.5")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)

	if rec.Hedge.Strategy != StrategyMixed {
		t.Errorf("Strategy: got %s, want MIXED", rec.Hedge.Strategy)
	}
}

func TestDerive_PartialHistoryDegrades(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	// Oversell: sell with no tracked buys.
	apply(t, pos, "a:0", 100, event.SideSell, event.OutcomeUp, event.RoleTaker, "50", "0.6")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)

	if rec.Hedge.Strategy != StrategyMixed || !rec.Hedge.Degraded {
		t.Errorf("partial history: got strategy=%s degraded=%v, want MIXED/true",
			rec.Hedge.Strategy, rec.Hedge.Degraded)
	}
}

func TestDerive_TimingOmittedWithoutContext(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")

	rec := NewEngine(DefaultThresholds()).Derive(pos, market.Context{}, false)
	if rec.Timing != nil {
		t.Errorf("Timing should be nil without market context, got %+v", rec.Timing)
	}
}

func TestDerive_Timing(t *testing.T) {
	mctx := market.Context{
		MarketSlug: "m",
		StartTime:  1000,
		EndTime:    1900,
	}
	engine := NewEngine(DefaultThresholds())

	tests := []struct {
		name            string
		firstTS, lastTS int64
		wantEarly       bool
		wantLate        bool
	}{
		{"early and late", 1030, 1850, true, true},
		{"early only", 1030, 1500, true, false},
		{"late only", 1300, 1799, false, true},
		{"neither", 1300, 1500, false, false},
		{"boundary: first exactly at start+window", 1120, 1500, true, false},
		{"boundary: first just past the window", 1121, 1500, false, false},
		{"boundary: last at end", 1030, 1900, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := ledger.NewPosition("0xw", "m")
			apply(t, pos, "a:0", tt.firstTS, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")
			if tt.lastTS != tt.firstTS {
				apply(t, pos, "b:0", tt.lastTS, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")
			}

			rec := engine.Derive(pos, mctx, true)
			if rec.Timing == nil {
				t.Fatal("Timing missing with context present")
			}
			if rec.Timing.EarlyTrader != tt.wantEarly {
				t.Errorf("EarlyTrader: got %v, want %v", rec.Timing.EarlyTrader, tt.wantEarly)
			}
			if rec.Timing.LateCloser != tt.wantLate {
				t.Errorf("LateCloser: got %v, want %v", rec.Timing.LateCloser, tt.wantLate)
			}
		})
	}
}

func TestDerive_TradesPerMinute(t *testing.T) {
	mctx := market.Context{MarketSlug: "m", StartTime: 0, EndTime: 900}
	engine := NewEngine(DefaultThresholds())

	pos := ledger.NewPosition("0xw", "m")
	// 4 trades over 6 minutes.
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")
	apply(t, pos, "b:0", 200, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")
	apply(t, pos, "c:0", 300, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")
	apply(t, pos, "d:0", 460, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")

	rec := engine.Derive(pos, mctx, true)
	want := 4.0 / 6.0
	if rec.Timing.TradesPerMinute != want {
		t.Errorf("TradesPerMinute: got %v, want %v", rec.Timing.TradesPerMinute, want)
	}

	// Span under a minute clamps to 1 to avoid inflated rates.
	single := ledger.NewPosition("0xw", "m")
	apply(t, single, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleTaker, "10", "0.5")
	rec = engine.Derive(single, mctx, true)
	if rec.Timing.TradesPerMinute != 1.0 {
		t.Errorf("TradesPerMinute single trade: got %v, want 1", rec.Timing.TradesPerMinute)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	pos := ledger.NewPosition("0xw", "m")
	apply(t, pos, "a:0", 100, event.SideBuy, event.OutcomeUp, event.RoleMaker, "100", "0.48")
	apply(t, pos, "a:1", 100, event.SideBuy, event.OutcomeDown, event.RoleTaker, "90", "0.49")

	engine := NewEngine(DefaultThresholds())
	mctx := market.Context{MarketSlug: "m", StartTime: 0, EndTime: 900}

	first := engine.Derive(pos, mctx, true)
	for i := 0; i < 10; i++ {
		again := engine.Derive(pos, mctx, true)
		if again.Hedge.Strategy != first.Hedge.Strategy ||
			!again.Hedge.HedgeRatio.Equal(first.Hedge.HedgeRatio) ||
			*again.Timing != *first.Timing {
			t.Fatalf("Derive not deterministic: %+v vs %+v", again, first)
		}
	}
}
