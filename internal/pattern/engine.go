// Package pattern derives behavioral classifications from positions.
// Derivation is pure: the same position and market context always yield
// the same record, so patterns are recomputed on read from a snapshot
// rather than stored.
package pattern

import (
	"github.com/shopspring/decimal"

	"TradeScope/internal/ledger"
	"TradeScope/internal/market"
)

// Strategy labels the wallet's apparent approach in one market.
type Strategy string

const (
	StrategyArbitrage    Strategy = "ARBITRAGE"
	StrategyMarketMaking Strategy = "MARKET_MAKING"
	StrategyDirectional  Strategy = "DIRECTIONAL"
	StrategyMixed        Strategy = "MIXED"
)

// Thresholds are the tunable boundaries of the classifier.
type Thresholds struct {
	EarlyWindowSeconds  int64
	LateWindowSeconds   int64
	HedgeArbitrageMin   decimal.Decimal
	MMMakerMin          decimal.Decimal
	MMHedgeMin          decimal.Decimal
	DirectionalHedgeMax decimal.Decimal
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EarlyWindowSeconds:  120,
		LateWindowSeconds:   120,
		HedgeArbitrageMin:   decimal.RequireFromString("0.9"),
		MMMakerMin:          decimal.RequireFromString("0.7"),
		MMHedgeMin:          decimal.RequireFromString("0.5"),
		DirectionalHedgeMax: decimal.RequireFromString("0.3"),
	}
}

// TimingPattern describes when the wallet traded relative to the market
// window. Only derivable when the market's timing context is known.
type TimingPattern struct {
	EarlyTrader     bool    `json:"early_trader"`
	LateCloser      bool    `json:"late_closer"`
	TradesPerMinute float64 `json:"trades_per_minute"`
}

// PricePattern describes what the wallet paid.
type PricePattern struct {
	// CombinedBuyPrice is avg_up + avg_down; meaningful only when
	// HasBothSides. Sum below 1 on both legs locks in a spread.
	CombinedBuyPrice  decimal.Decimal `json:"combined_buy_price"`
	HasBothSides      bool            `json:"has_both_sides"`
	BoughtBelowDollar bool            `json:"bought_below_dollar"`
	MakerPercentage   float64         `json:"maker_percentage"`
}

// HedgePattern describes how balanced the two sides are.
type HedgePattern struct {
	HedgeRatio   decimal.Decimal `json:"hedge_ratio"`
	CompleteSets decimal.Decimal `json:"complete_sets"`
	Strategy     Strategy        `json:"strategy"`
	// Degraded is set for partial-history positions, where the strategy
	// label cannot be trusted and is forced to MIXED.
	Degraded bool `json:"degraded"`
}

// Record is the full classification for one position.
type Record struct {
	Wallet     string `json:"wallet"`
	MarketSlug string `json:"market_slug"`

	// Timing is nil when the market's timing context is unknown:
	// omitted rather than defaulted.
	Timing *TimingPattern `json:"timing,omitempty"`
	Price  PricePattern   `json:"price"`
	Hedge  HedgePattern   `json:"hedge"`
}

// Engine classifies positions against a fixed set of thresholds.
type Engine struct {
	thresholds Thresholds
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// Derive computes the pattern record for a position. ctxOK reports
// whether mctx is valid; when false the timing section is omitted.
func (e *Engine) Derive(pos *ledger.Position, mctx market.Context, ctxOK bool) Record {
	rec := Record{
		Wallet:     pos.Wallet,
		MarketSlug: pos.MarketSlug,
	}

	if ctxOK {
		rec.Timing = e.deriveTiming(pos, mctx)
	}
	rec.Price = e.derivePrice(pos)
	rec.Hedge = e.deriveHedge(pos, rec.Price)

	return rec
}

func (e *Engine) deriveTiming(pos *ledger.Position, mctx market.Context) *TimingPattern {
	tp := &TimingPattern{
		EarlyTrader: pos.FirstTradeTS >= mctx.StartTime &&
			pos.FirstTradeTS-mctx.StartTime <= e.thresholds.EarlyWindowSeconds,
		LateCloser: pos.LastTradeTS <= mctx.EndTime &&
			mctx.EndTime-pos.LastTradeTS <= e.thresholds.LateWindowSeconds,
	}

	spanMinutes := float64(pos.LastTradeTS-pos.FirstTradeTS) / 60.0
	if spanMinutes < 1 {
		spanMinutes = 1
	}
	tp.TradesPerMinute = float64(pos.TotalTrades) / spanMinutes

	return tp
}

func (e *Engine) derivePrice(pos *ledger.Position) PricePattern {
	pp := PricePattern{
		MakerPercentage: pos.MakerPercentage(),
	}

	avgUp, upOK := pos.AvgUpPrice()
	avgDown, downOK := pos.AvgDownPrice()
	if upOK && downOK {
		pp.HasBothSides = true
		pp.CombinedBuyPrice = avgUp.Add(avgDown)
		pp.BoughtBelowDollar = pp.CombinedBuyPrice.LessThan(decimal.NewFromInt(1))
	}

	return pp
}

func (e *Engine) deriveHedge(pos *ledger.Position, price PricePattern) HedgePattern {
	hp := HedgePattern{
		HedgeRatio:   pos.HedgeRatio(),
		CompleteSets: pos.CompleteSets(),
	}

	if pos.PartialHistory {
		hp.Strategy = StrategyMixed
		hp.Degraded = true
		return hp
	}

	// Decision table, first match wins.
	switch {
	case hp.HedgeRatio.GreaterThanOrEqual(e.thresholds.HedgeArbitrageMin) &&
		price.HasBothSides && price.BoughtBelowDollar:
		hp.Strategy = StrategyArbitrage
	case price.MakerPercentage >= makerMinFloat(e.thresholds.MMMakerMin) &&
		hp.HedgeRatio.GreaterThanOrEqual(e.thresholds.MMHedgeMin):
		hp.Strategy = StrategyMarketMaking
	case hp.HedgeRatio.LessThan(e.thresholds.DirectionalHedgeMax):
		hp.Strategy = StrategyDirectional
	default:
		hp.Strategy = StrategyMixed
	}

	return hp
}

func makerMinFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
