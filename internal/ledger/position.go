// Package ledger maintains per-(wallet, market) positions under an
// average-cost model. Positions are created on first trade and never
// deleted; resolved markets stay queryable.
package ledger

import (
	"github.com/shopspring/decimal"

	"TradeScope/internal/event"
)

// Key identifies one position.
type Key struct {
	Wallet     string
	MarketSlug string
}

// Position is the accumulated state for one wallet in one market.
// All mutation goes through Apply on the owning shard writer; readers
// only ever see clones.
type Position struct {
	Wallet     string
	MarketSlug string

	UpShares   decimal.Decimal
	DownShares decimal.Decimal
	UpCost     decimal.Decimal
	DownCost   decimal.Decimal

	RealizedPnL decimal.Decimal

	TotalTrades int64
	MakerTrades int64
	TakerTrades int64

	FirstTradeTS int64
	LastTradeTS  int64

	// Watermark: the (LastTradeTS, LastAppliedID) pair of the newest
	// applied trade. Redelivered trades at or behind it are no-ops.
	LastAppliedID string

	// PartialHistory marks positions where a sell exceeded tracked buys,
	// meaning trades before the observation window were missed.
	PartialHistory bool

	Version uint64
}

// ApplyStatus reports what Apply did with a trade.
type ApplyStatus int

const (
	StatusApplied ApplyStatus = iota
	StatusStale
)

func (s ApplyStatus) String() string {
	if s == StatusStale {
		return "stale"
	}
	return "applied"
}

// NewPosition returns an empty position for a key.
func NewPosition(wallet, marketSlug string) *Position {
	return &Position{
		Wallet:      wallet,
		MarketSlug:  marketSlug,
		UpShares:    decimal.Zero,
		DownShares:  decimal.Zero,
		UpCost:      decimal.Zero,
		DownCost:    decimal.Zero,
		RealizedPnL: decimal.Zero,
	}
}

// stale reports whether t is at or behind the position's watermark.
func (p *Position) stale(t *event.TradeEvent) bool {
	if p.TotalTrades == 0 {
		return false
	}
	if t.Timestamp != p.LastTradeTS {
		return t.Timestamp < p.LastTradeTS
	}
	return t.ID <= p.LastAppliedID
}

// Apply folds one trade into the position. Trades must arrive in
// normalized (timestamp, id) order per shard; anything at or behind the
// watermark returns StatusStale without mutation.
func (p *Position) Apply(t *event.TradeEvent) ApplyStatus {
	if p.stale(t) {
		return StatusStale
	}

	shares, cost := &p.UpShares, &p.UpCost
	if t.Outcome == event.OutcomeDown {
		shares, cost = &p.DownShares, &p.DownCost
	}

	switch t.Side {
	case event.SideBuy:
		*shares = shares.Add(t.Shares)
		*cost = cost.Add(t.USDC)
	case event.SideSell:
		avg := decimal.Zero
		if shares.IsPositive() && cost.IsPositive() {
			avg = cost.Div(*shares)
		} else {
			// Selling with no tracked basis: buys happened before we
			// started watching. Keep going with a zero basis.
			p.PartialHistory = true
		}
		realized := t.Shares.Mul(t.Price.Sub(avg))
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		*shares = shares.Sub(t.Shares)
		*cost = cost.Sub(t.Shares.Mul(avg))
		if shares.IsNegative() {
			p.PartialHistory = true
		}
	}

	p.TotalTrades++
	if t.Role == event.RoleMaker {
		p.MakerTrades++
	} else {
		p.TakerTrades++
	}

	if p.FirstTradeTS == 0 || t.Timestamp < p.FirstTradeTS {
		p.FirstTradeTS = t.Timestamp
	}
	p.LastTradeTS = t.Timestamp
	p.LastAppliedID = t.ID
	p.Version++

	return StatusApplied
}

// AvgUpPrice returns the average cost per Up share, ok=false when there
// are no Up shares to average over.
func (p *Position) AvgUpPrice() (decimal.Decimal, bool) {
	if !p.UpShares.IsPositive() {
		return decimal.Zero, false
	}
	return p.UpCost.Div(p.UpShares), true
}

// AvgDownPrice returns the average cost per Down share, ok=false when
// there are no Down shares to average over.
func (p *Position) AvgDownPrice() (decimal.Decimal, bool) {
	if !p.DownShares.IsPositive() {
		return decimal.Zero, false
	}
	return p.DownCost.Div(p.DownShares), true
}

// CompleteSets is the number of matched Up/Down pairs, never negative.
func (p *Position) CompleteSets() decimal.Decimal {
	m := decimal.Min(p.UpShares, p.DownShares)
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}

// HedgeRatio is min/max of the two sides' share counts, in [0, 1].
// Negative balances (oversell) count as zero. A position with exactly
// zero on both sides is fully hedged by policy: everything bought was
// matched and closed.
func (p *Position) HedgeRatio() decimal.Decimal {
	up, down := p.UpShares, p.DownShares
	if up.IsNegative() {
		up = decimal.Zero
	}
	if down.IsNegative() {
		down = decimal.Zero
	}
	if up.IsZero() && down.IsZero() {
		return decimal.NewFromInt(1)
	}
	max := decimal.Max(up, down)
	return decimal.Min(up, down).Div(max)
}

// MakerPercentage is the maker share of all trades, 0 for an empty position.
func (p *Position) MakerPercentage() float64 {
	if p.TotalTrades == 0 {
		return 0
	}
	return float64(p.MakerTrades) / float64(p.TotalTrades)
}

// SettlementValue is the payout if the market resolved to winner now:
// winning-side shares redeem at $1. Negative balances pay nothing.
func (p *Position) SettlementValue(winner event.Outcome) decimal.Decimal {
	var shares decimal.Decimal
	switch winner {
	case event.OutcomeUp:
		shares = p.UpShares
	case event.OutcomeDown:
		shares = p.DownShares
	default:
		return decimal.Zero
	}
	if shares.IsNegative() {
		return decimal.Zero
	}
	return shares
}

// Clone returns an independent copy safe to hand to readers.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}
