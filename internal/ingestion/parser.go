package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"TradeScope/internal/event"
)

// --- JSON wire formats ---
// These structs represent the JSON payloads received from the feed.
// Field names use snake_case to match upstream producers. Quantities
// arrive as strings or numbers; decimal handles both.

type tradeJSON struct {
	ID         string          `json:"id"`
	TxHash     string          `json:"tx_hash"`
	Index      *int            `json:"index"`
	Timestamp  int64           `json:"timestamp"`
	Wallet     string          `json:"wallet"`
	Role       string          `json:"role"`
	Side       string          `json:"side"`
	Outcome    string          `json:"outcome"`
	Shares     decimal.Decimal `json:"shares"`
	USDC       decimal.Decimal `json:"usdc"`
	Price      decimal.Decimal `json:"price"`
	MarketSlug string          `json:"market_slug"`
}

type tradeBatchJSON struct {
	Trades []json.RawMessage `json:"trades"`
}

// ParseTrade converts one raw trade payload into a TradeEvent. Side,
// outcome, and role parse failures surface as errors; the caller decides
// whether to drop the record.
func ParseTrade(data []byte) (*event.TradeEvent, error) {
	var j tradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse trade: %w", err)
	}

	side, err := event.ParseSide(j.Side)
	if err != nil {
		return nil, fmt.Errorf("parse trade side: %w", err)
	}
	outcome, err := event.ParseOutcome(j.Outcome)
	if err != nil {
		return nil, fmt.Errorf("parse trade outcome: %w", err)
	}
	role, err := event.ParseRole(j.Role)
	if err != nil {
		return nil, fmt.Errorf("parse trade role: %w", err)
	}

	t := &event.TradeEvent{
		ID:         j.ID,
		TxHash:     j.TxHash,
		Timestamp:  j.Timestamp,
		Wallet:     j.Wallet,
		Role:       role,
		Side:       side,
		Outcome:    outcome,
		Shares:     j.Shares,
		USDC:       j.USDC,
		Price:      j.Price,
		MarketSlug: j.MarketSlug,
	}

	// Stable identity: tx_hash plus intra-transaction index. The feed's
	// own id wins when present so redeliveries match exactly.
	if t.ID == "" {
		if t.TxHash == "" {
			return nil, fmt.Errorf("parse trade: no id and no tx_hash")
		}
		idx := 0
		if j.Index != nil {
			idx = *j.Index
		}
		t.ID = t.TxHash + ":" + strconv.Itoa(idx)
	}

	// Some producers omit usdc; it is derivable.
	if t.USDC.IsZero() && !t.Shares.IsZero() && !t.Price.IsZero() {
		t.USDC = t.Shares.Mul(t.Price)
	}

	return t, nil
}

// ParseTradeBatch unpacks a batch payload. Each record parses
// independently; one bad record never poisons the batch.
func ParseTradeBatch(data []byte) ([]*event.TradeEvent, []error) {
	var batch tradeBatchJSON
	if err := json.Unmarshal(data, &batch); err != nil {
		// Fall back to a bare JSON array of trades.
		var raws []json.RawMessage
		if err2 := json.Unmarshal(data, &raws); err2 != nil {
			return nil, []error{fmt.Errorf("parse trade batch: %w", err)}
		}
		batch.Trades = raws
	}

	trades := make([]*event.TradeEvent, 0, len(batch.Trades))
	var errs []error
	for _, raw := range batch.Trades {
		t, err := ParseTrade(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trades = append(trades, t)
	}
	return trades, errs
}

type marketUpdateJSON struct {
	MarketSlug     string `json:"market_slug"`
	StartTime      int64  `json:"start_time"`
	EndTime        int64  `json:"end_time"`
	Resolved       bool   `json:"resolved"`
	WinningOutcome string `json:"winning_outcome"`
}

// ParseMarketUpdate converts a market metadata payload.
func ParseMarketUpdate(data []byte) (*event.MarketUpdate, error) {
	var j marketUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse market update: %w", err)
	}
	if j.MarketSlug == "" {
		return nil, fmt.Errorf("parse market update: missing market_slug")
	}

	u := &event.MarketUpdate{
		MarketSlug: j.MarketSlug,
		StartTime:  j.StartTime,
		EndTime:    j.EndTime,
		Resolved:   j.Resolved,
	}
	if j.WinningOutcome != "" {
		outcome, err := event.ParseOutcome(j.WinningOutcome)
		if err != nil {
			return nil, fmt.Errorf("parse market update: %w", err)
		}
		u.WinningOutcome = outcome
	}
	return u, nil
}
