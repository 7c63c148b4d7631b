package ingestion

import (
	"testing"

	"github.com/shopspring/decimal"

	"TradeScope/internal/event"
)

func TestParseTrade(t *testing.T) {
	data := []byte(`{
		"tx_hash": "0xabc",
		"index": 2,
		"timestamp": 1700000000,
		"wallet": "0xwallet",
		"role": "taker",
		"side": "BUY",
		"outcome": "Up",
		"shares": "100.5",
		"usdc": "48.24",
		"price": "0.48",
		"market_slug": "btc-updown-1400"
	}`)

	tr, err := ParseTrade(data)
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}

	if tr.ID != "0xabc:2" {
		t.Errorf("ID: got %q, want 0xabc:2", tr.ID)
	}
	if tr.Side != event.SideBuy || tr.Outcome != event.OutcomeUp || tr.Role != event.RoleTaker {
		t.Errorf("enums: side=%v outcome=%v role=%v", tr.Side, tr.Outcome, tr.Role)
	}
	if !tr.Shares.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Shares: got %s, want 100.5", tr.Shares)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("parsed trade should validate: %v", err)
	}
}

func TestParseTrade_ExplicitIDWins(t *testing.T) {
	data := []byte(`{"id":"feed-7","tx_hash":"0xabc","index":0,"timestamp":1,"wallet":"w","role":"maker","side":"SELL","outcome":"Down","shares":"1","usdc":"0.5","price":"0.5","market_slug":"m"}`)

	tr, err := ParseTrade(data)
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if tr.ID != "feed-7" {
		t.Errorf("ID: got %q, want feed-7", tr.ID)
	}
}

func TestParseTrade_DerivesUSDC(t *testing.T) {
	data := []byte(`{"tx_hash":"0xabc","timestamp":1,"wallet":"w","role":"maker","side":"BUY","outcome":"Up","shares":"10","price":"0.4","market_slug":"m"}`)

	tr, err := ParseTrade(data)
	if err != nil {
		t.Fatalf("ParseTrade: %v", err)
	}
	if !tr.USDC.Equal(decimal.RequireFromString("4")) {
		t.Errorf("USDC: got %s, want 4", tr.USDC)
	}
	if tr.ID != "0xabc:0" {
		t.Errorf("ID without index: got %q, want 0xabc:0", tr.ID)
	}
}

func TestParseTrade_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"unknown side", `{"tx_hash":"a","timestamp":1,"wallet":"w","role":"maker","side":"HOLD","outcome":"Up","shares":"1","price":"0.5","market_slug":"m"}`},
		{"unknown outcome", `{"tx_hash":"a","timestamp":1,"wallet":"w","role":"maker","side":"BUY","outcome":"Sideways","shares":"1","price":"0.5","market_slug":"m"}`},
		{"unknown role", `{"tx_hash":"a","timestamp":1,"wallet":"w","role":"broker","side":"BUY","outcome":"Up","shares":"1","price":"0.5","market_slug":"m"}`},
		{"no identity", `{"timestamp":1,"wallet":"w","role":"maker","side":"BUY","outcome":"Up","shares":"1","price":"0.5","market_slug":"m"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTrade([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseTradeBatch(t *testing.T) {
	good := `{"tx_hash":"0xa","timestamp":1,"wallet":"w","role":"maker","side":"BUY","outcome":"Up","shares":"1","price":"0.5","market_slug":"m"}`
	bad := `{"tx_hash":"0xb","timestamp":1,"wallet":"w","role":"maker","side":"NOPE","outcome":"Up","shares":"1","price":"0.5","market_slug":"m"}`

	trades, errs := ParseTradeBatch([]byte(`{"trades":[` + good + `,` + bad + `]}`))
	if len(trades) != 1 || len(errs) != 1 {
		t.Errorf("wrapped batch: got %d trades %d errs, want 1/1", len(trades), len(errs))
	}

	trades, errs = ParseTradeBatch([]byte(`[` + good + `]`))
	if len(trades) != 1 || len(errs) != 0 {
		t.Errorf("bare array: got %d trades %d errs, want 1/0", len(trades), len(errs))
	}

	_, errs = ParseTradeBatch([]byte(`"nope"`))
	if len(errs) == 0 {
		t.Error("non-batch payload should error")
	}
}

func TestParseMarketUpdate(t *testing.T) {
	data := []byte(`{"market_slug":"btc-updown-1400","start_time":1000,"end_time":1900}`)
	u, err := ParseMarketUpdate(data)
	if err != nil {
		t.Fatalf("ParseMarketUpdate: %v", err)
	}
	if u.Resolved || u.WinningOutcome != event.OutcomeUnknown {
		t.Errorf("unresolved update: %+v", u)
	}

	data = []byte(`{"market_slug":"btc-updown-1400","start_time":1000,"end_time":1900,"resolved":true,"winning_outcome":"Down"}`)
	u, err = ParseMarketUpdate(data)
	if err != nil {
		t.Fatalf("ParseMarketUpdate resolved: %v", err)
	}
	if !u.Resolved || u.WinningOutcome != event.OutcomeDown {
		t.Errorf("resolved update: %+v", u)
	}

	if _, err := ParseMarketUpdate([]byte(`{"start_time":1}`)); err == nil {
		t.Error("missing market_slug should error")
	}
}
