package event

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side represents the aggressor direction of a trade.
type Side int32

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide maps the feed's side string onto a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy":
		return SideBuy, nil
	case "SELL", "sell":
		return SideSell, nil
	default:
		return SideUnknown, fmt.Errorf("unknown side %q", s)
	}
}

// Role distinguishes resting liquidity from aggressing liquidity.
type Role int32

const (
	RoleUnknown Role = iota
	RoleMaker
	RoleTaker
)

func (r Role) String() string {
	switch r {
	case RoleMaker:
		return "maker"
	case RoleTaker:
		return "taker"
	default:
		return "unknown"
	}
}

// ParseRole maps the feed's role string onto a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "maker", "MAKER":
		return RoleMaker, nil
	case "taker", "TAKER":
		return RoleTaker, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", s)
	}
}

// Outcome is one leg of a binary Up/Down market.
type Outcome int32

const (
	OutcomeUnknown Outcome = iota
	OutcomeUp
	OutcomeDown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUp:
		return "Up"
	case OutcomeDown:
		return "Down"
	default:
		return "Unknown"
	}
}

// ParseOutcome maps the feed's outcome string onto an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "Up", "up", "UP":
		return OutcomeUp, nil
	case "Down", "down", "DOWN":
		return OutcomeDown, nil
	default:
		return OutcomeUnknown, fmt.Errorf("unknown outcome %q", s)
	}
}

// TradeEvent is one normalized fill from the upstream trade feed.
// Identity: ID = tx_hash + ":" + intra-transaction index, stable across
// redeliveries from the polled source. Immutable once created.
type TradeEvent struct {
	ID         string
	TxHash     string
	Timestamp  int64 // unix seconds, monotonic per chain
	Wallet     string
	Role       Role
	Side       Side
	Outcome    Outcome
	Shares     decimal.Decimal
	USDC       decimal.Decimal // = Shares * Price
	Price      decimal.Decimal // in [0, 1]
	MarketSlug string
}

// Validation errors surfaced by Validate. Malformed trades are dropped and
// counted upstream; they are fatal only to the record, never the batch.
var (
	ErrMissingID       = errors.New("trade missing id")
	ErrMissingWallet   = errors.New("trade missing wallet")
	ErrMissingMarket   = errors.New("trade missing market slug")
	ErrNegativeShares  = errors.New("trade shares negative")
	ErrNegativeUSDC    = errors.New("trade usdc negative")
	ErrPriceOutOfRange = errors.New("trade price outside [0,1]")
	ErrUnknownSide     = errors.New("trade side unknown")
	ErrUnknownOutcome  = errors.New("trade outcome unknown")
	ErrUnknownRole     = errors.New("trade role unknown")
)

var one = decimal.NewFromInt(1)

// Validate rejects structurally malformed trades.
func (t *TradeEvent) Validate() error {
	switch {
	case t.ID == "":
		return ErrMissingID
	case t.Wallet == "":
		return ErrMissingWallet
	case t.MarketSlug == "":
		return ErrMissingMarket
	case t.Shares.IsNegative():
		return ErrNegativeShares
	case t.USDC.IsNegative():
		return ErrNegativeUSDC
	case t.Price.IsNegative() || t.Price.GreaterThan(one):
		return ErrPriceOutOfRange
	case t.Side != SideBuy && t.Side != SideSell:
		return ErrUnknownSide
	case t.Outcome != OutcomeUp && t.Outcome != OutcomeDown:
		return ErrUnknownOutcome
	case t.Role != RoleMaker && t.Role != RoleTaker:
		return ErrUnknownRole
	}
	return nil
}

// ShardKey is the partition key for ledger writers. Trades sharing a key
// must be applied in normalized order; different keys share no state.
func (t *TradeEvent) ShardKey() string {
	return t.Wallet + "|" + t.MarketSlug
}

// Before reports whether t precedes other in normalized (timestamp, id) order.
func (t *TradeEvent) Before(other *TradeEvent) bool {
	if t.Timestamp != other.Timestamp {
		return t.Timestamp < other.Timestamp
	}
	return t.ID < other.ID
}
