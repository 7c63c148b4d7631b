// Package snapshot publishes immutable, versioned views of all positions
// for concurrent readers. One aggregating writer builds snapshots; any
// number of readers fetch the current one lock-free.
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"TradeScope/internal/ledger"
	"TradeScope/internal/pattern"
)

// PositionView is one position as readers see it: accounting state plus
// derived analytics. Fields are values or clones; nothing aliases the
// live ledger.
type PositionView struct {
	Position *ledger.Position `json:"position"`
	Pattern  pattern.Record   `json:"pattern"`

	// SettlementValue is the $1-per-winning-share payout, present only
	// for resolved markets.
	SettlementValue *decimal.Decimal `json:"settlement_value,omitempty"`
}

// Snapshot is an immutable view of every tracked position. Readers must
// never mutate it; the publisher never does after Publish.
type Snapshot struct {
	ID      uuid.UUID      `json:"id"`
	Version uint64         `json:"version"`
	TakenAt time.Time      `json:"taken_at"`
	Views   []PositionView `json:"positions"`
}

// Get returns the view for (wallet, market) if present.
func (s *Snapshot) Get(wallet, marketSlug string) (PositionView, bool) {
	for _, v := range s.Views {
		if v.Position.Wallet == wallet && v.Position.MarketSlug == marketSlug {
			return v, true
		}
	}
	return PositionView{}, false
}

// ByWallet returns all views for one wallet.
func (s *Snapshot) ByWallet(wallet string) []PositionView {
	var out []PositionView
	for _, v := range s.Views {
		if v.Position.Wallet == wallet {
			out = append(out, v)
		}
	}
	return out
}

// Publisher hands the latest snapshot to readers via an atomic pointer
// swap. Versions increase monotonically; a reader holding an old
// snapshot keeps a consistent view until it re-fetches.
type Publisher struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64

	mu   sync.Mutex
	subs map[int]chan *Snapshot
	next int
}

func NewPublisher() *Publisher {
	p := &Publisher{subs: make(map[int]chan *Snapshot)}
	p.current.Store(&Snapshot{ID: uuid.New(), TakenAt: time.Now()})
	return p
}

// Current returns the latest snapshot. Never nil.
func (p *Publisher) Current() *Snapshot {
	return p.current.Load()
}

// Publish stamps the snapshot with the next version and makes it
// current. Only the aggregating writer calls this.
func (p *Publisher) Publish(snap *Snapshot) *Snapshot {
	snap.ID = uuid.New()
	snap.Version = p.version.Add(1)
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	p.current.Store(snap)
	p.notify(snap)
	return snap
}

// Subscribe registers for new-snapshot notifications. The channel holds
// at most one pending snapshot; a slow subscriber sees the newest, not
// every intermediate version. cancel must be called when done.
func (p *Publisher) Subscribe() (<-chan *Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	ch := make(chan *Snapshot, 1)
	p.subs[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (p *Publisher) notify(snap *Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale pending snapshot, keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
