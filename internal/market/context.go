// Package market holds timing metadata for 15-minute Up/Down markets.
// The store is read-mostly: the analytics path only reads, updates arrive
// from the market-data feed.
package market

import (
	"sync"

	"TradeScope/internal/event"
)

// Context is the timing metadata for one market window.
type Context struct {
	MarketSlug     string
	StartTime      int64 // unix seconds
	EndTime        int64 // unix seconds, typically StartTime + 900
	Resolved       bool
	WinningOutcome event.Outcome
}

// Duration returns the window length in seconds.
func (c Context) Duration() int64 {
	return c.EndTime - c.StartTime
}

// Store is a concurrent map of market slug to timing context.
// Absent entries are reported via the ok flag; callers must omit
// timing-dependent analytics rather than defaulting.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]Context
}

func NewStore() *Store {
	return &Store{
		contexts: make(map[string]Context),
	}
}

// Get returns the context for slug if known.
func (s *Store) Get(slug string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.contexts[slug]
	return ctx, ok
}

// Put inserts or replaces the context for a market.
func (s *Store) Put(ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[ctx.MarketSlug] = ctx
}

// ApplyUpdate converts a feed update into a stored context. A resolution
// update for an unknown market still creates the entry so settlement
// values can be reported for late-discovered positions.
func (s *Store) ApplyUpdate(u event.MarketUpdate) {
	s.Put(Context{
		MarketSlug:     u.MarketSlug,
		StartTime:      u.StartTime,
		EndTime:        u.EndTime,
		Resolved:       u.Resolved,
		WinningOutcome: u.WinningOutcome,
	})
}

// Len returns the number of known markets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}
