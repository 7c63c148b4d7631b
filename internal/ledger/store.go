package ledger

import (
	"hash/fnv"
	"sync"

	"TradeScope/internal/event"
)

// Store holds all positions partitioned into shards. Each shard has a
// single writer goroutine (see Pool); the per-shard lock exists only so
// snapshot readers can iterate safely against that writer.
type Store struct {
	shards []*shard
}

type shard struct {
	mu        sync.RWMutex
	positions map[Key]*Position
}

// NewStore creates a store with n shards (minimum 1).
func NewStore(n int) *Store {
	if n < 1 {
		n = 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{positions: make(map[Key]*Position)}
	}
	return &Store{shards: shards}
}

// ShardCount returns the number of shards.
func (s *Store) ShardCount() int {
	return len(s.shards)
}

// ShardIndex maps a partition key to its owning shard.
func (s *Store) ShardIndex(shardKey string) int {
	h := fnv.New32a()
	h.Write([]byte(shardKey))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// Apply routes a trade to its shard and folds it into the position,
// creating the position on first contact. Returns a clone of the
// post-apply state. Must only be called from the shard's owning writer.
func (s *Store) Apply(t *event.TradeEvent) (*Position, ApplyStatus) {
	sh := s.shards[s.ShardIndex(t.ShardKey())]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	key := Key{Wallet: t.Wallet, MarketSlug: t.MarketSlug}
	pos, ok := sh.positions[key]
	if !ok {
		pos = NewPosition(t.Wallet, t.MarketSlug)
		sh.positions[key] = pos
	}
	status := pos.Apply(t)
	return pos.Clone(), status
}

// Get returns a clone of the position for (wallet, market).
func (s *Store) Get(wallet, marketSlug string) (*Position, bool) {
	key := Key{Wallet: wallet, MarketSlug: marketSlug}
	sh := s.shards[s.ShardIndex(wallet+"|"+marketSlug)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	pos, ok := sh.positions[key]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// Restore inserts a recovered position, replacing any existing entry.
// Used during startup before the writers are running.
func (s *Store) Restore(pos *Position) {
	key := Key{Wallet: pos.Wallet, MarketSlug: pos.MarketSlug}
	sh := s.shards[s.ShardIndex(pos.Wallet+"|"+pos.MarketSlug)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.positions[key] = pos.Clone()
}

// SnapshotAll returns clones of every position across all shards.
func (s *Store) SnapshotAll() []*Position {
	var out []*Position
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, pos := range sh.positions {
			out = append(out, pos.Clone())
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the total number of positions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.positions)
		sh.mu.RUnlock()
	}
	return n
}
