package server

import (
	"context"
	"sort"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// PoolHandle is the per-mode ordered set of waiting ticket ids.
// Implementations must keep RangeByScore strictly ascending with ties
// broken in insertion order, and must make RemoveMany atomic with
// respect to other removers (the scheduler is the only one).
type PoolHandle interface {
	Insert(ctx context.Context, id string, score float64) error
	RemoveMany(ctx context.Context, ids []string) (int, error)
	RangeByScore(ctx context.Context, min, max float64) ([]string, error)
	PopMin(ctx context.Context) (id string, score float64, ok bool, err error)
	Size(ctx context.Context) (int, error)
}

// Store is the ticket store: ticket records plus one PoolHandle per
// game mode.
type Store interface {
	PutTicket(ctx context.Context, t Ticket) error
	GetTicket(ctx context.Context, id string) (Ticket, bool, error)
	Pool(mode string) PoolHandle
}

// MemoryStore is the default, single-node in-memory backend. Ticket
// records live in a patrickmn/go-cache instance so TTL expiry happens
// without an explicit sweep goroutine; pools are mutex-guarded sorted
// slices, acceptable for tests and small deployments under the
// PoolHandle ordering contract.
type MemoryStore struct {
	records *cache.Cache

	mu    sync.RWMutex
	pools map[string]*memoryPool
}

// NewMemoryStore builds a MemoryStore whose ticket records expire after
// ttl unless refreshed by a PutTicket call.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: cache.New(ttl, ttl/2),
		pools:   make(map[string]*memoryPool),
	}
}

func (s *MemoryStore) PutTicket(_ context.Context, t Ticket) error {
	s.records.SetDefault(t.TicketID, t)
	return nil
}

func (s *MemoryStore) GetTicket(_ context.Context, id string) (Ticket, bool, error) {
	v, ok := s.records.Get(id)
	if !ok {
		return Ticket{}, false, nil
	}
	return v.(Ticket), true, nil
}

func (s *MemoryStore) Pool(mode string) PoolHandle {
	s.mu.RLock()
	p, ok := s.pools[mode]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.pools[mode]; ok {
		return p
	}
	p = &memoryPool{index: make(map[string]int)}
	s.pools[mode] = p
	return p
}

type poolEntry struct {
	id    string
	score float64
	seq   int64
}

// memoryPool keeps entries sorted ascending by (score, seq) at all
// times; index maps ticket id to its current slice position so
// membership tests and removal are O(1)/O(n) respectively rather than
// O(n log n) per call.
type memoryPool struct {
	mu      sync.Mutex
	entries []poolEntry
	index   map[string]int
	nextSeq int64
}

func (p *memoryPool) Insert(_ context.Context, id string, score float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos, ok := p.index[id]; ok {
		if p.entries[pos].score == score {
			return nil // idempotent on (id, score)
		}
		p.removeAtLocked(pos)
	}

	p.nextSeq++
	entry := poolEntry{id: id, score: score, seq: p.nextSeq}

	i := sort.Search(len(p.entries), func(i int) bool {
		return greaterEntry(p.entries[i], entry)
	})
	p.entries = append(p.entries, poolEntry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = entry
	p.reindexFromLocked(i)
	return nil
}

func (p *memoryPool) RemoveMany(_ context.Context, ids []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if pos, ok := p.index[id]; ok {
			p.removeAtLocked(pos)
			removed++
		}
	}
	return removed, nil
}

func (p *memoryPool) RangeByScore(_ context.Context, min, max float64) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0)
	for _, e := range p.entries {
		if e.score >= min && e.score <= max {
			ids = append(ids, e.id)
		}
	}
	return ids, nil
}

func (p *memoryPool) PopMin(_ context.Context) (string, float64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return "", 0, false, nil
	}
	e := p.entries[0]
	p.removeAtLocked(0)
	return e.id, e.score, true, nil
}

func (p *memoryPool) Size(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries), nil
}

// removeAtLocked deletes entries[pos] and keeps index consistent. Caller
// must hold p.mu.
func (p *memoryPool) removeAtLocked(pos int) {
	id := p.entries[pos].id
	p.entries = append(p.entries[:pos], p.entries[pos+1:]...)
	delete(p.index, id)
	p.reindexFromLocked(pos)
}

func (p *memoryPool) reindexFromLocked(from int) {
	for i := from; i < len(p.entries); i++ {
		p.index[p.entries[i].id] = i
	}
}

// greaterEntry reports whether existing sorts after candidate, i.e.
// candidate should be inserted before existing. Ascending score, ties
// broken by insertion order (seq).
func greaterEntry(existing, candidate poolEntry) bool {
	if existing.score != candidate.score {
		return existing.score > candidate.score
	}
	return existing.seq > candidate.seq
}
