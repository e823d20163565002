package accounts

import (
	"sync"
)

// Blocklist records credentials excluded for one calendar day. Day keys are
// opaque strings produced by the Pool.
type Blocklist interface {
	Add(day string, accountID int64)
	Remove(day string, accountID int64)
	Contains(day string, accountID int64) bool
	List(day string) []int64
}

var _ Blocklist = (*MemoryBlocklist)(nil)

// MemoryBlocklist keeps blocks in process memory; a restart forgets them and
// they are re-learned from later failures.
type MemoryBlocklist struct {
	mu   sync.RWMutex
	days map[string]map[int64]struct{}
}

func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{days: make(map[string]map[int64]struct{})}
}

func (b *MemoryBlocklist) Add(day string, accountID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, ok := b.days[day]
	if !ok {
		// Older days are never consulted again.
		for key := range b.days {
			if key < day {
				delete(b.days, key)
			}
		}
		ids = make(map[int64]struct{})
		b.days[day] = ids
	}
	ids[accountID] = struct{}{}
}

func (b *MemoryBlocklist) Remove(day string, accountID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ids, ok := b.days[day]; ok {
		delete(ids, accountID)
	}
}

func (b *MemoryBlocklist) Contains(day string, accountID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.days[day][accountID]
	return ok
}

func (b *MemoryBlocklist) List(day string) []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]int64, 0, len(b.days[day]))
	for id := range b.days[day] {
		ids = append(ids, id)
	}
	return ids
}
