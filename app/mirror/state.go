package mirror

import (
	"sync"
	"sync/atomic"
)

// BackfillProgress names the feed currently being backfilled and the page it
// is on. A zero value means no backfill is running.
type BackfillProgress struct {
	FeedID string `json:"feed_id"`
	Page   int    `json:"page"`
}

// State holds the in-memory tokens that serialise long-running workflows.
// Nothing here is persisted; a restart clears every token.
type State interface {
	TryStartRefreshAll() bool
	FinishRefreshAll()
	RefreshAllRunning() bool

	// ClaimBackfill takes the backfill token for feedID and returns the
	// generation identifying this claim. It returns false when feedID already
	// holds it; a different holder is overwritten.
	ClaimBackfill(feedID string) (uint64, bool)
	// SetBackfillPage records progress and returns false once the claim
	// identified by gen no longer holds the token.
	SetBackfillPage(gen uint64, page int) bool
	// ReleaseBackfill clears the token if the claim gen still holds it.
	ReleaseBackfill(gen uint64)
	Backfill() BackfillProgress
}

var _ State = (*MemoryState)(nil)

type MemoryState struct {
	refreshing atomic.Bool

	mu       sync.Mutex
	backfill BackfillProgress
	// gen changes on every claim, so a preempted loop cannot mistake a later
	// claim of the same feed for its own.
	gen     uint64
	lastGen uint64
}

func NewMemoryState() *MemoryState {
	return &MemoryState{}
}

func (s *MemoryState) TryStartRefreshAll() bool {
	return s.refreshing.CompareAndSwap(false, true)
}

func (s *MemoryState) FinishRefreshAll() {
	s.refreshing.Store(false)
}

func (s *MemoryState) RefreshAllRunning() bool {
	return s.refreshing.Load()
}

func (s *MemoryState) ClaimBackfill(feedID string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != 0 && s.backfill.FeedID == feedID {
		return 0, false
	}
	s.lastGen++
	s.gen = s.lastGen
	s.backfill = BackfillProgress{FeedID: feedID}
	return s.gen, true
}

func (s *MemoryState) SetBackfillPage(gen uint64, page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == 0 || s.gen != gen {
		return false
	}
	s.backfill.Page = page
	return true
}

func (s *MemoryState) ReleaseBackfill(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != 0 && s.gen == gen {
		s.gen = 0
		s.backfill = BackfillProgress{}
	}
}

func (s *MemoryState) Backfill() BackfillProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backfill
}
