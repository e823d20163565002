package accounts

import (
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/upstream"
)

type memoryStore struct {
	accounts map[int64]*database.Account
}

func newMemoryStore(accounts ...database.Account) *memoryStore {
	s := &memoryStore{accounts: make(map[int64]*database.Account)}
	for i := range accounts {
		a := accounts[i]
		s.accounts[a.ID] = &a
	}
	return s
}

func (s *memoryStore) ListAccountsByStatus(status database.AccountStatus) ([]database.Account, error) {
	var out []database.Account
	for id := int64(1); id <= int64(len(s.accounts)); id++ {
		if a, ok := s.accounts[id]; ok && a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *memoryStore) UpdateAccountStatus(id int64, status database.AccountStatus) error {
	a, ok := s.accounts[id]
	if !ok {
		return errors.New("not found")
	}
	a.Status = status
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestPool(store AccountStore, clock *fakeClock) *Pool {
	loc := time.FixedZone("UTC+8", 8*60*60)
	return NewPool(store, NewMemoryBlocklist(), loc, WithClock(clock.Now))
}

func acquireAll(t *testing.T, p *Pool, n int) map[int64]int {
	t.Helper()
	seen := make(map[int64]int)
	for i := 0; i < n; i++ {
		a, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		seen[a.ID]++
	}
	return seen
}

func TestAcquireSkipsDisabledAndBlocked(t *testing.T) {
	store := newMemoryStore(
		database.Account{ID: 1, Status: database.AccountEnabled},
		database.Account{ID: 2, Status: database.AccountDisabled},
		database.Account{ID: 3, Status: database.AccountInvalid},
		database.Account{ID: 4, Status: database.AccountEnabled},
	)
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	pool := newTestPool(store, clock)

	pool.blocklist.Add(pool.Today(), 4)

	seen := acquireAll(t, pool, 50)
	if len(seen) != 1 || seen[1] != 50 {
		t.Errorf("Expected only account 1 to be selected, got %v", seen)
	}
}

func TestAcquireSpreadsAcrossCandidates(t *testing.T) {
	store := newMemoryStore(
		database.Account{ID: 1, Status: database.AccountEnabled},
		database.Account{ID: 2, Status: database.AccountEnabled},
	)
	clock := &fakeClock{t: time.Now()}

	calls := 0
	pool := NewPool(store, NewMemoryBlocklist(), time.UTC, WithClock(clock.Now), WithRandom(func(n int) int {
		calls++
		return calls % n
	}))

	seen := acquireAll(t, pool, 4)
	if seen[1] != 2 || seen[2] != 2 {
		t.Errorf("Expected both accounts used evenly, got %v", seen)
	}
}

func TestAcquireNoAccountAvailable(t *testing.T) {
	store := newMemoryStore(database.Account{ID: 1, Status: database.AccountDisabled})
	pool := newTestPool(store, &fakeClock{t: time.Now()})

	if _, err := pool.Acquire(); !errors.Is(err, ErrNoAccountAvailable) {
		t.Errorf("Expected ErrNoAccountAvailable, got %v", err)
	}
}

func TestReportAuthExpiredIsPermanent(t *testing.T) {
	store := newMemoryStore(
		database.Account{ID: 1, Status: database.AccountEnabled},
		database.Account{ID: 2, Status: database.AccountEnabled},
	)
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	pool := newTestPool(store, clock)

	if err := pool.ReportFailure(1, upstream.AuthExpired); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	if store.accounts[1].Status != database.AccountInvalid {
		t.Errorf("Expected account 1 invalid, got %s", store.accounts[1].Status)
	}

	for _, day := range []time.Time{clock.t, clock.t.Add(24 * time.Hour), clock.t.Add(30 * 24 * time.Hour)} {
		clock.t = day
		seen := acquireAll(t, pool, 20)
		if seen[1] != 0 {
			t.Errorf("Account 1 selected on %v after auth failure", day)
		}
	}
}

func TestReportRateLimitedClearsNextDay(t *testing.T) {
	store := newMemoryStore(
		database.Account{ID: 1, Status: database.AccountEnabled},
		database.Account{ID: 2, Status: database.AccountEnabled},
	)
	// 23:30 in UTC+8
	clock := &fakeClock{t: time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)}
	pool := newTestPool(store, clock)

	if err := pool.ReportFailure(1, upstream.RateLimited); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}
	if store.accounts[1].Status != database.AccountEnabled {
		t.Error("Rate limiting must not change account status")
	}

	seen := acquireAll(t, pool, 20)
	if seen[1] != 0 {
		t.Error("Account 1 selected on the day it was rate limited")
	}

	// 00:30 next day in UTC+8
	clock.t = clock.t.Add(time.Hour)
	pool.intn = func(n int) int { return 0 }
	a, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if a.ID != 1 {
		t.Errorf("Expected account 1 to be selectable after rollover, got %d", a.ID)
	}
}

func TestReportFailureWithoutStateChange(t *testing.T) {
	store := newMemoryStore(database.Account{ID: 1, Status: database.AccountEnabled})
	pool := newTestPool(store, &fakeClock{t: time.Now()})

	for _, kind := range []upstream.ErrorKind{upstream.MalformedRequest, upstream.Unrecognized, upstream.NetworkOrTimeout, upstream.DataAnomaly} {
		if err := pool.ReportFailure(1, kind); err != nil {
			t.Fatalf("ReportFailure(%s) failed: %v", kind, err)
		}
	}

	if len(pool.Blocked()) != 0 {
		t.Errorf("Expected no blocked accounts, got %v", pool.Blocked())
	}
	if store.accounts[1].Status != database.AccountEnabled {
		t.Errorf("Expected account to stay enabled, got %s", store.accounts[1].Status)
	}
}

func TestClearBlock(t *testing.T) {
	store := newMemoryStore(database.Account{ID: 1, Status: database.AccountEnabled})
	pool := newTestPool(store, &fakeClock{t: time.Now()})

	pool.ReportFailure(1, upstream.RateLimited)
	if _, err := pool.Acquire(); !errors.Is(err, ErrNoAccountAvailable) {
		t.Fatalf("Expected blocked pool, got %v", err)
	}

	pool.ClearBlock(1)

	if _, err := pool.Acquire(); err != nil {
		t.Errorf("Expected account after ClearBlock, got %v", err)
	}
}

func TestMemoryBlocklistPrunesOlderDays(t *testing.T) {
	b := NewMemoryBlocklist()
	b.Add("2024-03-01", 1)
	b.Add("2024-03-02", 2)

	if b.Contains("2024-03-01", 1) {
		t.Error("Expected older day to be pruned")
	}
	if !b.Contains("2024-03-02", 2) {
		t.Error("Expected current day to be kept")
	}
}
