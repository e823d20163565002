package accounts

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/upstream"
)

var ErrNoAccountAvailable = errors.New("no upstream account available")

const dayLayout = "2006-01-02"

type AccountStore interface {
	ListAccountsByStatus(status database.AccountStatus) ([]database.Account, error)
	UpdateAccountStatus(id int64, status database.AccountStatus) error
}

// Pool hands out usable upstream credentials and reacts to classified
// failures reported by callers.
type Pool struct {
	store     AccountStore
	blocklist Blocklist
	location  *time.Location
	now       func() time.Time
	intn      func(n int) int
}

type Option func(*Pool)

// WithClock overrides the time source used for day keys.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithRandom overrides the selector used to pick among candidates.
func WithRandom(intn func(n int) int) Option {
	return func(p *Pool) { p.intn = intn }
}

func NewPool(store AccountStore, blocklist Blocklist, location *time.Location, opts ...Option) *Pool {
	if location == nil {
		location = time.UTC
	}

	p := &Pool{
		store:     store,
		blocklist: blocklist,
		location:  location,
		now:       time.Now,
		intn:      rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Today returns the blocklist key for the current calendar day in the pool's
// timezone.
func (p *Pool) Today() string {
	return p.now().In(p.location).Format(dayLayout)
}

// Acquire picks a random enabled account that is not blocked today.
func (p *Pool) Acquire() (*database.Account, error) {
	accounts, err := p.store.ListAccountsByStatus(database.AccountEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	day := p.Today()
	candidates := make([]database.Account, 0, len(accounts))
	for _, account := range accounts {
		if account.Status != database.AccountEnabled || p.blocklist.Contains(day, account.ID) {
			continue
		}
		candidates = append(candidates, account)
	}

	if len(candidates) == 0 {
		return nil, ErrNoAccountAvailable
	}

	chosen := candidates[p.intn(len(candidates))]
	return &chosen, nil
}

// ReportFailure applies the credential-side consequence of a classified
// upstream failure.
func (p *Pool) ReportFailure(accountID int64, kind upstream.ErrorKind) error {
	day := p.Today()

	switch kind {
	case upstream.AuthExpired:
		p.blocklist.Add(day, accountID)
		if err := p.store.UpdateAccountStatus(accountID, database.AccountInvalid); err != nil {
			return fmt.Errorf("failed to invalidate account %d: %w", accountID, err)
		}
		slog.Warn("Account invalidated", "account_id", accountID, "day", day)
	case upstream.RateLimited:
		p.blocklist.Add(day, accountID)
		slog.Warn("Account blocked for the day", "account_id", accountID, "day", day)
	case upstream.MalformedRequest:
		slog.Warn("Malformed upstream request", "account_id", accountID)
	default:
		slog.Info("Upstream failure left account untouched", "account_id", accountID, "kind", kind.String())
	}

	return nil
}

// ClearBlock lifts today's block so an edited or re-created credential is
// tried again immediately.
func (p *Pool) ClearBlock(accountID int64) {
	p.blocklist.Remove(p.Today(), accountID)
}

// Blocked lists the accounts excluded today.
func (p *Pool) Blocked() []int64 {
	ids := p.blocklist.List(p.Today())
	slices.Sort(ids)
	return ids
}
