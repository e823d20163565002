package database

import (
	"time"
)

type AccountStatus string

const (
	AccountEnabled  AccountStatus = "enabled"
	AccountDisabled AccountStatus = "disabled"
	AccountInvalid  AccountStatus = "invalid" // upstream rejected the credential
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountEnabled, AccountDisabled, AccountInvalid:
		return true
	}
	return false
}

type FeedStatus string

const (
	FeedActive   FeedStatus = "active"
	FeedDisabled FeedStatus = "disabled" // skipped by scheduled sweeps
)

func (s FeedStatus) Valid() bool {
	return s == FeedActive || s == FeedDisabled
}

// Account is a pooled upstream credential.
type Account struct {
	ID        int64
	Name      string
	Token     string
	Status    AccountStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Feed struct {
	ID           string // Upstream-assigned feed identifier
	Name         string
	Cover        string
	Intro        string
	Status       FeedStatus
	LastSyncTime *time.Time
	HasHistory   *bool // nil until the first page has been synced
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryExhausted reports whether a previous sync established that the feed
// has no older pages.
func (f *Feed) HistoryExhausted() bool {
	return f.HasHistory != nil && !*f.HasHistory
}

type Article struct {
	ID          string // Upstream-assigned, globally unique
	FeedID      string
	Title       string
	Link        string
	CoverURL    string
	PublishTime time.Time
	Content     *string // nil until crawled
	IsCrawled   bool
	AIScore     *float64
	AIReason    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArticleSummary is one entry of an upstream listing page.
type ArticleSummary struct {
	ID          string
	Title       string
	Link        string
	CoverURL    string
	PublishTime time.Time
}
