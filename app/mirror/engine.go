package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-mirror/app/accounts"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/upstream"
)

var ErrFeedNotFound = errors.New("feed not found")

type AccountPool interface {
	Acquire() (*database.Account, error)
	ReportFailure(accountID int64, kind upstream.ErrorKind) error
}

type ArticleLister interface {
	ListArticles(ctx context.Context, cred upstream.Credential, feedID string, page int) ([]database.ArticleSummary, error)
}

type ImageResolver interface {
	GetBatch(ctx context.Context, urls []string) []string
}

type Settings struct {
	PageSize         int           // a page shorter than this ends the history
	Delay            time.Duration // between feeds in a sweep and between backfill pages
	PageAttempts     int
	MalformedPause   time.Duration
	MaxBackfillPages int
}

func DefaultSettings() Settings {
	return Settings{
		PageSize:         20,
		Delay:            60 * time.Second,
		PageAttempts:     3,
		MalformedPause:   10 * time.Second,
		MaxBackfillPages: 1000,
	}
}

// Engine mirrors upstream feed listings into the article store.
type Engine struct {
	pool     AccountPool
	lister   ArticleLister
	feeds    database.FeedRepository
	articles database.ArticleRepository
	images   ImageResolver
	state    State
	settings Settings

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

type Option func(*Engine)

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(pool AccountPool, lister ArticleLister, feeds database.FeedRepository,
	articles database.ArticleRepository, images ImageResolver, state State, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		pool:     pool,
		lister:   lister,
		feeds:    feeds,
		articles: articles,
		images:   images,
		state:    state,
		settings: settings,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncPage fetches one listing page, stores it and records whether older
// pages remain. Each attempt uses a freshly acquired credential.
func (e *Engine) SyncPage(ctx context.Context, feedID string, page int) (bool, error) {
	var lastErr error

	for attempt := 1; attempt <= e.settings.PageAttempts; attempt++ {
		account, err := e.pool.Acquire()
		if err != nil {
			return false, err
		}

		cred := upstream.Credential{AccountID: account.ID, Token: account.Token}
		summaries, err := e.lister.ListArticles(ctx, cred, feedID, page)
		if err == nil {
			return e.storePage(ctx, feedID, summaries)
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		lastErr = err
		kind := upstream.KindOf(err)
		slog.Warn("Page fetch failed",
			"feed", feedID,
			"page", page,
			"attempt", attempt,
			"account_id", account.ID,
			"kind", kind.String(),
			"error", err)

		if rerr := e.pool.ReportFailure(account.ID, kind); rerr != nil {
			slog.Error("Failed to record account failure", "account_id", account.ID, "error", rerr)
		}

		if kind == upstream.DataAnomaly {
			break
		}
		if kind == upstream.MalformedRequest && attempt < e.settings.PageAttempts {
			if err := e.sleep(ctx, e.settings.MalformedPause); err != nil {
				return false, err
			}
		}
	}

	return false, fmt.Errorf("failed to sync page %d of feed %s: %w", page, feedID, lastErr)
}

func (e *Engine) storePage(ctx context.Context, feedID string, summaries []database.ArticleSummary) (bool, error) {
	if e.images != nil && len(summaries) > 0 {
		covers := make([]string, len(summaries))
		for i, s := range summaries {
			covers[i] = s.CoverURL
		}
		for i, ref := range e.images.GetBatch(ctx, covers) {
			summaries[i].CoverURL = ref
		}
	}

	if err := e.articles.UpsertArticles(feedID, summaries); err != nil {
		return false, fmt.Errorf("failed to store articles: %w", err)
	}

	hasHistory := len(summaries) >= e.settings.PageSize
	if err := e.feeds.UpdateSyncState(feedID, e.now(), hasHistory); err != nil {
		return false, fmt.Errorf("failed to store sync state: %w", err)
	}

	return hasHistory, nil
}

// RefreshLatest re-syncs the first page of a feed.
func (e *Engine) RefreshLatest(ctx context.Context, feedID string) (bool, error) {
	feed, err := e.feeds.GetFeed(feedID)
	if err != nil {
		return false, err
	}
	if feed == nil {
		return false, fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}

	start := time.Now()
	hasHistory, err := e.SyncPage(ctx, feedID, 1)
	if err != nil {
		return false, err
	}

	slog.Info("Feed refreshed", "feed", feedID, "has_history", hasHistory, "duration", time.Since(start))
	return hasHistory, nil
}

// RefreshAll refreshes every feed in turn. It returns false without doing
// anything when another sweep is already running.
func (e *Engine) RefreshAll(ctx context.Context) (bool, error) {
	if !e.state.TryStartRefreshAll() {
		slog.Info("Refresh sweep already running, skipping")
		return false, nil
	}
	defer e.state.FinishRefreshAll()

	feeds, err := e.feeds.ListFeeds()
	if err != nil {
		return true, fmt.Errorf("failed to list feeds: %w", err)
	}

	start := time.Now()
	successCount := 0
	errorCount := 0

	for _, feed := range feeds {
		if feed.Status == database.FeedDisabled {
			continue
		}

		if successCount+errorCount > 0 {
			if err := e.sleep(ctx, e.settings.Delay); err != nil {
				return true, err
			}
		}

		if _, err := e.RefreshLatest(ctx, feed.ID); err != nil {
			if errors.Is(err, accounts.ErrNoAccountAvailable) || ctx.Err() != nil {
				return true, err
			}
			slog.Error("Feed refresh failed", "feed", feed.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.Info("Refresh sweep completed",
		"feeds", len(feeds),
		"success", successCount,
		"errors", errorCount,
		"duration", time.Since(start))

	return true, nil
}

func (e *Engine) IsRefreshAllRunning() bool {
	return e.state.RefreshAllRunning()
}

// BackfillHistory walks older pages of a feed until the history ends. Only
// one backfill runs at a time; a request for another feed takes over the
// token and the running loop stops at its next page.
func (e *Engine) BackfillHistory(ctx context.Context, feedID string) error {
	if feedID == "" {
		return fmt.Errorf("%w: empty id", ErrFeedNotFound)
	}
	gen, ok := e.state.ClaimBackfill(feedID)
	if !ok {
		slog.Info("Backfill already running for feed", "feed", feedID)
		return nil
	}
	defer e.state.ReleaseBackfill(gen)

	feed, err := e.feeds.GetFeed(feedID)
	if err != nil {
		return err
	}
	if feed == nil {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	if feed.HistoryExhausted() {
		slog.Info("Feed history already complete", "feed", feedID)
		return nil
	}

	stored, err := e.articles.CountArticles(feedID)
	if err != nil {
		return err
	}

	start := time.Now()
	page := StartPage(stored, e.settings.PageSize)
	pages := 0

	for pages < e.settings.MaxBackfillPages {
		if !e.state.SetBackfillPage(gen, page) {
			slog.Info("Backfill preempted", "feed", feedID, "page", page, "pages", pages)
			return nil
		}

		hasHistory, err := e.SyncPage(ctx, feedID, page)
		pages++
		if err != nil {
			return fmt.Errorf("backfill stopped at page %d: %w", page, err)
		}
		if !hasHistory {
			slog.Info("Backfill completed", "feed", feedID, "pages", pages, "last_page", page, "duration", time.Since(start))
			return nil
		}

		page++
		if err := e.sleep(ctx, e.settings.Delay); err != nil {
			return err
		}
	}

	slog.Warn("Backfill page cap reached", "feed", feedID, "pages", pages, "last_page", page-1)
	return nil
}

func (e *Engine) InProgressBackfill() BackfillProgress {
	return e.state.Backfill()
}

// StartPage resumes a backfill near the already-synced frontier.
func StartPage(storedArticles, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return max(1, (storedArticles+pageSize-1)/pageSize)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
