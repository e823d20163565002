package api

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-mirror/app/articles"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/mirror"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

type GeneratorInterface interface {
	Run(feed database.Feed, articles []database.Article) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type ArticleService interface {
	GetArticleContent(ctx context.Context, id string) (*database.Article, error)
	AddFeed(ctx context.Context, link string) (*database.Feed, error)
}

var _ ArticleService = (*articles.Service)(nil)

// SyncEngine is what the API triggers and inspects. Triggers go through the
// task scheduler so requests return immediately.
type SyncEngine interface {
	tasks.Syncer
	IsRefreshAllRunning() bool
	InProgressBackfill() mirror.BackfillProgress
}

var _ SyncEngine = (*mirror.Engine)(nil)

type AccountBlocks interface {
	ClearBlock(accountID int64)
	Blocked() []int64
}

type ImageCache interface {
	Clear(olderThan time.Duration) (int, int64, error)
}

type Handler struct {
	feedRepo    database.FeedRepository
	articleRepo database.ArticleRepository
	accountRepo database.AccountRepository
	generator   GeneratorInterface
	articles    ArticleService
	engine      SyncEngine
	blocks      AccountBlocks
	images      ImageCache
	scheduler   tasks.TaskSchedulerInterface
	feedItems   int
}

type addFeedRequest struct {
	Link string `json:"link" binding:"required"`
}

type refreshRequest struct {
	FeedID string `json:"feed_id"`
}

type createAccountRequest struct {
	Name  string `json:"name" binding:"required"`
	Token string `json:"token" binding:"required"`
}

type updateAccountRequest struct {
	Name   string `json:"name"`
	Token  string `json:"token"`
	Status string `json:"status"`
}

type accountView struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Token        string    `json:"token"`
	Status       string    `json:"status"`
	BlockedToday bool      `json:"blocked_today"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
