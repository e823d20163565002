package database

import (
	"time"
)

type AccountRepository interface {
	GetAccount(id int64) (*Account, error)
	ListAccounts() ([]Account, error)
	ListAccountsByStatus(status AccountStatus) ([]Account, error)

	CreateAccount(name, token string) (*Account, error)
	UpdateAccount(id int64, name, token string, status AccountStatus) error
	UpdateAccountStatus(id int64, status AccountStatus) error
}

type FeedRepository interface {
	GetFeed(id string) (*Feed, error)
	ListFeeds() ([]Feed, error)
	GetFeedCount() (int, error)

	UpsertFeed(feed Feed) error
	UpdateSyncState(id string, syncedAt time.Time, hasHistory bool) error
}

type ArticleRepository interface {
	GetArticle(id string) (*Article, error)
	ListArticles(feedID string, limit int) ([]Article, error)
	CountArticles(feedID string) (int, error)

	UpsertArticles(feedID string, articles []ArticleSummary) error
	UpdateArticleContent(id string, content string, coverURL string) error
}
