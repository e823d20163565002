package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lysyi3m/feed-mirror/app/crawler"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/upstream"
)

var ErrNotFound = errors.New("not found")

// DefaultCrawlTimeout keeps an on-demand crawl inside the HTTP server's write
// timeout.
const DefaultCrawlTimeout = 45 * time.Second

type Crawler interface {
	Crawl(ctx context.Context, article *database.Article) *crawler.Result
}

type AccountPool interface {
	Acquire() (*database.Account, error)
	ReportFailure(accountID int64, kind upstream.ErrorKind) error
}

type LinkResolver interface {
	ResolveLink(ctx context.Context, cred upstream.Credential, link string) (*upstream.FeedInfo, error)
}

type Service struct {
	articles database.ArticleRepository
	feeds    database.FeedRepository
	crawler  Crawler
	pool     AccountPool
	resolver LinkResolver

	crawlTimeout time.Duration
	crawls       singleflight.Group
}

type Option func(*Service)

func WithCrawlTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.crawlTimeout = d
		}
	}
}

func NewService(articles database.ArticleRepository, feeds database.FeedRepository, crawler Crawler,
	pool AccountPool, resolver LinkResolver, opts ...Option) *Service {
	s := &Service{
		articles:     articles,
		feeds:        feeds,
		crawler:      crawler,
		pool:         pool,
		resolver:     resolver,
		crawlTimeout: DefaultCrawlTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetArticleContent returns an article, crawling its body on first read.
// Concurrent reads of the same uncrawled article share one crawl. When the
// crawl fails the article comes back without content and is crawled again
// on the next read. The shared crawl outlives any single caller and is
// bounded by the crawl timeout instead.
func (s *Service) GetArticleContent(ctx context.Context, id string) (*database.Article, error) {
	article, err := s.articles.GetArticle(id)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, fmt.Errorf("%w: article %s", ErrNotFound, id)
	}
	if article.IsCrawled {
		return article, nil
	}

	v, err, shared := s.crawls.Do(id, func() (any, error) {
		crawlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.crawlTimeout)
		defer cancel()
		return s.crawl(crawlCtx, article)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Shared in-flight crawl", "article_id", id)
	}

	return v.(*database.Article), nil
}

func (s *Service) crawl(ctx context.Context, article *database.Article) (*database.Article, error) {
	result := s.crawler.Crawl(ctx, article)
	if result == nil {
		return article, nil
	}

	if err := s.articles.UpdateArticleContent(article.ID, result.Content, result.CoverURL); err != nil {
		return nil, err
	}

	updated, err := s.articles.GetArticle(article.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: article %s", ErrNotFound, article.ID)
	}

	slog.Info("Article content stored", "article_id", article.ID, "content_length", len(result.Content))
	return updated, nil
}

// AddFeed resolves a share link into feed metadata and registers the feed.
func (s *Service) AddFeed(ctx context.Context, link string) (*database.Feed, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("link is required")
	}

	account, err := s.pool.Acquire()
	if err != nil {
		return nil, err
	}

	info, err := s.resolver.ResolveLink(ctx, upstream.Credential{AccountID: account.ID, Token: account.Token}, link)
	if err != nil {
		if rerr := s.pool.ReportFailure(account.ID, upstream.KindOf(err)); rerr != nil {
			slog.Error("Failed to record account failure", "account_id", account.ID, "error", rerr)
		}
		return nil, fmt.Errorf("failed to resolve link: %w", err)
	}

	feed := database.Feed{
		ID:     info.ID,
		Name:   info.Name,
		Cover:  info.Cover,
		Intro:  info.Intro,
		Status: database.FeedActive,
	}
	if err := s.feeds.UpsertFeed(feed); err != nil {
		return nil, err
	}

	stored, err := s.feeds.GetFeed(info.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("Feed registered", "feed", info.ID, "name", info.Name)
	return stored, nil
}
