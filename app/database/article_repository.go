package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ ArticleRepository = (*ArticleRepo)(nil)

// ArticleRepo handles database operations for mirrored articles
type ArticleRepo struct {
	db *DB
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

const articleColumns = `id, feed_id, title, link, cover_url, publish_time, content, is_crawled,
	ai_score, ai_reason, created_at, updated_at`

func (r *ArticleRepo) GetArticle(id string) (*Article, error) {
	row := r.db.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return article, nil
}

// ListArticles returns the newest articles of a feed first.
func (r *ArticleRepo) ListArticles(feedID string, limit int) ([]Article, error) {
	rows, err := r.db.Query(`
		SELECT `+articleColumns+`
		FROM articles
		WHERE feed_id = ?
		ORDER BY publish_time DESC, id
		LIMIT ?
	`, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) CountArticles(feedID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM articles WHERE feed_id = ?", feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// UpsertArticles stores one listing page in a single transaction. The article
// id is the conflict key; only title and publish time are refreshed so crawled
// content, covers and scores survive re-syncs.
func (r *ArticleRepo) UpsertArticles(feedID string, articles []ArticleSummary) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO articles (id, feed_id, title, link, cover_url, publish_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			publish_time = excluded.publish_time,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare article upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, a := range articles {
		if _, err := stmt.Exec(a.ID, feedID, a.Title, a.Link, a.CoverURL, a.PublishTime.UTC().Unix(), now, now); err != nil {
			return fmt.Errorf("failed to upsert article %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit articles: %w", err)
	}

	return nil
}

// UpdateArticleContent stores a crawled body. An empty coverURL keeps the
// listing cover.
func (r *ArticleRepo) UpdateArticleContent(id string, content string, coverURL string) error {
	res, err := r.db.Exec(`
		UPDATE articles
		SET content = ?, is_crawled = 1,
		    cover_url = CASE WHEN ? = '' THEN cover_url ELSE ? END,
		    updated_at = ?
		WHERE id = ?
	`, content, coverURL, coverURL, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update article content: %w", err)
	}

	return requireAffected(res, "article", id)
}

func scanArticle(row rowScanner) (*Article, error) {
	var article Article
	var publishTime, createdAt, updatedAt int64
	var content, aiReason sql.NullString
	var aiScore sql.NullFloat64

	err := row.Scan(&article.ID, &article.FeedID, &article.Title, &article.Link, &article.CoverURL,
		&publishTime, &content, &article.IsCrawled, &aiScore, &aiReason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	article.PublishTime = time.Unix(publishTime, 0).UTC()
	if content.Valid {
		article.Content = &content.String
	}
	if aiScore.Valid {
		article.AIScore = &aiScore.Float64
	}
	if aiReason.Valid {
		article.AIReason = &aiReason.String
	}
	article.CreatedAt = time.Unix(createdAt, 0).UTC()
	article.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &article, nil
}
