package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ FeedRepository = (*FeedRepo)(nil)

// FeedRepo handles database operations for feeds
type FeedRepo struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

const feedColumns = `id, name, cover, intro, status, last_sync_time, has_history, created_at, updated_at`

// GetFeed returns nil when the feed does not exist.
func (r *FeedRepo) GetFeed(id string) (*Feed, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

func (r *FeedRepo) ListFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// UpsertFeed inserts a feed or refreshes its descriptive fields. Sync state
// (last_sync_time, has_history) is left untouched on conflict.
func (r *FeedRepo) UpsertFeed(feed Feed) error {
	now := time.Now().UTC().Unix()
	status := feed.Status
	if status == "" {
		status = FeedActive
	}

	_, err := r.db.Exec(`
		INSERT INTO feeds (id, name, cover, intro, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			cover = excluded.cover,
			intro = excluded.intro,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, feed.ID, feed.Name, feed.Cover, feed.Intro, status, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	return nil
}

func (r *FeedRepo) UpdateSyncState(id string, syncedAt time.Time, hasHistory bool) error {
	res, err := r.db.Exec(`
		UPDATE feeds
		SET last_sync_time = ?, has_history = ?, updated_at = ?
		WHERE id = ?
	`, syncedAt.UTC().Unix(), hasHistory, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update feed sync state: %w", err)
	}

	return requireAffected(res, "feed", id)
}

func scanFeed(row rowScanner) (*Feed, error) {
	var feed Feed
	var lastSync sql.NullInt64
	var hasHistory sql.NullBool
	var createdAt, updatedAt int64

	err := row.Scan(&feed.ID, &feed.Name, &feed.Cover, &feed.Intro, &feed.Status,
		&lastSync, &hasHistory, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if lastSync.Valid {
		t := time.Unix(lastSync.Int64, 0).UTC()
		feed.LastSyncTime = &t
	}
	if hasHistory.Valid {
		h := hasHistory.Bool
		feed.HasHistory = &h
	}
	feed.CreatedAt = time.Unix(createdAt, 0).UTC()
	feed.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &feed, nil
}
