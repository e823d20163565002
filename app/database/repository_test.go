package database

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected no error re-running migrations, got: %v", err)
	}
	if dirty {
		t.Error("Expected clean migration state")
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}
}

func TestAccountRepository(t *testing.T) {
	repo := NewAccountRepository(openTestDB(t))

	created, err := repo.CreateAccount("primary", "token-1")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if created.Status != AccountEnabled {
		t.Errorf("Expected new account to be enabled, got %s", created.Status)
	}

	if _, err := repo.CreateAccount("secondary", "token-2"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := repo.UpdateAccountStatus(created.ID, AccountInvalid); err != nil {
		t.Fatalf("UpdateAccountStatus failed: %v", err)
	}

	enabled, err := repo.ListAccountsByStatus(AccountEnabled)
	if err != nil {
		t.Fatalf("ListAccountsByStatus failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "secondary" {
		t.Errorf("Expected only 'secondary' enabled, got %+v", enabled)
	}

	account, err := repo.GetAccount(created.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.Status != AccountInvalid {
		t.Errorf("Expected status invalid, got %s", account.Status)
	}

	if err := repo.UpdateAccount(created.ID, "primary", "token-3", AccountEnabled); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	account, _ = repo.GetAccount(created.ID)
	if account.Token != "token-3" || account.Status != AccountEnabled {
		t.Errorf("Expected updated token and status, got %+v", account)
	}

	missing, err := repo.GetAccount(999)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing account")
	}

	if err := repo.UpdateAccountStatus(999, AccountInvalid); err == nil {
		t.Error("Expected error updating missing account")
	}
}

func TestFeedRepositorySyncState(t *testing.T) {
	repo := NewFeedRepository(openTestDB(t))

	if err := repo.UpsertFeed(Feed{ID: "feed-1", Name: "Feed One"}); err != nil {
		t.Fatalf("UpsertFeed failed: %v", err)
	}

	feed, err := repo.GetFeed("feed-1")
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if feed.Status != FeedActive {
		t.Errorf("Expected default status '%s', got '%s'", FeedActive, feed.Status)
	}
	if feed.HasHistory != nil {
		t.Error("Expected unknown history for a new feed")
	}
	if feed.HistoryExhausted() {
		t.Error("Unknown history must not count as exhausted")
	}

	syncedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := repo.UpdateSyncState("feed-1", syncedAt, false); err != nil {
		t.Fatalf("UpdateSyncState failed: %v", err)
	}

	// Re-registering must not reset the sync state.
	if err := repo.UpsertFeed(Feed{ID: "feed-1", Name: "Renamed"}); err != nil {
		t.Fatalf("UpsertFeed failed: %v", err)
	}

	feed, _ = repo.GetFeed("feed-1")
	if feed.Name != "Renamed" {
		t.Errorf("Expected name 'Renamed', got '%s'", feed.Name)
	}
	if feed.LastSyncTime == nil || !feed.LastSyncTime.Equal(syncedAt) {
		t.Errorf("Expected last sync %v, got %v", syncedAt, feed.LastSyncTime)
	}
	if !feed.HistoryExhausted() {
		t.Error("Expected exhausted history")
	}

	count, _ := repo.GetFeedCount()
	if count != 1 {
		t.Errorf("Expected 1 feed, got %d", count)
	}
}

func TestArticleUpsertPreservesCrawledFields(t *testing.T) {
	db := openTestDB(t)
	feeds := NewFeedRepository(db)
	articles := NewArticleRepository(db)

	if err := feeds.UpsertFeed(Feed{ID: "feed-1"}); err != nil {
		t.Fatal(err)
	}

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page := []ArticleSummary{
		{ID: "a1", Title: "Old title", CoverURL: "/images/a.jpg", PublishTime: first},
		{ID: "a2", Title: "Second", PublishTime: first},
	}
	if err := articles.UpsertArticles("feed-1", page); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}

	if err := articles.UpdateArticleContent("a1", "<p>body</p>", ""); err != nil {
		t.Fatalf("UpdateArticleContent failed: %v", err)
	}

	later := first.Add(time.Hour)
	page[0].Title = "New title"
	page[0].PublishTime = later
	page[0].CoverURL = "https://cdn.example.com/other.jpg"
	if err := articles.UpsertArticles("feed-1", page); err != nil {
		t.Fatalf("UpsertArticles failed: %v", err)
	}

	count, _ := articles.CountArticles("feed-1")
	if count != 2 {
		t.Errorf("Expected 2 articles, got %d", count)
	}

	a1, err := articles.GetArticle("a1")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a1.Title != "New title" {
		t.Errorf("Expected refreshed title, got '%s'", a1.Title)
	}
	if !a1.PublishTime.Equal(later) {
		t.Errorf("Expected refreshed publish time %v, got %v", later, a1.PublishTime)
	}
	if a1.CoverURL != "/images/a.jpg" {
		t.Errorf("Expected cover preserved, got '%s'", a1.CoverURL)
	}
	if !a1.IsCrawled || a1.Content == nil || *a1.Content != "<p>body</p>" {
		t.Errorf("Expected crawled content preserved, got %+v", a1)
	}

	a2, _ := articles.GetArticle("a2")
	if a2.Content != nil || a2.IsCrawled {
		t.Error("Expected uncrawled article to have nil content")
	}

	list, err := articles.ListArticles("feed-1", 10)
	if err != nil {
		t.Fatalf("ListArticles failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a1" {
		t.Errorf("Expected newest article first, got %+v", list)
	}
}
