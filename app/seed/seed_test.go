package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lysyi3m/feed-mirror/app/database"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openRepos(t *testing.T) (*database.AccountRepo, *database.FeedRepo) {
	t.Helper()
	db, err := database.NewConnection(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return database.NewAccountRepository(db), database.NewFeedRepository(db)
}

func TestLoadAndApply(t *testing.T) {
	path := writeSeed(t, `
accounts:
  - name: "main"
    token: "token-1"
  - name: "spare"
    token: "token-2"
    status: "disabled"

feeds:
  - id: "gh_1"
    name: "Daily"
    intro: "Daily digest"
  - id: "gh_2"
    name: "Paused"
    status: "disabled"
`)

	file, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	accounts, feeds := openRepos(t)
	stats, err := Apply(file, accounts, feeds)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if stats.AccountsCreated != 2 || stats.AccountsUpdated != 0 || stats.Feeds != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	list, _ := accounts.ListAccounts()
	if len(list) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(list))
	}
	if list[1].Name != "spare" || list[1].Status != database.AccountDisabled {
		t.Errorf("Expected disabled spare account, got %+v", list[1])
	}

	feed, _ := feeds.GetFeed("gh_2")
	if feed == nil || feed.Status != database.FeedDisabled {
		t.Errorf("Expected disabled feed, got %+v", feed)
	}

	// Applying again updates by name instead of duplicating.
	stats, err = Apply(file, accounts, feeds)
	if err != nil {
		t.Fatal(err)
	}
	if stats.AccountsCreated != 0 || stats.AccountsUpdated != 2 {
		t.Errorf("Expected accounts updated on second apply, got %+v", stats)
	}
	if count, _ := feeds.GetFeedCount(); count != 2 {
		t.Errorf("Expected 2 feeds, got %d", count)
	}
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"missing token", "accounts:\n  - name: a\n", "token is required"},
		{"bad status", "accounts:\n  - name: a\n    token: t\n    status: gone\n", "unknown status"},
		{"duplicate account", "accounts:\n  - name: a\n    token: t\n  - name: a\n    token: u\n", "duplicate name"},
		{"feed without id", "feeds:\n  - name: x\n", "id is required"},
		{"bad feed status", "feeds:\n  - id: x\n    status: paused\n", "unknown status"},
		{"not yaml", "accounts: [", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSeed(t, tt.content))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
