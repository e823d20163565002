package seed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/feed-mirror/app/database"
)

type File struct {
	Accounts []AccountEntry `yaml:"accounts"`
	Feeds    []FeedEntry    `yaml:"feeds"`
}

type AccountEntry struct {
	Name   string `yaml:"name"`
	Token  string `yaml:"token"`
	Status string `yaml:"status"` // defaults to enabled
}

type FeedEntry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Cover  string `yaml:"cover"`
	Intro  string `yaml:"intro"`
	Status string `yaml:"status"` // defaults to active
}

type Stats struct {
	AccountsCreated int
	AccountsUpdated int
	Feeds           int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}

	return &file, nil
}

func (f *File) validate() error {
	names := make(map[string]bool)
	for i, a := range f.Accounts {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("account %d: name is required", i)
		}
		if a.Token == "" {
			return fmt.Errorf("account %s: token is required", a.Name)
		}
		if a.Status != "" && !database.AccountStatus(a.Status).Valid() {
			return fmt.Errorf("account %s: unknown status '%s'", a.Name, a.Status)
		}
		if names[a.Name] {
			return fmt.Errorf("account %s: duplicate name", a.Name)
		}
		names[a.Name] = true
	}

	for i, feed := range f.Feeds {
		if strings.TrimSpace(feed.ID) == "" {
			return fmt.Errorf("feed %d: id is required", i)
		}
		if feed.Status != "" && !database.FeedStatus(feed.Status).Valid() {
			return fmt.Errorf("feed %s: unknown status '%s'", feed.ID, feed.Status)
		}
	}

	return nil
}

// Apply upserts the seeded accounts and feeds. Accounts are matched by name.
func Apply(file *File, accounts database.AccountRepository, feeds database.FeedRepository) (Stats, error) {
	var stats Stats

	existing, err := accounts.ListAccounts()
	if err != nil {
		return stats, err
	}
	byName := make(map[string]int64, len(existing))
	for _, a := range existing {
		byName[a.Name] = a.ID
	}

	for _, entry := range file.Accounts {
		status := database.AccountStatus(entry.Status)
		if status == "" {
			status = database.AccountEnabled
		}

		if id, ok := byName[entry.Name]; ok {
			if err := accounts.UpdateAccount(id, entry.Name, entry.Token, status); err != nil {
				return stats, err
			}
			stats.AccountsUpdated++
			continue
		}

		created, err := accounts.CreateAccount(entry.Name, entry.Token)
		if err != nil {
			return stats, err
		}
		if status != database.AccountEnabled {
			if err := accounts.UpdateAccountStatus(created.ID, status); err != nil {
				return stats, err
			}
		}
		stats.AccountsCreated++
	}

	for _, entry := range file.Feeds {
		feed := database.Feed{
			ID:     entry.ID,
			Name:   entry.Name,
			Cover:  entry.Cover,
			Intro:  entry.Intro,
			Status: database.FeedStatus(entry.Status),
		}
		if err := feeds.UpsertFeed(feed); err != nil {
			return stats, err
		}
		stats.Feeds++
	}

	slog.Info("Seed applied",
		"accounts_created", stats.AccountsCreated,
		"accounts_updated", stats.AccountsUpdated,
		"feeds", stats.Feeds)

	return stats, nil
}
