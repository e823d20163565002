package feed

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/feed-mirror/app/cfg"
	"github.com/lysyi3m/feed-mirror/app/database"
)

func setupTestConfig() {
	// Clear os.Args to prevent config parsing from failing
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	cfg.Load()
}

func strPtr(s string) *string { return &s }

func TestGenerateRSS(t *testing.T) {
	setupTestConfig()
	generator := NewGenerator()

	synced := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	feed := database.Feed{
		ID:           "gh_test",
		Name:         "Test Feed",
		Intro:        "Weekly notes",
		Cover:        "/images/feed-cover.jpg",
		LastSyncTime: &synced,
	}

	published := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)
	articles := []database.Article{
		{
			ID:          "art-1",
			FeedID:      "gh_test",
			Title:       "Crawled Article",
			Link:        "https://mp.example.com/s/art-1",
			CoverURL:    "/images/cover-1.jpg",
			PublishTime: published,
			Content:     strPtr(`<p>Body</p><img src="/images/body.jpg" alt="">`),
			IsCrawled:   true,
		},
		{
			ID:          "art-2",
			FeedID:      "gh_test",
			Title:       "Listing Only",
			PublishTime: published.Add(-time.Hour),
		},
	}

	rss, err := generator.Run(feed, articles)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, `<atom:link href="http://localhost:8080/feeds/gh_test" rel="self" type="application/rss+xml" />`) {
		t.Error("RSS should contain atom:link self reference")
	}
	if !strings.Contains(rss, `<content:encoded><![CDATA[<p>Body</p><img src="http://localhost:8080/images/body.jpg" alt="">]]></content:encoded>`) {
		t.Error("RSS should contain crawled content with absolute image URLs")
	}
	if !strings.Contains(rss, `<guid isPermaLink="false">art-1</guid>`) {
		t.Error("RSS should contain article id as GUID")
	}

	parsed, err := gofeed.NewParser().ParseString(rss)
	if err != nil {
		t.Fatalf("Generated RSS does not parse: %v", err)
	}

	if parsed.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got '%s'", parsed.Title)
	}
	if parsed.Description != "Weekly notes" {
		t.Errorf("Expected description 'Weekly notes', got '%s'", parsed.Description)
	}
	if parsed.Image == nil || parsed.Image.URL != "http://localhost:8080/images/feed-cover.jpg" {
		t.Errorf("Expected absolute feed image, got %+v", parsed.Image)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(parsed.Items))
	}

	first := parsed.Items[0]
	if first.Title != "Crawled Article" || first.Link != "https://mp.example.com/s/art-1" {
		t.Errorf("Unexpected first item %+v", first)
	}
	if first.PublishedParsed == nil || !first.PublishedParsed.Equal(published) {
		t.Errorf("Expected publish time %v, got %v", published, first.PublishedParsed)
	}
	if !strings.Contains(first.Description, "http://localhost:8080/images/cover-1.jpg") {
		t.Errorf("Expected cover in description, got '%s'", first.Description)
	}

	second := parsed.Items[1]
	if second.Content != "" {
		t.Errorf("Uncrawled article should have no content, got '%s'", second.Content)
	}
	if second.Description != "Listing Only" {
		t.Errorf("Expected title as description, got '%s'", second.Description)
	}
}

func TestGenerateWithSpecialCharacters(t *testing.T) {
	setupTestConfig()
	generator := NewGenerator()

	feed := database.Feed{ID: "special", Name: "Feed with <special> & \"characters\""}
	articles := []database.Article{
		{
			ID:      "special-item",
			Title:   "Item with <tags> & \"quotes\"",
			Content: strPtr("Content with <strong>bold</strong> and ]]> inside"),
		},
	}

	rss, err := generator.Run(feed, articles)
	if err != nil {
		t.Fatalf("Expected no error with special characters, got: %v", err)
	}

	if !strings.Contains(rss, "Feed with &lt;special&gt; &amp; &#34;characters&#34;") {
		t.Error("Feed title should have escaped special characters")
	}
	if !strings.Contains(rss, "Item with &lt;tags&gt; &amp; &#34;quotes&#34;") {
		t.Error("Item title should have escaped special characters")
	}

	parsed, err := gofeed.NewParser().ParseString(rss)
	if err != nil {
		t.Fatalf("Generated RSS does not parse: %v", err)
	}
	if !strings.Contains(parsed.Items[0].Content, "<strong>bold</strong>") {
		t.Errorf("Expected content to survive, got '%s'", parsed.Items[0].Content)
	}
}

func TestGenerateWithEmptyArticles(t *testing.T) {
	setupTestConfig()
	generator := NewGenerator()

	rss, err := generator.Run(database.Feed{ID: "empty"}, nil)
	if err != nil {
		t.Fatalf("Expected no error with empty articles, got: %v", err)
	}

	if !strings.Contains(rss, "<title>empty</title>") {
		t.Error("Feed id should be used as title when name is missing")
	}
	if !strings.Contains(rss, "<description>Mirrored feed empty</description>") {
		t.Error("Expected default description")
	}
	if strings.Contains(rss, "<item>") {
		t.Error("Empty RSS should not contain any items")
	}
	if strings.Contains(rss, "<image>") {
		t.Error("Feed without cover should not contain an image")
	}
}

func TestIsURLMethod(t *testing.T) {
	generator := NewGenerator()

	tests := []struct {
		input    string
		expected bool
	}{
		{"", false},
		{"http://example.com", true},
		{"https://example.com", true},
		{"ftp://example.com", false},
		{"not-a-url", false},
		{"http://", false},
		{"https://", false},
	}

	for _, test := range tests {
		result := generator.isURL(test.input)
		if result != test.expected {
			t.Errorf("For input '%s', expected %v, got %v", test.input, test.expected, result)
		}
	}
}
