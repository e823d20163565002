package cfg

import (
	"os"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadDefaults(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	t.Setenv("TZ", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.PageSize != 20 {
		t.Errorf("Expected page size 20, got %d", cfg.PageSize)
	}
	if cfg.PageAttempts != 3 {
		t.Errorf("Expected 3 page attempts, got %d", cfg.PageAttempts)
	}
	if cfg.MaxBackfillPages != 1000 {
		t.Errorf("Expected backfill cap 1000, got %d", cfg.MaxBackfillPages)
	}
	if cfg.GetSyncDelay() != 60*time.Second {
		t.Errorf("Expected sync delay 60s, got %s", cfg.GetSyncDelay())
	}
	if cfg.GetMalformedPause() != 10*time.Second {
		t.Errorf("Expected malformed pause 10s, got %s", cfg.GetMalformedPause())
	}
	if cfg.ImageBatchSize != 5 {
		t.Errorf("Expected image batch size 5, got %d", cfg.ImageBatchSize)
	}
	if cfg.GetCrawlTimeout() != 45*time.Second {
		t.Errorf("Expected crawl timeout 45s, got %s", cfg.GetCrawlTimeout())
	}
	if cfg.ImagePublicPath != "/images" {
		t.Errorf("Expected image public path '/images', got '%s'", cfg.ImagePublicPath)
	}

	if Get() != cfg {
		t.Error("Get should return the loaded configuration")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	t.Setenv("TZ", "UTC")
	t.Setenv("PAGE_SIZE", "10")
	t.Setenv("SYNC_DELAY", "0")
	t.Setenv("IMAGE_RETENTION", "48")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.PageSize != 10 {
		t.Errorf("Expected page size 10, got %d", cfg.PageSize)
	}
	if cfg.GetSyncDelay() != 0 {
		t.Errorf("Expected zero sync delay, got %s", cfg.GetSyncDelay())
	}
	if cfg.GetImageRetention() != 48*time.Hour {
		t.Errorf("Expected retention 48h, got %s", cfg.GetImageRetention())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	t.Setenv("TZ", "UTC")
	t.Setenv("PAGE_SIZE", "0")

	if _, err := Load(); err == nil {
		t.Error("Expected error for zero page size")
	}
}

func TestGetBlocklistLocation(t *testing.T) {
	cfg := &Cfg{BlocklistTZ: "Not/AZone"}
	loc := cfg.GetBlocklistLocation()

	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	if offset != 8*60*60 {
		t.Errorf("Expected UTC+8 fallback, got offset %d", offset)
	}

	cfg = &Cfg{BlocklistTZ: "UTC"}
	if cfg.GetBlocklistLocation().String() != "UTC" {
		t.Errorf("Expected UTC location, got %s", cfg.GetBlocklistLocation())
	}
}
