package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/mirror.db" description:"SQLite database file"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://mirror.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for sync tasks"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"21600" description:"Seconds between scheduled refresh sweeps over all feeds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	SeedFile          string `long:"seed-file" env:"SEED_FILE" description:"YAML file with accounts and feeds to register at start-up (optional)"`

	// Upstream platform
	UpstreamURL      string `long:"upstream-url" env:"UPSTREAM_URL" default:"http://localhost:9000" description:"Base URL of the upstream article API"`
	ArticleURL       string `long:"article-url" env:"ARTICLE_URL" default:"https://mp.weixin.qq.com/s/%s" description:"Article page URL template used when an article has no stored link"`
	UpstreamTimeout  int    `long:"upstream-timeout" env:"UPSTREAM_TIMEOUT" default:"15" description:"Upstream request timeout in seconds"`
	PageSize         int    `long:"page-size" env:"PAGE_SIZE" default:"20" description:"Items per full upstream page; shorter pages end the history"`
	SyncDelay        int    `long:"sync-delay" env:"SYNC_DELAY" default:"60" description:"Seconds to wait between feeds in a sweep and between backfill pages"`
	PageAttempts     int    `long:"page-attempts" env:"PAGE_ATTEMPTS" default:"3" description:"Attempts per page fetch, each with a fresh credential"`
	MalformedPause   int    `long:"malformed-pause" env:"MALFORMED_PAUSE" default:"10" description:"Seconds to pause after a malformed-request response"`
	MaxBackfillPages int    `long:"max-backfill-pages" env:"MAX_BACKFILL_PAGES" default:"1000" description:"Hard cap on pages fetched by one backfill"`
	BlocklistTZ      string `long:"blocklist-timezone" env:"BLOCKLIST_TIMEZONE" default:"Asia/Shanghai" description:"Timezone whose calendar day keys credential blocks"`

	// Image cache
	ImageDir             string `long:"image-dir" env:"IMAGE_DIR" default:"./data/images" description:"Directory for cached images"`
	ImagePublicPath      string `long:"image-public-path" env:"IMAGE_PUBLIC_PATH" default:"/images" description:"URL path cached images are served under"`
	ImageReferer         string `long:"image-referer" env:"IMAGE_REFERER" default:"https://mp.weixin.qq.com/" description:"Referer sent to the image CDN"`
	ImageRetention       int    `long:"image-retention" env:"IMAGE_RETENTION" default:"720" description:"Hours a cached image is kept"`
	ImageCleanupInterval int    `long:"image-cleanup-interval" env:"IMAGE_CLEANUP_INTERVAL" default:"24" description:"Hours between image retention sweeps"`
	ImageBatchSize       int    `long:"image-batch-size" env:"IMAGE_BATCH_SIZE" default:"5" description:"Concurrent image downloads per batch"`
	ImageBatchPause      int    `long:"image-batch-pause" env:"IMAGE_BATCH_PAUSE" default:"500" description:"Milliseconds to pause between image batches"`

	ContentSelector string `long:"content-selector" env:"CONTENT_SELECTOR" default:"#js_content" description:"CSS selector of the article body container"`
	CrawlTimeout    int    `long:"crawl-timeout" env:"CRAWL_TIMEOUT" default:"45" description:"Seconds an on-demand article crawl may take"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:               raw.DBPath,
		Port:                 raw.Port,
		BaseUrl:              raw.BaseUrl,
		WorkerCount:          raw.WorkerCount,
		SchedulerInterval:    raw.SchedulerInterval,
		APIAccessKey:         raw.APIAccessKey,
		SeedFile:             raw.SeedFile,
		UpstreamURL:          raw.UpstreamURL,
		ArticleURL:           raw.ArticleURL,
		UpstreamTimeout:      raw.UpstreamTimeout,
		PageSize:             raw.PageSize,
		SyncDelay:            raw.SyncDelay,
		PageAttempts:         raw.PageAttempts,
		MalformedPause:       raw.MalformedPause,
		MaxBackfillPages:     raw.MaxBackfillPages,
		BlocklistTZ:          raw.BlocklistTZ,
		ImageDir:             raw.ImageDir,
		ImagePublicPath:      raw.ImagePublicPath,
		ImageReferer:         raw.ImageReferer,
		ImageRetention:       raw.ImageRetention,
		ImageCleanupInterval: raw.ImageCleanupInterval,
		ImageBatchSize:       raw.ImageBatchSize,
		ImageBatchPause:      raw.ImageBatchPause,
		ContentSelector:      raw.ContentSelector,
		CrawlTimeout:         raw.CrawlTimeout,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	positiveFields := map[string]int{
		"page size":          cfg.PageSize,
		"page attempts":      cfg.PageAttempts,
		"max backfill pages": cfg.MaxBackfillPages,
		"image batch size":   cfg.ImageBatchSize,
		"worker count":       cfg.WorkerCount,
		"crawl timeout":      cfg.CrawlTimeout,
	}

	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	nonNegativeFields := map[string]int{
		"sync delay":      cfg.SyncDelay,
		"malformed pause": cfg.MalformedPause,
		"image retention": cfg.ImageRetention,
		"image pause":     cfg.ImageBatchPause,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
