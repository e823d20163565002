package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// Application configuration
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	SeedFile          string

	// Upstream platform
	UpstreamURL      string
	ArticleURL       string
	UpstreamTimeout  int
	PageSize         int
	SyncDelay        int
	PageAttempts     int
	MalformedPause   int
	MaxBackfillPages int
	BlocklistTZ      string

	// Image cache
	ImageDir             string
	ImagePublicPath      string
	ImageReferer         string
	ImageRetention       int
	ImageCleanupInterval int
	ImageBatchSize       int
	ImageBatchPause      int

	ContentSelector string
	CrawlTimeout    int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) GetSyncDelay() time.Duration {
	return time.Duration(c.SyncDelay) * time.Second
}

func (c *Cfg) GetUpstreamTimeout() time.Duration {
	if c.UpstreamTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.UpstreamTimeout) * time.Second
}

func (c *Cfg) GetCrawlTimeout() time.Duration {
	if c.CrawlTimeout <= 0 {
		return 45 * time.Second
	}
	return time.Duration(c.CrawlTimeout) * time.Second
}

func (c *Cfg) GetMalformedPause() time.Duration {
	return time.Duration(c.MalformedPause) * time.Second
}

func (c *Cfg) GetImageRetention() time.Duration {
	return time.Duration(c.ImageRetention) * time.Hour
}

func (c *Cfg) GetImageCleanupInterval() time.Duration {
	if c.ImageCleanupInterval <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.ImageCleanupInterval) * time.Hour
}

func (c *Cfg) GetImageBatchPause() time.Duration {
	return time.Duration(c.ImageBatchPause) * time.Millisecond
}

// GetBlocklistLocation resolves the timezone used to key daily credential
// blocks. A fixed UTC+8 zone is used when the tz database is unavailable.
func (c *Cfg) GetBlocklistLocation() *time.Location {
	if c.BlocklistTZ != "" {
		if loc, err := time.LoadLocation(c.BlocklistTZ); err == nil {
			return loc
		}
	}
	return time.FixedZone("UTC+8", 8*60*60)
}
