package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const maxImageSize = 20 << 20

var knownExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "svg": true,
}

type Options struct {
	Dir        string
	PublicPath string // URL prefix the directory is served under
	Referer    string
	UserAgent  string
	Timeout    time.Duration
	BatchSize  int
	BatchPause time.Duration
}

// Cache downloads remote images once and serves them from a directory of
// files named by the hash of their source URL.
type Cache struct {
	dir        string
	publicPath string
	referer    string
	userAgent  string
	batchSize  int
	batchPause time.Duration
	httpClient *http.Client
}

func NewCache(opts Options) (*Cache, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", opts.Dir, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	return &Cache{
		dir:        opts.Dir,
		publicPath: "/" + strings.Trim(opts.PublicPath, "/"),
		referer:    opts.Referer,
		userAgent:  opts.UserAgent,
		batchSize:  batchSize,
		batchPause: opts.BatchPause,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Get returns the local reference for sourceURL, downloading it on first use.
// Download failures return sourceURL unchanged.
func (c *Cache) Get(ctx context.Context, sourceURL string) string {
	if sourceURL == "" || c.IsLocal(sourceURL) {
		return sourceURL
	}

	u, err := url.Parse(sourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return sourceURL
	}

	name := FileName(sourceURL)
	ref := c.publicPath + "/" + name
	target := filepath.Join(c.dir, name)

	if _, err := os.Stat(target); err == nil {
		return ref
	}

	if err := c.download(ctx, sourceURL, target); err != nil {
		slog.Warn("Image download failed", "url", sourceURL, "error", err)
		return sourceURL
	}

	slog.Debug("Image cached", "url", sourceURL, "file", name)
	return ref
}

// GetBatch resolves urls in groups of at most BatchSize concurrent downloads,
// pausing between groups. The result is index-aligned with urls.
func (c *Cache) GetBatch(ctx context.Context, urls []string) []string {
	refs := make([]string, len(urls))

	for start := 0; start < len(urls); start += c.batchSize {
		if start > 0 && c.batchPause > 0 {
			select {
			case <-ctx.Done():
				copy(refs[start:], urls[start:])
				return refs
			case <-time.After(c.batchPause):
			}
		}

		end := min(start+c.batchSize, len(urls))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				refs[i] = c.Get(ctx, urls[i])
				return nil
			})
		}
		g.Wait()
	}

	return refs
}

// IsLocal reports whether ref already points into the cache.
func (c *Cache) IsLocal(ref string) bool {
	return strings.HasPrefix(ref, c.publicPath+"/")
}

// Clear deletes cached files last written before olderThan ago.
func (c *Cache) Clear(olderThan time.Duration) (int, int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list image directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var reclaimed int64

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to stat cached image", "file", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			slog.Warn("Failed to remove cached image", "file", entry.Name(), "error", err)
			continue
		}
		removed++
		reclaimed += info.Size()
	}

	return removed, reclaimed, nil
}

func (c *Cache) download(ctx context.Context, sourceURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// The CDN rejects requests without a platform referer and browser agent.
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("empty image body")
	}
	if n > maxImageSize {
		return fmt.Errorf("image exceeds %d bytes", maxImageSize)
	}

	// Concurrent downloads of the same URL write identical names; the last
	// rename wins.
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}

	return nil
}

// FileName derives the cache file name for sourceURL: a hash of the URL
// string plus a best-effort extension.
func FileName(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:16]) + "." + extension(sourceURL)
}

func extension(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "jpg"
	}

	if format := strings.ToLower(u.Query().Get("wx_fmt")); knownExtensions[format] {
		return format
	}

	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), ".")); knownExtensions[ext] {
		return ext
	}

	return "jpg"
}
