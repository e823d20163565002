package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/lysyi3m/feed-mirror/app/database"
)

const maxPageSize = 10 << 20

// Readability styles applied to the rewritten body. Anything the page
// carried inline is dropped first.
var readabilityStyles = map[string]string{
	"p":          "margin: 0 0 1em; line-height: 1.75;",
	"h1":         "margin: 1.2em 0 0.6em; line-height: 1.4;",
	"h2":         "margin: 1.2em 0 0.6em; line-height: 1.4;",
	"h3":         "margin: 1em 0 0.5em; line-height: 1.4;",
	"blockquote": "margin: 1em 0; padding-left: 1em; border-left: 3px solid #ddd; color: #555;",
	"pre":        "overflow-x: auto; white-space: pre-wrap;",
	"img":        "display: block; max-width: 100%; height: auto; margin: 1em auto;",
}

var imageKeepAttrs = map[string]bool{
	"src":   true,
	"alt":   true,
	"title": true,
}

type ImageResolver interface {
	Get(ctx context.Context, sourceURL string) string
	GetBatch(ctx context.Context, urls []string) []string
}

type Options struct {
	// ArticleURL is a fmt template taking the article id, used when the
	// stored article has no link.
	ArticleURL      string
	ContentSelector string
	UserAgent       string
	Referer         string
	Timeout         time.Duration
}

type Result struct {
	Content  string
	CoverURL string
}

type Crawler struct {
	client *http.Client
	images ImageResolver
	opts   Options
	policy *bluemonday.Policy
}

func New(images ImageResolver, opts Options) *Crawler {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ContentSelector == "" {
		opts.ContentSelector = "#js_content"
	}

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("section", "div", "span", "figure", "figcaption")
	policy.AllowAttrs("src", "alt", "title").OnElements("img")

	return &Crawler{
		client: &http.Client{Timeout: opts.Timeout},
		images: images,
		opts:   opts,
		policy: policy,
	}
}

// Crawl fetches and rewrites the page of one article. It returns nil when
// the page cannot be fetched or holds no usable content.
func (c *Crawler) Crawl(ctx context.Context, article *database.Article) (result *Result) {
	pageURL := c.PageURL(article)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Article crawl panicked", "article_id", article.ID, "url", pageURL, "panic", r)
			result = nil
		}
	}()

	start := time.Now()
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		slog.Warn("Failed to fetch article page", "article_id", article.ID, "url", pageURL, "error", err)
		return nil
	}

	result, err = c.Rewrite(ctx, pageURL, body)
	if err != nil {
		slog.Warn("Failed to extract article content", "article_id", article.ID, "url", pageURL, "error", err)
		return nil
	}

	slog.Debug("Article crawled",
		"article_id", article.ID,
		"content_length", len(result.Content),
		"cover", result.CoverURL,
		"duration", time.Since(start))

	return result
}

func (c *Crawler) PageURL(article *database.Article) string {
	if article.Link != "" {
		return article.Link
	}
	if strings.Contains(c.opts.ArticleURL, "%s") {
		return fmt.Sprintf(c.opts.ArticleURL, url.PathEscape(article.ID))
	}
	return strings.TrimRight(c.opts.ArticleURL, "/") + "/" + url.PathEscape(article.ID)
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if c.opts.Referer != "" {
		req.Header.Set("Referer", c.opts.Referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return data, nil
}

// Rewrite extracts the article body from a rendered page, routes its images
// through the image cache and normalises its markup.
func (c *Crawler) Rewrite(ctx context.Context, pageURL string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("HTML data is empty")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	metaCover := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).AttrOr("content", ""))

	container := doc.Find(c.opts.ContentSelector).First()
	if container.Length() == 0 {
		container, err = extractWithReadability(pageURL, data)
		if err != nil {
			return nil, err
		}
	}

	firstImage := c.rewriteImages(ctx, container)

	cover := ""
	switch {
	case metaCover != "":
		cover = c.images.Get(ctx, metaCover)
	case firstImage != "":
		cover = firstImage
	}

	// Images that missed the deadline would be stored as remote links.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl interrupted: %w", err)
	}

	raw, err := container.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	content, err := c.restyle(c.policy.Sanitize(raw))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("no content extracted from HTML data")
	}

	return &Result{Content: content, CoverURL: cover}, nil
}

// rewriteImages points every image at its cached copy and drops the
// platform's lazy-loading attributes. It returns the first image reference.
func (c *Crawler) rewriteImages(ctx context.Context, container *goquery.Selection) string {
	imgs := container.Find("img")
	sources := make([]string, imgs.Length())
	imgs.Each(func(i int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("data-src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("src", ""))
		}
		sources[i] = src
	})

	refs := c.images.GetBatch(ctx, sources)

	first := ""
	imgs.Each(func(i int, s *goquery.Selection) {
		var drop []string
		for _, attr := range s.Nodes[0].Attr {
			if !imageKeepAttrs[attr.Key] {
				drop = append(drop, attr.Key)
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}

		if refs[i] == "" {
			s.Remove()
			return
		}
		s.SetAttr("src", refs[i])
		if first == "" {
			first = refs[i]
		}
	})

	return first
}

func (c *Crawler) restyle(sanitized string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + sanitized + "</div>"))
	if err != nil {
		return "", fmt.Errorf("failed to parse sanitized content: %w", err)
	}

	root := doc.Find("body > div").First()
	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if tag != "img" {
			s.RemoveAttr("style")
			s.RemoveAttr("id")
			s.RemoveAttr("class")
		}
		if style, ok := readabilityStyles[tag]; ok {
			s.SetAttr("style", style)
		}
	})

	return root.Html()
}

func extractWithReadability(pageURL string, data []byte) (*goquery.Selection, error) {
	parsed, _ := url.Parse(pageURL)

	article, err := readability.FromReader(bytes.NewReader(data), parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}
	if article.Content == "" {
		return nil, fmt.Errorf("no content extracted from HTML data")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse extracted content: %w", err)
	}

	slog.Debug("Content container missing, used readability",
		"url", pageURL,
		"title", article.Title,
		"content_length", len(article.Content))

	return doc.Find("body").First(), nil
}
