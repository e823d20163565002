package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/feed-mirror/app/cfg"
	"github.com/lysyi3m/feed-mirror/app/database"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders a mirrored feed as RSS 2.0. Crawled bodies go into
// content:encoded with cached image references made absolute.
func (g *Generator) Run(feed database.Feed, articles []database.Article) (string, error) {
	var buf bytes.Buffer

	baseURL := g.baseURL()
	selfLink := fmt.Sprintf("%s/feeds/%s", baseURL, feed.ID)

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	title := feed.Name
	if title == "" {
		title = feed.ID
	}
	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", selfLink, 4)
	description := feed.Intro
	if description == "" {
		description = fmt.Sprintf("Mirrored feed %s", feed.ID)
	}
	g.writeElement(&buf, "description", description, 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if feed.LastSyncTime != nil {
		lastBuildDate = *feed.LastSyncTime
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Feed-Mirror/%s", cfg.Get().Version), 4)

	if feed.Cover != "" {
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", g.absolute(feed.Cover, baseURL), 6)
		g.writeElement(&buf, "title", title, 6)
		g.writeElement(&buf, "link", selfLink, 6)
		buf.WriteString("    </image>\n")
	}

	for _, article := range articles {
		g.writeItem(&buf, article, baseURL)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, article database.Article, baseURL string) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(article.ID)))
	xml.EscapeText(buf, []byte(article.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", article.Title, 6)
	g.writeElement(buf, "link", article.Link, 6)

	description := article.Title
	if article.CoverURL != "" {
		description = fmt.Sprintf(`<img src="%s" alt="" /><p>%s</p>`,
			html.EscapeString(g.absolute(article.CoverURL, baseURL)), html.EscapeString(article.Title))
	}
	g.writeElement(buf, "description", description, 6)

	if article.Content != nil && *article.Content != "" {
		content := strings.ReplaceAll(*article.Content, "]]>", "]]]]><![CDATA[>")
		content = g.absoluteImages(content, baseURL)
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(content)
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", article.PublishTime.Format(time.RFC1123Z), 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) baseURL() string {
	if cfg.Get().BaseUrl != "" {
		return strings.TrimRight(cfg.Get().BaseUrl, "/")
	}
	return fmt.Sprintf("http://localhost:%s", cfg.Get().Port)
}

// absolute turns a cached image reference into a URL feed readers can load.
func (g *Generator) absolute(ref, baseURL string) string {
	if ref == "" || g.isURL(ref) || !strings.HasPrefix(ref, "/") {
		return ref
	}
	return baseURL + ref
}

func (g *Generator) absoluteImages(content, baseURL string) string {
	prefix := strings.TrimRight(cfg.Get().ImagePublicPath, "/") + "/"
	return strings.ReplaceAll(content, `src="`+prefix, `src="`+baseURL+prefix)
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
