package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/feed-mirror/app/database"
)

const maxBodySize = 4 << 20

// Credential identifies the pooled account a request is made with.
type Credential struct {
	AccountID int64
	Token     string
}

// FeedInfo is the feed metadata returned when resolving a share link.
type FeedInfo struct {
	ID    string
	Name  string
	Cover string
	Intro string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

func NewClient(baseURL string, timeout time.Duration, userAgent string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

type articleDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Cover       string `json:"cover"`
	PublishTime int64  `json:"publish_time"`
}

type listResponse struct {
	Error    string        `json:"error"`
	Articles *[]articleDTO `json:"articles"`
}

type feedDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cover string `json:"cover"`
	Intro string `json:"intro"`
}

type resolveResponse struct {
	Error string   `json:"error"`
	Feed  *feedDTO `json:"feed"`
}

// ListArticles fetches one page (1-based) of a feed's article listing.
func (c *Client) ListArticles(ctx context.Context, cred Credential, feedID string, page int) ([]database.ArticleSummary, error) {
	query := url.Values{}
	query.Set("feed", feedID)
	query.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/articles?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, cred)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: DataAnomaly, Status: http.StatusOK, Message: "undecodable article listing", Err: err}
	}
	if resp.Error != "" {
		return nil, &Error{Kind: classifyBody(0, resp.Error), Status: http.StatusOK, Message: resp.Error}
	}
	if resp.Articles == nil {
		return nil, &Error{Kind: DataAnomaly, Status: http.StatusOK, Message: "article listing has no articles field"}
	}

	articles := make([]database.ArticleSummary, 0, len(*resp.Articles))
	for i, a := range *resp.Articles {
		if a.ID == "" {
			return nil, &Error{Kind: DataAnomaly, Status: http.StatusOK, Message: fmt.Sprintf("article at index %d has no id", i)}
		}
		articles = append(articles, database.ArticleSummary{
			ID:          a.ID,
			Title:       norm.NFC.String(strings.TrimSpace(a.Title)),
			Link:        a.Link,
			CoverURL:    a.Cover,
			PublishTime: time.Unix(a.PublishTime, 0).UTC(),
		})
	}

	return articles, nil
}

// ResolveLink turns an article or profile share link into feed metadata.
func (c *Client) ResolveLink(ctx context.Context, cred Credential, link string) (*FeedInfo, error) {
	payload, err := json.Marshal(map[string]string{"link": link})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolve-link", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, cred)
	if err != nil {
		return nil, err
	}

	var resp resolveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: DataAnomaly, Status: http.StatusOK, Message: "undecodable resolve response", Err: err}
	}
	if resp.Error != "" {
		return nil, &Error{Kind: classifyBody(0, resp.Error), Status: http.StatusOK, Message: resp.Error}
	}
	if resp.Feed == nil || resp.Feed.ID == "" {
		return nil, &Error{Kind: DataAnomaly, Status: http.StatusOK, Message: "resolve response has no feed id"}
	}

	return &FeedInfo{
		ID:    resp.Feed.ID,
		Name:  norm.NFC.String(strings.TrimSpace(resp.Feed.Name)),
		Cover: resp.Feed.Cover,
		Intro: norm.NFC.String(resp.Feed.Intro),
	}, nil
}

// do sends req with the credential headers and returns the body of a 200
// response. Every other outcome is returned as a classified *Error.
func (c *Client) do(req *http.Request, cred Credential) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("X-Account-Id", strconv.FormatInt(cred.AccountID, 10))
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &Error{Kind: NetworkOrTimeout, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Kind: NetworkOrTimeout, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		text := strings.TrimSpace(string(body))
		kind := classifyBody(resp.StatusCode, text)
		if len(text) > 200 {
			text = text[:200]
		}
		return nil, &Error{Kind: kind, Status: resp.StatusCode, Message: text}
	}

	return body, nil
}
