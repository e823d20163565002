package api

import (
	"cmp"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feed-mirror/app/accounts"
	"github.com/lysyi3m/feed-mirror/app/articles"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

const defaultFeedItems = 50

func NewHandler(feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	accountRepo database.AccountRepository, articleService ArticleService, engine SyncEngine,
	blocks AccountBlocks, images ImageCache, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		feedRepo:    feedRepo,
		articleRepo: articleRepo,
		accountRepo: accountRepo,
		generator:   feed.NewGenerator(),
		articles:    articleService,
		engine:      engine,
		blocks:      blocks,
		images:      images,
		scheduler:   scheduler,
		feedItems:   defaultFeedItems,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	feed, err := h.feedRepo.GetFeed(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if feed == nil {
		c.Status(http.StatusNotFound)
		return
	}

	items, err := h.articleRepo.ListArticles(id, h.feedItems)
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "feed", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*feed, items)
	if err != nil {
		slog.Error("RSS generation error", "feed", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-Id", id)
	c.Header("X-Last-Updated", feed.UpdatedAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":       time.Now().In(time.Local).Format(time.RFC3339),
		"refresh_running": h.engine.IsRefreshAllRunning(),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	if backfill := h.engine.InProgressBackfill(); backfill.FeedID != "" {
		health["backfill"] = backfill
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	list, err := h.feedRepo.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	feeds := make([]map[string]interface{}, 0, len(list))
	for _, f := range list {
		feedInfo := map[string]interface{}{
			"id":             f.ID,
			"name":           f.Name,
			"cover":          f.Cover,
			"intro":          f.Intro,
			"status":         f.Status,
			"last_sync_time": f.LastSyncTime,
			"has_history":    f.HasHistory,
			"updated_at":     f.UpdatedAt,
		}

		if count, err := h.articleRepo.CountArticles(f.ID); err == nil {
			feedInfo["article_count"] = count
		}

		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	feed, err := h.articles.AddFeed(c.Request.Context(), req.Link)
	if err != nil {
		slog.Error("Error adding feed", "link", req.Link, "error", err)
		c.JSON(statusForError(err), gin.H{"error": "Failed to add feed", "details": err.Error()})
		return
	}

	response := gin.H{"success": true, "feed": feed}

	task := tasks.NewRefreshFeedTask(feed.ID, h.engine)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Warn("Error enqueueing refresh task", "feed", feed.ID, "error", err)
	} else {
		response["task"] = gin.H{"id": task.ID, "type": task.Type}
	}

	c.JSON(http.StatusCreated, response)
}

// APIRefresh refreshes one feed when feed_id is given, otherwise starts a
// sweep over all feeds.
func (h *Handler) APIRefresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
	}
	if req.FeedID == "" {
		req.FeedID = c.Query("feed_id")
	}

	if req.FeedID != "" {
		h.enqueueFeedRefresh(c, req.FeedID)
		return
	}

	if h.engine.IsRefreshAllRunning() {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"running": true,
			"message": "Refresh sweep already running",
		})
		return
	}

	task := tasks.NewRefreshAllTask(h.engine)
	if !h.enqueue(c, task) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Refresh sweep enqueued",
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) APIRefreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.engine.IsRefreshAllRunning()})
}

func (h *Handler) APIRefreshFeed(c *gin.Context) {
	h.enqueueFeedRefresh(c, c.Param("id"))
}

func (h *Handler) APIBackfillFeed(c *gin.Context) {
	feed, ok := h.requireFeed(c, c.Param("id"))
	if !ok {
		return
	}

	if feed.HistoryExhausted() {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Feed history already complete",
		})
		return
	}

	task := tasks.NewBackfillTask(feed.ID, h.engine)
	if !h.enqueue(c, task) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Backfill enqueued",
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) APIBackfillStatus(c *gin.Context) {
	progress := h.engine.InProgressBackfill()
	c.JSON(http.StatusOK, gin.H{
		"running": progress.FeedID != "",
		"feed_id": progress.FeedID,
		"page":    progress.Page,
	})
}

func (h *Handler) APIGetArticle(c *gin.Context) {
	id := c.Param("id")

	article, err := h.articles.GetArticleContent(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, articles.ErrNotFound) {
			slog.Error("Error loading article", "article_id", id, "error", err)
		}
		c.JSON(statusForError(err), gin.H{"error": "Failed to load article", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           article.ID,
		"feed_id":      article.FeedID,
		"title":        article.Title,
		"link":         article.Link,
		"cover_url":    article.CoverURL,
		"publish_time": article.PublishTime,
		"content":      article.Content,
		"is_crawled":   article.IsCrawled,
		"ai_score":     article.AIScore,
		"ai_reason":    article.AIReason,
	})
}

func (h *Handler) APIListAccounts(c *gin.Context) {
	list, err := h.accountRepo.ListAccounts()
	if err != nil {
		slog.Error("Database error", "operation", "list_accounts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	blocked := h.blocks.Blocked()
	views := make([]accountView, 0, len(list))
	for _, a := range list {
		views = append(views, newAccountView(a, slices.Contains(blocked, a.ID)))
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": views,
		"total":    len(views),
	})
}

func (h *Handler) APICreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	account, err := h.accountRepo.CreateAccount(strings.TrimSpace(req.Name), strings.TrimSpace(req.Token))
	if err != nil {
		slog.Error("Database error", "operation", "create_account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	h.blocks.ClearBlock(account.ID)

	c.JSON(http.StatusCreated, newAccountView(*account, false))
}

// APIUpdateAccount edits a credential. Any block recorded today is lifted so
// the edited credential is tried again right away.
func (h *Handler) APIUpdateAccount(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account id"})
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	account, err := h.accountRepo.GetAccount(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	name := cmp.Or(strings.TrimSpace(req.Name), account.Name)
	token := cmp.Or(strings.TrimSpace(req.Token), account.Token)
	status := account.Status
	if req.Status != "" {
		status = database.AccountStatus(req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "details": req.Status})
			return
		}
	}

	if err := h.accountRepo.UpdateAccount(id, name, token, status); err != nil {
		slog.Error("Database error", "operation", "update_account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	h.blocks.ClearBlock(id)

	updated, err := h.accountRepo.GetAccount(id)
	if err != nil || updated == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, newAccountView(*updated, false))
}

func (h *Handler) APIClearImages(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("older_than_hours", "0"))
	if err != nil || hours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "older_than_hours must be a non-negative integer"})
		return
	}

	count, bytes, err := h.images.Clear(time.Duration(hours) * time.Hour)
	if err != nil {
		slog.Error("Error clearing image cache", "older_than_hours", hours, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear image cache", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": count,
		"bytes":   bytes,
	})
}

func (h *Handler) enqueueFeedRefresh(c *gin.Context, id string) {
	feed, ok := h.requireFeed(c, id)
	if !ok {
		return
	}

	task := tasks.NewRefreshFeedTask(feed.ID, h.engine)
	if !h.enqueue(c, task) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Feed refresh enqueued",
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) requireFeed(c *gin.Context, id string) (*database.Feed, bool) {
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed id parameter"})
		return nil, false
	}

	feed, err := h.feedRepo.GetFeed(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return nil, false
	}

	return feed, true
}

func (h *Handler) enqueue(c *gin.Context, task tasks.TaskInterface) bool {
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing task", "type", string(task.GetType()), "feed", task.GetFeedID(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue task",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, articles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, accounts.ErrNoAccountAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func newAccountView(a database.Account, blocked bool) accountView {
	return accountView{
		ID:           a.ID,
		Name:         a.Name,
		Token:        maskToken(a.Token),
		Status:       string(a.Status),
		BlockedToday: blocked,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
