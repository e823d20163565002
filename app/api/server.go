package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type ServerOptions struct {
	APIAccessKey    string
	ImagePublicPath string
	ImageDir        string
	Version         string
}

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, opts ServerOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, opts)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, opts ServerOptions) {
	r.GET("/feeds/:id", handler.GetFeed)
	r.GET("/health", handler.GetHealth)

	if opts.ImageDir != "" && opts.ImagePublicPath != "" {
		r.Static(opts.ImagePublicPath, opts.ImageDir)
	}

	if opts.APIAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(opts.APIAccessKey))
		{
			api.GET("/feeds", handler.APIListFeeds)
			api.POST("/feeds", handler.APIAddFeed)
			api.GET("/feeds/refresh", handler.APIRefreshStatus)
			api.POST("/feeds/refresh", handler.APIRefresh)
			api.POST("/feeds/:id/refresh", handler.APIRefreshFeed)
			api.POST("/feeds/:id/backfill", handler.APIBackfillFeed)
			api.GET("/backfill", handler.APIBackfillStatus)

			api.GET("/articles/:id", handler.APIGetArticle)

			api.GET("/accounts", handler.APIListAccounts)
			api.POST("/accounts", handler.APICreateAccount)
			api.PUT("/accounts/:id", handler.APIUpdateAccount)

			api.DELETE("/images", handler.APIClearImages)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"feed":   "/feeds/<id>",
			"health": "/health",
			"images": opts.ImagePublicPath + "/<file>",
		}

		if opts.APIAccessKey != "" {
			endpoints["feeds"] = "/api/feeds (GET, POST)"
			endpoints["refresh"] = "/api/feeds/refresh (GET, POST)"
			endpoints["backfill"] = "/api/feeds/<id>/backfill (POST)"
			endpoints["articles"] = "/api/articles/<id>"
			endpoints["accounts"] = "/api/accounts (GET, POST), /api/accounts/<id> (PUT)"
			endpoints["images_cleanup"] = "/api/images?older_than_hours=N (DELETE)"
		}

		c.JSON(200, gin.H{
			"service":     "Feed Mirror",
			"version":     opts.Version,
			"description": "Mirror of rate-limited upstream feeds with history backfill and image caching",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       opts.APIAccessKey != "",
				"auth_required": opts.APIAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
