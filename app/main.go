package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/feed-mirror/app/accounts"
	"github.com/lysyi3m/feed-mirror/app/api"
	"github.com/lysyi3m/feed-mirror/app/articles"
	"github.com/lysyi3m/feed-mirror/app/cfg"
	"github.com/lysyi3m/feed-mirror/app/crawler"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/images"
	"github.com/lysyi3m/feed-mirror/app/mirror"
	"github.com/lysyi3m/feed-mirror/app/seed"
	"github.com/lysyi3m/feed-mirror/app/tasks"
	"github.com/lysyi3m/feed-mirror/app/upstream"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Feed Mirror", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database", "path", appCfg.DBPath)

	accountRepo := database.NewAccountRepository(db)
	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)

	if appCfg.SeedFile != "" {
		seedFile, err := seed.Load(appCfg.SeedFile)
		if err != nil {
			slog.Error("Failed to load seed file", "path", appCfg.SeedFile, "error", err)
			os.Exit(1)
		}
		if _, err := seed.Apply(seedFile, accountRepo, feedRepo); err != nil {
			slog.Error("Failed to apply seed file", "path", appCfg.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	pool := accounts.NewPool(accountRepo, accounts.NewMemoryBlocklist(), appCfg.GetBlocklistLocation())
	client := upstream.NewClient(appCfg.UpstreamURL, appCfg.GetUpstreamTimeout(), appCfg.UserAgent)

	imageCache, err := images.NewCache(images.Options{
		Dir:        appCfg.ImageDir,
		PublicPath: appCfg.ImagePublicPath,
		Referer:    appCfg.ImageReferer,
		UserAgent:  appCfg.UserAgent,
		Timeout:    appCfg.GetUpstreamTimeout(),
		BatchSize:  appCfg.ImageBatchSize,
		BatchPause: appCfg.GetImageBatchPause(),
	})
	if err != nil {
		slog.Error("Failed to initialise image cache", "dir", appCfg.ImageDir, "error", err)
		os.Exit(1)
	}

	engine := mirror.NewEngine(pool, client, feedRepo, articleRepo, imageCache, mirror.NewMemoryState(), mirror.Settings{
		PageSize:         appCfg.PageSize,
		Delay:            appCfg.GetSyncDelay(),
		PageAttempts:     appCfg.PageAttempts,
		MalformedPause:   appCfg.GetMalformedPause(),
		MaxBackfillPages: appCfg.MaxBackfillPages,
	})

	articleCrawler := crawler.New(imageCache, crawler.Options{
		ArticleURL:      appCfg.ArticleURL,
		ContentSelector: appCfg.ContentSelector,
		UserAgent:       appCfg.UserAgent,
		Referer:         appCfg.ImageReferer,
		Timeout:         appCfg.GetUpstreamTimeout(),
	})
	articleService := articles.NewService(articleRepo, feedRepo, articleCrawler, pool, client,
		articles.WithCrawlTimeout(appCfg.GetCrawlTimeout()))

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", time.Duration(appCfg.SchedulerInterval)*time.Second)
	scheduler := tasks.NewScheduler(engine, imageCache)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(feedRepo, articleRepo, accountRepo, articleService, engine, pool, imageCache, scheduler)
	server := api.NewServer(handler, api.ServerOptions{
		APIAccessKey:    appCfg.APIAccessKey,
		ImagePublicPath: appCfg.ImagePublicPath,
		ImageDir:        appCfg.ImageDir,
		Version:         appCfg.Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appCfg.GetCrawlTimeout() + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler and database are closed via defer
	slog.Info("Feed Mirror shutdown complete")
}
