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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/use-agent/pesticrawl/api"
	"github.com/use-agent/pesticrawl/api/handler"
	"github.com/use-agent/pesticrawl/cache"
	"github.com/use-agent/pesticrawl/config"
	"github.com/use-agent/pesticrawl/crawler"
	"github.com/use-agent/pesticrawl/jobs"
	"github.com/use-agent/pesticrawl/models"
	"github.com/use-agent/pesticrawl/scraper"
	"github.com/use-agent/pesticrawl/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	// A missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("pesticrawl starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"strategy", cfg.Crawl.Strategy,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	// Canceled on shutdown; running crawls stop at the next page boundary.
	baseCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── 3. Initialise the crawl runner ──────────────────────────────
	runner, stats, closeRunner, err := newRunner(cfg)
	if err != nil {
		slog.Error("failed to initialise crawler", "error", err)
		os.Exit(1)
	}
	defer closeRunner()

	// ── 4. Initialise cache, job store and webhooks ─────────────────
	cc := newCache(baseCtx, cfg.Cache)
	store := jobs.NewStore(baseCtx, time.Hour)
	notifier := webhook.New(cfg.Webhook.Timeout)
	crawls := handler.NewCrawls(baseCtx, runner, cfg.Crawl.Strategy, store, cc, notifier)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(baseCtx, cfg, crawls, stats, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	stop()
	if !waitTimeout(crawls.Wait, 30*time.Second) {
		slog.Warn("crawls still running at shutdown")
	}
	if !waitTimeout(notifier.Wait, 5*time.Second) {
		slog.Warn("webhook deliveries abandoned at shutdown")
	}

	// closeRunner runs via defer and kills Chrome.
	slog.Info("pesticrawl stopped")
}

// newRunner builds the runner for the configured strategy along with its
// health stats and cleanup.
func newRunner(cfg *config.Config) (crawler.Runner, func() models.BrowserStats, func(), error) {
	switch cfg.Crawl.Strategy {
	case config.StrategyHTTP:
		fetcher := scraper.NewHTTPFetcher(cfg.Crawl.BaseURL, cfg.Browser.DefaultProxy, cfg.Crawl.NavigationTimeout)
		stats := func() models.BrowserStats {
			return models.BrowserStats{Strategy: config.StrategyHTTP}
		}
		return crawler.NewFlatRunner(fetcher, cfg.Crawl), stats, func() {}, nil

	case config.StrategyBrowser:
		sel := crawler.DefaultSelectors()
		if err := sel.Validate(); err != nil {
			return nil, nil, nil, err
		}
		browser, err := scraper.NewBrowser(cfg.Browser)
		if err != nil {
			return nil, nil, nil, err
		}
		return crawler.New(browser, sel, cfg.Crawl), browser.Stats, browser.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown crawl strategy %q", cfg.Crawl.Strategy)
	}
}

// newCache uses Redis when configured and reachable, memory otherwise.
func newCache(ctx context.Context, cfg config.CacheConfig) cache.Store {
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedis(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err == nil {
			slog.Info("result cache backed by redis", "addr", cfg.RedisAddr)
			return rc
		}
		slog.Warn("redis unavailable, falling back to memory cache", "addr", cfg.RedisAddr, "error", err)
	}
	return cache.NewMemory(ctx, cfg.MaxEntries, cfg.TTL)
}

func waitTimeout(wait func(), d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "tint":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
