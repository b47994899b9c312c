package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/pesticrawl/config"
	"github.com/use-agent/pesticrawl/crawler"
	"github.com/use-agent/pesticrawl/metrics"
	"github.com/use-agent/pesticrawl/models"
)

// Viewport of every crawl page. The result table collapses on narrow layouts.
const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// Browser owns the Chrome process and hands out one incognito session per
// crawl. It is safe for concurrent use.
type Browser struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
	slots   chan struct{}
	active  atomic.Int32
}

// NewBrowser launches Chrome with the stealth flag set and connects to it.
func NewBrowser(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeSession, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeSession, "failed to connect to browser", err)
	}

	maxSessions := cfg.MaxSessions
	if maxSessions < 1 {
		maxSessions = 1
	}

	return &Browser{
		browser: browser,
		cfg:     cfg,
		slots:   make(chan struct{}, maxSessions),
	}, nil
}

// NewSession blocks until a session slot is free, then opens an incognito
// context with a single prepared page.
func (b *Browser) NewSession(ctx context.Context) (crawler.Session, error) {
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s, err := b.openSession()
	if err != nil {
		<-b.slots
		return nil, err
	}

	b.active.Add(1)
	metrics.ActiveSessions.Inc()
	s.release = func() {
		b.active.Add(-1)
		metrics.ActiveSessions.Dec()
		<-b.slots
	}
	return s, nil
}

func (b *Browser) openSession() (*Session, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, err
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, err
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  viewportWidth,
		Height: viewportHeight,
	}); err != nil {
		slog.Warn("viewport override failed", "error", err)
	}

	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9,zh-CN;q=0.8",
		}),
	}.Call(page)

	return &Session{
		incognito: incognito,
		page:      page,
		router:    setupHijack(page, b.cfg.BlockedResourceTypes),
	}, nil
}

// Stats returns a snapshot of session usage.
func (b *Browser) Stats() models.BrowserStats {
	return models.BrowserStats{
		MaxSessions:    cap(b.slots),
		ActiveSessions: int(b.active.Load()),
		Strategy:       config.StrategyBrowser,
	}
}

// Close kills the browser process. Call this on graceful shutdown to prevent
// zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}
