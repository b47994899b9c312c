package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/pesticrawl/config"
	"github.com/use-agent/pesticrawl/metrics"
	"github.com/use-agent/pesticrawl/models"
)

// ProgressSink receives one event per completed page, in page order. It is
// called on the crawl goroutine and must not block for long.
type ProgressSink func(models.ProgressEvent)

// Runner is anything that turns a query into records.
type Runner interface {
	Run(ctx context.Context, query models.SearchQuery, sink ProgressSink) (*Result, error)
}

// Terminal names the condition that ended a crawl.
type Terminal string

const (
	TerminalLastPage        Terminal = "last_page"
	TerminalDisabled        Terminal = "next_disabled"
	TerminalStalled         Terminal = "stalled"
	TerminalPaginationError Terminal = "pagination_error"
	TerminalPageLimit       Terminal = "page_limit"
	TerminalCanceled        Terminal = "canceled"
	TerminalFault           Terminal = "fault"
	TerminalSearchFailed    Terminal = "search_failed"
)

// Result is the outcome of one crawl.
type Result struct {
	// Records are in page order, then row-slot order.
	Records []models.Record

	Pages             int
	TotalItemsScraped int
	RowsFailed        int

	Terminal Terminal

	// Fault is the cause of a crawl cut short by cancellation or a panic
	// in the driver. It is never returned as an error.
	Fault error
}

// Complete reports whether the crawl reached the last page without losing rows.
func (r *Result) Complete() bool {
	switch r.Terminal {
	case TerminalLastPage, TerminalDisabled, TerminalStalled:
		return r.RowsFailed == 0
	}
	return false
}

// Status maps the result onto a job status.
func (r *Result) Status() string {
	switch {
	case r.Terminal == TerminalSearchFailed:
		return models.StatusFailed
	case r.Complete():
		return models.StatusCompleted
	default:
		return models.StatusPartial
	}
}

func terminalFor(a AdvanceResult) Terminal {
	switch a.Outcome {
	case AdvanceNoNext:
		return TerminalLastPage
	case AdvanceDisabled:
		return TerminalDisabled
	case AdvanceStalled:
		return TerminalStalled
	default:
		return TerminalPaginationError
	}
}

// Crawler drives the overlay-based crawl: search, scan rows page by page,
// paginate until the listing ends.
type Crawler struct {
	sessions SessionFactory
	sel      Selectors
	cfg      config.CrawlConfig
}

// New creates a Crawler. Zero timeouts in cfg fall back to the defaults.
func New(sessions SessionFactory, sel Selectors, cfg config.CrawlConfig) *Crawler {
	return &Crawler{
		sessions: sessions,
		sel:      sel,
		cfg:      withDefaults(cfg),
	}
}

func withDefaults(cfg config.CrawlConfig) config.CrawlConfig {
	if cfg.RowTimeout <= 0 {
		cfg.RowTimeout = 5 * time.Second
	}
	if cfg.OverlayTimeout <= 0 {
		cfg.OverlayTimeout = 10 * time.Second
	}
	if cfg.PaginationTimeout <= 0 {
		cfg.PaginationTimeout = 20 * time.Second
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return cfg
}

// Run performs one crawl for query.
//
// States: Init → SearchSubmitted → {ScrapingPage ⇄ Paginating}* → Done.
// Only a failure before SearchSubmitted is returned as an error; in that
// case the result holds no records. Anything that goes wrong later ends the
// crawl with the records gathered so far. The session is always closed.
func (c *Crawler) Run(ctx context.Context, query models.SearchQuery, sink ProgressSink) (*Result, error) {
	start := time.Now()
	res := &Result{Records: []models.Record{}}
	defer func() {
		metrics.CrawlsTotal.WithLabelValues(config.StrategyBrowser, string(res.Terminal)).Inc()
		metrics.CrawlDuration.WithLabelValues(config.StrategyBrowser).Observe(time.Since(start).Seconds())
	}()

	// ── Init ────────────────────────────────────────────────────────
	session, err := c.sessions.NewSession(ctx)
	if err != nil {
		res.Terminal = TerminalSearchFailed
		return res, models.NewCrawlError(models.ErrCodeSession, "failed to open browser session", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			slog.Warn("failed to close browser session", "error", closeErr)
		}
	}()

	// ── Init → SearchSubmitted ──────────────────────────────────────
	if err := c.submitSearch(ctx, session, query); err != nil {
		res.Terminal = TerminalSearchFailed
		slog.Error("search submission failed",
			"query", query.ActiveIngredientName,
			"error", err,
		)
		return res, err
	}

	// ── ScrapingPage ⇄ Paginating → Done ────────────────────────────
	c.crawlPages(ctx, session, sink, res)

	slog.Info("crawl finished",
		"query", query.ActiveIngredientName,
		"pages", res.Pages,
		"total", res.TotalItemsScraped,
		"failedRows", res.RowsFailed,
		"terminal", res.Terminal,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return res, nil
}

func (c *Crawler) submitSearch(ctx context.Context, s Session, query models.SearchQuery) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()

	if err := s.Navigate(navCtx, c.cfg.BaseURL); err != nil {
		return categorizeError(err, models.ErrCodeNavigation, "failed to load the search page")
	}
	if err := s.Fill(navCtx, c.sel.SearchInput, query.ActiveIngredientName); err != nil {
		return models.NewCrawlError(models.ErrCodeSearchFailed, "failed to fill the search form", err)
	}
	if err := s.Click(navCtx, c.sel.SearchSubmit); err != nil {
		return models.NewCrawlError(models.ErrCodeSearchFailed, "failed to submit the search form", err)
	}
	return nil
}

// crawlPages is the page loop. The state lives here and is folded into res
// on every exit path, including a panic raised by the driver.
func (c *Crawler) crawlPages(ctx context.Context, s Session, sink ProgressSink, res *Result) {
	state := models.NewCrawlState()
	pages := 0

	defer func() {
		res.Records = state.Records
		res.TotalItemsScraped = state.TotalItemsScraped
		res.Pages = pages
		if r := recover(); r != nil {
			res.Terminal = TerminalFault
			res.Fault = fmt.Errorf("crawl aborted: %v", r)
			slog.Error("crawl aborted, returning partial results",
				"page", state.CurrentPage,
				"total", state.TotalItemsScraped,
				"error", res.Fault,
			)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			res.Terminal, res.Fault = TerminalCanceled, err
			return
		}

		page := c.scrapePage(ctx, s)
		pages++
		state.AddPage(page.Records)
		res.RowsFailed += page.Failed
		metrics.PagesTotal.WithLabelValues(config.StrategyBrowser).Inc()

		slog.Info("page scraped",
			"page", state.CurrentPage,
			"items", page.Count(),
			"failed", page.Failed,
			"total", state.TotalItemsScraped,
		)
		if sink != nil {
			sink(state.Progress())
		}

		if err := ctx.Err(); err != nil {
			res.Terminal, res.Fault = TerminalCanceled, err
			return
		}
		if c.cfg.MaxPages > 0 && pages >= c.cfg.MaxPages {
			res.Terminal = TerminalPageLimit
			return
		}

		adv := c.advance(ctx, s)
		if !adv.Moved() {
			if err := ctx.Err(); err != nil {
				res.Terminal, res.Fault = TerminalCanceled, err
				return
			}
			res.Terminal = terminalFor(adv)
			if adv.Err != nil {
				slog.Warn("pagination failed, treating page as the last one",
					"page", state.CurrentPage,
					"error", adv.Err,
				)
			}
			return
		}
		state.CurrentPage++
		slog.Debug("moved to next page", "from", adv.From, "to", adv.To)
	}
}

// categorizeError wraps raw errors into typed CrawlErrors.
func categorizeError(err error, code, msg string) *models.CrawlError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCrawlError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCrawlError(models.ErrCodeTimeout, "crawl canceled", err)
	default:
		return models.NewCrawlError(code, msg, err)
	}
}
