package crawler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/pesticrawl/config"
	"github.com/use-agent/pesticrawl/extract"
	"github.com/use-agent/pesticrawl/metrics"
	"github.com/use-agent/pesticrawl/models"
)

// ListingFetcher returns the server-rendered HTML of one flat result page.
type ListingFetcher interface {
	FetchListing(ctx context.Context, query string, page int) (string, error)
}

// FlatRunner reaches the same records as Crawler through the flat,
// server-rendered listing, where every row already carries all fields and no
// overlay has to be opened. It reports progress and results the same way.
type FlatRunner struct {
	fetcher  ListingFetcher
	maxPages int
	limiter  *rate.Limiter
}

// NewFlatRunner creates a FlatRunner that waits cfg.PageDelay between pages.
func NewFlatRunner(fetcher ListingFetcher, cfg config.CrawlConfig) *FlatRunner {
	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	return &FlatRunner{
		fetcher:  fetcher,
		maxPages: cfg.MaxPages,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Run fetches listing pages until the page count read from page one is
// exhausted. Like Crawler.Run, only a failure on the first page is returned
// as an error.
func (r *FlatRunner) Run(ctx context.Context, query models.SearchQuery, sink ProgressSink) (*Result, error) {
	start := time.Now()
	res := &Result{Records: []models.Record{}}
	defer func() {
		metrics.CrawlsTotal.WithLabelValues(config.StrategyHTTP, string(res.Terminal)).Inc()
		metrics.CrawlDuration.WithLabelValues(config.StrategyHTTP).Observe(time.Since(start).Seconds())
	}()

	state := models.NewCrawlState()
	totalPages := 1

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Terminal, res.Fault = TerminalCanceled, err
			break
		}

		html, err := r.fetcher.FetchListing(ctx, query.ActiveIngredientName, state.CurrentPage)
		var page *extract.ListingPage
		if err == nil {
			page, err = extract.ParseListing(html)
		}
		if err != nil {
			if res.Pages == 0 {
				res.Terminal = TerminalSearchFailed
				slog.Error("listing search failed", "query", query.ActiveIngredientName, "error", err)
				return res, models.NewCrawlError(models.ErrCodeSearchFailed, "failed to fetch the first listing page", err)
			}
			slog.Warn("listing page failed, returning partial results",
				"page", state.CurrentPage,
				"error", err,
			)
			res.Terminal, res.Fault = TerminalFault, err
			break
		}

		if res.Pages == 0 {
			totalPages = page.TotalPages
		}
		res.Pages++
		state.AddPage(page.Records)
		metrics.PagesTotal.WithLabelValues(config.StrategyHTTP).Inc()
		metrics.RowsTotal.WithLabelValues(string(RowScraped)).Add(float64(len(page.Records)))

		slog.Info("listing page scraped",
			"page", state.CurrentPage,
			"of", totalPages,
			"items", len(page.Records),
			"total", state.TotalItemsScraped,
		)
		if sink != nil {
			sink(state.Progress())
		}

		if state.CurrentPage >= totalPages {
			res.Terminal = TerminalLastPage
			break
		}
		if r.maxPages > 0 && res.Pages >= r.maxPages {
			res.Terminal = TerminalPageLimit
			break
		}
		state.CurrentPage++
	}

	res.Records = state.Records
	res.TotalItemsScraped = state.TotalItemsScraped
	return res, nil
}
