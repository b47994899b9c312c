package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pesticrawl/cache"
	"github.com/use-agent/pesticrawl/crawler"
	"github.com/use-agent/pesticrawl/jobs"
	"github.com/use-agent/pesticrawl/models"
	"github.com/use-agent/pesticrawl/webhook"
)

// Crawls serves the asynchronous crawl endpoints. Each accepted request runs
// in its own goroutine under the base context given to NewCrawls.
type Crawls struct {
	ctx      context.Context
	runner   crawler.Runner
	strategy string
	jobs     *jobs.Store
	cache    cache.Store
	notifier *webhook.Notifier
	wg       sync.WaitGroup
}

// NewCrawls creates the crawl handlers. cc and notifier may be nil.
func NewCrawls(ctx context.Context, runner crawler.Runner, strategy string, store *jobs.Store, cc cache.Store, notifier *webhook.Notifier) *Crawls {
	return &Crawls{
		ctx:      ctx,
		runner:   runner,
		strategy: strategy,
		jobs:     store,
		cache:    cc,
		notifier: notifier,
	}
}

// Post returns a handler for POST /api/v1/crawls.
func (h *Crawls) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewCrawlError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		query := req.Query()
		if err := query.Validate(); err != nil {
			respondError(c, err)
			return
		}

		var cacheStatus string
		if h.cache != nil && req.MaxAge > 0 {
			key := cache.Key(query, h.strategy)
			maxAge := time.Duration(req.MaxAge) * time.Millisecond
			if cached, hit := h.cache.Get(c.Request.Context(), key, maxAge); hit {
				job := h.jobs.Create(query.ActiveIngredientName)
				job.Finish(cached)
				c.JSON(http.StatusOK, models.CrawlResponse{
					ID:          job.ID,
					Status:      cached.Status,
					CacheStatus: "hit",
				})
				return
			}
			cacheStatus = "miss"
		}

		job := h.jobs.Create(query.ActiveIngredientName)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.run(job, query, req.WebhookURL, req.WebhookSecret)
		}()

		c.JSON(http.StatusAccepted, models.CrawlResponse{
			ID:          job.ID,
			Status:      models.StatusProcessing,
			CacheStatus: cacheStatus,
		})
	}
}

// Get returns a handler for GET /api/v1/crawls/:id.
func (h *Crawls) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := h.jobs.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewCrawlError(models.ErrCodeNotFound, "crawl job not found", nil))
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// Wait blocks until every running crawl has returned.
func (h *Crawls) Wait() {
	h.wg.Wait()
}

func (h *Crawls) run(job *jobs.Job, query models.SearchQuery, hookURL, hookSecret string) {
	start := time.Now()
	var stream *webhook.Stream
	if hookURL != "" && h.notifier != nil {
		stream = h.notifier.Stream(hookURL, hookSecret)
		defer stream.Close()
	}
	notify := func(eventType string, data any) {
		if stream != nil {
			stream.Send(webhook.NewEvent(eventType, job.ID, data))
		}
	}

	sink := func(ev models.ProgressEvent) {
		job.Progress(ev)
		notify(webhook.EventCrawlPage, ev)
	}

	res, err := h.runner.Run(h.ctx, query, sink)
	if err != nil {
		detail := asCrawlError(err).ToDetail()
		job.Fail(detail)
		notify(webhook.EventCrawlFailed, detail)
		slog.Warn("crawl job failed", "job_id", job.ID, "query", query.ActiveIngredientName, "error", err)
		return
	}

	summary := &models.CrawlSummary{
		Query:             query.ActiveIngredientName,
		Status:            res.Status(),
		PageNumber:        res.Pages,
		TotalItemsScraped: res.TotalItemsScraped,
		Terminal:          string(res.Terminal),
		Records:           res.Records,
		DurationMs:        time.Since(start).Milliseconds(),
	}
	job.Finish(summary)

	if h.cache != nil && summary.Status == models.StatusCompleted {
		h.cache.Set(context.WithoutCancel(h.ctx), cache.Key(query, h.strategy), summary)
	}
	notify(webhook.EventCrawlCompleted, summary)

	slog.Info("crawl job finished",
		"job_id", job.ID,
		"status", summary.Status,
		"items", summary.TotalItemsScraped,
		"duration_ms", summary.DurationMs,
	)
}
