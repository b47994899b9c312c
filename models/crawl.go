package models

// CrawlRequest is the payload for POST /api/v1/crawls.
type CrawlRequest struct {
	// ActiveIngredient is the English active ingredient name to search for. Required.
	ActiveIngredient string `json:"active_ingredient" binding:"required"`

	// MaxAge allows serving a cached result younger than MaxAge milliseconds.
	// 0 (default) always starts a fresh crawl.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Query converts the request into the crawler's input.
func (r *CrawlRequest) Query() SearchQuery {
	return SearchQuery{ActiveIngredientName: r.ActiveIngredient}
}

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// CrawlResponse is the immediate response for POST /api/v1/crawls.
type CrawlResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CacheStatus string `json:"cache_status,omitempty"`
}

// CrawlStatusResponse is the response for GET /api/v1/crawls/:id.
type CrawlStatusResponse struct {
	ID                string       `json:"id"`
	Query             string       `json:"query"`
	Status            string       `json:"status"`
	PageNumber        int          `json:"page_number"`
	TotalItemsScraped int          `json:"total_items_scraped"`
	Terminal          string       `json:"terminal,omitempty"`
	Records           []Record     `json:"records,omitempty"`
	Error             *ErrorDetail `json:"error,omitempty"`
}

// CrawlSummary is what a finished crawl hands to the job store, the cache
// and webhook consumers.
type CrawlSummary struct {
	Query             string   `json:"query"`
	Status            string   `json:"status"`
	PageNumber        int      `json:"page_number"`
	TotalItemsScraped int      `json:"total_items_scraped"`
	Terminal          string   `json:"terminal,omitempty"`
	Records           []Record `json:"records"`
	DurationMs        int64    `json:"duration_ms"`
}
