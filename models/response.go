package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	BrowserStats BrowserStats `json:"browser_stats"`
	Version      string       `json:"version"`
}

// BrowserStats reports how many isolated crawl sessions are open.
type BrowserStats struct {
	MaxSessions    int    `json:"max_sessions"`
	ActiveSessions int    `json:"active_sessions"`
	Strategy       string `json:"strategy"`
}

// ErrorResponse wraps an ErrorDetail for endpoints without a richer body.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}
