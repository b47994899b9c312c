package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Crawl     CrawlConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions caps concurrent crawls; each crawl owns one incognito context.
	MaxSessions int // default: 4

	// DefaultProxy is the proxy URL for browser and HTTP traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects navigator.webdriver masking into every session.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// Crawl strategies.
const (
	StrategyBrowser = "browser"
	StrategyHTTP    = "http"
)

// CrawlConfig controls the crawl state machine.
type CrawlConfig struct {
	// BaseURL is the search page of the registration database.
	BaseURL string

	// Strategy is "browser" (overlay crawl) or "http" (flat listing).
	Strategy string // default: "browser"

	// RowTimeout bounds the wait for a row slot's link to appear.
	RowTimeout time.Duration // default: 5s

	// OverlayTimeout bounds the wait for a detail overlay to open or close.
	OverlayTimeout time.Duration // default: 10s

	// PaginationTimeout bounds the wait for the active page indicator to advance.
	PaginationTimeout time.Duration // default: 20s

	// NavigationTimeout bounds the initial page load and search submission.
	NavigationTimeout time.Duration // default: 30s

	// PollInterval is the polling period of every bounded wait.
	PollInterval time.Duration // default: 100ms

	// MaxPages stops a crawl after this many pages. 0 means no limit.
	MaxPages int

	// PageDelay is the pause between listing requests on the http strategy.
	PageDelay time.Duration // default: 1s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the crawl result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results (in-memory store).
	MaxEntries int // default: 200

	// TTL is how long a result is kept before it is evicted.
	TTL time.Duration // default: 1h

	// RedisAddr switches the cache to Redis when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json", "text" or "tint" (colored, for terminals); default: "json"
}

// WebhookConfig controls crawl event delivery.
type WebhookConfig struct {
	// Timeout is the per-attempt delivery deadline.
	Timeout time.Duration // default: 10s
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PESTICRAWL_HOST", "0.0.0.0"),
			Port: envIntOr("PESTICRAWL_PORT", 8080),
			Mode: envOr("PESTICRAWL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("PESTICRAWL_HEADLESS", true),
			MaxSessions:  envIntOr("PESTICRAWL_MAX_SESSIONS", 4),
			DefaultProxy: os.Getenv("PESTICRAWL_PROXY"),
			NoSandbox:    envBoolOr("PESTICRAWL_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("PESTICRAWL_BROWSER_BIN"),
			Stealth:      envBoolOr("PESTICRAWL_STEALTH", true),
			BlockedResourceTypes: envSliceOr("PESTICRAWL_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Crawl: CrawlConfig{
			BaseURL:           envOr("PESTICRAWL_BASE_URL", "https://www.icama.cn/BasicdataSystem/pesticideRegistrationEn/queryselect_en.do"),
			Strategy:          envOr("PESTICRAWL_STRATEGY", StrategyBrowser),
			RowTimeout:        envDurationOr("PESTICRAWL_ROW_TIMEOUT", 5*time.Second),
			OverlayTimeout:    envDurationOr("PESTICRAWL_OVERLAY_TIMEOUT", 10*time.Second),
			PaginationTimeout: envDurationOr("PESTICRAWL_PAGINATION_TIMEOUT", 20*time.Second),
			NavigationTimeout: envDurationOr("PESTICRAWL_NAV_TIMEOUT", 30*time.Second),
			PollInterval:      envDurationOr("PESTICRAWL_POLL_INTERVAL", 100*time.Millisecond),
			MaxPages:          envIntOr("PESTICRAWL_MAX_PAGES", 0),
			PageDelay:         envDurationOr("PESTICRAWL_PAGE_DELAY", time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PESTICRAWL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PESTICRAWL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PESTICRAWL_RATE_RPS", 1.0),
			Burst:             envIntOr("PESTICRAWL_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries:    envIntOr("PESTICRAWL_CACHE_MAX_ENTRIES", 200),
			TTL:           envDurationOr("PESTICRAWL_CACHE_TTL", time.Hour),
			RedisAddr:     os.Getenv("PESTICRAWL_REDIS_ADDR"),
			RedisPassword: os.Getenv("PESTICRAWL_REDIS_PASSWORD"),
			RedisDB:       envIntOr("PESTICRAWL_REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  envOr("PESTICRAWL_LOG_LEVEL", "info"),
			Format: envOr("PESTICRAWL_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			Timeout: envDurationOr("PESTICRAWL_WEBHOOK_TIMEOUT", 10*time.Second),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
