package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/pesticrawl/models"
)

// pollInterval is how often a running crawl job is checked.
const pollInterval = 2 * time.Second

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("PESTICRAWL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PESTICRAWL_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PESTICRAWL_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"pesticrawl",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_pesticide_registrations",
		mcp.WithDescription("Search the ICAMA pesticide registration database by active ingredient and return every registration record: registration number, product name, toxicity, formulation, holder, validity dates and active ingredient contents."),
		mcp.WithString("active_ingredient",
			mcp.Required(),
			mcp.Description("English name of the active ingredient, e.g. 'Dimethoate'"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached result younger than this many milliseconds (default: 0, always crawl)"),
		),
	)
	s.AddTool(searchTool, handleSearch(apiURL, apiKey, pollInterval))

	statusTool := mcp.NewTool("get_crawl_status",
		mcp.WithDescription("Report the progress of a running or finished registration search by job ID."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The crawl job ID returned by search_pesticide_registrations"),
		),
	)
	s.AddTool(statusTool, handleStatus(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the pesticrawl API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiGet fetches path from the pesticrawl API.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job until its status is no longer "processing"
// or ctx is done.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, id string, interval time.Duration) (*models.CrawlStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/crawls/"+id)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			var status models.CrawlStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Error != nil && status.ID == "" {
				return nil, fmt.Errorf("[%s] %s", status.Error.Code, status.Error.Message)
			}
			if status.Status != models.StatusProcessing {
				return &status, nil
			}
		}
	}
}

func handleSearch(apiURL, apiKey string, interval time.Duration) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ingredient, err := request.RequireString("active_ingredient")
		if err != nil {
			return mcp.NewToolResultError("active_ingredient is required"), nil
		}

		payload := models.CrawlRequest{
			ActiveIngredient: ingredient,
			MaxAge:           int(request.GetFloat("max_age", 0)),
		}
		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/crawls", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("crawl request failed: %v", err)), nil
		}

		var created struct {
			models.CrawlResponse
			Error *models.ErrorDetail `json:"error"`
		}
		if err := json.Unmarshal(respBody, &created); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse crawl response: %v", err)), nil
		}
		if created.ID == "" {
			msg := "crawl job creation failed"
			if created.Error != nil {
				msg = fmt.Sprintf("[%s] %s", created.Error.Code, created.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		status, err := pollJobCompletion(ctx, client, apiURL, apiKey, created.ID, interval)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling crawl job failed: %v", err)), nil
		}
		if status.Status == models.StatusFailed {
			msg := "crawl failed"
			if status.Error != nil {
				msg = fmt.Sprintf("[%s] %s", status.Error.Code, status.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		return mcp.NewToolResultText(formatRecords(status)), nil
	}
}

func handleStatus(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/crawls/"+id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var status models.CrawlStatusResponse
		if err := json.Unmarshal(body, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse status: %v", err)), nil
		}
		if status.ID == "" {
			return mcp.NewToolResultError("crawl job not found"), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Crawl %s: %s (page %d, %d records)",
			status.ID, status.Status, status.PageNumber, status.TotalItemsScraped)), nil
	}
}

// formatRecords renders a finished job as one block per registration.
func formatRecords(status *models.CrawlStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Crawl %s for %q: %s, %d records over %d pages\n",
		status.ID, status.Query, status.Status, status.TotalItemsScraped, status.PageNumber)
	if status.Status == models.StatusPartial {
		fmt.Fprintf(&sb, "Results are partial (stopped on %s).\n", status.Terminal)
	}

	for i, r := range status.Records {
		fmt.Fprintf(&sb, "\n--- [%d] %s %s ---\n", i+1, r.RegisteredNumber, r.ProductName)
		fmt.Fprintf(&sb, "Toxicity: %s\nFormulation: %s\nHolder: %s\nValid: %s to %s\n",
			r.Toxicity, r.Formulation, r.RegistrationHolder, r.FirstProve, r.Period)
		for _, ai := range r.ActiveIngredients {
			fmt.Fprintf(&sb, "Active ingredient: %s (%s)\n", ai.Ingredient, ai.Content)
		}
		if r.Remark != "" {
			fmt.Fprintf(&sb, "Remark: %s\n", r.Remark)
		}
	}
	return sb.String()
}
