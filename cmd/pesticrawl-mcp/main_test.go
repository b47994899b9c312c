package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/pesticrawl/models"
)

func TestPollJobCompletion(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" {
			t.Errorf("missing API key header")
		}
		status := models.StatusProcessing
		if polls.Add(1) >= 3 {
			status = models.StatusCompleted
		}
		json.NewEncoder(w).Encode(models.CrawlStatusResponse{ID: "crawl-1", Status: status, TotalItemsScraped: 47})
	}))
	defer srv.Close()

	got, err := pollJobCompletion(context.Background(), srv.Client(), srv.URL, "key", "crawl-1", time.Millisecond)
	if err != nil {
		t.Fatalf("pollJobCompletion: %v", err)
	}
	if got.Status != models.StatusCompleted || got.TotalItemsScraped != 47 {
		t.Errorf("status = %+v", got)
	}
	if polls.Load() != 3 {
		t.Errorf("polls = %d, want 3", polls.Load())
	}
}

func TestPollJobCompletion_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.CrawlStatusResponse{ID: "crawl-1", Status: models.StatusProcessing})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pollJobCompletion(ctx, srv.Client(), srv.URL, "key", "crawl-1", time.Millisecond); err == nil {
		t.Error("pollJobCompletion returned nil error after cancellation")
	}
}

func TestFormatRecords(t *testing.T) {
	out := formatRecords(&models.CrawlStatusResponse{
		ID:                "crawl-1",
		Query:             "Dimethoate",
		Status:            models.StatusPartial,
		PageNumber:        2,
		TotalItemsScraped: 1,
		Terminal:          "stalled",
		Records: []models.Record{{
			RegisteredNumber:  "PD20080001",
			ProductName:       "Dimethoate EC",
			ActiveIngredients: []models.ActiveIngredient{{Ingredient: "Dimethoate", Content: "40%"}},
		}},
	})

	for _, want := range []string{
		`Crawl crawl-1 for "Dimethoate": partial, 1 records over 2 pages`,
		"stopped on stalled",
		"--- [1] PD20080001 Dimethoate EC ---",
		"Active ingredient: Dimethoate (40%)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Remark:") {
		t.Error("empty remark rendered")
	}
}
