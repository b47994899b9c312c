package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/pesticrawl/models"
)

func collect(events *[]models.ProgressEvent) ProgressSink {
	return func(ev models.ProgressEvent) { *events = append(*events, ev) }
}

func TestRun_ThreePages(t *testing.T) {
	site := newFakeSite(20, 20, 7)
	c := newTestCrawler(site)

	var events []models.ProgressEvent
	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, collect(&events))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Records) != 47 {
		t.Errorf("got %d records, want 47", len(res.Records))
	}
	if res.TotalItemsScraped != 47 {
		t.Errorf("TotalItemsScraped = %d, want 47", res.TotalItemsScraped)
	}
	if res.Pages != 3 {
		t.Errorf("Pages = %d, want 3", res.Pages)
	}
	if res.Terminal != TerminalLastPage {
		t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalLastPage)
	}
	if res.Status() != models.StatusCompleted {
		t.Errorf("Status() = %q, want %q", res.Status(), models.StatusCompleted)
	}

	wantEvents := []models.ProgressEvent{
		{PageNumber: 1, TotalItemsScraped: 20},
		{PageNumber: 2, TotalItemsScraped: 40},
		{PageNumber: 3, TotalItemsScraped: 47},
	}
	if diff := cmp.Diff(wantEvents, events); diff != "" {
		t.Errorf("progress events mismatch (-want +got):\n%s", diff)
	}

	// Page order, then row-slot order.
	if got := res.Records[0].RegisteredNumber; got != "PD101" {
		t.Errorf("first record = %q, want PD101", got)
	}
	if got := res.Records[20].RegisteredNumber; got != "PD201" {
		t.Errorf("record 20 = %q, want PD201", got)
	}
	if got := res.Records[46].RegisteredNumber; got != "PD307" {
		t.Errorf("last record = %q, want PD307", got)
	}

	if !site.submitted {
		t.Error("search form was never submitted")
	}
	if site.closed != 1 {
		t.Errorf("session closed %d times, want 1", site.closed)
	}
}

func TestRun_MissingRemarkLabel(t *testing.T) {
	site := newFakeSite(1)
	delete(site.pages[0][0].fields, LabelRemark)
	c := newTestCrawler(site)

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Toxicity != "Low toxicity" {
		t.Errorf("Toxicity = %q, want %q", rec.Toxicity, "Low toxicity")
	}
	if rec.Remark != "" {
		t.Errorf("Remark = %q, want empty", rec.Remark)
	}
}

func TestRun_OverlayNeverOpens(t *testing.T) {
	site := newFakeSite(5)
	site.pages[0][1].noOverlay = true
	c := newTestCrawler(site)

	var events []models.ProgressEvent
	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, collect(&events))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got []string
	for _, r := range res.Records {
		got = append(got, r.RegisteredNumber)
	}
	want := []string{"PD101", "PD103", "PD104", "PD105"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.RowsFailed != 1 {
		t.Errorf("RowsFailed = %d, want 1", res.RowsFailed)
	}
	if res.TotalItemsScraped != 4 {
		t.Errorf("TotalItemsScraped = %d, want 4", res.TotalItemsScraped)
	}
	if len(events) != 1 || events[0].TotalItemsScraped != 4 {
		t.Errorf("events = %+v, want one event with total 4", events)
	}
	if res.Status() != models.StatusPartial {
		t.Errorf("Status() = %q, want %q", res.Status(), models.StatusPartial)
	}
}

func TestRun_SearchFormMissing(t *testing.T) {
	site := newFakeSite(20)
	site.searchMissing = true
	c := newTestCrawler(site)

	called := false
	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, func(models.ProgressEvent) {
		called = true
	})

	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("Run error = %v, want *models.CrawlError", err)
	}
	if ce.Code != models.ErrCodeSearchFailed {
		t.Errorf("error code = %q, want %q", ce.Code, models.ErrCodeSearchFailed)
	}
	if !errors.Is(err, errNotFound) {
		t.Errorf("error %v does not wrap the driver error", err)
	}
	if res == nil || res.Records == nil || len(res.Records) != 0 {
		t.Errorf("records = %v, want empty non-nil slice", res.Records)
	}
	if res.Terminal != TerminalSearchFailed {
		t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalSearchFailed)
	}
	if called {
		t.Error("progress sink called for a crawl that never searched")
	}
	if site.closed != 1 {
		t.Errorf("session closed %d times, want 1", site.closed)
	}
}

func TestRun_NavigationFailureIsFatal(t *testing.T) {
	site := newFakeSite(20)
	site.navigateErr = errors.New("net::ERR_CONNECTION_RESET")
	c := newTestCrawler(site)

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)

	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeNavigation {
		t.Fatalf("Run error = %v, want NAVIGATION_FAILED", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("got %d records, want 0", len(res.Records))
	}
}

func TestRun_SessionFactoryFails(t *testing.T) {
	c := New(fakeFactory{err: errors.New("browser gone")}, DefaultSelectors(), testConfig())

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)

	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeSession {
		t.Fatalf("Run error = %v, want SESSION_FAILED", err)
	}
	if res.Records == nil {
		t.Error("records should be an empty slice, not nil")
	}
}

func TestRun_CloseErrorIsNotReturned(t *testing.T) {
	site := newFakeSite(3)
	site.closeErr = errors.New("context already closed")
	c := newTestCrawler(site)

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 3 {
		t.Errorf("got %d records, want 3", len(res.Records))
	}
}

func TestRun_PanicReturnsPartialResults(t *testing.T) {
	site := newFakeSite(20, 20, 20)
	site.panicOnPage = 2
	c := newTestCrawler(site)

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 20 {
		t.Errorf("got %d records, want the 20 from page 1", len(res.Records))
	}
	if res.Terminal != TerminalFault {
		t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalFault)
	}
	if res.Fault == nil {
		t.Error("Fault should describe the panic")
	}
	if site.closed != 1 {
		t.Errorf("session closed %d times, want 1", site.closed)
	}
}

func TestRun_CanceledBetweenPages(t *testing.T) {
	site := newFakeSite(20, 20, 20)
	c := newTestCrawler(site)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := c.Run(ctx, models.SearchQuery{ActiveIngredientName: "Dimethoate"}, func(ev models.ProgressEvent) {
		if ev.PageNumber == 1 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Terminal != TerminalCanceled {
		t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalCanceled)
	}
	if len(res.Records) != 20 {
		t.Errorf("got %d records, want 20", len(res.Records))
	}
	if !errors.Is(res.Fault, context.Canceled) {
		t.Errorf("Fault = %v, want context.Canceled", res.Fault)
	}
}

func TestRun_CanceledMidPage(t *testing.T) {
	tests := []struct {
		name      string
		openFirst bool
	}{
		{name: "click aborted", openFirst: false},
		{name: "overlay open", openFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			site := &cancelingSite{
				fakeSite:   newFakeSite(20, 20),
				cancelPage: 1,
				cancelSlot: 5,
				openFirst:  tt.openFirst,
				cancel:     cancel,
			}
			c := New(fakeFactory{session: site}, site.sel, testConfig())

			var events []models.ProgressEvent
			res, err := c.Run(ctx, models.SearchQuery{ActiveIngredientName: "Dimethoate"}, collect(&events))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Terminal != TerminalCanceled {
				t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalCanceled)
			}
			if !errors.Is(res.Fault, context.Canceled) {
				t.Errorf("Fault = %v, want context.Canceled", res.Fault)
			}
			if res.RowsFailed != 0 {
				t.Errorf("RowsFailed = %d, want 0: an abandoned row is not a failed row", res.RowsFailed)
			}
			if len(res.Records) != 3 {
				t.Errorf("got %d records, want 3 (slots 2-4)", len(res.Records))
			}
			if res.Status() != models.StatusPartial {
				t.Errorf("Status = %q, want %q", res.Status(), models.StatusPartial)
			}
			want := []models.ProgressEvent{{PageNumber: 1, TotalItemsScraped: 3}}
			if diff := cmp.Diff(want, events); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_PageLimit(t *testing.T) {
	site := newFakeSite(20, 20, 20)
	cfg := testConfig()
	cfg.MaxPages = 2
	c := New(fakeFactory{site: site}, site.sel, cfg)

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Terminal != TerminalPageLimit {
		t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalPageLimit)
	}
	if len(res.Records) != 40 {
		t.Errorf("got %d records, want 40", len(res.Records))
	}
}

func TestRun_DisabledNextOnLastPage(t *testing.T) {
	site := newFakeSite(20, 4)
	site.disabledOnLast = true
	c := newTestCrawler(site)

	res, err := c.Run(context.Background(), models.SearchQuery{ActiveIngredientName: "Dimethoate"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Terminal != TerminalDisabled {
		t.Errorf("Terminal = %q, want %q", res.Terminal, TerminalDisabled)
	}
	if len(res.Records) != 24 {
		t.Errorf("got %d records, want 24", len(res.Records))
	}
}

func TestScrapePage_ContiguousSlots(t *testing.T) {
	site := newFakeSite(3)
	c := newTestCrawler(site)

	page := c.scrapePage(context.Background(), site)

	if page.Count() != 3 || page.Attempted != 3 || page.Failed != 0 {
		t.Errorf("page = {Attempted:%d Failed:%d Count:%d}, want {3 0 3}", page.Attempted, page.Failed, page.Count())
	}
	want := []int{2, 3, 4, 5}
	if diff := cmp.Diff(want, site.slotChecks[1]); diff != "" {
		t.Errorf("checked slots mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapePage_FullPageStopsAtLastSlot(t *testing.T) {
	site := newFakeSite(25)
	c := newTestCrawler(site)

	page := c.scrapePage(context.Background(), site)

	if page.Count() != MaxRowsPerPage {
		t.Errorf("Count() = %d, want %d", page.Count(), MaxRowsPerPage)
	}
	checks := site.slotChecks[1]
	if last := checks[len(checks)-1]; last != lastRowSlot {
		t.Errorf("last checked slot = %d, want %d", last, lastRowSlot)
	}
}

func TestScrapeRow_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*fakeRow)
		want    RowOutcome
		wantErr error
	}{
		{"scraped", func(*fakeRow) {}, RowScraped, nil},
		{"overlay missing", func(r *fakeRow) { r.noOverlay = true }, RowOverlayMissing, ErrOverlayTimeout},
		{"overlay stuck", func(r *fakeRow) { r.stuck = true }, RowFailed, ErrOverlayStuck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newFakeSite(1)
			tt.mutate(&site.pages[0][0])
			c := newTestCrawler(site)

			row := c.scrapeRow(context.Background(), site, firstRowSlot)

			if row.Outcome != tt.want {
				t.Errorf("Outcome = %q, want %q", row.Outcome, tt.want)
			}
			if tt.wantErr == nil && row.Err != nil {
				t.Errorf("Err = %v, want nil", row.Err)
			}
			if tt.wantErr != nil && !errors.Is(row.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", row.Err, tt.wantErr)
			}
			if row.OK() && row.Record.RegisteredNumber != "PD101" {
				t.Errorf("RegisteredNumber = %q, want PD101", row.Record.RegisteredNumber)
			}
		})
	}
}

func TestScrapeRow_ClickFails(t *testing.T) {
	site := newFakeSite(1)
	c := newTestCrawler(site)

	row := c.scrapeRow(context.Background(), site, 9)

	if row.Outcome != RowFailed || !errors.Is(row.Err, errNotFound) {
		t.Errorf("row = {%q %v}, want failed with errNotFound", row.Outcome, row.Err)
	}
}
