package crawler

import (
	"context"
	"log/slog"

	"github.com/use-agent/pesticrawl/metrics"
	"github.com/use-agent/pesticrawl/models"
)

// PageResult summarises one result page.
type PageResult struct {
	// Attempted is the number of present row slots; they always form a
	// contiguous prefix of the slot range.
	Attempted int

	// Failed rows were present but produced no record.
	Failed int

	Records []models.Record
}

// Count is the number of successfully scraped rows.
func (p PageResult) Count() int { return len(p.Records) }

// scrapePage walks the row slots of the current page in order. Slots are
// contiguous: the first slot whose link does not show up ends the page.
func (c *Crawler) scrapePage(ctx context.Context, s Session) PageResult {
	page := PageResult{Records: []models.Record{}}

	for slot := firstRowSlot; slot <= lastRowSlot; slot++ {
		link := c.sel.RowLink(slot)
		present, err := WaitUntil(ctx, c.cfg.RowTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
			return s.Visible(ctx, link)
		})
		if err != nil || !present {
			slog.Debug("no more rows on page", "after", slot-firstRowSlot)
			break
		}

		row := c.scrapeRow(ctx, s, slot)
		if !row.OK() && ctx.Err() != nil {
			// Abandoned by cancellation, not failed.
			break
		}
		page.Attempted++
		metrics.RowsTotal.WithLabelValues(string(row.Outcome)).Inc()

		if !row.OK() {
			page.Failed++
			slog.Warn("row skipped",
				"slot", slot,
				"outcome", row.Outcome,
				"error", row.Err,
			)
			continue
		}
		page.Records = append(page.Records, row.Record)
	}

	return page
}
