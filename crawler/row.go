package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/pesticrawl/models"
)

var (
	// ErrOverlayTimeout means the detail overlay never appeared after the row link was clicked.
	ErrOverlayTimeout = errors.New("detail overlay did not open")

	// ErrOverlayStuck means the detail overlay was still shown after its close control was clicked.
	ErrOverlayStuck = errors.New("detail overlay did not close")
)

// RowOutcome classifies a single row attempt.
type RowOutcome string

const (
	RowScraped        RowOutcome = "scraped"
	RowOverlayMissing RowOutcome = "overlay_missing"
	RowFailed         RowOutcome = "failed"
)

// RowResult is what scrapeRow hands back for one row slot. Record is only
// meaningful when Outcome is RowScraped.
type RowResult struct {
	Slot    int
	Outcome RowOutcome
	Record  models.Record
	Err     error
}

// OK reports whether the row produced a record.
func (r RowResult) OK() bool { return r.Outcome == RowScraped }

// scrapeRow opens the overlay of one row, extracts it, and closes it again.
// The overlay is confirmed gone before returning so the next row's click
// cannot race a closing overlay. Errors never escape; they are folded into
// the result.
func (c *Crawler) scrapeRow(ctx context.Context, s Session, slot int) RowResult {
	res := RowResult{Slot: slot}

	if err := s.Click(ctx, c.sel.RowLink(slot)); err != nil {
		res.Outcome, res.Err = RowFailed, fmt.Errorf("click row link: %w", err)
		return res
	}

	opened, err := WaitUntil(ctx, c.cfg.OverlayTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		return s.Visible(ctx, c.sel.Overlay)
	})
	if err != nil {
		res.Outcome, res.Err = RowFailed, fmt.Errorf("wait for overlay: %w", err)
		return res
	}
	if !opened {
		res.Outcome, res.Err = RowOverlayMissing, ErrOverlayTimeout
		return res
	}

	ov, ovErr := s.Overlay(ctx, c.sel.Overlay)
	if ovErr == nil {
		res.Record = ExtractDetail(ov)
	}

	// Close even when the snapshot failed, otherwise every following row
	// on this page would click underneath a stale overlay.
	closeErr := c.closeOverlay(ctx, s)

	switch {
	case ovErr != nil:
		res.Outcome, res.Err = RowFailed, fmt.Errorf("read overlay: %w", ovErr)
	case closeErr != nil:
		res.Outcome, res.Err = RowFailed, closeErr
	default:
		res.Outcome = RowScraped
	}
	return res
}

func (c *Crawler) closeOverlay(ctx context.Context, s Session) error {
	if err := s.Click(ctx, c.sel.OverlayClose); err != nil {
		return fmt.Errorf("click overlay close: %w", err)
	}
	closed, err := WaitUntil(ctx, c.cfg.OverlayTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		visible, err := s.Visible(ctx, c.sel.Overlay)
		return !visible, err
	})
	if err != nil {
		return fmt.Errorf("wait for overlay to close: %w", err)
	}
	if !closed {
		return ErrOverlayStuck
	}
	return nil
}
