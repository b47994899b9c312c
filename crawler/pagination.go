package crawler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// AdvanceOutcome classifies an attempt to move to the next result page.
type AdvanceOutcome string

const (
	AdvanceMoved    AdvanceOutcome = "moved"
	AdvanceNoNext   AdvanceOutcome = "no_next"
	AdvanceDisabled AdvanceOutcome = "disabled"
	AdvanceStalled  AdvanceOutcome = "stalled"
	AdvanceFailed   AdvanceOutcome = "failed"
)

// AdvanceResult reports what advance observed. From and To are the active
// page numbers before the click and after the move; To is only set on
// AdvanceMoved.
type AdvanceResult struct {
	Outcome AdvanceOutcome
	From    int
	To      int
	Err     error
}

// Moved reports whether a new page with more content is loaded.
func (a AdvanceResult) Moved() bool { return a.Outcome == AdvanceMoved }

// advance clicks "next page" and confirms the move by waiting for the active
// page number to grow. The listing renders asynchronously, so this numeric
// check replaces any fixed delay. Every error is folded into a non-moving
// result.
func (c *Crawler) advance(ctx context.Context, s Session) AdvanceResult {
	present, err := s.Exists(ctx, c.sel.NextPage)
	if err != nil {
		return AdvanceResult{Outcome: AdvanceFailed, Err: fmt.Errorf("locate next page control: %w", err)}
	}
	if !present {
		return AdvanceResult{Outcome: AdvanceNoNext}
	}

	disabled, err := c.nextDisabled(ctx, s)
	if err != nil {
		return AdvanceResult{Outcome: AdvanceFailed, Err: err}
	}
	if disabled {
		return AdvanceResult{Outcome: AdvanceDisabled}
	}

	before, err := c.activePage(ctx, s)
	if err != nil {
		return AdvanceResult{Outcome: AdvanceFailed, Err: err}
	}

	if err := s.Click(ctx, c.sel.NextPage); err != nil {
		return AdvanceResult{Outcome: AdvanceFailed, From: before, Err: fmt.Errorf("click next page: %w", err)}
	}

	after := before
	moved, err := WaitUntil(ctx, c.cfg.PaginationTimeout, c.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		n, err := c.activePage(ctx, s)
		if err != nil {
			return false, err
		}
		after = n
		return n > before, nil
	})
	switch {
	case err != nil:
		return AdvanceResult{Outcome: AdvanceFailed, From: before, Err: fmt.Errorf("wait for page change: %w", err)}
	case !moved:
		return AdvanceResult{Outcome: AdvanceStalled, From: before}
	}
	return AdvanceResult{Outcome: AdvanceMoved, From: before, To: after}
}

// nextDisabled checks the disabled marker on the control and on its list item.
func (c *Crawler) nextDisabled(ctx context.Context, s Session) (bool, error) {
	for _, sel := range []string{c.sel.NextPage, c.sel.NextPageItem} {
		if sel == "" {
			continue
		}
		class, ok, err := s.Attribute(ctx, sel, "class")
		if err != nil {
			return false, fmt.Errorf("read next page class: %w", err)
		}
		if ok && hasClass(class, "disabled") {
			return true, nil
		}
	}
	return false, nil
}

// activePage reads the active page indicator as an integer.
func (c *Crawler) activePage(ctx context.Context, s Session) (int, error) {
	text, err := s.Text(ctx, c.sel.ActivePage)
	if err != nil {
		return 0, fmt.Errorf("read active page: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("active page %q is not a number: %w", text, err)
	}
	return n, nil
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}
