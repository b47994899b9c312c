package crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/use-agent/pesticrawl/config"
)

var errNotFound = errors.New("element not found")

// fakeRow is one rendered result row and the overlay behind it.
type fakeRow struct {
	fields    map[string]string
	table     [][]string
	noOverlay bool // the overlay never opens
	stuck     bool // the overlay never closes
}

// fakeSite scripts the ICAMA listing: a search form, pages of rows, a
// detail overlay and a numbered pagination widget.
type fakeSite struct {
	sel   Selectors
	pages [][]fakeRow
	page  int // 0-based
	open  *fakeRow

	navigateErr   error
	searchMissing bool
	submitted     bool

	// disabledOnLast renders a disabled next control on the last page;
	// nextOnLast renders an enabled one that does nothing.
	disabledOnLast bool
	nextOnLast     bool

	// lag delays the active page indicator by that many reads after a click.
	lag         int
	pendingRead int
	pendingPage int

	textErr     error
	panicOnPage int // 1-based; 0 disables

	slotChecks map[int][]int // 1-based page → distinct slots checked, in order
	closed     int
	closeErr   error
}

func newFakeSite(pageSizes ...int) *fakeSite {
	site := &fakeSite{sel: DefaultSelectors(), slotChecks: map[int][]int{}}
	for p, n := range pageSizes {
		rows := make([]fakeRow, n)
		for i := range rows {
			rows[i] = newFakeRow(fmt.Sprintf("PD%d%02d", p+1, i+1))
		}
		site.pages = append(site.pages, rows)
	}
	return site
}

func newFakeRow(regNo string) fakeRow {
	return fakeRow{
		fields: map[string]string{
			LabelRegisteredNumber:   regNo,
			LabelFirstProve:         "2008-01-09",
			LabelPeriod:             "2028-01-09",
			LabelProductName:        "Product " + regNo,
			LabelToxicity:           "Low toxicity",
			LabelFormulation:        "EC",
			LabelRegistrationHolder: "Acme Agro",
			LabelRemark:             "",
		},
		table: [][]string{
			{"Active ingredient information"},
			{"Active ingredient", "Content"},
			{" Dimethoate ", " 40% "},
		},
	}
}

func (f *fakeSite) rows() []fakeRow { return f.pages[f.page] }

func (f *fakeSite) lastPage() bool { return f.page == len(f.pages)-1 }

func (f *fakeSite) slotOf(selector string) (int, bool) {
	var slot int
	if _, err := fmt.Sscanf(selector, f.sel.RowLinkFormat, &slot); err != nil {
		return 0, false
	}
	return slot, f.sel.RowLink(slot) == selector
}

func (f *fakeSite) Navigate(_ context.Context, _ string) error { return f.navigateErr }

func (f *fakeSite) Fill(_ context.Context, selector, _ string) error {
	if f.searchMissing || selector != f.sel.SearchInput {
		return errNotFound
	}
	return nil
}

func (f *fakeSite) Click(_ context.Context, selector string) error {
	switch selector {
	case f.sel.SearchSubmit:
		f.submitted = true
		return nil
	case f.sel.OverlayClose:
		if f.open == nil {
			return errNotFound
		}
		if !f.open.stuck {
			f.open = nil
		}
		return nil
	case f.sel.NextPage:
		if f.lastPage() {
			return nil
		}
		if f.lag > 0 {
			f.pendingRead, f.pendingPage = f.lag, f.page+1
			return nil
		}
		f.page++
		return nil
	}

	slot, ok := f.slotOf(selector)
	if !ok {
		return errNotFound
	}
	idx := slot - firstRowSlot
	if idx < 0 || idx >= len(f.rows()) {
		return errNotFound
	}
	if row := &f.pages[f.page][idx]; !row.noOverlay {
		f.open = row
	}
	return nil
}

func (f *fakeSite) Exists(_ context.Context, selector string) (bool, error) {
	if selector == f.sel.NextPage {
		return !f.lastPage() || f.disabledOnLast || f.nextOnLast, nil
	}
	return false, nil
}

func (f *fakeSite) Visible(_ context.Context, selector string) (bool, error) {
	if selector == f.sel.Overlay {
		return f.open != nil, nil
	}
	slot, ok := f.slotOf(selector)
	if !ok {
		return false, nil
	}
	if f.panicOnPage == f.page+1 {
		panic("browser disconnected")
	}
	// Polling checks the same slot repeatedly; record it once.
	if checks := f.slotChecks[f.page+1]; len(checks) == 0 || checks[len(checks)-1] != slot {
		f.slotChecks[f.page+1] = append(checks, slot)
	}
	return slot-firstRowSlot < len(f.rows()), nil
}

func (f *fakeSite) Text(_ context.Context, selector string) (string, error) {
	if selector != f.sel.ActivePage {
		return "", errNotFound
	}
	if f.textErr != nil {
		return "", f.textErr
	}
	if f.pendingRead > 0 {
		f.pendingRead--
		if f.pendingRead == 0 {
			f.page = f.pendingPage
		}
	}
	return " " + strconv.Itoa(f.page+1) + " ", nil
}

func (f *fakeSite) Attribute(_ context.Context, selector, name string) (string, bool, error) {
	if selector == f.sel.NextPage && name == "class" && f.lastPage() && f.disabledOnLast {
		return "page-link disabled", true, nil
	}
	return "", false, nil
}

func (f *fakeSite) Overlay(_ context.Context, _ string) (Overlay, error) {
	if f.open == nil {
		return nil, errNotFound
	}
	return fakeOverlay{row: f.open}, nil
}

func (f *fakeSite) Close() error {
	f.closed++
	return f.closeErr
}

// fakeOverlay serves a row's fields and ingredient table.
type fakeOverlay struct {
	row *fakeRow
}

func (o fakeOverlay) LabeledValue(label string) (string, error) {
	v, ok := o.row.fields[label]
	if !ok {
		return "", fmt.Errorf("label %q: %w", label, errNotFound)
	}
	return v, nil
}

func (o fakeOverlay) TableRows(index int) ([][]string, error) {
	if index != ingredientTable || o.row.table == nil {
		return nil, errNotFound
	}
	return o.row.table, nil
}

// cancelingSite honours ctx like a real driver and cancels the crawl when
// the row link in cancelSlot is clicked on cancelPage.
type cancelingSite struct {
	*fakeSite
	cancelPage int // 1-based
	cancelSlot int
	openFirst  bool // the click lands and opens the overlay before cancel
	cancel     context.CancelFunc
}

func (c *cancelingSite) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.page+1 == c.cancelPage && selector == c.sel.RowLink(c.cancelSlot) {
		c.cancel()
		if !c.openFirst {
			return ctx.Err()
		}
	}
	return c.fakeSite.Click(ctx, selector)
}

func (c *cancelingSite) Visible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.fakeSite.Visible(ctx, selector)
}

func (c *cancelingSite) Overlay(ctx context.Context, selector string) (Overlay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.fakeSite.Overlay(ctx, selector)
}

type fakeFactory struct {
	site    *fakeSite
	session Session // overrides site when set
	err     error
}

func (f fakeFactory) NewSession(context.Context) (Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.session != nil {
		return f.session, nil
	}
	return f.site, nil
}

func testConfig() config.CrawlConfig {
	return config.CrawlConfig{
		BaseURL:           "https://registry.test/query",
		RowTimeout:        20 * time.Millisecond,
		OverlayTimeout:    20 * time.Millisecond,
		PaginationTimeout: 50 * time.Millisecond,
		NavigationTimeout: time.Second,
		PollInterval:      time.Millisecond,
	}
}

func newTestCrawler(site *fakeSite) *Crawler {
	return New(fakeFactory{site: site}, site.sel, testConfig())
}
