package crawler

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Row slots use the 1-indexed row numbering of the result table. Slot 1 is
// the header row, so a page holds at most lastRowSlot-firstRowSlot+1 rows.
const (
	firstRowSlot = 2
	lastRowSlot  = 21

	// MaxRowsPerPage is the number of row slots scanned on every page.
	MaxRowsPerPage = lastRowSlot - firstRowSlot + 1
)

// Selectors locates every element the crawl interacts with.
type Selectors struct {
	SearchInput  string
	SearchSubmit string

	// RowLinkFormat is a format string taking the row slot number.
	RowLinkFormat string

	Overlay      string
	OverlayClose string

	NextPage     string
	NextPageItem string
	ActivePage   string
}

// DefaultSelectors matches the English ICAMA registration query page.
func DefaultSelectors() Selectors {
	return Selectors{
		SearchInput:   "#searchForm > div.search_table > table > tbody > tr:nth-child(3) > td.t1 > input[type=text]",
		SearchSubmit:  "#btnSubmit",
		RowLinkFormat: "#tab > tbody > tr:nth-child(%d) > td.t3 > span > a",
		Overlay:       "#jbox-iframe",
		OverlayClose:  "#jbox > table > tbody > tr:nth-child(2) > td:nth-child(2) > div > a",
		NextPage:      "//a[contains(text(), '下一页')]",
		NextPageItem:  "//a[contains(text(), '下一页')]/parent::li",
		ActivePage:    "li.active > a",
	}
}

// RowLink returns the selector of the detail link in the given row slot.
func (s Selectors) RowLink(slot int) string {
	return fmt.Sprintf(s.RowLinkFormat, slot)
}

// IsXPath reports whether selector is an XPath expression.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// Validate compiles every CSS selector so that a typo fails at startup
// instead of silently ending every crawl on page one.
func (s Selectors) Validate() error {
	if !strings.Contains(s.RowLinkFormat, "%d") {
		return fmt.Errorf("row link format %q has no slot verb", s.RowLinkFormat)
	}
	named := map[string]string{
		"search_input":   s.SearchInput,
		"search_submit":  s.SearchSubmit,
		"row_link":       s.RowLink(firstRowSlot),
		"overlay":        s.Overlay,
		"overlay_close":  s.OverlayClose,
		"next_page":      s.NextPage,
		"next_page_item": s.NextPageItem,
		"active_page":    s.ActivePage,
	}
	for name, sel := range named {
		if sel == "" {
			if name == "next_page_item" {
				continue
			}
			return fmt.Errorf("selector %s is empty", name)
		}
		if IsXPath(sel) {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("selector %s %q: %w", name, sel, err)
		}
	}
	return nil
}
