package models

import (
	"strings"
	"unicode/utf8"
)

// SearchQuery is the input of a single crawl. The database matches
// ActiveIngredientName as a case-insensitive substring on the server side.
type SearchQuery struct {
	ActiveIngredientName string `json:"active_ingredient"`
}

// maxQueryLength bounds the free-text search term.
const maxQueryLength = 200

// Validate rejects queries the crawler must never be started with.
func (q SearchQuery) Validate() error {
	name := strings.TrimSpace(q.ActiveIngredientName)
	if name == "" {
		return NewCrawlError(ErrCodeInvalidInput, "active ingredient name is required", nil)
	}
	if utf8.RuneCountInString(name) > maxQueryLength {
		return NewCrawlError(ErrCodeInvalidInput, "active ingredient name is too long", nil)
	}
	return nil
}

// Normalized returns the trimmed, lower-cased ingredient name. Two queries
// with the same normalized form return the same upstream result set.
func (q SearchQuery) Normalized() string {
	return strings.ToLower(strings.TrimSpace(q.ActiveIngredientName))
}

// Record is one pesticide registration entry. Any text field may be empty
// when its label is missing from the detail overlay. Records are not
// deduplicated; RegisteredNumber is the only identity they carry.
type Record struct {
	RegisteredNumber   string             `json:"registered_number"`
	ProductName        string             `json:"product_name"`
	Toxicity           string             `json:"toxicity"`
	Formulation        string             `json:"formulation"`
	RegistrationHolder string             `json:"registration_holder"`
	FirstProve         string             `json:"first_prove"`
	Period             string             `json:"period"`
	Remark             string             `json:"remark"`
	ActiveIngredients  []ActiveIngredient `json:"active_ingredients"`
}

// ActiveIngredient is one row of a record's ingredient table.
type ActiveIngredient struct {
	Ingredient string `json:"ingredient"`
	Content    string `json:"content"`
}

// CrawlState is the mutable state of one crawl. It is owned by a single
// Run invocation and discarded when the run returns.
type CrawlState struct {
	// CurrentPage starts at 1 and never decreases.
	CurrentPage int

	// TotalItemsScraped is the sum of successfully scraped rows so far.
	TotalItemsScraped int

	// Records is append-only, in page then row-slot order.
	Records []Record
}

// NewCrawlState returns the state of a crawl positioned on page 1.
func NewCrawlState() CrawlState {
	return CrawlState{CurrentPage: 1, Records: []Record{}}
}

// AddPage folds one page's records into the state.
func (s *CrawlState) AddPage(records []Record) {
	s.Records = append(s.Records, records...)
	s.TotalItemsScraped += len(records)
}

// ProgressEvent is emitted after every completed result page.
type ProgressEvent struct {
	PageNumber        int `json:"page_number"`
	TotalItemsScraped int `json:"total_items_scraped"`
}

// Progress returns the event describing the state after its current page.
func (s CrawlState) Progress() ProgressEvent {
	return ProgressEvent{PageNumber: s.CurrentPage, TotalItemsScraped: s.TotalItemsScraped}
}
