package crawler

import "context"

// Session is the browser-automation surface a crawl drives. One Session
// belongs to exactly one crawl; implementations need not be safe for
// concurrent use.
//
// Selectors starting with "/" or "(" are XPath expressions, anything else is
// CSS. Lookups report absence as (false, nil) rather than as an error.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error

	// Exists reports whether an element matches selector right now.
	Exists(ctx context.Context, selector string) (bool, error)

	// Visible reports whether a matching element exists and is rendered.
	Visible(ctx context.Context, selector string) (bool, error)

	Text(ctx context.Context, selector string) (string, error)

	// Attribute returns the named attribute of the first match. ok is false
	// when the element or the attribute is missing.
	Attribute(ctx context.Context, selector, name string) (value string, ok bool, err error)

	// Overlay snapshots the detail overlay matched by selector.
	Overlay(ctx context.Context, selector string) (Overlay, error)

	// Close releases the session and everything it opened.
	Close() error
}

// SessionFactory opens isolated sessions, one per crawl.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Overlay is a read-only view of one open detail overlay.
type Overlay interface {
	// LabeledValue returns the text of the cell that follows the cell whose
	// own text contains label.
	LabeledValue(label string) (string, error)

	// TableRows returns the cell texts of every row of the index-th table
	// (0-based) in document order.
	TableRows(index int) ([][]string, error)
}
