package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	// ErrLabelNotFound is returned when no cell carries the requested label.
	ErrLabelNotFound = errors.New("label not found")

	// ErrTableNotFound is returned when the document has fewer tables than requested.
	ErrTableNotFound = errors.New("table not found")
)

// Document is a parsed snapshot of a detail overlay. It satisfies
// crawler.Overlay, so the overlay is read with one round trip to the browser.
type Document struct {
	doc *goquery.Document
}

// NewDocument parses the overlay's HTML.
func NewDocument(rawHTML string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse overlay: %w", err)
	}
	return &Document{doc: doc}, nil
}

// LabeledValue finds the first td whose own text contains label and returns
// the text of the next td sibling.
func (d *Document) LabeledValue(label string) (string, error) {
	var labelCell *goquery.Selection
	d.doc.Find("td").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(ownText(s), label) {
			labelCell = s
			return false
		}
		return true
	})
	if labelCell == nil {
		return "", fmt.Errorf("%w: %q", ErrLabelNotFound, label)
	}

	value := labelCell.NextAllFiltered("td").First()
	if value.Length() == 0 {
		return "", fmt.Errorf("%w: no value cell after %q", ErrLabelNotFound, label)
	}
	return strings.TrimSpace(value.Text()), nil
}

// TableRows returns the td texts of every row that belongs directly to the
// index-th table. Rows of nested tables are not included.
func (d *Document) TableRows(index int) ([][]string, error) {
	tables := d.doc.Find("table")
	if index < 0 || index >= tables.Length() {
		return nil, fmt.Errorf("%w: index %d of %d", ErrTableNotFound, index, tables.Length())
	}
	table := tables.Eq(index)

	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		cells := []string{}
		tr.ChildrenFiltered("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, td.Text())
		})
		rows = append(rows, cells)
	})
	return rows, nil
}

// ownText concatenates the text nodes that are direct children of s,
// ignoring the text of nested elements.
func ownText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for n := s.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return b.String()
}
