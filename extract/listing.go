package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/pesticrawl/models"
)

// listingColumns is the minimum number of cells in a flat listing row.
const listingColumns = 9

// ListingPage is one server-rendered result page of the flat listing.
type ListingPage struct {
	Records []models.Record

	// TotalPages is read from the pagination widget; 1 when it is missing.
	TotalPages int
}

// ParseListing reads the flat result table, where every registration is a
// single row and no overlay is involved.
func ParseListing(rawHTML string) (*ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse listing: %w", err)
	}

	page := &ListingPage{Records: []models.Record{}, TotalPages: totalPages(doc)}

	doc.Find("tr.listfirstTr, tr.listSecondTr").Each(func(_ int, tr *goquery.Selection) {
		cols := tr.Find("td").Map(func(_ int, td *goquery.Selection) string {
			return strings.TrimSpace(td.Text())
		})
		if len(cols) < listingColumns {
			return
		}
		page.Records = append(page.Records, models.Record{
			RegisteredNumber:   cols[0],
			ProductName:        cols[1],
			ActiveIngredients:  ParseIngredients(cols[2]),
			Toxicity:           cols[3],
			Formulation:        cols[4],
			RegistrationHolder: cols[5],
			FirstProve:         cols[6],
			Period:             cols[7],
			Remark:             cols[8],
		})
	})

	return page, nil
}

// ParseIngredients splits "Name(content);Name(content)" into pairs. Parts
// without a parenthesised content are dropped.
func ParseIngredients(text string) []models.ActiveIngredient {
	ingredients := []models.ActiveIngredient{}
	for _, part := range strings.Split(text, ";") {
		open := strings.LastIndex(part, "(")
		closing := strings.LastIndex(part, ")")
		if open < 0 || closing < open {
			continue
		}
		ingredients = append(ingredients, models.ActiveIngredient{
			Ingredient: strings.TrimSpace(part[:open]),
			Content:    strings.TrimSpace(part[open+1 : closing]),
		})
	}
	return ingredients
}

// totalPages reads the second to last pagination link, the last one being "next".
func totalPages(doc *goquery.Document) int {
	links := doc.Find("div.pagination a")
	if links.Length() < 2 {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(links.Eq(links.Length() - 2).Text()))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
