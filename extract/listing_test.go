package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/pesticrawl/models"
)

const listingHTML = `<html><body>
<table id="tab">
  <tr><th>No.</th></tr>
  <tr class="listfirstTr">
    <td>PD20080123</td><td>Dimethoate EC</td><td>Dimethoate(40%)</td><td>Moderate</td>
    <td>EC</td><td>Acme Agro</td><td>2008-01-09</td><td>2028-01-09</td><td></td>
  </tr>
  <tr class="listSecondTr">
    <td>PD20090456</td><td>Mix</td><td>Dimethoate(20%); Omethoate (5%);broken</td><td>Low</td>
    <td>WP</td><td>Beta Chem</td><td>2009-03-01</td><td>2029-03-01</td><td>Export only</td>
  </tr>
  <tr class="listfirstTr"><td>short</td><td>row</td></tr>
</table>
<div class="pagination"><ul>
  <li><a>1</a></li><li><a>2</a></li><li><a>3</a></li><li><a>下一页</a></li>
</ul></div>
</body></html>`

func TestParseListing(t *testing.T) {
	page, err := ParseListing(listingHTML)
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}

	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}

	want := []models.Record{
		{
			RegisteredNumber:   "PD20080123",
			ProductName:        "Dimethoate EC",
			ActiveIngredients:  []models.ActiveIngredient{{Ingredient: "Dimethoate", Content: "40%"}},
			Toxicity:           "Moderate",
			Formulation:        "EC",
			RegistrationHolder: "Acme Agro",
			FirstProve:         "2008-01-09",
			Period:             "2028-01-09",
			Remark:             "",
		},
		{
			RegisteredNumber: "PD20090456",
			ProductName:      "Mix",
			ActiveIngredients: []models.ActiveIngredient{
				{Ingredient: "Dimethoate", Content: "20%"},
				{Ingredient: "Omethoate", Content: "5%"},
			},
			Toxicity:           "Low",
			Formulation:        "WP",
			RegistrationHolder: "Beta Chem",
			FirstProve:         "2009-03-01",
			Period:             "2029-03-01",
			Remark:             "Export only",
		},
	}
	if diff := cmp.Diff(want, page.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseListing_NoPagination(t *testing.T) {
	page, err := ParseListing(`<table></table>`)
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
	if len(page.Records) != 0 {
		t.Errorf("got %d records, want 0", len(page.Records))
	}
}

func TestParseIngredients(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []models.ActiveIngredient
	}{
		{"empty", "", []models.ActiveIngredient{}},
		{"single", "Dimethoate(40%)", []models.ActiveIngredient{{Ingredient: "Dimethoate", Content: "40%"}}},
		{"inner parens", "2,4-D (salt)(50%)", []models.ActiveIngredient{{Ingredient: "2,4-D (salt)", Content: "50%"}}},
		{"no content", "Dimethoate", []models.ActiveIngredient{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIngredients(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseIngredients(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}
