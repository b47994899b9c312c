package crawler

import (
	"log/slog"
	"strings"

	"github.com/use-agent/pesticrawl/models"
)

// Overlay labels. The colon is the full-width "："
const (
	LabelRegisteredNumber   = "Registered number："
	LabelFirstProve         = "FirstProve："
	LabelPeriod             = "Period："
	LabelProductName        = "ProductName："
	LabelToxicity           = "Toxicity："
	LabelFormulation        = "Formulation："
	LabelRegistrationHolder = "Registration certificate holder："
	LabelRemark             = "Remark："
)

const (
	// ingredientTable is the 0-based index of the ingredient table in the overlay.
	ingredientTable = 1

	// ingredientHeaderRows are skipped before ingredient rows start.
	ingredientHeaderRows = 2
)

// ExtractDetail reads one record out of an open detail overlay. A missing or
// failing label leaves its field empty; extraction itself never fails.
func ExtractDetail(ov Overlay) models.Record {
	field := func(label string) string {
		v, err := ov.LabeledValue(label)
		if err != nil {
			slog.Debug("overlay label not found", "label", label, "error", err)
			return ""
		}
		return strings.TrimSpace(v)
	}

	return models.Record{
		RegisteredNumber:   field(LabelRegisteredNumber),
		FirstProve:         field(LabelFirstProve),
		Period:             field(LabelPeriod),
		ProductName:        field(LabelProductName),
		Toxicity:           field(LabelToxicity),
		Formulation:        field(LabelFormulation),
		RegistrationHolder: field(LabelRegistrationHolder),
		Remark:             field(LabelRemark),
		ActiveIngredients:  extractIngredients(ov),
	}
}

func extractIngredients(ov Overlay) []models.ActiveIngredient {
	ingredients := []models.ActiveIngredient{}

	rows, err := ov.TableRows(ingredientTable)
	if err != nil {
		slog.Debug("ingredient table not found", "error", err)
		return ingredients
	}
	if len(rows) <= ingredientHeaderRows {
		return ingredients
	}

	for _, cells := range rows[ingredientHeaderRows:] {
		if len(cells) != 2 {
			continue
		}
		ingredients = append(ingredients, models.ActiveIngredient{
			Ingredient: strings.TrimSpace(cells[0]),
			Content:    strings.TrimSpace(cells[1]),
		})
	}
	return ingredients
}
