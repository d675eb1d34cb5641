package declaration

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"

	"github.com/btwdesk/api/internal/btw"
)

type exportRow struct {
	box         string
	description string
	turnover    *decimal.Decimal
	vat         *decimal.Decimal
}

func amount(d decimal.Decimal) *decimal.Decimal { return &d }

func exportRows(t btw.Totals) []exportRow {
	return []exportRow{
		{"1a", "Leveringen/diensten belast met hoog tarief", amount(t.Box1aTurnover), amount(t.Box1aVAT)},
		{"1b", "Leveringen/diensten belast met laag tarief", amount(t.Box1bTurnover), amount(t.Box1bVAT)},
		{"1c", "Leveringen/diensten belast met overige tarieven", amount(t.Box1cTurnover), amount(t.Box1cVAT)},
		{"1d", "Privégebruik", amount(t.Box1dTurnover), amount(t.Box1dVAT)},
		{"1e", "Leveringen/diensten belast met 0% of niet bij u belast", amount(t.Box1eTurnover), nil},
		{"2a", "Leveringen/diensten waarbij de heffing naar u is verlegd", amount(t.Box2aTurnover), nil},
		{"3a", "Leveringen naar landen buiten de EU", amount(t.Box3aTurnover), nil},
		{"3b", "Leveringen naar of diensten in landen binnen de EU", amount(t.Box3bTurnover), nil},
		{"4a", "Leveringen/diensten uit landen buiten de EU", amount(t.Box4aTurnover), amount(t.Box4aVAT)},
		{"4b", "Leveringen/diensten uit landen binnen de EU", amount(t.Box4bTurnover), amount(t.Box4bVAT)},
		{"5a", "Verschuldigde omzetbelasting", nil, amount(t.GrossOwed)},
		{"5b", "Voorbelasting", nil, amount(t.Box5bVAT)},
		{"5b-hoog", "Grondslag voorbelasting hoog tarief", amount(t.Box5bBase), nil},
		{"5b-laag", "Grondslag voorbelasting laag tarief", amount(t.Box5bBaseLow), nil},
		{"5c", "Subtotaal", nil, amount(t.NetPayable)},
		{"5g", "Totaal te betalen of terug te vragen", nil, amount(t.FinalBalance)},
	}
}

// RenderCSV writes the declaration as one row per rubriek with the columns
// box, description, turnover and vat. Amounts have two decimals; cells that
// do not apply to a rubriek are empty.
func RenderCSV(d btw.Declaration) (io.Reader, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"box", "description", "turnover", "vat"}); err != nil {
		return nil, err
	}
	for _, r := range exportRows(d.Totals) {
		if err := w.Write([]string{r.box, r.description, cell(r.turnover), cell(r.vat)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func cell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
