package billdata

import (
	"github.com/shopspring/decimal"
)

// Item is one cleaned line item from a bill.
type Item struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// LineTotal is price x quantity, rounded to 2 decimals.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// Bill is validated, normalized bill data. Invariant after Validate: every
// item has a non-empty name, positive price and positive quantity, and
// subtotal + tax = total holds exactly (total is rewritten within tolerance).
type Bill struct {
	Items    []Item          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}
