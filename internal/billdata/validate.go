package billdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splitmate/billscan/internal/common"
)

// DefaultTolerancePercent is the acceptable total-mismatch error.
const DefaultTolerancePercent = 2.0

var requiredFields = []string{"items", "subtotal", "tax", "total"}

// currencyReplacer strips symbols and thousands separators before parsing.
var currencyReplacer = strings.NewReplacer("$", "", "₹", "", "£", "", "€", "", ",", "")

// Validate turns the raw inference reply into a Bill, or fails with a
// validation error when the schema is missing required keys, when no item
// survives cleaning, or when the total mismatch exceeds tolerance.
//
// A single unparseable numeric field coerces to zero (logged) rather than
// aborting the whole bill; the math reconciliation step is the backstop that
// rejects structurally broken data.
func Validate(raw []byte, tolerancePercent float64, logger *slog.Logger) (Bill, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tolerancePercent <= 0 {
		tolerancePercent = DefaultTolerancePercent
	}

	m, err := decodeObject(raw)
	if err != nil {
		return Bill{}, err
	}

	items, err := checkSchema(m)
	if err != nil {
		return Bill{}, err
	}

	bill := Bill{
		Subtotal: toDecimal(m["subtotal"], "subtotal", logger),
		Tax:      toDecimal(m["tax"], "tax", logger),
		Total:    toDecimal(m["total"], "total", logger),
	}
	bill.Items = cleanItems(items, logger)
	if len(bill.Items) == 0 {
		return Bill{}, common.NewValidationError("no valid items found in bill", nil)
	}

	if err := reconcile(&bill, tolerancePercent, logger); err != nil {
		return Bill{}, err
	}

	logger.Info("billdata.validate_ok",
		"items", len(bill.Items),
		"subtotal", bill.Subtotal.String(),
		"tax", bill.Tax.String(),
		"total", bill.Total.String(),
	)
	return bill, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, common.NewValidationError("bill data is not a JSON object", err)
	}
	return m, nil
}

// checkSchema verifies the four required top-level keys and the items list.
func checkSchema(m map[string]any) ([]any, error) {
	for _, f := range requiredFields {
		if _, ok := m[f]; !ok {
			return nil, common.NewValidationError(fmt.Sprintf("missing required field: %s", f), nil)
		}
	}
	items, ok := m["items"].([]any)
	if !ok {
		return nil, common.NewValidationError("'items' must be a list", nil)
	}
	return items, nil
}

// toDecimal coerces heterogeneous numeric representations to fixed-point
// 2-decimal values. Unparseable values coerce to zero, logged.
func toDecimal(v any, field string, logger *slog.Logger) decimal.Decimal {
	switch t := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d.Round(2)
		}
	case string:
		s := strings.TrimSpace(currencyReplacer.Replace(t))
		if d, err := decimal.NewFromString(s); err == nil {
			return d.Round(2)
		}
	case float64:
		return decimal.NewFromFloat(t).Round(2)
	case int:
		return decimal.NewFromInt(int64(t)).Round(2)
	}
	logger.Warn("billdata.coerce_failed", "field", field, "value", fmt.Sprintf("%v", v))
	return decimal.Zero
}

// toQuantity coerces a quantity value; missing or unparseable defaults to 1.
func toQuantity(v any, logger *slog.Logger) int {
	switch t := v.(type) {
	case nil:
		return 1
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err == nil {
			return int(d.IntPart())
		}
	case float64:
		return int(t)
	case int:
		return t
	}
	logger.Warn("billdata.quantity_coerce_failed", "value", fmt.Sprintf("%v", v))
	return 1
}

// cleanItems drops entries lacking a name or price, or with non-positive
// price/quantity; missing quantity defaults to 1; names are trimmed.
func cleanItems(items []any, logger *slog.Logger) []Item {
	valid := make([]Item, 0, len(items))
	for i, raw := range items {
		entry, ok := raw.(map[string]any)
		if !ok {
			logger.Warn("billdata.item_not_object", "index", i)
			continue
		}

		name, _ := entry["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			logger.Warn("billdata.item_missing_name", "index", i)
			continue
		}

		priceRaw, ok := entry["price"]
		if !ok {
			logger.Warn("billdata.item_missing_price", "index", i, "name", name)
			continue
		}
		price := toDecimal(priceRaw, "price", logger)
		if !price.IsPositive() {
			logger.Warn("billdata.item_invalid_price", "index", i, "name", name, "price", price.String())
			continue
		}

		qty := toQuantity(entry["quantity"], logger)
		if qty <= 0 {
			logger.Warn("billdata.item_invalid_quantity", "index", i, "name", name, "quantity", qty)
			continue
		}

		valid = append(valid, Item{Name: name, Quantity: qty, Price: price})
	}
	logger.Info("billdata.items_cleaned", "valid", len(valid), "total", len(items))
	return valid
}

// reconcile checks subtotal + tax against total. Small drift (percentage
// error within tolerance, with total as the denominator) silently rewrites
// total to the computed sum; large drift rejects the whole bill.
//
// The asymmetric total-denominator formula is kept deliberately: downstream
// consumers depend on the exact acceptance region. Total of zero counts as 0%
// error only when the difference is also exactly zero, else 100%.
func reconcile(bill *Bill, tolerancePercent float64, logger *slog.Logger) error {
	expected := bill.Subtotal.Add(bill.Tax).Round(2)
	diff := expected.Sub(bill.Total).Abs()

	var errPercent decimal.Decimal
	if bill.Total.IsPositive() {
		errPercent = diff.Div(bill.Total).Mul(decimal.NewFromInt(100))
	} else if diff.IsZero() {
		errPercent = decimal.Zero
	} else {
		errPercent = decimal.NewFromInt(100)
	}

	if errPercent.LessThanOrEqual(decimal.NewFromFloat(tolerancePercent)) {
		if diff.IsPositive() {
			logger.Info("billdata.total_corrected",
				"from", bill.Total.String(),
				"to", expected.String(),
				"error_percent", errPercent.StringFixed(2),
			)
			bill.Total = expected
		}
		return nil
	}

	return common.NewValidationError(fmt.Sprintf(
		"math validation failed: subtotal (%s) + tax (%s) = %s, but total is %s; difference %s (%s%%)",
		bill.Subtotal, bill.Tax, expected, bill.Total, diff, errPercent.StringFixed(2)), nil)
}
