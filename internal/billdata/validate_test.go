package billdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitmate/billscan/internal/common"
)

func TestValidateAcceptsConsistentBill(t *testing.T) {
	raw := []byte(`{
		"items": [
			{"name": "Burger", "quantity": 2, "price": 8.50},
			{"name": "Fries", "price": 3.00}
		],
		"subtotal": 20.00,
		"tax": 1.60,
		"total": 21.60
	}`)

	bill, err := Validate(raw, DefaultTolerancePercent, nil)
	require.NoError(t, err)
	require.Len(t, bill.Items, 2)
	assert.Equal(t, "Burger", bill.Items[0].Name)
	assert.Equal(t, 2, bill.Items[0].Quantity)
	assert.Equal(t, 1, bill.Items[1].Quantity, "missing quantity defaults to 1")
	assert.Equal(t, "21.60", bill.Total.StringFixed(2))
}

func TestValidateCorrectsSmallTotalDrift(t *testing.T) {
	raw := []byte(`{
		"items": [{"name": "Pizza", "price": 100.00}],
		"subtotal": 100.00,
		"tax": 8.00,
		"total": 107.00
	}`)

	bill, err := Validate(raw, 2.0, nil)
	require.NoError(t, err)
	assert.Equal(t, "108.00", bill.Total.StringFixed(2), "total rewritten to subtotal + tax")
}

func TestValidateRejectsLargeTotalDrift(t *testing.T) {
	raw := []byte(`{
		"items": [{"name": "Pizza", "price": 100.00}],
		"subtotal": 100.00,
		"tax": 8.00,
		"total": 90.00
	}`)

	_, err := Validate(raw, 2.0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "math validation failed")

	var pe *common.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, common.KindValidation, pe.Kind)
}

func TestValidateZeroTotal(t *testing.T) {
	t.Run("all zero passes", func(t *testing.T) {
		raw := []byte(`{
			"items": [{"name": "Comp item", "price": 1.00}],
			"subtotal": 0,
			"tax": 0,
			"total": 0
		}`)
		bill, err := Validate(raw, 2.0, nil)
		require.NoError(t, err)
		assert.True(t, bill.Total.IsZero())
	})

	t.Run("zero total with nonzero sum fails", func(t *testing.T) {
		raw := []byte(`{
			"items": [{"name": "Soup", "price": 5.00}],
			"subtotal": 5.00,
			"tax": 0.40,
			"total": 0
		}`)
		_, err := Validate(raw, 2.0, nil)
		require.Error(t, err)
	})
}

func TestValidateStripsCurrencySymbols(t *testing.T) {
	raw := []byte(`{
		"items": [{"name": "TV", "quantity": 1, "price": "$1,199.99"}],
		"subtotal": "$1,199.99",
		"tax": "$96.00",
		"total": "$1,295.99"
	}`)

	bill, err := Validate(raw, 2.0, nil)
	require.NoError(t, err)
	assert.Equal(t, "1199.99", bill.Items[0].Price.StringFixed(2))
	assert.Equal(t, "1295.99", bill.Total.StringFixed(2))
}

func TestValidateCoercesGarbageAmountToZero(t *testing.T) {
	// Unparseable tax coerces to zero; reconciliation still balances.
	raw := []byte(`{
		"items": [{"name": "Water", "price": 2.00}],
		"subtotal": 2.00,
		"tax": "n/a",
		"total": 2.00
	}`)

	bill, err := Validate(raw, 2.0, nil)
	require.NoError(t, err)
	assert.True(t, bill.Tax.IsZero())
}

func TestValidateMissingRequiredField(t *testing.T) {
	raw := []byte(`{"items": [], "subtotal": 1, "tax": 0}`)
	_, err := Validate(raw, 2.0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field: total")
}

func TestValidateItemsMustBeList(t *testing.T) {
	raw := []byte(`{"items": {"name": "x"}, "subtotal": 1, "tax": 0, "total": 1}`)
	_, err := Validate(raw, 2.0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'items' must be a list")
}

func TestValidateDropsMalformedItems(t *testing.T) {
	raw := []byte(`{
		"items": [
			{"name": "Good", "quantity": 1, "price": 4.00},
			{"price": 2.00},
			{"name": "  ", "price": 2.00},
			{"name": "Free sample", "price": 0},
			{"name": "Refund", "price": -3.00},
			{"name": "Ghost", "quantity": -1, "price": 1.00},
			"not an object"
		],
		"subtotal": 4.00,
		"tax": 0,
		"total": 4.00
	}`)

	bill, err := Validate(raw, 2.0, nil)
	require.NoError(t, err)
	require.Len(t, bill.Items, 1)
	assert.Equal(t, "Good", bill.Items[0].Name)
}

func TestValidateNoValidItems(t *testing.T) {
	raw := []byte(`{"items": [{"price": 1.00}], "subtotal": 1, "tax": 0, "total": 1}`)
	_, err := Validate(raw, 2.0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid items")
}

func TestValidateNotAnObject(t *testing.T) {
	_, err := Validate([]byte(`[1, 2, 3]`), 2.0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JSON object")
}

func TestItemLineTotal(t *testing.T) {
	it := Item{Name: "Dumplings", Quantity: 3, Price: decimal.RequireFromString("3.33")}
	assert.Equal(t, "9.99", it.LineTotal().StringFixed(2))
}
