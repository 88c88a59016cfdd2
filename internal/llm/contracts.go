package llm

import "context"

// BillExtractor is the interface the pipeline depends on. ExtractBill sends
// recognized receipt text to the inference service and returns the raw JSON
// reply, already schema-checked for the four required top-level fields
// (items, subtotal, tax, total). Numeric coercion and cleaning happen later
// in billdata.
type BillExtractor interface {
	ExtractBill(ctx context.Context, text string) ([]byte, error)
}
