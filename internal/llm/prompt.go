package llm

import "strings"

// systemPrompt constrains output to JSON only; everything else rides on the
// user prompt so json_object mode stays effective across providers.
const systemPrompt = "You are a precise bill parser that extracts structured data from receipts. " +
	"Always return valid JSON only."

// BuildUserPrompt assembles the extraction prompt around the recognized text.
// The discount rule keeps subtotal + tax = total holding by construction, so
// validation downstream can reconcile instead of guessing.
func BuildUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract items, prices, subtotal, tax, and total from this receipt.\n\n")
	b.WriteString("STRICT RULES:\n")
	b.WriteString("1. Return ONLY valid JSON - no markdown, no code blocks, no explanations\n")
	b.WriteString("2. Use this EXACT schema:\n")
	b.WriteString("{\n")
	b.WriteString("  \"items\": [\n")
	b.WriteString("    {\"name\": \"string\", \"quantity\": number, \"price\": number}\n")
	b.WriteString("  ],\n")
	b.WriteString("  \"subtotal\": number,\n")
	b.WriteString("  \"tax\": number,\n")
	b.WriteString("  \"total\": number\n")
	b.WriteString("}\n\n")
	b.WriteString("3. If quantity is not specified, use 1\n")
	b.WriteString("4. Prices must be numeric (remove currency symbols like $, ₹, £, €)\n")
	b.WriteString("5. IMPORTANT - Discount handling: if there is a discount, use the NET TOTAL\n")
	b.WriteString("   (after discount) as the subtotal, so that subtotal + tax = total.\n")
	b.WriteString("   Example: Sub Total 100, Discount 10, Net Total 90 -> use subtotal: 90\n")
	b.WriteString("6. If you cannot extract a field, use 0 for numbers\n")
	b.WriteString("7. Item names should be clean (no extra symbols or line numbers)\n")
	b.WriteString("8. All numbers in decimal format (e.g. 12.50, not 12,50), rounded to 2 decimals\n")
	b.WriteString("\nReceipt text:\n")
	b.WriteString(text)
	b.WriteString("\n\nJSON output:")
	return b.String()
}
