package ocr

import (
	"strings"
	"unicode"
)

// MinUsableLength is the floor below which OCR output is considered garbage.
const MinUsableLength = 10

// Score rates one strategy's output. It is a pure function of the text so the
// same image always yields the same winning strategy.
//
// Weighted quality indicators: raw length (receipts with more text decoded),
// word count x5 (structure), digit count x3 (receipts are numeric-dense), and
// alphanumeric ratio x100 (penalizes noisy or garbled output). Results shorter
// than MinUsableLength score zero.
func Score(text string) float64 {
	runes := []rune(text)
	if len(runes) < MinUsableLength {
		return 0
	}

	var digits, alnum int
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits++
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	ratio := float64(alnum) / float64(len(runes))
	words := len(strings.Fields(text))

	return float64(len(runes)) + 5.0*float64(words) + 3.0*float64(digits) + 100.0*ratio
}
