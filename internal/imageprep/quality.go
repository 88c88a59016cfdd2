package imageprep

import (
	"fmt"
	"image"
	"math"
)

const (
	minDimension  = 100
	minBrightness = 30.0
	maxBrightness = 225.0
	minContrast   = 15.0
)

// ValidateQuality checks dimensions, brightness and contrast before OCR.
// Returns warnings only; downstream stages may still succeed on a technically
// substandard image.
func ValidateQuality(img image.Image) []string {
	var warnings []string

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < minDimension || h < minDimension {
		warnings = append(warnings,
			fmt.Sprintf("image too small (%dx%d), minimum %dx%d", w, h, minDimension, minDimension))
	}

	mean, stddev := grayStats(img)
	if mean < minBrightness {
		warnings = append(warnings, fmt.Sprintf("image too dark (brightness %.1f)", mean))
	}
	if mean > maxBrightness {
		warnings = append(warnings, fmt.Sprintf("image too bright or washed out (brightness %.1f)", mean))
	}
	if stddev < minContrast {
		warnings = append(warnings, fmt.Sprintf("very low contrast (%.1f), text may not be readable", stddev))
	}
	return warnings
}

// grayStats returns the mean and standard deviation of the image's luminance
// on the 0..255 scale.
func grayStats(img image.Image) (mean, stddev float64) {
	g := toGray(img)
	b := g.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(g.GrayAt(x, y).Y)
		}
	}
	mean = sum / n

	var sq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := float64(g.GrayAt(x, y).Y) - mean
			sq += d * d
		}
	}
	return mean, math.Sqrt(sq / n)
}
