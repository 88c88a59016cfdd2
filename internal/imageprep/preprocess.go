package imageprep

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// Options controls optional preprocessing behavior.
type Options struct {
	DetectRotation bool
}

// RotationDetector reports the clockwise text rotation of an image in degrees
// (0, 90, 180, 270). Implemented by the OCR engine's orientation detection.
type RotationDetector interface {
	DetectRotation(ctx context.Context, path string) (int, error)
}

// Preprocessor enhances bill photos for OCR. Poor quality is logged as
// warnings, never a hard failure; only unreadable input raises.
type Preprocessor struct {
	rot     RotationDetector
	tempDir string
	logger  *slog.Logger
}

func NewPreprocessor(rot RotationDetector, tempDir string, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{rot: rot, tempDir: tempDir, logger: logger}
}

// Preprocess runs the enhancement pipeline and writes the result to a temp PNG,
// since the OCR engine consumes file paths. Call cleanup() to remove it.
//
// Steps: quality validation -> optional rotation correction -> grayscale ->
// denoise -> local contrast enhancement -> sharpen -> adaptive binarization.
func (p *Preprocessor) Preprocess(ctx context.Context, path string, opts Options) (string, []string, func(), error) {
	start := time.Now()

	img, err := imaging.Open(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("open image %s: %w", path, err)
	}

	warnings := ValidateQuality(img)
	for _, w := range warnings {
		p.logger.Warn("imageprep.quality", "path", path, "warning", w)
	}

	if opts.DetectRotation && p.rot != nil {
		angle, rerr := p.rot.DetectRotation(ctx, path)
		if rerr != nil {
			p.logger.Warn("imageprep.rotation_detect_failed", "path", path, "error", rerr)
			warnings = append(warnings, fmt.Sprintf("rotation detection failed: %v", rerr))
		} else if angle != 0 {
			img = rotate(img, angle)
			p.logger.Info("imageprep.rotation_corrected", "path", path, "angle", angle)
		}
	}

	gray := toGray(imaging.Grayscale(img))
	gray = toGray(imaging.Blur(gray, 0.8))
	gray = EqualizeLocalContrast(gray, 8, 8, 2.0)
	gray = toGray(imaging.Sharpen(gray, 1.0))
	binary := AdaptiveThreshold(gray, 11, 2)

	out, cleanup, err := p.writeTemp(binary)
	if err != nil {
		return "", warnings, nil, err
	}

	p.logger.Debug("imageprep.done",
		"path", path,
		"out", out,
		"rotation", opts.DetectRotation,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, warnings, cleanup, nil
}

// rotate corrects text orientation. The cardinal angles take the fast path;
// anything else falls back to an affine rotation on a white canvas.
func rotate(img image.Image, angle int) image.Image {
	switch ((angle % 360) + 360) % 360 {
	case 0:
		return img
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Rotate(img, float64(angle), color.White)
	}
}

func (p *Preprocessor) writeTemp(img image.Image) (string, func(), error) {
	dir, err := os.MkdirTemp(p.tempDir, "billscan-prep-*")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	out := filepath.Join(dir, "prep.png")
	if err := imaging.Save(img, out); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("save preprocessed image: %w", err)
	}
	return out, cleanup, nil
}

// toGray converts any image to 8-bit grayscale without scaling.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}
