package imageprep

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// receiptLike draws dark "text" rows on a light background.
func receiptLike(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(220)
			if y%12 < 3 && x > 10 && x < w-10 {
				v = 40
			}
			img.Pix[img.PixOffset(x, y)] = v
		}
	}
	return img
}

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestValidateQualityCleanImage(t *testing.T) {
	assert.Empty(t, ValidateQuality(receiptLike(400, 600)))
}

func TestValidateQualityWarnings(t *testing.T) {
	t.Run("too small", func(t *testing.T) {
		ws := ValidateQuality(receiptLike(50, 600))
		require.NotEmpty(t, ws)
		assert.Contains(t, ws[0], "too small")
	})

	t.Run("too dark and flat", func(t *testing.T) {
		ws := ValidateQuality(uniform(200, 200, 10))
		require.Len(t, ws, 2)
		assert.Contains(t, ws[0], "too dark")
		assert.Contains(t, ws[1], "low contrast")
	})

	t.Run("washed out", func(t *testing.T) {
		ws := ValidateQuality(uniform(200, 200, 250))
		require.Len(t, ws, 2)
		assert.Contains(t, ws[0], "too bright")
	})
}

func TestAdaptiveThresholdBinarizes(t *testing.T) {
	out := AdaptiveThreshold(receiptLike(100, 100), 11, 2)

	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 100, out.Bounds().Dy())
	for _, p := range out.Pix {
		assert.True(t, p == 0 || p == 255, "output must be strictly binary, got %d", p)
	}

	// Text strokes must come out dark, background light.
	assert.EqualValues(t, 0, out.GrayAt(50, 13).Y)
	assert.EqualValues(t, 255, out.GrayAt(50, 7).Y)
}

func TestEqualizeLocalContrastSpreadsHistogram(t *testing.T) {
	// Low-contrast input: values squeezed into 100..140.
	img := image.NewGray(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			img.Pix[img.PixOffset(x, y)] = uint8(100 + (x+y)%40)
		}
	}

	_, before := grayStats(img)
	out := EqualizeLocalContrast(img, 8, 8, 2.0)
	_, after := grayStats(out)

	assert.Greater(t, after, before, "equalization should widen the value spread")
	assert.Equal(t, img.Bounds(), out.Bounds())
}

func TestRotateCardinalAngles(t *testing.T) {
	img := receiptLike(100, 200)

	r90 := rotate(img, 90)
	assert.Equal(t, 200, r90.Bounds().Dx())
	assert.Equal(t, 100, r90.Bounds().Dy())

	r180 := rotate(img, 180)
	assert.Equal(t, 100, r180.Bounds().Dx())
	assert.Equal(t, 200, r180.Bounds().Dy())

	assert.Equal(t, img.Bounds(), rotate(img, 0).Bounds())
	assert.Equal(t, r90.Bounds(), rotate(img, -270).Bounds(), "negative angles normalize")
}

type fixedRotation struct {
	angle int
	err   error
	calls int
}

func (f *fixedRotation) DetectRotation(context.Context, string) (int, error) {
	f.calls++
	return f.angle, f.err
}

func writeTestImage(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bill.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestPreprocessProducesBinaryArtifact(t *testing.T) {
	path := writeTestImage(t, receiptLike(300, 400))
	p := NewPreprocessor(nil, t.TempDir(), testLogger())

	out, warnings, cleanup, err := p.Preprocess(context.Background(), path, Options{})
	require.NoError(t, err)
	defer cleanup()

	assert.Empty(t, warnings)
	assert.NotEqual(t, path, out, "source image must never be overwritten")

	got, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 300, got.Bounds().Dx())
	assert.Equal(t, 400, got.Bounds().Dy())

	cleanup()
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err), "cleanup must remove the temp artifact")
}

func TestPreprocessAppliesDetectedRotation(t *testing.T) {
	path := writeTestImage(t, receiptLike(300, 400))
	rot := &fixedRotation{angle: 90}
	p := NewPreprocessor(rot, t.TempDir(), testLogger())

	out, _, cleanup, err := p.Preprocess(context.Background(), path, Options{DetectRotation: true})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, 1, rot.calls)
	got, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 400, got.Bounds().Dx(), "90 degree rotation swaps dimensions")
	assert.Equal(t, 300, got.Bounds().Dy())
}

func TestPreprocessRotationFailureIsWarning(t *testing.T) {
	path := writeTestImage(t, receiptLike(300, 400))
	rot := &fixedRotation{err: errors.New("osd crashed")}
	p := NewPreprocessor(rot, t.TempDir(), testLogger())

	_, warnings, cleanup, err := p.Preprocess(context.Background(), path, Options{DetectRotation: true})
	require.NoError(t, err)
	defer cleanup()

	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1], "rotation detection failed")
}

func TestPreprocessUnreadableImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))

	p := NewPreprocessor(nil, t.TempDir(), testLogger())
	_, _, _, err := p.Preprocess(context.Background(), path, Options{})
	require.Error(t, err)
}
