package ocr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/imageprep"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRunner struct {
	run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

func (s stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return s.run(ctx, name, args...)
}

type stubPrep struct {
	out string
	err error
}

func (s stubPrep) Preprocess(_ context.Context, _ string, _ imageprep.Options) (string, []string, func(), error) {
	if s.err != nil {
		return "", nil, nil, s.err
	}
	return s.out, nil, func() {}, nil
}

func newTestExtractor(t *testing.T, runner Runner, prep preprocessor) (*Extractor, string) {
	t.Helper()
	img := filepath.Join(t.TempDir(), "bill.png")
	require.NoError(t, os.WriteFile(img, []byte("fake"), 0o644))

	e := NewExtractor(Config{Tesseract: "tesseract-stub"}, testLogger())
	e.runner = runner
	e.prep = prep
	return e, img
}

func psmOf(args []string) string {
	for i, a := range args {
		if a == "--psm" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestExtractPicksBestStrategy(t *testing.T) {
	rich := "Burger 8.50\nFries 3.00\nSubtotal 11.50\nTax 0.92\nTotal 12.42"
	runner := stubRunner{run: func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		if psmOf(args) == "3" {
			return []byte(rich), nil, nil
		}
		return []byte("noisy short garbage text here"), nil, nil
	}}

	e, img := newTestExtractor(t, runner, stubPrep{err: errors.New("no preprocessing in this test")})

	got, err := e.Extract(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, rich, got)
}

func TestExtractAllStrategiesFail(t *testing.T) {
	runner := stubRunner{run: func(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		return nil, []byte("engine exploded"), errors.New("exit status 1")
	}}
	e, img := newTestExtractor(t, runner, stubPrep{err: errors.New("unreadable")})

	_, err := e.Extract(context.Background(), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all OCR strategies failed")

	var pe *common.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, common.KindExtraction, pe.Kind)
}

func TestExtractRejectsUnusablyShortText(t *testing.T) {
	runner := stubRunner{run: func(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		return []byte("ab\n"), nil, nil
	}}
	e, img := newTestExtractor(t, runner, stubPrep{err: errors.New("skip")})

	_, err := e.Extract(context.Background(), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text detected in image")
}

func TestExtractMissingFile(t *testing.T) {
	e := NewExtractor(Config{}, testLogger())
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image file not found")
}

func TestExtractUsesPreprocessedArtifact(t *testing.T) {
	prepOut := filepath.Join(t.TempDir(), "prep.png")
	rich := "Latte 4.50\nCroissant 3.25\nSubtotal 7.75\nTax 0.62\nTotal 8.37"

	var sawPrepPath bool
	runner := stubRunner{run: func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		if len(args) > 0 && args[0] == prepOut {
			sawPrepPath = true
			return []byte(rich), nil, nil
		}
		return nil, nil, errors.New("direct pass fails")
	}}

	e, img := newTestExtractor(t, runner, stubPrep{out: prepOut})

	got, err := e.Extract(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, sawPrepPath, "expected recognition over the preprocessed artifact")
	assert.Equal(t, rich, got)
}

func TestDetectRotation(t *testing.T) {
	osd := `Page number: 0
Orientation in degrees: 270
Rotate: 90
Orientation confidence: 12.34
Script: Latin`

	runner := stubRunner{run: func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "0", psmOf(args))
		return []byte(osd), nil, nil
	}}
	e, img := newTestExtractor(t, runner, stubPrep{})

	angle, err := e.DetectRotation(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, 90, angle)
}

func TestDetectRotationNoOSDLine(t *testing.T) {
	runner := stubRunner{run: func(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		return []byte("Script: Latin"), nil, nil
	}}
	e, img := newTestExtractor(t, runner, stubPrep{})

	angle, err := e.DetectRotation(context.Background(), img)
	require.NoError(t, err)
	assert.Zero(t, angle)
}
