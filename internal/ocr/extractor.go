package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/imageprep"
)

// Config for the multi-strategy text extractor.
type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	Lang          string // default "eng"
	TessdataDir   string
	TempDir       string // passed to the preprocessor for temp artifacts
	MinTextLength int    // default MinUsableLength
}

// preprocessor abstracts imageprep so strategies can be stubbed in tests.
type preprocessor interface {
	Preprocess(ctx context.Context, path string, opts imageprep.Options) (string, []string, func(), error)
}

// Extractor runs a fixed set of recognition strategies over a bill image and
// keeps the best-scoring text. A single strategy's failure never aborts the
// others.
type Extractor struct {
	cfg    Config
	runner Runner
	prep   preprocessor
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = MinUsableLength
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	e.prep = imageprep.NewPreprocessor(e, cfg.TempDir, logger)
	return e
}

type attempt struct {
	strategy string
	text     string
	score    float64
}

// Extract returns the best text any strategy produced, or an extraction error
// when every strategy yields unusable output.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	start := time.Now()

	if _, err := os.Stat(path); err != nil {
		return "", common.NewExtractionError("ocr", fmt.Sprintf("image file not found: %s", path), err)
	}

	var results []attempt
	run := func(strategy string, fn func() (string, error)) {
		text, err := fn()
		if err != nil {
			e.logger.Warn("ocr.strategy_failed", "strategy", strategy, "path", path, "error", err)
			return
		}
		text = Normalize(text)
		results = append(results, attempt{strategy: strategy, text: text, score: Score(text)})
		e.logger.Debug("ocr.strategy_done", "strategy", strategy, "chars", len(text))
	}

	run("direct_psm6", func() (string, error) { return e.tesseract(ctx, path, 6) })
	run("preprocessed_rotated", func() (string, error) { return e.viaPreprocess(ctx, path, true) })
	run("preprocessed", func() (string, error) { return e.viaPreprocess(ctx, path, false) })
	run("direct_psm3", func() (string, error) { return e.tesseract(ctx, path, 3) })

	if len(results) == 0 {
		return "", common.NewExtractionError("ocr", "all OCR strategies failed", nil)
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.score > best.score {
			best = r
		}
	}

	if len([]rune(best.text)) < e.cfg.MinTextLength {
		e.logger.Error("ocr.best_result_too_short", "path", path, "strategy", best.strategy, "chars", len(best.text))
		return "", common.NewExtractionError("ocr",
			"no text detected in image; ensure the photo is clear and contains readable text", nil)
	}

	e.logger.Info("ocr.extract_ok",
		"path", path,
		"strategy", best.strategy,
		"score", best.score,
		"chars", len(best.text),
		"strategies_run", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return best.text, nil
}

// tesseract invokes the engine with the given page segmentation mode.
func (e *Extractor) tesseract(ctx context.Context, path string, psm int) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Lang, "--psm", fmt.Sprintf("%d", psm)}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract psm %d: %w (%s)", psm, err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// viaPreprocess enhances the image first, then recognizes the temp artifact.
func (e *Extractor) viaPreprocess(ctx context.Context, path string, detectRotation bool) (string, error) {
	out, _, cleanup, err := e.prep.Preprocess(ctx, path, imageprep.Options{DetectRotation: detectRotation})
	if err != nil {
		return "", fmt.Errorf("preprocess: %w", err)
	}
	defer cleanup()
	return e.tesseract(ctx, out, 6)
}
