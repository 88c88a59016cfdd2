package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/splitmate/billscan/internal/billdata"
	"github.com/splitmate/billscan/internal/llm"
)

// TextExtractor abstracts the multi-strategy OCR extractor.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Result carries the pipeline output. RawText is populated as soon as OCR
// succeeds so callers can persist it even when a later stage fails.
type Result struct {
	RawText string
	Bill    billdata.Bill
}

// Pipeline sequences image -> raw text -> structured JSON -> validated bill.
// Data flows one way; each stage returns a typed pipeline error the
// orchestrator classifies as terminal or transient.
type Pipeline struct {
	text             TextExtractor
	bill             llm.BillExtractor
	tolerancePercent float64
	logger           *slog.Logger
}

func New(text TextExtractor, bill llm.BillExtractor, tolerancePercent float64, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if tolerancePercent <= 0 {
		tolerancePercent = billdata.DefaultTolerancePercent
	}
	return &Pipeline{text: text, bill: bill, tolerancePercent: tolerancePercent, logger: logger}
}

// Run executes all three stages in order.
func (p *Pipeline) Run(ctx context.Context, imagePath string) (Result, error) {
	start := time.Now()
	var res Result

	text, err := p.text.Extract(ctx, imagePath)
	if err != nil {
		p.logger.Error("pipeline.ocr_failed", "path", imagePath, "error", err)
		return res, err
	}
	res.RawText = text
	p.logger.Info("pipeline.ocr_ok", "path", imagePath, "chars", len(text))

	raw, err := p.bill.ExtractBill(ctx, text)
	if err != nil {
		p.logger.Error("pipeline.llm_failed", "path", imagePath, "error", err)
		return res, err
	}
	p.logger.Info("pipeline.llm_ok", "path", imagePath, "reply_bytes", len(raw))

	bill, err := billdata.Validate(raw, p.tolerancePercent, p.logger)
	if err != nil {
		p.logger.Error("pipeline.validate_failed", "path", imagePath, "error", err)
		return res, err
	}
	res.Bill = bill

	p.logger.Info("pipeline.ok",
		"path", imagePath,
		"items", len(bill.Items),
		"total", bill.Total.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
