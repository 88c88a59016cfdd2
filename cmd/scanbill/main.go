// scanbill runs the extraction pipeline once over a bill image and prints the
// validated bill as JSON. Useful for tuning OCR and prompt changes without a
// database or worker fleet.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/splitmate/billscan/constants"
	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/llm"
	"github.com/splitmate/billscan/internal/ocr"
	"github.com/splitmate/billscan/internal/pipeline"
)

func main() {
	var (
		rawOnly = flag.Bool("raw", false, "print recognized text only, skip inference")
		timeout = flag.Duration("timeout", 5*time.Minute, "overall deadline")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: scanbill [flags] <image>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	imagePath := flag.Arg(0)
	if !constants.IsImageExt(filepath.Ext(imagePath)) {
		fmt.Fprintf(os.Stderr, "unsupported image type: %s\n", imagePath)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		Lang:          cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		TempDir:       cfg.OCR.TempDir,
		MinTextLength: cfg.Pipeline.MinTextLength,
	}, logger)

	if *rawOnly {
		text, err := extractor.Extract(ctx, imagePath)
		if err != nil {
			fatal(err)
		}
		fmt.Println(text)
		return
	}

	if cfg.LLM.APIKey == "" {
		fmt.Fprintln(os.Stderr, "LLM_API_KEY is required (or pass -raw for OCR only)")
		os.Exit(2)
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	pipe := pipeline.New(extractor, llmClient, cfg.Pipeline.TolerancePercent, logger)
	res, err := pipe.Run(ctx, imagePath)
	if err != nil {
		if res.RawText != "" {
			fmt.Fprintln(os.Stderr, "--- recognized text ---")
			fmt.Fprintln(os.Stderr, res.RawText)
		}
		fatal(err)
	}

	out, err := json.MarshalIndent(res.Bill, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "scanbill: %s\n", common.Reason(err))
	os.Exit(1)
}
