package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/jobs"
	"github.com/splitmate/billscan/internal/llm"
	"github.com/splitmate/billscan/internal/ocr"
	"github.com/splitmate/billscan/internal/pipeline"
	repo "github.com/splitmate/billscan/internal/repository"
)

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.HealthCheck(ctx, pool, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	expensesRepo := repo.NewExpenseRepository(pool, logger)
	groupsRepo := repo.NewGroupRepository(pool, logger)
	balancesRepo := repo.NewBalanceRepository(pool, logger)

	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		Lang:          cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		TempDir:       cfg.OCR.TempDir,
		MinTextLength: cfg.Pipeline.MinTextLength,
	}, logger)

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	pipe := pipeline.New(extractor, llmClient, cfg.Pipeline.TolerancePercent, logger)
	orchestrator := jobs.NewOrchestrator(pipe, expensesRepo, groupsRepo, balancesRepo, logger)

	queue := jobs.NewProcessorQueue(orchestrator, logger,
		jobs.WithWorkers(cfg.Worker.Workers),
		jobs.WithQueueSize(cfg.Worker.QueueSize),
		jobs.WithProcessTimeout(cfg.Worker.ProcessTimeout),
	)

	poller := jobs.NewPoller(expensesRepo, queue, cfg.Worker.PollInterval, cfg.Worker.PollBatchSize, logger)
	go poller.Run(ctx)

	logger.Info("billscand started",
		"workers", cfg.Worker.Workers,
		"poll_interval", cfg.Worker.PollInterval.String(),
		"model", cfg.LLM.Model,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	queue.Shutdown(context.Background())
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("LOG_FORMAT") == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
