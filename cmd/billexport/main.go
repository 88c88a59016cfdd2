// billexport writes a group's READY expenses to an XLSX workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/splitmate/billscan/internal/common"
	"github.com/splitmate/billscan/internal/export"
	repo "github.com/splitmate/billscan/internal/repository"
)

func main() {
	var (
		out     = flag.String("o", "expenses.xlsx", "output file")
		timeout = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: billexport [flags] <group-id>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	groupID, err := uuid.Parse(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid group id: %s\n", flag.Arg(0))
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "DB_URL is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		fatal(err)
	}
	defer pool.Close()

	svc := export.NewService(
		repo.NewExpenseRepository(pool, logger),
		repo.NewBalanceRepository(pool, logger),
		logger,
	)
	data, err := svc.ExportGroupXLSX(ctx, groupID)
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fatal(err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "billexport: %s\n", err)
	os.Exit(1)
}
