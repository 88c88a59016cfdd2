package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/splitmate/billscan/internal/entity"
	"github.com/splitmate/billscan/internal/repository"
)

// ExpenseLister is the slice of the expense repository the exporter needs.
type ExpenseLister interface {
	ListReadyByGroup(ctx context.Context, groupID uuid.UUID) ([]repository.GroupExpense, error)
}

// BalanceLister reads the cached per-member net positions.
type BalanceLister interface {
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]entity.GroupBalance, error)
}

// Service is a tiny façade over the repositories that produces XLSX bytes for
// group exports.
type Service struct {
	expenses ExpenseLister
	balances BalanceLister
	logger   *slog.Logger
}

func NewService(expenses ExpenseLister, balances BalanceLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{expenses: expenses, balances: balances, logger: logger}
}

// ExportGroupXLSX returns an XLSX workbook (as bytes) with one row per line
// item of every READY expense in the group, followed by the expense totals.
func (s *Service) ExportGroupXLSX(ctx context.Context, groupID uuid.UUID) ([]byte, error) {
	start := time.Now()

	recs, err := s.expenses.ListReadyByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Expenses"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Expense ID",
		"Item",
		"Quantity",
		"Price",
		"Subtotal",
		"Tax",
		"Total",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	items := 0
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if len(r.Items) == 0 {
			// Manual expenses carry no line items; emit the totals row alone.
			write(1, r.Expense.CreatedAt.Format("2006-01-02"))
			write(2, r.Expense.ID.String())
			write(6, r.Expense.Subtotal.StringFixed(2))
			write(7, r.Expense.Tax.StringFixed(2))
			write(8, r.Expense.Total.StringFixed(2))
			row++
			continue
		}

		for i, it := range r.Items {
			write(1, r.Expense.CreatedAt.Format("2006-01-02"))
			write(2, r.Expense.ID.String())
			write(3, truncate(it.Name, 140))
			write(4, it.Quantity)
			write(5, it.Price.StringFixed(2))
			// Totals only on the expense's first row, so sums over the
			// column stay correct.
			if i == 0 {
				write(6, r.Expense.Subtotal.StringFixed(2))
				write(7, r.Expense.Tax.StringFixed(2))
				write(8, r.Expense.Total.StringFixed(2))
			}
			row++
			items++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 14) // date
	_ = f.SetColWidth(sheet, "B", "B", 38) // expense id
	_ = f.SetColWidth(sheet, "C", "C", 32) // item
	_ = f.SetColWidth(sheet, "D", "E", 12) // qty, price
	_ = f.SetColWidth(sheet, "F", "H", 12) // amounts

	if err := s.writeBalances(ctx, f, groupID); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"group_id", groupID.String(),
		"expenses", len(recs),
		"items", items,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// writeBalances adds a second sheet with each member's net position.
// Positive means the member is owed money.
func (s *Service) writeBalances(ctx context.Context, f *excelize.File, groupID uuid.UUID) error {
	bals, err := s.balances.ListByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("query balances: %w", err)
	}
	if len(bals) == 0 {
		return nil
	}

	const sheet = "Balances"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	write(1, 1, "Member")
	write(2, 1, "Net Balance")
	write(3, 1, "Updated")

	for i, b := range bals {
		write(1, i+2, b.UserID.String())
		write(2, i+2, b.Net.StringFixed(2))
		write(3, i+2, b.UpdatedAt.Format("2006-01-02 15:04"))
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 14)
	_ = f.SetColWidth(sheet, "C", "C", 20)
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
