package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/splitmate/billscan/constants"
	"github.com/splitmate/billscan/internal/entity"
	"github.com/splitmate/billscan/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLister struct {
	recs []repository.GroupExpense
	err  error
}

func (f fakeLister) ListReadyByGroup(context.Context, uuid.UUID) ([]repository.GroupExpense, error) {
	return f.recs, f.err
}

type fakeBalances struct {
	bals []entity.GroupBalance
	err  error
}

func (f fakeBalances) ListByGroup(context.Context, uuid.UUID) ([]entity.GroupBalance, error) {
	return f.bals, f.err
}

func readyExpense(total string, items ...entity.ExpenseItem) repository.GroupExpense {
	return repository.GroupExpense{
		Expense: entity.Expense{
			ID:        uuid.New(),
			Status:    constants.StatusReady,
			Subtotal:  decimal.RequireFromString(total),
			Tax:       decimal.Zero,
			Total:     decimal.RequireFromString(total),
			CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		},
		Items: items,
	}
}

func TestExportGroupXLSX(t *testing.T) {
	recs := []repository.GroupExpense{
		readyExpense("11.50",
			entity.ExpenseItem{Name: "Burger", Quantity: 2, Price: decimal.RequireFromString("8.50")},
			entity.ExpenseItem{Name: "Fries", Quantity: 1, Price: decimal.RequireFromString("3.00")},
		),
	}
	member := uuid.New()
	bals := []entity.GroupBalance{
		{GroupID: uuid.New(), UserID: member, Net: decimal.RequireFromString("5.75"), UpdatedAt: time.Now()},
	}
	svc := NewService(fakeLister{recs: recs}, fakeBalances{bals: bals}, testLogger())

	data, err := svc.ExportGroupXLSX(context.Background(), uuid.New())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	got := func(sheet, cell string) string {
		v, cerr := f.GetCellValue(sheet, cell)
		require.NoError(t, cerr)
		return v
	}

	assert.Equal(t, "Item", got("Expenses", "C1"))
	assert.Equal(t, "2026-08-30", got("Expenses", "A2"))
	assert.Equal(t, "Burger", got("Expenses", "C2"))
	assert.Equal(t, "2", got("Expenses", "D2"))
	assert.Equal(t, "11.50", got("Expenses", "H2"), "totals on the first item row")
	assert.Equal(t, "Fries", got("Expenses", "C3"))
	assert.Empty(t, got("Expenses", "H3"), "no duplicated totals on later rows")

	assert.Equal(t, member.String(), got("Balances", "A2"))
	assert.Equal(t, "5.75", got("Balances", "B2"))
}

func TestExportGroupXLSXNoItems(t *testing.T) {
	svc := NewService(fakeLister{recs: []repository.GroupExpense{readyExpense("25.00")}}, fakeBalances{}, testLogger())

	data, err := svc.ExportGroupXLSX(context.Background(), uuid.New())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	v, err := f.GetCellValue("Expenses", "H2")
	require.NoError(t, err)
	assert.Equal(t, "25.00", v, "manual expenses still export their totals")
}

func TestExportGroupXLSXListError(t *testing.T) {
	svc := NewService(fakeLister{err: errors.New("db down")}, fakeBalances{}, testLogger())
	_, err := svc.ExportGroupXLSX(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query expenses")
}
