package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"kassirpos/agent/internal/domain"
)

func sampleDay() time.Time {
	return time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
}

func sampleTransactions() []domain.LocalTransaction {
	day := sampleDay()
	return []domain.LocalTransaction{
		{
			LocalID:       "tx-1",
			CreatedAt:     day.Add(9 * time.Hour),
			TotalAmount:   45000,
			PaymentMethod: domain.PaymentCash,
			Status:        domain.TxStatusSynced,
			Items: []domain.CartLine{
				{ProductID: "1", Name: "Jamu Kunyit Asam", UnitPrice: 15000, Qty: 3},
			},
		},
		{
			LocalID:       "tx-2",
			CreatedAt:     day.Add(14 * time.Hour),
			TotalAmount:   24000,
			PaymentMethod: domain.PaymentQRIS,
			Status:        domain.TxStatusPending,
			Items: []domain.CartLine{
				{ProductID: "2", Name: "Wedang Jahe", UnitPrice: 12000, Qty: 2},
				{ProductID: "1", Name: "Jamu Kunyit Asam", UnitPrice: 15000, Qty: 0},
			},
		},
		{
			LocalID:       "tx-other-day",
			CreatedAt:     day.AddDate(0, 0, -1),
			TotalAmount:   99999,
			PaymentMethod: domain.PaymentCash,
			Status:        domain.TxStatusSynced,
		},
	}
}

func TestDaily(t *testing.T) {
	summary := Daily(sampleTransactions(), sampleDay())

	assert.Equal(t, "2026-08-30", summary.Date)
	assert.Equal(t, 2, summary.Transactions)
	assert.Equal(t, int64(69000), summary.GrossAmount)
	assert.Equal(t, int64(45000), summary.CashAmount)
	assert.Equal(t, int64(24000), summary.QRISAmount)
	assert.Equal(t, 1, summary.Pending)
}

func TestDailyRecomputesMissingTotals(t *testing.T) {
	txs := []domain.LocalTransaction{{
		CreatedAt:     sampleDay().Add(time.Hour),
		TotalAmount:   0,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.CartLine{
			{ProductID: "1", UnitPrice: 10000, Qty: 2},
		},
	}}
	summary := Daily(txs, sampleDay())
	assert.Equal(t, int64(20000), summary.GrossAmount)
}

func TestTopProducts(t *testing.T) {
	top := TopProducts(sampleTransactions(), sampleDay(), 0)

	require.Len(t, top, 2)
	assert.Equal(t, "1", top[0].ProductID)
	assert.Equal(t, 3, top[0].Qty)
	assert.Equal(t, int64(45000), top[0].Revenue)
	assert.Equal(t, "Wedang Jahe", top[1].Name)

	limited := TopProducts(sampleTransactions(), sampleDay(), 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "1", limited[0].ProductID)
}

func TestWriteXLSX(t *testing.T) {
	summary := Daily(sampleTransactions(), sampleDay())
	top := TopProducts(sampleTransactions(), sampleDay(), 5)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, summary, top))

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	require.Contains(t, file.GetSheetList(), "Laporan Harian")

	date, err := file.GetCellValue("Laporan Harian", "B1")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-30", date)

	firstProduct, err := file.GetCellValue("Laporan Harian", "A9")
	require.NoError(t, err)
	assert.Equal(t, "Jamu Kunyit Asam", firstProduct)
}
