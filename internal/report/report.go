// Package report derives sales summaries from a transaction snapshot and
// exports them as XLSX workbooks.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"kassirpos/agent/internal/domain"
)

// Summary aggregates one calendar day of sales.
type Summary struct {
	Date         string `json:"date"`
	Transactions int    `json:"transactions"`
	GrossAmount  int64  `json:"gross_amount"`
	CashAmount   int64  `json:"cash_amount"`
	QRISAmount   int64  `json:"qris_amount"`
	Pending      int    `json:"pending"`
}

// ProductSales ranks one product's sales inside a summary window.
type ProductSales struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Revenue   int64  `json:"revenue"`
}

// Daily summarizes the transactions recorded on the given calendar day.
// Day boundaries follow the day's own location.
func Daily(txs []domain.LocalTransaction, day time.Time) Summary {
	summary := Summary{Date: day.Format("2006-01-02")}
	for _, tx := range txs {
		if !sameDay(tx.CreatedAt, day) {
			continue
		}
		summary.Transactions++
		summary.GrossAmount += txTotal(tx)
		switch tx.PaymentMethod {
		case domain.PaymentQRIS:
			summary.QRISAmount += txTotal(tx)
		default:
			summary.CashAmount += txTotal(tx)
		}
		if tx.Status == domain.TxStatusPending {
			summary.Pending++
		}
	}
	return summary
}

// TopProducts ranks products across the given transactions by quantity
// sold, revenue breaking ties. Limit <= 0 means no limit.
func TopProducts(txs []domain.LocalTransaction, day time.Time, limit int) []ProductSales {
	byProduct := make(map[string]*ProductSales)
	order := make([]string, 0)
	for _, tx := range txs {
		if !sameDay(tx.CreatedAt, day) {
			continue
		}
		for _, item := range tx.Items {
			entry, ok := byProduct[item.ProductID]
			if !ok {
				entry = &ProductSales{ProductID: item.ProductID, Name: item.Name}
				byProduct[item.ProductID] = entry
				order = append(order, item.ProductID)
			}
			entry.Qty += item.Qty
			entry.Revenue += item.UnitPrice * int64(item.Qty)
			if entry.Name == "" {
				entry.Name = item.Name
			}
		}
	}

	ranked := make([]ProductSales, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, *byProduct[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Qty != ranked[j].Qty {
			return ranked[i].Qty > ranked[j].Qty
		}
		return ranked[i].Revenue > ranked[j].Revenue
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

const sheetName = "Laporan Harian"

// WriteXLSX renders the daily summary and product ranking as a one-sheet
// workbook and writes it to w.
func WriteXLSX(w io.Writer, summary Summary, top []ProductSales) error {
	file := excelize.NewFile()
	defer file.Close()

	index, err := file.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	set := func(cell string, value any) {
		// SetCellValue only fails on malformed coordinates.
		_ = file.SetCellValue(sheetName, cell, value)
	}

	set("A1", "Tanggal")
	set("B1", summary.Date)
	set("A2", "Jumlah Transaksi")
	set("B2", summary.Transactions)
	set("A3", "Penjualan Kotor")
	set("B3", summary.GrossAmount)
	set("A4", "Tunai")
	set("B4", summary.CashAmount)
	set("A5", "QRIS")
	set("B5", summary.QRISAmount)
	set("A6", "Belum Tersinkron")
	set("B6", summary.Pending)

	set("A8", "Produk")
	set("B8", "Qty")
	set("C8", "Pendapatan")
	for i, product := range top {
		row := 9 + i
		set(fmt.Sprintf("A%d", row), product.Name)
		set(fmt.Sprintf("B%d", row), product.Qty)
		set(fmt.Sprintf("C%d", row), product.Revenue)
	}

	numberStyle, err := file.NewStyle(&excelize.Style{NumFmt: 3})
	if err == nil {
		last := 9 + len(top)
		_ = file.SetCellStyle(sheetName, "B3", fmt.Sprintf("C%d", last), numberStyle)
	}
	_ = file.SetColWidth(sheetName, "A", "A", 28)

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func txTotal(tx domain.LocalTransaction) int64 {
	if tx.TotalAmount > 0 {
		return tx.TotalAmount
	}
	return tx.ItemsTotal()
}

func sameDay(at, day time.Time) bool {
	y1, m1, d1 := at.In(day.Location()).Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
