package printer

import (
	"fmt"
	"strconv"
	"strings"
)

// 58mm paper at the default font.
const DefaultWidth = 30

const (
	itemCol  = 18
	qtyCol   = 4
	priceCol = 8
)

var (
	escInit    = []byte{0x1b, 0x40}
	escBoldOn  = []byte{0x1b, 0x45, 0x01}
	escBoldOff = []byte{0x1b, 0x45, 0x00}
	escCenter  = []byte{0x1b, 0x61, 0x01}
	escLeft    = []byte{0x1b, 0x61, 0x00}
	escCut     = []byte{0x1d, 0x56, 0x41, 0x10}
)

// Render produces the raw ESC/POS byte stream for the receipt.
func Render(receipt Receipt, width int) []byte {
	if width <= 0 {
		width = DefaultWidth
	}
	tx := receipt.Transaction

	out := make([]byte, 0, 512)
	out = append(out, escInit...)

	out = append(out, escCenter...)
	out = append(out, escBoldOn...)
	out = appendLine(out, receipt.StoreName)
	out = append(out, escBoldOff...)
	out = appendLine(out, "Receipt: "+tx.ReceiptNo)
	out = appendLine(out, tx.CreatedAt.Local().Format("02 Jan 2006 15:04"))
	out = appendLine(out, "")

	out = append(out, escLeft...)
	out = appendLine(out, columns("Item", "Qty", "Rp"))
	out = appendLine(out, strings.Repeat("-", width))
	for _, line := range tx.Items {
		out = appendLine(out, columns(line.Name, strconv.Itoa(line.Qty), groupDigits(line.UnitPrice*int64(line.Qty))))
	}
	out = appendLine(out, strings.Repeat("-", width))

	out = appendLine(out, "METODE : "+paymentLabel(tx.PaymentMethod))
	out = appendLine(out, "TOTAL  : "+groupDigits(tx.TotalAmount))
	out = appendLine(out, "BAYAR  : "+groupDigits(tx.PaidAmount))
	out = appendLine(out, "KEMBALI: "+groupDigits(tx.ChangeAmount))

	if note := strings.TrimSpace(receipt.Note); note != "" {
		out = appendLine(out, "")
		out = appendLine(out, "Catatan: "+note)
	}

	out = append(out, escCenter...)
	out = appendLine(out, "")
	out = appendLine(out, "Terima kasih")
	out = appendLine(out, "")
	out = append(out, escCut...)
	return out
}

// Preview renders the same layout as plain text, for on-screen display and
// for printers that only accept text.
func Preview(receipt Receipt, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	tx := receipt.Transaction

	lines := []string{
		center(receipt.StoreName, width),
		center("Receipt: "+tx.ReceiptNo, width),
		center(tx.CreatedAt.Local().Format("02 Jan 2006 15:04"), width),
		"",
		columns("Item", "Qty", "Rp"),
		strings.Repeat("-", width),
	}
	for _, line := range tx.Items {
		lines = append(lines, columns(line.Name, strconv.Itoa(line.Qty), groupDigits(line.UnitPrice*int64(line.Qty))))
	}
	lines = append(lines,
		strings.Repeat("-", width),
		"METODE : "+paymentLabel(tx.PaymentMethod),
		"TOTAL  : "+groupDigits(tx.TotalAmount),
		"BAYAR  : "+groupDigits(tx.PaidAmount),
		"KEMBALI: "+groupDigits(tx.ChangeAmount),
	)
	if note := strings.TrimSpace(receipt.Note); note != "" {
		lines = append(lines, "", "Catatan: "+note)
	}
	lines = append(lines, "", center("Terima kasih", width))
	return strings.Join(lines, "\n")
}

func appendLine(out []byte, line string) []byte {
	out = append(out, []byte(line)...)
	return append(out, '\n')
}

func columns(item, qty, price string) string {
	if len(item) > itemCol {
		item = item[:itemCol-3] + "..."
	}
	return fmt.Sprintf("%-*s%*s%*s", itemCol, item, qtyCol, qty, priceCol, price)
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func paymentLabel(method string) string {
	if method == "QRIS" {
		return "QRIS"
	}
	return "Tunai"
}

// groupDigits inserts dots every three digits, Indonesian style.
func groupDigits(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
