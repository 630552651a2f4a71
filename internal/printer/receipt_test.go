package printer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"kassirpos/agent/internal/domain"
)

func sampleReceipt() Receipt {
	return Receipt{
		StoreName: "Kedai Sanjaya",
		Transaction: domain.LocalTransaction{
			ReceiptNo:     "RCP-20260830-A1B2",
			CreatedAt:     time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC),
			TotalAmount:   40000,
			PaidAmount:    50000,
			ChangeAmount:  10000,
			PaymentMethod: domain.PaymentCash,
			Items: []domain.CartLine{
				{ProductID: "1", Name: "Jamu Kunyit Asam Segar Botol", UnitPrice: 20000, Qty: 2},
			},
		},
		Note: "tanpa es",
	}
}

func TestRenderProducesEscposFraming(t *testing.T) {
	raw := Render(sampleReceipt(), DefaultWidth)
	if !bytes.HasPrefix(raw, []byte{0x1b, 0x40}) {
		t.Fatalf("expected ESC @ init prefix")
	}
	if !bytes.HasSuffix(raw, []byte{0x1d, 0x56, 0x41, 0x10}) {
		t.Fatalf("expected partial-cut suffix")
	}
	if !bytes.Contains(raw, []byte("TOTAL  : 40.000")) {
		t.Fatalf("expected formatted total in output")
	}
}

func TestPreviewLayout(t *testing.T) {
	text := Preview(sampleReceipt(), DefaultWidth)

	if !strings.Contains(text, "Receipt: RCP-20260830-A1B2") {
		t.Fatalf("missing receipt number:\n%s", text)
	}
	if !strings.Contains(text, "METODE : Tunai") {
		t.Fatalf("missing payment method:\n%s", text)
	}
	if !strings.Contains(text, "KEMBALI: 10.000") {
		t.Fatalf("missing change line:\n%s", text)
	}
	if !strings.Contains(text, "Catatan: tanpa es") {
		t.Fatalf("missing note line:\n%s", text)
	}
	// Long product names truncate to the item column.
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "...") && len(line) > DefaultWidth {
			t.Fatalf("truncated line overflows width: %q", line)
		}
	}
}

func TestGroupDigits(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1.000",
		1250000:  "1.250.000",
		-40000:   "-40.000",
		20000000: "20.000.000",
	}
	for in, want := range cases {
		if got := groupDigits(in); got != want {
			t.Fatalf("groupDigits(%d) = %q, want %q", in, got, want)
		}
	}
}
