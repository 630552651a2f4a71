package domain

import "testing"

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"p12", "12"},
		{"P7", "7"},
		{"12", "12"},
		{"prod-12", "prod-12"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeID(tc.in); got != tc.want {
			t.Fatalf("NormalizeID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNumericID(t *testing.T) {
	if n, ok := NumericID("42"); !ok || n != 42 {
		t.Fatalf("plain number: got %d ok=%v", n, ok)
	}
	if n, ok := NumericID("p42"); !ok || n != 42 {
		t.Fatalf("prefixed: got %d ok=%v", n, ok)
	}
	if n, ok := NumericID("  prod-15  "); !ok || n != 15 {
		t.Fatalf("embedded digits: got %d ok=%v", n, ok)
	}
	if _, ok := NumericID("draft"); ok {
		t.Fatalf("expected no numeric id for %q", "draft")
	}
	if _, ok := NumericID(""); ok {
		t.Fatalf("expected no numeric id for empty string")
	}
}

func TestItemsTotal(t *testing.T) {
	tx := LocalTransaction{Items: []CartLine{
		{ProductID: "1", UnitPrice: 20000, Qty: 2},
		{ProductID: "2", UnitPrice: 5000, Qty: 3},
	}}
	if got := tx.ItemsTotal(); got != 55000 {
		t.Fatalf("ItemsTotal = %d, want 55000", got)
	}
}

func TestStockChangeAdjustmentType(t *testing.T) {
	if (StockChange{Delta: -3}).AdjustmentType() != AdjustmentReduce {
		t.Fatalf("negative delta should be REDUCE")
	}
	if (StockChange{Delta: 0}).AdjustmentType() != AdjustmentAdd {
		t.Fatalf("zero delta should be ADD")
	}
	if (StockChange{Delta: 4}).AdjustmentType() != AdjustmentAdd {
		t.Fatalf("positive delta should be ADD")
	}
}
