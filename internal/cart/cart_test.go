package cart

import "testing"

func TestAddItemMergesByProductID(t *testing.T) {
	c := New()
	c.AddItem("p1", "Jamu Kunyit", 20000)
	c.AddItem("1", "Jamu Kunyit", 20000)
	c.AddItem("2", "Wedang Jahe", 12000)

	lines := c.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ProductID != "1" || lines[0].Qty != 2 {
		t.Fatalf("expected merged line qty 2, got %+v", lines[0])
	}
	if got := c.Subtotal(); got != 52000 {
		t.Fatalf("subtotal = %d, want 52000", got)
	}
}

func TestDecQtyRemovesLineAtZero(t *testing.T) {
	c := New()
	c.AddItem("1", "Jamu", 20000)
	c.IncQty("1")
	c.DecQty("1")
	c.DecQty("1")

	if lines := c.Lines(); len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", lines)
	}
	if got := c.Subtotal(); got != 0 {
		t.Fatalf("subtotal of empty cart = %d", got)
	}

	// Decrementing a missing line is a no-op.
	c.DecQty("1")
}

func TestSubtotalTracksMutationSequences(t *testing.T) {
	c := New()
	c.AddItem("1", "A", 1000)
	c.AddItem("2", "B", 2500)
	c.IncQty("2")
	c.IncQty("2")
	c.DecQty("1")
	c.AddItem("3", "C", 700)

	lines := c.Lines()
	var want int64
	for _, line := range lines {
		if line.Qty < 1 {
			t.Fatalf("line with qty < 1 survived: %+v", line)
		}
		want += line.UnitPrice * int64(line.Qty)
	}
	if got := c.Subtotal(); got != want {
		t.Fatalf("subtotal = %d, recomputed = %d", got, want)
	}
}

func TestClearResetsNote(t *testing.T) {
	c := New()
	c.AddItem("1", "A", 1000)
	c.SetNote("  bungkus  ")
	if c.Note() != "bungkus" {
		t.Fatalf("expected trimmed note, got %q", c.Note())
	}
	c.Clear()
	if c.Note() != "" || len(c.Lines()) != 0 {
		t.Fatalf("clear should drop lines and note")
	}
}
