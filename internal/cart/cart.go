// Package cart holds the active sale session. Lines are frozen quotes: the
// unit price is captured when the item is added and never re-checked against
// the catalog.
package cart

import (
	"strings"
	"sync"

	"kassirpos/agent/internal/domain"
)

type Cart struct {
	mu    sync.Mutex
	lines []domain.CartLine
	note  string
}

func New() *Cart {
	return &Cart{}
}

// AddItem adds one unit of the product, merging by product id when the line
// already exists.
func (c *Cart) AddItem(productID, name string, unitPrice int64) {
	productID = domain.NormalizeID(productID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Qty++
			return
		}
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID: productID,
		Name:      name,
		UnitPrice: unitPrice,
		Qty:       1,
	})
}

func (c *Cart) IncQty(productID string) {
	productID = domain.NormalizeID(productID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Qty++
			return
		}
	}
}

// DecQty decrements the line; reaching zero removes it, so no surviving line
// ever has qty < 1.
func (c *Cart) DecQty(productID string) {
	productID = domain.NormalizeID(productID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		c.lines[i].Qty--
		if c.lines[i].Qty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		}
		return
	}
}

func (c *Cart) Remove(productID string) {
	productID = domain.NormalizeID(productID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.note = ""
}

func (c *Cart) SetNote(note string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.note = strings.TrimSpace(note)
}

func (c *Cart) Note() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.note
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Subtotal is recomputed on demand, never cached.
func (c *Cart) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, line := range c.lines {
		total += line.UnitPrice * int64(line.Qty)
	}
	return total
}
