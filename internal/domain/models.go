package domain

import "time"

// Product is the device-side view of a catalog row. ID is the canonical
// numeric-string form (see NormalizeID); Price is an integer in the smallest
// currency unit.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	Category string `json:"category,omitempty"`
	Active   bool   `json:"active"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

// CartLine is a frozen quote: UnitPrice is snapshotted from the catalog at
// add-time and never re-checked.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Qty       int    `json:"qty"`
}

const (
	PaymentCash = "CASH"
	PaymentQRIS = "QRIS"
)

const (
	TxStatusPending = "pending"
	TxStatusSynced  = "synced"
)

// LocalTransaction is the on-device record of a sale. LocalID identifies the
// record on this device; IdempotencyKey accompanies every remote push so the
// backend can deduplicate redelivery; RemoteID is set once the backend has
// confirmed the full header+items sequence.
type LocalTransaction struct {
	LocalID        string     `json:"local_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	ReceiptNo      string     `json:"receipt_no"`
	CreatedAt      time.Time  `json:"created_at"`
	TotalAmount    int64      `json:"total_amount"`
	PaidAmount     int64      `json:"paid_amount"`
	ChangeAmount   int64      `json:"change_amount"`
	PaymentMethod  string     `json:"payment_method"`
	Items          []CartLine `json:"items"`
	Note           string     `json:"note,omitempty"`
	Status         string     `json:"status"`
	RemoteID       string     `json:"remote_id,omitempty"`
}

// ItemsTotal recomputes the sum of unit price times quantity over the lines.
func (t LocalTransaction) ItemsTotal() int64 {
	var total int64
	for _, item := range t.Items {
		total += item.UnitPrice * int64(item.Qty)
	}
	return total
}

const (
	AdjustmentAdd    = "ADD"
	AdjustmentReduce = "REDUCE"
)

// StockChange is an append-only audit record of one stock adjustment.
// Delta carries the sign: ToStock - FromStock.
type StockChange struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	FromStock   int       `json:"from_stock"`
	ToStock     int       `json:"to_stock"`
	Delta       int       `json:"delta"`
	Reason      string    `json:"reason,omitempty"`
	PhotoRef    string    `json:"photo_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdjustmentType maps the sign of Delta onto the backend's enum.
func (c StockChange) AdjustmentType() string {
	if c.Delta < 0 {
		return AdjustmentReduce
	}
	return AdjustmentAdd
}

// PrinterDevice is the persisted default-printer setting.
type PrinterDevice struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type CheckoutRequest struct {
	Items         []CartLine `json:"items"`
	PaymentMethod string     `json:"payment_method"`
	PaidAmount    int64      `json:"paid_amount"`
	Note          string     `json:"note,omitempty"`
}

// StockEdit is one line of a manual stock edit: the desired new stock for a
// product, plus the evidence the edit flow requires (photo always, reason on
// reductions).
type StockEdit struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
	Reason    string `json:"reason,omitempty"`
	PhotoRef  string `json:"photo_ref"`
}
