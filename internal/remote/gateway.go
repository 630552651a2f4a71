// Package remote abstracts the backend system of record as three
// collections: products, transactions (with nested line items), and stock
// history. Implementations translate between the device's canonical
// string ids and the backend's plain numeric ids; rows whose id cannot be
// translated are skipped, never fatal.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kassirpos/agent/internal/domain"
)

var ErrNotFound = errors.New("remote: not found")

// Error wraps any network/backend failure with the collection and operation
// it came from. Gateways never partially apply a single call; multi-call
// sequencing (header, then items, then a compensating delete) belongs to
// the sync engine.
type Error struct {
	Collection string
	Op         string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Collection, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(collection, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Collection: collection, Op: op, Err: err}
}

// TransactionHeader is the payload of a header insert. IdempotencyKey rides
// along so a deduplicating backend can reject redelivery after a crash
// between remote confirmation and the local status update.
type TransactionHeader struct {
	Total          int64
	CreatedAt      time.Time
	IdempotencyKey string
}

// CreatedTransaction is what the backend hands back for a new header; its
// CreatedAt is canonical and overwrites the local timestamp.
type CreatedTransaction struct {
	RemoteID  string
	CreatedAt time.Time
}

type TransactionItem struct {
	ProductID   int64
	ProductName string
	Qty         int
	Price       int64
	CreatedAt   time.Time
}

type ProductUpsert struct {
	ID       int64
	Name     string
	Price    int64
	Stock    int
	PhotoURL string
}

type StockChangeInsert struct {
	ProductID      int64
	AdjustmentType string
	Quantity       int
	PreviousStock  int
	NewStock       int
	Reason         string
	PhotoURL       string
	CreatedAt      time.Time
}

type Gateway interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpsertProducts(ctx context.Context, rows []ProductUpsert) error
	UpsertProductStocks(ctx context.Context, stocks map[int64]int) error

	ListTransactions(ctx context.Context) ([]domain.LocalTransaction, error)
	CreateTransaction(ctx context.Context, header TransactionHeader) (CreatedTransaction, error)
	CreateTransactionItems(ctx context.Context, remoteID string, items []TransactionItem) error
	DeleteTransaction(ctx context.Context, remoteID string) error

	ListStockChanges(ctx context.Context) ([]domain.StockChange, error)
	InsertStockChanges(ctx context.Context, rows []StockChangeInsert) error
}

// SyncedTransaction builds the local view of a remote transaction row. The
// backend does not store payment details, so paid is presented as the total
// with zero change and a CASH method, mirroring what the receipt archive
// can actually reconstruct. A non-positive stored total is re-derived from
// the lines.
func SyncedTransaction(remoteID string, total int64, createdAt time.Time, items []domain.CartLine) domain.LocalTransaction {
	if total <= 0 {
		var computed int64
		for _, item := range items {
			computed += item.UnitPrice * int64(item.Qty)
		}
		total = computed
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return domain.LocalTransaction{
		LocalID:        "remote-" + remoteID,
		IdempotencyKey: "remote-" + remoteID,
		ReceiptNo:      "TRX-" + remoteID,
		CreatedAt:      createdAt,
		TotalAmount:    total,
		PaidAmount:     total,
		ChangeAmount:   0,
		PaymentMethod:  domain.PaymentCash,
		Items:          items,
		Status:         domain.TxStatusSynced,
		RemoteID:       remoteID,
	}
}
