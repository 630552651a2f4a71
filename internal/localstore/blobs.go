// Package localstore is the durable on-device store: three keyed record
// collections plus the printer setting, each persisted as one JSON blob.
// Keys are versioned by name so an incompatible future format can migrate by
// key rename.
package localstore

import "context"

const (
	KeyProducts       = "local.products.v1"
	KeyTransactions   = "local.transactions.v1"
	KeyStockChanges   = "local.stockChanges.v1"
	KeyDefaultPrinter = "settings.defaultPrinter.v1"
)

// Blobs is the raw durable key-value backend. Get reports found=false for
// absent keys; Delete on an absent key is not an error.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
