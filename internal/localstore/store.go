package localstore

import (
	"context"
	"encoding/json"
	"log"

	"kassirpos/agent/internal/domain"
)

// Store wraps a Blobs backend with the typed collections. Loads never fail:
// a missing, unreadable, or malformed blob yields the type's zero collection,
// so cache corruption can never block hydration.
type Store struct {
	blobs Blobs
}

func New(blobs Blobs) *Store {
	return &Store{blobs: blobs}
}

func (s *Store) load(ctx context.Context, key string, out any) bool {
	raw, found, err := s.blobs.Get(ctx, key)
	if err != nil {
		log.Printf("[localstore] WARN: read %s failed, using default: %v", key, err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("[localstore] WARN: malformed payload at %s, using default: %v", key, err)
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.blobs.Set(ctx, key, raw)
}

// LoadProducts returns the cached product list, normalizing ids and clamping
// negative stock left behind by older formats.
func (s *Store) LoadProducts(ctx context.Context) []domain.Product {
	var products []domain.Product
	s.load(ctx, KeyProducts, &products)
	for i := range products {
		products[i].ID = domain.NormalizeID(products[i].ID)
		if products[i].Stock < 0 {
			products[i].Stock = 0
		}
		if products[i].Price < 0 {
			products[i].Price = 0
		}
	}
	return products
}

func (s *Store) SaveProducts(ctx context.Context, products []domain.Product) error {
	return s.save(ctx, KeyProducts, products)
}

// LoadTransactions returns the cached transaction list. Records missing a
// payment method (pre-QRIS format) default to CASH; item ids are normalized.
func (s *Store) LoadTransactions(ctx context.Context) []domain.LocalTransaction {
	var txs []domain.LocalTransaction
	s.load(ctx, KeyTransactions, &txs)
	for i := range txs {
		if txs[i].PaymentMethod == "" {
			txs[i].PaymentMethod = domain.PaymentCash
		}
		for j := range txs[i].Items {
			txs[i].Items[j].ProductID = domain.NormalizeID(txs[i].Items[j].ProductID)
		}
	}
	return txs
}

func (s *Store) SaveTransactions(ctx context.Context, txs []domain.LocalTransaction) error {
	return s.save(ctx, KeyTransactions, txs)
}

func (s *Store) LoadStockChanges(ctx context.Context) []domain.StockChange {
	var changes []domain.StockChange
	s.load(ctx, KeyStockChanges, &changes)
	for i := range changes {
		changes[i].ProductID = domain.NormalizeID(changes[i].ProductID)
	}
	return changes
}

func (s *Store) SaveStockChanges(ctx context.Context, changes []domain.StockChange) error {
	return s.save(ctx, KeyStockChanges, changes)
}

// LoadDefaultPrinter returns the saved printer, or nil when none is set.
func (s *Store) LoadDefaultPrinter(ctx context.Context) *domain.PrinterDevice {
	var printer domain.PrinterDevice
	if !s.load(ctx, KeyDefaultPrinter, &printer) {
		return nil
	}
	if printer.Address == "" {
		return nil
	}
	return &printer
}

func (s *Store) SaveDefaultPrinter(ctx context.Context, printer *domain.PrinterDevice) error {
	if printer == nil {
		return s.blobs.Delete(ctx, KeyDefaultPrinter)
	}
	return s.save(ctx, KeyDefaultPrinter, printer)
}

// Clear erases the three record collections. The printer setting survives a
// cache reset on purpose: it is device configuration, not synced data.
func (s *Store) Clear(ctx context.Context) error {
	for _, key := range []string{KeyProducts, KeyTransactions, KeyStockChanges} {
		if err := s.blobs.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
