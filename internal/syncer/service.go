// Package syncer owns the offline-first core: the in-memory snapshot of the
// three record collections, hydration against the remote system of record,
// and the push of locally recorded pending sales.
//
// The model is single-writer: every operation runs sequentially under one
// operation lock, and hydrate/sync passes refuse to overlap (ErrBusy)
// instead of interleaving.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kassirpos/agent/internal/domain"
	"kassirpos/agent/internal/localstore"
	"kassirpos/agent/internal/photo"
	"kassirpos/agent/internal/remote"
	"kassirpos/agent/internal/xid"
)

var (
	ErrBusy                = errors.New("another sync operation is already running")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidQty          = errors.New("item quantity must be at least 1")
	ErrUnknownPayment      = errors.New("unknown payment method")
	ErrInsufficientPayment = errors.New("paid amount is less than the total")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrNegativeStock       = errors.New("stock cannot be negative")
	ErrPhotoRequired       = errors.New("a photo is required for every stock change")
	ErrReasonRequired      = errors.New("a reason is required when reducing stock")
)

// HydrateError aggregates the per-collection remote failures of one hydrate
// pass. It is advisory: by the time the caller sees it, the best available
// view has already been published and persisted.
type HydrateError struct {
	Products     error
	Transactions error
	StockChanges error
}

func (e *HydrateError) Error() string {
	parts := make([]string, 0, 3)
	if e.Products != nil {
		parts = append(parts, e.Products.Error())
	}
	if e.Transactions != nil {
		parts = append(parts, e.Transactions.Error())
	}
	if e.StockChanges != nil {
		parts = append(parts, e.StockChanges.Error())
	}
	return "hydrate: " + strings.Join(parts, "; ")
}

func (e *HydrateError) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Products, e.Transactions, e.StockChanges} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Report summarizes one pending-transaction sync pass.
type Report struct {
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

type Service struct {
	local   *localstore.Store
	gateway remote.Gateway
	photos  photo.Uploader

	now        func() time.Time
	newLocalID func() string
	newIdemKey func() string

	// opMu serializes all mutating operations; TryLock turns overlapping
	// hydrate/sync invocations into ErrBusy.
	opMu sync.Mutex

	mu           sync.RWMutex
	products     []domain.Product
	transactions []domain.LocalTransaction
	stockChanges []domain.StockChange
	hydrated     bool
	revision     uint64
}

func New(local *localstore.Store, gateway remote.Gateway, photos photo.Uploader) *Service {
	if photos == nil {
		photos = photo.Noop{}
	}
	return &Service{
		local:      local,
		gateway:    gateway,
		photos:     photos,
		now:        func() time.Time { return time.Now().UTC() },
		newLocalID: func() string { return xid.New("tx") },
		newIdemKey: uuid.NewString,
	}
}

func (s *Service) publish(products []domain.Product, txs []domain.LocalTransaction, changes []domain.StockChange, hydrated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
	s.transactions = txs
	s.stockChanges = changes
	s.hydrated = hydrated
	s.revision++
}

// Hydrate loads the local cache, reconciles it against the remote system of
// record, persists every successfully refreshed collection, and publishes
// the merged view. Products and stock history are replaced with the remote
// view even when it is empty; transactions keep local pending entries and
// take the remote view for everything synced. A partial remote failure is
// returned as an advisory *HydrateError after the view is published.
func (s *Service) Hydrate(ctx context.Context) error {
	if !s.opMu.TryLock() {
		return ErrBusy
	}
	defer s.opMu.Unlock()

	products := s.local.LoadProducts(ctx)
	transactions := s.local.LoadTransactions(ctx)
	stockChanges := s.local.LoadStockChanges(ctx)

	var herr HydrateError

	if remoteProducts, err := s.gateway.ListProducts(ctx); err != nil {
		herr.Products = err
		log.Printf("[hydrate] WARN: products fetch failed, keeping local cache: %v", err)
	} else {
		log.Printf("[hydrate] fetched %d products", len(remoteProducts))
		// Remote is authoritative even when empty.
		products = remoteProducts
		if err := s.local.SaveProducts(ctx, products); err != nil {
			log.Printf("[hydrate] WARN: persist products: %v", err)
		}
	}

	if remoteTxs, err := s.gateway.ListTransactions(ctx); err != nil {
		herr.Transactions = err
		log.Printf("[hydrate] WARN: transactions fetch failed, keeping local cache: %v", err)
	} else {
		log.Printf("[hydrate] fetched %d transactions", len(remoteTxs))
		pending := make([]domain.LocalTransaction, 0, len(transactions))
		for _, tx := range transactions {
			if tx.Status == domain.TxStatusPending {
				pending = append(pending, tx)
			}
		}
		transactions = mergeTransactions(pending, remoteTxs)
		if err := s.local.SaveTransactions(ctx, transactions); err != nil {
			log.Printf("[hydrate] WARN: persist transactions: %v", err)
		}
	}

	if remoteChanges, err := s.gateway.ListStockChanges(ctx); err != nil {
		herr.StockChanges = err
		log.Printf("[hydrate] WARN: stock history fetch failed, keeping local cache: %v", err)
	} else {
		log.Printf("[hydrate] fetched %d stock changes", len(remoteChanges))
		stockChanges = remoteChanges
		if err := s.local.SaveStockChanges(ctx, stockChanges); err != nil {
			log.Printf("[hydrate] WARN: persist stock changes: %v", err)
		}
	}

	s.publish(products, transactions, stockChanges, true)

	if herr.Products != nil || herr.Transactions != nil || herr.StockChanges != nil {
		return &herr
	}
	return nil
}

// ClearLocalCache erases the three collections and resets the hydrated
// flag. Last-resort recovery for a cache suspected corrupt beyond repair.
func (s *Service) ClearLocalCache(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.local.Clear(ctx); err != nil {
		return err
	}
	s.publish(nil, nil, nil, false)
	log.Printf("[syncer] local cache cleared")
	return nil
}

// Checkout validates the sale, records it locally as a pending transaction,
// applies the stock decrement to the local catalog (floored at zero), and
// pushes the touched stocks opportunistically. Validation failures reject
// the sale before any state change.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.LocalTransaction, error) {
	if len(req.Items) == 0 {
		return domain.LocalTransaction{}, ErrEmptyCart
	}
	var total int64
	for _, item := range req.Items {
		if item.Qty < 1 {
			return domain.LocalTransaction{}, ErrInvalidQty
		}
		total += item.UnitPrice * int64(item.Qty)
	}
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentQRIS:
	default:
		return domain.LocalTransaction{}, fmt.Errorf("%w: %q", ErrUnknownPayment, req.PaymentMethod)
	}
	if req.PaidAmount < total {
		return domain.LocalTransaction{}, ErrInsufficientPayment
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.now()
	localID := s.newLocalID()
	items := make([]domain.CartLine, len(req.Items))
	copy(items, req.Items)
	for i := range items {
		items[i].ProductID = domain.NormalizeID(items[i].ProductID)
	}

	tx := domain.LocalTransaction{
		LocalID:        localID,
		IdempotencyKey: s.newIdemKey(),
		ReceiptNo:      receiptNo(now, localID),
		CreatedAt:      now,
		TotalAmount:    total,
		PaidAmount:     req.PaidAmount,
		ChangeAmount:   req.PaidAmount - total,
		PaymentMethod:  req.PaymentMethod,
		Items:          items,
		Note:           strings.TrimSpace(req.Note),
		Status:         domain.TxStatusPending,
	}

	s.mu.RLock()
	nextTxs := append([]domain.LocalTransaction{tx}, s.transactions...)
	s.mu.RUnlock()
	if err := s.local.SaveTransactions(ctx, nextTxs); err != nil {
		return domain.LocalTransaction{}, err
	}

	s.mu.Lock()
	s.transactions = nextTxs
	s.revision++
	s.mu.Unlock()

	s.decrementStock(ctx, items)

	log.Printf("[checkout] recorded %s total=%d items=%d", tx.ReceiptNo, tx.TotalAmount, len(tx.Items))
	return tx, nil
}

// decrementStock reduces local stock for each sold line, floored at zero
// (oversell is clamped, not rejected), persists the catalog, and pushes the
// touched stocks. Push failure is swallowed: the local mutation is the
// user-visible truth until the next successful hydrate.
func (s *Service) decrementStock(ctx context.Context, items []domain.CartLine) {
	sold := make(map[string]int, len(items))
	for _, item := range items {
		sold[item.ProductID] += item.Qty
	}

	s.mu.Lock()
	next := make([]domain.Product, len(s.products))
	copy(next, s.products)
	touched := make(map[int64]int)
	for i := range next {
		qty, ok := sold[next[i].ID]
		if !ok {
			continue
		}
		stock := next[i].Stock - qty
		if stock < 0 {
			stock = 0
		}
		next[i].Stock = stock
		if id, ok := domain.NumericID(next[i].ID); ok {
			touched[id] = stock
		}
	}
	s.products = next
	s.revision++
	s.mu.Unlock()

	if err := s.local.SaveProducts(ctx, next); err != nil {
		log.Printf("[checkout] WARN: persist products: %v", err)
	}
	if len(touched) > 0 {
		if err := s.gateway.UpsertProductStocks(ctx, touched); err != nil {
			log.Printf("[checkout] WARN: push stocks: %v", err)
		}
	}
}

// SyncPendingTransactions walks the pending transactions in order and tries
// to commit each to the backend exactly once: header first, then line items
// tagged with the new remote id, with a compensating delete when the items
// fail after the header succeeded. Each transaction is independent; a
// failure leaves that record pending and the pass moves on.
func (s *Service) SyncPendingTransactions(ctx context.Context) (Report, error) {
	if !s.opMu.TryLock() {
		return Report{}, ErrBusy
	}
	defer s.opMu.Unlock()

	s.mu.RLock()
	pending := make([]domain.LocalTransaction, 0)
	for _, tx := range s.transactions {
		if tx.Status == domain.TxStatusPending {
			pending = append(pending, tx)
		}
	}
	s.mu.RUnlock()

	var report Report
	for _, tx := range pending {
		total := tx.TotalAmount
		if total <= 0 {
			total = tx.ItemsTotal()
		}

		created, err := s.gateway.CreateTransaction(ctx, remote.TransactionHeader{
			Total:          total,
			CreatedAt:      tx.CreatedAt,
			IdempotencyKey: tx.IdempotencyKey,
		})
		if err != nil {
			report.Failed++
			log.Printf("[sync] WARN: header push failed for %s, keeping pending: %v", tx.LocalID, err)
			continue
		}

		items := make([]remote.TransactionItem, 0, len(tx.Items))
		for _, item := range tx.Items {
			id, ok := domain.NumericID(item.ProductID)
			if !ok {
				// Untranslatable ids are dropped from the push, never block it.
				log.Printf("[sync] WARN: dropping item with untranslatable id %q from %s", item.ProductID, tx.LocalID)
				continue
			}
			items = append(items, remote.TransactionItem{
				ProductID:   id,
				ProductName: item.Name,
				Qty:         item.Qty,
				Price:       item.UnitPrice,
				CreatedAt:   tx.CreatedAt,
			})
		}

		if len(items) > 0 {
			if err := s.gateway.CreateTransactionItems(ctx, created.RemoteID, items); err != nil {
				report.Failed++
				log.Printf("[sync] WARN: item push failed for %s, compensating: %v", tx.LocalID, err)
				if delErr := s.gateway.DeleteTransaction(ctx, created.RemoteID); delErr != nil {
					log.Printf("[sync] WARN: compensating delete of %s failed: %v", created.RemoteID, delErr)
				}
				continue
			}
		}

		s.markSynced(ctx, tx.LocalID, created)
		report.Synced++
	}

	s.mu.RLock()
	for _, tx := range s.transactions {
		if tx.Status == domain.TxStatusPending {
			report.Remaining++
		}
	}
	s.mu.RUnlock()

	log.Printf("[sync] pass done synced=%d failed=%d remaining=%d", report.Synced, report.Failed, report.Remaining)
	return report, nil
}

// markSynced updates the record in place and persists before the pass moves
// to the next pending transaction, so an abandoned pass leaves a clean
// prefix of synced records.
func (s *Service) markSynced(ctx context.Context, localID string, created remote.CreatedTransaction) {
	s.mu.Lock()
	for i := range s.transactions {
		if s.transactions[i].LocalID != localID {
			continue
		}
		s.transactions[i].Status = domain.TxStatusSynced
		s.transactions[i].RemoteID = created.RemoteID
		if !created.CreatedAt.IsZero() {
			s.transactions[i].CreatedAt = created.CreatedAt
		}
		break
	}
	snapshot := make([]domain.LocalTransaction, len(s.transactions))
	copy(snapshot, s.transactions)
	s.revision++
	s.mu.Unlock()

	if err := s.local.SaveTransactions(ctx, snapshot); err != nil {
		log.Printf("[sync] WARN: persist transactions after %s: %v", localID, err)
	}
}

// AdjustStock applies a manual stock edit: validates the evidence rules
// (photo on every change, reason on every reduction) before any mutation,
// then diffs against the current baseline, records one StockChange per
// changed product, persists, and pushes opportunistically.
func (s *Service) AdjustStock(ctx context.Context, edits []domain.StockEdit) ([]domain.StockChange, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	baseline := make(map[string]domain.Product, len(s.products))
	for _, p := range s.products {
		baseline[p.ID] = p
	}
	s.mu.RUnlock()

	type plannedEdit struct {
		domain.StockEdit
		from int
		name string
	}
	planned := make([]plannedEdit, 0, len(edits))
	for _, edit := range edits {
		edit.ProductID = domain.NormalizeID(edit.ProductID)
		product, ok := baseline[edit.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, edit.ProductID)
		}
		if edit.NewStock < 0 {
			return nil, ErrNegativeStock
		}
		if edit.NewStock == product.Stock {
			continue
		}
		if strings.TrimSpace(edit.PhotoRef) == "" {
			return nil, fmt.Errorf("%w (product %q)", ErrPhotoRequired, edit.ProductID)
		}
		if edit.NewStock < product.Stock && strings.TrimSpace(edit.Reason) == "" {
			return nil, fmt.Errorf("%w (product %q)", ErrReasonRequired, edit.ProductID)
		}
		planned = append(planned, plannedEdit{StockEdit: edit, from: product.Stock, name: product.Name})
	}
	if len(planned) == 0 {
		return nil, nil
	}

	now := s.now()
	changes := make([]domain.StockChange, 0, len(planned))
	newStocks := make(map[string]int, len(planned))
	for _, edit := range planned {
		photoRef := edit.PhotoRef
		if url, err := s.photos.Upload(ctx, edit.PhotoRef); err == nil && url != "" {
			photoRef = url
		}
		changes = append(changes, domain.StockChange{
			ID:          xid.New("sc"),
			ProductID:   edit.ProductID,
			ProductName: edit.name,
			FromStock:   edit.from,
			ToStock:     edit.NewStock,
			Delta:       edit.NewStock - edit.from,
			Reason:      strings.TrimSpace(edit.Reason),
			PhotoRef:    photoRef,
			CreatedAt:   now,
		})
		newStocks[edit.ProductID] = edit.NewStock
	}

	s.mu.Lock()
	nextProducts := make([]domain.Product, len(s.products))
	copy(nextProducts, s.products)
	for i := range nextProducts {
		if stock, ok := newStocks[nextProducts[i].ID]; ok {
			nextProducts[i].Stock = stock
		}
	}
	nextChanges := append(append([]domain.StockChange{}, changes...), s.stockChanges...)
	s.mu.Unlock()

	if err := s.local.SaveProducts(ctx, nextProducts); err != nil {
		return nil, err
	}
	if err := s.local.SaveStockChanges(ctx, nextChanges); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.products = nextProducts
	s.stockChanges = nextChanges
	s.revision++
	s.mu.Unlock()

	s.pushStockEdit(ctx, nextProducts, newStocks, changes)

	log.Printf("[stock] recorded %d stock changes", len(changes))
	return changes, nil
}

// pushStockEdit mirrors a manual edit to the backend: product upserts plus
// stock-history inserts. Failures are swallowed; the next hydrate settles it.
func (s *Service) pushStockEdit(ctx context.Context, products []domain.Product, newStocks map[string]int, changes []domain.StockChange) {
	upserts := make([]remote.ProductUpsert, 0, len(newStocks))
	for _, p := range products {
		if _, ok := newStocks[p.ID]; !ok {
			continue
		}
		id, ok := domain.NumericID(p.ID)
		if !ok {
			continue
		}
		upserts = append(upserts, remote.ProductUpsert{
			ID:       id,
			Name:     p.Name,
			Price:    p.Price,
			Stock:    p.Stock,
			PhotoURL: p.PhotoRef,
		})
	}
	if len(upserts) > 0 {
		if err := s.gateway.UpsertProducts(ctx, upserts); err != nil {
			log.Printf("[stock] WARN: push products: %v", err)
		}
	}

	inserts := make([]remote.StockChangeInsert, 0, len(changes))
	for _, change := range changes {
		id, ok := domain.NumericID(change.ProductID)
		if !ok {
			continue
		}
		qty := change.Delta
		if qty < 0 {
			qty = -qty
		}
		inserts = append(inserts, remote.StockChangeInsert{
			ProductID:      id,
			AdjustmentType: change.AdjustmentType(),
			Quantity:       qty,
			PreviousStock:  change.FromStock,
			NewStock:       change.ToStock,
			Reason:         change.Reason,
			PhotoURL:       change.PhotoRef,
			CreatedAt:      change.CreatedAt,
		})
	}
	if len(inserts) > 0 {
		if err := s.gateway.InsertStockChanges(ctx, inserts); err != nil {
			log.Printf("[stock] WARN: push stock history: %v", err)
		}
	}
}

func (s *Service) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *Service) Transactions() []domain.LocalTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LocalTransaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func (s *Service) StockChanges() []domain.StockChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StockChange, len(s.stockChanges))
	copy(out, s.stockChanges)
	return out
}

// Transaction looks up one transaction by local id.
func (s *Service) Transaction(localID string) (domain.LocalTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if tx.LocalID == localID {
			return tx, true
		}
	}
	return domain.LocalTransaction{}, false
}

func (s *Service) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Revision increments on every published snapshot change, so callers can
// cheaply detect staleness.
func (s *Service) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Service) DefaultPrinter(ctx context.Context) *domain.PrinterDevice {
	return s.local.LoadDefaultPrinter(ctx)
}

func (s *Service) SetDefaultPrinter(ctx context.Context, printer *domain.PrinterDevice) error {
	return s.local.SaveDefaultPrinter(ctx, printer)
}

func receiptNo(at time.Time, localID string) string {
	fragment := localID
	if i := strings.LastIndex(localID, "-"); i >= 0 && i+1 < len(localID) {
		fragment = localID[i+1:]
	}
	if len(fragment) > 4 {
		fragment = fragment[len(fragment)-4:]
	}
	return fmt.Sprintf("RCP-%s-%s", at.Format("20060102"), strings.ToUpper(fragment))
}
