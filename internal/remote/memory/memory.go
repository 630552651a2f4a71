// Package memory is an in-memory Gateway used by tests and for running the
// agent without a backend. It mirrors the backend's observable behavior:
// newest-first listings, numeric ids, idempotency-key dedup on header
// insert, and per-collection failure injection for exercising the partial
// failure paths.
package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"kassirpos/agent/internal/domain"
	"kassirpos/agent/internal/remote"
)

type productRow struct {
	id        int64
	name      string
	price     int64
	stock     int
	photoURL  string
	createdAt time.Time
}

type transactionRow struct {
	id             int64
	total          int64
	createdAt      time.Time
	idempotencyKey string
	items          []remote.TransactionItem
}

type stockHistoryRow struct {
	id int64
	remote.StockChangeInsert
}

type Gateway struct {
	mu sync.Mutex

	products     map[int64]productRow
	transactions map[int64]transactionRow
	stockHistory []stockHistoryRow

	nextTxID    int64
	nextStockID int64

	calls    map[string]int
	failures map[string]map[int]error
}

func New() *Gateway {
	return &Gateway{
		products:     make(map[int64]productRow),
		transactions: make(map[int64]transactionRow),
		nextTxID:     1,
		nextStockID:  1,
		calls:        make(map[string]int),
		failures:     make(map[string]map[int]error),
	}
}

// NewSeeded returns a gateway preloaded with a small catalog, the same role
// the seeded memory repository plays in development builds.
func NewSeeded() *Gateway {
	g := New()
	now := time.Now().UTC()
	seed := []productRow{
		{id: 1, name: "Jamu Kunyit Asam", price: 15000, stock: 20, createdAt: now.Add(-3 * time.Hour)},
		{id: 2, name: "Wedang Jahe", price: 12000, stock: 15, createdAt: now.Add(-2 * time.Hour)},
		{id: 3, name: "Beras Kencur", price: 10000, stock: 25, createdAt: now.Add(-time.Hour)},
	}
	for _, p := range seed {
		g.products[p.id] = p
	}
	return g
}

// FailNext makes the next call of the named operation return err. Operation
// names match the Gateway method names.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armFailure(op, g.calls[op]+1, err)
}

// FailOnCall makes the nth call (1-based, counted from gateway creation) of
// the named operation return err. Used to fail a specific step mid-pass.
func (g *Gateway) FailOnCall(op string, nth int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armFailure(op, nth, err)
}

func (g *Gateway) armFailure(op string, nth int, err error) {
	if err == nil {
		err = errors.New("injected failure")
	}
	if g.failures[op] == nil {
		g.failures[op] = make(map[int]error)
	}
	g.failures[op][nth] = err
}

func (g *Gateway) takeFailure(collection, op string) error {
	g.calls[op]++
	if err, ok := g.failures[op][g.calls[op]]; ok {
		delete(g.failures[op], g.calls[op])
		return &remote.Error{Collection: collection, Op: op, Err: err}
	}
	return nil
}

// Calls reports how many times the named operation has been invoked.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) ListProducts(_ context.Context) ([]domain.Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("products", "ListProducts"); err != nil {
		return nil, err
	}

	rows := make([]productRow, 0, len(g.products))
	for _, row := range g.products {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.After(rows[j].createdAt) })

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, domain.Product{
			ID:       strconv.FormatInt(row.id, 10),
			Name:     row.name,
			Price:    row.price,
			Stock:    row.stock,
			Active:   true,
			PhotoRef: row.photoURL,
		})
	}
	return products, nil
}

func (g *Gateway) UpsertProducts(_ context.Context, rows []remote.ProductUpsert) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("products", "UpsertProducts"); err != nil {
		return err
	}

	for _, row := range rows {
		existing, ok := g.products[row.ID]
		if !ok {
			existing = productRow{id: row.ID, createdAt: time.Now().UTC()}
		}
		existing.name = row.Name
		existing.price = row.Price
		existing.stock = row.Stock
		existing.photoURL = row.PhotoURL
		g.products[row.ID] = existing
	}
	return nil
}

func (g *Gateway) UpsertProductStocks(_ context.Context, stocks map[int64]int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("products", "UpsertProductStocks"); err != nil {
		return err
	}

	for id, stock := range stocks {
		existing, ok := g.products[id]
		if !ok {
			existing = productRow{id: id, createdAt: time.Now().UTC()}
		}
		existing.stock = stock
		g.products[id] = existing
	}
	return nil
}

func (g *Gateway) ListTransactions(_ context.Context) ([]domain.LocalTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("transactions", "ListTransactions"); err != nil {
		return nil, err
	}

	rows := make([]transactionRow, 0, len(g.transactions))
	for _, row := range g.transactions {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.After(rows[j].createdAt) })

	txs := make([]domain.LocalTransaction, 0, len(rows))
	for _, row := range rows {
		items := make([]domain.CartLine, 0, len(row.items))
		for _, item := range row.items {
			items = append(items, domain.CartLine{
				ProductID: strconv.FormatInt(item.ProductID, 10),
				Name:      item.ProductName,
				UnitPrice: item.Price,
				Qty:       item.Qty,
			})
		}
		txs = append(txs, remote.SyncedTransaction(strconv.FormatInt(row.id, 10), row.total, row.createdAt, items))
	}
	return txs, nil
}

func (g *Gateway) CreateTransaction(_ context.Context, header remote.TransactionHeader) (remote.CreatedTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("transactions", "CreateTransaction"); err != nil {
		return remote.CreatedTransaction{}, err
	}

	if header.IdempotencyKey != "" {
		for _, row := range g.transactions {
			if row.idempotencyKey == header.IdempotencyKey {
				return remote.CreatedTransaction{
					RemoteID:  strconv.FormatInt(row.id, 10),
					CreatedAt: row.createdAt,
				}, nil
			}
		}
	}

	createdAt := header.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	id := g.nextTxID
	g.nextTxID++
	g.transactions[id] = transactionRow{
		id:             id,
		total:          header.Total,
		createdAt:      createdAt,
		idempotencyKey: header.IdempotencyKey,
	}
	return remote.CreatedTransaction{RemoteID: strconv.FormatInt(id, 10), CreatedAt: createdAt}, nil
}

func (g *Gateway) CreateTransactionItems(_ context.Context, remoteID string, items []remote.TransactionItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("transaction_items", "CreateTransactionItems"); err != nil {
		return err
	}

	id, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return &remote.Error{Collection: "transaction_items", Op: "CreateTransactionItems", Err: err}
	}
	row, ok := g.transactions[id]
	if !ok {
		return &remote.Error{Collection: "transaction_items", Op: "CreateTransactionItems", Err: remote.ErrNotFound}
	}
	row.items = append(row.items, items...)
	g.transactions[id] = row
	return nil
}

func (g *Gateway) DeleteTransaction(_ context.Context, remoteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("transactions", "DeleteTransaction"); err != nil {
		return err
	}

	id, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return &remote.Error{Collection: "transactions", Op: "DeleteTransaction", Err: err}
	}
	delete(g.transactions, id)
	return nil
}

func (g *Gateway) ListStockChanges(_ context.Context) ([]domain.StockChange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("stock_history", "ListStockChanges"); err != nil {
		return nil, err
	}

	rows := make([]stockHistoryRow, len(g.stockHistory))
	copy(rows, g.stockHistory)
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })

	changes := make([]domain.StockChange, 0, len(rows))
	for _, row := range rows {
		delta := row.Quantity
		if row.AdjustmentType == domain.AdjustmentReduce {
			delta = -delta
		}
		name := ""
		if p, ok := g.products[row.ProductID]; ok {
			name = p.name
		}
		changes = append(changes, domain.StockChange{
			ID:          strconv.FormatInt(row.id, 10),
			ProductID:   strconv.FormatInt(row.ProductID, 10),
			ProductName: name,
			FromStock:   row.PreviousStock,
			ToStock:     row.NewStock,
			Delta:       delta,
			Reason:      row.Reason,
			PhotoRef:    row.PhotoURL,
			CreatedAt:   row.CreatedAt,
		})
	}
	return changes, nil
}

func (g *Gateway) InsertStockChanges(_ context.Context, rows []remote.StockChangeInsert) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure("stock_history", "InsertStockChanges"); err != nil {
		return err
	}

	for _, row := range rows {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		g.stockHistory = append(g.stockHistory, stockHistoryRow{id: g.nextStockID, StockChangeInsert: row})
		g.nextStockID++
	}
	return nil
}

// TransactionCount reports how many headers exist remotely, for assertions
// about orphaned headers and duplicate pushes.
func (g *Gateway) TransactionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.transactions)
}

// ItemCount reports how many line items are attached to the given header.
func (g *Gateway) ItemCount(remoteID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return 0
	}
	return len(g.transactions[id].items)
}

// ProductStock reports the remote stock for a numeric product id.
func (g *Gateway) ProductStock(id int64) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.products[id]
	return row.stock, ok
}

// DropProducts empties the remote catalog, for exercising the
// remote-authoritative-even-when-empty policy.
func (g *Gateway) DropProducts() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.products = make(map[int64]productRow)
}
