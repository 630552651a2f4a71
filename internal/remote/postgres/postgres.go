// Package postgres talks to the backend database directly over database/sql
// with the pgx driver, for deployments where the agent sits on the same
// network as the store's own postgres instead of going through the hosted
// REST layer.
package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kassirpos/agent/internal/domain"
	"kassirpos/agent/internal/remote"
)

type Gateway struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Gateway, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Gateway{db: db}, nil
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

func (g *Gateway) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(price, 0), COALESCE(stock, 0), COALESCE(image_url, '')
		FROM products
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, wrap("products", "list", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var (
			id       int64
			p        domain.Product
			photoURL string
		)
		if err := rows.Scan(&id, &p.Name, &p.Price, &p.Stock, &photoURL); err != nil {
			return nil, wrap("products", "list", err)
		}
		p.ID = strconv.FormatInt(id, 10)
		p.Active = true
		p.PhotoRef = photoURL
		if p.Stock < 0 {
			p.Stock = 0
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("products", "list", err)
	}
	return products, nil
}

func (g *Gateway) UpsertProducts(ctx context.Context, upserts []remote.ProductUpsert) error {
	if len(upserts) == 0 {
		return nil
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("products", "upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range upserts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, price, stock, image_url, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), now())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    price = EXCLUDED.price,
			    stock = EXCLUDED.stock,
			    image_url = COALESCE(EXCLUDED.image_url, products.image_url)
		`, row.ID, row.Name, row.Price, row.Stock, row.PhotoURL)
		if err != nil {
			return wrap("products", "upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("products", "upsert", err)
	}
	return nil
}

func (g *Gateway) UpsertProductStocks(ctx context.Context, stocks map[int64]int) error {
	if len(stocks) == 0 {
		return nil
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("products", "upsert_stock", err)
	}
	defer func() { _ = tx.Rollback() }()

	for id, stock := range stocks {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = $2 WHERE id = $1
		`, id, stock)
		if err != nil {
			return wrap("products", "upsert_stock", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("products", "upsert_stock", err)
	}
	return nil
}

func (g *Gateway) ListTransactions(ctx context.Context) ([]domain.LocalTransaction, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, COALESCE(total, 0), created_at
		FROM transactions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, wrap("transactions", "list", err)
	}
	defer rows.Close()

	type header struct {
		id        int64
		total     int64
		createdAt time.Time
	}
	headers := make([]header, 0, 64)
	for rows.Next() {
		var h header
		var createdAt sql.NullTime
		if err := rows.Scan(&h.id, &h.total, &createdAt); err != nil {
			return nil, wrap("transactions", "list", err)
		}
		if createdAt.Valid {
			h.createdAt = createdAt.Time
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("transactions", "list", err)
	}

	items, err := g.listTransactionItems(ctx)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.LocalTransaction, 0, len(headers))
	for _, h := range headers {
		remoteID := strconv.FormatInt(h.id, 10)
		txs = append(txs, remote.SyncedTransaction(remoteID, h.total, h.createdAt, items[h.id]))
	}
	return txs, nil
}

func (g *Gateway) listTransactionItems(ctx context.Context) (map[int64][]domain.CartLine, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT transaction_id, COALESCE(product_id, 0), COALESCE(product_name, ''),
		       COALESCE(qty, 0), COALESCE(price, 0)
		FROM transaction_items
		ORDER BY id
	`)
	if err != nil {
		return nil, wrap("transaction_items", "list", err)
	}
	defer rows.Close()

	items := make(map[int64][]domain.CartLine)
	for rows.Next() {
		var (
			txID      int64
			productID int64
			line      domain.CartLine
		)
		if err := rows.Scan(&txID, &productID, &line.Name, &line.Qty, &line.UnitPrice); err != nil {
			return nil, wrap("transaction_items", "list", err)
		}
		line.ProductID = strconv.FormatInt(productID, 10)
		items[txID] = append(items[txID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("transaction_items", "list", err)
	}
	return items, nil
}

// CreateTransaction inserts the header. The idempotency key is stored with
// the row; if the schema carries its unique index, redelivery of the same
// key returns the already-created row instead of a duplicate.
func (g *Gateway) CreateTransaction(ctx context.Context, header remote.TransactionHeader) (remote.CreatedTransaction, error) {
	createdAt := header.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var (
		id          int64
		rowCreated  time.Time
		rowCreatedN sql.NullTime
	)
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO transactions (total, created_at, idempotency_key)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (idempotency_key) DO UPDATE
		SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING id, created_at
	`, header.Total, createdAt, header.IdempotencyKey).Scan(&id, &rowCreatedN)
	if err != nil {
		return remote.CreatedTransaction{}, wrap("transactions", "create", err)
	}
	if rowCreatedN.Valid {
		rowCreated = rowCreatedN.Time
	} else {
		rowCreated = createdAt
	}
	return remote.CreatedTransaction{RemoteID: strconv.FormatInt(id, 10), CreatedAt: rowCreated}, nil
}

func (g *Gateway) CreateTransactionItems(ctx context.Context, remoteID string, items []remote.TransactionItem) error {
	if len(items) == 0 {
		return nil
	}
	txID, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return wrap("transaction_items", "create", err)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("transaction_items", "create", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, qty, price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, txID, item.ProductID, item.ProductName, item.Qty, item.Price, createdAt)
		if err != nil {
			return wrap("transaction_items", "create", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("transaction_items", "create", err)
	}
	return nil
}

func (g *Gateway) DeleteTransaction(ctx context.Context, remoteID string) error {
	txID, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return wrap("transactions", "delete", err)
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, txID); err != nil {
		return wrap("transactions", "delete", err)
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID); err != nil {
		return wrap("transactions", "delete", err)
	}
	return nil
}

func (g *Gateway) ListStockChanges(ctx context.Context) ([]domain.StockChange, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT h.id, COALESCE(h.product_id, 0), COALESCE(h.adjustment_type, ''),
		       COALESCE(h.quantity, 0), COALESCE(h.previous_stock, 0), COALESCE(h.new_stock, 0),
		       COALESCE(h.reason, ''), COALESCE(h.photo_url, ''), h.created_at,
		       COALESCE(p.name, '')
		FROM stock_history h
		LEFT JOIN products p ON p.id = h.product_id
		ORDER BY h.created_at DESC
	`)
	if err != nil {
		return nil, wrap("stock_history", "list", err)
	}
	defer rows.Close()

	changes := make([]domain.StockChange, 0, 64)
	for rows.Next() {
		var (
			id             int64
			productID      int64
			adjustmentType string
			quantity       int
			change         domain.StockChange
			createdAt      sql.NullTime
		)
		if err := rows.Scan(&id, &productID, &adjustmentType, &quantity,
			&change.FromStock, &change.ToStock, &change.Reason, &change.PhotoRef,
			&createdAt, &change.ProductName); err != nil {
			return nil, wrap("stock_history", "list", err)
		}
		change.ID = strconv.FormatInt(id, 10)
		change.ProductID = strconv.FormatInt(productID, 10)
		if quantity < 0 {
			quantity = -quantity
		}
		change.Delta = quantity
		if adjustmentType == domain.AdjustmentReduce {
			change.Delta = -quantity
		}
		if createdAt.Valid {
			change.CreatedAt = createdAt.Time
		} else {
			change.CreatedAt = time.Now().UTC()
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("stock_history", "list", err)
	}
	return changes, nil
}

func (g *Gateway) InsertStockChanges(ctx context.Context, inserts []remote.StockChangeInsert) error {
	if len(inserts) == 0 {
		return nil
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("stock_history", "insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range inserts {
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_history (product_id, adjustment_type, quantity, previous_stock, new_stock, reason, photo_url, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		`, row.ProductID, row.AdjustmentType, row.Quantity, row.PreviousStock, row.NewStock, row.Reason, row.PhotoURL, createdAt)
		if err != nil {
			return wrap("stock_history", "insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("stock_history", "insert", err)
	}
	return nil
}

func wrap(collection, op string, err error) error {
	return &remote.Error{Collection: collection, Op: op, Err: err}
}
