// Package rest implements the Gateway over a PostgREST-style HTTP API, the
// same surface the hosted backend (Supabase) exposes. Reads use embedded
// resources (transaction_items, products(name)); writes use Prefer headers
// for upsert resolution and representation returns.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"kassirpos/agent/internal/domain"
	"kassirpos/agent/internal/remote"
)

type Config struct {
	BaseURL string
	// APIKey is the static project key, sent as the apikey header.
	APIKey string
	// JWTSecret, when set, lets the gateway mint short-lived HS256 service
	// tokens instead of reusing the static key as the bearer token.
	JWTSecret string
	JWTRole   string
	TokenTTL  time.Duration
	Timeout   time.Duration
}

type Gateway struct {
	baseURL  string
	apiKey   string
	secret   []byte
	role     string
	tokenTTL time.Duration
	client   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type serviceClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func New(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	role := cfg.JWTRole
	if role == "" {
		role = "service_role"
	}
	return &Gateway{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		secret:   []byte(cfg.JWTSecret),
		role:     role,
		tokenTTL: ttl,
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) bearerToken() (string, error) {
	if len(g.secret) == 0 {
		return g.apiKey, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Add(30*time.Second).Before(g.tokenExpiry) {
		return g.token, nil
	}

	now := time.Now()
	expiry := now.Add(g.tokenTTL)
	claims := serviceClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "kassirpos-agent",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiry),
		},
		Role: g.role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", err
	}
	g.token = token
	g.tokenExpiry = expiry
	return token, nil
}

func (g *Gateway) do(ctx context.Context, collection, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return wrap(collection, op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return wrap(collection, op, err)
	}
	token, err := g.bearerToken()
	if err != nil {
		return wrap(collection, op, err)
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	switch {
	case method == http.MethodPost && out != nil:
		req.Header.Set("Prefer", "return=representation,resolution=merge-duplicates")
	case method == http.MethodPost:
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return wrap(collection, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return wrap(collection, op, remote.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return wrap(collection, op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return wrap(collection, op, err)
		}
	}
	return nil
}

type productRow struct {
	ID       flexInt64 `json:"id"`
	Name     string    `json:"name"`
	Price    flexInt64 `json:"price"`
	Stock    flexInt64 `json:"stock"`
	ImageURL string    `json:"image_url"`
}

func (g *Gateway) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	path := "/rest/v1/products?select=id,name,price,stock,image_url,created_at&order=created_at.desc"
	if err := g.do(ctx, "products", "list", http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		stock := int(row.Stock)
		if stock < 0 {
			stock = 0
		}
		products = append(products, domain.Product{
			ID:       strconv.FormatInt(int64(row.ID), 10),
			Name:     row.Name,
			Price:    int64(row.Price),
			Stock:    stock,
			Active:   true,
			PhotoRef: row.ImageURL,
		})
	}
	return products, nil
}

func (g *Gateway) UpsertProducts(ctx context.Context, upserts []remote.ProductUpsert) error {
	if len(upserts) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(upserts))
	for _, row := range upserts {
		entry := map[string]any{
			"id":    row.ID,
			"name":  row.Name,
			"price": row.Price,
			"stock": row.Stock,
		}
		if row.PhotoURL != "" {
			entry["image_url"] = row.PhotoURL
		}
		payload = append(payload, entry)
	}
	return g.do(ctx, "products", "upsert", http.MethodPost, "/rest/v1/products?on_conflict=id", payload, nil)
}

func (g *Gateway) UpsertProductStocks(ctx context.Context, stocks map[int64]int) error {
	if len(stocks) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(stocks))
	for id, stock := range stocks {
		payload = append(payload, map[string]any{"id": id, "stock": stock})
	}
	return g.do(ctx, "products", "upsert_stock", http.MethodPost, "/rest/v1/products?on_conflict=id", payload, nil)
}

type transactionItemRow struct {
	ProductID   flexInt64 `json:"product_id"`
	ProductName string    `json:"product_name"`
	Qty         flexInt64 `json:"qty"`
	Price       flexInt64 `json:"price"`
}

type transactionRow struct {
	ID        flexInt64            `json:"id"`
	Total     flexInt64            `json:"total"`
	CreatedAt string               `json:"created_at"`
	Items     []transactionItemRow `json:"transaction_items"`
}

func (g *Gateway) ListTransactions(ctx context.Context) ([]domain.LocalTransaction, error) {
	var rows []transactionRow
	path := "/rest/v1/transactions?select=id,total,created_at," +
		"transaction_items(id,product_id,product_name,qty,price,created_at)&order=created_at.desc"
	if err := g.do(ctx, "transactions", "list", http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}

	txs := make([]domain.LocalTransaction, 0, len(rows))
	for _, row := range rows {
		items := make([]domain.CartLine, 0, len(row.Items))
		for _, item := range row.Items {
			items = append(items, domain.CartLine{
				ProductID: strconv.FormatInt(int64(item.ProductID), 10),
				Name:      item.ProductName,
				UnitPrice: int64(item.Price),
				Qty:       int(item.Qty),
			})
		}
		remoteID := strconv.FormatInt(int64(row.ID), 10)
		txs = append(txs, remote.SyncedTransaction(remoteID, int64(row.Total), parseTime(row.CreatedAt), items))
	}
	return txs, nil
}

func (g *Gateway) CreateTransaction(ctx context.Context, header remote.TransactionHeader) (remote.CreatedTransaction, error) {
	createdAt := header.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	payload := map[string]any{
		"total":           header.Total,
		"created_at":      createdAt.Format(time.RFC3339),
		"idempotency_key": header.IdempotencyKey,
	}

	var rows []struct {
		ID        flexInt64 `json:"id"`
		CreatedAt string    `json:"created_at"`
	}
	path := "/rest/v1/transactions?on_conflict=idempotency_key"
	if err := g.do(ctx, "transactions", "create", http.MethodPost, path, []any{payload}, &rows); err != nil {
		return remote.CreatedTransaction{}, err
	}
	if len(rows) == 0 {
		return remote.CreatedTransaction{}, wrap("transactions", "create", fmt.Errorf("empty representation"))
	}

	rowCreated := parseTime(rows[0].CreatedAt)
	if rowCreated.IsZero() {
		rowCreated = createdAt
	}
	return remote.CreatedTransaction{
		RemoteID:  strconv.FormatInt(int64(rows[0].ID), 10),
		CreatedAt: rowCreated,
	}, nil
}

func (g *Gateway) CreateTransactionItems(ctx context.Context, remoteID string, items []remote.TransactionItem) error {
	if len(items) == 0 {
		return nil
	}
	txID, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		return wrap("transaction_items", "create", err)
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		payload = append(payload, map[string]any{
			"transaction_id": txID,
			"product_id":     item.ProductID,
			"product_name":   item.ProductName,
			"qty":            item.Qty,
			"price":          item.Price,
			"created_at":     createdAt.Format(time.RFC3339),
		})
	}
	return g.do(ctx, "transaction_items", "create", http.MethodPost, "/rest/v1/transaction_items", payload, nil)
}

func (g *Gateway) DeleteTransaction(ctx context.Context, remoteID string) error {
	path := "/rest/v1/transactions?id=eq." + url.QueryEscape(remoteID)
	return g.do(ctx, "transactions", "delete", http.MethodDelete, path, nil, nil)
}

type stockHistoryRow struct {
	ID             flexInt64 `json:"id"`
	ProductID      flexInt64 `json:"product_id"`
	AdjustmentType string    `json:"adjustment_type"`
	Quantity       flexInt64 `json:"quantity"`
	PreviousStock  flexInt64 `json:"previous_stock"`
	NewStock       flexInt64 `json:"new_stock"`
	Reason         string    `json:"reason"`
	PhotoURL       string    `json:"photo_url"`
	CreatedAt      string    `json:"created_at"`
	Product        *struct {
		Name string `json:"name"`
	} `json:"products"`
}

func (g *Gateway) ListStockChanges(ctx context.Context) ([]domain.StockChange, error) {
	var rows []stockHistoryRow
	path := "/rest/v1/stock_history?select=id,product_id,adjustment_type,quantity," +
		"previous_stock,new_stock,reason,photo_url,created_at,products(name)&order=created_at.desc"
	if err := g.do(ctx, "stock_history", "list", http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}

	changes := make([]domain.StockChange, 0, len(rows))
	for _, row := range rows {
		qty := int(row.Quantity)
		if qty < 0 {
			qty = -qty
		}
		delta := qty
		if strings.EqualFold(row.AdjustmentType, domain.AdjustmentReduce) {
			delta = -qty
		}
		name := ""
		if row.Product != nil {
			name = row.Product.Name
		}
		createdAt := parseTime(row.CreatedAt)
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		changes = append(changes, domain.StockChange{
			ID:          strconv.FormatInt(int64(row.ID), 10),
			ProductID:   strconv.FormatInt(int64(row.ProductID), 10),
			ProductName: name,
			FromStock:   int(row.PreviousStock),
			ToStock:     int(row.NewStock),
			Delta:       delta,
			Reason:      row.Reason,
			PhotoRef:    row.PhotoURL,
			CreatedAt:   createdAt,
		})
	}
	return changes, nil
}

func (g *Gateway) InsertStockChanges(ctx context.Context, inserts []remote.StockChangeInsert) error {
	if len(inserts) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(inserts))
	for _, row := range inserts {
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		entry := map[string]any{
			"product_id":      row.ProductID,
			"adjustment_type": row.AdjustmentType,
			"quantity":        row.Quantity,
			"previous_stock":  row.PreviousStock,
			"new_stock":       row.NewStock,
			"created_at":      createdAt.Format(time.RFC3339),
		}
		if row.Reason != "" {
			entry["reason"] = row.Reason
		}
		if row.PhotoURL != "" {
			entry["photo_url"] = row.PhotoURL
		}
		payload = append(payload, entry)
	}
	return g.do(ctx, "stock_history", "insert", http.MethodPost, "/rest/v1/stock_history", payload, nil)
}

// flexInt64 tolerates the number-or-string-or-null typing the hosted API
// produces for numeric columns.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		*f = 0
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		*f = flexInt64(n)
		return nil
	}
	if fl, err := strconv.ParseFloat(trimmed, 64); err == nil {
		*f = flexInt64(int64(fl))
		return nil
	}
	*f = 0
	return nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func wrap(collection, op string, err error) error {
	return &remote.Error{Collection: collection, Op: op, Err: err}
}
