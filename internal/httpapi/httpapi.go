// Package httpapi exposes the sync core, the cart, the printer, and the
// reports to the local UI shell over a loopback HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kassirpos/agent/internal/cart"
	"kassirpos/agent/internal/domain"
	"kassirpos/agent/internal/printer"
	"kassirpos/agent/internal/report"
	"kassirpos/agent/internal/syncer"
)

type API struct {
	service    *syncer.Service
	cart       *cart.Cart
	printer    printer.Printer
	storeName  string
	printWidth int
}

func New(svc *syncer.Service, basket *cart.Cart, prn printer.Printer, storeName string, printWidth int) *API {
	if prn == nil {
		prn = printer.Noop{}
	}
	if printWidth <= 0 {
		printWidth = printer.DefaultWidth
	}
	return &API{
		service:    svc,
		cart:       basket,
		printer:    prn,
		storeName:  storeName,
		printWidth: printWidth,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(log.Writer(), "[http] ", log.LstdFlags),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", a.handleListProducts)
		r.Get("/transactions", a.handleListTransactions)
		r.Get("/stock-history", a.handleListStockHistory)

		r.Post("/hydrate", a.handleHydrate)
		r.Post("/sync", a.handleSync)
		r.Post("/cache/clear", a.handleClearCache)

		r.Get("/cart", a.handleGetCart)
		r.Post("/cart/items", a.handleAddCartItem)
		r.Post("/cart/items/{productID}/increment", a.handleIncCartItem)
		r.Post("/cart/items/{productID}/decrement", a.handleDecCartItem)
		r.Delete("/cart/items/{productID}", a.handleRemoveCartItem)
		r.Post("/cart/note", a.handleSetCartNote)
		r.Delete("/cart", a.handleClearCart)

		r.Post("/checkout", a.handleCheckout)
		r.Post("/stock/adjust", a.handleAdjustStock)

		r.Get("/printers", a.handleListPrinters)
		r.Get("/printers/default", a.handleGetDefaultPrinter)
		r.Put("/printers/default", a.handleSetDefaultPrinter)
		r.Post("/print/{localID}", a.handlePrint)

		r.Get("/reports/daily", a.handleDailyReport)
		r.Get("/reports/daily.xlsx", a.handleDailyReportXLSX)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"hydrated": a.service.Hydrated(),
		"revision": a.service.Revision(),
	})
}

func (a *API) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": a.service.Products()})
}

func (a *API) handleListTransactions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"transactions": a.service.Transactions()})
}

func (a *API) handleListStockHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stock_changes": a.service.StockChanges()})
}

// handleHydrate returns the refreshed snapshot even when the remote fetch
// partially failed; the failure travels as an advisory sync_error string.
func (a *API) handleHydrate(w http.ResponseWriter, r *http.Request) {
	err := a.service.Hydrate(r.Context())
	if errors.Is(err, syncer.ErrBusy) {
		writeError(w, http.StatusConflict, err)
		return
	}

	payload := map[string]any{
		"products":      a.service.Products(),
		"transactions":  a.service.Transactions(),
		"stock_changes": a.service.StockChanges(),
		"hydrated":      a.service.Hydrated(),
	}
	if err != nil {
		payload["sync_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	rep, err := a.service.SyncPendingTransactions(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrBusy) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearLocalCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (a *API) cartPayload() map[string]any {
	return map[string]any{
		"items":    a.cart.Lines(),
		"note":     a.cart.Note(),
		"subtotal": a.cart.Subtotal(),
	}
}

func (a *API) handleGetCart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cartPayload())
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		UnitPrice int64  `json:"unit_price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id is required"))
		return
	}
	a.cart.AddItem(req.ProductID, req.Name, req.UnitPrice)
	writeJSON(w, http.StatusOK, a.cartPayload())
}

func (a *API) handleIncCartItem(w http.ResponseWriter, r *http.Request) {
	a.cart.IncQty(chi.URLParam(r, "productID"))
	writeJSON(w, http.StatusOK, a.cartPayload())
}

func (a *API) handleDecCartItem(w http.ResponseWriter, r *http.Request) {
	a.cart.DecQty(chi.URLParam(r, "productID"))
	writeJSON(w, http.StatusOK, a.cartPayload())
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	a.cart.Remove(chi.URLParam(r, "productID"))
	writeJSON(w, http.StatusOK, a.cartPayload())
}

func (a *API) handleSetCartNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.cart.SetNote(req.Note)
	writeJSON(w, http.StatusOK, a.cartPayload())
}

func (a *API) handleClearCart(w http.ResponseWriter, _ *http.Request) {
	a.cart.Clear()
	writeJSON(w, http.StatusOK, a.cartPayload())
}

// handleCheckout finalizes the current cart as a pending local transaction.
// The cart is cleared only after the sale is recorded; the UI triggers the
// remote push separately via /api/sync.
func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentMethod string `json:"payment_method"`
		PaidAmount    int64  `json:"paid_amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.Checkout(r.Context(), domain.CheckoutRequest{
		Items:         a.cart.Lines(),
		PaymentMethod: req.PaymentMethod,
		PaidAmount:    req.PaidAmount,
		Note:          a.cart.Note(),
	})
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrEmptyCart),
			errors.Is(err, syncer.ErrInvalidQty),
			errors.Is(err, syncer.ErrUnknownPayment):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, syncer.ErrInsufficientPayment):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	a.cart.Clear()
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Edits []domain.StockEdit `json:"edits"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	changes, err := a.service.AdjustStock(r.Context(), req.Edits)
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrUnknownProduct):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, syncer.ErrNegativeStock):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, syncer.ErrPhotoRequired),
			errors.Is(err, syncer.ErrReasonRequired):
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_changes": changes})
}

func (a *API) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	devices, err := a.printer.ListDevices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"printers": devices})
}

func (a *API) handleGetDefaultPrinter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"printer": a.service.DefaultPrinter(r.Context())})
}

func (a *API) handleSetDefaultPrinter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Printer *domain.PrinterDevice `json:"printer"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.SetDefaultPrinter(r.Context(), req.Printer); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"printer": req.Printer})
}

func (a *API) handlePrint(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "localID")
	tx, ok := a.service.Transaction(localID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("transaction %q not found", localID))
		return
	}
	device := a.service.DefaultPrinter(r.Context())
	if device == nil {
		writeError(w, http.StatusConflict, errors.New("no default printer configured"))
		return
	}

	receipt := printer.Receipt{StoreName: a.storeName, Transaction: tx, Note: tx.Note}
	if err := a.printer.PrintReceipt(r.Context(), device.Address, receipt); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"printed": true,
		"preview": printer.Preview(receipt, a.printWidth),
	})
}

func (a *API) reportDay(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return day, nil
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := a.reportDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txs := a.service.Transactions()
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":      report.Daily(txs, day),
		"top_products": report.TopProducts(txs, day, 10),
	})
}

func (a *API) handleDailyReportXLSX(w http.ResponseWriter, r *http.Request) {
	day, err := a.reportDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txs := a.service.Transactions()
	summary := report.Daily(txs, day)
	top := report.TopProducts(txs, day, 0)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "laporan-"+summary.Date+".xlsx"))
	if err := report.WriteXLSX(w, summary, top); err != nil {
		log.Printf("[http] WARN: xlsx export: %v", err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so internal detail never reaches the UI.
	msg := err.Error()
	if status >= 500 {
		log.Printf("[http] internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
