package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kassirpos/agent/internal/cart"
	"kassirpos/agent/internal/localstore"
	"kassirpos/agent/internal/printer"
	"kassirpos/agent/internal/remote/memory"
	"kassirpos/agent/internal/syncer"
)

type fixture struct {
	api     *API
	server  *httptest.Server
	cart    *cart.Cart
	printer *printer.Fake
	gateway *memory.Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := localstore.NewDir(t.TempDir())
	require.NoError(t, err)

	gateway := memory.NewSeeded()
	svc := syncer.New(localstore.New(blobs), gateway, nil)
	basket := cart.New()
	fake := &printer.Fake{Devices: []printer.Device{{Name: "RPP02", Address: "AA:BB:CC:DD:EE:FF"}}}

	api := New(svc, basket, fake, "Jamu Bu Sri", 0)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return &fixture{api: api, server: server, cart: basket, printer: fake, gateway: gateway}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	decoded := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func (f *fixture) hydrate(t *testing.T) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPost, "/api/hydrate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["hydrated"])
}

func TestHydrateReturnsSnapshot(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/hydrate", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["products"], 3)
	assert.Equal(t, true, body["hydrated"])
	assert.NotContains(t, body, "sync_error")
}

func TestHydrateSurfacesAdvisoryError(t *testing.T) {
	f := newFixture(t)
	f.gateway.FailNext("ListProducts", assert.AnError)

	resp, body := f.do(t, http.MethodPost, "/api/hydrate", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["hydrated"])
	assert.Contains(t, body["sync_error"], "hydrate:")
}

func TestCartFlow(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)

	resp, body := f.do(t, http.MethodPost, "/api/cart/items", map[string]any{
		"product_id": "p1", "name": "Jamu Kunyit Asam", "unit_price": 15000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 15000, body["subtotal"])

	resp, body = f.do(t, http.MethodPost, "/api/cart/items/1/increment", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 30000, body["subtotal"])

	resp, _ = f.do(t, http.MethodPost, "/api/cart/note", map[string]any{"note": "  tanpa gula "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tanpa gula", f.cart.Note())

	resp, body = f.do(t, http.MethodDelete, "/api/cart/items/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["subtotal"])
}

func TestCheckoutRecordsPendingAndClearsCart(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)
	f.cart.AddItem("1", "Jamu Kunyit Asam", 15000)
	f.cart.IncQty("1")

	resp, body := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"payment_method": "CASH", "paid_amount": 50000,
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 30000, body["total_amount"])
	assert.EqualValues(t, 20000, body["change_amount"])
	assert.Equal(t, "pending", body["status"])
	assert.Empty(t, f.cart.Lines())
}

func TestCheckoutValidationStatusCodes(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)

	// Empty cart.
	resp, _ := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"payment_method": "CASH", "paid_amount": 1000,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Underpaid allows a distinct status for the UI.
	f.cart.AddItem("1", "Jamu", 15000)
	resp, _ = f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"payment_method": "QRIS", "paid_amount": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, f.cart.Lines(), "failed checkout must keep the cart")
}

func TestSyncEndpoint(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)
	f.cart.AddItem("1", "Jamu", 15000)
	resp, _ := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"payment_method": "CASH", "paid_amount": 15000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["synced"])
	assert.EqualValues(t, 0, body["remaining"])
}

func TestAdjustStockStatusCodes(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)

	resp, _ := f.do(t, http.MethodPost, "/api/stock/adjust", map[string]any{
		"edits": []map[string]any{{"product_id": "404", "new_stock": 5, "photo_ref": "x"}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/stock/adjust", map[string]any{
		"edits": []map[string]any{{"product_id": "1", "new_stock": 30}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/stock/adjust", map[string]any{
		"edits": []map[string]any{{
			"product_id": "1", "new_stock": 30, "photo_ref": "file:///restock.jpg",
		}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["stock_changes"], 1)
}

func TestPrinterEndpoints(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)

	resp, body := f.do(t, http.MethodGet, "/api/printers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["printers"], 1)

	// No default configured yet.
	f.cart.AddItem("1", "Jamu", 15000)
	checkoutResp, tx := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"payment_method": "CASH", "paid_amount": 15000,
	})
	require.Equal(t, http.StatusCreated, checkoutResp.StatusCode)
	localID := tx["local_id"].(string)

	resp, _ = f.do(t, http.MethodPost, "/api/print/"+localID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/printers/default", map[string]any{
		"printer": map[string]any{"name": "RPP02", "address": "AA:BB:CC:DD:EE:FF"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/print/"+localID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["printed"])
	assert.Contains(t, body["preview"], "Jamu Bu Sri")
	require.Len(t, f.printer.Printed, 1)

	resp, _ = f.do(t, http.MethodPost, "/api/print/tx-missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDailyReportEndpoints(t *testing.T) {
	f := newFixture(t)
	f.hydrate(t)
	f.cart.AddItem("1", "Jamu Kunyit Asam", 15000)
	resp, _ := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"payment_method": "CASH", "paid_amount": 15000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/reports/daily", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["transactions"])
	assert.EqualValues(t, 15000, summary["gross_amount"])

	resp, _ = f.do(t, http.MethodGet, "/api/reports/daily?date=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/reports/daily.xlsx", nil)
	require.NoError(t, err)
	xlsxResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer xlsxResp.Body.Close()
	assert.Equal(t, http.StatusOK, xlsxResp.StatusCode)
	assert.Contains(t, xlsxResp.Header.Get("Content-Disposition"), ".xlsx")
}
