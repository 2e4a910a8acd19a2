package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/th2484/ziplineordersystem/internal/config"
	"github.com/th2484/ziplineordersystem/internal/fulfillment"
	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/notify"
	"github.com/th2484/ziplineordersystem/internal/queue"
	"github.com/th2484/ziplineordersystem/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

func testConfig() config.Config {
	return config.Config{
		MaxShipmentMass:         config.DefaultMaxShipmentMass,
		InitialWorkerCount:      1,
		WorkerMin:               1,
		WorkerMax:               2,
		ScaleInterval:           50 * time.Millisecond,
		ScaleUpBacklogPerWorker: 100,
		ScaleDownIdleTicks:      6,
		QueueHighWatermark:      5000,
	}
}

func setupApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	cfg := testConfig()
	mgr := queue.NewManager(cfg, queue.New(16), notify.NewLogPublisher(nil))
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() {
		mgr.Stop()
		cancel()
	})

	e, err := fulfillment.New(store.New(), cfg.MaxShipmentMass, fulfillment.WithNotifier(mgr))
	require.NoError(t, err)
	require.NoError(t, e.InitCatalog(context.Background(), []model.CatalogEntry{
		{ProductID: "0", ProductName: "RBC A+ Adult", MassG: 700},
		{ProductID: "6", ProductName: "PLT AB+", MassG: 120},
		{ProductID: "99", ProductName: "Generator", MassG: 5000},
	}))
	app := NewApp(cfg, e, mgr)
	return app, NewRouter(app)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestOpenAPIServed(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "openapi:")
}

func TestDocsServed(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "swagger-ui")
}

func TestHealthzAndRequestID(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-Id", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))
}

func TestOrderFlow(t *testing.T) {
	_, h := setupApp(t)

	rr := do(t, h, http.MethodPost, "/inventory", `[{"product_id":"0","quantity":5},{"product_id":"6","quantity":2}]`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/orders", `{"order_id":"123","requested":[{"product_id":"0","quantity":3},{"product_id":"6","quantity":4}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[fulfillment.Result](t, rr)
	assert.Equal(t, "123", res.OrderID)
	// 3 x 700g splits into 2+1, 2 x 120g goes in one more
	require.Len(t, res.Shipments, 3)
	for _, n := range res.Shipments {
		assert.Less(t, n.TotalMassG, config.DefaultMaxShipmentMass)
		assert.NotZero(t, n.Sequence)
	}

	rr = do(t, h, http.MethodGet, "/orders/123", "")
	require.Equal(t, http.StatusOK, rr.Code)
	order := decode[model.OrderView](t, rr)
	assert.False(t, order.Completed)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, 0, order.Lines[0].QuantityNeeded)
	assert.Equal(t, 2, order.Lines[1].QuantityNeeded)

	rr = do(t, h, http.MethodPost, "/inventory", `[{"product_id":"6","quantity":10}]`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[fulfillment.Result](t, rr).Shipments, 1)

	rr = do(t, h, http.MethodGet, "/orders/123/shipments", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.ShipmentView](t, rr), 4)

	rr = do(t, h, http.MethodGet, "/inventory", "")
	require.Equal(t, http.StatusOK, rr.Code)
	inv := decode[[]model.InventoryView](t, rr)
	byID := map[string]int{}
	for _, row := range inv {
		byID[row.ProductID] = row.Quantity
	}
	assert.Equal(t, map[string]int{"0": 2, "6": 8, "99": 0}, byID)

	rr = do(t, h, http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	orders := decode[[]model.OrderView](t, rr)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Completed)

	rr = do(t, h, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Product](t, rr), 3)
}

func TestErrorMapping(t *testing.T) {
	_, h := setupApp(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/orders",
		`{"order_id":"dup","requested":[{"product_id":"6","quantity":1}]}`).Code)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/orders", `{"order_id":`, http.StatusBadRequest, "invalid_json"},
		{"missing order id", http.MethodPost, "/orders", `{"requested":[{"product_id":"0","quantity":1}]}`, http.StatusUnprocessableEntity, "validation_error"},
		{"no lines", http.MethodPost, "/orders", `{"order_id":"o","requested":[]}`, http.StatusUnprocessableEntity, "validation_error"},
		{"zero quantity", http.MethodPost, "/orders", `{"order_id":"o","requested":[{"product_id":"0","quantity":0}]}`, http.StatusBadRequest, "invalid_request"},
		{"unknown product", http.MethodPost, "/orders", `{"order_id":"o","requested":[{"product_id":"nope","quantity":1}]}`, http.StatusNotFound, "not_found"},
		{"duplicate order", http.MethodPost, "/orders", `{"order_id":"dup","requested":[{"product_id":"6","quantity":1}]}`, http.StatusConflict, "duplicate"},
		{"unshippable", http.MethodPost, "/orders", `{"order_id":"o","requested":[{"product_id":"99","quantity":1}]}`, http.StatusUnprocessableEntity, "unshippable"},
		{"quantity over limit", http.MethodPost, "/orders", `{"order_id":"o","requested":[{"product_id":"0","quantity":1000001}]}`, http.StatusUnprocessableEntity, "validation_error"},
		{"shipment quantity over limit", http.MethodPost, "/shipments", `{"order_id":"dup","shipped":[{"product_id":"6","quantity":4611686018427387904}]}`, http.StatusUnprocessableEntity, "validation_error"},
		{"negative restock", http.MethodPost, "/inventory", `[{"product_id":"0","quantity":-1}]`, http.StatusUnprocessableEntity, "validation_error"},
		{"restock unknown", http.MethodPost, "/inventory", `[{"product_id":"nope","quantity":1}]`, http.StatusNotFound, "not_found"},
		{"overweight shipment", http.MethodPost, "/shipments", `{"order_id":"dup","shipped":[{"product_id":"0","quantity":3}]}`, http.StatusInternalServerError, "integrity_violation"},
		{"shipment unknown order", http.MethodPost, "/shipments", `{"order_id":"zzz","shipped":[{"product_id":"0","quantity":1}]}`, http.StatusNotFound, "not_found"},
		{"missing order", http.MethodGet, "/orders/zzz", "", http.StatusNotFound, "not_found"},
		{"missing order shipments", http.MethodGet, "/orders/zzz/shipments", "", http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decode[jsonError](t, rr).Error)
		})
	}

	// none of the rejected calls left an order behind
	rr := do(t, h, http.MethodGet, "/orders/o", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDirectShipment(t *testing.T) {
	_, h := setupApp(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/orders",
		`{"order_id":"o1","requested":[{"product_id":"0","quantity":1}]}`).Code)

	rr := do(t, h, http.MethodPost, "/shipments", `{"order_id":"o1","shipped":[{"product_id":"0","quantity":2},{"product_id":"6","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[fulfillment.Result](t, rr)
	require.Len(t, res.Shipments, 1)
	assert.Equal(t, 1520, res.Shipments[0].TotalMassG)
}

func TestShutdownRejectsWrites(t *testing.T) {
	app, h := setupApp(t)
	app.StartShutdown()

	for _, path := range []string{"/orders", "/inventory", "/shipments"} {
		rr := do(t, h, http.MethodPost, path, `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/inventory", "").Code)
}

func TestMetricsHandler(t *testing.T) {
	_, h := setupApp(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/inventory", `[{"product_id":"6","quantity":3}]`).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/orders",
		`{"order_id":"m","requested":[{"product_id":"6","quantity":1}]}`).Code)

	rr := do(t, h, http.MethodGet, "/debug/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	m := decode[map[string]any](t, rr)
	assert.EqualValues(t, 1800, m["max_shipment_mass_g"])
	assert.EqualValues(t, 1, m["notices_enqueued"])
	assert.EqualValues(t, 1, m["last_sequence"])
	assert.Contains(t, m, "worker_count")
	assert.EqualValues(t, 0, m["notices_dropped"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/debug/vars", "").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	app, _ := setupApp(t)
	r := NewRouter(app)
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rr := do(t, r, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal_error", decode[jsonError](t, rr).Error)
}
