package httpapi

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/th2484/ziplineordersystem/internal/config"
	"github.com/th2484/ziplineordersystem/internal/fulfillment"
	httpopenapi "github.com/th2484/ziplineordersystem/internal/http/openapi"
	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/obs"
	"github.com/th2484/ziplineordersystem/internal/queue"
)

var validate = validator.New()

// App holds what the handlers need.
type App struct {
	Cfg     config.Config
	Engine  *fulfillment.Engine
	Manager *queue.Manager
	closing atomic.Bool
	started time.Time
}

// NewApp builds the handler set. m may be nil when no notice dispatcher runs.
func NewApp(cfg config.Config, e *fulfillment.Engine, m *queue.Manager) *App {
	return &App{Cfg: cfg, Engine: e, Manager: m, started: time.Now()}
}

// StartShutdown makes write endpoints answer 503 and closes notice intake.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	if a.Manager != nil {
		a.Manager.CloseIntake()
	}
}

// rejectWhenClosing guards write routes during shutdown.
func (a *App) rejectWhenClosing(c *gin.Context) {
	if a.closing.Load() || (a.Manager != nil && a.Manager.IsShuttingDown()) {
		writeError(c, http.StatusServiceUnavailable, "shutting_down", nil)
		return
	}
	c.Next()
}

// bindAndValidate decodes the JSON body into req and runs validator tags on
// it. It writes the error response itself and reports whether to continue.
func bindAndValidate(c *gin.Context, req any, tag string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	var err error
	if tag != "" {
		err = validate.Var(req, tag)
	} else {
		err = validate.Struct(req)
	}
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(c, http.StatusBadRequest, "validation_error", err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		writeError(c, http.StatusUnprocessableEntity, "validation_error", fields)
		return false
	}
	return true
}

func (a *App) listProducts(c *gin.Context) {
	products, err := a.Engine.Products(c.Request.Context())
	if err != nil {
		writeEngineError(c, "list_products", err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (a *App) listInventory(c *gin.Context) {
	rows, err := a.Engine.Inventory(c.Request.Context())
	if err != nil {
		writeEngineError(c, "list_inventory", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (a *App) restock(c *gin.Context) {
	var items []model.LineRequest
	if !bindAndValidate(c, &items, "dive") {
		return
	}
	res, err := a.Engine.ProcessRestock(c.Request.Context(), items)
	if err != nil {
		writeEngineError(c, "restock", err)
		return
	}
	obs.Logger.Infow("restock_processed",
		"request_id", RequestID(c),
		"items", len(items),
		"shipments", len(res.Shipments),
	)
	c.JSON(http.StatusOK, res)
}

func (a *App) listOrders(c *gin.Context) {
	orders, err := a.Engine.Orders(c.Request.Context())
	if err != nil {
		writeEngineError(c, "list_orders", err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (a *App) getOrder(c *gin.Context) {
	o, err := a.Engine.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, "get_order", err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *App) orderShipments(c *gin.Context) {
	shipments, err := a.Engine.OrderShipments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, "order_shipments", err)
		return
	}
	c.JSON(http.StatusOK, shipments)
}

func (a *App) createOrder(c *gin.Context) {
	var req model.OrderRequest
	if !bindAndValidate(c, &req, "") {
		return
	}
	res, err := a.Engine.ProcessOrder(c.Request.Context(), req)
	if err != nil {
		writeEngineError(c, "order", err)
		return
	}
	obs.Logger.Infow("order_processed",
		"request_id", RequestID(c),
		"order_id", res.OrderID,
		"lines", len(req.Requested),
		"shipments", len(res.Shipments),
	)
	c.JSON(http.StatusCreated, res)
}

func (a *App) createShipment(c *gin.Context) {
	var req model.ShipmentRequest
	if !bindAndValidate(c, &req, "") {
		return
	}
	res, err := a.Engine.ShipPackage(c.Request.Context(), req)
	if err != nil {
		writeEngineError(c, "shipment", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) metrics(c *gin.Context) {
	m := gin.H{
		"max_shipment_mass_g": a.Engine.Ceiling(),
		"uptime_sec":          time.Since(a.started).Seconds(),
	}
	if a.Manager != nil {
		qm := a.Manager.QueueMetrics()
		m["notices_enqueued"] = qm.Enqueued
		m["notices_processed"] = qm.Processed
		m["notices_failed"] = qm.Failed
		m["notices_dropped"] = qm.Dropped
		m["backlog_size"] = qm.Backlog
		m["queue_depth"] = qm.Depth
		m["worker_count"] = a.Manager.WorkerCount()
		m["last_sequence"] = a.Manager.LastSequence()
	}
	c.JSON(http.StatusOK, m)
}

func (a *App) openapi(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", httpopenapi.YAML)
}

const docsHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Zipline Order System API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`

func (a *App) docs(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsHTML))
}
