package httpapi

import (
	"expvar"

	"github.com/gin-gonic/gin"
)

// NewRouter registers HTTP routes and returns the gin engine with middleware.
func NewRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), Logging(), Recovery())

	r.GET("/products", app.listProducts)

	r.GET("/inventory", app.listInventory)
	r.POST("/inventory", app.rejectWhenClosing, app.restock)

	r.GET("/orders", app.listOrders)
	r.POST("/orders", app.rejectWhenClosing, app.createOrder)
	r.GET("/orders/:id", app.getOrder)
	r.GET("/orders/:id/shipments", app.orderShipments)

	r.POST("/shipments", app.rejectWhenClosing, app.createShipment)

	r.GET("/healthz", app.health)
	r.GET("/debug/metrics", app.metrics)
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	r.GET("/openapi.yaml", app.openapi)
	r.GET("/docs", app.docs)
	return r
}
