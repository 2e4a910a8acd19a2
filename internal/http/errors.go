// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/th2484/ziplineordersystem/internal/fulfillment"
	"github.com/th2484/ziplineordersystem/internal/obs"
	"github.com/th2484/ziplineordersystem/internal/store"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// writeError aborts the request with a JSON error payload.
func writeError(c *gin.Context, status int, message string, details any) {
	c.AbortWithStatusJSON(status, jsonError{Error: message, Details: details})
}

// classify maps an engine or store error onto a status code and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, fulfillment.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, fulfillment.ErrUnshippable):
		return http.StatusUnprocessableEntity, "unshippable"
	case errors.Is(err, fulfillment.ErrMassLimitExceeded):
		return http.StatusUnprocessableEntity, "mass_limit_exceeded"
	case errors.Is(err, fulfillment.ErrConfiguration):
		return http.StatusBadRequest, "configuration_error"
	case errors.Is(err, fulfillment.ErrIntegrityViolation), errors.Is(err, store.ErrConstraint):
		return http.StatusInternalServerError, "integrity_violation"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeEngineError logs and writes an error returned by the engine.
func writeEngineError(c *gin.Context, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		obs.Logger.Errorw(op+"_failed", "request_id", RequestID(c), "error", err)
	} else {
		obs.Logger.Infow(op+"_rejected", "request_id", RequestID(c), "reason", code, "error", err.Error())
	}
	writeError(c, status, code, err.Error())
}
