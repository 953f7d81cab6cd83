package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/coverage-analyzer/internal/analysis"
	"github.com/signalsfoundry/coverage-analyzer/internal/logging"
	"github.com/signalsfoundry/coverage-analyzer/kb"
	"github.com/signalsfoundry/coverage-analyzer/tle"
)

// ErrBadRequest wraps request bodies that cannot be decoded.
var ErrBadRequest = errors.New("bad request")

// StatusFor maps analysis and catalog errors onto HTTP status codes.
func StatusFor(err error) int {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrBadRequest),
		analysis.IsInvalid(err),
		errors.Is(err, tle.ErrLengthMismatch),
		errors.Is(err, tle.ErrPatternMismatch),
		errors.Is(err, tle.ErrChecksumMismatch),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		return http.StatusBadRequest

	case errors.Is(err, kb.ErrSatelliteNotFound),
		errors.Is(err, kb.ErrTargetNotFound):
		return http.StatusNotFound

	case errors.Is(err, kb.ErrSatelliteExists),
		errors.Is(err, kb.ErrTargetExists):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with a JSON error body. Server-side
// failures are logged; client errors are not.
func writeError(c *gin.Context, err error) {
	code := StatusFor(err)
	ctx := c.Request.Context()
	if code >= http.StatusInternalServerError {
		if log := logging.LoggerFromContext(ctx); log != nil {
			log.Error(ctx, "request failed", logging.Err(err))
		}
	}
	c.AbortWithStatusJSON(code, gin.H{
		"error":      err.Error(),
		"request_id": logging.RequestIDFromContext(ctx),
	})
}
