package server

import (
	"fmt"
	"net/http"

	"semembed/api"
	"semembed/embedding"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is the nginx convention for a client that
// went away before the response was ready.
const StatusClientClosedRequest = 499

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind embedding.Kind) int {
	switch {
	case kind == embedding.KindRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case kind.Class() == embedding.ClassValidation:
		return http.StatusBadRequest
	case kind == embedding.KindUnknownModel:
		return http.StatusNotFound
	case kind == embedding.KindLoadFailed:
		return http.StatusServiceUnavailable
	case kind == embedding.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorType(kind embedding.Kind) string {
	if kind.Class() == embedding.ClassValidation || kind == embedding.KindUnknownModel {
		return "invalid_request_error"
	}
	return "server_error"
}

func (s *Server) writeError(c *gin.Context, err error) {
	kind := embedding.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "kind", kind,
			"request_id", c.GetString(requestIDKey), "error", err)
	}
	writeJSONError(c, status, err.Error(), errorType(kind), string(kind))
}

func writeJSONError(c *gin.Context, status int, message string, typ string, code string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{
		Error: api.ErrorBody{Message: message, Type: typ, Code: code},
	})
}

func (s *Server) handlePanic(c *gin.Context, recovered any) {
	s.logger.Error("panic while serving request", "path", c.Request.URL.Path,
		"request_id", c.GetString(requestIDKey), "panic", recovered)
	writeJSONError(c, http.StatusInternalServerError, fmt.Sprint("internal error: ", recovered),
		"server_error", string(embedding.KindInternal))
}
