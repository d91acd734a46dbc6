package api

import (
	"net/http"
	"strings"

	"conjoint/domain/core"
	"conjoint/internal/errors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body of every failed request. Refusals carry the
// title, rationale and fixes of the underlying AppError.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Error   string                 `json:"error"`
	Title   string                 `json:"title,omitempty"`
	Why     string                 `json:"why,omitempty"`
	Fixes   []string               `json:"fixes,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	RunID   core.RunID             `json:"run_id,omitempty"`
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code string) int {
	switch {
	case code == errors.CodeNotFound:
		return http.StatusNotFound
	case code == errors.CodeInvalidInput:
		return http.StatusBadRequest
	case code == errors.CodeDatabaseError:
		return http.StatusServiceUnavailable
	case code == errors.CodeMethodUnavailable, code == errors.CodeNotImplemented:
		return http.StatusNotImplemented
	case strings.HasPrefix(code, "CFG_"), code == errors.CodeConfigInvalid,
		strings.HasPrefix(code, "DATA_"), strings.HasPrefix(code, "MODEL_"),
		strings.HasPrefix(code, "SIM_"), strings.HasPrefix(code, "BW_"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func newErrorResponse(err error) (int, ErrorResponse) {
	if core.IsNotFoundError(err) {
		return http.StatusNotFound, ErrorResponse{Code: errors.CodeNotFound, Error: err.Error()}
	}
	appErr, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Code: errors.CodeInternalError, Error: err.Error()}
	}
	return statusFor(appErr.Code), ErrorResponse{
		Code:    appErr.Code,
		Error:   appErr.Error(),
		Title:   appErr.Title,
		Why:     appErr.Why,
		Fixes:   appErr.Fixes,
		Details: appErr.Details,
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, body := newErrorResponse(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: errors.CodeInvalidInput, Error: message})
}
