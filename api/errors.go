package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskflow-api/domain"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Retry  bool              `json:"retry,omitempty"`
}

// statusFor maps a repository error to its HTTP status and whether the
// client may retry the same request.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest, false
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrLoadFailed):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, domain.ErrCreateFailed), errors.Is(err, domain.ErrUpdateFailed), errors.Is(err, domain.ErrDeleteFailed):
		return http.StatusBadGateway, false
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, false
	}
}

func writeError(c echo.Context, err error) error {
	status, retry := statusFor(err)
	resp := errorResponse{Error: err.Error(), Retry: retry}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if m := metricsFrom(c); m != nil {
		m.SetErrorStage(stageFor(status))
	}
	return c.JSON(status, resp)
}

func stageFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "auth"
	case http.StatusConflict:
		return "duplicate"
	default:
		return "storage"
	}
}
