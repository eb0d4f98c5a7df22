package handler

import (
	"errors"
	"net/http"

	"github.com/nmarwaha/traindock/internal/api/response"
	"github.com/nmarwaha/traindock/internal/connector"
)

// writeConnectorError maps framework errors onto HTTP responses. Every
// manager failure reaches the caller as a typed code; nothing escapes as an
// unhandled 500 panic.
func writeConnectorError(w http.ResponseWriter, err error) {
	var submission *connector.SubmissionError
	var provider *connector.ProviderFailure

	switch {
	case errors.Is(err, connector.ErrUnknownConnector):
		response.Error(w, http.StatusNotFound, "UNKNOWN_CONNECTOR", err.Error(), nil)
	case errors.Is(err, connector.ErrNotConnected):
		response.Error(w, http.StatusConflict, "NOT_CONNECTED", err.Error(), nil)
	case errors.Is(err, connector.ErrAuthentication):
		response.Error(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", err.Error(), nil)
	case errors.Is(err, connector.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, connector.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), nil)
	case errors.Is(err, connector.ErrNotImplemented):
		response.Error(w, http.StatusNotImplemented, "NOT_SUPPORTED", err.Error(), nil)
	case errors.As(err, &submission):
		response.Error(w, http.StatusUnprocessableEntity, "SUBMISSION_REJECTED", err.Error(), nil)
	case errors.As(err, &provider):
		response.Error(w, http.StatusBadGateway, "PROVIDER_FAILURE", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}
