package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nmarwaha/traindock/internal/api/response"
	"github.com/nmarwaha/traindock/internal/connector"
	"github.com/nmarwaha/traindock/pkg/models"
)

// NewListConnectorsHandler returns GET /api/v1/connectors. The optional
// ?capability= query filters by declared capability.
func NewListConnectorsHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		capability := r.URL.Query().Get("capability")
		if capability == "" {
			response.JSON(w, m.List())
			return
		}

		c := models.Capability(capability)
		if !models.ValidCapabilities[c] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"capability must be one of training, inference, registry, tracking", nil)
			return
		}
		response.JSON(w, m.ListByCapability(c))
	}
}

// NewConnectorStatusHandler returns GET /api/v1/connectors/{name}: the
// descriptor plus the current connection state.
func NewConnectorStatusHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		desc, err := m.Describe(name)
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		status, err := m.Status(name)
		if err != nil {
			writeConnectorError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"descriptor": desc,
			"connection": status,
		})
	}
}

// NewCredentialsHandler returns GET /api/v1/connectors/{name}/credentials:
// the ordered credential fields the connector's connect needs. Only the
// metadata is exposed, never values.
func NewCredentialsHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := m.RequiredCredentials(chi.URLParam(r, "name"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.JSON(w, reqs)
	}
}

// NewConnectHandler returns POST /api/v1/connectors/{name}/connect.
// Credential values pass straight through to the connector; they are not
// logged or persisted.
func NewConnectHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var req struct {
			Credentials map[string]string `json:"credentials"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := m.Connect(r.Context(), name, req.Credentials); err != nil {
			writeConnectorError(w, err)
			return
		}

		status, _ := m.Status(name)
		response.JSON(w, status)
	}
}

// NewDisconnectHandler returns POST /api/v1/connectors/{name}/disconnect.
func NewDisconnectHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if err := m.Disconnect(r.Context(), name); err != nil {
			writeConnectorError(w, err)
			return
		}

		status, _ := m.Status(name)
		response.JSON(w, status)
	}
}

// NewVerifyHandler returns POST /api/v1/connectors/{name}/verify.
func NewVerifyHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := m.Verify(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.JSON(w, map[string]bool{"verified": ok})
	}
}
