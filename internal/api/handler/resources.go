package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nmarwaha/traindock/internal/api/response"
	"github.com/nmarwaha/traindock/internal/connector"
)

// NewListResourcesHandler returns GET /api/v1/connectors/{name}/resources.
// Results are a fresh provider snapshot, never cached by the server.
func NewListResourcesHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resources, err := m.ListResources(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.JSON(w, resources)
	}
}

// NewPricingHandler returns GET /api/v1/connectors/{name}/resources/{resourceID}/pricing.
func NewPricingHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pricing, err := m.GetPricing(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "resourceID"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.JSON(w, pricing)
	}
}
