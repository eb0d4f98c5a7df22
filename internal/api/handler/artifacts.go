package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nmarwaha/traindock/internal/api/response"
	"github.com/nmarwaha/traindock/internal/connector"
)

// NewFetchArtifactHandler returns GET /api/v1/connectors/{name}/jobs/{jobID}/artifact.
// The artifact bytes stream back as an octet stream.
func NewFetchArtifactHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := m.FetchArtifact(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "jobID"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// NewUploadArtifactHandler returns POST /api/v1/connectors/{name}/artifacts.
// The request names a server-local file path to push; the provider's artifact
// ID comes back in the response.
func NewUploadArtifactHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path     string            `json:"path"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Path == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "path is required", nil)
			return
		}

		artifactID, err := m.UploadArtifact(r.Context(), chi.URLParam(r, "name"), req.Path, req.Metadata)
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.Created(w, map[string]any{"artifact_id": artifactID})
	}
}
