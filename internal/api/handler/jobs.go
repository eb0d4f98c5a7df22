package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nmarwaha/traindock/internal/api/response"
	"github.com/nmarwaha/traindock/internal/connector"
	"github.com/nmarwaha/traindock/internal/store"
	"github.com/nmarwaha/traindock/pkg/models"
)

// NewSubmitJobHandler returns POST /api/v1/connectors/{name}/jobs. The
// payload is opaque and handed to the connector untouched.
func NewSubmitJobHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var cfg models.TrainingConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if cfg.ResourceID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "resource_id is required", nil)
			return
		}

		job, err := m.SubmitJob(r.Context(), name, cfg)
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.Created(w, job)
	}
}

// NewJobStatusHandler returns GET /api/v1/connectors/{name}/jobs/{jobID}.
// Terminal jobs are answered from the tracker without a provider round-trip.
func NewJobStatusHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := m.GetJobStatus(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "jobID"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns POST /api/v1/connectors/{name}/jobs/{jobID}/cancel.
// cancelled=false means the job was already terminal.
func NewCancelJobHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cancelled, err := m.CancelJob(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "jobID"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}
		response.JSON(w, map[string]bool{"cancelled": cancelled})
	}
}

// NewStreamLogsHandler returns GET /api/v1/connectors/{name}/jobs/{jobID}/logs,
// an NDJSON stream flushed per line. The stream is finite for terminal jobs;
// closing the request releases the underlying provider stream.
func NewStreamLogsHandler(m *connector.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lines, err := m.StreamLogs(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "jobID"))
		if err != nil {
			writeConnectorError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		enc := json.NewEncoder(w)
		for line := range lines {
			if err := enc.Encode(line); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// NewListJobsHandler returns GET /api/v1/jobs, the persisted job records with
// optional connector/state filters.
func NewListJobsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.JobFilter{
			Connector: q.Get("connector"),
			State:     q.Get("state"),
			Page:      intQuery(q.Get("page"), 1),
			Limit:     intQuery(q.Get("limit"), 50),
		}

		jobs, total, err := st.ListJobRecords(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

func intQuery(raw string, defaultVal int) int {
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}
