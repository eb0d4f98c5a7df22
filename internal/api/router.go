package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/nmarwaha/traindock/internal/api/middleware"
	"github.com/nmarwaha/traindock/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	ListConnectorsHandler  http.HandlerFunc
	ConnectorStatusHandler http.HandlerFunc
	CredentialsHandler     http.HandlerFunc
	ConnectHandler         http.HandlerFunc
	DisconnectHandler      http.HandlerFunc
	VerifyHandler          http.HandlerFunc

	SubmitJobHandler  http.HandlerFunc
	JobStatusHandler  http.HandlerFunc
	CancelJobHandler  http.HandlerFunc
	StreamLogsHandler http.HandlerFunc
	ListJobsHandler   http.HandlerFunc

	FetchArtifactHandler  http.HandlerFunc
	UploadArtifactHandler http.HandlerFunc

	ListResourcesHandler http.HandlerFunc
	PricingHandler       http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/connectors", orNotImplemented(deps.ListConnectorsHandler))
		r.Get("/api/v1/connectors/{name}", orNotImplemented(deps.ConnectorStatusHandler))
		r.Get("/api/v1/connectors/{name}/credentials", orNotImplemented(deps.CredentialsHandler))
		r.Post("/api/v1/connectors/{name}/connect", orNotImplemented(deps.ConnectHandler))
		r.Post("/api/v1/connectors/{name}/disconnect", orNotImplemented(deps.DisconnectHandler))
		r.Post("/api/v1/connectors/{name}/verify", orNotImplemented(deps.VerifyHandler))

		r.Post("/api/v1/connectors/{name}/jobs", orNotImplemented(deps.SubmitJobHandler))
		r.Get("/api/v1/connectors/{name}/jobs/{jobID}", orNotImplemented(deps.JobStatusHandler))
		r.Post("/api/v1/connectors/{name}/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJobHandler))
		r.Get("/api/v1/connectors/{name}/jobs/{jobID}/logs", orNotImplemented(deps.StreamLogsHandler))
		r.Get("/api/v1/connectors/{name}/jobs/{jobID}/artifact", orNotImplemented(deps.FetchArtifactHandler))
		r.Post("/api/v1/connectors/{name}/artifacts", orNotImplemented(deps.UploadArtifactHandler))

		r.Get("/api/v1/connectors/{name}/resources", orNotImplemented(deps.ListResourcesHandler))
		r.Get("/api/v1/connectors/{name}/resources/{resourceID}/pricing", orNotImplemented(deps.PricingHandler))

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
