package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nmarwaha/traindock/internal/api"
	mw "github.com/nmarwaha/traindock/internal/api/middleware"
	"github.com/nmarwaha/traindock/internal/cache"
	"github.com/nmarwaha/traindock/internal/store"
	"github.com/nmarwaha/traindock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub store whose only key carries the given scopes ---

type stubStore struct {
	keys []*models.APIKey
}

func (s *stubStore) Ping(_ context.Context) error { return nil }
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }
func (s *stubStore) CreateJobRecord(_ context.Context, _ *models.Job) error    { return nil }
func (s *stubStore) GetJobRecord(_ context.Context, _, _ string) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) ListJobRecords(_ context.Context, _ store.JobFilter) ([]*models.Job, int, error) {
	return nil, 0, nil
}
func (s *stubStore) UpdateJobRecordState(_ context.Context, _, _, _ string, _ ...store.JobUpdateOption) error {
	return nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) Close() error                                                     { return nil }
func (c *stubCache) SetJobState(_ context.Context, _, _, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobState(_ context.Context, _, _ string) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

const rawKey = "tdk_router_test_key"

func newTestRouter(t *testing.T, scopes ...string) http.Handler {
	t.Helper()

	var keys []*models.APIKey
	if scopes != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
		require.NoError(t, err)
		keys = []*models.APIKey{{
			ID:        uuid.New(),
			Name:      "router-test",
			KeyHash:   string(hash),
			KeyPrefix: rawKey[:8],
			Scopes:    scopes,
		}}
	}

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubStore{keys: keys}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/connectors"},
		{"GET", "/api/v1/connectors/local"},
		{"POST", "/api/v1/connectors/local/connect"},
		{"POST", "/api/v1/connectors/local/jobs"},
		{"GET", "/api/v1/connectors/local/jobs/job-1"},
		{"GET", "/api/v1/connectors/local/resources"},
		{"GET", "/api/v1/jobs"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_AdminRoutesRequireAdminScope(t *testing.T) {
	router := newTestRouter(t, "jobs:read")

	req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_UnwiredHandlerReturns501(t *testing.T) {
	router := newTestRouter(t, "jobs:read", "admin")

	req := httptest.NewRequest("GET", "/api/v1/connectors", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify the stubs satisfy the interfaces the router depends on.
var _ store.Store = (*stubStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
