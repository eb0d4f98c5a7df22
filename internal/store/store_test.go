package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nmarwaha/traindock/internal/store"
	"github.com/nmarwaha/traindock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("traindock_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newKey(name string) *models.APIKey {
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   "$2a$10$fakehashfortests",
		KeyPrefix: "tdk_" + name[:4],
		Scopes:    []string{"jobs:read", "jobs:write"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	key := newKey("alpha-key")
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"jobs:read", "jobs:write"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)
}

func TestAPIKey_DuplicateName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.CreateAPIKey(ctx, newKey("alpha-key")))
	err := s.CreateAPIKey(ctx, newKey("alpha-key"))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	key := newKey("alpha-key")
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	key := newKey("alpha-key")
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, uuid.New()), store.ErrNotFound)
}

func TestAPIKey_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.CreateAPIKey(ctx, newKey("alpha-key")))
	require.NoError(t, s.CreateAPIKey(ctx, newKey("omega-key")))

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

// --- Job Record Tests ---

func seedJob(t *testing.T, s store.Store, connector, jobID, state string) {
	t.Helper()
	require.NoError(t, s.CreateJobRecord(context.Background(), &models.Job{
		ID:        jobID,
		Connector: connector,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestJobRecord_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	seedJob(t, s, "nebula", "job-1", models.JobStatePending)

	job, err := s.GetJobRecord(ctx, "nebula", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatePending, job.State)
	assert.Nil(t, job.TerminalResult)

	_, err = s.GetJobRecord(ctx, "nebula", "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobRecord_DuplicateSubmission(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	seedJob(t, s, "nebula", "job-1", models.JobStatePending)
	err := s.CreateJobRecord(context.Background(), &models.Job{
		ID: "job-1", Connector: "nebula", State: models.JobStatePending, CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestJobRecord_UpdateStateWithTerminalResult(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	seedJob(t, s, "nebula", "job-1", models.JobStatePending)

	finished := time.Now().UTC().Truncate(time.Second)
	err := s.UpdateJobRecordState(ctx, "nebula", "job-1", models.JobStateCompleted,
		store.WithTerminalResult(&models.TerminalResult{
			State:      models.JobStateCompleted,
			Message:    "training completed",
			ArtifactID: "art-1",
			FinishedAt: finished,
		}))
	require.NoError(t, err)

	job, err := s.GetJobRecord(ctx, "nebula", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, job.State)
	require.NotNil(t, job.TerminalResult)
	assert.Equal(t, "art-1", job.TerminalResult.ArtifactID)
	assert.True(t, job.TerminalResult.FinishedAt.Equal(finished))
	assert.False(t, job.LastPolledAt.IsZero())

	err = s.UpdateJobRecordState(ctx, "nebula", "ghost", models.JobStateRunning)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobRecord_ListWithFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	seedJob(t, s, "nebula", "job-1", models.JobStateRunning)
	seedJob(t, s, "nebula", "job-2", models.JobStateCompleted)
	seedJob(t, s, "local", "job-3", models.JobStateRunning)

	jobs, total, err := s.ListJobRecords(ctx, store.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 3)

	jobs, total, err = s.ListJobRecords(ctx, store.JobFilter{Connector: "nebula"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = s.ListJobRecords(ctx, store.JobFilter{State: models.JobStateRunning})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	jobs, total, err = s.ListJobRecords(ctx, store.JobFilter{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 1)
}

func TestJobRecord_SameIDAcrossConnectors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	seedJob(t, s, "nebula", "job-1", models.JobStateRunning)
	seedJob(t, s, "local", "job-1", models.JobStatePending)

	nebulaJob, err := s.GetJobRecord(ctx, "nebula", "job-1")
	require.NoError(t, err)
	localJob, err := s.GetJobRecord(ctx, "local", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateRunning, nebulaJob.State)
	assert.Equal(t, models.JobStatePending, localJob.State)
}
