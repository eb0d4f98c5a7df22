package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nmarwaha/traindock/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Persisted job records and API keys live behind this boundary; the connector
// core never talks to the database directly.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJobRecord(ctx context.Context, job *models.Job) error
	GetJobRecord(ctx context.Context, connector, jobID string) (*models.Job, error)
	ListJobRecords(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	UpdateJobRecordState(ctx context.Context, connector, jobID, state string, opts ...JobUpdateOption) error
}

// JobFilter narrows ListJobRecords results.
type JobFilter struct {
	Connector string
	State     string
	Page      int
	Limit     int
}

type jobUpdateParams struct {
	TerminalResult *models.TerminalResult
}

type JobUpdateOption func(*jobUpdateParams)

func WithTerminalResult(result *models.TerminalResult) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.TerminalResult = result
	}
}
