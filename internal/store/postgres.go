package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nmarwaha/traindock/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Job Records ---

func (s *PostgresStore) CreateJobRecord(ctx context.Context, job *models.Job) error {
	terminal, err := marshalTerminal(job.TerminalResult)
	if err != nil {
		return err
	}
	var polledAt *time.Time
	if !job.LastPolledAt.IsZero() {
		polledAt = &job.LastPolledAt
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (connector, job_id, state, terminal_result, created_at, last_polled_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		job.Connector, job.ID, job.State, terminal, job.CreatedAt, polledAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJobRecord(ctx context.Context, connector, jobID string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT connector, job_id, state, terminal_result, created_at, last_polled_at
		 FROM jobs WHERE connector = $1 AND job_id = $2`, connector, jobID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobRecords(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := 1

	if filter.Connector != "" {
		where = append(where, fmt.Sprintf("connector = $%d", arg))
		args = append(args, filter.Connector)
		arg++
	}
	if filter.State != "" {
		where = append(where, fmt.Sprintf("state = $%d", arg))
		args = append(args, filter.State)
		arg++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count job records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT connector, job_id, state, terminal_result, created_at, last_polled_at
		 FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, clause, arg, arg+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list job records: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job record: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) UpdateJobRecordState(ctx context.Context, connector, jobID, state string, opts ...JobUpdateOption) error {
	params := jobUpdateParams{}
	for _, opt := range opts {
		opt(&params)
	}

	terminal, err := marshalTerminal(params.TerminalResult)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $1, terminal_result = COALESCE($2, terminal_result),
		 last_polled_at = NOW(), updated_at = NOW()
		 WHERE connector = $3 AND job_id = $4`,
		state, terminal, connector, jobID)
	if err != nil {
		return fmt.Errorf("update job record state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job      models.Job
		terminal []byte
		polledAt *time.Time
	)
	if err := row.Scan(&job.Connector, &job.ID, &job.State, &terminal, &job.CreatedAt, &polledAt); err != nil {
		return nil, err
	}
	if len(terminal) > 0 {
		var result models.TerminalResult
		if err := json.Unmarshal(terminal, &result); err != nil {
			return nil, fmt.Errorf("decode terminal result: %w", err)
		}
		job.TerminalResult = &result
	}
	if polledAt != nil {
		job.LastPolledAt = *polledAt
	}
	return &job, nil
}

func marshalTerminal(result *models.TerminalResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode terminal result: %w", err)
	}
	return payload, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
