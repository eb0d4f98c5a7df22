// Package nebula implements the connector for the Nebula cloud GPU rental
// API. Each operation maps onto one REST call; job statuses reported by the
// provider are translated into the normalized lifecycle.
package nebula

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nmarwaha/traindock/internal/config"
	"github.com/nmarwaha/traindock/internal/connector"
	"github.com/nmarwaha/traindock/pkg/models"
)

// ErrUnreachable means the Nebula API could not be reached at all.
var ErrUnreachable = errors.New("nebula unreachable")

// Descriptor is the registration identity of the nebula connector.
var Descriptor = models.ConnectorDescriptor{
	Name:        "nebula",
	DisplayName: "Nebula Cloud GPU",
	Description: "Rents GPU capacity from the Nebula cloud and runs training jobs on it",
	Version:     "1.2.0",
	Capabilities: []models.Capability{
		models.CapabilityTraining,
		models.CapabilityInference,
	},
}

// Connector implements models.Connector against Nebula's HTTP API.
type Connector struct {
	baseURL string
	client  *http.Client
	// streamClient has no client-level timeout; log streams are long-lived
	// and bounded by the consumer's ctx instead.
	streamClient *http.Client

	mu        sync.Mutex
	apiKey    string
	connected bool
}

// New creates a nebula connector from config.
func New(cfg config.NebulaConfig) *Connector {
	return &Connector{
		baseURL:      cfg.BaseURL,
		client:       &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

func (c *Connector) Name() string { return "nebula" }

func (c *Connector) GetRequiredCredentials() []models.CredentialRequirement {
	return []models.CredentialRequirement{
		{
			Key:         "api_key",
			Label:       "API key",
			Description: "Nebula account API key, created in the console under Settings > Keys",
			Required:    true,
			Secret:      true,
		},
	}
}

// Connect verifies the supplied API key against the provider and keeps it in
// memory for the session. The key is never persisted.
func (c *Connector) Connect(ctx context.Context, credentials map[string]string) error {
	apiKey := credentials["api_key"]
	if apiKey == "" {
		return fmt.Errorf("%w: api_key is required", connector.ErrAuthentication)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/account", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: provider rejected api_key", connector.ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("nebula account check: status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.apiKey = apiKey
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Connector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = ""
	c.connected = false
	return nil
}

func (c *Connector) VerifyConnection(ctx context.Context) (bool, error) {
	key, err := c.sessionKey()
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/account", nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, classifyError(err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Connector) sessionKey() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return "", connector.ErrNotConnected
	}
	return c.apiKey, nil
}

// nebulaJob is the provider's wire representation of a job.
type nebulaJob struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// translateStatus maps Nebula job statuses onto the normalized lifecycle.
func translateStatus(status string) string {
	switch status {
	case "queued", "provisioning":
		return models.JobStatePending
	case "running":
		return models.JobStateRunning
	case "succeeded":
		return models.JobStateCompleted
	case "failed":
		return models.JobStateFailed
	case "cancelled":
		return models.JobStateCancelled
	default:
		return models.JobStatePending
	}
}

func (c *Connector) SubmitJob(ctx context.Context, cfg models.TrainingConfig) (string, error) {
	key, err := c.sessionKey()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"resource_id": cfg.ResourceID,
		"payload":     cfg.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("encoding job config: %w", err)
	}

	resp, err := c.do(ctx, key, http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &connector.SubmissionError{
			Connector: "nebula",
			Reason:    string(detail),
		}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nebula submit: status %d", resp.StatusCode)
	}

	var job nebulaJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	return job.ID, nil
}

func (c *Connector) GetJobStatus(ctx context.Context, jobID string) (*models.Job, error) {
	key, err := c.sessionKey()
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, key, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: job %s", connector.ErrNotFound, jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nebula job status: status %d", resp.StatusCode)
	}

	var wire nebulaJob
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding job status: %w", err)
	}

	job := &models.Job{
		ID:        wire.ID,
		Connector: "nebula",
		State:     translateStatus(wire.Status),
	}
	if models.IsTerminalState(job.State) {
		finishedAt := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, wire.FinishedAt); err == nil {
			finishedAt = t
		}
		job.TerminalResult = &models.TerminalResult{
			State:      job.State,
			Message:    wire.Message,
			ArtifactID: wire.ArtifactID,
			FinishedAt: finishedAt,
		}
	}
	return job, nil
}

func (c *Connector) CancelJob(ctx context.Context, jobID string) (bool, error) {
	key, err := c.sessionKey()
	if err != nil {
		return false, err
	}

	resp, err := c.do(ctx, key, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, fmt.Errorf("%w: job %s", connector.ErrNotFound, jobID)
	case http.StatusConflict:
		// Provider reports the job already terminal.
		return false, nil
	case http.StatusOK, http.StatusAccepted:
		return true, nil
	default:
		return false, fmt.Errorf("nebula cancel: status %d", resp.StatusCode)
	}
}

// StreamLogs tails the provider's NDJSON log stream. The returned channel
// closes on stream end or when ctx is cancelled; cancelling also releases
// the underlying connection.
func (c *Connector) StreamLogs(ctx context.Context, jobID string) (<-chan models.LogLine, error) {
	key, err := c.sessionKey()
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v1/jobs/%s/logs?follow=true", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: job %s", connector.ErrNotFound, jobID)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("nebula logs: status %d", resp.StatusCode)
	}

	out := make(chan models.LogLine)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var line models.LogLine
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Connector) FetchArtifact(ctx context.Context, jobID string) ([]byte, error) {
	key, err := c.sessionKey()
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, key, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/artifact", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: artifact for job %s", connector.ErrNotFound, jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nebula artifact: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Connector) UploadArtifact(ctx context.Context, path string, metadata map[string]string) (string, error) {
	key, err := c.sessionKey()
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening artifact file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("reading artifact file: %w", err)
	}
	for k, v := range metadata {
		if err := writer.WriteField(k, v); err != nil {
			return "", fmt.Errorf("building upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/artifacts", &buf)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nebula upload: status %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	return result.ID, nil
}

func (c *Connector) ListResources(ctx context.Context) ([]models.Resource, error) {
	key, err := c.sessionKey()
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, key, http.MethodGet, "/v1/resources", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nebula resources: status %d", resp.StatusCode)
	}

	var wire struct {
		Resources []models.Resource `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding resources: %w", err)
	}
	return wire.Resources, nil
}

func (c *Connector) GetPricing(ctx context.Context, resourceID string) (models.PricingInfo, error) {
	key, err := c.sessionKey()
	if err != nil {
		return models.PricingInfo{}, err
	}

	resp, err := c.do(ctx, key, http.MethodGet, "/v1/resources/"+url.PathEscape(resourceID)+"/pricing", nil)
	if err != nil {
		return models.PricingInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.PricingInfo{}, fmt.Errorf("%w: resource %s", connector.ErrNotFound, resourceID)
	}
	if resp.StatusCode != http.StatusOK {
		return models.PricingInfo{}, fmt.Errorf("nebula pricing: status %d", resp.StatusCode)
	}

	var pricing models.PricingInfo
	if err := json.NewDecoder(resp.Body).Decode(&pricing); err != nil {
		return models.PricingInfo{}, fmt.Errorf("decoding pricing: %w", err)
	}
	return pricing, nil
}

func (c *Connector) do(ctx context.Context, key, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

// classifyError maps transport failures onto the framework taxonomy.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", connector.ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}

var _ models.Connector = (*Connector)(nil)
