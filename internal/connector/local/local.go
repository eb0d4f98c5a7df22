// Package local implements the reference connector for local hardware. Jobs
// run as simulated in-process executions that progress through the normal
// lifecycle, emit logs, and produce an artifact on completion; there is no
// external provider to talk to.
package local

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmarwaha/traindock/internal/connector"
	"github.com/nmarwaha/traindock/pkg/models"
)

// Descriptor is the registration identity of the local connector.
var Descriptor = models.ConnectorDescriptor{
	Name:        "local",
	DisplayName: "Local Hardware",
	Description: "Runs training jobs on the local machine",
	Version:     "1.0.0",
	Capabilities: []models.Capability{
		models.CapabilityTraining,
		models.CapabilityRegistry,
	},
}

type jobRun struct {
	state      string
	logs       []models.LogLine
	artifactID string
	message    string
	finishedAt time.Time
	cancelCh   chan struct{}
	cancelled  bool
}

// Connector implements models.Connector against local hardware.
type Connector struct {
	step time.Duration

	mu        sync.Mutex
	connected bool
	jobs      map[string]*jobRun
	artifacts map[string][]byte
}

// New creates a local connector. step is the interval between simulated
// execution phases.
func New(step time.Duration) *Connector {
	if step <= 0 {
		step = time.Second
	}
	return &Connector{
		step:      step,
		jobs:      make(map[string]*jobRun),
		artifacts: make(map[string][]byte),
	}
}

func (c *Connector) Name() string { return "local" }

// GetRequiredCredentials returns no requirements: local hardware needs no
// authentication.
func (c *Connector) GetRequiredCredentials() []models.CredentialRequirement {
	return []models.CredentialRequirement{}
}

func (c *Connector) Connect(_ context.Context, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *Connector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Connector) VerifyConnection(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected, nil
}

func (c *Connector) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return connector.ErrNotConnected
	}
	return nil
}

func (c *Connector) SubmitJob(_ context.Context, cfg models.TrainingConfig) (string, error) {
	if err := c.requireConnected(); err != nil {
		return "", err
	}

	jobID := "local-" + uuid.NewString()
	run := &jobRun{
		state:    models.JobStatePending,
		cancelCh: make(chan struct{}),
	}
	run.logs = append(run.logs, logLine("job accepted"))

	c.mu.Lock()
	c.jobs[jobID] = run
	c.mu.Unlock()

	go c.execute(jobID, run, cfg)
	return jobID, nil
}

// execute drives a job through running to a terminal state, emitting a log
// line per phase.
func (c *Connector) execute(jobID string, run *jobRun, cfg models.TrainingConfig) {
	phases := []string{
		"allocating local resources",
		"training in progress",
		"writing model artifact",
	}

	for i, phase := range phases {
		select {
		case <-run.cancelCh:
			c.finish(run, models.JobStateCancelled, "cancelled before completion", "")
			return
		case <-time.After(c.step):
		}

		c.mu.Lock()
		if i == 0 {
			run.state = models.JobStateRunning
		}
		run.logs = append(run.logs, logLine(phase))
		c.mu.Unlock()
	}

	artifactID := "artifact-" + uuid.NewString()
	c.mu.Lock()
	c.artifacts[artifactID] = []byte(fmt.Sprintf("model artifact for %s (resource %s)", jobID, cfg.ResourceID))
	c.mu.Unlock()

	c.finish(run, models.JobStateCompleted, "training completed", artifactID)
}

func (c *Connector) finish(run *jobRun, state, message, artifactID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if models.IsTerminalState(run.state) {
		return
	}
	run.state = state
	run.message = message
	run.artifactID = artifactID
	run.finishedAt = time.Now().UTC()
	run.logs = append(run.logs, logLine(message))
}

func (c *Connector) GetJobStatus(_ context.Context, jobID string) (*models.Job, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", connector.ErrNotFound, jobID)
	}

	job := &models.Job{
		ID:        jobID,
		Connector: "local",
		State:     run.state,
	}
	if models.IsTerminalState(run.state) {
		job.TerminalResult = &models.TerminalResult{
			State:      run.state,
			Message:    run.message,
			ArtifactID: run.artifactID,
			FinishedAt: run.finishedAt,
		}
	}
	return job, nil
}

func (c *Connector) CancelJob(_ context.Context, jobID string) (bool, error) {
	if err := c.requireConnected(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("%w: job %s", connector.ErrNotFound, jobID)
	}
	if models.IsTerminalState(run.state) {
		return false, nil
	}
	// The flag guards the close; concurrent cancels must signal exactly once.
	if !run.cancelled {
		run.cancelled = true
		close(run.cancelCh)
	}
	return true, nil
}

// StreamLogs follows a job's log buffer. The stream is finite once the job is
// terminal; until then it tails new lines. Cancellation via ctx is observed
// within one polling cycle.
func (c *Connector) StreamLogs(ctx context.Context, jobID string) (<-chan models.LogLine, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", connector.ErrNotFound, jobID)
	}

	out := make(chan models.LogLine)
	go func() {
		defer close(out)
		cursor := 0
		for {
			c.mu.Lock()
			run := c.jobs[jobID]
			pending := make([]models.LogLine, len(run.logs)-cursor)
			copy(pending, run.logs[cursor:])
			cursor = len(run.logs)
			terminal := models.IsTerminalState(run.state)
			c.mu.Unlock()

			for _, line := range pending {
				select {
				case out <- line:
				case <-ctx.Done():
					return
				}
			}
			if terminal {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.step / 4):
			}
		}
	}()
	return out, nil
}

func (c *Connector) FetchArtifact(_ context.Context, jobID string) ([]byte, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.jobs[jobID]
	if !ok || run.artifactID == "" {
		return nil, fmt.Errorf("%w: artifact for job %s", connector.ErrNotFound, jobID)
	}
	blob := make([]byte, len(c.artifacts[run.artifactID]))
	copy(blob, c.artifacts[run.artifactID])
	return blob, nil
}

func (c *Connector) UploadArtifact(_ context.Context, path string, metadata map[string]string) (string, error) {
	if err := c.requireConnected(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading artifact file: %w", err)
	}

	artifactID := "upload-" + uuid.NewString()
	c.mu.Lock()
	c.artifacts[artifactID] = data
	c.mu.Unlock()
	return artifactID, nil
}

// ListResources reports the local machine itself as the single offering.
func (c *Connector) ListResources(_ context.Context) ([]models.Resource, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	return []models.Resource{
		{
			ID:   "local-machine",
			Kind: "cpu",
			Attributes: map[string]string{
				"cores": strconv.Itoa(runtime.NumCPU()),
				"arch":  runtime.GOARCH,
			},
			Available: true,
		},
	}, nil
}

// GetPricing is not supported: local hardware has no price sheet.
func (c *Connector) GetPricing(_ context.Context, _ string) (models.PricingInfo, error) {
	return models.PricingInfo{}, connector.ErrNotImplemented
}

func logLine(message string) models.LogLine {
	return models.LogLine{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Source:    "local",
	}
}

var _ models.Connector = (*Connector)(nil)
