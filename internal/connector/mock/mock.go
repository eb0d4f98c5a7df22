package mock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nmarwaha/traindock/internal/connector"
	"github.com/nmarwaha/traindock/pkg/models"
)

// Connector satisfies models.Connector for testing. Any operation without an
// override falls back to a benign default.
type Connector struct {
	Name_ string

	ConnectFunc          func(ctx context.Context, credentials map[string]string) error
	DisconnectFunc       func(ctx context.Context) error
	VerifyConnectionFunc func(ctx context.Context) (bool, error)
	SubmitJobFunc        func(ctx context.Context, cfg models.TrainingConfig) (string, error)
	GetJobStatusFunc     func(ctx context.Context, jobID string) (*models.Job, error)
	CancelJobFunc        func(ctx context.Context, jobID string) (bool, error)
	StreamLogsFunc       func(ctx context.Context, jobID string) (<-chan models.LogLine, error)
	FetchArtifactFunc    func(ctx context.Context, jobID string) ([]byte, error)
	UploadArtifactFunc   func(ctx context.Context, path string, metadata map[string]string) (string, error)
	ListResourcesFunc    func(ctx context.Context) ([]models.Resource, error)
	GetPricingFunc       func(ctx context.Context, resourceID string) (models.PricingInfo, error)
	CredentialsFunc      func() []models.CredentialRequirement
}

func (m *Connector) Name() string { return m.Name_ }

func (m *Connector) Connect(ctx context.Context, credentials map[string]string) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, credentials)
	}
	return nil
}

func (m *Connector) Disconnect(ctx context.Context) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx)
	}
	return nil
}

func (m *Connector) VerifyConnection(ctx context.Context) (bool, error) {
	if m.VerifyConnectionFunc != nil {
		return m.VerifyConnectionFunc(ctx)
	}
	return true, nil
}

func (m *Connector) SubmitJob(ctx context.Context, cfg models.TrainingConfig) (string, error) {
	if m.SubmitJobFunc != nil {
		return m.SubmitJobFunc(ctx, cfg)
	}
	return "job-" + uuid.NewString(), nil
}

func (m *Connector) GetJobStatus(ctx context.Context, jobID string) (*models.Job, error) {
	if m.GetJobStatusFunc != nil {
		return m.GetJobStatusFunc(ctx, jobID)
	}
	return &models.Job{
		ID:        jobID,
		Connector: m.Name_,
		State:     models.JobStatePending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Connector) CancelJob(ctx context.Context, jobID string) (bool, error) {
	if m.CancelJobFunc != nil {
		return m.CancelJobFunc(ctx, jobID)
	}
	return true, nil
}

func (m *Connector) StreamLogs(ctx context.Context, jobID string) (<-chan models.LogLine, error) {
	if m.StreamLogsFunc != nil {
		return m.StreamLogsFunc(ctx, jobID)
	}
	ch := make(chan models.LogLine)
	close(ch)
	return ch, nil
}

func (m *Connector) FetchArtifact(ctx context.Context, jobID string) ([]byte, error) {
	if m.FetchArtifactFunc != nil {
		return m.FetchArtifactFunc(ctx, jobID)
	}
	return []byte("mock artifact"), nil
}

func (m *Connector) UploadArtifact(ctx context.Context, path string, metadata map[string]string) (string, error) {
	if m.UploadArtifactFunc != nil {
		return m.UploadArtifactFunc(ctx, path, metadata)
	}
	return "artifact-" + uuid.NewString(), nil
}

func (m *Connector) ListResources(ctx context.Context) ([]models.Resource, error) {
	if m.ListResourcesFunc != nil {
		return m.ListResourcesFunc(ctx)
	}
	return []models.Resource{
		{ID: "mock-gpu-1", Kind: "gpu", Available: true},
	}, nil
}

func (m *Connector) GetPricing(ctx context.Context, resourceID string) (models.PricingInfo, error) {
	if m.GetPricingFunc != nil {
		return m.GetPricingFunc(ctx, resourceID)
	}
	return models.PricingInfo{
		ResourceID:  resourceID,
		UnitPrice:   1.25,
		Currency:    "USD",
		Granularity: "hour",
	}, nil
}

func (m *Connector) GetRequiredCredentials() []models.CredentialRequirement {
	if m.CredentialsFunc != nil {
		return m.CredentialsFunc()
	}
	return []models.CredentialRequirement{
		{Key: "api_key", Label: "API key", Description: "Mock provider API key", Required: true, Secret: true},
	}
}

// NewConnector returns a Connector with sensible default responses.
func NewConnector(name string) *Connector {
	return &Connector{Name_: name}
}

// NewFailingConnector returns a Connector whose data operations always return
// the given error.
func NewFailingConnector(name string, err error) *Connector {
	return &Connector{
		Name_: name,
		SubmitJobFunc: func(_ context.Context, _ models.TrainingConfig) (string, error) {
			return "", err
		},
		GetJobStatusFunc: func(_ context.Context, _ string) (*models.Job, error) {
			return nil, err
		},
		CancelJobFunc: func(_ context.Context, _ string) (bool, error) {
			return false, err
		},
		FetchArtifactFunc: func(_ context.Context, _ string) ([]byte, error) {
			return nil, err
		},
		ListResourcesFunc: func(_ context.Context) ([]models.Resource, error) {
			return nil, err
		},
	}
}

// NewStubConnector returns a Connector whose listed operations report
// ErrNotImplemented, for exercising registry stub detection.
func NewStubConnector(name string, stubbedOps ...string) *Connector {
	c := NewConnector(name)
	for _, op := range stubbedOps {
		switch op {
		case "submit_job":
			c.SubmitJobFunc = func(_ context.Context, _ models.TrainingConfig) (string, error) {
				return "", connector.ErrNotImplemented
			}
		case "get_job_status":
			c.GetJobStatusFunc = func(_ context.Context, _ string) (*models.Job, error) {
				return nil, connector.ErrNotImplemented
			}
		case "cancel_job":
			c.CancelJobFunc = func(_ context.Context, _ string) (bool, error) {
				return false, connector.ErrNotImplemented
			}
		case "stream_logs":
			c.StreamLogsFunc = func(_ context.Context, _ string) (<-chan models.LogLine, error) {
				return nil, connector.ErrNotImplemented
			}
		case "fetch_artifact":
			c.FetchArtifactFunc = func(_ context.Context, _ string) ([]byte, error) {
				return nil, connector.ErrNotImplemented
			}
		case "upload_artifact":
			c.UploadArtifactFunc = func(_ context.Context, _ string, _ map[string]string) (string, error) {
				return "", connector.ErrNotImplemented
			}
		case "list_resources":
			c.ListResourcesFunc = func(_ context.Context) ([]models.Resource, error) {
				return nil, connector.ErrNotImplemented
			}
		case "get_pricing":
			c.GetPricingFunc = func(_ context.Context, _ string) (models.PricingInfo, error) {
				return models.PricingInfo{}, connector.ErrNotImplemented
			}
		}
	}
	return c
}

// Descriptor returns a valid descriptor for a mock connector.
func Descriptor(name string, capabilities ...models.Capability) models.ConnectorDescriptor {
	if len(capabilities) == 0 {
		capabilities = []models.Capability{models.CapabilityTraining}
	}
	return models.ConnectorDescriptor{
		Name:         name,
		DisplayName:  "Mock " + name,
		Description:  "In-memory mock connector for tests",
		Version:      "0.0.1",
		Capabilities: capabilities,
	}
}

// Compile-time check that Connector implements models.Connector.
var _ models.Connector = (*Connector)(nil)
