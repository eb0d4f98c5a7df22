// Package models contains shared data models used across the TrainDock codebase.
package models

import (
	"context"
	"time"
)

// Capability is a declared feature category a connector supports.
type Capability string

const (
	CapabilityTraining  Capability = "training"
	CapabilityInference Capability = "inference"
	CapabilityRegistry  Capability = "registry"
	CapabilityTracking  Capability = "tracking"
)

// ValidCapabilities enumerates every capability the framework understands.
var ValidCapabilities = map[Capability]bool{
	CapabilityTraining:  true,
	CapabilityInference: true,
	CapabilityRegistry:  true,
	CapabilityTracking:  true,
}

// ConnectorDescriptor is the registered identity of one provider
// implementation. Immutable once it passes registry validation.
type ConnectorDescriptor struct {
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	Description  string       `json:"description"`
	Version      string       `json:"version"`
	Capabilities []Capability `json:"capabilities"`
}

// HasCapability reports whether the descriptor declares the given capability.
func (d ConnectorDescriptor) HasCapability(c Capability) bool {
	for _, dc := range d.Capabilities {
		if dc == c {
			return true
		}
	}
	return false
}

// CredentialRequirement describes one named secret field a connector needs to
// authenticate. Connectors expose an ordered list of these; actual secret
// values live in the caller's credential store, never here.
type CredentialRequirement struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret"`
}

// Connector is the core contract every provider integration must implement.
// Callers go through the connector manager rather than invoking provider
// integrations directly. Operations a connector does not support must return
// an error satisfying errors.Is(err, connector.ErrNotImplemented).
type Connector interface {
	// Connect authenticates against the provider with plaintext credential
	// values keyed by CredentialRequirement.Key.
	Connect(ctx context.Context, credentials map[string]string) error
	// Disconnect tears down the provider session.
	Disconnect(ctx context.Context) error
	// VerifyConnection performs a lightweight liveness probe.
	VerifyConnection(ctx context.Context) (bool, error)

	// SubmitJob starts a job and returns the provider-assigned job id.
	SubmitJob(ctx context.Context, cfg TrainingConfig) (string, error)
	// GetJobStatus fetches the current provider-side state of a job.
	GetJobStatus(ctx context.Context, jobID string) (*Job, error)
	// CancelJob requests cancellation. Returns false when the provider
	// reports the job already terminal.
	CancelJob(ctx context.Context, jobID string) (bool, error)
	// StreamLogs returns a channel of log lines. The channel closes once the
	// job is terminal and its logs are drained, or when ctx is cancelled.
	StreamLogs(ctx context.Context, jobID string) (<-chan LogLine, error)

	// FetchArtifact downloads the output artifact of a completed job.
	FetchArtifact(ctx context.Context, jobID string) ([]byte, error)
	// UploadArtifact pushes a local file to the provider and returns its id.
	UploadArtifact(ctx context.Context, path string, metadata map[string]string) (string, error)

	// ListResources returns the compute offerings currently available.
	ListResources(ctx context.Context) ([]Resource, error)
	// GetPricing fetches fresh pricing for one resource.
	GetPricing(ctx context.Context, resourceID string) (PricingInfo, error)

	// GetRequiredCredentials returns the ordered credential fields Connect needs.
	GetRequiredCredentials() []CredentialRequirement
	// Name returns the connector identifier (e.g., "local", "nebula").
	Name() string
}

// LogLine is a single log entry streamed from a provider job.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
}
