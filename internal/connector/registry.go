// Package connector implements the provider connector framework: the
// registry that validates and holds implementations, the manager that owns
// connection lifecycle and dispatches operations, and the tracker that
// normalizes provider job models into one lifecycle.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nmarwaha/traindock/pkg/models"
)

const probeTimeout = 2 * time.Second

// Factory builds a fresh, unconnected connector instance.
type Factory func() models.Connector

// Candidate pairs a descriptor with a factory for registration. The discovery
// mechanism (static list, config-driven) hands these to the registry.
type Candidate struct {
	Descriptor models.ConnectorDescriptor
	Factory    Factory
}

type registration struct {
	descriptor models.ConnectorDescriptor
	factory    Factory
}

// Registry holds validated connector implementations. A candidate that fails
// validation never becomes visible to lookups or discovery.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Operations named per capability for the registration-time stub probe.
// Structural conformance itself is a compile-time property of
// models.Connector; the probe only catches implementations that satisfy the
// interface with not-implemented stubs.
var capabilityOps = map[models.Capability][]string{
	models.CapabilityTraining:  {"submit_job", "get_job_status", "cancel_job", "stream_logs"},
	models.CapabilityInference: {"list_resources", "get_pricing"},
	models.CapabilityRegistry:  {"fetch_artifact", "upload_artifact"},
	models.CapabilityTracking:  {"get_job_status", "stream_logs"},
}

// Register validates the candidate and stores it. Re-registration of the same
// name replaces the previous entry atomically. Returns a *RegistrationError
// with an enumerated check on failure.
func (r *Registry) Register(c Candidate) error {
	if err := r.validate(c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c.Descriptor.Name] = registration{
		descriptor: c.Descriptor,
		factory:    c.Factory,
	}
	return nil
}

// RegisterAll registers each candidate independently. One bad candidate never
// prevents others from registering; failures are returned keyed by name.
func (r *Registry) RegisterAll(candidates []Candidate) map[string]error {
	failures := make(map[string]error)
	for _, c := range candidates {
		if err := r.Register(c); err != nil {
			slog.Warn("connector rejected at registration",
				"connector", c.Descriptor.Name, "error", err)
			failures[c.Descriptor.Name] = err
		}
	}
	return failures
}

// Get returns the descriptor and factory for a registered name.
func (r *Registry) Get(name string) (models.ConnectorDescriptor, Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	if !ok {
		return models.ConnectorDescriptor{}, nil, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	return reg.descriptor, reg.factory, nil
}

// List returns every usable descriptor.
func (r *Registry) List() []models.ConnectorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ConnectorDescriptor, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg.descriptor)
	}
	return out
}

// ListByCapability returns descriptors declaring the given capability.
func (r *Registry) ListByCapability(c models.Capability) []models.ConnectorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ConnectorDescriptor
	for _, reg := range r.entries {
		if reg.descriptor.HasCapability(c) {
			out = append(out, reg.descriptor)
		}
	}
	return out
}

// validate runs every registration check. All must pass.
func (r *Registry) validate(c Candidate) error {
	d := c.Descriptor

	reject := func(check string) error {
		return &RegistrationError{Name: d.Name, Check: check}
	}

	if d.Name == "" {
		return reject("empty_metadata:name")
	}
	if d.DisplayName == "" {
		return reject("empty_metadata:display_name")
	}
	if d.Description == "" {
		return reject("empty_metadata:description")
	}
	if d.Version == "" {
		return reject("empty_metadata:version")
	}

	if len(d.Capabilities) == 0 {
		return reject("no_capabilities")
	}
	for _, capability := range d.Capabilities {
		if !models.ValidCapabilities[capability] {
			return reject("unknown_capability:" + string(capability))
		}
	}

	if c.Factory == nil {
		return reject("missing_factory")
	}
	instance, err := buildInstance(c.Factory)
	if err != nil || instance == nil {
		return reject("factory_failed")
	}

	// Credentials metadata is required of every connector.
	reqs, err := runCredentialsProbe(d.Name, instance)
	if errors.Is(err, ErrTimeout) {
		return reject("probe_timeout:get_required_credentials")
	}
	if err != nil {
		return reject("missing_operation:get_required_credentials")
	}
	for _, req := range reqs {
		if req.Key == "" {
			return reject("invalid_result:get_required_credentials")
		}
	}

	probed := make(map[string]bool)
	for _, capability := range d.Capabilities {
		for _, op := range capabilityOps[capability] {
			if probed[op] {
				continue
			}
			probed[op] = true
			if check := runProbe(d.Name, instance, op); check != "" {
				return reject(check)
			}
		}
	}

	return nil
}

// runProbe bounds one operation probe with probeTimeout through the dispatch
// boundary. A probe that ignores its ctx and never returns is abandoned and
// the candidate rejected, so a blocking candidate cannot stall registration
// of the ones after it.
func runProbe(name string, c models.Connector, op string) string {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	check, err := dispatch(ctx, name, op, 0, func(ctx context.Context) (string, error) {
		return probeOp(ctx, c, op), nil
	})
	if err != nil {
		return "probe_timeout:" + op
	}
	return check
}

// runCredentialsProbe bounds the credentials probe the same way;
// GetRequiredCredentials takes no ctx, so the deadline is the only bound.
func runCredentialsProbe(name string, c models.Connector) ([]models.CredentialRequirement, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return dispatch(ctx, name, "get_required_credentials", 0, func(_ context.Context) ([]models.CredentialRequirement, error) {
		return probeCredentials(c)
	})
}

// buildInstance invokes the factory, containing panics.
func buildInstance(f Factory) (instance models.Connector, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panic: %v", rec)
		}
	}()
	return f(), nil
}

// probeCredentials calls GetRequiredCredentials, containing panics.
func probeCredentials(c models.Connector) (reqs []models.CredentialRequirement, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("probe panic: %v", rec)
		}
	}()
	return c.GetRequiredCredentials(), nil
}

// probeOp exercises one operation against a trivial fixture on an unconnected
// instance. The instance has no live session, so a real implementation fails
// fast (not-connected, bad input) without touching its provider; only an
// ErrNotImplemented stub, a panic, or a result with the wrong shape rejects
// the candidate. Returns the failed check, or "" if the operation passes.
func probeOp(ctx context.Context, c models.Connector, op string) (check string) {
	defer func() {
		if rec := recover(); rec != nil {
			check = "operation_panic:" + op
		}
	}()

	var err error
	switch op {
	case "submit_job":
		var id string
		id, err = c.SubmitJob(ctx, models.TrainingConfig{})
		if err == nil && id == "" {
			return "invalid_result:" + op
		}
	case "get_job_status":
		var job *models.Job
		job, err = c.GetJobStatus(ctx, "")
		if err == nil && job == nil {
			return "invalid_result:" + op
		}
	case "cancel_job":
		_, err = c.CancelJob(ctx, "")
	case "stream_logs":
		var ch <-chan models.LogLine
		ch, err = c.StreamLogs(ctx, "")
		if err == nil {
			if ch == nil {
				return "invalid_result:" + op
			}
			drain(ctx, ch)
		}
	case "fetch_artifact":
		_, err = c.FetchArtifact(ctx, "")
	case "upload_artifact":
		var id string
		id, err = c.UploadArtifact(ctx, "", nil)
		if err == nil && id == "" {
			return "invalid_result:" + op
		}
	case "list_resources":
		_, err = c.ListResources(ctx)
	case "get_pricing":
		_, err = c.GetPricing(ctx, "")
	}

	if isNotImplemented(err) {
		return "missing_operation:" + op
	}
	return ""
}

func drain(ctx context.Context, ch <-chan models.LogLine) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
