package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nmarwaha/traindock/pkg/models"
)

// ConnectionState is the lifecycle of one provider session.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// ConnectionStatus is the caller-visible state of a session plus the failure
// reason when the state is failed.
type ConnectionStatus struct {
	State  ConnectionState `json:"state"`
	Reason string          `json:"reason,omitempty"`
}

// session holds the instantiated connector and its connection state for one
// name. connectMu serializes connect/disconnect for the same name and makes
// them wait for data operations already in flight, which hold it for reading.
// An operation abandoned on timeout releases its read lock when the dispatch
// returns, so a hung connector call never pins the session lock. Sessions for
// different names share nothing.
type session struct {
	instance  models.Connector
	connectMu sync.RWMutex
	stateMu   sync.RWMutex
	status    ConnectionStatus
}

func (s *session) setState(state ConnectionState, reason string) {
	s.stateMu.Lock()
	s.status = ConnectionStatus{State: state, Reason: reason}
	s.stateMu.Unlock()
}

func (s *session) currentStatus() ConnectionStatus {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

// Manager is the only component callers talk to. It resolves registered
// connectors, owns per-name connection state, and wraps every dispatched
// operation in the failure-isolation boundary.
type Manager struct {
	registry *Registry
	tracker  *Tracker
	timeout  time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewManager creates a Manager. timeout bounds every dispatched call; the
// caller's own ctx deadline wins when sooner.
func NewManager(registry *Registry, tracker *Tracker, timeout time.Duration) *Manager {
	return &Manager{
		registry: registry,
		tracker:  tracker,
		timeout:  timeout,
		sessions: make(map[string]*session),
	}
}

// Tracker exposes the job state tracker fed by this manager.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// List returns every usable connector descriptor.
func (m *Manager) List() []models.ConnectorDescriptor {
	return m.registry.List()
}

// ListByCapability returns descriptors declaring the given capability.
func (m *Manager) ListByCapability(c models.Capability) []models.ConnectorDescriptor {
	return m.registry.ListByCapability(c)
}

// Describe returns the descriptor for one registered connector.
func (m *Manager) Describe(name string) (models.ConnectorDescriptor, error) {
	desc, _, err := m.registry.Get(name)
	return desc, err
}

// RequiredCredentials returns the ordered credential fields a connector's
// Connect call needs.
func (m *Manager) RequiredCredentials(name string) ([]models.CredentialRequirement, error) {
	s, err := m.session(name)
	if err != nil {
		return nil, err
	}
	return s.instance.GetRequiredCredentials(), nil
}

// Status reports the connection state for a connector. Connectors without a
// live session are disconnected.
func (m *Manager) Status(name string) (ConnectionStatus, error) {
	if _, _, err := m.registry.Get(name); err != nil {
		return ConnectionStatus{}, err
	}
	m.mu.RLock()
	s, ok := m.sessions[name]
	m.mu.RUnlock()
	if !ok {
		return ConnectionStatus{State: StateDisconnected}, nil
	}
	return s.currentStatus(), nil
}

// session returns the per-name session, instantiating the connector on first
// use. Fails with ErrUnknownConnector for unregistered names.
func (m *Manager) session(name string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[name]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	_, factory, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		return s, nil
	}
	s = &session{
		instance: factory(),
		status:   ConnectionStatus{State: StateDisconnected},
	}
	m.sessions[name] = s
	return s, nil
}

// connectedSession resolves a session, requires it to be connected, and takes
// the session read lock. The caller must invoke release when its operation is
// done; until then Connect and Disconnect on the same name wait.
func (m *Manager) connectedSession(name string) (s *session, release func(), err error) {
	s, err = m.session(name)
	if err != nil {
		return nil, nil, err
	}
	s.connectMu.RLock()
	if s.currentStatus().State != StateConnected {
		s.connectMu.RUnlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	return s, s.connectMu.RUnlock, nil
}

// Connect authenticates a named connector. Concurrent connects for the same
// name are serialized; different names proceed fully in parallel. Credential
// values pass through to the connector and are never persisted or logged.
func (m *Manager) Connect(ctx context.Context, name string, credentials map[string]string) error {
	s, err := m.session(name)
	if err != nil {
		return err
	}

	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.setState(StateConnecting, "")
	_, err = dispatch(ctx, name, "connect", m.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.instance.Connect(ctx, credentials)
	})
	if err != nil {
		s.setState(StateFailed, err.Error())
		return err
	}

	s.setState(StateConnected, "")
	slog.Info("connector connected", "connector", name)
	return nil
}

// Disconnect tears down a session after data operations already in flight
// for it have returned. Local state always reflects disconnection, even when
// the provider refuses to disconnect cleanly; the refusal is logged.
func (m *Manager) Disconnect(ctx context.Context, name string) error {
	s, err := m.session(name)
	if err != nil {
		return err
	}

	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	_, err = dispatch(ctx, name, "disconnect", m.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.instance.Disconnect(ctx)
	})
	if err != nil {
		slog.Warn("connector refused to disconnect cleanly", "connector", name, "error", err)
	}

	s.setState(StateDisconnected, "")
	return nil
}

// Verify probes the provider session. A failed probe on a connected session
// downgrades the state to failed: the state is only ever connected when the
// most recent connect or verify succeeded.
func (m *Manager) Verify(ctx context.Context, name string) (bool, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return false, err
	}
	defer release()

	ok, err := dispatch(ctx, name, "verify_connection", m.timeout, func(ctx context.Context) (bool, error) {
		return s.instance.VerifyConnection(ctx)
	})
	if err != nil || !ok {
		reason := "verification failed"
		if err != nil {
			reason = err.Error()
		}
		s.setState(StateFailed, reason)
	}
	return ok, err
}

// SubmitJob submits a training configuration and registers the resulting job
// with the tracker in the pending state.
func (m *Manager) SubmitJob(ctx context.Context, name string, cfg models.TrainingConfig) (*models.Job, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return nil, err
	}
	defer release()

	jobID, err := dispatch(ctx, name, "submit_job", m.timeout, func(ctx context.Context) (string, error) {
		return s.instance.SubmitJob(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	job := m.tracker.Register(ctx, name, jobID)
	slog.Info("job submitted", "connector", name, "job_id", jobID)
	return job, nil
}

// GetJobStatus returns the normalized job state. Once a job is terminal the
// answer comes from the tracker without another provider round-trip.
func (m *Manager) GetJobStatus(ctx context.Context, name, jobID string) (*models.Job, error) {
	if tracked, ok := m.tracker.Lookup(name, jobID); ok && tracked.IsTerminal() {
		return tracked, nil
	}

	s, release, err := m.connectedSession(name)
	if err != nil {
		return nil, err
	}
	defer release()

	polled, err := dispatch(ctx, name, "get_job_status", m.timeout, func(ctx context.Context) (*models.Job, error) {
		return s.instance.GetJobStatus(ctx, jobID)
	})
	if err != nil {
		return nil, err
	}

	return m.tracker.Apply(ctx, name, polled), nil
}

// CancelJob requests cancellation. Jobs the tracker already knows to be
// terminal return false without contacting the provider; a provider
// reporting the job already terminal also returns false, leaving the
// tracked state unchanged.
func (m *Manager) CancelJob(ctx context.Context, name, jobID string) (bool, error) {
	if tracked, ok := m.tracker.Lookup(name, jobID); ok && tracked.IsTerminal() {
		return false, nil
	}

	s, release, err := m.connectedSession(name)
	if err != nil {
		return false, err
	}
	defer release()

	acknowledged, err := dispatch(ctx, name, "cancel_job", m.timeout, func(ctx context.Context) (bool, error) {
		return s.instance.CancelJob(ctx, jobID)
	})
	if err != nil {
		return false, err
	}
	if acknowledged {
		m.tracker.MarkCancelled(ctx, name, jobID, "cancelled by caller")
	}
	return acknowledged, nil
}

// StreamLogs returns a channel of log lines for a job. The channel closes
// when a terminal job's logs are drained or when ctx is cancelled; streaming
// itself is not bounded by the dispatch timeout, only the stream setup is.
func (m *Manager) StreamLogs(ctx context.Context, name, jobID string) (<-chan models.LogLine, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return nil, err
	}
	defer release()

	return dispatch(ctx, name, "stream_logs", m.timeout, func(_ context.Context) (<-chan models.LogLine, error) {
		// The consumer's ctx governs the stream lifetime, not the
		// setup deadline.
		return s.instance.StreamLogs(ctx, jobID)
	})
}

// FetchArtifact downloads the output artifact of a job.
func (m *Manager) FetchArtifact(ctx context.Context, name, jobID string) ([]byte, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return nil, err
	}
	defer release()
	return dispatch(ctx, name, "fetch_artifact", m.timeout, func(ctx context.Context) ([]byte, error) {
		return s.instance.FetchArtifact(ctx, jobID)
	})
}

// UploadArtifact pushes a local file to the provider.
func (m *Manager) UploadArtifact(ctx context.Context, name, path string, metadata map[string]string) (string, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return "", err
	}
	defer release()
	return dispatch(ctx, name, "upload_artifact", m.timeout, func(ctx context.Context) (string, error) {
		return s.instance.UploadArtifact(ctx, path, metadata)
	})
}

// ListResources lists the provider's current compute offerings.
func (m *Manager) ListResources(ctx context.Context, name string) ([]models.Resource, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return nil, err
	}
	defer release()
	return dispatch(ctx, name, "list_resources", m.timeout, func(ctx context.Context) ([]models.Resource, error) {
		return s.instance.ListResources(ctx)
	})
}

// GetPricing fetches fresh pricing for one resource.
func (m *Manager) GetPricing(ctx context.Context, name, resourceID string) (models.PricingInfo, error) {
	s, release, err := m.connectedSession(name)
	if err != nil {
		return models.PricingInfo{}, err
	}
	defer release()
	return dispatch(ctx, name, "get_pricing", m.timeout, func(ctx context.Context) (models.PricingInfo, error) {
		return s.instance.GetPricing(ctx, resourceID)
	})
}
