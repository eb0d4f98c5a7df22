package connector

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch and registry boundary.
var (
	// ErrUnknownConnector means the requested name is not registered.
	ErrUnknownConnector = errors.New("unknown connector")
	// ErrNotConnected means a data operation was attempted before a
	// successful Connect.
	ErrNotConnected = errors.New("connector not connected")
	// ErrNotImplemented is what connectors return from operations they do
	// not support. The registry rejects candidates whose capability-required
	// operations report it.
	ErrNotImplemented = errors.New("operation not implemented")
	// ErrNotFound means an unknown job or artifact id.
	ErrNotFound = errors.New("not found")
	// ErrTimeout means a dispatched call exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrAuthentication means the provider rejected the supplied credentials.
	ErrAuthentication = errors.New("authentication rejected")
)

// RegistrationError reports why a candidate failed registry validation.
// Check is an enumerated reason such as "empty_metadata:name" or
// "missing_operation:submit_job".
type RegistrationError struct {
	Name  string
	Check string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("connector %q failed registration: %s", e.Name, e.Check)
}

// SubmissionError means the provider rejected a training configuration.
type SubmissionError struct {
	Connector string
	Reason    string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("connector %q rejected job submission: %s", e.Connector, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ProviderFailure wraps an unexpected connector-internal error or panic.
// It is always scoped to a single call; one provider's failure never reaches
// another connector or another in-flight job.
type ProviderFailure struct {
	Connector string
	Op        string
	Err       error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("connector %q failed during %s: %v", e.Connector, e.Op, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }
