package ir

import "github.com/roach88/slowforest/internal/cancel"

// Time is a logical timestamp issued by a controller's clock.
// Strictly increasing per controller, never reused.
type Time int64

// RequestKey is the identity of an async validation request.
// Two keys are the same when Kind matches and Fields are Equal.
type RequestKey struct {
	Kind   string
	Fields FieldList
}

// Equal reports whether two keys identify the same request.
func (k RequestKey) Equal(o RequestKey) bool {
	return k.Kind == o.Kind && k.Fields.Equal(o.Fields)
}

// String renders the key for logs, e.g. "unique-name[name]".
func (k RequestKey) String() string {
	return k.Kind + "[" + k.Fields.String() + "]"
}

// ValidationRequest is one tracked async validation. Sealed sum type over
// the lifecycle stages PendingRequest, RunningRequest and ResolvedRequest.
type ValidationRequest interface {
	validationRequest()
	// RequestKey returns the identity key shared by every stage.
	RequestKey() RequestKey
	// Stage returns "pending", "running" or "resolved".
	Stage() string
}

// PendingRequest records the intent to run a validation.
type PendingRequest struct {
	Key         RequestKey
	RequestTime Time
	Token       *cancel.Token
}

func (PendingRequest) validationRequest()       {}
func (r PendingRequest) RequestKey() RequestKey { return r.Key }
func (PendingRequest) Stage() string            { return "pending" }

// RunningRequest is a validation whose validator has been invoked.
type RunningRequest struct {
	// ID correlates the run in logs and the journal. Ordering decisions
	// never use it.
	ID          string
	Key         RequestKey
	RequestTime Time
	StartTime   Time
	Token       *cancel.Token
}

func (RunningRequest) validationRequest()       {}
func (r RunningRequest) RequestKey() RequestKey { return r.Key }
func (RunningRequest) Stage() string            { return "running" }

// ResolvedRequest is an accepted validation result.
type ResolvedRequest struct {
	ID          string
	Key         RequestKey
	RequestTime Time
	StartTime   Time
	EndTime     Time
	Errors      []FormError
}

func (ResolvedRequest) validationRequest()       {}
func (r ResolvedRequest) RequestKey() RequestKey { return r.Key }
func (ResolvedRequest) Stage() string            { return "resolved" }

// ValidationResult is what an async validator returns. A nil
// *ValidationResult with a nil error is a protocol violation.
type ValidationResult struct {
	Errors []FormError
}

// ValidationStatus reports every stage currently recorded for one key.
// Any of the three may be nil.
type ValidationStatus struct {
	Key      RequestKey
	Pending  *PendingRequest
	Running  *RunningRequest
	Resolved *ResolvedRequest
}

// ValueSnapshot is the recorded value of one field at one logical time.
type ValueSnapshot struct {
	Field        string
	Value        IRValue
	Time         Time
	IsPersistent bool
}
