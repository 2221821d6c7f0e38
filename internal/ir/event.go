package ir

// EventKind names a committed controller state change.
type EventKind string

const (
	EventInitialized               EventKind = "initialized"
	EventValueSet                  EventKind = "value_set"
	EventTouched                   EventKind = "touched"
	EventValuesPersisted           EventKind = "values_persisted"
	EventValidationRequested       EventKind = "validation_requested"
	EventValidationRequestReplaced EventKind = "validation_request_replaced"
	EventValidationStarted         EventKind = "validation_started"
	EventValidationSuperseded      EventKind = "validation_superseded"
	EventValidationResolved        EventKind = "validation_resolved"
	EventValidationFailed          EventKind = "validation_failed"
	EventValidationDiscarded       EventKind = "validation_discarded"
	EventValidationCanceled        EventKind = "validation_canceled"
	EventSubmitStarted             EventKind = "submit_started"
	EventSubmitCanceled            EventKind = "submit_canceled"
	EventSubmitResolved            EventKind = "submit_resolved"
	EventSubmitFailed              EventKind = "submit_failed"
	EventSubmitDiscarded           EventKind = "submit_discarded"
)

// AllEventKinds lists every kind in declaration order.
var AllEventKinds = []EventKind{
	EventInitialized,
	EventValueSet,
	EventTouched,
	EventValuesPersisted,
	EventValidationRequested,
	EventValidationRequestReplaced,
	EventValidationStarted,
	EventValidationSuperseded,
	EventValidationResolved,
	EventValidationFailed,
	EventValidationDiscarded,
	EventValidationCanceled,
	EventSubmitStarted,
	EventSubmitCanceled,
	EventSubmitResolved,
	EventSubmitFailed,
	EventSubmitDiscarded,
}

// Event is a record of one committed state change, delivered to observers
// in commit order.
type Event struct {
	// FormID identifies the controller that committed the change.
	FormID string `json:"form_id"`

	Kind EventKind `json:"kind"`

	// Time is the logical clock reading at commit; events that do not tick
	// the clock carry the current time.
	Time Time `json:"time"`

	// Field is set for value_set events.
	Field string `json:"field,omitempty"`

	// Fields is set for touched, validation and persisted events.
	Fields *FieldList `json:"fields,omitempty"`

	// ValidationKind is set for validation events.
	ValidationKind string `json:"validation_kind,omitempty"`

	// AttemptID is the running request ID or submit attempt ID.
	AttemptID string `json:"attempt_id,omitempty"`

	// ErrorCount is the number of errors carried by a resolved result.
	ErrorCount int `json:"error_count,omitempty"`

	// Err describes the failure for *_failed events.
	Err string `json:"err,omitempty"`
}

// IsTerminal reports whether the event ends an async validation run or a
// submit attempt.
func (e Event) IsTerminal() bool {
	switch e.Kind {
	case EventValidationResolved, EventValidationFailed, EventValidationDiscarded,
		EventSubmitResolved, EventSubmitFailed, EventSubmitDiscarded:
		return true
	}
	return false
}
