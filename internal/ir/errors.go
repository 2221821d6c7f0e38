package ir

// FormError is one validation or submission error. Immutable once produced.
type FormError struct {
	// Fields lists the fields the error is about; AllFields() for errors
	// about the form as a whole.
	Fields FieldList `json:"fields"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Meta carries producer-defined data. May be nil.
	Meta IRValue `json:"meta,omitempty"`
}

// FieldError creates a FormError attached to the given fields.
func FieldError(message string, fields ...string) FormError {
	return FormError{Fields: Fields(fields...), Message: message}
}

// Normalized returns fe with an empty field list replaced by AllFields().
// An error that names no field is about the whole form.
func (fe FormError) Normalized() FormError {
	if !fe.Fields.IsAll() && fe.Fields.Len() == 0 {
		fe.Fields = AllFields()
	}
	return fe
}

// FormLevelError creates a FormError attached to the whole form.
func FormLevelError(message string) FormError {
	return FormError{Fields: AllFields(), Message: message}
}

// Source identifies which producer computed an error.
// Sealed: only SourceSynchronous, SourceSubmit and SourceAsynchronous
// implement it.
type Source interface {
	source()
	// Tag is a stable lowercase name for logs and traces.
	Tag() string
}

// SourceSynchronous marks errors from synchronous validators.
type SourceSynchronous struct{}

func (SourceSynchronous) source()     {}
func (SourceSynchronous) Tag() string { return "synchronous" }

// SourceSubmit marks errors returned by the submit handler.
type SourceSubmit struct{}

func (SourceSubmit) source()     {}
func (SourceSubmit) Tag() string { return "submit" }

// SourceAsynchronous marks errors from a resolved async validation request.
type SourceAsynchronous struct {
	Kind   string
	Fields FieldList
}

func (SourceAsynchronous) source()     {}
func (SourceAsynchronous) Tag() string { return "asynchronous" }

// ProcessedError is a FormError decorated by the error aggregator.
// It is a projection of controller state, recomputed on every query.
type ProcessedError struct {
	FormError

	// Time is when the error was computed: now for synchronous errors, the
	// submit start time for submit errors, the run start time for async
	// errors.
	Time Time `json:"time"`

	// Source is the producer of the error.
	Source Source `json:"-"`

	// IsOutdated reports whether relevant inputs changed (or a re-run is
	// in flight) since the error was computed.
	IsOutdated bool `json:"is_outdated"`
}

// Messages returns the message of every error, in order.
func Messages(errs []ProcessedError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}
