package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Task-level failure markers. Every stage error carries exactly one of these
// so the orchestrator can report a single error kind.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrAcquisitionFailed   = errors.New("acquisition failed")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrMalformedSubtitle   = errors.New("malformed subtitle")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrPersistenceFailed   = errors.New("persistence failed")
	ErrCancelled           = errors.New("cancelled")
)

// Transport and tooling classes used below the task level. They decide retry
// behaviour inside a stage and are folded into a task-level marker before the
// error leaves the stage.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrAuth          = errors.New("authentication required")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Kind names the task-level error category reported to callers.
type Kind string

const (
	KindNone                Kind = ""
	KindInvalidInput        Kind = "InvalidInput"
	KindAcquisitionFailed   Kind = "AcquisitionFailed"
	KindUnsupportedEncoding Kind = "UnsupportedEncoding"
	KindMalformedSubtitle   Kind = "MalformedSubtitle"
	KindTranscriptionFailed Kind = "TranscriptionFailed"
	KindPersistenceFailed   Kind = "PersistenceFailed"
	KindCancelled           Kind = "Cancelled"
	// KindInternal marks a failure no stage claimed.
	KindInternal Kind = "InternalError"
)

// stageKinds attributes unmarked failures to the stage that raised them.
var stageKinds = map[string]Kind{
	"normalize":    KindInvalidInput,
	"queued":       KindInvalidInput,
	"downloading":  KindAcquisitionFailed,
	"deciding":     KindAcquisitionFailed,
	"transcribing": KindTranscriptionFailed,
	"formatting":   KindPersistenceFailed,
}

var kindMarkers = []struct {
	marker error
	kind   Kind
}{
	{ErrCancelled, KindCancelled},
	{ErrInvalidInput, KindInvalidInput},
	{ErrUnsupportedEncoding, KindUnsupportedEncoding},
	{ErrMalformedSubtitle, KindMalformedSubtitle},
	{ErrTranscriptionFailed, KindTranscriptionFailed},
	{ErrPersistenceFailed, KindPersistenceFailed},
	{ErrAcquisitionFailed, KindAcquisitionFailed},
}

// StageError carries the stage context of a failure alongside its marker.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := "service failure"
	if e.Marker != nil {
		marker = e.Marker.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", marker, detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", marker, detail)
}

// Unwrap exposes both the marker and the cause to errors.Is / errors.As.
func (e *StageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the caller-facing breakdown of a stage failure.
type ErrorDetails struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Cause     string
}

// Details extracts the outermost stage context from err. Errors that were never
// wrapped report their text as the message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindOf(err)}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		details.Stage = stageErr.Stage
		details.Operation = stageErr.Operation
		details.Message = stageErr.Message
		if stageErr.Cause != nil {
			details.Cause = stageErr.Cause.Error()
		}
		if details.Message == "" {
			details.Message = details.Cause
		}
		return details
	}
	details.Message = err.Error()
	return details
}

// KindOf maps err to its task-level kind. Errors without a task-level marker
// fall back on their transport class, then on the stage recorded by Wrap.
// Anything else is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAuth), errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return KindAcquisitionFailed
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		if kind, ok := stageKinds[stageErr.Stage]; ok {
			return kind
		}
	}
	return KindInternal
}

// KindAt is KindOf for a failure observed while stage was running; stage
// decides the kind of errors that carry no context of their own.
func KindAt(stage string, err error) Kind {
	kind := KindOf(err)
	if kind != KindInternal {
		return kind
	}
	if staged, ok := stageKinds[strings.TrimSpace(stage)]; ok {
		return staged
	}
	return kind
}

// IsRetryable reports whether err belongs to a transient network class that
// warrants the single built-in download retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
