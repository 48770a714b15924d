package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorage       = errors.New("storage error")
	ErrNotFound      = errors.New("not found")
	ErrStageFailure  = errors.New("stage failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrConflict      = errors.New("conflict")
)

var markers = []error{
	ErrStorage,
	ErrNotFound,
	ErrStageFailure,
	ErrValidation,
	ErrConfiguration,
	ErrTimeout,
	ErrConflict,
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStorage
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails summarizes a wrapped error for logs and CLI output.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err against the known markers. Unclassified errors report
// kind "unknown".
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "unknown", Message: err.Error()}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			details.Kind = marker.Error()
			break
		}
	}
	details.Hint = hintFor(err)
	return details
}

// Retryable reports whether the failure is worth retrying without operator
// action.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return false
	default:
		return errors.Is(err, ErrStorage) || errors.Is(err, ErrTimeout)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, ErrStorage):
		return "check database path and permissions"
	case errors.Is(err, ErrNotFound):
		return "verify the subset or table name"
	case errors.Is(err, ErrStageFailure):
		return "inspect the document with 'corpora subset failures' and retry"
	case errors.Is(err, ErrConfiguration):
		return "run 'corpora config validate'"
	case errors.Is(err, ErrTimeout):
		return "increase pipeline.claim_timeout or reduce batch_size"
	case errors.Is(err, ErrConflict):
		return "the document was reset while running; the next run picks it up"
	default:
		return ""
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
