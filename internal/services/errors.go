package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureDetails captures the classification extracted from a stage error.
type FailureDetails struct {
	Kind    string
	Message string
}

// Details classifies a stage error against the sentinel markers and returns
// the human-readable message with the marker prefix stripped.
func Details(err error) FailureDetails {
	if err == nil {
		return FailureDetails{}
	}
	details := FailureDetails{Message: strings.TrimSpace(err.Error())}
	for _, marker := range []error{ErrValidation, ErrConfiguration, ErrNotFound, ErrExternalTool, ErrTimeout, ErrTransient} {
		if errors.Is(err, marker) {
			details.Kind = kindForMarker(marker)
			prefix := marker.Error() + ": "
			details.Message = strings.TrimPrefix(details.Message, prefix)
			break
		}
	}
	if details.Kind == "" {
		details.Kind = "unclassified"
	}
	return details
}

func kindForMarker(marker error) string {
	switch marker {
	case ErrValidation:
		return "validation"
	case ErrConfiguration:
		return "configuration"
	case ErrNotFound:
		return "not_found"
	case ErrExternalTool:
		return "external"
	case ErrTimeout:
		return "timeout"
	default:
		return "transient"
	}
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
