package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("timeout")
	ErrTransient          = errors.New("transient failure")
	ErrRejected           = errors.New("rejected by remote")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorHint returns a short operator-facing classification used as the
// error_hint log attribute.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageUnavailable):
		return "local storage unavailable; running without durability"
	case errors.Is(err, ErrRejected), errors.Is(err, ErrValidation):
		return "remote rejected the item; inspect payload before retrying"
	case errors.Is(err, ErrConfiguration):
		return "check fieldsync configuration"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "remote did not answer in time; will retry"
	case errors.Is(err, ErrNotFound):
		return "entity no longer exists remotely"
	default:
		return "transient failure; will retry"
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
