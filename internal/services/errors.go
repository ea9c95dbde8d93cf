package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool   = errors.New("external tool error")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrTransient      = errors.New("transient failure")
	ErrBlocked        = errors.New("blocked by origin")
	ErrQuotaExhausted = errors.New("publish quota exhausted")
)

// Failure classes reported for per-item outcomes.
const (
	ClassQuota         = "quota"
	ClassPermanent     = "permanent"
	ClassTransient     = "transient"
	ClassConfiguration = "configuration"
	ClassCanceled      = "canceled"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
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

// FailureClass maps a stage error to the class recorded in the batch summary.
func FailureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExhausted):
		return ClassQuota
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return ClassPermanent
	default:
		return ClassTransient
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
