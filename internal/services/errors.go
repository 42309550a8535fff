package services

import (
	"errors"
	"fmt"
	"strings"

	"cardpress/internal/queue"
)

var (
	// ErrExternalTool marks failures of the CUPS command-line tools.
	ErrExternalTool = errors.New("external tool error")
	// ErrInvalidImage marks sources that cannot be decoded or are unfit to print.
	ErrInvalidImage = errors.New("invalid image")
	// ErrPrinterUnavailable marks a printer that is offline or rejecting jobs.
	ErrPrinterUnavailable = errors.New("printer unavailable")
	// ErrPrintFailure marks a job CUPS accepted but did not complete.
	ErrPrintFailure = errors.New("print failure")
	// ErrStaleSource marks a source file that vanished or changed underfoot.
	ErrStaleSource   = errors.New("stale source")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
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

// FailureStatus maps a stage error to the queue status the workflow manager
// should persist after the stage fails. Errors retrying cannot fix send the
// job straight to quarantine. ErrStaleSource is not a failure at all: the
// workflow resolves it as a supersession before classification happens.
func FailureStatus(err error) queue.Status {
	switch {
	case errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration):
		return queue.StatusQuarantined
	default:
		return queue.StatusFailed
	}
}

// CountsAgainstBudget reports whether a failure should consume the job's
// retry budget. Printer unavailability is an environmental condition, not a
// defect of the job, so such jobs wait without burning attempts.
func CountsAgainstBudget(err error) bool {
	return !errors.Is(err, ErrPrinterUnavailable)
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
