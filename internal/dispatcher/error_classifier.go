package dispatcher

import (
	"context"
	"errors"
	"strings"

	"github.com/local/minitools/internal/store"
	"github.com/local/minitools/internal/tools"
)

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	// bad input never gets better on retry
	if tools.IsUserError(err) {
		return true
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// inputs expired or were never stored
	if errors.Is(err, store.ErrNotFound) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "validation failed") ||
		strings.Contains(errStr, "malformed")
}

// isTimeoutError checks if error is specifically a timeout
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}
