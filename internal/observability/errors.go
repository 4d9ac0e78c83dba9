package observability

import (
	"errors"
	"fmt"
)

// AggregateErrors joins the non-nil errors of an operation, logs them once, and returns the joined error.
func AggregateErrors(operation string, errs []error, fields ...Field) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	joined := errors.Join(filtered...)
	Log().Error("operation failed", append(fields,
		F("operation", operation),
		F("error_count", len(filtered)),
		F("error", joined.Error()),
	)...)
	return fmt.Errorf("%s: %w", operation, joined)
}
