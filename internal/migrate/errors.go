package migrate

import (
	"errors"
	"fmt"
)

// ErrCritical marks a failure that aborts the whole run: the committer
// lookup, milestone creation and asset upload. Everything else degrades
// per record.
var ErrCritical = errors.New("critical failure")

// critical wraps a formatted error as ErrCritical, keeping the inner chain
// reachable through errors.Is and errors.As.
func critical(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w", ErrCritical, fmt.Errorf(format, args...))
}
