package resumes

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("resume not found")
	ErrInvariant             = errors.New("resume invariant violated")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
	ErrIdentityRequired      = errors.New("documentoIdentidad is required")
)

func invariantError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvariant, msg)
}
