package resumes

import "context"

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Repo defines persistence operations for résumé records.
type Repo interface {
	// Create stores r, assigning ID and CreatedAt when empty.
	Create(ctx context.Context, r Resume) (Resume, error)
	// Update applies patch as a single atomic write and returns the result.
	Update(ctx context.Context, id string, patch Patch) (Resume, error)
	GetByID(ctx context.Context, id string) (Resume, error)
	// List returns records newest first. A limit <= 0 means DefaultListLimit.
	List(ctx context.Context, limit, offset int) ([]Resume, error)
}
