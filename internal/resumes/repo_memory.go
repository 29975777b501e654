package resumes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo stores records in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Resume
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Resume),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the record.
func (m *MemoryRepo) Create(ctx context.Context, r Resume) (Resume, error) {
	if err := ctx.Err(); err != nil {
		return Resume{}, err
	}
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	now := m.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	if r.Stage == "" {
		r.Stage = StageRaw
	}
	if r.AnalysisStatus.State == "" {
		r.AnalysisStatus.State = StatePending
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[r.ID]; exists {
		return Resume{}, invariantError("duplicate id " + r.ID)
	}
	m.byID[r.ID] = clone(r)
	return clone(r), nil
}

// Update applies patch under the write lock so readers never see half of it.
func (m *MemoryRepo) Update(ctx context.Context, id string, patch Patch) (Resume, error) {
	if err := ctx.Err(); err != nil {
		return Resume{}, err
	}
	if err := patch.Validate(); err != nil {
		return Resume{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.byID[id]
	if !ok {
		return Resume{}, ErrNotFound
	}
	updated, err := patch.apply(clone(current), m.now())
	if err != nil {
		return Resume{}, err
	}
	m.byID[id] = updated
	return clone(updated), nil
}

// GetByID returns a copy of the record.
func (m *MemoryRepo) GetByID(ctx context.Context, id string) (Resume, error) {
	if err := ctx.Err(); err != nil {
		return Resume{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return Resume{}, ErrNotFound
	}
	return clone(r), nil
}

// List returns records newest first with limit/offset.
func (m *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Resume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	all := make([]Resume, 0, len(m.byID))
	for _, r := range m.byID {
		all = append(all, clone(r))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []Resume{}, nil
	}
	end := len(all)
	if offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
