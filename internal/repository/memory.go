package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

// MemorySubmissionRepo keeps submissions in process memory.
type MemorySubmissionRepo struct {
	mu   sync.RWMutex
	data map[int64]*filing.FormSubmission
}

var _ SubmissionRepository = (*MemorySubmissionRepo)(nil)

func NewMemorySubmissionRepo() *MemorySubmissionRepo {
	return &MemorySubmissionRepo{data: map[int64]*filing.FormSubmission{}}
}

func (r *MemorySubmissionRepo) Save(_ context.Context, sub *filing.FormSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := CheckOverwrite(r.data[sub.ID], sub); err != nil {
		return err
	}
	r.data[sub.ID] = sub.Clone()
	return nil
}

func (r *MemorySubmissionRepo) Get(_ context.Context, id int64) (*filing.FormSubmission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", id, filing.ErrSubmissionNotFound)
	}
	return sub.Clone(), nil
}

func (r *MemorySubmissionRepo) List(_ context.Context, filter ListFilter) ([]*filing.FormSubmission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*filing.FormSubmission, 0, len(r.data))
	for _, sub := range r.data {
		if filter.Matches(sub) {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemorySubmissionRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("submission %d: %w", id, filing.ErrSubmissionNotFound)
	}
	delete(r.data, id)
	return nil
}
