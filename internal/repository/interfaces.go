package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

// ListFilter narrows a submission listing. Zero values match everything.
type ListFilter struct {
	FormType string
	State    filing.State
	Limit    int
}

// Matches reports whether sub passes the filter.
func (f ListFilter) Matches(sub *filing.FormSubmission) bool {
	if f.FormType != "" && f.FormType != sub.FormType {
		return false
	}
	if f.State != "" && f.State != sub.State {
		return false
	}
	return true
}

// CheckOverwrite refuses a Save that would move a stored record to an earlier or
// sideways lifecycle state.
func CheckOverwrite(stored, next *filing.FormSubmission) error {
	if stored == nil || filing.CanTransition(stored.State, next.State) {
		return nil
	}
	return fmt.Errorf("save submission %d %s -> %s: %w", next.ID, stored.State, next.State, filing.ErrInvalidTransition)
}

// SubmissionRepository persists local submission records. Save never moves a stored
// record backwards; such a write fails with filing.ErrInvalidTransition.
type SubmissionRepository interface {
	Save(ctx context.Context, sub *filing.FormSubmission) error
	Get(ctx context.Context, id int64) (*filing.FormSubmission, error)
	List(ctx context.Context, filter ListFilter) ([]*filing.FormSubmission, error)
	Delete(ctx context.Context, id int64) error
}
