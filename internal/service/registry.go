package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/forms"
	"github.com/smallbiznis/valora-filing/internal/repository"
)

// RawSubmitter files payloads that are already encoded in the remote wire shape.
type RawSubmitter = Submitter[json.RawMessage]

// Registry holds one RawSubmitter per known form type.
type Registry struct {
	repo       repository.SubmissionRepository
	tracker    *Tracker
	submitters map[string]*RawSubmitter
}

// NewRegistry builds submitters for every form in forms.KnownForms.
func NewRegistry(client taxapi.Requester, repo repository.SubmissionRepository, tracker *Tracker, node *snowflake.Node, opts ...SubmitterOption) *Registry {
	r := &Registry{repo: repo, tracker: tracker, submitters: map[string]*RawSubmitter{}}
	for _, info := range forms.KnownForms() {
		svc := forms.New[json.RawMessage](client, info.Path)
		r.submitters[info.Path] = NewSubmitter[json.RawMessage](svc, repo, tracker, node, opts...)
	}
	return r
}

// For returns the submitter for a form path, matched case-insensitively.
func (r *Registry) For(form string) (*RawSubmitter, error) {
	info, err := forms.Lookup(form)
	if err != nil {
		return nil, err
	}
	sub, ok := r.submitters[info.Path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", form, filing.ErrUnknownForm)
	}
	return sub, nil
}

// ForSubmission loads a stored submission and returns the submitter of its form type.
func (r *Registry) ForSubmission(ctx context.Context, id int64) (*RawSubmitter, *filing.FormSubmission, error) {
	sub, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s, err := r.For(sub.FormType)
	if err != nil {
		return nil, nil, err
	}
	return s, sub, nil
}

// List returns stored submissions across all form types.
func (r *Registry) List(ctx context.Context, filter repository.ListFilter) ([]*filing.FormSubmission, error) {
	return r.repo.List(ctx, filter)
}

// Tracker returns the shared session tracker.
func (r *Registry) Tracker() *Tracker {
	return r.tracker
}
