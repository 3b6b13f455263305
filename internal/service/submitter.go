package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/poller"
	"github.com/smallbiznis/valora-filing/internal/repository"
)

// FormOperations is the form service surface the submitter drives.
type FormOperations[P any] interface {
	Path() string
	Create(ctx context.Context, payload P) (filing.CreateResult, error)
	Update(ctx context.Context, submissionID string, payload P) error
	Validate(ctx context.Context, submissionID string) ([]filing.ValidationError, error)
	Transmit(ctx context.Context, submissionID string, recordIDs []string) error
	GetStatus(ctx context.Context, submissionID string) (filing.StatusResult, error)
	Get(ctx context.Context, submissionID string) (json.RawMessage, error)
	List(ctx context.Context, page, pageSize int) (filing.ListResult[json.RawMessage], error)
	Delete(ctx context.Context, submissionID string) error
	GetPDF(ctx context.Context, submissionID string) (string, error)
}

var errObservationDropped = errors.New("status observation dropped")

// ObserveFunc receives the submission after each applied status observation.
type ObserveFunc func(*filing.FormSubmission)

// Submitter runs the create, validate and transmit sequence for one form type and
// keeps the local submission record in step with the remote lifecycle.
type Submitter[P any] struct {
	forms   FormOperations[P]
	repo    repository.SubmissionRepository
	tracker *Tracker
	node    *snowflake.Node
	clock   clockwork.Clock
	logger  *zap.Logger
	tracer  trace.Tracer
	locks   *idLocks
}

// SubmitterOption customises a Submitter.
type SubmitterOption func(*submitterOptions)

type submitterOptions struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

// WithClock sets the clock used for lifecycle timestamps.
func WithClock(clock clockwork.Clock) SubmitterOption {
	return func(o *submitterOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) SubmitterOption {
	return func(o *submitterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewSubmitter wires dependencies.
func NewSubmitter[P any](forms FormOperations[P], repo repository.SubmissionRepository, tracker *Tracker, node *snowflake.Node, opts ...SubmitterOption) *Submitter[P] {
	o := submitterOptions{clock: clockwork.NewRealClock(), logger: zap.L()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Submitter[P]{
		forms:   forms,
		repo:    repo,
		tracker: tracker,
		node:    node,
		clock:   o.clock,
		logger:  o.logger.With(zap.String("form", forms.Path())),
		tracer:  otel.Tracer("github.com/smallbiznis/valora-filing/internal/service"),
		locks:   newIDLocks(),
	}
}

// FormPath returns the form path segment this submitter files.
func (s *Submitter[P]) FormPath() string {
	return s.forms.Path()
}

// Submit creates the filing remotely, then validates and transmits it.
//
// A create failure leaves no local record. Validation problems are not errors: the
// submission is returned Rejected with the problems attached and is never transmitted.
// A failed validate or transmit call leaves the submission InProgress so File can retry.
func (s *Submitter[P]) Submit(ctx context.Context, payload P) (*filing.FormSubmission, error) {
	ctx, span := s.startSpan(ctx, "Submitter.Submit")
	defer span.End()

	sub := filing.NewFormSubmission(s.node.Generate().Int64(), s.forms.Path(), s.clock.Now())
	span.SetAttributes(attribute.Int64("submission.local_id", sub.ID))
	unlock := s.locks.lock(sub.ID)
	defer unlock()

	created, err := s.forms.Create(ctx, payload)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("create %s: %w", s.forms.Path(), err)
	}
	sub.SubmissionID = created.SubmissionID
	sub.RecordIDs = created.RecordIDs
	if len(sub.RecordIDs) == 0 && created.RecordID != "" {
		sub.RecordIDs = []string{created.RecordID}
	}
	sub.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Save(ctx, sub); err != nil {
		recordError(span, err)
		return nil, err
	}
	s.logger.Info("submission created",
		zap.Int64("id", sub.ID),
		zap.String("submission_id", sub.SubmissionID),
		zap.Int("records", len(sub.RecordIDs)),
	)

	return s.file(ctx, sub)
}

// File validates and transmits an InProgress submission that already exists remotely.
func (s *Submitter[P]) File(ctx context.Context, id int64) (*filing.FormSubmission, error) {
	ctx, span := s.startSpan(ctx, "Submitter.File")
	defer span.End()
	unlock := s.locks.lock(id)
	defer unlock()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if sub.State != filing.StateInProgress {
		return sub, fmt.Errorf("file submission %d in state %s: %w", id, sub.State, filing.ErrSubmissionLocked)
	}
	if !sub.HasSubmissionID() {
		return sub, filing.ErrMissingSubmissionID
	}
	return s.file(ctx, sub)
}

func (s *Submitter[P]) file(ctx context.Context, sub *filing.FormSubmission) (*filing.FormSubmission, error) {
	problems, err := s.validate(ctx, sub.SubmissionID)
	if err != nil {
		return sub, fmt.Errorf("validate %s: %w", sub.SubmissionID, err)
	}
	now := s.clock.Now()
	if len(problems) > 0 {
		sub.ValidationErrors = problems
		if err := sub.Advance(filing.StateRejected, now); err != nil {
			return sub, err
		}
		if err := s.repo.Save(ctx, sub); err != nil {
			return sub, err
		}
		s.logger.Info("submission rejected by validation",
			zap.Int64("id", sub.ID),
			zap.Int("validation_errors", len(problems)),
		)
		return sub, nil
	}
	sub.ValidationErrors = nil

	if err := s.transmit(ctx, sub); err != nil {
		return sub, fmt.Errorf("transmit %s: %w", sub.SubmissionID, err)
	}
	if err := sub.Advance(filing.StateFiled, s.clock.Now()); err != nil {
		return sub, err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return sub, err
	}
	s.logger.Info("submission filed", zap.Int64("id", sub.ID), zap.String("submission_id", sub.SubmissionID))
	return sub, nil
}

func (s *Submitter[P]) validate(ctx context.Context, submissionID string) ([]filing.ValidationError, error) {
	ctx, span := s.startSpan(ctx, "Submitter.Validate")
	defer span.End()
	problems, err := s.forms.Validate(ctx, submissionID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("validation.errors", len(problems)))
	return problems, nil
}

func (s *Submitter[P]) transmit(ctx context.Context, sub *filing.FormSubmission) error {
	ctx, span := s.startSpan(ctx, "Submitter.Transmit")
	defer span.End()
	if err := s.forms.Transmit(ctx, sub.SubmissionID, sub.RecordIDs); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// Update replaces the payload of a submission that has not been filed yet. Earlier
// validation problems are cleared.
func (s *Submitter[P]) Update(ctx context.Context, id int64, payload P) (*filing.FormSubmission, error) {
	ctx, span := s.startSpan(ctx, "Submitter.Update")
	defer span.End()
	unlock := s.locks.lock(id)
	defer unlock()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if sub.State != filing.StateInProgress {
		return nil, fmt.Errorf("update submission %d in state %s: %w", id, sub.State, filing.ErrSubmissionLocked)
	}
	if !sub.HasSubmissionID() {
		return nil, filing.ErrMissingSubmissionID
	}
	if err := s.forms.Update(ctx, sub.SubmissionID, payload); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("update %s: %w", sub.SubmissionID, err)
	}
	sub.ValidationErrors = nil
	sub.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Track starts polling a Filed submission. Each successful observation is applied to
// the stored record and then handed to onUpdate, which may be nil.
func (s *Submitter[P]) Track(ctx context.Context, id int64, onUpdate ObserveFunc) (*poller.Session, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.State != filing.StateFiled {
		return nil, fmt.Errorf("track submission %d in state %s: %w", id, sub.State, filing.ErrNotFiled)
	}
	session := s.tracker.Start(sub.ID, sub.SubmissionID, s.forms, func(result filing.StatusResult) {
		updated, err := s.observe(sub.ID, result)
		if errors.Is(err, errObservationDropped) {
			s.logger.Debug("status observation dropped", zap.Int64("id", sub.ID))
			return
		}
		if err != nil {
			s.logger.Warn("apply status observation", zap.Int64("id", sub.ID), zap.Error(err))
			return
		}
		if onUpdate != nil {
			onUpdate(updated)
		}
	})
	s.logger.Info("tracking submission", zap.Int64("id", sub.ID), zap.String("submission_id", sub.SubmissionID))
	return session, nil
}

// observe runs on the poll goroutine, detached from any request context. An
// observation whose session was stopped while it waited, or whose record is gone,
// is dropped.
func (s *Submitter[P]) observe(id int64, result filing.StatusResult) (*filing.FormSubmission, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	if _, tracking := s.tracker.Session(id); !tracking {
		return nil, errObservationDropped
	}
	ctx := context.Background()
	sub, err := s.repo.Get(ctx, id)
	if errors.Is(err, filing.ErrSubmissionNotFound) {
		return nil, errObservationDropped
	}
	if err != nil {
		return nil, err
	}
	if err := sub.Observe(result, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	if sub.State.Terminal() {
		s.logger.Info("submission acknowledged",
			zap.Int64("id", sub.ID),
			zap.String("state", string(sub.State)),
			zap.Int("irs_errors", len(sub.IRSErrors)),
		)
	}
	return sub, nil
}

// Status fetches the current remote status once. Filed submissions advance when the
// acknowledgement is definitive; other states only record the observation.
func (s *Submitter[P]) Status(ctx context.Context, id int64) (*filing.FormSubmission, error) {
	ctx, span := s.startSpan(ctx, "Submitter.Status")
	defer span.End()
	unlock := s.locks.lock(id)
	defer unlock()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.HasSubmissionID() {
		return nil, filing.ErrMissingSubmissionID
	}
	result, err := s.forms.GetStatus(ctx, sub.SubmissionID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	now := s.clock.Now()
	if sub.State == filing.StateFiled {
		if err := sub.Observe(result, now); err != nil {
			return nil, err
		}
	} else {
		last := result
		sub.LastStatus = &last
		sub.UpdatedAt = now.UTC()
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Record returns the remote record of a submission.
func (s *Submitter[P]) Record(ctx context.Context, id int64) (json.RawMessage, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.forms.Get(ctx, sub.SubmissionID)
}

// PDF requests the PDF URL and remembers it on the local record.
func (s *Submitter[P]) PDF(ctx context.Context, id int64) (string, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := s.forms.GetPDF(ctx, sub.SubmissionID)
	if err != nil {
		return "", err
	}
	sub.PDFURL = url
	sub.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Save(ctx, sub); err != nil {
		return "", err
	}
	return url, nil
}

// Delete cancels a submission that has not reached a terminal state. Polling stops
// first, then the remote filing and finally the local record are removed.
func (s *Submitter[P]) Delete(ctx context.Context, id int64) error {
	ctx, span := s.startSpan(ctx, "Submitter.Delete")
	defer span.End()
	unlock := s.locks.lock(id)
	defer unlock()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.State.Terminal() {
		return fmt.Errorf("delete submission %d: %w", id, filing.ErrSubmissionFinal)
	}
	s.tracker.Stop(id)
	if sub.HasSubmissionID() {
		if err := s.forms.Delete(ctx, sub.SubmissionID); err != nil {
			recordError(span, err)
			return fmt.Errorf("delete %s: %w", sub.SubmissionID, err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, filing.ErrSubmissionNotFound) {
		return err
	}
	s.logger.Info("submission deleted", zap.Int64("id", id), zap.String("submission_id", sub.SubmissionID))
	return nil
}

// ListLocal returns the stored submissions of this form type.
func (s *Submitter[P]) ListLocal(ctx context.Context, filter repository.ListFilter) ([]*filing.FormSubmission, error) {
	filter.FormType = s.forms.Path()
	return s.repo.List(ctx, filter)
}

// ListRemote returns one page of filings as the remote side knows them.
func (s *Submitter[P]) ListRemote(ctx context.Context, page, pageSize int) (filing.ListResult[json.RawMessage], error) {
	return s.forms.List(ctx, page, pageSize)
}

func (s *Submitter[P]) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("form.path", s.forms.Path())))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
