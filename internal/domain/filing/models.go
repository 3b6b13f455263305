package filing

import (
	"strings"
	"time"
)

// Acknowledgement values reported by the remote authority.
const (
	AckPending  = "Pending"
	AckAccepted = "Accepted"
	AckRejected = "Rejected"

	StatusUnknown = "Unknown"
)

// ValidationError is one field-level problem reported by Validate.
type ValidationError struct {
	ID      string `json:"id"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// IRSError is an agency-side rejection detail attached to a status observation.
type IRSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateResult is returned when the remote service accepts a new submission.
type CreateResult struct {
	SubmissionID string   `json:"submission_id"`
	RecordID     string   `json:"record_id"`
	RecordIDs    []string `json:"record_ids"`
}

// StatusResult is one normalized status observation.
type StatusResult struct {
	Status                string     `json:"status"`
	AcknowledgementStatus string     `json:"acknowledgement_status"`
	IRSErrors             []IRSError `json:"irs_errors"`
}

// IsAccepted reports an accepted acknowledgement, case-insensitively.
func (r StatusResult) IsAccepted() bool {
	return strings.EqualFold(strings.TrimSpace(r.AcknowledgementStatus), AckAccepted)
}

// IsRejected reports a rejected acknowledgement, case-insensitively.
func (r StatusResult) IsRejected() bool {
	return strings.EqualFold(strings.TrimSpace(r.AcknowledgementStatus), AckRejected)
}

// IsTerminal reports whether polling can stop on this observation.
func (r StatusResult) IsTerminal() bool {
	return r.IsAccepted() || r.IsRejected()
}

// ListResult is one page of remote filings for a form type.
type ListResult[R any] struct {
	Records      []R `json:"records"`
	TotalRecords int `json:"total_records"`
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	TotalPages   int `json:"total_pages"`
}

// FormSubmission is the local record of one filing attempt.
type FormSubmission struct {
	ID               int64             `json:"id"`
	FormType         string            `json:"form_type"`
	SubmissionID     string            `json:"submission_id,omitempty"`
	RecordIDs        []string          `json:"record_ids,omitempty"`
	State            State             `json:"state"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	IRSErrors        []IRSError        `json:"irs_errors,omitempty"`
	LastStatus       *StatusResult     `json:"last_status,omitempty"`
	PDFURL           string            `json:"pdf_url,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	FiledAt          *time.Time        `json:"filed_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// NewFormSubmission starts a local submission in the InProgress state.
func NewFormSubmission(id int64, formType string, now time.Time) *FormSubmission {
	now = now.UTC()
	return &FormSubmission{
		ID:        id,
		FormType:  formType,
		State:     StateInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasSubmissionID reports whether create() has already succeeded.
func (s *FormSubmission) HasSubmissionID() bool {
	return strings.TrimSpace(s.SubmissionID) != ""
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *FormSubmission) Clone() *FormSubmission {
	if s == nil {
		return nil
	}
	out := *s
	out.RecordIDs = append([]string(nil), s.RecordIDs...)
	out.ValidationErrors = append([]ValidationError(nil), s.ValidationErrors...)
	out.IRSErrors = append([]IRSError(nil), s.IRSErrors...)
	if s.LastStatus != nil {
		last := *s.LastStatus
		last.IRSErrors = append([]IRSError(nil), s.LastStatus.IRSErrors...)
		out.LastStatus = &last
	}
	if s.FiledAt != nil {
		t := *s.FiledAt
		out.FiledAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
