package filing

import "errors"

var (
	// ErrSubmissionNotFound signals a missing local submission record.
	ErrSubmissionNotFound = errors.New("filing: submission not found")
	// ErrInvalidTransition indicates an attempt to move a submission backwards in its lifecycle.
	ErrInvalidTransition = errors.New("filing: invalid state transition")
	// ErrMissingSubmissionID indicates the remote submission id has not been assigned yet.
	ErrMissingSubmissionID = errors.New("filing: submission id missing")
	// ErrSubmissionFinal indicates the submission already reached Accepted or Rejected.
	ErrSubmissionFinal = errors.New("filing: submission is final")
	// ErrUnknownForm signals an unsupported form path segment.
	ErrUnknownForm = errors.New("filing: unknown form type")
)

var (
	// ErrNotFiled indicates an operation that needs a transmitted submission.
	ErrNotFiled = errors.New("filing: submission not filed")
	// ErrSubmissionLocked indicates the payload can no longer be edited.
	ErrSubmissionLocked = errors.New("filing: submission no longer editable")
)
