package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
)

// Service exposes the lifecycle operations of one form type. Every form type shares this
// implementation; only the path segment and the payload type P differ.
type Service[P any] struct {
	client taxapi.Requester
	path   string
}

// New binds a form service to a path segment such as "FormW2" or "Form1099NEC".
func New[P any](client taxapi.Requester, path string) *Service[P] {
	return &Service[P]{client: client, path: strings.Trim(strings.TrimSpace(path), "/")}
}

// Path returns the form path segment.
func (s *Service[P]) Path() string {
	return s.path
}

// Create submits a new filing and returns the remote identifiers.
func (s *Service[P]) Create(ctx context.Context, payload P) (filing.CreateResult, error) {
	env, err := taxapi.Do[createEnvelope](ctx, s.client, http.MethodPost, s.endpoint("Create", nil), payload)
	if err != nil {
		return filing.CreateResult{}, err
	}
	return env.toResult(), nil
}

// Update replaces the payload of an existing submission.
func (s *Service[P]) Update(ctx context.Context, submissionID string, payload P) error {
	if err := requireID(submissionID); err != nil {
		return err
	}
	body, err := withSubmissionID(payload, submissionID)
	if err != nil {
		return err
	}
	return s.client.Request(ctx, http.MethodPut, s.endpoint("Update", nil), body, nil)
}

// Validate returns the field-level problems for a submission. An empty slice means clean.
func (s *Service[P]) Validate(ctx context.Context, submissionID string) ([]filing.ValidationError, error) {
	if err := requireID(submissionID); err != nil {
		return nil, err
	}
	env, err := taxapi.Do[validateEnvelope](ctx, s.client, http.MethodGet, s.endpoint("Validate", bySubmission(submissionID)), nil)
	if err != nil {
		return nil, err
	}
	return env.toErrors(), nil
}

// Transmit sends the submission and all of its records to the agency.
func (s *Service[P]) Transmit(ctx context.Context, submissionID string, recordIDs []string) error {
	if err := requireID(submissionID); err != nil {
		return err
	}
	ids := append([]string{}, recordIDs...)
	body := transmitRequest{SubmissionID: submissionID, RecordIDs: ids}
	return s.client.Request(ctx, http.MethodPost, s.endpoint("Transmit", nil), body, nil)
}

// GetStatus returns the status of the first record, defaulting to Unknown/Pending.
func (s *Service[P]) GetStatus(ctx context.Context, submissionID string) (filing.StatusResult, error) {
	if err := requireID(submissionID); err != nil {
		return filing.StatusResult{}, err
	}
	env, err := taxapi.Do[statusEnvelope](ctx, s.client, http.MethodGet, s.endpoint("Status", bySubmission(submissionID)), nil)
	if err != nil {
		return filing.StatusResult{}, err
	}
	return env.toResult(), nil
}

// Get returns the raw remote record for display.
func (s *Service[P]) Get(ctx context.Context, submissionID string) (json.RawMessage, error) {
	if err := requireID(submissionID); err != nil {
		return nil, err
	}
	return taxapi.Do[json.RawMessage](ctx, s.client, http.MethodGet, s.endpoint("Get", bySubmission(submissionID)), nil)
}

// List returns one page of filings. Non-positive page or pageSize fall back to 1 and 10.
func (s *Service[P]) List(ctx context.Context, page, pageSize int) (filing.ListResult[json.RawMessage], error) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	query := url.Values{}
	query.Set("Page", strconv.Itoa(page))
	query.Set("PageSize", strconv.Itoa(pageSize))

	env, err := taxapi.Do[listEnvelope](ctx, s.client, http.MethodGet, s.endpoint("List", query), nil)
	if err != nil {
		return filing.ListResult[json.RawMessage]{}, err
	}
	out := env.toResult()
	if out.Page == 0 {
		out.Page = page
	}
	if out.PageSize == 0 {
		out.PageSize = pageSize
	}
	return out, nil
}

// Delete removes the filing on the remote side.
func (s *Service[P]) Delete(ctx context.Context, submissionID string) error {
	if err := requireID(submissionID); err != nil {
		return err
	}
	return s.client.Request(ctx, http.MethodDelete, s.endpoint("Delete", bySubmission(submissionID)), nil, nil)
}

// GetPDF returns the URL of the generated PDF.
func (s *Service[P]) GetPDF(ctx context.Context, submissionID string) (string, error) {
	if err := requireID(submissionID); err != nil {
		return "", err
	}
	env, err := taxapi.Do[pdfEnvelope](ctx, s.client, http.MethodGet, s.endpoint("RequestPDFURL", bySubmission(submissionID)), nil)
	if err != nil {
		return "", err
	}
	return env.PDFURL, nil
}

func (s *Service[P]) endpoint(op string, query url.Values) string {
	path := s.path + "/" + op
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path
}

func bySubmission(submissionID string) url.Values {
	q := url.Values{}
	q.Set("SubmissionId", submissionID)
	return q
}

func requireID(submissionID string) error {
	if strings.TrimSpace(submissionID) == "" {
		return filing.ErrMissingSubmissionID
	}
	return nil
}

// withSubmissionID merges {"SubmissionId": id} into the encoded payload.
func withSubmissionID(payload any, submissionID string) (json.RawMessage, error) {
	doc, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	patch, err := sonic.Marshal(map[string]string{"SubmissionId": submissionID})
	if err != nil {
		return nil, fmt.Errorf("encode submission id: %w", err)
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, fmt.Errorf("merge submission id: %w", err)
	}
	return merged, nil
}
