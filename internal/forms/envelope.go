package forms

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

// Wire envelopes. Every nullable field is normalized exactly once in the toX methods
// below so callers never see nil slices or empty status strings.

type recordEnvelope struct {
	RecordID string `json:"RecordId"`
	Status   string `json:"Status"`
}

type createEnvelope struct {
	StatusCode   int              `json:"StatusCode"`
	StatusName   string           `json:"StatusName"`
	SubmissionID string           `json:"SubmissionId"`
	Records      []recordEnvelope `json:"Records"`
}

func (e createEnvelope) toResult() filing.CreateResult {
	out := filing.CreateResult{SubmissionID: e.SubmissionID, RecordIDs: []string{}}
	for _, r := range e.Records {
		if id := strings.TrimSpace(r.RecordID); id != "" {
			out.RecordIDs = append(out.RecordIDs, id)
		}
	}
	if len(e.Records) > 0 {
		out.RecordID = e.Records[0].RecordID
	}
	return out
}

type validationErrorEnvelope struct {
	ID      string `json:"Id"`
	Field   string `json:"Field"`
	Message string `json:"Message"`
	Code    string `json:"Code"`
}

type validateEnvelope struct {
	StatusCode int                       `json:"StatusCode"`
	StatusName string                    `json:"StatusName"`
	Errors     []validationErrorEnvelope `json:"Errors"`
}

func (e validateEnvelope) toErrors() []filing.ValidationError {
	out := make([]filing.ValidationError, 0, len(e.Errors))
	for _, v := range e.Errors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, filing.ValidationError{ID: id, Field: v.Field, Message: v.Message, Code: v.Code})
	}
	return out
}

type irsErrorEnvelope struct {
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

type statusRecordEnvelope struct {
	RecordID              string             `json:"RecordId"`
	Status                string             `json:"Status"`
	AcknowledgementStatus string             `json:"AcknowledgementStatus"`
	IRSErrors             []irsErrorEnvelope `json:"IRSErrors"`
}

type statusEnvelope struct {
	StatusCode   int                    `json:"StatusCode"`
	StatusName   string                 `json:"StatusName"`
	SubmissionID string                 `json:"SubmissionId"`
	Records      []statusRecordEnvelope `json:"Records"`
}

func (e statusEnvelope) toResult() filing.StatusResult {
	out := filing.StatusResult{
		Status:                filing.StatusUnknown,
		AcknowledgementStatus: filing.AckPending,
		IRSErrors:             []filing.IRSError{},
	}
	if len(e.Records) == 0 {
		return out
	}
	first := e.Records[0]
	if s := strings.TrimSpace(first.Status); s != "" {
		out.Status = s
	}
	if s := strings.TrimSpace(first.AcknowledgementStatus); s != "" {
		out.AcknowledgementStatus = s
	}
	for _, ie := range first.IRSErrors {
		out.IRSErrors = append(out.IRSErrors, filing.IRSError{Code: ie.ErrorCode, Message: ie.ErrorMessage})
	}
	return out
}

type listEnvelope struct {
	StatusCode   int               `json:"StatusCode"`
	StatusName   string            `json:"StatusName"`
	Records      []json.RawMessage `json:"Records"`
	TotalRecords int               `json:"TotalRecords"`
	Page         int               `json:"Page"`
	PageSize     int               `json:"PageSize"`
	TotalPages   int               `json:"TotalPages"`
}

func (e listEnvelope) toResult() filing.ListResult[json.RawMessage] {
	records := e.Records
	if records == nil {
		records = []json.RawMessage{}
	}
	return filing.ListResult[json.RawMessage]{
		Records:      records,
		TotalRecords: e.TotalRecords,
		Page:         e.Page,
		PageSize:     e.PageSize,
		TotalPages:   e.TotalPages,
	}
}

type pdfEnvelope struct {
	StatusCode int    `json:"StatusCode"`
	StatusName string `json:"StatusName"`
	PDFURL     string `json:"PDFURL"`
}

type transmitRequest struct {
	SubmissionID string   `json:"SubmissionId"`
	RecordIDs    []string `json:"RecordIds"`
}
