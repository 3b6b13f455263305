package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/forms"
	"github.com/smallbiznis/valora-filing/internal/repository"
	"github.com/smallbiznis/valora-filing/internal/service"
)

const maxListLimit = 500

// FilingHandler exposes the submission pipeline over HTTP.
type FilingHandler struct {
	Registry *service.Registry
	Logger   *zap.Logger
}

// NewFilingHandler creates the handler set.
func NewFilingHandler(registry *service.Registry, logger *zap.Logger) *FilingHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &FilingHandler{Registry: registry, Logger: logger}
}

type submissionView struct {
	*filing.FormSubmission
	Tracking bool `json:"tracking"`
}

func (h *FilingHandler) view(sub *filing.FormSubmission) submissionView {
	_, tracking := h.Registry.Tracker().Session(sub.ID)
	return submissionView{FormSubmission: sub, Tracking: tracking}
}

// Health reports liveness and the number of live poll sessions.
func (h *FilingHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tracking": h.Registry.Tracker().Active()})
}

// ListForms returns the supported form types.
func (h *FilingHandler) ListForms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"forms": forms.KnownForms()})
}

// ListFilings returns one page of the remote filings of a form type.
func (h *FilingHandler) ListFilings(c *gin.Context) {
	s, err := h.Registry.For(c.Param("form"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	result, err := s.ListRemote(c.Request.Context(), page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Submit creates, validates and transmits a filing. With track=true a Filed
// submission is polled until acknowledged.
func (h *FilingHandler) Submit(c *gin.Context) {
	s, err := h.Registry.For(c.Param("form"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload, ok := readPayload(c)
	if !ok {
		return
	}

	sub, err := s.Submit(c.Request.Context(), payload)
	if err != nil {
		if sub != nil {
			h.Logger.Warn("submission left in progress", zap.Int64("id", sub.ID), zap.Error(err))
		}
		h.respondError(c, err)
		return
	}
	if c.Query("track") == "true" && sub.State == filing.StateFiled {
		if _, err := s.Track(c.Request.Context(), sub.ID, nil); err != nil {
			h.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, h.view(sub))
}

// ListSubmissions returns stored submissions, newest first.
func (h *FilingHandler) ListSubmissions(c *gin.Context) {
	filter := repository.ListFilter{}
	if form := c.Query("form"); form != "" {
		info, err := forms.Lookup(form)
		if err != nil {
			h.respondError(c, err)
			return
		}
		filter.FormType = info.Path
	}
	if state := c.Query("state"); state != "" {
		parsed, err := filing.ParseState(state)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Unknown state."})
			return
		}
		filter.State = parsed
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = min(limit, maxListLimit)
	}

	subs, err := h.Registry.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	views := make([]submissionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, h.view(sub))
	}
	c.JSON(http.StatusOK, gin.H{"submissions": views})
}

// GetSubmission returns one stored submission.
func (h *FilingHandler) GetSubmission(c *gin.Context) {
	_, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.view(sub))
}

// UpdateSubmission replaces the payload of an unfiled submission.
func (h *FilingHandler) UpdateSubmission(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	payload, ok := readPayload(c)
	if !ok {
		return
	}
	updated, err := s.Update(c.Request.Context(), sub.ID, payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(updated))
}

// FileSubmission retries validate and transmit for an InProgress submission.
func (h *FilingHandler) FileSubmission(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	filed, err := s.File(c.Request.Context(), sub.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(filed))
}

// DeleteSubmission cancels a submission before it reaches a terminal state.
func (h *FilingHandler) DeleteSubmission(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.Delete(c.Request.Context(), sub.ID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status fetches the remote status once and applies it.
func (h *FilingHandler) Status(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	updated, err := s.Status(c.Request.Context(), sub.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(updated))
}

// Record returns the remote record as the agency API reports it.
func (h *FilingHandler) Record(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	raw, err := s.Record(c.Request.Context(), sub.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// PDF returns the generated PDF URL.
func (h *FilingHandler) PDF(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	url, err := s.PDF(c.Request.Context(), sub.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pdf_url": url})
}

// StartTracking polls a Filed submission in the background.
func (h *FilingHandler) StartTracking(c *gin.Context) {
	s, sub, ok := h.lookup(c)
	if !ok {
		return
	}
	session, err := s.Track(c.Request.Context(), sub.ID, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":            sub.ID,
		"submission_id": session.SubmissionID(),
		"started_at":    session.StartedAt(),
		"interval":      session.Interval().String(),
	})
}

// StopTracking ends the poll session of a submission.
func (h *FilingHandler) StopTracking(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": h.Registry.Tracker().Stop(id)})
}

func (h *FilingHandler) lookup(c *gin.Context) (*service.RawSubmitter, *filing.FormSubmission, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, nil, false
	}
	s, sub, err := h.Registry.ForSubmission(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, nil, false
	}
	return s, sub, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid submission id."})
		return 0, false
	}
	return id, true
}

func readPayload(c *gin.Context) (json.RawMessage, bool) {
	body, err := c.GetRawData()
	if err != nil || len(strings.TrimSpace(string(body))) == 0 || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Request body must be a JSON document."})
		return nil, false
	}
	return json.RawMessage(body), true
}

func (h *FilingHandler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var remote *taxapi.RemoteError
	switch {
	case errors.Is(err, filing.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Submission not found."})
	case errors.Is(err, filing.ErrUnknownForm):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_form", "error_description": err.Error()})
	case errors.Is(err, filing.ErrSubmissionFinal),
		errors.Is(err, filing.ErrSubmissionLocked),
		errors.Is(err, filing.ErrNotFiled),
		errors.Is(err, filing.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "error_description": err.Error()})
	case errors.Is(err, filing.ErrMissingSubmissionID):
		c.JSON(http.StatusConflict, gin.H{"error": "missing_submission_id", "error_description": "Submission was never created remotely."})
	case errors.Is(err, taxapi.ErrAuthenticationFailed), errors.Is(err, taxapi.ErrUnauthorized):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_unauthorized", "error_description": "Tax API rejected the configured credentials."})
	case errors.Is(err, taxapi.ErrNetwork):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_unavailable", "error_description": "Tax API could not be reached."})
	case errors.As(err, &remote):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": remote.StatusName, "errors": remote.Errors})
	default:
		h.Logger.Error("filing request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
