package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/config"
	httptransport "github.com/smallbiznis/valora-filing/internal/http"
	"github.com/smallbiznis/valora-filing/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-filing/internal/http/middleware"
	"github.com/smallbiznis/valora-filing/internal/poller"
	"github.com/smallbiznis/valora-filing/internal/repository"
	"github.com/smallbiznis/valora-filing/internal/service"
)

type stubUpstream struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
}

func (s *stubUpstream) Request(_ context.Context, method, path string, _, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if err, ok := s.errs[key]; ok {
		return err
	}
	resp, ok := s.responses[key]
	if !ok || out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = json.RawMessage(resp)
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

func (s *stubUpstream) set(key, resp string) {
	s.mu.Lock()
	s.responses[key] = resp
	s.mu.Unlock()
}

type gateway struct {
	upstream *stubUpstream
	router   *gin.Engine
	tracker  *service.Tracker
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	upstream := &stubUpstream{
		responses: map[string]string{
			"POST FormW2/Create":                     `{"StatusCode":200,"SubmissionId":"sub-1","Records":[{"RecordId":"rec-1"}]}`,
			"GET FormW2/Validate?SubmissionId=sub-1": `{"StatusCode":200,"Errors":null}`,
			"GET FormW2/Get?SubmissionId=sub-1":      `{"SubmissionId":"sub-1"}`,
		},
		errs: map[string]error{},
	}
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	tracker := service.NewTracker(
		poller.New(poller.Config{}, poller.WithClock(clockwork.NewFakeClock())),
		zap.NewNop(),
	)
	t.Cleanup(func() { _ = tracker.StopAll(context.Background()) })

	registry := service.NewRegistry(upstream, repository.NewMemorySubmissionRepo(), tracker, node,
		service.WithLogger(zap.NewNop()))
	cfg := config.Config{ServiceName: "valora-filing-test"}
	auth, err := httpmiddleware.NewAuth(cfg)
	require.NoError(t, err)
	router := httptransport.NewRouter(cfg,
		handler.NewFilingHandler(registry, zap.NewNop()),
		auth,
		nil,
		zap.NewNop(),
	)
	return &gateway{upstream: upstream, router: router, tracker: tracker}
}

func (g *gateway) do(method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		dec := json.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
		dec.UseNumber()
		_ = dec.Decode(&out)
	}
	return rec, out
}

func idOf(t *testing.T, body map[string]any) string {
	t.Helper()
	id, ok := body["id"].(json.Number)
	require.True(t, ok, "response carries an id")
	return id.String()
}

func TestSubmitAndFetch(t *testing.T) {
	g := newGateway(t)

	rec, body := g.do(http.MethodPost, "/v1/forms/formw2/submissions", `{"TaxYear":"2025"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "Filed", body["state"])
	require.Equal(t, "sub-1", body["submission_id"])
	require.Equal(t, false, body["tracking"])
	id := idOf(t, body)

	rec, body = g.do(http.MethodGet, "/v1/submissions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "FormW2", body["form_type"])

	rec, body = g.do(http.MethodGet, "/v1/submissions?form=FormW2&state=filed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["submissions"], 1)

	rec, _ = g.do(http.MethodGet, "/v1/submissions/"+id+"/record", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"SubmissionId":"sub-1"}`, rec.Body.String())
}

func TestSubmitValidationFailure(t *testing.T) {
	g := newGateway(t)
	g.upstream.set("GET FormW2/Validate?SubmissionId=sub-1", `{"Errors":[{"Id":"E1","Field":"Employee.SSN","Message":"invalid SSN"}]}`)

	rec, body := g.do(http.MethodPost, "/v1/forms/FormW2/submissions", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Rejected", body["state"])
	require.Len(t, body["validation_errors"], 1)

	rec, body = g.do(http.MethodDelete, "/v1/submissions/"+idOf(t, body), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "invalid_state", body["error"])
}

func TestSubmitErrors(t *testing.T) {
	g := newGateway(t)

	rec, body := g.do(http.MethodPost, "/v1/forms/Form8879/submissions", `{}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "unknown_form", body["error"])

	rec, body = g.do(http.MethodPost, "/v1/forms/FormW2/submissions", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", body["error"])

	g.upstream.mu.Lock()
	g.upstream.errs["POST FormW2/Create"] = &taxapi.RemoteError{
		HTTPStatus: 400,
		StatusName: "BadRequest",
		Errors:     []taxapi.APIError{{ID: "F00-100", Name: "TaxYear", Message: "TaxYear is required"}},
	}
	g.upstream.mu.Unlock()
	rec, body = g.do(http.MethodPost, "/v1/forms/FormW2/submissions", `{}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "upstream_error", body["error"])
	require.Len(t, body["errors"], 1)

	rec, _ = g.do(http.MethodGet, "/v1/submissions/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = g.do(http.MethodGet, "/v1/submissions/42", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackingRoutes(t *testing.T) {
	g := newGateway(t)

	rec, body := g.do(http.MethodPost, "/v1/forms/FormW2/submissions?track=true", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, body["tracking"])
	id := idOf(t, body)
	require.Equal(t, 1, g.tracker.Active())

	rec, body = g.do(http.MethodDelete, "/v1/submissions/"+id+"/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["stopped"])
	require.Eventually(t, func() bool { return g.tracker.Active() == 0 }, time.Second, 10*time.Millisecond)

	rec, body = g.do(http.MethodPost, "/v1/submissions/"+id+"/track", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "sub-1", body["submission_id"])

	rec, body = g.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, json.Number("1"), body["tracking"])

	rec, _ = g.do(http.MethodDelete, "/v1/submissions/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 0, g.tracker.Active())
}

func TestListForms(t *testing.T) {
	g := newGateway(t)
	rec, body := g.do(http.MethodGet, "/v1/forms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body["forms"])
}
