package forms_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/forms"
)

type call struct {
	method string
	path   string
	body   json.RawMessage
}

type fakeRequester struct {
	responses map[string]string
	err       error
	calls     []call
}

func (f *fakeRequester) Request(_ context.Context, method, path string, body, out any) error {
	c := call{method: method, path: path}
	if body != nil {
		switch v := body.(type) {
		case json.RawMessage:
			c.body = v
		default:
			raw, err := json.Marshal(body)
			if err != nil {
				return err
			}
			c.body = raw
		}
	}
	f.calls = append(f.calls, c)
	if f.err != nil {
		return f.err
	}
	resp, ok := f.responses[method+" "+path]
	if !ok || out == nil {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = json.RawMessage(resp)
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

type w2Payload struct {
	TaxYear  string `json:"TaxYear"`
	Employer string `json:"Employer"`
}

func TestCreateTakesFirstRecord(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"POST FormW2/Create": `{"StatusCode":200,"SubmissionId":"sub-1","Records":[{"RecordId":"rec-1","Status":"CREATED"},{"RecordId":"rec-2"}]}`,
	}}
	svc := forms.New[w2Payload](fake, forms.FormW2)

	out, err := svc.Create(context.Background(), w2Payload{TaxYear: "2025", Employer: "Acme"})
	require.NoError(t, err)
	require.Equal(t, "sub-1", out.SubmissionID)
	require.Equal(t, "rec-1", out.RecordID)
	require.Equal(t, []string{"rec-1", "rec-2"}, out.RecordIDs)
	require.JSONEq(t, `{"TaxYear":"2025","Employer":"Acme"}`, string(fake.calls[0].body))
}

func TestCreateWithoutRecords(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"POST FormW2/Create": `{"StatusCode":200,"SubmissionId":"sub-1","Records":null}`,
	}}
	out, err := forms.New[w2Payload](fake, forms.FormW2).Create(context.Background(), w2Payload{})
	require.NoError(t, err)
	require.Equal(t, "", out.RecordID)
	require.NotNil(t, out.RecordIDs)
	require.Empty(t, out.RecordIDs)
}

func TestValidateNormalizesErrors(t *testing.T) {
	for _, body := range []string{`{"StatusCode":200,"Errors":null}`, `{"StatusCode":200,"Errors":[]}`, `{"StatusCode":200}`} {
		fake := &fakeRequester{responses: map[string]string{
			"GET Form1099NEC/Validate?SubmissionId=sub-1": body,
		}}
		errs, err := forms.New[w2Payload](fake, forms.Form1099NEC).Validate(context.Background(), "sub-1")
		require.NoError(t, err)
		require.NotNil(t, errs, body)
		require.Empty(t, errs, body)
	}

	fake := &fakeRequester{responses: map[string]string{
		"GET Form1099NEC/Validate?SubmissionId=sub-1": `{"Errors":[{"Id":"E1","Field":"Payer.TIN","Message":"invalid TIN","Code":"F1099-101"},{"Message":"missing state"}]}`,
	}}
	errs, err := forms.New[w2Payload](fake, forms.Form1099NEC).Validate(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	require.Equal(t, filing.ValidationError{ID: "E1", Field: "Payer.TIN", Message: "invalid TIN", Code: "F1099-101"}, errs[0])
	require.NotEmpty(t, errs[1].ID)
	require.Equal(t, "missing state", errs[1].Message)
}

func TestGetStatusDefaults(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"GET FormW2/Status?SubmissionId=empty": `{"StatusCode":200,"Records":[]}`,
		"GET FormW2/Status?SubmissionId=done":  `{"StatusCode":200,"Records":[{"RecordId":"r","Status":"TRANSMITTED","AcknowledgementStatus":"Rejected","IRSErrors":[{"ErrorCode":"X-1","ErrorMessage":"duplicate"}]}]}`,
	}}
	svc := forms.New[w2Payload](fake, forms.FormW2)

	empty, err := svc.GetStatus(context.Background(), "empty")
	require.NoError(t, err)
	require.Equal(t, "Unknown", empty.Status)
	require.Equal(t, "Pending", empty.AcknowledgementStatus)
	require.NotNil(t, empty.IRSErrors)
	require.False(t, empty.IsTerminal())

	done, err := svc.GetStatus(context.Background(), "done")
	require.NoError(t, err)
	require.Equal(t, "TRANSMITTED", done.Status)
	require.True(t, done.IsRejected())
	require.Equal(t, []filing.IRSError{{Code: "X-1", Message: "duplicate"}}, done.IRSErrors)
}

func TestListDefaults(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"GET Form941/List?Page=1&PageSize=10": `{"StatusCode":200,"Records":null,"TotalRecords":0}`,
		"GET Form941/List?Page=2&PageSize=5":  `{"Records":[{"SubmissionId":"a"}],"TotalRecords":6,"Page":2,"PageSize":5,"TotalPages":2}`,
	}}
	svc := forms.New[json.RawMessage](fake, forms.Form941)

	first, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.NotNil(t, first.Records)
	require.Empty(t, first.Records)
	require.Equal(t, 1, first.Page)
	require.Equal(t, 10, first.PageSize)

	second, err := svc.List(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	require.Equal(t, 6, second.TotalRecords)
	require.Equal(t, 2, second.TotalPages)
}

func TestUpdateMergesSubmissionID(t *testing.T) {
	fake := &fakeRequester{}
	svc := forms.New[w2Payload](fake, forms.FormW2)

	require.NoError(t, svc.Update(context.Background(), "sub-9", w2Payload{TaxYear: "2025"}))
	require.Equal(t, http.MethodPut, fake.calls[0].method)
	require.Equal(t, "FormW2/Update", fake.calls[0].path)
	require.JSONEq(t, `{"TaxYear":"2025","Employer":"","SubmissionId":"sub-9"}`, string(fake.calls[0].body))
}

func TestTransmitSendsAllRecords(t *testing.T) {
	fake := &fakeRequester{}
	svc := forms.New[w2Payload](fake, forms.FormW2)

	require.NoError(t, svc.Transmit(context.Background(), "sub-1", []string{"r1", "r2", "r3"}))
	require.Equal(t, "FormW2/Transmit", fake.calls[0].path)
	require.JSONEq(t, `{"SubmissionId":"sub-1","RecordIds":["r1","r2","r3"]}`, string(fake.calls[0].body))

	require.NoError(t, svc.Transmit(context.Background(), "sub-1", nil))
	require.JSONEq(t, `{"SubmissionId":"sub-1","RecordIds":[]}`, string(fake.calls[1].body))
}

func TestGetDeleteAndPDF(t *testing.T) {
	fake := &fakeRequester{responses: map[string]string{
		"GET Form1095C/Get?SubmissionId=s":           `{"SubmissionId":"s","Employer":{"Name":"Acme"}}`,
		"GET Form1095C/RequestPDFURL?SubmissionId=s": `{"StatusCode":200,"PDFURL":"https://files/s.pdf"}`,
	}}
	svc := forms.New[json.RawMessage](fake, forms.Form1095C)

	raw, err := svc.Get(context.Background(), "s")
	require.NoError(t, err)
	require.JSONEq(t, `{"SubmissionId":"s","Employer":{"Name":"Acme"}}`, string(raw))

	pdf, err := svc.GetPDF(context.Background(), "s")
	require.NoError(t, err)
	require.Equal(t, "https://files/s.pdf", pdf)

	require.NoError(t, svc.Delete(context.Background(), "s"))
	require.Equal(t, http.MethodDelete, fake.calls[2].method)
	require.Equal(t, "Form1095C/Delete?SubmissionId=s", fake.calls[2].path)
}

func TestOperationsRequireSubmissionID(t *testing.T) {
	svc := forms.New[w2Payload](&fakeRequester{}, forms.FormW2)
	ctx := context.Background()

	_, err := svc.Validate(ctx, " ")
	require.ErrorIs(t, err, filing.ErrMissingSubmissionID)
	require.ErrorIs(t, svc.Transmit(ctx, "", nil), filing.ErrMissingSubmissionID)
	_, err = svc.GetStatus(ctx, "")
	require.ErrorIs(t, err, filing.ErrMissingSubmissionID)
	require.ErrorIs(t, svc.Delete(ctx, ""), filing.ErrMissingSubmissionID)
}

func TestErrorsPropagateUnchanged(t *testing.T) {
	remote := &taxapi.RemoteError{HTTPStatus: 500, StatusName: "InternalServerError"}
	svc := forms.New[w2Payload](&fakeRequester{err: remote}, forms.FormW2)

	_, err := svc.GetStatus(context.Background(), "sub")
	var got *taxapi.RemoteError
	require.True(t, errors.As(err, &got))
	require.Same(t, remote, got)
}

func TestLookup(t *testing.T) {
	info, err := forms.Lookup("form1099nec")
	require.NoError(t, err)
	require.Equal(t, forms.Form1099NEC, info.Path)

	_, err = forms.Lookup("Form8879")
	require.ErrorIs(t, err, filing.ErrUnknownForm)
	require.GreaterOrEqual(t, len(forms.KnownForms()), 13)
}
