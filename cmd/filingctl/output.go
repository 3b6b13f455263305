package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/forms"
)

const previewWidth = 60

func newTable(w io.Writer, markdown bool) *tablewriter.Table {
	if markdown {
		return tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewMarkdown()))
	}
	return tablewriter.NewTable(w)
}

func renderForms(w io.Writer, markdown bool, infos []forms.FormInfo) error {
	table := newTable(w, markdown)
	table.Header("Form", "Name", "Description")
	for _, info := range infos {
		if err := table.Append(info.Path, info.DisplayName, info.Description); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderSubmission(w io.Writer, markdown bool, sub *filing.FormSubmission) error {
	table := newTable(w, markdown)
	table.Header("ID", "Form", "Submission", "Records", "State")
	if err := table.Append(
		strconv.FormatInt(sub.ID, 10),
		sub.FormType,
		sub.SubmissionID,
		strings.Join(sub.RecordIDs, ","),
		string(sub.State),
	); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if len(sub.ValidationErrors) > 0 {
		return renderValidation(w, markdown, sub.ValidationErrors)
	}
	return nil
}

func renderValidation(w io.Writer, markdown bool, problems []filing.ValidationError) error {
	table := newTable(w, markdown)
	table.Header("Code", "Field", "Message")
	for _, p := range problems {
		if err := table.Append(p.Code, p.Field, p.Message); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderStatus(w io.Writer, markdown bool, result filing.StatusResult) error {
	table := newTable(w, markdown)
	table.Header("Status", "Acknowledgement", "IRS Errors")
	irs := make([]string, 0, len(result.IRSErrors))
	for _, e := range result.IRSErrors {
		irs = append(irs, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	if err := table.Append(result.Status, result.AcknowledgementStatus, strings.Join(irs, "; ")); err != nil {
		return err
	}
	return table.Render()
}

func renderList(w io.Writer, markdown bool, result filing.ListResult[json.RawMessage]) error {
	table := newTable(w, markdown)
	table.Header("Submission", "Record")
	for _, raw := range result.Records {
		if err := table.Append(submissionIDOf(raw), preview(raw)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d of %d (%d records)\n", result.Page, result.TotalPages, result.TotalRecords)
	return err
}

func submissionIDOf(raw json.RawMessage) string {
	node, err := sonic.Get(raw, "SubmissionId")
	if err != nil {
		return ""
	}
	id, err := node.String()
	if err != nil {
		return ""
	}
	return id
}

func preview(raw json.RawMessage) string {
	s := strings.Join(strings.Fields(string(raw)), " ")
	if len(s) > previewWidth {
		return s[:previewWidth-3] + "..."
	}
	return s
}
