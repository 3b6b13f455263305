package forms

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

// Form path segments understood by the TaxBandits API.
const (
	FormW2       = "FormW2"
	FormW2C      = "FormW2C"
	Form1099NEC  = "Form1099NEC"
	Form1099MISC = "Form1099MISC"
	Form1099INT  = "Form1099INT"
	Form1099DIV  = "Form1099DIV"
	Form1099K    = "Form1099K"
	Form1099R    = "Form1099R"
	Form1099S    = "Form1099S"
	Form941      = "Form941"
	Form940      = "Form940"
	Form944      = "Form944"
	Form1095B    = "Form1095B"
	Form1095C    = "Form1095C"
)

// FormInfo describes one supported form type.
type FormInfo struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

var knownForms = []FormInfo{
	{Path: FormW2, DisplayName: "W-2", Description: "Wage and Tax Statement"},
	{Path: FormW2C, DisplayName: "W-2C", Description: "Corrected Wage and Tax Statement"},
	{Path: Form1099NEC, DisplayName: "1099-NEC", Description: "Nonemployee Compensation"},
	{Path: Form1099MISC, DisplayName: "1099-MISC", Description: "Miscellaneous Information"},
	{Path: Form1099INT, DisplayName: "1099-INT", Description: "Interest Income"},
	{Path: Form1099DIV, DisplayName: "1099-DIV", Description: "Dividends and Distributions"},
	{Path: Form1099K, DisplayName: "1099-K", Description: "Payment Card and Third Party Network Transactions"},
	{Path: Form1099R, DisplayName: "1099-R", Description: "Distributions From Pensions, Annuities, Retirement Plans"},
	{Path: Form1099S, DisplayName: "1099-S", Description: "Proceeds From Real Estate Transactions"},
	{Path: Form941, DisplayName: "941", Description: "Employer's Quarterly Federal Tax Return"},
	{Path: Form940, DisplayName: "940", Description: "Employer's Annual Federal Unemployment Tax Return"},
	{Path: Form944, DisplayName: "944", Description: "Employer's Annual Federal Tax Return"},
	{Path: Form1095B, DisplayName: "1095-B", Description: "Health Coverage"},
	{Path: Form1095C, DisplayName: "1095-C", Description: "Employer-Provided Health Insurance Offer and Coverage"},
}

// KnownForms lists every supported form type.
func KnownForms() []FormInfo {
	return append([]FormInfo(nil), knownForms...)
}

// Lookup resolves a form path case-insensitively, so "form1099nec" maps to Form1099NEC.
func Lookup(path string) (FormInfo, error) {
	trimmed := strings.TrimSpace(path)
	for _, f := range knownForms {
		if strings.EqualFold(f.Path, trimmed) {
			return f, nil
		}
	}
	return FormInfo{}, fmt.Errorf("form %q: %w", path, filing.ErrUnknownForm)
}
