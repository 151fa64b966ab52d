// Package report renders search outcomes and validation reports for humans
// and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/FranksOps/websearch/internal/pipeline"
	"github.com/FranksOps/websearch/internal/validate"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value to a Format. Empty selects text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// Encode writes v as JSON or YAML. Text is not a generic encoding.
func Encode(w io.Writer, v any, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("report: json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("report: yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("report: cannot encode as %q", f)
	}
}

const outcomeTmpl = `Search: {{.Topic}}
{{- if .Error}}
Error:  {{.Error}}
{{- end}}
Found {{.Count}} result(s) in {{printf "%.2f" .SearchTimeSeconds}}s{{with .Strategy}} via {{.}}{{end}}
{{range $i, $r := .Results}}
{{inc $i}}. {{$r.Title}}
   {{$r.URL}}
{{- with $r.Snippet}}
   {{.}}
{{- end}}
{{end}}`

var funcs = template.FuncMap{"inc": func(i int) int { return i + 1 }}

// WriteOutcome renders one search outcome.
func WriteOutcome(w io.Writer, out pipeline.Outcome, f Format) error {
	if f != FormatText {
		return Encode(w, out, f)
	}
	t, err := template.New("outcome").Funcs(funcs).Parse(outcomeTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := t.Execute(w, out); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// Summary aggregates validation reports.
type Summary struct {
	Topics       int `json:"topics" yaml:"topics"`
	Passed       int `json:"passed" yaml:"passed"`
	Failed       int `json:"failed" yaml:"failed"`
	TotalResults int `json:"total_results" yaml:"total_results"`
	ValidResults int `json:"valid_results" yaml:"valid_results"`
	Errors       int `json:"errors" yaml:"errors"`
	Warnings     int `json:"warnings" yaml:"warnings"`
}

// Summarize totals reports.
func Summarize(reports []validate.Report) Summary {
	var s Summary
	for _, r := range reports {
		s.Topics++
		if r.Success {
			s.Passed++
		} else {
			s.Failed++
		}
		s.TotalResults += r.ResultCount
		s.ValidResults += r.ValidResults
		s.Errors += len(r.Errors)
		s.Warnings += len(r.Warnings)
	}
	return s
}

// maxListed caps the errors and warnings printed per topic.
const maxListed = 3

type validationView struct {
	Reports []validate.Report
	Summary Summary
}

const validationTmpl = `Validation Summary
------------------
{{- range .Reports}}
Topic '{{.Topic}}': {{if .Success}}PASSED{{else}}FAILED{{end}} - {{.ValidResults}}/{{.ResultCount}} valid results
{{- if .Errors}}
  Errors: {{len .Errors}}
{{- range head .Errors}}
    - {{.}}
{{- end}}
{{- end}}
{{- if .Warnings}}
  Warnings: {{len .Warnings}}
{{- range head .Warnings}}
    - {{.}}
{{- end}}
{{- end}}
{{- end}}

Passed: {{.Summary.Passed}}/{{.Summary.Topics}}
`

// WriteValidation renders validation reports. Text shows at most three
// errors and warnings per topic; JSON and YAML include everything.
func WriteValidation(w io.Writer, reports []validate.Report, f Format) error {
	if f != FormatText {
		return Encode(w, reports, f)
	}
	t, err := template.New("validation").Funcs(template.FuncMap{
		"head": func(s []string) []string { return s[:min(len(s), maxListed)] },
	}).Parse(validationTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := t.Execute(w, validationView{Reports: reports, Summary: Summarize(reports)}); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteValidationFile saves reports as indented JSON at path.
func WriteValidationFile(path string, reports []validate.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := Encode(f, reports, FormatJSON); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
