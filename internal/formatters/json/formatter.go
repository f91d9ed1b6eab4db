// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package json

import (
	"encoding/json"
	"fmt"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/formatters"
)

// Formatter implements JSON output formatting
type Formatter struct{}

// NewFormatter creates a new JSON formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Name() string {
	return "json"
}

func (f *Formatter) Description() string {
	return "Structured JSON output for programmatic consumption"
}

func (f *Formatter) FileExtension() string {
	return ".json"
}

// output is the stable wire shape of a report. Directives are omitted
// unless verbose output is requested; statistics are always present.
type output struct {
	Source     string               `json:"source"`
	Template   string               `json:"template,omitempty"`
	ShiftDays  int                  `json:"shift_days"`
	Statistics detector.Statistics  `json:"statistics"`
	PageErrors []pageError          `json:"page_errors,omitempty"`
	Directives []detector.Directive `json:"directives,omitempty"`
}

type pageError struct {
	Page  int    `json:"page"`
	Error string `json:"error"`
}

func (f *Formatter) Format(report formatters.Report, options formatters.FormatterOptions) (string, error) {
	out := output{
		Source:     report.Source,
		Template:   report.Template,
		ShiftDays:  report.Result.ShiftDays,
		Statistics: report.Result.Stats,
	}
	for _, pe := range report.Result.PageErrors {
		out.PageErrors = append(out.PageErrors, pageError{Page: pe.Page, Error: pe.Err.Error()})
	}
	if options.Verbose {
		out.Directives = report.Result.Directives
		if !options.ShowMatch {
			out.Directives = redactMatchText(out.Directives)
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

func init() {
	formatters.Register(NewFormatter())
}

// redactMatchText strips the original entity text from the serialized
// directives so the report itself never leaks the data it redacted.
func redactMatchText(directives []detector.Directive) []detector.Directive {
	out := make([]detector.Directive, len(directives))
	for i, d := range directives {
		out[i] = d
		if d.Entity != nil {
			e := *d.Entity
			e.Text = ""
			out[i].Entity = &e
		}
	}
	return out
}
