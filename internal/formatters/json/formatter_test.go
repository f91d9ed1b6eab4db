// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package json

import (
	stdjson "encoding/json"
	"strings"
	"testing"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/engine"
	"redact-clinical/internal/formatters"
)

func testReport() formatters.Report {
	stats := detector.NewStatistics()
	stats.TotalPages = 2
	stats.CountEntity("CITY")
	stats.DatesShifted = 1
	return formatters.Report{
		Source:   "brief.pdf",
		Template: "arztbrief_v2",
		Result: &engine.Result{
			Directives: []detector.Directive{
				{
					Page:        1,
					Entity:      &detector.Entity{Text: "Darmstadt", Type: "CITY"},
					Action:      detector.ActionReplaceToken,
					Replacement: "[ORT]",
				},
			},
			Stats:     stats,
			ShiftDays: 17,
		},
	}
}

func TestFormatProducesValidJSON(t *testing.T) {
	out, err := NewFormatter().Format(testReport(), formatters.FormatterOptions{})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	var decoded map[string]any
	if err := stdjson.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["source"] != "brief.pdf" {
		t.Errorf("source = %v", decoded["source"])
	}
	if decoded["shift_days"] != float64(17) {
		t.Errorf("shift_days = %v", decoded["shift_days"])
	}
	// Directives only appear in verbose mode.
	if _, present := decoded["directives"]; present {
		t.Error("directives present without verbose")
	}
}

func TestVerboseHidesMatchedTextByDefault(t *testing.T) {
	out, err := NewFormatter().Format(testReport(), formatters.FormatterOptions{Verbose: true})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if strings.Contains(out, "Darmstadt") {
		t.Error("report leaks the redacted text without ShowMatch")
	}
	if !strings.Contains(out, "[ORT]") {
		t.Error("replacement token missing from verbose report")
	}

	out, err = NewFormatter().Format(testReport(), formatters.FormatterOptions{Verbose: true, ShowMatch: true})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(out, "Darmstadt") {
		t.Error("ShowMatch must include the original text")
	}
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	if _, ok := formatters.Get("json"); !ok {
		t.Error("json formatter not registered")
	}
}
