// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdfapply

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/engine"
	"redact-clinical/internal/observability"
)

func TestApplyTextSubstitutesSpans(t *testing.T) {
	doc := &engine.Document{Pages: []engine.Page{
		{Number: 1, Text: "Der Patient aus Darmstadt, aufgenommen am 05.11.2023."},
	}}
	directives := []detector.Directive{
		{
			Page:        1,
			Span:        detector.Span{Start: 16, End: 25}, // Darmstadt
			Action:      detector.ActionReplaceToken,
			Replacement: "[ORT]",
		},
		{
			Page:        1,
			Span:        detector.Span{Start: 42, End: 52}, // 05.11.2023
			Action:      detector.ActionReplaceValue,
			Replacement: "30.11.2023",
		},
	}

	got := ApplyText(doc, directives)
	if len(got) != 1 {
		t.Fatalf("got %d pages, want 1", len(got))
	}
	want := "Der Patient aus [ORT], aufgenommen am 30.11.2023."
	if got[0] != want {
		t.Errorf("ApplyText = %q, want %q", got[0], want)
	}
}

func TestApplyTextBlackoutAndSpanlessDirectives(t *testing.T) {
	doc := &engine.Document{Pages: []engine.Page{
		{Number: 1, Text: "Kontostand: 1234 EUR"},
	}}
	directives := []detector.Directive{
		// Full-zone blackout without a span must not alter text.
		{Page: 1, Zone: "header", Action: detector.ActionBlackout},
		{Page: 1, Span: detector.Span{Start: 12, End: 16}, Action: detector.ActionBlackout},
	}

	got := ApplyText(doc, directives)
	want := "Kontostand: ███ EUR"
	if got[0] != want {
		t.Errorf("ApplyText = %q, want %q", got[0], want)
	}
}

func TestBlackoutAnnotationsCoverRegionDirectives(t *testing.T) {
	directives := []detector.Directive{
		{
			Page:      1,
			Region:    detector.Region{X0: 0, Y0: 750, X1: 595, Y1: 842},
			HasRegion: true,
			Action:    detector.ActionBlackout,
		},
		{
			// Replacement directives are covered too: the PDF cannot carry
			// the substituted value in place.
			Page:        1,
			Span:        detector.Span{Start: 5, End: 15},
			Region:      detector.Region{X0: 120, Y0: 400, X1: 260, Y1: 412},
			HasRegion:   true,
			Action:      detector.ActionReplaceValue,
			Replacement: "30.11.2023",
		},
		{
			// Span-only directive (plain text input): nothing to draw.
			Page:   2,
			Span:   detector.Span{Start: 0, End: 4},
			Action: detector.ActionReplaceToken,
		},
	}

	annotations := blackoutAnnotations(directives)
	if len(annotations[1]) != 2 {
		t.Fatalf("page 1 got %d annotations, want 2", len(annotations[1]))
	}
	if len(annotations[2]) != 0 {
		t.Errorf("page 2 got %d annotations for a region-less directive, want 0", len(annotations[2]))
	}
	if got := annotations[1][0].RectString(); got == "" {
		t.Error("annotation rectangle is empty")
	}
}

func TestApplyRecordsFailureOnError(t *testing.T) {
	var buf bytes.Buffer
	observer := observability.NewObserver(observability.LevelDebug, &buf)
	r := NewRedactor(observer)

	doc := &engine.Document{Source: filepath.Join(t.TempDir(), "missing.pdf")}
	err := r.Apply(doc, &engine.Result{}, filepath.Join(t.TempDir(), "out.pdf"))
	if err == nil {
		t.Fatal("Apply succeeded on a missing source file")
	}
	record := buf.String()
	if !strings.Contains(record, `"success":false`) {
		t.Errorf("timing record does not mark the failed apply: %s", record)
	}
	if !strings.Contains(record, `"error"`) {
		t.Errorf("timing record carries no error detail: %s", record)
	}
}

func TestApplyTextIgnoresOtherPages(t *testing.T) {
	doc := &engine.Document{Pages: []engine.Page{
		{Number: 1, Text: "Seite eins"},
		{Number: 2, Text: "Seite zwei"},
	}}
	directives := []detector.Directive{
		{Page: 2, Span: detector.Span{Start: 6, End: 10}, Action: detector.ActionReplaceToken, Replacement: "[X]"},
	}

	got := ApplyText(doc, directives)
	if got[0] != "Seite eins" {
		t.Errorf("page 1 changed: %q", got[0])
	}
	if got[1] != "Seite [X]" {
		t.Errorf("page 2 = %q, want %q", got[1], "Seite [X]")
	}
}
