// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pdfapply renders an engine result onto a copy of the source PDF
// using pdfcpu, and writes a companion redacted text file. Region-bearing
// directives become opaque black square annotations covering the affected
// area. That is a visual cover: the original text objects stay in the
// content stream underneath, so the companion text file (and not the PDF)
// is the surface from which redacted values are truly absent. The engine
// computes all directives up front; this package only applies them.
package pdfapply

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/engine"
	"redact-clinical/internal/observability"
)

// Redactor applies computed directives to a PDF file.
type Redactor struct {
	observer  *observability.Observer
	pdfConfig *model.Configuration
}

// NewRedactor creates a redactor with the default pdfcpu configuration.
func NewRedactor(observer *observability.Observer) *Redactor {
	return &Redactor{
		observer:  observer,
		pdfConfig: model.NewDefaultConfiguration(),
	}
}

// Apply writes the anonymized PDF to outputPath and a companion
// "<output>_redacted.txt" with the fully redacted page text. The original
// file is never modified. Every directive carrying a region is covered
// with a black box, replacements included: the PDF surface cannot carry
// the substituted value in place, so covering is the safe rendering and
// the companion text holds the replacement. preserve_logos consequently
// has no effect on the box cover, only on the text rendition.
func (r *Redactor) Apply(doc *engine.Document, result *engine.Result, outputPath string) (err error) {
	if r.observer != nil {
		finish := r.observer.StartTiming("pdf_apply", "apply")
		defer func() {
			meta := map[string]any{"directives": len(result.Directives)}
			if err != nil {
				meta["error"] = err.Error()
			}
			finish(err == nil, meta)
		}()
	}

	if err = api.ValidateFile(doc.Source, r.pdfConfig); err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}

	if err = copyFile(doc.Source, outputPath); err != nil {
		return fmt.Errorf("failed to copy PDF: %w", err)
	}

	annotations := blackoutAnnotations(result.Directives)
	if len(annotations) > 0 {
		if err = api.AddAnnotationsMapFile(outputPath, "", annotations, r.pdfConfig, false); err != nil {
			return fmt.Errorf("failed to add redaction boxes: %w", err)
		}
	} else {
		// Nothing to draw; still round-trip through pdfcpu so the output
		// is a normalized, valid PDF.
		ctx, rerr := api.ReadContextFile(outputPath)
		if rerr != nil {
			err = fmt.Errorf("failed to read PDF context: %w", rerr)
			return err
		}
		if err = api.WriteContextFile(ctx, outputPath); err != nil {
			return fmt.Errorf("failed to write PDF context: %w", err)
		}
	}

	redacted := ApplyText(doc, result.Directives)
	textPath := strings.TrimSuffix(outputPath, ".pdf") + "_redacted.txt"
	if err = os.WriteFile(textPath, []byte(strings.Join(redacted, "\n\f\n")), 0600); err != nil {
		return fmt.Errorf("failed to write redacted text: %w", err)
	}
	return nil
}

// blackoutAnnotations builds one opaque square annotation per
// region-bearing directive, keyed by page.
func blackoutAnnotations(directives []detector.Directive) map[int][]model.AnnotationRenderer {
	annotations := make(map[int][]model.AnnotationRenderer)
	for _, d := range directives {
		if !d.HasRegion {
			continue
		}
		black := color.Black
		ann := model.NewSquareAnnotation(
			*types.NewRectangle(d.Region.X0, d.Region.Y0, d.Region.X1, d.Region.Y1),
			0,        // apObjNr
			"", "",   // contents, id
			"",       // modDate
			0,        // flags
			&black,   // border color
			"",       // title
			nil,      // popup
			nil,      // opacity
			"", "",   // rich content, subject
			&black,   // fill color
			0, 0, 0, 0,
			0, model.BSSolid,
			false, 0,
		)
		annotations[d.Page] = append(annotations[d.Page], ann)
	}
	return annotations
}

// blackoutMark replaces blacked-out spans in the text rendition.
const blackoutMark = "█"

// ApplyText renders the directives into per-page redacted text. Pure
// function of its inputs; the PDF itself is untouched. Directives without
// a span (full-zone blackouts) do not alter text, their zones were already
// excluded from extraction and are covered graphically.
func ApplyText(doc *engine.Document, directives []detector.Directive) []string {
	byPage := make(map[int][]detector.Directive)
	for _, d := range directives {
		if d.Span.End > d.Span.Start {
			byPage[d.Page] = append(byPage[d.Page], d)
		}
	}

	out := make([]string, len(doc.Pages))
	for i, page := range doc.Pages {
		out[i] = applyPageText(page.Text, byPage[page.Number])
	}
	return out
}

// applyPageText substitutes spans back to front so earlier offsets stay
// valid while editing.
func applyPageText(text string, directives []detector.Directive) string {
	sort.Slice(directives, func(i, j int) bool {
		return directives[i].Span.Start > directives[j].Span.Start
	})

	for _, d := range directives {
		if d.Span.End > len(text) {
			continue
		}
		var replacement string
		switch d.Action {
		case detector.ActionBlackout:
			replacement = strings.Repeat(blackoutMark, 3)
		default:
			replacement = d.Replacement
		}
		text = text[:d.Span.Start] + replacement + text[d.Span.End:]
	}
	return text
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
