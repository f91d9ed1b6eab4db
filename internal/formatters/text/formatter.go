// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package text

import (
	"fmt"
	"sort"
	"strings"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/formatters"

	"github.com/fatih/color"
)

// Formatter implements text-based output formatting
type Formatter struct {
	colors map[string]*color.Color
}

// NewFormatter creates a new text formatter
func NewFormatter() *Formatter {
	return &Formatter{
		colors: map[string]*color.Color{
			"green":   color.New(color.FgGreen),
			"yellow":  color.New(color.FgYellow),
			"red":     color.New(color.FgRed),
			"cyan":    color.New(color.FgCyan),
			"magenta": color.New(color.FgMagenta),
			"white":   color.New(color.FgWhite, color.Bold),
		},
	}
}

func (f *Formatter) Name() string {
	return "text"
}

func (f *Formatter) Description() string {
	return "Human-readable summary with colors"
}

func (f *Formatter) FileExtension() string {
	return ".txt"
}

func (f *Formatter) Format(report formatters.Report, options formatters.FormatterOptions) (string, error) {
	// Disable colors if requested
	if options.NoColor {
		color.NoColor = true
	}

	var builder strings.Builder
	stats := report.Result.Stats

	builder.WriteString(f.colors["white"].Sprintf("Anonymization Report\n"))
	builder.WriteString(fmt.Sprintf("Document: %s\n", report.Source))
	if report.Template != "" {
		builder.WriteString(fmt.Sprintf("Template: %s\n", report.Template))
	}
	builder.WriteString("\n")

	builder.WriteString(fmt.Sprintf("Pages processed:   %d\n", stats.TotalPages))
	builder.WriteString(fmt.Sprintf("Zones redacted:    %d\n", stats.ZonesRedacted))
	builder.WriteString(fmt.Sprintf("Entities redacted: %d\n", stats.TotalEntities))
	builder.WriteString(fmt.Sprintf("Dates shifted:     %d\n", stats.DatesShifted))
	if stats.DateMisses > 0 {
		builder.WriteString(f.colors["yellow"].Sprintf("Dates unparsed:    %d (left unchanged)\n", stats.DateMisses))
	}
	if stats.FallbackReferenceData {
		builder.WriteString(f.colors["yellow"].Sprintf("Warning: location detection ran on built-in fallback city list\n"))
	}

	if len(stats.EntityCounts) > 0 {
		builder.WriteString("\nEntities by type:\n")
		types := make([]string, 0, len(stats.EntityCounts))
		for t := range stats.EntityCounts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			builder.WriteString(fmt.Sprintf("  %-22s %d\n", t, stats.EntityCounts[t]))
		}
	}

	for _, pe := range report.Result.PageErrors {
		builder.WriteString(f.colors["red"].Sprintf("Page %d failed: %v\n", pe.Page, pe.Err))
	}

	if options.Verbose {
		f.appendDirectives(&builder, report, options)
	}

	return builder.String(), nil
}

// appendDirectives lists every directive with its page, rule and action.
func (f *Formatter) appendDirectives(builder *strings.Builder, report formatters.Report, options formatters.FormatterOptions) {
	if len(report.Result.Directives) == 0 {
		return
	}
	builder.WriteString("\nDirectives:\n")
	for _, d := range report.Result.Directives {
		switch {
		case d.Entity != nil:
			line := fmt.Sprintf("  page %d  %-22s %s", d.Page, d.Entity.Type, f.actionLabel(d))
			if options.ShowMatch {
				line += fmt.Sprintf("  %q", d.Entity.Text)
			}
			builder.WriteString(line + "\n")
		default:
			builder.WriteString(fmt.Sprintf("  page %d  zone %-16s %s\n", d.Page, d.Zone, f.actionLabel(d)))
		}
	}
}

func (f *Formatter) actionLabel(d detector.Directive) string {
	switch d.Action {
	case detector.ActionBlackout:
		return f.colors["magenta"].Sprint("blackout")
	case detector.ActionReplaceValue:
		return f.colors["cyan"].Sprintf("replace -> %s", d.Replacement)
	default:
		return f.colors["green"].Sprintf("token -> %s", d.Replacement)
	}
}

func init() {
	formatters.Register(NewFormatter())
}
