// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"redact-clinical/internal/engine"
	"redact-clinical/internal/imagemeta"
	"redact-clinical/internal/observability"
	"redact-clinical/internal/preprocessors/pdftext"
	"redact-clinical/internal/redactors/pdfapply"
	"redact-clinical/internal/template"

	"redact-clinical/internal/formatters"
	_ "redact-clinical/internal/formatters/json"
	_ "redact-clinical/internal/formatters/text"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// cliFlags holds command line flag values
type cliFlags struct {
	templatePath string
	inputPath    string
	outputPath   string
	format       string
	shiftDays    string
	refYear      int
	workers      int
	verbose      bool
	debug        bool
	noColor      bool
	showMatch    bool
	listFormats  bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.templatePath, "template", "", "Path to the anonymization template (YAML or JSON)")
	flag.StringVar(&f.inputPath, "file", "", "Input document (PDF, image, or plain text)")
	flag.StringVar(&f.outputPath, "out", "", "Output path for the anonymized document (PDF input only)")
	flag.StringVar(&f.format, "format", "text", "Report format (text, json)")
	flag.StringVar(&f.shiftDays, "shift-days", "", "Fixed day offset for date shifting (default: random from template range)")
	flag.IntVar(&f.refYear, "reference-year", 0, "Year assumed for dates without an explicit year")
	flag.IntVar(&f.workers, "workers", 0, "Page processing parallelism (default: number of CPUs)")
	flag.BoolVar(&f.verbose, "verbose", false, "Include per-directive detail in the report")
	flag.BoolVar(&f.debug, "debug", false, "Emit operation timing records to stderr")
	flag.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&f.showMatch, "show-match", false, "Include the original matched text in the report")
	flag.BoolVar(&f.listFormats, "list-formats", false, "List available report formats and exit")
	flag.Parse()
	return f
}

func main() {
	flags := parseFlags()

	if flags.listFormats {
		fmt.Println(strings.Join(formatters.List(), "\n"))
		return
	}

	// Colors only make sense on a terminal.
	if flags.noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	if flags.templatePath == "" || flags.inputPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -template and -file are required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *cliFlags) error {
	observer := newObserver(flags)

	data, err := os.ReadFile(flags.templatePath)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	tmpl, err := template.Load(data, flags.templatePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch ext := strings.ToLower(filepath.Ext(flags.inputPath)); ext {
	case ".jpg", ".jpeg", ".tif", ".tiff", ".png":
		return runImageScan(flags, tmpl)
	default:
		return runDocument(ctx, flags, tmpl, observer, ext == ".pdf")
	}
}

func newObserver(flags *cliFlags) *observability.Observer {
	level := observability.LevelOff
	if flags.debug {
		level = observability.LevelDebug
	}
	return observability.NewObserver(level, os.Stderr)
}

// runDocument processes a PDF or plain-text document end to end.
func runDocument(ctx context.Context, flags *cliFlags, tmpl *template.Template, observer *observability.Observer, isPDF bool) error {
	doc, err := loadDocument(flags.inputPath, isPDF)
	if err != nil {
		return err
	}

	opts := engine.Options{
		Observer:      observer,
		Workers:       flags.workers,
		ReferenceYear: flags.refYear,
	}
	if flags.shiftDays != "" {
		n, err := strconv.Atoi(flags.shiftDays)
		if err != nil {
			return fmt.Errorf("invalid -shift-days value %q", flags.shiftDays)
		}
		opts.ShiftDays = &n
	}

	eng, err := engine.New(tmpl, opts)
	if err != nil {
		return err
	}
	result, err := eng.ProcessDocument(ctx, doc)
	if err != nil {
		return err
	}

	if flags.outputPath != "" && isPDF {
		redactor := pdfapply.NewRedactor(observer)
		if err := redactor.Apply(doc, result, flags.outputPath); err != nil {
			return err
		}
	}

	// Embedded scans and photos can leak PII through their metadata even
	// when the text layer is clean. A failed scan is a warning, not an
	// error; the text report above still stands.
	if isPDF && len(tmpl.ImagePatterns) > 0 {
		findings, err := imagemeta.ScanPDF(flags.inputPath, tmpl.ImagePatterns)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: embedded image scan failed: %v\n", err)
		} else {
			printImageFindings(flags, flags.inputPath, findings)
		}
	}

	report := formatters.Report{
		Source:   flags.inputPath,
		Template: tmpl.Name,
		Result:   result,
	}
	out, err := formatters.Export(flags.format, report, formatters.FormatterOptions{
		Verbose:   flags.verbose,
		NoColor:   flags.noColor,
		ShowMatch: flags.showMatch,
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// loadDocument builds the engine input. Plain text input becomes one page
// per form feed, with no coordinate boxes.
func loadDocument(path string, isPDF bool) (*engine.Document, error) {
	if isPDF {
		return pdftext.ExtractDocument(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	doc := &engine.Document{Source: path}
	for i, pageText := range strings.Split(string(data), "\f") {
		doc.Pages = append(doc.Pages, engine.Page{Number: i + 1, Text: pageText})
	}
	return doc, nil
}

// runImageScan checks an image file's metadata against the template's
// image patterns and reports what would leak.
func runImageScan(flags *cliFlags, tmpl *template.Template) error {
	f, err := os.Open(flags.inputPath)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	findings, err := imagemeta.Scan(f, tmpl.ImagePatterns)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Println("No image metadata matched the configured patterns.")
		return nil
	}
	printImageFindings(flags, flags.inputPath, findings)
	return nil
}

func printImageFindings(flags *cliFlags, source string, findings []imagemeta.Finding) {
	warn := color.New(color.FgYellow)
	for _, finding := range findings {
		location := source
		if finding.Page > 0 {
			location = fmt.Sprintf("%s (page %d, image %s)", source, finding.Page, finding.Image)
		}
		warn.Printf("%s: field %s matched pattern %s\n", location, finding.Field, finding.Pattern)
		if flags.showMatch {
			fmt.Printf("  value: %s\n", finding.Value)
		}
	}
}
