// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pdftext extracts per-page text with coordinates from a PDF text
// layer and assembles the engine's document input. Rendering of redactions
// is a separate concern (see redactors/pdfapply); this package only reads.
package pdftext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/engine"
)

// A4 portrait in PDF points, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 595.0
	defaultPageHeight = 842.0
)

// ExtractDocument reads every page of a PDF into the engine's document
// model. Each text row becomes one text box, so zone classification can
// reason about vertical position per line.
func ExtractDocument(filePath string) (*engine.Document, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %v", err)
	}
	defer f.Close()

	doc := &engine.Document{Source: filePath}
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		p := r.Page(pageNum)
		if p.V.IsNull() {
			return nil, fmt.Errorf("page %d: null page object", pageNum)
		}
		page, err := extractPage(p, pageNum)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", pageNum, err)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

// extractPage turns one PDF page into text plus row-level text boxes.
func extractPage(p pdf.Page, pageNum int) (engine.Page, error) {
	width, height := pageSize(p)
	page := engine.Page{Number: pageNum, Width: width, Height: height}

	rows, err := p.GetTextByRow()
	if err != nil {
		// No coordinate information available; fall back to plain text so
		// body extraction still works, with span-only directives.
		text, perr := p.GetPlainText(nil)
		if perr != nil {
			return page, fmt.Errorf("text extraction failed: %v", perr)
		}
		page.Text = text
		return page, nil
	}

	// Top of page first: higher Y means higher on the page.
	sorted := make([]*pdf.Row, 0, len(rows))
	for _, row := range rows {
		if row != nil && len(row.Content) > 0 {
			sorted = append(sorted, row)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return averageY(sorted[i].Content) > averageY(sorted[j].Content)
	})

	var sb strings.Builder
	for _, row := range sorted {
		text, region := assembleRow(row.Content)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		start := sb.Len()
		sb.WriteString(text)
		page.Boxes = append(page.Boxes, engine.TextBox{
			Start:  start,
			End:    sb.Len(),
			Region: region,
		})
	}
	page.Text = sb.String()
	return page, nil
}

// assembleRow joins a row's text elements left to right, inserting spaces
// at visible horizontal gaps, and computes the row's bounding region.
func assembleRow(elements []pdf.Text) (string, detector.Region) {
	sorted := make([]pdf.Text, len(elements))
	copy(sorted, elements)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].X < sorted[j].X
	})

	var sb strings.Builder
	region := detector.Region{}
	prevEnd := 0.0
	for i, el := range sorted {
		if i == 0 {
			region = detector.Region{X0: el.X, Y0: el.Y, X1: el.X + el.W, Y1: el.Y + el.FontSize}
		} else {
			// A gap wider than a third of the font size reads as a space.
			if el.X-prevEnd > el.FontSize/3 && !strings.HasSuffix(sb.String(), " ") && !strings.HasPrefix(el.S, " ") {
				sb.WriteByte(' ')
			}
			region = region.Union(detector.Region{X0: el.X, Y0: el.Y, X1: el.X + el.W, Y1: el.Y + el.FontSize})
		}
		sb.WriteString(el.S)
		prevEnd = el.X + el.W
	}
	return sb.String(), region
}

func averageY(elements []pdf.Text) float64 {
	if len(elements) == 0 {
		return 0
	}
	var total float64
	for _, el := range elements {
		total += el.Y
	}
	return total / float64(len(elements))
}

// pageSize reads the MediaBox, defaulting to A4 when absent or malformed.
func pageSize(p pdf.Page) (width, height float64) {
	width, height = defaultPageWidth, defaultPageHeight
	box := p.V.Key("MediaBox")
	if box.IsNull() || box.Kind() != pdf.Array || box.Len() != 4 {
		return width, height
	}
	x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
	x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
	if x1 > x0 && y1 > y0 {
		width, height = x1-x0, y1-y0
	}
	return width, height
}
