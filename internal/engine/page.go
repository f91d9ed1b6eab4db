// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"strings"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/template"
)

// TextBox ties a character range of a page's text to its bounding region.
// The coordinate mapping comes from the external extraction collaborator
// (PDF text layer or OCR tokens); the engine never touches page bytes.
type TextBox struct {
	Start  int
	End    int
	Region detector.Region
}

// Page is one page of already-extracted text. Boxes may be empty for plain
// text input; region-less directives are emitted with spans only then.
type Page struct {
	Number int // 1-based
	Width  float64
	Height float64
	Text   string
	Boxes  []TextBox
}

// Document is the engine's input: extracted pages plus a source label used
// in reporting.
type Document struct {
	Source string
	Pages  []Page
}

// inZone reports whether a box belongs to a zone band. Classification uses
// the box's vertical center, bottom-left origin.
func (b TextBox) inZone(z template.Zone) bool {
	centerY := (b.Region.Y0 + b.Region.Y1) / 2
	return centerY >= z.YStart && centerY <= z.YEnd
}

// segment maps a run of body text back to its page text offsets.
type segment struct {
	bodyStart int
	pageStart int
	length    int
}

// bodyView is the concatenation of all boxes outside header/footer zones,
// the text the structured extractor runs on.
type bodyView struct {
	text     string
	segments []segment
}

// buildBody assembles the body text from unclaimed boxes. A page without
// boxes contributes its whole text as one segment.
func buildBody(page Page, claimed []bool) bodyView {
	if len(page.Boxes) == 0 {
		return bodyView{
			text:     page.Text,
			segments: []segment{{bodyStart: 0, pageStart: 0, length: len(page.Text)}},
		}
	}

	var sb strings.Builder
	var segs []segment
	for i, box := range page.Boxes {
		if claimed[i] {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		segs = append(segs, segment{bodyStart: sb.Len(), pageStart: box.Start, length: box.End - box.Start})
		sb.WriteString(page.Text[box.Start:box.End])
	}
	return bodyView{text: sb.String(), segments: segs}
}

// toPageSpan maps a body-text span back to page-text offsets. Spans are
// confined to the segment containing their start; the separator newline
// never belongs to an entity.
func (v bodyView) toPageSpan(s detector.Span) (detector.Span, bool) {
	for _, seg := range v.segments {
		if s.Start >= seg.bodyStart && s.Start < seg.bodyStart+seg.length {
			start := seg.pageStart + (s.Start - seg.bodyStart)
			end := seg.pageStart + (s.End - seg.bodyStart)
			if s.End > seg.bodyStart+seg.length {
				end = seg.pageStart + seg.length
			}
			return detector.Span{Start: start, End: end}, true
		}
	}
	return detector.Span{}, false
}

// regionFor unions the regions of all boxes overlapping a page-text span.
// Boxes are row-granular, so within each box the x-extent is interpolated
// proportionally by byte offset; an approximation of glyph positions, but
// it keeps a keyword blackout from covering the rest of its line.
func (p Page) regionFor(s detector.Span) (detector.Region, bool) {
	var region detector.Region
	found := false
	for _, box := range p.Boxes {
		if box.Start >= s.End || s.Start >= box.End {
			continue
		}
		r := box.Region
		if n := box.End - box.Start; n > 0 {
			lo, hi := s.Start, s.End
			if lo < box.Start {
				lo = box.Start
			}
			if hi > box.End {
				hi = box.End
			}
			width := r.X1 - r.X0
			r.X1 = r.X0 + width*float64(hi-box.Start)/float64(n)
			r.X0 = r.X0 + width*float64(lo-box.Start)/float64(n)
		}
		if !found {
			region = r
			found = true
		} else {
			region = region.Union(r)
		}
	}
	return region, found
}

// boxAt returns the box containing the given page-text offset.
func (p Page) boxAt(offset int) (TextBox, bool) {
	for _, box := range p.Boxes {
		if offset >= box.Start && offset < box.End {
			return box, true
		}
	}
	return TextBox{}, false
}
