// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package imagemeta scans EXIF metadata of embedded or companion images
// against the template's image patterns. Image pixel content is out of
// scope; only metadata fields are inspected.
package imagemeta

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"redact-clinical/internal/template"
)

// Finding is one metadata field that matched an image pattern.
type Finding struct {
	// Page is the 1-based page carrying the image for embedded images,
	// zero for standalone image files.
	Page    int    `json:"page,omitempty"`
	Image   string `json:"image,omitempty"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Pattern string `json:"pattern"`
}

// tagWalker collects every EXIF tag into a flat map.
type tagWalker struct {
	tags map[string]string
}

func (w *tagWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag != nil {
		w.tags[string(name)] = tag.String()
	}
	return nil
}

// Scan decodes EXIF data from r and reports every tag value matched by an
// image pattern. An image without EXIF data yields no findings and no
// error; clinical exports routinely strip metadata.
func Scan(r io.Reader, patterns []template.ImagePattern) ([]Finding, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, nil
	}

	walker := &tagWalker{tags: make(map[string]string)}
	if err := x.Walk(walker); err != nil {
		return nil, fmt.Errorf("walking EXIF tags: %w", err)
	}

	// GPS coordinates are personal data on their own; surface them as a
	// synthetic field so patterns can target them.
	if lat, long, err := x.LatLong(); err == nil {
		walker.tags["GPSPosition"] = fmt.Sprintf("%.6f,%.6f", lat, long)
	}

	return matchFields(walker.tags, patterns), nil
}

// ScanPDF extracts the embedded images of a PDF and scans each one's
// metadata. Images whose stream carries no EXIF are skipped silently, so
// a scan over a letter full of stripped-down scans reports nothing.
func ScanPDF(filePath string, patterns []template.ImagePattern) ([]Finding, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	pageImages, err := api.ExtractImagesRaw(f, nil, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("extracting images: %w", err)
	}

	var findings []Finding
	for _, byObj := range pageImages {
		objNrs := make([]int, 0, len(byObj))
		for objNr := range byObj {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)
		for _, objNr := range objNrs {
			img := byObj[objNr]
			imgFindings, err := Scan(img, patterns)
			if err != nil {
				return nil, fmt.Errorf("image %s on page %d: %w", img.Name, img.PageNr, err)
			}
			for i := range imgFindings {
				imgFindings[i].Page = img.PageNr
				imgFindings[i].Image = img.Name
			}
			findings = append(findings, imgFindings...)
		}
	}
	return findings, nil
}

// matchFields checks every metadata field and value against the compiled
// patterns, in stable field order, one finding per field.
func matchFields(tags map[string]string, patterns []template.ImagePattern) []Finding {
	fields := make([]string, 0, len(tags))
	for name := range tags {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var findings []Finding
	for _, field := range fields {
		value := tags[field]
		for _, p := range patterns {
			if p.Regexp.MatchString(value) || p.Regexp.MatchString(field) {
				findings = append(findings, Finding{Field: field, Value: value, Pattern: p.Name})
				break
			}
		}
	}
	return findings
}
