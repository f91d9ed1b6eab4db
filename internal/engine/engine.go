// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package engine orchestrates zone classification and entity extraction
// over a document's pages and produces the final, conflict-resolved
// directive list plus summary statistics. All directives are computed fully
// before anything is handed to the rendering collaborator.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"redact-clinical/internal/dateshift"
	"redact-clinical/internal/detector"
	"redact-clinical/internal/extractor"
	"redact-clinical/internal/location"
	"redact-clinical/internal/observability"
	"redact-clinical/internal/template"
)

// Options configures engine construction.
type Options struct {
	// ShiftDays fixes the date offset explicitly. When nil, a random
	// offset is drawn once from the template's shift_days_range
	// (default -30..30) and held constant for the document.
	ShiftDays *int

	// ReferenceYear overrides the year used for arithmetic on dates
	// without an explicit year.
	ReferenceYear int

	Observer *observability.Observer

	// Workers caps page parallelism; zero means NumCPU.
	Workers int
}

// Engine processes one document against one loaded template. The template,
// shifter and detectors are read-only after New, so pages can be processed
// in parallel with no synchronization beyond the shifter's internal cache.
type Engine struct {
	tmpl      *template.Template
	shifter   *dateshift.Shifter
	extract   *extractor.Extractor
	locations *location.Detector
	observer  *observability.Observer
	workers   int

	zoneKeywords map[string][]keywordPattern
	dateRules    map[string]template.DateRule

	// Synthetic declaration indexes for entities not born from a pattern
	// rule, ordered after all pattern rules so template-declared rules
	// always win overlap conflicts against them.
	dateBase     int
	locationBase int
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// New builds an engine for one document run.
func New(tmpl *template.Template, opts Options) (*Engine, error) {
	var shifter *dateshift.Shifter
	switch {
	case opts.ShiftDays != nil:
		shifter = dateshift.New(*opts.ShiftDays)
	default:
		min, max := -30, 30
		if lo, hi, ok := tmpl.ShiftDaysRange(); ok {
			min, max = lo, hi
		}
		var err error
		shifter, err = dateshift.NewWithinRange(min, max)
		if err != nil {
			return nil, fmt.Errorf("initializing date shifter: %w", err)
		}
	}
	if opts.ReferenceYear != 0 {
		shifter.WithReferenceYear(opts.ReferenceYear)
	}

	e := &Engine{
		tmpl:         tmpl,
		shifter:      shifter,
		extract:      extractor.New(tmpl.Patterns),
		observer:     opts.Observer,
		workers:      opts.Workers,
		zoneKeywords: make(map[string][]keywordPattern),
		dateRules:    make(map[string]template.DateRule),
		dateBase:     len(tmpl.Patterns),
		locationBase: len(tmpl.Patterns) + len(tmpl.DateRules),
	}

	if tmpl.Location.Enabled {
		db := location.NewDatabase(tmpl.Location.Cities, tmpl.Location.Facilities)
		e.locations = location.NewDetector(db, location.Config{
			Blacklist:        tmpl.Location.Blacklist,
			Prepositions:     tmpl.Location.Prepositions,
			FacilityKeywords: tmpl.Location.FacilityKeywords,
			ReferralKeywords: tmpl.Location.ReferralKeywords,
		})
	}

	for name, zone := range tmpl.Zones {
		if zone.Redaction != "keyword_based" {
			continue
		}
		for _, kw := range zone.Keywords {
			e.zoneKeywords[name] = append(e.zoneKeywords[name], keywordPattern{
				keyword: kw,
				re:      regexp.MustCompile(`(?i)` + regexp.QuoteMeta(kw)),
			})
		}
	}

	for _, rule := range tmpl.DateRules {
		e.dateRules["date_handling."+rule.Name] = rule
	}

	return e, nil
}

// ShiftDays returns the document's fixed date offset.
func (e *Engine) ShiftDays() int {
	return e.shifter.OffsetDays()
}

// PageError records a page that failed to process.
type PageError struct {
	Page int
	Err  error
}

// Result is the complete outcome of one document run. It is only returned
// for fully processed documents; cancellation yields an error instead of
// partial directives.
type Result struct {
	Directives []detector.Directive `json:"directives"`
	Stats      detector.Statistics  `json:"statistics"`
	PageErrors []PageError          `json:"page_errors,omitempty"`
	ShiftDays  int                  `json:"shift_days"`
}

type pageOutput struct {
	directives []detector.Directive
	stats      detector.Statistics
}

// ProcessDocument runs every page through zone classification and
// extraction. Pages are independent and processed in parallel; the context
// cancels between page boundaries.
func (e *Engine) ProcessDocument(ctx context.Context, doc *Document) (*Result, error) {
	var finish func(bool, map[string]any)
	if e.observer != nil {
		finish = e.observer.StartTiming("engine", "process_document")
	}

	outputs := make([]pageOutput, len(doc.Pages))
	pageErrs := make([]error, len(doc.Pages))

	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(doc.Pages) {
		workers = len(doc.Pages)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				e.runPage(doc, idx, outputs, pageErrs)
			}
		}()
	}

feed:
	for i := range doc.Pages {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		if finish != nil {
			finish(false, map[string]any{"error": err.Error()})
		}
		return nil, fmt.Errorf("document processing canceled: %w", err)
	}

	result := &Result{
		Stats:     detector.NewStatistics(),
		ShiftDays: e.shifter.OffsetDays(),
	}
	result.Stats.TotalPages = len(doc.Pages)
	for i, out := range outputs {
		if pageErrs[i] != nil {
			result.PageErrors = append(result.PageErrors, PageError{Page: doc.Pages[i].Number, Err: pageErrs[i]})
			continue
		}
		result.Directives = append(result.Directives, out.directives...)
		result.Stats.Merge(out.stats)
	}

	if finish != nil {
		finish(true, map[string]any{
			"pages":      len(doc.Pages),
			"directives": len(result.Directives),
			"entities":   result.Stats.TotalEntities,
		})
	}
	return result, nil
}

// runPage isolates one page so a panic in a rule never takes down the
// whole document; it surfaces as a per-page failure instead.
func (e *Engine) runPage(doc *Document, idx int, outputs []pageOutput, pageErrs []error) {
	defer func() {
		if r := recover(); r != nil {
			pageErrs[idx] = fmt.Errorf("page %d: %v", doc.Pages[idx].Number, r)
		}
	}()
	outputs[idx] = e.processPage(doc.Pages[idx])
}

// processPage applies zone policies and structured extraction to one page.
func (e *Engine) processPage(page Page) pageOutput {
	stats := detector.NewStatistics()
	var directives []detector.Directive
	claimed := make([]bool, len(page.Boxes))

	zoneNames := make([]string, 0, len(e.tmpl.Zones))
	for name := range e.tmpl.Zones {
		zoneNames = append(zoneNames, name)
	}
	sort.Strings(zoneNames)

	// Header/footer zones claim their boxes first; their policies never
	// invoke the extractor.
	for _, name := range zoneNames {
		zone := e.tmpl.Zones[name]
		if !zone.AppliesTo(page.Number) {
			continue
		}
		var zoneBoxes []int
		for i, box := range page.Boxes {
			if !claimed[i] && box.inZone(zone) {
				claimed[i] = true
				zoneBoxes = append(zoneBoxes, i)
			}
		}

		switch zone.Redaction {
		case "none":
			// Boxes stay untouched and excluded from extraction.
		case "full":
			directives = append(directives, detector.Directive{
				Page:             page.Number,
				Zone:             name,
				Region:           detector.Region{X0: 0, Y0: zone.YStart, X1: page.Width, Y1: zone.YEnd},
				HasRegion:        true,
				Action:           detector.ActionBlackout,
				PreserveGraphics: zone.PreserveLogos,
			})
			stats.ZonesRedacted++
		case "keyword_based":
			n := len(directives)
			directives = append(directives, e.keywordDirectives(page, name, zoneBoxes)...)
			if len(directives) > n {
				stats.ZonesRedacted++
			}
		}
	}

	body := buildBody(page, claimed)
	directives = append(directives, e.bodyDirectives(page, body, &stats)...)
	directives = append(directives, e.signatureDirectives(page, &stats)...)

	return pageOutput{directives: directives, stats: stats}
}

// keywordDirectives redacts only the configured keyword spans inside a
// zone's boxes; surrounding zone text stays untouched.
func (e *Engine) keywordDirectives(page Page, zoneName string, zoneBoxes []int) []detector.Directive {
	var directives []detector.Directive
	for _, i := range zoneBoxes {
		box := page.Boxes[i]
		boxText := page.Text[box.Start:box.End]
		for _, kp := range e.zoneKeywords[zoneName] {
			for _, m := range kp.re.FindAllStringIndex(boxText, -1) {
				if !detector.WholeWord(boxText, m[0], m[1]) {
					continue
				}
				span := detector.Span{Start: box.Start + m[0], End: box.Start + m[1]}
				region, hasRegion := page.regionFor(span)
				directives = append(directives, detector.Directive{
					Page:      page.Number,
					Zone:      zoneName,
					Span:      span,
					Region:    region,
					HasRegion: hasRegion,
					Action:    detector.ActionBlackout,
				})
			}
		}
	}
	return directives
}

// bodyDirectives runs structured extraction, location detection and date
// rules over the body text, resolves overlaps, and emits one directive per
// surviving entity.
func (e *Engine) bodyDirectives(page Page, body bodyView, stats *detector.Statistics) []detector.Directive {
	if body.text == "" {
		return nil
	}

	candidates := e.extract.Extract(body.text)

	for _, rule := range e.tmpl.DateRules {
		for _, m := range rule.Regexp.FindAllStringIndex(body.text, -1) {
			candidates = append(candidates, detector.Entity{
				Text:      body.text[m[0]:m[1]],
				Type:      strings.ToUpper(rule.Name),
				Span:      detector.Span{Start: m[0], End: m[1]},
				Rule:      "date_handling." + rule.Name,
				RuleOrder: e.dateBase + rule.Order,
			})
		}
	}

	if e.locations != nil {
		locs := e.locations.FindLocations(body.text)
		for i := range locs {
			locs[i].RuleOrder = e.locationBase + locs[i].Priority
		}
		candidates = append(candidates, locs...)
		stats.FallbackReferenceData = e.locations.UsesFallback()
	}

	var directives []detector.Directive
	for _, ent := range extractor.ResolveOverlaps(candidates) {
		stats.CountEntity(ent.Type)
		if d := e.entityDirective(page, body, ent, stats); d != nil {
			directives = append(directives, *d)
		}
	}
	return directives
}

// entityDirective turns one surviving entity into a directive, routing
// date-typed entities through the document's single shift context. An
// unparseable date emits nothing: the text is left unchanged and counted
// as a non-fatal miss.
func (e *Engine) entityDirective(page Page, body bodyView, ent detector.Entity, stats *detector.Statistics) *detector.Directive {
	pageSpan, ok := body.toPageSpan(ent.Span)
	if !ok {
		pageSpan = ent.Span
	}
	ent.Span = pageSpan
	ent.Page = page.Number

	region, hasRegion := page.regionFor(pageSpan)
	d := detector.Directive{
		Page:      page.Number,
		Entity:    &ent,
		Span:      pageSpan,
		Region:    region,
		HasRegion: hasRegion,
	}

	if rule, isDateRule := e.dateRules[ent.Rule]; isDateRule {
		if rule.Action == template.DateRemove {
			d.Action = detector.ActionReplaceToken
			d.Replacement = e.mechanismFor(ent.Type).Token
			return &d
		}
		return e.shiftDirective(&d, ent.Text, stats)
	}

	mech := e.mechanismFor(ent.Type)
	if mech.Kind == "shift_date" {
		return e.shiftDirective(&d, ent.Text, stats)
	}
	d.Action = detector.ActionReplaceToken
	d.Replacement = mech.Token
	return &d
}

func (e *Engine) shiftDirective(d *detector.Directive, text string, stats *detector.Statistics) *detector.Directive {
	shifted, ok := e.shifter.Shift(text)
	if !ok {
		stats.DateMisses++
		return nil
	}
	d.Action = detector.ActionReplaceValue
	d.Replacement = shifted
	stats.DatesShifted++
	return d
}

// mechanismFor resolves the per-type transformation, with the location
// config's replacement tokens as defaults for location-typed entities.
func (e *Engine) mechanismFor(entityType string) template.Mechanism {
	if m, ok := e.tmpl.Mechanisms[entityType]; ok {
		return m
	}
	switch entityType {
	case location.TypeCity, location.TypePostalCode:
		return template.Mechanism{Kind: "redact", Token: e.tmpl.Location.LocationToken}
	case location.TypeFacility, location.TypeBlacklist:
		return template.Mechanism{Kind: "redact", Token: e.tmpl.Location.FacilityToken}
	}
	return e.tmpl.MechanismFor(entityType)
}

// signatureDirectives blacks out a fixed-height region below each
// occurrence of the configured closing line, covering handwritten
// signatures.
func (e *Engine) signatureDirectives(page Page, stats *detector.Statistics) []detector.Directive {
	sig := e.tmpl.Signature
	if sig == nil || !sig.Enabled || sig.Trigger == "" {
		return nil
	}

	var directives []detector.Directive
	from := 0
	for {
		idx := strings.Index(page.Text[from:], sig.Trigger)
		if idx < 0 {
			break
		}
		at := from + idx
		if box, ok := page.boxAt(at); ok {
			directives = append(directives, detector.Directive{
				Page:      page.Number,
				Zone:      "signature_block",
				Span:      detector.Span{Start: at, End: at + len(sig.Trigger)},
				Region:    detector.Region{X0: 0, Y0: box.Region.Y0 - sig.HeightBelow, X1: page.Width, Y1: box.Region.Y0},
				HasRegion: true,
				Action:    detector.ActionBlackout,
			})
			stats.ZonesRedacted++
		}
		from = at + len(sig.Trigger)
	}
	return directives
}
