// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package extractor applies structured pattern rules to a text span. It is
// deliberately not a named-entity model: personal data is only extracted
// from the exact shapes and contexts the template configures, so clinical
// vocabulary is never touched.
package extractor

import (
	"strings"
	"sync/atomic"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/template"
)

// Extractor runs the template's pattern rules in declaration order. Safe
// for concurrent use; pages share one extractor.
type Extractor struct {
	rules []template.PatternRule

	// recordSeq numbers multi-group matches so entities from one match
	// stay linked as a single logical record.
	recordSeq atomic.Int64
}

// New returns an extractor over the given compiled rules.
func New(rules []template.PatternRule) *Extractor {
	return &Extractor{rules: rules}
}

// Extract returns all candidate entities, ordered by rule declaration and
// match position. Overlap resolution is a separate step (ResolveOverlaps)
// because date and location entities join the same conflict set.
func (e *Extractor) Extract(text string) []detector.Entity {
	var entities []detector.Entity
	for _, rule := range e.rules {
		switch rule.Kind {
		case template.RuleContextTriggered:
			entities = append(entities, e.extractContextTriggered(text, rule)...)
		case template.RuleMultiGroup:
			entities = append(entities, e.extractMultiGroup(text, rule)...)
		default:
			entities = append(entities, e.extractSimple(text, rule)...)
		}
	}
	return entities
}

// extractSimple emits one entity per non-overlapping match. When the
// pattern has capture groups, group 1 is the entity span, otherwise the
// whole match.
func (e *Extractor) extractSimple(text string, rule template.PatternRule) []detector.Entity {
	var entities []detector.Entity
	for _, m := range rule.Regexp.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if rule.Regexp.NumSubexp() > 0 && m[2] >= 0 {
			start, end = m[2], m[3]
		}
		entities = append(entities, detector.Entity{
			Text:      text[start:end],
			Type:      typeOrDefault(rule.Type, "UNKNOWN"),
			Span:      detector.Span{Start: start, End: end},
			Rule:      rule.Name,
			RuleOrder: rule.Order,
		})
	}
	return entities
}

// extractMultiGroup emits one entity per configured capture group of each
// match. All entities of one match share a record ID; downstream consumers
// see them as one correlated record even though each group is redacted on
// its own.
func (e *Extractor) extractMultiGroup(text string, rule template.PatternRule) []detector.Entity {
	var entities []detector.Entity
	for _, m := range rule.Regexp.FindAllStringSubmatchIndex(text, -1) {
		record := int(e.recordSeq.Add(1))
		for groupIdx, entityType := range rule.Groups {
			lo, hi := 2*groupIdx, 2*groupIdx+1
			if hi >= len(m) || m[lo] < 0 || m[lo] == m[hi] {
				continue // group did not participate or is empty
			}
			entities = append(entities, detector.Entity{
				Text:      text[m[lo]:m[hi]],
				Type:      entityType,
				Span:      detector.Span{Start: m[lo], End: m[hi]},
				Rule:      rule.Name,
				RuleOrder: rule.Order,
				RecordID:  record,
			})
		}
	}
	return entities
}

// extractContextTriggered scans a bounded window after every occurrence of
// each trigger literal. A match outside the lookahead budget, or before
// the trigger, does not count. Two stages on purpose: trigger location
// first, then a sub-scan over the fixed window, so the boundary stays an
// explicit, testable parameter.
func (e *Extractor) extractContextTriggered(text string, rule template.PatternRule) []detector.Entity {
	var entities []detector.Entity
	seen := make(map[detector.Span]bool)

	for _, trigger := range rule.Triggers {
		from := 0
		for {
			idx := strings.Index(text[from:], trigger)
			if idx < 0 {
				break
			}
			windowStart := from + idx + len(trigger)
			windowEnd := windowStart + rule.Lookahead
			if windowEnd > len(text) {
				windowEnd = len(text)
			}

			for _, m := range rule.Regexp.FindAllStringIndex(text[windowStart:windowEnd], -1) {
				span := detector.Span{Start: windowStart + m[0], End: windowStart + m[1]}
				if seen[span] {
					continue // windows of adjacent triggers may overlap
				}
				seen[span] = true
				entities = append(entities, detector.Entity{
					Text:      text[span.Start:span.End],
					Type:      typeOrDefault(rule.Type, "CONTEXT_BASED"),
					Span:      span,
					Rule:      rule.Name,
					RuleOrder: rule.Order,
				})
			}

			from = windowStart
		}
	}
	return entities
}

func typeOrDefault(t, fallback string) string {
	if t == "" {
		return fallback
	}
	return t
}
