// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package extractor

import (
	"sort"

	"redact-clinical/internal/detector"
)

// ResolveOverlaps reduces a combined candidate set (pattern, date and
// location entities alike) to non-overlapping survivors. When two entities
// overlap, the one whose originating rule was declared earlier in the
// template wins and the later one is discarded; within one rule the
// earlier match wins. The result is ordered by start offset.
//
// This template-order priority is part of the template contract and must
// stay byte-for-byte reproducible.
func ResolveOverlaps(entities []detector.Entity) []detector.Entity {
	candidates := make([]detector.Entity, len(entities))
	copy(candidates, entities)

	// Acceptance order: rule declaration first, then match position.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RuleOrder != candidates[j].RuleOrder {
			return candidates[i].RuleOrder < candidates[j].RuleOrder
		}
		return candidates[i].Span.Start < candidates[j].Span.Start
	})

	var kept []detector.Entity
	for _, e := range candidates {
		conflict := false
		for _, k := range kept {
			if e.Span.Overlaps(k.Span) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Span.Start < kept[j].Span.Start
	})
	return kept
}
