// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package detector

// Span marks a half-open character range [Start, End) in a zone's text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two spans share at least one character.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Contains reports whether other lies fully inside s.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

// Region is an axis-aligned rectangle in page coordinates.
// Origin is the bottom-left corner of the page, y increases upward.
type Region struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Union returns the smallest region covering both r and other.
func (r Region) Union(other Region) Region {
	out := r
	if other.X0 < out.X0 {
		out.X0 = other.X0
	}
	if other.Y0 < out.Y0 {
		out.Y0 = other.Y0
	}
	if other.X1 > out.X1 {
		out.X1 = other.X1
	}
	if other.Y1 > out.Y1 {
		out.Y1 = other.Y1
	}
	return out
}

// Entity represents a detected span of personal data.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
	Span Span   `json:"span"`

	// Rule names the rule that produced this entity. RuleOrder is the
	// rule's declaration index and decides overlap conflicts: the entity
	// whose rule was declared earlier survives.
	Rule      string `json:"rule"`
	RuleOrder int    `json:"-"`

	// Priority is the context level for location/facility entities
	// (1 = blacklist .. 5 = referral), 0 for everything else.
	Priority int `json:"priority,omitempty"`

	// RecordID links entities extracted from one multi-group match into a
	// single logical record (e.g. salutation + name + birthdate of one
	// patient block). Zero means unlinked.
	RecordID int `json:"record_id,omitempty"`

	Page int `json:"page,omitempty"`
}

// Action is the redaction mechanism a directive asks the renderer for.
type Action string

const (
	// ActionBlackout covers a region with an opaque box.
	ActionBlackout Action = "blackout"
	// ActionReplaceToken replaces the span with a placeholder token.
	ActionReplaceToken Action = "replace-with-token"
	// ActionReplaceValue replaces the span with a computed value, e.g. a
	// shifted date literal.
	ActionReplaceValue Action = "replace-with-value"
)

// Directive is one instruction for the external rendering collaborator.
// Directives reference either a zone (Zone non-empty) or an entity.
type Directive struct {
	Page   int     `json:"page"`
	Zone   string  `json:"zone,omitempty"`
	Entity *Entity `json:"entity,omitempty"`

	Span      Span   `json:"span"`
	Region    Region `json:"region"`
	HasRegion bool   `json:"has_region"`

	Action      Action `json:"action"`
	Replacement string `json:"replacement,omitempty"`

	// PreserveGraphics is passed through to the renderer for full-zone
	// blackouts; the engine does not resolve it.
	PreserveGraphics bool `json:"preserve_graphics,omitempty"`
}

// Statistics summarizes one processed document for caller-visible reporting.
type Statistics struct {
	TotalPages    int            `json:"total_pages"`
	ZonesRedacted int            `json:"zones_redacted"`
	TotalEntities int            `json:"total_entities"`
	EntityCounts  map[string]int `json:"entity_counts"`
	DatesShifted  int            `json:"dates_shifted"`

	// DateMisses counts date-typed entities whose text could not be
	// parsed; those are left unchanged, never treated as errors.
	DateMisses int `json:"date_misses"`

	// FallbackReferenceData is set when the location detector ran on its
	// built-in fallback list because no reference data was configured.
	FallbackReferenceData bool `json:"fallback_reference_data,omitempty"`
}

// NewStatistics returns an empty statistics record with initialized maps.
func NewStatistics() Statistics {
	return Statistics{EntityCounts: make(map[string]int)}
}

// CountEntity records one detected entity of the given type.
func (s *Statistics) CountEntity(entityType string) {
	if s.EntityCounts == nil {
		s.EntityCounts = make(map[string]int)
	}
	s.EntityCounts[entityType]++
	s.TotalEntities++
}

// Merge folds per-page statistics into a document total.
func (s *Statistics) Merge(other Statistics) {
	s.ZonesRedacted += other.ZonesRedacted
	s.DatesShifted += other.DatesShifted
	s.DateMisses += other.DateMisses
	s.TotalEntities += other.TotalEntities
	s.FallbackReferenceData = s.FallbackReferenceData || other.FallbackReferenceData
	for t, n := range other.EntityCounts {
		if s.EntityCounts == nil {
			s.EntityCounts = make(map[string]int)
		}
		s.EntityCounts[t] += n
	}
}
