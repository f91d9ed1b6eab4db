// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package template implements the rule catalog: it loads, validates and
// compiles an anonymization template once per document. A loaded Template is
// read-only; nothing mutates it after Load returns.
package template

import (
	"fmt"
	"regexp"
)

// ConfigError reports a template problem with the exact field path that
// caused it. It is fatal to loading the template but never to the process.
type ConfigError struct {
	Source  string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Field, e.Message)
}

// Zone describes a page region with its own redaction policy. Coordinates
// use a bottom-left origin, y increasing upward.
type Zone struct {
	// Page restricts the zone to a single 1-based page. Pages == "all"
	// applies it everywhere except ExcludePage. Zones with neither are
	// never applied.
	Page        *int
	Pages       string
	ExcludePage int

	YStart float64
	YEnd   float64

	// Redaction is one of "full", "keyword_based" or "none".
	Redaction string
	Keywords  []string

	// PreserveLogos is passed through to the renderer unresolved.
	PreserveLogos bool
}

// AppliesTo reports whether the zone is active on the given 1-based page.
func (z Zone) AppliesTo(page int) bool {
	if z.Page != nil {
		return *z.Page == page
	}
	if z.Pages == "all" {
		return z.ExcludePage == 0 || z.ExcludePage != page
	}
	return false
}

// RuleKind distinguishes the three pattern rule variants.
type RuleKind int

const (
	RuleSimple RuleKind = iota
	RuleMultiGroup
	RuleContextTriggered
)

func (k RuleKind) String() string {
	switch k {
	case RuleSimple:
		return "simple"
	case RuleMultiGroup:
		return "multi_group"
	case RuleContextTriggered:
		return "context_triggered"
	default:
		return "unknown"
	}
}

// PatternRule is one compiled structured-extraction rule. Order is the
// declaration index inside the template and defines priority when entity
// spans overlap.
type PatternRule struct {
	Name    string
	Kind    RuleKind
	Pattern string
	Regexp  *regexp.Regexp
	Type    string

	// Groups maps capture-group index to entity type (multi-group rules).
	Groups map[int]string

	// Triggers and Lookahead bound context-triggered rules: the pattern
	// only counts within Lookahead characters after a trigger literal.
	Triggers  []string
	Lookahead int

	Order int
}

// DateAction tells the engine what to do with a matched date expression.
type DateAction string

const (
	DateShift         DateAction = "shift"
	DateShiftRelative DateAction = "shift_relative"
	DateRemove        DateAction = "remove"
)

// DateRule is one compiled date-handling rule.
type DateRule struct {
	Name    string
	Pattern string
	Regexp  *regexp.Regexp
	Action  DateAction

	// ShiftDaysRange bounds the random offset pick when the caller
	// supplies no explicit offset.
	ShiftDaysRange *[2]int

	Order int
}

// Facility is one known medical facility with its accepted spellings.
type Facility struct {
	Name    string
	Aliases []string
	City    string
}

// LocationConfig configures the context-aware location detector.
type LocationConfig struct {
	Enabled          bool
	Blacklist        []string
	Prepositions     []string
	FacilityKeywords []string
	ReferralKeywords []string
	Cities           []string
	Facilities       []Facility
	LocationToken    string
	FacilityToken    string
}

// Mechanism maps an entity type to its transformation.
type Mechanism struct {
	// Kind is "redact" (placeholder token) or "shift_date".
	Kind  string
	Token string
}

// SignatureBlock redacts a fixed-height region below each occurrence of the
// trigger string, covering handwritten signatures under the closing line.
type SignatureBlock struct {
	Enabled     bool
	Trigger     string
	HeightBelow float64
}

// ImagePattern is one compiled pattern applied to metadata of images
// extracted from the document.
type ImagePattern struct {
	Name    string
	Pattern string
	Regexp  *regexp.Regexp
}

// Template is the immutable, validated rule catalog for one document run.
type Template struct {
	Name    string
	Version string

	Zones         map[string]Zone
	Patterns      []PatternRule // declaration order preserved
	DateRules     []DateRule    // declaration order preserved
	ImagePatterns []ImagePattern

	Location   LocationConfig
	Mechanisms map[string]Mechanism
	Signature  *SignatureBlock

	// Extra holds unrecognized top-level fields. The schema is required
	// core plus open extension: unknown fields are preserved, not
	// rejected.
	Extra map[string]any

	// DateSettings holds non-rule entries found under date_handling.
	DateSettings map[string]any
}

// ShiftDaysRange returns the first configured shift range, if any.
func (t *Template) ShiftDaysRange() (min, max int, ok bool) {
	for _, rule := range t.DateRules {
		if rule.ShiftDaysRange != nil {
			return rule.ShiftDaysRange[0], rule.ShiftDaysRange[1], true
		}
	}
	return 0, 0, false
}

// MechanismFor resolves the transformation for an entity type, falling back
// to a plain redact with a type-derived token.
func (t *Template) MechanismFor(entityType string) Mechanism {
	if m, ok := t.Mechanisms[entityType]; ok {
		return m
	}
	return Mechanism{Kind: "redact", Token: "[" + entityType + "]"}
}
