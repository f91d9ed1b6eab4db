// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package location

import (
	"regexp"
	"sort"
	"strings"

	"redact-clinical/internal/detector"
)

// Entity types emitted by the detector.
const (
	TypeCity       = "CITY"
	TypePostalCode = "POSTAL_CODE"
	TypeFacility   = "FACILITY"
	TypeBlacklist  = "LOCATION_BLACKLIST"
)

// Level is the context priority of a match. Lower numbers win when spans
// overlap.
type Level int

const (
	LevelBlacklist   Level = 1
	LevelPostal      Level = 2
	LevelPreposition Level = 3
	LevelFacility    Level = 4
	LevelReferral    Level = 5
)

// Config carries the context vocabulary from the template.
type Config struct {
	Blacklist        []string
	Prepositions     []string
	FacilityKeywords []string
	ReferralKeywords []string
}

// termPattern is a compiled case-insensitive literal with the term it
// stands for.
type termPattern struct {
	term string
	re   *regexp.Regexp
}

// Detector performs layered, priority-ordered context matching. All
// patterns are compiled once at construction; a Detector is read-only
// afterwards and safe for concurrent use.
type Detector struct {
	db  *Database
	cfg Config

	blacklist []termPattern
	postalRe  *regexp.Regexp
	prepCity  []termPattern // term = city
	facNames  []termPattern // term = facility name or alias
	facCity   []termPattern // term = city, pattern = keyword + city
	refCity   []termPattern // term = city, pattern = referral keyword ... city
}

// contextLevels is the priority order as data: evaluated top to bottom,
// lowest level wins on overlap. Kept as a table so the ordering itself is
// testable.
var contextLevels = []struct {
	Level Level
	Name  string
	find  func(*Detector, string) []detector.Entity
}{
	{LevelBlacklist, "blacklist", (*Detector).findBlacklisted},
	{LevelPostal, "postal_code", (*Detector).findAfterPostalCode},
	{LevelPreposition, "preposition", (*Detector).findWithPreposition},
	{LevelFacility, "facility", (*Detector).findFacilities},
	{LevelReferral, "referral", (*Detector).findReferrals},
}

// Levels returns the configured priority order, lowest (strongest) first.
func Levels() []Level {
	out := make([]Level, len(contextLevels))
	for i, l := range contextLevels {
		out[i] = l.Level
	}
	return out
}

// NewDetector compiles all context patterns against the reference data.
func NewDetector(db *Database, cfg Config) *Detector {
	d := &Detector{db: db, cfg: cfg}

	for _, term := range cfg.Blacklist {
		if term == "" {
			continue
		}
		d.blacklist = append(d.blacklist, termPattern{term, compileLiteral(term)})
	}

	// Postal code followed by one capitalized token sequence; database
	// membership decides whether the candidate is a city.
	d.postalRe = regexp.MustCompile(`(\d{5})[ \t]+([A-ZÄÖÜ][\p{L}ß-]*(?:[ -][A-ZÄÖÜ][\p{L}ß-]*)*)`)

	prepAlt := alternation(cfg.Prepositions)
	facAlt := alternation(cfg.FacilityKeywords)
	refAlt := alternation(cfg.ReferralKeywords)

	for _, city := range db.Cities() {
		quoted := regexp.QuoteMeta(city)
		if prepAlt != "" {
			d.prepCity = append(d.prepCity, termPattern{city,
				regexp.MustCompile(`(?i)(` + prepAlt + `)[ \t]+(` + quoted + `)`)})
		}
		if facAlt != "" {
			d.facCity = append(d.facCity, termPattern{city,
				regexp.MustCompile(`(?i)(` + facAlt + `)[ \t]+(` + quoted + `)(?:-\w+)?`)})
		}
		if refAlt != "" {
			d.refCity = append(d.refCity, termPattern{city,
				regexp.MustCompile(`(?i)(` + refAlt + `).{0,50}?(` + quoted + `)`)})
		}
	}

	for _, fac := range db.Facilities() {
		names := append([]string{fac.Name}, fac.Aliases...)
		for _, name := range names {
			if name == "" {
				continue
			}
			d.facNames = append(d.facNames, termPattern{name, compileLiteral(name)})
		}
	}

	return d
}

// FindLocations returns every location/facility entity the context rules
// justify, ordered by start offset, one entity per position. A city name
// with no qualifying context produces nothing.
func (d *Detector) FindLocations(text string) []detector.Entity {
	var all []detector.Entity
	for _, lvl := range contextLevels {
		all = append(all, lvl.find(d, text)...)
	}
	all = suppressNestedCities(all)
	return dedupe(all)
}

// UsesFallback reports whether detection runs on the built-in city list.
func (d *Detector) UsesFallback() bool {
	return d.db.UsesFallback()
}

// Blacklist entries are always personal data, no context required.
func (d *Detector) findBlacklisted(text string) []detector.Entity {
	var found []detector.Entity
	for _, bp := range d.blacklist {
		for _, loc := range bp.re.FindAllStringIndex(text, -1) {
			if !wholeWord(text, loc[0], loc[1]) {
				continue
			}
			found = append(found, entity(text, loc[0], loc[1], TypeBlacklist, LevelBlacklist))
		}
	}
	return found
}

// "37075 Göttingen": the postal code itself is flagged independently, the
// trailing token is a city only if the database says so.
func (d *Detector) findAfterPostalCode(text string) []detector.Entity {
	var found []detector.Entity
	for _, m := range d.postalRe.FindAllStringSubmatchIndex(text, -1) {
		plzStart, plzEnd := m[2], m[3]
		if !wholeWord(text, plzStart, plzEnd) {
			continue
		}
		cityStart, cityEnd := m[4], m[5]
		candidate := text[cityStart:cityEnd]

		// Trim trailing words until the candidate is a known city.
		for candidate != "" && !d.db.IsCity(candidate) {
			cut := strings.LastIndexAny(candidate, " -")
			if cut < 0 {
				candidate = ""
				break
			}
			candidate = strings.TrimRight(candidate[:cut], " -")
		}
		if candidate == "" {
			continue
		}
		cityEnd = cityStart + len(candidate)

		found = append(found,
			entity(text, plzStart, plzEnd, TypePostalCode, LevelPostal),
			entity(text, cityStart, cityEnd, TypeCity, LevelPostal))
	}
	return found
}

// "aus Darmstadt", "in Hamburg": a preposition within one token of a known
// city qualifies it.
func (d *Detector) findWithPreposition(text string) []detector.Entity {
	return d.findCityGroup(text, d.prepCity, TypeCity, LevelPreposition, false)
}

// Known facility names and aliases match as one unit; so does a facility
// keyword directly followed by a city ("Klinikum Darmstadt"). Either way
// the whole name is a single facility entity.
func (d *Detector) findFacilities(text string) []detector.Entity {
	var found []detector.Entity
	for _, fp := range d.facNames {
		for _, loc := range fp.re.FindAllStringIndex(text, -1) {
			if !wholeWord(text, loc[0], loc[1]) {
				continue
			}
			found = append(found, entity(text, loc[0], loc[1], TypeFacility, LevelFacility))
		}
	}
	found = append(found, d.findCityGroup(text, d.facCity, TypeFacility, LevelFacility, true)...)
	return found
}

// "überwiesen aus Einbeck": a referral keyword within 50 characters before
// a known city qualifies it.
func (d *Detector) findReferrals(text string) []detector.Entity {
	return d.findCityGroup(text, d.refCity, TypeCity, LevelReferral, false)
}

// findCityGroup evaluates two-group city patterns (context group, city
// group). fullSpan widens the entity to the entire match instead of just
// the city group.
func (d *Detector) findCityGroup(text string, patterns []termPattern, entityType string, level Level, fullSpan bool) []detector.Entity {
	var found []detector.Entity
	for _, cp := range patterns {
		for _, m := range cp.re.FindAllStringSubmatchIndex(text, -1) {
			ctxStart, ctxEnd := m[2], m[3]
			cityStart, cityEnd := m[4], m[5]
			if !wholeWord(text, ctxStart, ctxEnd) || !wholeWord(text, cityStart, cityEnd) {
				continue
			}
			start, end := cityStart, cityEnd
			if fullSpan {
				start, end = m[0], m[1]
			}
			found = append(found, entity(text, start, end, entityType, level))
		}
	}
	return found
}

// suppressNestedCities drops city matches fully contained in a facility
// span, so "Klinikum Darmstadt" stays one facility entity.
func suppressNestedCities(entities []detector.Entity) []detector.Entity {
	var facilities []detector.Span
	for _, e := range entities {
		if e.Type == TypeFacility {
			facilities = append(facilities, e.Span)
		}
	}
	if len(facilities) == 0 {
		return entities
	}
	out := entities[:0]
	for _, e := range entities {
		nested := false
		if e.Type == TypeCity {
			for _, f := range facilities {
				if f.Contains(e.Span) {
					nested = true
					break
				}
			}
		}
		if !nested {
			out = append(out, e)
		}
	}
	return out
}

// dedupe keeps exactly one entity per overlapping group, lowest level
// first, earliest start as tie-break. Result is ordered by start offset.
func dedupe(entities []detector.Entity) []detector.Entity {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Priority != entities[j].Priority {
			return entities[i].Priority < entities[j].Priority
		}
		return entities[i].Span.Start < entities[j].Span.Start
	})

	var kept []detector.Entity
	for _, e := range entities {
		overlaps := false
		for _, k := range kept {
			if e.Span.Overlaps(k.Span) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Span.Start < kept[j].Span.Start
	})
	return kept
}

func entity(text string, start, end int, entityType string, level Level) detector.Entity {
	return detector.Entity{
		Text:     text[start:end],
		Type:     entityType,
		Span:     detector.Span{Start: start, End: end},
		Rule:     "location." + levelName(level),
		Priority: int(level),
	}
}

// levelName is a plain switch: entity construction runs from the find
// functions referenced by contextLevels, so looking the name up in that
// table would make the package-level initialization cyclic.
func levelName(level Level) string {
	switch level {
	case LevelBlacklist:
		return "blacklist"
	case LevelPostal:
		return "postal_code"
	case LevelPreposition:
		return "preposition"
	case LevelFacility:
		return "facility"
	case LevelReferral:
		return "referral"
	default:
		return "unknown"
	}
}

// compileLiteral builds a case-insensitive literal matcher. Word-boundary
// checks happen separately because \b is ASCII-only and the vocabulary is
// full of umlauts.
func compileLiteral(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
}

// alternation joins quoted terms into a regex alternation.
func alternation(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	return strings.Join(quoted, "|")
}

// wholeWord delegates to the shared boundary check.
func wholeWord(text string, start, end int) bool {
	return detector.WholeWord(text, start, end)
}
