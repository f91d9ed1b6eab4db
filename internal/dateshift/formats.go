// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package dateshift

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// formatFamily identifies one of the three recognized date spellings.
// Output is always rendered in the same family as the input.
type formatFamily int

const (
	formatNumeric     formatFamily = iota // 05.11.2023
	formatFullMonth                       // 5. November 2023
	formatAbbrevMonth                     // 5. Nov. 2023
)

// Rendered month names. Abbreviations follow the common German spellings;
// Mai, Juni and Juli have no shortened form.
var (
	monthNames = [12]string{
		"Januar", "Februar", "März", "April", "Mai", "Juni",
		"Juli", "August", "September", "Oktober", "November", "Dezember",
	}
	monthAbbrevs = [12]string{
		"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni",
		"Juli", "Aug.", "Sept.", "Okt.", "Nov.", "Dez.",
	}
)

// monthLookup accepts both full names and the abbreviation variants seen in
// clinical letters. Keys are lowercased without a trailing dot.
var monthLookup = map[string]struct {
	month  int
	abbrev bool
}{
	"januar": {1, false}, "februar": {2, false}, "märz": {3, false},
	"april": {4, false}, "mai": {5, false}, "juni": {6, false},
	"juli": {7, false}, "august": {8, false}, "september": {9, false},
	"oktober": {10, false}, "november": {11, false}, "dezember": {12, false},

	"jan": {1, true}, "feb": {2, true}, "mär": {3, true}, "mrz": {3, true},
	"apr": {4, true}, "jun": {6, true}, "jul": {7, true}, "aug": {8, true},
	"sep": {9, true}, "sept": {9, true}, "okt": {10, true},
	"nov": {11, true}, "dez": {12, true},
}

var (
	numericDateRe = regexp.MustCompile(`^\s*(\d{1,2})\.(\d{1,2})\.(\d{4})\s*$`)
	namedDateRe   = regexp.MustCompile(`^\s*(\d{1,2})\.\s*([A-Za-zÄÖÜäöü]+)(\.?)(?:\s+(\d{4}))?\s*$`)
)

type parsedDate struct {
	day, month, year int
	hasYear          bool
	family           formatFamily
}

// parseDate decodes one of the three recognized spellings. refYear fills in
// the year for arithmetic when the text carries none; the rendered output
// will omit the year again.
func parseDate(raw string, refYear int) (parsedDate, bool) {
	if m := numericDateRe.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		p := parsedDate{day: day, month: month, year: year, hasYear: true, family: formatNumeric}
		if !validDate(p) {
			return parsedDate{}, false
		}
		return p, true
	}

	if m := namedDateRe.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		entry, ok := monthLookup[strings.ToLower(m[2])]
		if !ok {
			return parsedDate{}, false
		}
		p := parsedDate{day: day, month: entry.month, family: formatFullMonth}
		if entry.abbrev || m[3] == "." {
			p.family = formatAbbrevMonth
		}
		if m[4] != "" {
			p.year, _ = strconv.Atoi(m[4])
			p.hasYear = true
		} else {
			p.year = refYear
		}
		if !validDate(p) {
			return parsedDate{}, false
		}
		return p, true
	}

	return parsedDate{}, false
}

// validDate rejects normalized-away inputs such as 32.01.2023: time.Date
// silently carries them into the next month, so round-trip and compare.
func validDate(p parsedDate) bool {
	if p.month < 1 || p.month > 12 || p.day < 1 {
		return false
	}
	t := time.Date(p.year, time.Month(p.month), p.day, 0, 0, 0, 0, time.UTC)
	return t.Day() == p.day && int(t.Month()) == p.month && t.Year() == p.year
}

// renderDate writes a shifted date back in the input's format family.
func renderDate(t time.Time, family formatFamily, hasYear bool) string {
	day := t.Day()
	month := int(t.Month())
	year := t.Year()

	switch family {
	case formatNumeric:
		return fmt.Sprintf("%02d.%02d.%04d", day, month, year)
	case formatFullMonth:
		if !hasYear {
			return fmt.Sprintf("%d. %s", day, monthNames[month-1])
		}
		return fmt.Sprintf("%d. %s %d", day, monthNames[month-1], year)
	default:
		if !hasYear {
			return fmt.Sprintf("%d. %s", day, monthAbbrevs[month-1])
		}
		return fmt.Sprintf("%d. %s %d", day, monthAbbrevs[month-1], year)
	}
}
