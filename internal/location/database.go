// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package location recognizes city and medical facility names, but only
// when surrounding context qualifies them as personal data. A city name on
// its own never produces an entity; that keeps compound clinical terms like
// "Göttingen-Studie" untouched.
package location

import (
	"sort"

	"redact-clinical/internal/template"
)

// Minimal built-in reference data. Used when the template configures no
// cities, so a missing reference database degrades instead of failing.
var fallbackCities = []string{
	"Berlin", "Hamburg", "München", "Köln", "Frankfurt", "Stuttgart",
	"Düsseldorf", "Leipzig", "Dortmund", "Essen", "Bremen", "Dresden",
	"Hannover", "Nürnberg", "Göttingen", "Darmstadt", "Einbeck", "Kassel",
}

// Database holds the city and facility reference sets. It is immutable
// after construction and safe for concurrent readers.
type Database struct {
	cities     map[string]struct{}
	cityList   []string
	facilities []template.Facility
	fallback   bool
}

// NewDatabase builds the reference set. An empty city list selects the
// built-in fallback and marks the database accordingly so callers can
// surface a warning.
func NewDatabase(cities []string, facilities []template.Facility) *Database {
	db := &Database{
		cities:     make(map[string]struct{}),
		facilities: facilities,
	}
	if len(cities) == 0 {
		cities = fallbackCities
		db.fallback = true
	}
	for _, city := range cities {
		if city == "" {
			continue
		}
		if _, dup := db.cities[city]; !dup {
			db.cities[city] = struct{}{}
			db.cityList = append(db.cityList, city)
		}
	}
	// Sorted iteration keeps detection output deterministic.
	sort.Strings(db.cityList)
	return db
}

// IsCity reports whether name is a known city.
func (db *Database) IsCity(name string) bool {
	_, ok := db.cities[name]
	return ok
}

// Cities returns the known city names in sorted order.
func (db *Database) Cities() []string {
	return db.cityList
}

// Facilities returns the known facility reference set.
func (db *Database) Facilities() []template.Facility {
	return db.facilities
}

// UsesFallback reports whether the built-in list stands in for missing
// reference data.
func (db *Database) UsesFallback() bool {
	return db.fallback
}
