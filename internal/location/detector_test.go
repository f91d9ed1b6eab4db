// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package location

import (
	"testing"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/template"
)

func testConfig() Config {
	return Config{
		Blacklist:        []string{"UKE"},
		Prepositions:     []string{"aus", "in", "nach", "von", "bei"},
		FacilityKeywords: []string{"Universitätsklinikum", "Klinikum", "Krankenhaus"},
		ReferralKeywords: []string{"überwiesen", "Zuweiser", "eingewiesen", "verlegt"},
	}
}

func newTestDetector(facilities ...template.Facility) *Detector {
	return NewDetector(NewDatabase(nil, facilities), testConfig())
}

func entityTypes(entities []detector.Entity) []string {
	types := make([]string, len(entities))
	for i, e := range entities {
		types[i] = e.Type
	}
	return types
}

func TestContextFreeCityNeverMatches(t *testing.T) {
	d := newTestDetector()
	for _, text := range []string{
		"Die Göttingen-Studie zeigt gute Ergebnisse.",
		"Göttingen",
		"Die Hamburger Klassifikation wurde angewandt.",
	} {
		if got := d.FindLocations(text); len(got) != 0 {
			t.Errorf("FindLocations(%q) = %v, want none", text, entityTypes(got))
		}
	}
}

func TestPostalCodeContext(t *testing.T) {
	d := newTestDetector()
	got := d.FindLocations("Robert-Koch-Str. 40, 37075 Göttingen")
	if len(got) != 2 {
		t.Fatalf("got %d entities (%v), want 2", len(got), entityTypes(got))
	}
	if got[0].Type != TypePostalCode || got[0].Text != "37075" {
		t.Errorf("first entity = %s %q, want POSTAL_CODE 37075", got[0].Type, got[0].Text)
	}
	if got[1].Type != TypeCity || got[1].Text != "Göttingen" {
		t.Errorf("second entity = %s %q, want CITY Göttingen", got[1].Type, got[1].Text)
	}
	for _, e := range got {
		if e.Priority != int(LevelPostal) {
			t.Errorf("%s priority = %d, want %d", e.Type, e.Priority, LevelPostal)
		}
	}
}

func TestPostalCodeTrimsTrailingWords(t *testing.T) {
	d := newTestDetector()
	// The capitalized token after the city is not part of the city name and
	// must be trimmed away, not swallowed.
	got := d.FindLocations("37075 Göttingen Telefon 0551")
	if len(got) != 2 {
		t.Fatalf("got %d entities, want 2", len(got))
	}
	if got[1].Text != "Göttingen" {
		t.Errorf("city = %q, want %q", got[1].Text, "Göttingen")
	}
}

func TestBlacklistAlwaysMatches(t *testing.T) {
	d := newTestDetector()
	got := d.FindLocations("Behandlung im UKE empfohlen")
	if len(got) != 1 {
		t.Fatalf("got %d entities, want 1", len(got))
	}
	if got[0].Type != TypeBlacklist || got[0].Priority != int(LevelBlacklist) {
		t.Errorf("got %s priority %d, want %s priority %d",
			got[0].Type, got[0].Priority, TypeBlacklist, LevelBlacklist)
	}
}

func TestBlacklistRespectsWordBoundaries(t *testing.T) {
	d := newTestDetector()
	if got := d.FindLocations("Besuch von DUKE University"); len(got) != 0 {
		t.Errorf("blacklist matched inside a word: %v", entityTypes(got))
	}
}

func TestPrepositionContext(t *testing.T) {
	d := newTestDetector()
	got := d.FindLocations("Der Patient aus Darmstadt stellte sich vor.")
	if len(got) != 1 {
		t.Fatalf("got %d entities (%v), want 1", len(got), entityTypes(got))
	}
	if got[0].Type != TypeCity || got[0].Text != "Darmstadt" {
		t.Errorf("got %s %q, want CITY Darmstadt", got[0].Type, got[0].Text)
	}
	if got[0].Priority != int(LevelPreposition) {
		t.Errorf("priority = %d, want %d", got[0].Priority, LevelPreposition)
	}
}

func TestFacilityKeywordAbsorbsCity(t *testing.T) {
	d := newTestDetector()
	got := d.FindLocations("Aufnahme im Klinikum Darmstadt am Vortag.")
	if len(got) != 1 {
		t.Fatalf("got %d entities (%v), want 1", len(got), entityTypes(got))
	}
	if got[0].Type != TypeFacility {
		t.Errorf("type = %s, want %s", got[0].Type, TypeFacility)
	}
	if got[0].Text != "Klinikum Darmstadt" {
		t.Errorf("text = %q, want the full facility phrase", got[0].Text)
	}
}

func TestNamedFacilityAndAlias(t *testing.T) {
	d := newTestDetector(template.Facility{
		Name:    "Universitätsmedizin Göttingen",
		Aliases: []string{"UMG"},
		City:    "Göttingen",
	})

	got := d.FindLocations("Vorstellung in der UMG erfolgt.")
	if len(got) != 1 || got[0].Type != TypeFacility {
		t.Fatalf("alias match failed: %v", entityTypes(got))
	}

	got = d.FindLocations("Verlegung in die Universitätsmedizin Göttingen.")
	if len(got) != 1 {
		t.Fatalf("got %d entities (%v), want 1", len(got), entityTypes(got))
	}
	if got[0].Text != "Universitätsmedizin Göttingen" {
		t.Errorf("text = %q, want the full facility name", got[0].Text)
	}
}

func TestReferralContext(t *testing.T) {
	d := newTestDetector()
	got := d.FindLocations("Zuweiser: Praxis Dr. Weber, Einbeck")
	if len(got) != 1 {
		t.Fatalf("got %d entities (%v), want 1", len(got), entityTypes(got))
	}
	if got[0].Type != TypeCity || got[0].Text != "Einbeck" {
		t.Errorf("got %s %q, want CITY Einbeck", got[0].Type, got[0].Text)
	}
	if got[0].Priority != int(LevelReferral) {
		t.Errorf("priority = %d, want %d", got[0].Priority, LevelReferral)
	}
}

func TestReferralDistanceLimit(t *testing.T) {
	d := newTestDetector()
	text := "überwiesen wurde der Patient nach ausführlicher Diagnostik und langem Verlauf schließlich; Einbeck"
	got := d.FindLocations(text)
	// More than 50 characters between keyword and city: no referral match.
	for _, e := range got {
		if e.Priority == int(LevelReferral) {
			t.Errorf("referral matched beyond the distance limit: %s %q", e.Type, e.Text)
		}
	}
}

func TestOverlapKeepsStrongestLevel(t *testing.T) {
	d := newTestDetector()
	// Preposition (level 3) and referral (level 5) both qualify the same
	// city; exactly one entity survives, at the stronger level.
	got := d.FindLocations("überwiesen aus Einbeck")
	if len(got) != 1 {
		t.Fatalf("got %d entities (%v), want 1", len(got), entityTypes(got))
	}
	if got[0].Priority != int(LevelPreposition) {
		t.Errorf("priority = %d, want %d", got[0].Priority, LevelPreposition)
	}
}

func TestEntityRuleNamesMatchLevels(t *testing.T) {
	d := newTestDetector()
	tests := []struct {
		text     string
		wantRule string
	}{
		{"Behandlung im UKE", "location.blacklist"},
		{"37075 Göttingen", "location.postal_code"},
		{"Der Patient aus Darmstadt", "location.preposition"},
		{"im Klinikum Darmstadt", "location.facility"},
		{"Zuweiser: Praxis Weber, Einbeck", "location.referral"},
	}
	for _, tt := range tests {
		got := d.FindLocations(tt.text)
		if len(got) == 0 {
			t.Errorf("FindLocations(%q) found nothing", tt.text)
			continue
		}
		if got[len(got)-1].Rule != tt.wantRule {
			t.Errorf("FindLocations(%q) rule = %q, want %q", tt.text, got[len(got)-1].Rule, tt.wantRule)
		}
	}
}

func TestLevelsOrder(t *testing.T) {
	levels := Levels()
	want := []Level{LevelBlacklist, LevelPostal, LevelPreposition, LevelFacility, LevelReferral}
	if len(levels) != len(want) {
		t.Fatalf("Levels() returned %d levels, want %d", len(levels), len(want))
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("level %d = %d, want %d", i, levels[i], want[i])
		}
	}
}

func TestFallbackDatabase(t *testing.T) {
	db := NewDatabase(nil, nil)
	if !db.UsesFallback() {
		t.Error("empty city list must select the fallback")
	}
	if !db.IsCity("Göttingen") {
		t.Error("fallback must know Göttingen")
	}

	db = NewDatabase([]string{"Musterstadt"}, nil)
	if db.UsesFallback() {
		t.Error("configured cities must not be marked as fallback")
	}
	if db.IsCity("Göttingen") {
		t.Error("configured database must not include fallback cities")
	}
}
