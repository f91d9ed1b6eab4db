// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package extractor

import (
	"regexp"
	"strings"
	"testing"

	"redact-clinical/internal/detector"
	"redact-clinical/internal/template"
)

func simpleRule(name, pattern, entityType string, order int) template.PatternRule {
	return template.PatternRule{
		Name:    name,
		Kind:    template.RuleSimple,
		Pattern: pattern,
		Regexp:  regexp.MustCompile(pattern),
		Type:    entityType,
		Order:   order,
	}
}

func TestSimpleRuleWholeMatch(t *testing.T) {
	e := New([]template.PatternRule{
		simpleRule("case_number", `FA-\d{6}`, "CASE_NUMBER", 0),
	})
	got := e.Extract("Fallnummer FA-123456 vom Vortag")
	if len(got) != 1 {
		t.Fatalf("got %d entities, want 1", len(got))
	}
	if got[0].Text != "FA-123456" || got[0].Type != "CASE_NUMBER" {
		t.Errorf("got %s %q", got[0].Type, got[0].Text)
	}
}

func TestSimpleRuleGroupOne(t *testing.T) {
	e := New([]template.PatternRule{
		simpleRule("insurance", `Versichertennr\.?:\s*([A-Z]\d{9})`, "INSURANCE_ID", 0),
	})
	got := e.Extract("Versichertennr: A123456789 (AOK)")
	if len(got) != 1 {
		t.Fatalf("got %d entities, want 1", len(got))
	}
	// With capture groups present, the entity is group 1, not the whole
	// match including the label.
	if got[0].Text != "A123456789" {
		t.Errorf("text = %q, want %q", got[0].Text, "A123456789")
	}
	if got[0].Span.End-got[0].Span.Start != len("A123456789") {
		t.Errorf("span does not cover exactly the group")
	}
}

func TestMultiGroupSharesRecordID(t *testing.T) {
	rule := template.PatternRule{
		Name:    "patient_line",
		Kind:    template.RuleMultiGroup,
		Pattern: `(Herr|Frau)\s+([A-ZÄÖÜ][a-zäöüß]+),\s+([A-ZÄÖÜ][a-zäöüß]+),\s+geb\.\s+(\d{2}\.\d{2}\.\d{4})`,
		Regexp:  regexp.MustCompile(`(Herr|Frau)\s+([A-ZÄÖÜ][a-zäöüß]+),\s+([A-ZÄÖÜ][a-zäöüß]+),\s+geb\.\s+(\d{2}\.\d{2}\.\d{4})`),
		Groups: map[int]string{
			1: "SALUTATION",
			2: "LAST_NAME",
			3: "FIRST_NAME",
			4: "BIRTH_DATE",
		},
		Order: 0,
	}
	e := New([]template.PatternRule{rule})

	text := "Herr Müller, Max, geb. 01.01.1960 und Frau Schmidt, Erika, geb. 02.02.1970"
	got := e.Extract(text)
	if len(got) != 8 {
		t.Fatalf("got %d entities, want 8", len(got))
	}

	byRecord := make(map[int][]detector.Entity)
	for _, ent := range got {
		if ent.RecordID == 0 {
			t.Errorf("entity %q has no record ID", ent.Text)
		}
		byRecord[ent.RecordID] = append(byRecord[ent.RecordID], ent)
	}
	if len(byRecord) != 2 {
		t.Fatalf("got %d records, want 2", len(byRecord))
	}
	for id, ents := range byRecord {
		if len(ents) != 4 {
			t.Errorf("record %d has %d entities, want 4", id, len(ents))
		}
	}
}

func TestMultiGroupSkipsEmptyGroups(t *testing.T) {
	rule := template.PatternRule{
		Name:    "name_opt_title",
		Kind:    template.RuleMultiGroup,
		Pattern: `(Dr\.)?\s*([A-Z][a-z]+)`,
		Regexp:  regexp.MustCompile(`(Dr\.)?\s*([A-Z][a-z]+)`),
		Groups:  map[int]string{1: "TITLE", 2: "NAME"},
	}
	e := New([]template.PatternRule{rule})

	got := e.Extract("Besuch bei Weber")
	for _, ent := range got {
		if ent.Type == "TITLE" {
			t.Errorf("non-participating group produced entity %q", ent.Text)
		}
	}
}

func TestContextTriggeredLookaheadWindow(t *testing.T) {
	rule := template.PatternRule{
		Name:      "nearby_id",
		Kind:      template.RuleContextTriggered,
		Pattern:   `\d{5}`,
		Regexp:    regexp.MustCompile(`\d{5}`),
		Type:      "NEARBY_ID",
		Triggers:  []string{"Aktenzeichen"},
		Lookahead: 150,
	}
	e := New([]template.PatternRule{rule})

	inWindow := "Aktenzeichen" + strings.Repeat("x", 100) + "12345"
	got := e.Extract(inWindow)
	if len(got) != 1 {
		t.Fatalf("match at offset 100 inside lookahead 150: got %d entities, want 1", len(got))
	}
	if got[0].Type != "NEARBY_ID" {
		t.Errorf("type = %q, want NEARBY_ID", got[0].Type)
	}

	beyondWindow := "Aktenzeichen" + strings.Repeat("x", 200) + "12345"
	if got := e.Extract(beyondWindow); len(got) != 0 {
		t.Errorf("match at offset 200 beyond lookahead 150: got %d entities, want 0", len(got))
	}

	beforeTrigger := "12345 Aktenzeichen"
	if got := e.Extract(beforeTrigger); len(got) != 0 {
		t.Errorf("match before the trigger: got %d entities, want 0", len(got))
	}
}

func TestContextTriggeredEveryOccurrence(t *testing.T) {
	rule := template.PatternRule{
		Name:      "nearby_id",
		Kind:      template.RuleContextTriggered,
		Pattern:   `\d{5}`,
		Regexp:    regexp.MustCompile(`\d{5}`),
		Triggers:  []string{"Az."},
		Lookahead: 20,
	}
	e := New([]template.PatternRule{rule})

	got := e.Extract("Az. 11111 und später Az. 22222")
	if len(got) != 2 {
		t.Fatalf("got %d entities, want one per trigger occurrence", len(got))
	}
}

func TestResolveOverlapsEarlierRuleWins(t *testing.T) {
	candidates := []detector.Entity{
		{Text: "123-456", Type: "B", Span: detector.Span{Start: 10, End: 17}, Rule: "later", RuleOrder: 1},
		{Text: "123", Type: "A", Span: detector.Span{Start: 10, End: 13}, Rule: "earlier", RuleOrder: 0},
	}
	got := ResolveOverlaps(candidates)
	if len(got) != 1 {
		t.Fatalf("got %d entities, want 1", len(got))
	}
	if got[0].Rule != "earlier" {
		t.Errorf("surviving rule = %q, want the earlier-declared one", got[0].Rule)
	}
}

func TestResolveOverlapsKeepsDisjointAndSortsByPosition(t *testing.T) {
	candidates := []detector.Entity{
		{Span: detector.Span{Start: 50, End: 55}, Rule: "a", RuleOrder: 0},
		{Span: detector.Span{Start: 10, End: 15}, Rule: "b", RuleOrder: 1},
		{Span: detector.Span{Start: 30, End: 40}, Rule: "c", RuleOrder: 2},
	}
	got := ResolveOverlaps(candidates)
	if len(got) != 3 {
		t.Fatalf("got %d entities, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Span.Start > got[i].Span.Start {
			t.Fatalf("result not ordered by position: %+v", got)
		}
	}
}
