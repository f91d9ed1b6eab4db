// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package dateshift

import "testing"

func TestShiftPreservesFormatFamily(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		input  string
		want   string
	}{
		{"numeric", 25, "05.11.2023", "30.11.2023"},
		{"full month", 25, "5. November 2023", "30. November 2023"},
		{"abbreviated month", 15, "25. Aug. 2023", "9. Sept. 2023"},
		{"month carry", 15, "25.08.2023", "09.09.2023"},
		{"year carry", 15, "20.12.2023", "04.01.2024"},
		{"negative offset", -10, "05.01.2024", "26.12.2023"},
		{"leading whitespace", 25, " 05.11.2023", "30.11.2023"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.offset)
			got, ok := s.Shift(tt.input)
			if !ok {
				t.Fatalf("Shift(%q) reported a miss", tt.input)
			}
			if got != tt.want {
				t.Errorf("Shift(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShiftYearlessDates(t *testing.T) {
	s := New(10).WithReferenceYear(2023)

	got, ok := s.Shift("24. Dezember")
	if !ok {
		t.Fatal("Shift reported a miss for a yearless date")
	}
	// Arithmetic crosses into January of the next year; output stays
	// yearless like the input.
	if got != "3. Januar" {
		t.Errorf("Shift(24. Dezember) = %q, want %q", got, "3. Januar")
	}

	got, ok = s.Shift("24. Dez.")
	if !ok {
		t.Fatal("Shift reported a miss for an abbreviated yearless date")
	}
	if got != "3. Jan." {
		t.Errorf("Shift(24. Dez.) = %q, want %q", got, "3. Jan.")
	}
}

func TestShiftIsDeterministicWithinDocument(t *testing.T) {
	s := New(7)
	first, _ := s.Shift("01.03.2024")
	second, _ := s.Shift("01.03.2024")
	if first != second {
		t.Errorf("repeated shifts differ: %q vs %q", first, second)
	}

	s.Reset()
	third, _ := s.Shift("01.03.2024")
	if third != first {
		t.Errorf("shift after reset differs: %q vs %q", third, first)
	}
}

func TestShiftUnparseableInput(t *testing.T) {
	s := New(5)
	for _, raw := range []string{
		"kein Datum",
		"32.01.2023", // day out of range
		"29.02.2023", // not a leap year
		"15.13.2023", // month out of range
		"5. Brumaire 2023",
	} {
		got, ok := s.Shift(raw)
		if ok {
			t.Errorf("Shift(%q) unexpectedly parsed to %q", raw, got)
		}
		if got != raw {
			t.Errorf("Shift(%q) changed unparseable input to %q", raw, got)
		}
	}
	if s.Misses() != 5 {
		t.Errorf("Misses() = %d, want 5", s.Misses())
	}
}

func TestNewWithinRange(t *testing.T) {
	for i := 0; i < 20; i++ {
		s, err := NewWithinRange(-30, 30)
		if err != nil {
			t.Fatalf("NewWithinRange failed: %v", err)
		}
		if off := s.OffsetDays(); off < -30 || off > 30 {
			t.Fatalf("offset %d outside [-30, 30]", off)
		}
	}

	s, err := NewWithinRange(12, 12)
	if err != nil {
		t.Fatalf("NewWithinRange failed for degenerate range: %v", err)
	}
	if s.OffsetDays() != 12 {
		t.Errorf("degenerate range picked %d, want 12", s.OffsetDays())
	}

	if _, err := NewWithinRange(5, -5); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestShiftLeapDay(t *testing.T) {
	s := New(1)
	got, ok := s.Shift("29.02.2024")
	if !ok {
		t.Fatal("leap day in a leap year must parse")
	}
	if got != "01.03.2024" {
		t.Errorf("Shift(29.02.2024) = %q, want %q", got, "01.03.2024")
	}
}
