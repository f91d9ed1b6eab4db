// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package dateshift applies one fixed day offset to every date expression
// in a document, so relative time intervals between clinical events stay
// intact after anonymization.
package dateshift

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Shifter remaps date strings by a fixed day offset. The offset is chosen
// once and never changes for the lifetime of the shifter, which makes every
// shift deterministic: identical input text always yields identical output
// within one document.
//
// A Shifter is safe for concurrent use; the memo table is only a cache and
// never affects correctness.
type Shifter struct {
	offsetDays int
	refYear    int

	mu     sync.Mutex
	memo   map[string]string
	misses int
}

// New returns a shifter with an explicit day offset. The reference year for
// year-implicit dates defaults to the current year at construction.
func New(offsetDays int) *Shifter {
	return &Shifter{
		offsetDays: offsetDays,
		refYear:    time.Now().Year(),
		memo:       make(map[string]string),
	}
}

// NewWithinRange picks a random offset in [min, max] once and holds it
// constant for the document.
func NewWithinRange(min, max int) (*Shifter, error) {
	if min > max {
		return nil, fmt.Errorf("invalid shift range: min (%d) must not exceed max (%d)", min, max)
	}
	offset := min
	if min < max {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
		if err != nil {
			return nil, fmt.Errorf("failed to pick shift offset: %w", err)
		}
		offset = min + int(n.Int64())
	}
	return New(offset), nil
}

// WithReferenceYear overrides the year used for arithmetic on dates that
// carry no explicit year. Returns the shifter for chaining.
func (s *Shifter) WithReferenceYear(year int) *Shifter {
	s.refYear = year
	return s
}

// OffsetDays returns the fixed day offset of this shifter.
func (s *Shifter) OffsetDays() int {
	return s.offsetDays
}

// Shift remaps a date string by the configured offset, preserving the
// format family of the input: numeric stays numeric, full month names stay
// full, abbreviated stay abbreviated, and a missing year stays missing.
//
// Unparseable input is returned unchanged with ok == false; that is a
// normal extraction miss, never an error.
func (s *Shifter) Shift(raw string) (shifted string, ok bool) {
	s.mu.Lock()
	if cached, hit := s.memo[raw]; hit {
		s.mu.Unlock()
		return cached, true
	}
	s.mu.Unlock()

	parsed, ok := parseDate(raw, s.refYear)
	if !ok {
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		return raw, false
	}

	// Exact calendar arithmetic with month and year carry.
	t := time.Date(parsed.year, time.Month(parsed.month), parsed.day, 0, 0, 0, 0, time.UTC)
	t = t.AddDate(0, 0, s.offsetDays)

	shifted = renderDate(t, parsed.family, parsed.hasYear)

	s.mu.Lock()
	s.memo[raw] = shifted
	s.mu.Unlock()
	return shifted, true
}

// Misses returns how many inputs failed to parse so far.
func (s *Shifter) Misses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misses
}

// Reset clears the memo table. Shift results stay identical afterwards
// because they depend only on the fixed offset.
func (s *Shifter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo = make(map[string]string)
	s.misses = 0
}
