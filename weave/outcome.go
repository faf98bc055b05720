// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weave

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// An Outcome is the final value of each observed register of one
// completed branch, in the order of OutcomeSet.Regs.
type Outcome []int64

func (o Outcome) String() string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " ")
}

func (o Outcome) less(o2 Outcome) bool {
	for i := range o {
		if o[i] != o2[i] {
			return o[i] < o2[i]
		}
	}
	return false
}

// An OutcomeSet records the set of outcomes a program permits.
type OutcomeSet struct {
	Regs []string
	set  map[string]Outcome
}

// NewOutcomeSet returns an empty set of outcomes over regs.
func NewOutcomeSet(regs []string) *OutcomeSet {
	return &OutcomeSet{Regs: regs, set: make(map[string]Outcome)}
}

func (s *OutcomeSet) Add(o Outcome) {
	if len(o) != len(s.Regs) {
		panic(fmt.Sprintf("outcome %v has %d values, want %d", o, len(o), len(s.Regs)))
	}
	s.set[o.String()] = append(Outcome(nil), o...)
}

func (s *OutcomeSet) Has(o Outcome) bool {
	_, ok := s.set[o.String()]
	return ok
}

func (s *OutcomeSet) Len() int {
	return len(s.set)
}

// Contains returns true if every outcome in s2 is contained in s.
func (s *OutcomeSet) Contains(s2 *OutcomeSet) bool {
	for k := range s2.set {
		if _, ok := s.set[k]; !ok {
			return false
		}
	}
	return true
}

// AddAll adds all outcomes in s2 to s.
func (s *OutcomeSet) AddAll(s2 *OutcomeSet) {
	if len(s.Regs) != len(s2.Regs) {
		panic("cannot union OutcomeSets with differing registers")
	}
	for k, o := range s2.set {
		s.set[k] = o
	}
}

// Outcomes returns the outcomes in s in lexicographic order.
func (s *OutcomeSet) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(s.set))
	for _, o := range s.set {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

func (s *OutcomeSet) String() string {
	var buf strings.Builder
	buf.WriteString(strings.Join(s.Regs, " "))
	for _, o := range s.Outcomes() {
		buf.WriteString("\n")
		buf.WriteString(o.String())
	}
	return buf.String()
}

// PrintOutcomeTable writes one row per outcome permitted by any of
// sets and one column per set, marking whether that set permits the
// outcome. Rows where the columns disagree are marked with a "*".
// All sets must be over the same registers.
func PrintOutcomeTable(w io.Writer, cols []string, sets []*OutcomeSet) error {
	all := NewOutcomeSet(sets[0].Regs)
	for _, s := range sets {
		all.AddAll(s)
	}
	rows := all.Outcomes()

	// Size the outcome column.
	width := len(strings.Join(all.Regs, " "))
	for _, o := range rows {
		if n := len(o.String()); n > width {
			width = n
		}
	}

	// Print header.
	if _, err := fmt.Fprintf(w, "%-*s", width, strings.Join(all.Regs, " ")); err != nil {
		return err
	}
	for _, col := range cols {
		if _, err := fmt.Fprintf(w, "  %s", col); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "\n"); err != nil {
		return err
	}

	// Print rows.
	for _, o := range rows {
		if _, err := fmt.Fprintf(w, "%-*s", width, o); err != nil {
			return err
		}
		var haveY, haveN bool
		for i, col := range cols {
			ch := 'N'
			if sets[i].Has(o) {
				ch = 'Y'
				haveY = true
			} else {
				haveN = true
			}
			if _, err := fmt.Fprintf(w, "  %-*c", len(col), ch); err != nil {
				return err
			}
		}
		if haveY && haveN {
			if _, err := fmt.Fprintf(w, " *"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
