// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"fmt"
	"math"
)

// RuleCount is the number of rule sets evaluated per generation.
const RuleCount = 4

// Mask is a square neighborhood mask of side n, flattened row-major.
// A non-zero entry marks the relative offset as a neighbor. The centre entry
// is ignored by the kernel whatever its value.
type Mask []uint32

// NewMask returns an empty n×n mask.
func NewMask(n int) Mask {
	return make(Mask, n*n)
}

// MooreMask returns an n×n mask with every offset within Chebyshev distance
// radius of the centre set, centre excluded. radius <= 0 selects the whole
// mask.
func MooreMask(n, radius int) Mask {
	m := NewMask(n)
	r := n / 2
	if radius <= 0 || radius > r {
		radius = r
	}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx != 0 || dy != 0 {
				m.Set(dx, dy, true)
			}
		}
	}
	return m
}

// RingMask returns an n×n mask with every offset whose Euclidean distance
// from the centre lies in [inner, outer] set, centre excluded.
func RingMask(n int, inner, outer float64) Mask {
	m := NewMask(n)
	r := n / 2
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d := math.Hypot(float64(dx), float64(dy))
			if d >= inner && d <= outer {
				m.Set(dx, dy, true)
			}
		}
	}
	return m
}

// Side returns n for an n×n mask, or 0 if the length is not a square.
func (m Mask) Side() int {
	n := int(math.Sqrt(float64(len(m))))
	for n*n > len(m) {
		n--
	}
	for (n+1)*(n+1) <= len(m) {
		n++
	}
	if n*n != len(m) {
		return 0
	}
	return n
}

// index maps an offset relative to the centre to a flat index.
func (m Mask) index(dx, dy int) (int, bool) {
	n := m.Side()
	r := n / 2
	if n == 0 || dx < -r || dx > r || dy < -r || dy > r {
		return 0, false
	}
	return (dy+r)*n + (dx + r), true
}

// Set marks or clears the offset (dx, dy) relative to the centre.
// Offsets outside the mask are ignored.
func (m Mask) Set(dx, dy int, on bool) {
	i, ok := m.index(dx, dy)
	if !ok {
		return
	}
	if on {
		m[i] = 1
	} else {
		m[i] = 0
	}
}

// At reports whether the offset (dx, dy) relative to the centre is set.
func (m Mask) At(dx, dy int) bool {
	i, ok := m.index(dx, dy)
	return ok && m[i] != 0
}

// Count returns the number of offsets the kernel can count, which excludes
// the centre.
func (m Mask) Count() int {
	c := 0
	for _, v := range m {
		if v != 0 {
			c++
		}
	}
	if m.At(0, 0) {
		c--
	}
	return c
}

// RuleSet holds the inclusive neighbor-count thresholds of one rule set.
// A live cell survives when its count lies in [LowerStable, UpperStable];
// a dead cell is born when it lies in [LowerBorn, UpperBorn].
type RuleSet struct {
	LowerStable uint32
	UpperStable uint32
	LowerBorn   uint32
	UpperBorn   uint32
	Enabled     bool
}

// RuleData is the per-step payload. Masks[i] gates Rules[i].
type RuleData struct {
	Masks [RuleCount]Mask
	Rules [RuleCount]RuleSet
}

// Validate checks that every mask holds n² entries. The mask of a disabled
// rule set may be nil; it is uploaded as all zero.
func (rd *RuleData) Validate(n uint32) error {
	if rd == nil {
		return fmt.Errorf("%w: nil rule data", ErrInvalidRuleData)
	}
	want := int(n) * int(n)
	for i := range rd.Masks {
		if rd.Masks[i] == nil && !rd.Rules[i].Enabled {
			continue
		}
		if len(rd.Masks[i]) != want {
			return fmt.Errorf("%w: mask %d has %d entries, want %d",
				ErrInvalidRuleData, i+1, len(rd.Masks[i]), want)
		}
	}
	return nil
}

// Clone returns a deep copy of rd.
func (rd *RuleData) Clone() *RuleData {
	c := *rd
	for i := range c.Masks {
		if rd.Masks[i] != nil {
			c.Masks[i] = append(Mask(nil), rd.Masks[i]...)
		}
	}
	return &c
}

// ConwayRules returns Conway's Life (B3/S23) for an n×n neighborhood: the
// eight adjacent cells in rule set 1, the other sets disabled.
func ConwayRules(n int) *RuleData {
	rd := &RuleData{}
	rd.Masks[0] = MooreMask(n, 1)
	rd.Rules[0] = RuleSet{LowerStable: 2, UpperStable: 3, LowerBorn: 3, UpperBorn: 3, Enabled: true}
	return rd
}

// MultiRingRules returns a multiple-neighborhood rule for an n×n
// neighborhood built from concentric rings. Thresholds are fractions of
// each mask's population, so the rule keeps its character as n grows.
// n should be at least 7 for the rings to be distinct.
func MultiRingRules(n int) *RuleData {
	r := float64(n / 2)
	rd := &RuleData{}

	type ring struct {
		inner, outer   float64
		ls, us, lb, ub float64
	}
	rings := [RuleCount]ring{
		{inner: 1, outer: r * 0.4, ls: 0.20, us: 0.50, lb: 0.30, ub: 0.40},
		{inner: r * 0.4, outer: r * 0.7, ls: 0.10, us: 0.30, lb: 0.25, ub: 0.30},
		{inner: r * 0.7, outer: r, ls: 0.05, us: 0.15, lb: 0.15, ub: 0.18},
		{inner: 1, outer: r, ls: 0.35, us: 0.45, lb: 0.60, ub: 0.65},
	}
	for i, g := range rings {
		m := RingMask(n, g.inner, g.outer)
		c := float64(m.Count())
		rd.Masks[i] = m
		rd.Rules[i] = RuleSet{
			LowerStable: uint32(math.Round(g.ls * c)),
			UpperStable: uint32(math.Round(g.us * c)),
			LowerBorn:   uint32(math.Max(1, math.Round(g.lb*c))),
			UpperBorn:   uint32(math.Max(1, math.Round(g.ub*c))),
			Enabled:     c > 0,
		}
	}
	return rd
}
