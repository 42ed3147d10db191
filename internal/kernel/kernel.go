// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel is the CPU reference implementation of the generation
// compute kernel. It mirrors internal/gpu/shaders/generation.wgsl line for
// line and is used by the software device and as the test oracle for the
// GPU path.
package kernel

const (
	// RuleCount is the number of independent rule sets (and masks).
	RuleCount = 4

	// ParamWords is the number of u32 words in the parameter buffer.
	ParamWords = 2 + RuleCount*ruleWords

	// ParamBytes is the byte size of the parameter buffer.
	ParamBytes = ParamWords * 4

	// WorkgroupSize is the side of the square cell tile handled by one
	// workgroup. Matches @workgroup_size(8, 8) in the shader.
	WorkgroupSize = 8

	// ruleWords is the number of words per rule set:
	// lowerStable, upperStable, lowerBorn, upperBorn, enabled.
	ruleWords = 5
)

// Rule is one rule set as the kernel sees it.
type Rule struct {
	LowerStable uint32
	UpperStable uint32
	LowerBorn   uint32
	UpperBorn   uint32
	Enabled     bool
}

// Params is the decoded parameter buffer.
type Params struct {
	GridSize         uint32
	NeighborhoodSize uint32
	Rules            [RuleCount]Rule
}

// DecodeParams unpacks the fixed 22-word layout:
//
//	[gridSize, n, ls1, us1, lb1, ub1, en1, ..., ls4, us4, lb4, ub4, en4]
func DecodeParams(words [ParamWords]uint32) Params {
	p := Params{GridSize: words[0], NeighborhoodSize: words[1]}
	for r := 0; r < RuleCount; r++ {
		base := 2 + r*ruleWords
		p.Rules[r] = Rule{
			LowerStable: words[base],
			UpperStable: words[base+1],
			LowerBorn:   words[base+2],
			UpperBorn:   words[base+3],
			Enabled:     words[base+4] != 0,
		}
	}
	return p
}

// WorkgroupCount returns the number of workgroups per axis needed to cover
// gridSize cells: ceil(gridSize / WorkgroupSize).
func WorkgroupCount(gridSize uint32) uint32 {
	return (gridSize + WorkgroupSize - 1) / WorkgroupSize
}

// anyEnabled reports whether at least one rule set is enabled.
func (p *Params) anyEnabled() bool {
	for r := range p.Rules {
		if p.Rules[r].Enabled {
			return true
		}
	}
	return false
}

// Cell computes the next state of cell (x, y).
//
// in is the current grid, masks holds one n*n mask per rule set. Masks of
// disabled rule sets are never read and may be nil.
func Cell(in []uint32, masks *[RuleCount][]uint32, p *Params, x, y uint32) uint32 {
	size := p.GridSize
	current := in[y*size+x]
	if !p.anyEnabled() {
		return current
	}

	n := p.NeighborhoodSize
	radius := int64(n / 2)
	s := int64(size)

	var counts [RuleCount]uint32
	for dy := -radius; dy <= radius; dy++ {
		ny := uint32((int64(y) + dy + s) % s)
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := uint32((int64(x) + dx + s) % s)
			if in[ny*size+nx] == 0 {
				continue
			}
			mi := uint32(dy+radius)*n + uint32(dx+radius)
			for r := 0; r < RuleCount; r++ {
				if p.Rules[r].Enabled && masks[r][mi] != 0 {
					counts[r]++
				}
			}
		}
	}

	alive := current != 0
	for r := 0; r < RuleCount; r++ {
		rule := &p.Rules[r]
		if !rule.Enabled {
			continue
		}
		c := counts[r]
		if alive && c >= rule.LowerStable && c <= rule.UpperStable {
			return 1
		}
		if !alive && c >= rule.LowerBorn && c <= rule.UpperBorn {
			return 1
		}
	}
	return 0
}

// Tile runs one workgroup: the WorkgroupSize x WorkgroupSize block of cells
// whose top-left corner is (wx*WorkgroupSize, wy*WorkgroupSize). Cells past
// the grid edge are skipped, like the shader's bounds check.
func Tile(in, out []uint32, masks *[RuleCount][]uint32, p *Params, wx, wy uint32) {
	size := p.GridSize
	x0, y0 := wx*WorkgroupSize, wy*WorkgroupSize
	for y := y0; y < y0+WorkgroupSize && y < size; y++ {
		for x := x0; x < x0+WorkgroupSize && x < size; x++ {
			out[y*size+x] = Cell(in, masks, p, x, y)
		}
	}
}

// Generation applies one generation to the whole grid, writing into out.
// in and out must not alias.
func Generation(in, out []uint32, masks *[RuleCount][]uint32, p *Params) {
	groups := WorkgroupCount(p.GridSize)
	for wy := uint32(0); wy < groups; wy++ {
		for wx := uint32(0); wx < groups; wx++ {
			Tile(in, out, masks, p, wx, wy)
		}
	}
}
