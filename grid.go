// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Point is a cell coordinate.
type Point struct {
	X, Y int
}

// NewGrid returns an all-dead size×size grid.
func NewGrid(size int) []uint32 {
	return make([]uint32, size*size)
}

// RandomGrid returns a size×size grid in which each cell is alive with the
// given probability. The same seed always yields the same grid.
func RandomGrid(size int, density float64, seed uint64) []uint32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	g := NewGrid(size)
	for i := range g {
		if rng.Float64() < density {
			g[i] = 1
		}
	}
	return g
}

// GridFromPoints returns a size×size grid with the given cells alive.
// Coordinates wrap toroidally.
func GridFromPoints(size int, points ...Point) []uint32 {
	g := NewGrid(size)
	for _, p := range points {
		x := ((p.X % size) + size) % size
		y := ((p.Y % size) + size) % size
		g[y*size+x] = 1
	}
	return g
}

// Population returns the number of live (non-zero) cells.
func Population(cells []uint32) int {
	n := 0
	for _, c := range cells {
		if c != 0 {
			n++
		}
	}
	return n
}

// FormatGrid renders a size×size grid as text, one row per line, with
// alive for live cells and dead for the rest.
func FormatGrid(cells []uint32, size int, alive, dead byte) string {
	if size <= 0 || len(cells) != size*size {
		return fmt.Sprintf("<invalid grid: %d cells for size %d>", len(cells), size)
	}
	var b strings.Builder
	b.Grow(size * (size + 1))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if cells[y*size+x] != 0 {
				b.WriteByte(alive)
			} else {
				b.WriteByte(dead)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
