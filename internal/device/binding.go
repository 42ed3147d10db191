// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import "fmt"

// GridBuffer identifies one of the two physical ping-pong grid buffers.
type GridBuffer int

const (
	// Grid1 is the first grid buffer.
	Grid1 GridBuffer = iota
	// Grid2 is the second grid buffer.
	Grid2
)

// String returns the buffer name.
func (g GridBuffer) String() string {
	switch g {
	case Grid1:
		return "grid1"
	case Grid2:
		return "grid2"
	default:
		return fmt.Sprintf("Unknown(%d)", int(g))
	}
}

// Binding is one of the two bind group configurations.
type Binding int

const (
	// BindingA reads Grid1 and writes Grid2.
	BindingA Binding = iota
	// BindingB reads Grid2 and writes Grid1.
	BindingB
)

// String returns the configuration name.
func (b Binding) String() string {
	switch b {
	case BindingA:
		return "A"
	case BindingB:
		return "B"
	default:
		return fmt.Sprintf("Unknown(%d)", int(b))
	}
}

// Input returns the buffer the kernel reads under b.
func (b Binding) Input() GridBuffer {
	if b == BindingB {
		return Grid2
	}
	return Grid1
}

// Output returns the buffer the kernel writes under b.
func (b Binding) Output() GridBuffer {
	if b == BindingB {
		return Grid1
	}
	return Grid2
}

// BindingForFrame selects the configuration for the step issued at frame:
// A when frame is even, B when odd.
func BindingForFrame(frame uint64) Binding {
	if frame%2 == 0 {
		return BindingA
	}
	return BindingB
}

// CurrentGrid returns the buffer holding the latest state once frame steps
// have been issued since the last reset. It is the output of the step issued
// at frame-1, so an odd frame means Grid2. At frame 0 both buffers hold the
// reset state and Grid1 is returned.
func CurrentGrid(frame uint64) GridBuffer {
	if frame == 0 {
		return Grid1
	}
	return BindingForFrame(frame - 1).Output()
}
