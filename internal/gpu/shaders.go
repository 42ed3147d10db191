// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
)

// generationShaderSource is the WGSL generation kernel. internal/kernel is
// its CPU twin and must be kept in step with it.
//
//go:embed shaders/generation.wgsl
var generationShaderSource string

// GenerationShaderSource returns the WGSL source of the generation kernel.
func GenerationShaderSource() string {
	return generationShaderSource
}
