// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu registers the GPU compute device.
//
// Import this package to run the engine on the GPU through gogpu/wgpu
// (Vulkan). If no adapter can be opened, Initialize with the default
// DeviceAuto falls back to the software device. Building with the nogpu tag
// leaves the package empty.
//
// Usage:
//
//	import _ "github.com/gogpu/mnca/gpu" // enable the GPU device
package gpu
