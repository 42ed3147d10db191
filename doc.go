// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mnca is a multiple-neighborhood cellular automaton engine that
// runs on the GPU.
//
// # Overview
//
// A square toroidal grid of binary cells evolves under up to four rule sets
// at once. Each rule set pairs a neighborhood mask with inclusive
// survive/born thresholds on its neighbor count, and the rule sets are
// additive: a cell lives in the next generation if any enabled set says so.
// One compute kernel evaluates every cell in parallel, 8×8 cells per
// workgroup, reading one of two grid buffers and writing the other.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/mnca"
//	    _ "github.com/gogpu/mnca/gpu" // enable the GPU device
//	)
//
//	e := mnca.New()
//	if !e.Initialize(512, 3) {
//	    log.Fatal(e.Err())
//	}
//	defer e.Destroy()
//
//	e.Reset(mnca.RandomGrid(512, 0.3, 1))
//	rules := mnca.ConwayRules(3)
//	for i := 0; i < 100; i++ {
//	    e.Step(rules)
//	}
//	cells := e.Read()
//
// # Devices
//
// Devices are registered by name. "software" runs the same kernel on the
// CPU and is always available; "gpu" uses gogpu/wgpu and is registered by
// importing github.com/gogpu/mnca/gpu. With WithDevice(DeviceAuto), the
// default, the GPU is tried first.
//
// # Synchronization
//
// Step and Reset return once their work is enqueued. Read waits until the
// device has finished everything enqueued before it, so a Read after n
// Steps always returns generation n.
//
// # Parameter layout
//
// Each step uploads 22 u32 words:
//
//	[gridSize, n, ls1, us1, lb1, ub1, en1, ..., ls4, us4, lb4, ub4, en4]
//
// See EncodeParams.
package mnca
