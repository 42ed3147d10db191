// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import "errors"

// Engine errors. Public engine calls never return them directly; they
// degrade to a no-op or nil result and record the cause, which Engine.Err
// reports wrapped around one of these sentinels.
var (
	// ErrUnsupportedBackend means no compute-capable device could be
	// opened. It is persistent: the engine stays not ready.
	ErrUnsupportedBackend = errors.New("mnca: no compute-capable device available")

	// ErrDispatch means uploading or submitting a step failed. The step
	// was skipped and the frame counter did not advance.
	ErrDispatch = errors.New("mnca: step dispatch failed")

	// ErrReadback means copying or mapping the current grid failed.
	ErrReadback = errors.New("mnca: grid readback failed")

	// ErrInvalidConfig means the grid or neighborhood size was rejected.
	ErrInvalidConfig = errors.New("mnca: invalid engine configuration")

	// ErrInvalidRuleData means a rule payload did not match the
	// neighborhood size.
	ErrInvalidRuleData = errors.New("mnca: invalid rule data")

	// ErrInvalidGrid means a grid did not hold gridSize² cells.
	ErrInvalidGrid = errors.New("mnca: invalid grid")

	// ErrNotReady means the call was dropped because the engine was not
	// in the Ready state.
	ErrNotReady = errors.New("mnca: engine not ready")
)
