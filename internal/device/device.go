// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device defines the contract between the engine and a compute
// device (GPU over wgpu/hal, or the software emulation).
//
// A Device owns one queue. Upload and dispatch calls only enqueue work and
// return once it is enqueued. ReadGrid is the single synchronisation point:
// it returns after every previously enqueued command has completed.
package device

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gogpu/mnca/internal/kernel"
)

// ErrUnsupported is returned by Open when no compute-capable device exists.
var ErrUnsupported = errors.New("device: no compute-capable device available")

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("device: closed")

// DefaultWaitTimeout bounds fence and queue waits.
const DefaultWaitTimeout = 5 * time.Second

// DefaultMaxInFlight is the number of unfinished submissions a device keeps
// before Dispatch blocks on the oldest one.
const DefaultMaxInFlight = 16

// Config is the fixed geometry of one engine instance.
type Config struct {
	GridSize         uint32
	NeighborhoodSize uint32
}

// Cells returns gridSize².
func (c Config) Cells() int { return int(c.GridSize) * int(c.GridSize) }

// MaskCells returns neighborhoodSize².
func (c Config) MaskCells() int { return int(c.NeighborhoodSize) * int(c.NeighborhoodSize) }

// GridBytes returns the byte size of one grid (or the staging) buffer.
func (c Config) GridBytes() uint64 { return uint64(c.Cells()) * 4 }

// MaskBytes returns the byte size of one mask buffer.
func (c Config) MaskBytes() uint64 { return uint64(c.MaskCells()) * 4 }

// Options configures a device at construction.
type Options struct {
	// Provider optionally supplies a shared GPU device. Only the GPU device
	// uses it; see gpucontext.DeviceProvider.
	Provider any

	// Workers is the worker count of the software device (0 = GOMAXPROCS).
	Workers int

	// WaitTimeout bounds blocking waits. Zero means DefaultWaitTimeout.
	WaitTimeout time.Duration

	// MaxInFlight bounds outstanding submissions. Zero means DefaultMaxInFlight.
	MaxInFlight int
}

// Timeout returns the effective wait timeout.
func (o Options) Timeout() time.Duration {
	if o.WaitTimeout <= 0 {
		return DefaultWaitTimeout
	}
	return o.WaitTimeout
}

// InFlight returns the effective in-flight submission bound.
func (o Options) InFlight() int {
	if o.MaxInFlight <= 0 {
		return DefaultMaxInFlight
	}
	return o.MaxInFlight
}

// Device is a compute device able to run the generation kernel.
type Device interface {
	// Name returns the device identifier (e.g. "gpu", "software").
	Name() string

	// Open acquires the device and allocates every buffer, the pipeline and
	// both bind group configurations for cfg. On failure nothing is left
	// allocated.
	Open(cfg Config) error

	// UploadMasks enqueues a write of the four masks. Each must hold
	// cfg.MaskCells() words.
	UploadMasks(masks *[kernel.RuleCount][]uint32) error

	// UploadParams enqueues a write of the parameter buffer.
	UploadParams(words *[kernel.ParamWords]uint32) error

	// Dispatch enqueues one generation using the given bind group
	// configuration. It does not wait for the device.
	Dispatch(b Binding) error

	// WriteGrid enqueues a write of cells into grid buffer g.
	WriteGrid(g GridBuffer, cells []uint32) error

	// ReadGrid copies grid buffer g through the staging buffer and returns
	// the decoded words once the copy has completed.
	ReadGrid(g GridBuffer) ([]uint32, error)

	// Close drains the queue and releases every resource best-effort.
	// Close is idempotent.
	Close()
}

// Factory creates an unopened device.
type Factory func(opts Options) Device

// LoggerSetter is implemented by devices that accept a logger.
type LoggerSetter interface {
	SetLogger(*slog.Logger)
}
