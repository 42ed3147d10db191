// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/kernel"
)

// Engine evolves a toroidal binary grid on a compute device.
//
// Step and Reset return once their work is enqueued on the device queue.
// Read is the only call that waits for the device; because the queue runs
// in submission order, it observes every Step and Reset issued before it.
//
// No method panics or returns an error. Calls made while the engine is not
// Ready are dropped; failures are logged, the call degrades to a no-op or a
// nil result, and the cause is available from Err.
//
// Engine is safe for concurrent use. Host operations are serialized, so at
// most one is in flight at a time.
type Engine struct {
	opts engineOptions

	// mu serializes host operations.
	mu         sync.Mutex
	state      atomic.Int32
	destroying atomic.Bool

	dev   Device
	cfg   device.Config
	frame uint64

	// zeroMask is uploaded in place of the nil mask of a disabled rule set.
	zeroMask []uint32

	errMu   sync.Mutex
	lastErr error
}

// New creates an uninitialized engine. Call Initialize before use.
func New(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{opts: o}
}

// State returns the current resource state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// IsReady reports whether the engine accepts Step, Read and Reset.
func (e *Engine) IsReady() bool {
	return e.State() == StateReady && !e.destroying.Load()
}

// Err returns the error recorded by the most recent call, or nil if it
// succeeded.
func (e *Engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErr
}

func (e *Engine) setErr(err error) {
	e.errMu.Lock()
	e.lastErr = err
	e.errMu.Unlock()
}

// Frame returns the number of steps enqueued since the last Reset.
func (e *Engine) Frame() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// GridSize returns the side of the grid, or 0 when not initialized.
func (e *Engine) GridSize() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.GridSize
}

// NeighborhoodSize returns the side of the masks, or 0 when not
// initialized.
func (e *Engine) NeighborhoodSize() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.NeighborhoodSize
}

// DeviceName returns the name of the device in use, or "" when not
// initialized.
func (e *Engine) DeviceName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dev == nil {
		return ""
	}
	return e.dev.Name()
}

// Size limits accepted by Initialize. MaxGridSize keeps every cell index
// y*gridSize+x inside a u32.
const (
	MaxGridSize         = 65535
	MaxNeighborhoodSize = 255
)

// validateConfig rejects sizes the kernel cannot handle.
func validateConfig(gridSize, neighborhoodSize uint32) error {
	switch {
	case gridSize == 0:
		return fmt.Errorf("%w: grid size must be positive", ErrInvalidConfig)
	case gridSize > MaxGridSize:
		return fmt.Errorf("%w: grid size %d exceeds %d", ErrInvalidConfig, gridSize, MaxGridSize)
	case neighborhoodSize == 0:
		return fmt.Errorf("%w: neighborhood size must be positive", ErrInvalidConfig)
	case neighborhoodSize > MaxNeighborhoodSize:
		return fmt.Errorf("%w: neighborhood size %d exceeds %d",
			ErrInvalidConfig, neighborhoodSize, MaxNeighborhoodSize)
	case neighborhoodSize%2 == 0:
		return fmt.Errorf("%w: neighborhood size %d must be odd", ErrInvalidConfig, neighborhoodSize)
	case neighborhoodSize/2 > gridSize:
		return fmt.Errorf("%w: neighborhood radius %d exceeds grid size %d",
			ErrInvalidConfig, neighborhoodSize/2, gridSize)
	}
	return nil
}

// Initialize acquires a device and allocates every buffer, the pipeline and
// both bind group configurations. It reports whether the engine is Ready.
//
// Initialize is a no-op while the engine is Ready or being destroyed. On
// failure the engine stays Uninitialized and Err reports
// ErrInvalidConfig or ErrUnsupportedBackend.
func (e *Engine) Initialize(gridSize, neighborhoodSize uint32) bool {
	if e.destroying.Load() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroying.Load() {
		return false
	}
	if e.State() == StateReady {
		return true
	}

	if err := validateConfig(gridSize, neighborhoodSize); err != nil {
		Logger().Warn("mnca: initialize rejected", "err", err)
		e.setErr(err)
		return false
	}

	e.setState(StateInitializing)
	cfg := device.Config{GridSize: gridSize, NeighborhoodSize: neighborhoodSize}

	dev, err := e.openDevice(cfg)
	if err != nil {
		e.setState(StateUninitialized)
		Logger().Warn("mnca: no device available", "device", e.opts.device, "err", err)
		e.setErr(err)
		return false
	}

	e.dev = dev
	e.cfg = cfg
	e.frame = 0
	e.zeroMask = make([]uint32, cfg.MaskCells())

	// Device memory starts undefined; begin from an empty grid.
	empty := make([]uint32, cfg.Cells())
	if err := e.writeBoth(empty); err != nil {
		e.release()
		e.setState(StateUninitialized)
		err = fmt.Errorf("%w: clear grids: %w", ErrUnsupportedBackend, err)
		Logger().Warn("mnca: initialize failed", "err", err)
		e.setErr(err)
		return false
	}

	e.setState(StateReady)
	Logger().Info("mnca: engine ready",
		"device", dev.Name(),
		"grid", gridSize,
		"neighborhood", neighborhoodSize,
		"workgroups", kernel.WorkgroupCount(gridSize))
	e.setErr(nil)
	return true
}

// openDevice tries the configured device, or every registered device in
// priority order for DeviceAuto, and returns the first that opens.
func (e *Engine) openDevice(cfg device.Config) (Device, error) {
	list := candidates(e.opts.device)
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: device %q is not registered", ErrUnsupportedBackend, e.opts.device)
	}

	var errs []error
	for _, c := range list {
		dev := c.factory(e.opts.deviceOptions())
		if dev == nil {
			continue
		}
		trackDevice(dev)
		if err := dev.Open(cfg); err != nil {
			untrackDevice(dev)
			Logger().Debug("mnca: device unavailable", "device", c.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		return dev, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnsupportedBackend, errors.Join(errs...))
}

// enter acquires the operation lock if the engine is Ready and not being
// destroyed. On success the caller must unlock e.mu.
func (e *Engine) enter(op string) bool {
	if e.destroying.Load() {
		e.setErr(fmt.Errorf("%w: %s during destroy", ErrNotReady, op))
		return false
	}
	e.mu.Lock()
	if e.destroying.Load() || e.State() != StateReady {
		e.mu.Unlock()
		e.setErr(fmt.Errorf("%w: %s in state %v", ErrNotReady, op, e.State()))
		return false
	}
	return true
}

// Step uploads the four masks and the encoded parameters, then enqueues one
// generation using bind group A when the frame counter is even and B when
// it is odd, and advances the frame counter. It returns once the work is
// enqueued and reports whether it was.
//
// Step is a silent no-op when the engine is not Ready. Any upload or
// submit failure skips the step without advancing the frame and records
// ErrDispatch.
func (e *Engine) Step(rd *RuleData) bool {
	if !e.enter("step") {
		return false
	}
	defer e.mu.Unlock()

	if err := e.step(rd); err != nil {
		err = fmt.Errorf("%w: %w", ErrDispatch, err)
		Logger().Warn("mnca: step skipped", "frame", e.frame, "err", err)
		e.setErr(err)
		return false
	}
	e.setErr(nil)
	return true
}

func (e *Engine) step(rd *RuleData) error {
	if err := rd.Validate(e.cfg.NeighborhoodSize); err != nil {
		return err
	}

	var masks [RuleCount][]uint32
	for i := range masks {
		if rd.Masks[i] == nil {
			masks[i] = e.zeroMask
		} else {
			masks[i] = rd.Masks[i]
		}
	}
	if err := e.dev.UploadMasks(&masks); err != nil {
		return fmt.Errorf("upload masks: %w", err)
	}

	params := EncodeParams(e.cfg.GridSize, e.cfg.NeighborhoodSize, rd.Rules)
	if err := e.dev.UploadParams(&params); err != nil {
		return fmt.Errorf("upload params: %w", err)
	}

	b := device.BindingForFrame(e.frame)
	if err := e.dev.Dispatch(b); err != nil {
		return fmt.Errorf("dispatch %v: %w", b, err)
	}
	Logger().Debug("mnca: step enqueued", "frame", e.frame, "binding", b.String())
	e.frame++
	return nil
}

// Read copies the current grid through the staging buffer and returns it
// as a fresh slice of gridSize² words. Values are returned as stored, with
// no validation. It waits for every previously enqueued Step and Reset.
//
// Read returns nil when the engine is not Ready or the readback fails; the
// caller should keep its previous grid. A failure records ErrReadback.
func (e *Engine) Read() []uint32 {
	if !e.enter("read") {
		return nil
	}
	defer e.mu.Unlock()

	g := device.CurrentGrid(e.frame)
	cells, err := e.dev.ReadGrid(g)
	if err != nil {
		err = fmt.Errorf("%w: %v: %w", ErrReadback, g, err)
		Logger().Warn("mnca: read failed", "frame", e.frame, "err", err)
		e.setErr(err)
		return nil
	}
	e.setErr(nil)
	return cells
}

// Reset writes initial into both grid buffers and sets the frame counter to
// 0. initial must hold gridSize² cells. It returns once the writes are
// enqueued and reports whether they were.
func (e *Engine) Reset(initial []uint32) bool {
	if !e.enter("reset") {
		return false
	}
	defer e.mu.Unlock()

	if len(initial) != e.cfg.Cells() {
		err := fmt.Errorf("%w: %d cells, want %d", ErrInvalidGrid, len(initial), e.cfg.Cells())
		Logger().Warn("mnca: reset rejected", "err", err)
		e.setErr(err)
		return false
	}
	if err := e.writeBoth(initial); err != nil {
		err = fmt.Errorf("%w: reset: %w", ErrDispatch, err)
		Logger().Warn("mnca: reset failed", "err", err)
		e.setErr(err)
		return false
	}
	e.frame = 0
	e.setErr(nil)
	return true
}

func (e *Engine) writeBoth(cells []uint32) error {
	if err := e.dev.WriteGrid(device.Grid1, cells); err != nil {
		return err
	}
	return e.dev.WriteGrid(device.Grid2, cells)
}

// Destroy stops accepting calls, waits for the operation in flight, drains
// the device queue and releases every resource in reverse creation order.
// The engine ends Uninitialized and may be initialized again.
//
// Destroy is a no-op when the engine holds no resources or another
// Destroy is in progress.
func (e *Engine) Destroy() {
	if !e.destroying.CompareAndSwap(false, true) {
		return
	}
	defer e.destroying.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateReady {
		return
	}
	e.setState(StateDestroying)
	e.release()
	e.setState(StateDestroyed)
	Logger().Info("mnca: engine destroyed")
	e.setState(StateUninitialized)
}

// release closes the device and clears the geometry. Caller holds e.mu.
func (e *Engine) release() {
	if e.dev != nil {
		e.dev.Close()
		untrackDevice(e.dev)
		e.dev = nil
	}
	e.cfg = device.Config{}
	e.frame = 0
	e.zeroMask = nil
}
