// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software implements the compute device on the CPU.
//
// Buffers are plain word slices, the queue is a FIFO goroutine and each
// dispatch runs the reference kernel over 8x8 workgroups on a worker pool.
// The device keeps the same enqueue/complete contract as the GPU device, so
// the engine cannot tell the two apart.
package software

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/kernel"
	"github.com/gogpu/mnca/internal/parallel"
)

// Name is the registry name of the software device.
const Name = "software"

// queueDepth is the number of commands accepted before enqueue blocks.
const queueDepth = 64

// Device is the CPU compute device.
type Device struct {
	mu sync.Mutex

	opts device.Options
	cfg  device.Config

	// Device memory. Only the queue goroutine touches it after Open.
	grids   [2][]uint32
	masks   [kernel.RuleCount][]uint32
	params  [kernel.ParamWords]uint32
	staging []uint32

	pool  *parallel.WorkerPool
	queue *commandQueue

	open bool
}

var _ device.Device = (*Device)(nil)
var _ device.LoggerSetter = (*Device)(nil)

// New returns an unopened software device.
func New(opts device.Options) *Device {
	return &Device{opts: opts}
}

// Factory adapts New to device.Factory.
func Factory(opts device.Options) device.Device { return New(opts) }

// Name returns "software".
func (d *Device) Name() string { return Name }

// SetLogger sets the package logger.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Open allocates the grid, mask, parameter and staging buffers and starts
// the queue and worker pool.
func (d *Device) Open(cfg device.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil
	}
	if cfg.GridSize == 0 || cfg.NeighborhoodSize == 0 {
		return fmt.Errorf("software: invalid config %+v", cfg)
	}

	d.cfg = cfg
	d.grids[device.Grid1] = make([]uint32, cfg.Cells())
	d.grids[device.Grid2] = make([]uint32, cfg.Cells())
	for r := range d.masks {
		d.masks[r] = make([]uint32, cfg.MaskCells())
	}
	d.params = [kernel.ParamWords]uint32{}
	d.staging = make([]uint32, cfg.Cells())

	d.pool = parallel.NewWorkerPool(d.opts.Workers)
	d.queue = newCommandQueue(queueDepth)
	d.open = true

	slogger().Debug("software: device opened",
		"grid", cfg.GridSize,
		"neighborhood", cfg.NeighborhoodSize,
		"workers", d.pool.Workers(),
		"grid_bytes", cfg.GridBytes())
	return nil
}

// queueLocked returns the queue if the device is open.
func (d *Device) queueLocked() (*commandQueue, error) {
	if !d.open {
		return nil, device.ErrClosed
	}
	return d.queue, nil
}

// UploadMasks enqueues a copy of the four masks.
func (d *Device) UploadMasks(masks *[kernel.RuleCount][]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, err := d.queueLocked()
	if err != nil {
		return err
	}
	want := d.cfg.MaskCells()
	var snapshot [kernel.RuleCount][]uint32
	for r := range masks {
		if len(masks[r]) != want {
			return fmt.Errorf("software: mask %d has %d cells, want %d", r+1, len(masks[r]), want)
		}
		snapshot[r] = append([]uint32(nil), masks[r]...)
	}
	return q.enqueue(func() {
		for r := range snapshot {
			copy(d.masks[r], snapshot[r])
		}
	})
}

// UploadParams enqueues a copy of the parameter words.
func (d *Device) UploadParams(words *[kernel.ParamWords]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, err := d.queueLocked()
	if err != nil {
		return err
	}
	snapshot := *words
	return q.enqueue(func() { d.params = snapshot })
}

// Dispatch enqueues one generation under binding b.
func (d *Device) Dispatch(b device.Binding) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, err := d.queueLocked()
	if err != nil {
		return err
	}
	cfg, pool := d.cfg, d.pool
	return q.enqueue(func() {
		p := kernel.DecodeParams(d.params)
		if p.GridSize != cfg.GridSize || p.NeighborhoodSize != cfg.NeighborhoodSize {
			slogger().Warn("software: parameter geometry does not match buffers, dispatch skipped",
				"params_grid", p.GridSize, "params_neighborhood", p.NeighborhoodSize)
			return
		}
		in, out := d.grids[b.Input()], d.grids[b.Output()]
		groups := kernel.WorkgroupCount(p.GridSize)
		pool.Dispatch(groups, groups, func(wx, wy uint32) {
			kernel.Tile(in, out, &d.masks, &p, wx, wy)
		})
	})
}

// WriteGrid enqueues a copy of cells into grid buffer g.
func (d *Device) WriteGrid(g device.GridBuffer, cells []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, err := d.queueLocked()
	if err != nil {
		return err
	}
	if len(cells) != d.cfg.Cells() {
		return fmt.Errorf("software: grid has %d cells, want %d", len(cells), d.cfg.Cells())
	}
	snapshot := append([]uint32(nil), cells...)
	return q.enqueue(func() { copy(d.grids[g], snapshot) })
}

// ReadGrid copies grid buffer g into the staging buffer on the queue, waits
// for the copy and returns a fresh slice of the staged words.
func (d *Device) ReadGrid(g device.GridBuffer) ([]uint32, error) {
	d.mu.Lock()
	q, err := d.queueLocked()
	staging := d.staging
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := q.enqueue(func() { copy(staging, d.grids[g]) }); err != nil {
		return nil, err
	}
	if err := q.wait(d.opts.Timeout()); err != nil {
		return nil, err
	}
	return append([]uint32(nil), staging...), nil
}

// Close drains the queue, stops the worker pool and drops every buffer.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return
	}
	d.open = false

	// Reverse of Open: queue, pool, then memory.
	d.queue.close()
	d.queue = nil
	d.pool.Close()
	d.pool = nil

	d.staging = nil
	d.params = [kernel.ParamWords]uint32{}
	for r := range d.masks {
		d.masks[r] = nil
	}
	d.grids = [2][]uint32{}

	slogger().Debug("software: device closed")
}
