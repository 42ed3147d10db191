// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan backend

	"github.com/gogpu/mnca/internal/device"
)

// Name is the registry name of the GPU device.
const Name = "gpu"

// halProvider is implemented by host applications that share their HAL
// device and queue (for example a gogpu window).
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// submission is one submitted command buffer and the queue index that
// reports its completion.
type submission struct {
	index uint64
	cmd   hal.CommandBuffer
}

// Device runs the generation kernel on a wgpu/hal device.
//
// Device is safe for concurrent use; calls are serialized.
type Device struct {
	mu sync.Mutex

	opts device.Options
	cfg  device.Config

	instance hal.Instance
	dev      hal.Device
	queue    hal.Queue
	external bool
	adapter  string

	res      *resources
	inflight []submission

	open bool
}

var _ device.Device = (*Device)(nil)
var _ device.LoggerSetter = (*Device)(nil)

// New returns an unopened GPU device.
func New(opts device.Options) *Device {
	return &Device{opts: opts}
}

// Factory adapts New to device.Factory.
func Factory(opts device.Options) device.Device { return New(opts) }

// Name returns "gpu".
func (d *Device) Name() string { return Name }

// SetLogger sets the package logger.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Adapter returns the name of the adapter in use, or "shared" when the
// device came from a provider.
func (d *Device) Adapter() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapter
}

// Open acquires a HAL device, either from the configured provider or from a
// fresh Vulkan instance, and creates every resource for cfg.
func (d *Device) Open(cfg device.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return nil
	}
	if cfg.GridSize == 0 || cfg.NeighborhoodSize == 0 {
		return fmt.Errorf("gpu: invalid config %+v", cfg)
	}

	if err := d.acquire(); err != nil {
		return err
	}

	res, err := createResources(d.dev, cfg)
	if err != nil {
		d.releaseDevice()
		return fmt.Errorf("gpu: %w", err)
	}

	d.cfg = cfg
	d.res = res
	d.open = true

	slogger().Debug("gpu: device opened",
		"adapter", d.adapter,
		"grid", cfg.GridSize,
		"neighborhood", cfg.NeighborhoodSize,
		"resources", len(res.items))
	return nil
}

// acquire sets d.dev and d.queue.
func (d *Device) acquire() error {
	if d.opts.Provider != nil {
		return d.acquireShared(d.opts.Provider)
	}
	return d.acquireStandalone()
}

func (d *Device) acquireShared(provider any) error {
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types: %w", device.ErrUnsupported)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device: %w", device.ErrUnsupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue: %w", device.ErrUnsupported)
	}
	d.dev = dev
	d.queue = queue
	d.external = true
	d.adapter = "shared"
	return nil
}

func (d *Device) acquireStandalone() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("gpu: vulkan backend not available: %w", device.ErrUnsupported)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("gpu: create instance: %v: %w", err, device.ErrUnsupported)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("gpu: no GPU adapters found: %w", device.ErrUnsupported)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("gpu: open device %q: %v: %w", selected.Info.Name, err, device.ErrUnsupported)
	}

	d.instance = instance
	d.dev = openDev.Device
	d.queue = openDev.Queue
	d.external = false
	d.adapter = selected.Info.Name
	return nil
}

// releaseDevice drops the HAL device, destroying it only if this Device
// created it.
func (d *Device) releaseDevice() {
	if !d.external {
		if d.dev != nil {
			d.dev.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.dev = nil
	d.queue = nil
	d.instance = nil
	d.external = false
}

// Close waits for outstanding submissions, releases every resource in
// reverse creation order and then the device itself.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return
	}
	d.open = false

	if err := d.retireAll(); err != nil {
		slogger().Warn("gpu: queue did not drain before release", "err", err)
		d.dropInflight()
	}
	d.res.releaseAll()
	d.res = nil
	d.releaseDevice()

	slogger().Debug("gpu: device closed")
}

// errTimeout is wrapped when a submission does not complete in time.
var errTimeout = errors.New("gpu: wait for submission timed out")
