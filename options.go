// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/mnca/internal/device"
)

// Device names accepted by WithDevice.
const (
	// DeviceAuto picks the best registered device, falling back to the
	// next one when a device cannot be opened.
	DeviceAuto = "auto"
	// DeviceGPU is the wgpu/hal device, registered by importing
	// github.com/gogpu/mnca/gpu.
	DeviceGPU = "gpu"
	// DeviceSoftware is the CPU emulation. Always registered.
	DeviceSoftware = "software"
)

// Option configures an Engine during creation.
//
// Example:
//
//	// Best available device
//	e := mnca.New()
//
//	// Force the CPU device with 4 workers
//	e := mnca.New(mnca.WithDevice(mnca.DeviceSoftware), mnca.WithWorkers(4))
type Option func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	device      string
	provider    gpucontext.DeviceProvider
	workers     int
	waitTimeout time.Duration
	maxInFlight int
}

// defaultOptions returns the default engine options.
func defaultOptions() engineOptions {
	return engineOptions{
		device:      DeviceAuto,
		waitTimeout: device.DefaultWaitTimeout,
		maxInFlight: device.DefaultMaxInFlight,
	}
}

// deviceOptions converts engine options to device options.
func (o engineOptions) deviceOptions() device.Options {
	opts := device.Options{
		Workers:     o.workers,
		WaitTimeout: o.waitTimeout,
		MaxInFlight: o.maxInFlight,
	}
	if o.provider != nil {
		opts.Provider = o.provider
	}
	return opts
}

// WithDevice selects the compute device by registry name: DeviceAuto,
// DeviceGPU, DeviceSoftware or any name passed to RegisterDevice.
func WithDevice(name string) Option {
	return func(o *engineOptions) {
		if name != "" {
			o.device = name
		}
	}
}

// WithDeviceProvider shares the GPU device of a host application instead
// of creating one. The provider must also expose HalDevice() any and
// HalQueue() any, as gogpu windows do. The engine never destroys a shared
// device.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithWorkers sets the worker count of the software device.
// 0 or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *engineOptions) {
		o.workers = n
	}
}

// WithWaitTimeout bounds every blocking device wait (fence waits on the GPU,
// queue drains on the software device). Non-positive values keep the
// default of 5s.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithMaxInFlight bounds the number of submitted steps the device may have
// outstanding before Step waits for the oldest one.
func WithMaxInFlight(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}
