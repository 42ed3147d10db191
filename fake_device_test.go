// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/kernel"
	"github.com/gogpu/mnca/internal/software"
)

var errInjected = errors.New("injected device failure")

// fakeDevice wraps the software device and fails on demand.
type fakeDevice struct {
	*software.Device

	name string

	failOpen     atomic.Bool
	failDispatch atomic.Bool
	failUpload   atomic.Bool
	failRead     atomic.Bool

	dispatches atomic.Int32
	closes     atomic.Int32

	mu       sync.Mutex
	bindings []device.Binding
	log      *slog.Logger
}

func (f *fakeDevice) Name() string { return f.name }

func (f *fakeDevice) Open(cfg device.Config) error {
	if f.failOpen.Load() {
		return errInjected
	}
	return f.Device.Open(cfg)
}

func (f *fakeDevice) UploadMasks(m *[kernel.RuleCount][]uint32) error {
	if f.failUpload.Load() {
		return errInjected
	}
	return f.Device.UploadMasks(m)
}

func (f *fakeDevice) Dispatch(b device.Binding) error {
	if f.failDispatch.Load() {
		return errInjected
	}
	f.dispatches.Add(1)
	f.mu.Lock()
	f.bindings = append(f.bindings, b)
	f.mu.Unlock()
	return f.Device.Dispatch(b)
}

func (f *fakeDevice) ReadGrid(g device.GridBuffer) ([]uint32, error) {
	if f.failRead.Load() {
		return nil, errInjected
	}
	return f.Device.ReadGrid(g)
}

func (f *fakeDevice) Close() {
	f.closes.Add(1)
	f.Device.Close()
}

func (f *fakeDevice) SetLogger(l *slog.Logger) {
	f.mu.Lock()
	f.log = l
	f.mu.Unlock()
}

func (f *fakeDevice) logger() *slog.Logger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.log
}

func (f *fakeDevice) usedBindings() []device.Binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Binding(nil), f.bindings...)
}

// registerFake registers a fakeDevice under name for the duration of the
// test and returns it. Every engine created with WithDevice(name) gets this
// same instance.
func registerFake(t *testing.T, name string) *fakeDevice {
	t.Helper()
	f := &fakeDevice{Device: software.New(device.Options{Workers: 2}), name: name}
	RegisterDevice(name, func(device.Options) device.Device { return f })
	t.Cleanup(func() { UnregisterDevice(name) })
	return f
}
