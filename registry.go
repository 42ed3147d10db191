// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"sort"
	"sync"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/software"
)

// Device is a compute device able to run the generation kernel.
// Implementations live in internal packages and are registered by name.
type Device = device.Device

// DeviceOptions configures a device at construction.
type DeviceOptions = device.Options

// DeviceFactory creates an unopened device.
type DeviceFactory = device.Factory

// registry holds registered devices.
var (
	registryMu sync.RWMutex
	devices    = make(map[string]DeviceFactory)
	// Priority order for DeviceAuto (first that opens wins).
	devicePriority = []string{DeviceGPU, DeviceSoftware}
)

func init() {
	RegisterDevice(DeviceSoftware, software.Factory)
}

// RegisterDevice registers a device factory with the given name.
// This is typically called from init() functions in device packages.
// If a device with the same name is already registered, it is replaced.
func RegisterDevice(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	devices[name] = factory
}

// UnregisterDevice removes a device from the registry.
// This is useful for testing.
func UnregisterDevice(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(devices, name)
}

// AvailableDevices returns the registered device names, sorted.
func AvailableDevices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsDeviceRegistered reports whether a device with the given name is
// registered.
func IsDeviceRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := devices[name]
	return ok
}

// candidates returns the factories to try for name, in order. DeviceAuto
// yields every registered device, priority list first.
func candidates(name string) []namedFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != DeviceAuto {
		if f, ok := devices[name]; ok {
			return []namedFactory{{name, f}}
		}
		return nil
	}

	out := make([]namedFactory, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, n := range devicePriority {
		if f, ok := devices[n]; ok {
			out = append(out, namedFactory{n, f})
			seen[n] = true
		}
	}
	rest := make([]string, 0, len(devices))
	for n := range devices {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	for _, n := range rest {
		out = append(out, namedFactory{n, devices[n]})
	}
	return out
}

type namedFactory struct {
	name    string
	factory DeviceFactory
}
