// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/mnca/internal/device"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// liveDevices are the devices of initialized engines.
var (
	liveMu      sync.Mutex
	liveDevices = make(map[Device]struct{})
)

// SetLogger configures the logger for mnca and its devices.
// By default, mnca produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by mnca:
//   - [slog.LevelDebug]: buffer sizes, dispatch geometry, device open/close
//   - [slog.LevelInfo]: lifecycle events (device selected, engine destroyed)
//   - [slog.LevelWarn]: skipped steps, failed reads, release failures
//
// Example:
//
//	mnca.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for d := range liveDevices {
		propagateLogger(d, l)
	}
}

// Logger returns the current logger used by mnca.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// propagateLogger passes the logger to a device if it implements
// device.LoggerSetter.
func propagateLogger(d Device, l *slog.Logger) {
	if ls, ok := d.(device.LoggerSetter); ok {
		ls.SetLogger(l)
	}
}

// trackDevice registers an opened device for logger propagation and hands
// it the current logger.
func trackDevice(d Device) {
	liveMu.Lock()
	defer liveMu.Unlock()
	liveDevices[d] = struct{}{}
	propagateLogger(d, Logger())
}

// untrackDevice removes a device registered with trackDevice.
func untrackDevice(d Device) {
	liveMu.Lock()
	defer liveMu.Unlock()
	delete(liveDevices, d)
}
