// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"github.com/gogpu/mnca"
	gpuimpl "github.com/gogpu/mnca/internal/gpu"
)

func init() {
	mnca.RegisterDevice(mnca.DeviceGPU, gpuimpl.Factory)
}
