// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/kernel"
)

// disposable is one acquired GPU object and the call that releases it.
type disposable struct {
	label   string
	release func()
}

// manifest records acquired objects in creation order so they can be
// released in exact reverse order, also after a partial failure.
type manifest struct {
	items []disposable
}

func (m *manifest) add(label string, release func()) {
	m.items = append(m.items, disposable{label: label, release: release})
}

// labels returns the recorded labels in creation order.
func (m *manifest) labels() []string {
	out := make([]string, len(m.items))
	for i, it := range m.items {
		out[i] = it.label
	}
	return out
}

// releaseAll releases every recorded object in reverse creation order.
// A panicking release is logged and skipped; the rest are still released.
func (m *manifest) releaseAll() {
	for i := len(m.items) - 1; i >= 0; i-- {
		releaseOne(m.items[i])
	}
	m.items = nil
}

func releaseOne(d disposable) {
	defer func() {
		if r := recover(); r != nil {
			slogger().Warn("gpu: release failed", "resource", d.label, "panic", fmt.Sprint(r))
		}
	}()
	d.release()
}

// resources is everything the generation kernel needs on one device.
type resources struct {
	manifest

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	params  hal.Buffer
	grids   [2]hal.Buffer
	masks   [kernel.RuleCount]hal.Buffer
	staging hal.Buffer

	// bindGroups is indexed by device.Binding.
	bindGroups [2]hal.BindGroup
}

// Binding slots of the generation kernel.
const (
	bindingParams   = 0
	bindingCellsIn  = 1
	bindingCellsOut = 2
	bindingMask1    = 3
)

// createResources builds all buffers, the pipeline and both bind groups,
// in that order.
// On any failure the objects created so far are released and nothing is
// returned.
func createResources(dev hal.Device, cfg device.Config) (*resources, error) {
	r := &resources{}
	if err := r.build(dev, cfg); err != nil {
		r.releaseAll()
		return nil, err
	}
	return r, nil
}

func (r *resources) build(dev hal.Device, cfg device.Config) error {
	if err := r.buildBuffers(dev, cfg); err != nil {
		return err
	}
	if err := r.buildPipeline(dev); err != nil {
		return err
	}
	return r.buildBindGroups(dev, cfg)
}

func (r *resources) buildPipeline(dev hal.Device) error {
	shader, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mnca_generation",
		Source: hal.ShaderSource{WGSL: generationShaderSource},
	})
	if err != nil {
		return fmt.Errorf("compile generation shader: %w", err)
	}
	r.shader = shader
	r.add("shader", func() { dev.DestroyShaderModule(shader) })

	entries := []gputypes.BindGroupLayoutEntry{
		{Binding: bindingParams, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		{Binding: bindingCellsIn, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		{Binding: bindingCellsOut, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
	}
	for i := 0; i < kernel.RuleCount; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(bindingMask1 + i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		})
	}
	bindLayout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "mnca_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	r.bindLayout = bindLayout
	r.add("bind_layout", func() { dev.DestroyBindGroupLayout(bindLayout) })

	pipeLayout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "mnca_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout
	r.add("pipe_layout", func() { dev.DestroyPipelineLayout(pipeLayout) })

	pipeline, err := dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "mnca_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	r.pipeline = pipeline
	r.add("pipeline", func() { dev.DestroyComputePipeline(pipeline) })
	return nil
}

func (r *resources) buffer(dev hal.Device, label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	r.add(label, func() { dev.DestroyBuffer(buf) })
	return buf, nil
}

func (r *resources) buildBuffers(dev hal.Device, cfg device.Config) error {
	var err error

	gridUsage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	for g := range r.grids {
		r.grids[g], err = r.buffer(dev, device.GridBuffer(g).String(), cfg.GridBytes(), gridUsage)
		if err != nil {
			return err
		}
	}

	for m := range r.masks {
		r.masks[m], err = r.buffer(dev, fmt.Sprintf("mask%d", m+1), cfg.MaskBytes(),
			gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
		if err != nil {
			return err
		}
	}

	r.params, err = r.buffer(dev, "params", kernel.ParamBytes,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}

	r.staging, err = r.buffer(dev, "staging", cfg.GridBytes(),
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	return err
}

func (r *resources) buildBindGroups(dev hal.Device, cfg device.Config) error {
	for _, b := range []device.Binding{device.BindingA, device.BindingB} {
		entries := []gputypes.BindGroupEntry{
			{Binding: bindingParams, Resource: gputypes.BufferBinding{Buffer: r.params.NativeHandle(), Offset: 0, Size: kernel.ParamBytes}},
			{Binding: bindingCellsIn, Resource: gputypes.BufferBinding{Buffer: r.grids[b.Input()].NativeHandle(), Offset: 0, Size: cfg.GridBytes()}},
			{Binding: bindingCellsOut, Resource: gputypes.BufferBinding{Buffer: r.grids[b.Output()].NativeHandle(), Offset: 0, Size: cfg.GridBytes()}},
		}
		for m := range r.masks {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(bindingMask1 + m),
				Resource: gputypes.BufferBinding{Buffer: r.masks[m].NativeHandle(), Offset: 0, Size: cfg.MaskBytes()},
			})
		}

		label := "bind_group_" + b.String()
		bg, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   label,
			Layout:  r.bindLayout,
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", label, err)
		}
		r.bindGroups[b] = bg
		r.add(label, func() { dev.DestroyBindGroup(bg) })
	}
	return nil
}
