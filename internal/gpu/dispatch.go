// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/kernel"
)

// Completion polling backs off between these bounds.
const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// wordsToBytes encodes u32 words little-endian, the layout the shader reads.
func wordsToBytes(words []uint32) []byte {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf
}

// bytesToWords decodes little-endian u32 words.
func bytesToWords(buf []byte) []uint32 {
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

// UploadMasks writes the four masks.
func (d *Device) UploadMasks(masks *[kernel.RuleCount][]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return device.ErrClosed
	}
	want := d.cfg.MaskCells()
	for m := range masks {
		if len(masks[m]) != want {
			return fmt.Errorf("gpu: mask %d has %d cells, want %d", m+1, len(masks[m]), want)
		}
	}
	for m := range masks {
		if err := d.queue.WriteBuffer(d.res.masks[m], 0, wordsToBytes(masks[m])); err != nil {
			return fmt.Errorf("gpu: upload mask %d: %w", m+1, err)
		}
	}
	return nil
}

// UploadParams writes the parameter buffer.
func (d *Device) UploadParams(words *[kernel.ParamWords]uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return device.ErrClosed
	}
	if err := d.queue.WriteBuffer(d.res.params, 0, wordsToBytes(words[:])); err != nil {
		return fmt.Errorf("gpu: upload params: %w", err)
	}
	return nil
}

// WriteGrid writes cells into grid buffer g.
func (d *Device) WriteGrid(g device.GridBuffer, cells []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return device.ErrClosed
	}
	if len(cells) != d.cfg.Cells() {
		return fmt.Errorf("gpu: grid has %d cells, want %d", len(cells), d.cfg.Cells())
	}
	if err := d.queue.WriteBuffer(d.res.grids[g], 0, wordsToBytes(cells)); err != nil {
		return fmt.Errorf("gpu: write %v: %w", g, err)
	}
	return nil
}

// Dispatch encodes one compute pass over ceil(size/8)² workgroups with the
// bind group for b and submits it without waiting. Once MaxInFlight
// submissions are outstanding the oldest is waited on first.
func (d *Device) Dispatch(b device.Binding) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return device.ErrClosed
	}
	d.retireCompleted()
	for len(d.inflight) >= d.opts.InFlight() {
		if err := d.waitFor(d.inflight[0].index); err != nil {
			return err
		}
	}

	groups := kernel.WorkgroupCount(d.cfg.GridSize)
	cmd, err := d.encode("mnca_step", func(encoder hal.CommandEncoder) {
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mnca_generation"})
		pass.SetPipeline(d.res.pipeline)
		pass.SetBindGroup(0, d.res.bindGroups[b], nil)
		pass.Dispatch(groups, groups, 1)
		pass.End()
	})
	if err != nil {
		return err
	}
	_, err = d.submit(cmd)
	return err
}

// ReadGrid copies grid buffer g into the staging buffer, waits for that copy
// and every earlier submission, then maps the staging buffer and decodes it.
func (d *Device) ReadGrid(g device.GridBuffer) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil, device.ErrClosed
	}

	size := d.cfg.GridBytes()
	cmd, err := d.encode("mnca_readback", func(encoder hal.CommandEncoder) {
		encoder.CopyBufferToBuffer(d.res.grids[g], d.res.staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return nil, err
	}
	index, err := d.submit(cmd)
	if err != nil {
		return nil, err
	}
	// Submissions complete in order, so this covers every earlier step.
	if err := d.waitFor(index); err != nil {
		return nil, err
	}
	return d.mapStaging(size)
}

// mapStaging maps the first size bytes of the staging buffer and decodes
// them. The backend invalidates non-coherent memory inside MapBuffer.
func (d *Device) mapStaging(size uint64) ([]uint32, error) {
	m, err := d.dev.MapBuffer(d.res.staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("gpu: map staging: %w", err)
	}
	words := bytesToWords(unsafe.Slice((*byte)(m.Ptr), size))
	if err := d.dev.UnmapBuffer(d.res.staging); err != nil {
		return nil, fmt.Errorf("gpu: unmap staging: %w", err)
	}
	return words, nil
}

// encode records one command buffer.
func (d *Device) encode(label string, record func(hal.CommandEncoder)) (hal.CommandBuffer, error) {
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}
	record(encoder)
	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("gpu: end encoding: %w", err)
	}
	return cmd, nil
}

// submit queues cmd and records it as in flight under its submission index.
func (d *Device) submit(cmd hal.CommandBuffer) (uint64, error) {
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		return 0, fmt.Errorf("gpu: submit: %w", err)
	}
	d.inflight = append(d.inflight, submission{index: index, cmd: cmd})
	return index, nil
}

// retireCompleted frees every in-flight submission the queue reports done.
func (d *Device) retireCompleted() {
	done := d.queue.PollCompleted()
	n := 0
	for n < len(d.inflight) && d.inflight[n].index <= done {
		d.dev.FreeCommandBuffer(d.inflight[n].cmd)
		n++
	}
	d.inflight = d.inflight[n:]
}

// waitFor polls the queue until submission index has completed or the wait
// timeout expires.
func (d *Device) waitFor(index uint64) error {
	timeout := d.opts.Timeout()
	deadline := time.Now().Add(timeout)
	backoff := minPollInterval
	for {
		d.retireCompleted()
		if d.queue.PollCompleted() >= index {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: submission %d after %v", errTimeout, index, timeout)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxPollInterval)
	}
}

// retireAll waits for every in-flight submission.
func (d *Device) retireAll() error {
	if len(d.inflight) == 0 {
		return nil
	}
	return d.waitFor(d.inflight[len(d.inflight)-1].index)
}

// dropInflight frees the command buffers of submissions that could not be
// waited on.
func (d *Device) dropInflight() {
	for _, s := range d.inflight {
		d.dev.FreeCommandBuffer(s.cmd)
	}
	d.inflight = nil
}
