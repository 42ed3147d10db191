// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/gogpu/mnca/internal/device"
	"github.com/gogpu/mnca/internal/kernel"
)

// newSoftwareEngine returns a Ready engine on the software device.
func newSoftwareEngine(t *testing.T, gridSize, n uint32) *Engine {
	t.Helper()
	e := New(WithDevice(DeviceSoftware), WithWorkers(2))
	if !e.Initialize(gridSize, n) {
		t.Fatalf("Initialize(%d, %d): %v", gridSize, n, e.Err())
	}
	t.Cleanup(e.Destroy)
	return e
}

func equalCells(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// reference applies steps generations with the CPU kernel.
func reference(cells []uint32, size, n uint32, rd *RuleData, steps int) []uint32 {
	words := EncodeParams(size, n, rd.Rules)
	p := kernel.DecodeParams(words)
	var masks [kernel.RuleCount][]uint32
	for i := range masks {
		masks[i] = rd.Masks[i]
		if masks[i] == nil {
			masks[i] = make([]uint32, n*n)
		}
	}
	in := append([]uint32(nil), cells...)
	out := make([]uint32, len(cells))
	for s := 0; s < steps; s++ {
		kernel.Generation(in, out, &masks, &p)
		in, out = out, in
	}
	return in
}

func TestEngineBlinker(t *testing.T) {
	e := newSoftwareEngine(t, 5, 3)

	horizontal := GridFromPoints(5, Point{1, 2}, Point{2, 2}, Point{3, 2})
	vertical := GridFromPoints(5, Point{2, 1}, Point{2, 2}, Point{2, 3})
	rules := ConwayRules(3)

	if !e.Reset(horizontal) {
		t.Fatalf("Reset: %v", e.Err())
	}
	if !e.Step(rules) {
		t.Fatalf("Step: %v", e.Err())
	}
	if got := e.Read(); !equalCells(got, vertical) {
		t.Errorf("after 1 step:\n%s\nwant:\n%s", FormatGrid(got, 5, '#', '.'), FormatGrid(vertical, 5, '#', '.'))
	}
	if !e.Step(rules) {
		t.Fatalf("Step: %v", e.Err())
	}
	if got := e.Read(); !equalCells(got, horizontal) {
		t.Errorf("after 2 steps:\n%s\nwant:\n%s", FormatGrid(got, 5, '#', '.'), FormatGrid(horizontal, 5, '#', '.'))
	}
	if e.Frame() != 2 {
		t.Errorf("Frame() = %d, want 2", e.Frame())
	}
}

func TestEngineIdentityWhenDisabled(t *testing.T) {
	e := newSoftwareEngine(t, 16, 5)

	g := RandomGrid(16, 0.4, 7)
	g[3] = 9 // passes through untouched
	if !e.Reset(g) {
		t.Fatal(e.Err())
	}

	rd := MultiRingRules(5)
	for i := range rd.Rules {
		rd.Rules[i].Enabled = false
	}
	for i := 0; i < 3; i++ {
		if !e.Step(rd) {
			t.Fatalf("Step %d: %v", i, e.Err())
		}
		if got := e.Read(); !equalCells(got, g) {
			t.Fatalf("step %d changed the grid with every rule set disabled", i)
		}
	}
}

func TestEngineAdditiveUnion(t *testing.T) {
	const size, n = 24, 5
	g := RandomGrid(size, 0.35, 42)

	base := &RuleData{}
	base.Masks[0] = RingMask(n, 1, 1.5)
	base.Rules[0] = RuleSet{LowerStable: 2, UpperStable: 4, LowerBorn: 3, UpperBorn: 3}
	base.Masks[1] = RingMask(n, 1.9, 2.9)
	base.Rules[1] = RuleSet{LowerStable: 3, UpperStable: 6, LowerBorn: 4, UpperBorn: 5}
	base.Masks[2] = MooreMask(n, 0)
	base.Rules[2] = RuleSet{LowerStable: 8, UpperStable: 10, LowerBorn: 9, UpperBorn: 9}

	stepOnce := func(enabled ...int) []uint32 {
		t.Helper()
		rd := base.Clone()
		for _, i := range enabled {
			rd.Rules[i].Enabled = true
		}
		e := newSoftwareEngine(t, size, n)
		e.Reset(g)
		if !e.Step(rd) {
			t.Fatal(e.Err())
		}
		return e.Read()
	}

	only := [][]uint32{stepOnce(0), stepOnce(1), stepOnce(2)}
	all := stepOnce(0, 1, 2)
	for i := range all {
		want := only[0][i] | only[1][i] | only[2][i]
		if all[i] != want {
			t.Fatalf("cell %d = %d, want OR of single sets %d", i, all[i], want)
		}
	}
	pair := stepOnce(0, 1)
	for i := range pair {
		if only[0][i] == 1 && pair[i] != 1 {
			t.Fatalf("enabling set 2 removed a live cell at %d", i)
		}
	}
}

func TestEngineToroidalWrap(t *testing.T) {
	e := newSoftwareEngine(t, 5, 3)

	// Vertical blinker on the right edge becomes a horizontal one that
	// wraps onto column 0.
	e.Reset(GridFromPoints(5, Point{4, 1}, Point{4, 2}, Point{4, 3}))
	e.Step(ConwayRules(3))

	want := GridFromPoints(5, Point{3, 2}, Point{4, 2}, Point{0, 2})
	if got := e.Read(); !equalCells(got, want) {
		t.Errorf("wrapped blinker:\n%s\nwant:\n%s", FormatGrid(got, 5, '#', '.'), FormatGrid(want, 5, '#', '.'))
	}
}

func TestEngineParity(t *testing.T) {
	const size, n = 20, 3
	g := RandomGrid(size, 0.3, 3)
	rules := ConwayRules(n)

	e := newSoftwareEngine(t, size, n)
	for steps := 0; steps <= 7; steps++ {
		e.Reset(g)
		if e.Frame() != 0 {
			t.Fatalf("Frame() after Reset = %d", e.Frame())
		}
		for i := 0; i < steps; i++ {
			e.Step(rules)
		}
		want := reference(g, size, n, rules, steps)
		if got := e.Read(); !equalCells(got, want) {
			t.Errorf("after %d steps Read() does not match %d generations", steps, steps)
		}
	}
}

func TestEngineBindingAlternates(t *testing.T) {
	fake := registerFake(t, "parity-fake")
	e := New(WithDevice("parity-fake"))
	if !e.Initialize(8, 3) {
		t.Fatal(e.Err())
	}
	defer e.Destroy()

	rules := ConwayRules(3)
	for i := 0; i < 4; i++ {
		e.Step(rules)
	}
	e.Reset(NewGrid(8))
	e.Step(rules)

	want := []device.Binding{device.BindingA, device.BindingB, device.BindingA, device.BindingB, device.BindingA}
	got := fake.usedBindings()
	if len(got) != len(want) {
		t.Fatalf("bindings = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d used binding %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngineResetRoundTripAndIdempotence(t *testing.T) {
	e := newSoftwareEngine(t, 9, 3)
	g := RandomGrid(9, 0.5, 11)

	e.Step(ConwayRules(3))
	for i := 0; i < 3; i++ {
		if !e.Reset(g) {
			t.Fatal(e.Err())
		}
		if e.Frame() != 0 {
			t.Errorf("Frame() = %d after Reset", e.Frame())
		}
		if got := e.Read(); !equalCells(got, g) {
			t.Errorf("Read after Reset #%d differs from the reset grid", i+1)
		}
	}

	g[0] ^= 1 // caller's slice is not aliased
	if got := e.Read(); got[0] == g[0] {
		t.Error("engine state changed with the caller's slice")
	}
}

func TestEngineReadReturnsFreshSlice(t *testing.T) {
	e := newSoftwareEngine(t, 4, 3)
	e.Reset(GridFromPoints(4, Point{1, 1}))

	a := e.Read()
	a[5] = 0
	if b := e.Read(); b[5] != 1 {
		t.Error("mutating a Read result changed the next Read")
	}
}

func TestEngineInitializeValidation(t *testing.T) {
	tests := []struct {
		name      string
		grid, n   uint32
		wantReady bool
	}{
		{"zero grid", 0, 3, false},
		{"zero neighborhood", 8, 0, false},
		{"even neighborhood", 8, 4, false},
		{"radius beyond grid", 2, 7, false},
		{"grid beyond limit", MaxGridSize + 1, 3, false},
		{"max uint32 grid", math.MaxUint32, 3, false},
		{"neighborhood beyond limit", 512, MaxNeighborhoodSize + 2, false},
		{"radius equals grid", 3, 7, true},
		{"single cell neighborhood", 4, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(WithDevice(DeviceSoftware))
			defer e.Destroy()
			if got := e.Initialize(tt.grid, tt.n); got != tt.wantReady {
				t.Fatalf("Initialize(%d, %d) = %v, want %v", tt.grid, tt.n, got, tt.wantReady)
			}
			if !tt.wantReady {
				if !errors.Is(e.Err(), ErrInvalidConfig) {
					t.Errorf("Err() = %v, want ErrInvalidConfig", e.Err())
				}
				if e.State() != StateUninitialized {
					t.Errorf("State() = %v, want Uninitialized", e.State())
				}
			}
		})
	}
}

func TestEngineLifecycle(t *testing.T) {
	e := New(WithDevice(DeviceSoftware))
	if e.State() != StateUninitialized || e.IsReady() {
		t.Fatalf("new engine state = %v", e.State())
	}

	// Calls before Initialize are dropped.
	if e.Step(ConwayRules(3)) || e.Reset(NewGrid(4)) || e.Read() != nil {
		t.Error("calls before Initialize should be no-ops")
	}
	if !errors.Is(e.Err(), ErrNotReady) {
		t.Errorf("Err() = %v, want ErrNotReady", e.Err())
	}

	if !e.Initialize(6, 3) {
		t.Fatal(e.Err())
	}
	if !e.IsReady() || e.State() != StateReady {
		t.Fatalf("state after Initialize = %v", e.State())
	}
	if e.DeviceName() != DeviceSoftware || e.GridSize() != 6 || e.NeighborhoodSize() != 3 {
		t.Errorf("device=%q grid=%d n=%d", e.DeviceName(), e.GridSize(), e.NeighborhoodSize())
	}

	// Idempotent while Ready, even with other sizes.
	if !e.Initialize(10, 5) || e.GridSize() != 6 {
		t.Error("second Initialize should keep the existing resources")
	}

	// A new engine starts from an empty grid.
	if got := e.Read(); Population(got) != 0 || len(got) != 36 {
		t.Errorf("initial grid population = %d, len = %d", Population(got), len(got))
	}

	e.Destroy()
	if e.State() != StateUninitialized || e.IsReady() {
		t.Errorf("state after Destroy = %v", e.State())
	}
	if e.Step(ConwayRules(3)) || e.Read() != nil || e.Reset(NewGrid(6)) {
		t.Error("calls after Destroy should be no-ops")
	}
	e.Destroy()

	// The engine can be initialized again.
	if !e.Initialize(4, 3) {
		t.Fatalf("re-Initialize: %v", e.Err())
	}
	e.Destroy()
}

func TestEngineDestroyReleasesDevice(t *testing.T) {
	fake := registerFake(t, "close-fake")
	e := New(WithDevice("close-fake"))
	if !e.Initialize(8, 3) {
		t.Fatal(e.Err())
	}
	e.Step(ConwayRules(3))
	e.Destroy()
	e.Destroy()

	if n := fake.closes.Load(); n != 1 {
		t.Errorf("device closed %d times, want 1", n)
	}
	if e.DeviceName() != "" {
		t.Errorf("DeviceName() = %q after Destroy", e.DeviceName())
	}
}

func TestEngineUnsupportedBackend(t *testing.T) {
	e := New(WithDevice("no-such-device"))
	if e.Initialize(8, 3) {
		t.Fatal("Initialize with unknown device should fail")
	}
	if !errors.Is(e.Err(), ErrUnsupportedBackend) {
		t.Errorf("Err() = %v, want ErrUnsupportedBackend", e.Err())
	}

	fake := registerFake(t, "broken-fake")
	fake.failOpen.Store(true)
	e = New(WithDevice("broken-fake"))
	if e.Initialize(8, 3) {
		t.Fatal("Initialize with failing device should fail")
	}
	if !errors.Is(e.Err(), ErrUnsupportedBackend) || !errors.Is(e.Err(), errInjected) {
		t.Errorf("Err() = %v, want ErrUnsupportedBackend wrapping the device error", e.Err())
	}
	if e.State() != StateUninitialized {
		t.Errorf("State() = %v, want Uninitialized", e.State())
	}
}

func TestEngineAutoFallsBack(t *testing.T) {
	fake := registerFake(t, DeviceGPU)
	fake.failOpen.Store(true)

	e := New()
	if !e.Initialize(8, 3) {
		t.Fatalf("Initialize: %v", e.Err())
	}
	defer e.Destroy()
	if e.DeviceName() != DeviceSoftware {
		t.Errorf("DeviceName() = %q, want fallback to software", e.DeviceName())
	}
}

func TestEngineDispatchFailureSkipsStep(t *testing.T) {
	fake := registerFake(t, "dispatch-fake")
	e := New(WithDevice("dispatch-fake"))
	if !e.Initialize(5, 3) {
		t.Fatal(e.Err())
	}
	defer e.Destroy()

	h := GridFromPoints(5, Point{1, 2}, Point{2, 2}, Point{3, 2})
	e.Reset(h)

	fake.failDispatch.Store(true)
	if e.Step(ConwayRules(3)) {
		t.Fatal("Step should report failure")
	}
	if !errors.Is(e.Err(), ErrDispatch) {
		t.Errorf("Err() = %v, want ErrDispatch", e.Err())
	}
	if e.Frame() != 0 {
		t.Errorf("Frame() = %d, want 0 after skipped step", e.Frame())
	}

	fake.failDispatch.Store(false)
	fake.failUpload.Store(true)
	if e.Step(ConwayRules(3)) || e.Frame() != 0 {
		t.Error("upload failure should skip the step")
	}

	// The engine recovers on the next frame.
	fake.failUpload.Store(false)
	if !e.Step(ConwayRules(3)) {
		t.Fatalf("Step after recovery: %v", e.Err())
	}
	if e.Err() != nil {
		t.Errorf("Err() = %v after a successful step", e.Err())
	}
	want := GridFromPoints(5, Point{2, 1}, Point{2, 2}, Point{2, 3})
	if got := e.Read(); !equalCells(got, want) {
		t.Error("recovered step produced the wrong generation")
	}
}

func TestEngineReadbackFailure(t *testing.T) {
	fake := registerFake(t, "read-fake")
	e := New(WithDevice("read-fake"))
	if !e.Initialize(5, 3) {
		t.Fatal(e.Err())
	}
	defer e.Destroy()

	fake.failRead.Store(true)
	if got := e.Read(); got != nil {
		t.Errorf("Read() = %v, want nil on failure", got)
	}
	if !errors.Is(e.Err(), ErrReadback) {
		t.Errorf("Err() = %v, want ErrReadback", e.Err())
	}
	if !e.IsReady() {
		t.Error("a readback failure must not take the engine out of Ready")
	}
}

func TestEngineInvalidPayloads(t *testing.T) {
	e := newSoftwareEngine(t, 6, 3)

	rd := ConwayRules(5) // masks are 25 long
	if e.Step(rd) {
		t.Error("Step with wrong mask size should fail")
	}
	if !errors.Is(e.Err(), ErrDispatch) || !errors.Is(e.Err(), ErrInvalidRuleData) {
		t.Errorf("Err() = %v, want ErrDispatch and ErrInvalidRuleData", e.Err())
	}
	if e.Step(nil) {
		t.Error("Step(nil) should fail")
	}

	if e.Reset(NewGrid(5)) {
		t.Error("Reset with wrong length should fail")
	}
	if !errors.Is(e.Err(), ErrInvalidGrid) {
		t.Errorf("Err() = %v, want ErrInvalidGrid", e.Err())
	}

	// nil masks of disabled rule sets are fine.
	if !e.Step(ConwayRules(3)) {
		t.Errorf("Step with nil disabled masks: %v", e.Err())
	}
}

func TestEngineConcurrentDestroy(t *testing.T) {
	e := New(WithDevice(DeviceSoftware), WithWorkers(2))
	if !e.Initialize(32, 3) {
		t.Fatal(e.Err())
	}
	e.Reset(RandomGrid(32, 0.3, 5))
	rules := ConwayRules(3)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e.Step(rules)
				_ = e.Read()
			}
		}()
	}
	e.Destroy()
	wg.Wait()

	if e.State() != StateUninitialized {
		t.Errorf("State() = %v after Destroy", e.State())
	}
	if e.Read() != nil {
		t.Error("Read after Destroy returned data")
	}
}

func BenchmarkEngineStep128(b *testing.B) {
	e := New(WithDevice(DeviceSoftware))
	if !e.Initialize(128, 5) {
		b.Fatal(e.Err())
	}
	defer e.Destroy()
	e.Reset(RandomGrid(128, 0.3, 1))
	rules := MultiRingRules(5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Step(rules)
	}
	_ = e.Read()
}
