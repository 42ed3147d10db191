// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command mnca runs a cellular automaton headless and reports the
// population as it evolves.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/mnca"
	_ "github.com/gogpu/mnca/gpu" // enable the GPU device
)

// printLimit is the largest grid dumped as text.
const printLimit = 64

// options holds the parsed command line.
type options struct {
	size, neighborhood int
	steps, every       int
	device, preset     string
	seed               uint64
	density            float64
	dump               bool
}

func main() {
	var o options
	flag.IntVar(&o.size, "size", 256, "grid side in cells")
	flag.IntVar(&o.neighborhood, "neighborhood", 3, "mask side in cells (odd)")
	flag.IntVar(&o.steps, "steps", 100, "generations to run")
	flag.StringVar(&o.device, "device", mnca.DeviceAuto, "compute device: auto, gpu, software")
	flag.StringVar(&o.preset, "preset", "conway", "rule preset: conway, blinker, mnca")
	flag.Uint64Var(&o.seed, "seed", 1, "random seed for the initial soup")
	flag.Float64Var(&o.density, "density", 0.3, "initial live-cell probability")
	flag.IntVar(&o.every, "every", 10, "report every N generations (0 = only at the end)")
	flag.BoolVar(&o.dump, "print", false, "dump the final grid as text (size <= 64)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		mnca.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(o); err != nil {
		log.Fatal(err)
	}
}

// validate rejects sizes the engine would refuse, before any grid is built.
func (o options) validate() error {
	if o.size <= 0 || o.size > mnca.MaxGridSize {
		return fmt.Errorf("-size %d out of range [1, %d]", o.size, mnca.MaxGridSize)
	}
	if o.neighborhood <= 0 || o.neighborhood > mnca.MaxNeighborhoodSize {
		return fmt.Errorf("-neighborhood %d out of range [1, %d]", o.neighborhood, mnca.MaxNeighborhoodSize)
	}
	if o.steps < 0 {
		return fmt.Errorf("-steps %d must not be negative", o.steps)
	}
	return nil
}

// run drives the engine. Every return path goes through Destroy.
func run(o options) error {
	if err := o.validate(); err != nil {
		return err
	}
	rules, initial, err := setup(o.preset, o.size, o.neighborhood, o.seed, o.density)
	if err != nil {
		return err
	}

	e := mnca.New(mnca.WithDevice(o.device))
	if !e.Initialize(uint32(o.size), uint32(o.neighborhood)) {
		return fmt.Errorf("engine not ready: %w", e.Err())
	}
	defer e.Destroy()

	log.Printf("device %s, %dx%d grid, %dx%d neighborhood, preset %s",
		e.DeviceName(), o.size, o.size, o.neighborhood, o.neighborhood, o.preset)

	if !e.Reset(initial) {
		return fmt.Errorf("reset: %w", e.Err())
	}
	report(0, mnca.Population(initial), 0)

	start := time.Now()
	for gen := 1; gen <= o.steps; gen++ {
		if !e.Step(rules) {
			log.Printf("generation %d skipped: %v", gen, e.Err())
			continue
		}
		if o.every > 0 && gen%o.every == 0 && gen != o.steps {
			if cells := e.Read(); cells != nil {
				report(gen, mnca.Population(cells), time.Since(start))
			}
		}
	}

	cells := e.Read()
	if cells == nil {
		return fmt.Errorf("read: %w", e.Err())
	}
	report(int(e.Frame()), mnca.Population(cells), time.Since(start))

	if o.dump {
		if o.size > printLimit {
			log.Printf("grid too large to print (%d > %d)", o.size, printLimit)
			return nil
		}
		fmt.Print(mnca.FormatGrid(cells, o.size, '#', '.'))
	}
	return nil
}

// setup returns the rule data and initial grid for a preset.
func setup(preset string, size, n int, seed uint64, density float64) (*mnca.RuleData, []uint32, error) {
	switch preset {
	case "conway":
		if n < 3 {
			return nil, nil, fmt.Errorf("preset conway needs neighborhood >= 3, got %d", n)
		}
		return mnca.ConwayRules(n), mnca.RandomGrid(size, density, seed), nil
	case "blinker":
		if n < 3 {
			return nil, nil, fmt.Errorf("preset blinker needs neighborhood >= 3, got %d", n)
		}
		c := size / 2
		initial := mnca.GridFromPoints(size,
			mnca.Point{X: c - 1, Y: c}, mnca.Point{X: c, Y: c}, mnca.Point{X: c + 1, Y: c})
		return mnca.ConwayRules(n), initial, nil
	case "mnca":
		return mnca.MultiRingRules(n), mnca.RandomGrid(size, density, seed), nil
	default:
		return nil, nil, fmt.Errorf("unknown preset %q (want conway, blinker or mnca)", preset)
	}
}

func report(gen, population int, elapsed time.Duration) {
	if gen == 0 || elapsed <= 0 {
		log.Printf("gen %6d  population %8d", gen, population)
		return
	}
	log.Printf("gen %6d  population %8d  %.1f gen/s",
		gen, population, float64(gen)/elapsed.Seconds())
}
