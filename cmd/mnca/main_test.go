// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"testing"

	"github.com/gogpu/mnca"
)

func TestOptionsValidate(t *testing.T) {
	base := options{size: 16, neighborhood: 3, steps: 4, device: mnca.DeviceSoftware, preset: "blinker"}

	tests := []struct {
		name    string
		mutate  func(*options)
		wantErr bool
	}{
		{"defaults", func(*options) {}, false},
		{"negative size", func(o *options) { o.size = -1 }, true},
		{"zero size", func(o *options) { o.size = 0 }, true},
		{"size beyond limit", func(o *options) { o.size = mnca.MaxGridSize + 1 }, true},
		{"negative neighborhood", func(o *options) { o.neighborhood = -3 }, true},
		{"neighborhood beyond limit", func(o *options) { o.neighborhood = mnca.MaxNeighborhoodSize + 2 }, true},
		{"negative steps", func(o *options) { o.steps = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			if err := o.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunRejectsNegativeSize(t *testing.T) {
	o := options{size: -5, neighborhood: 3, device: mnca.DeviceSoftware, preset: "conway"}
	if err := run(o); err == nil {
		t.Error("run with negative size should fail")
	}
}

func TestRunBlinker(t *testing.T) {
	o := options{size: 8, neighborhood: 3, steps: 2, every: 1, device: mnca.DeviceSoftware, preset: "blinker"}
	if err := run(o); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSetupUnknownPreset(t *testing.T) {
	if _, _, err := setup("glider-gun", 8, 3, 1, 0.5); err == nil {
		t.Error("unknown preset should fail")
	}
}
