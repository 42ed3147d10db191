// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import "fmt"

// State is the resource state of an Engine.
//
//	Uninitialized --Initialize ok--> Initializing --> Ready
//	Uninitialized --Initialize failed--> Uninitialized
//	Ready --Destroy--> Destroying --> Destroyed --> Uninitialized
type State int32

const (
	// StateUninitialized holds no device resources.
	StateUninitialized State = iota
	// StateInitializing is acquiring the device and creating resources.
	StateInitializing
	// StateReady accepts Step, Read and Reset.
	StateReady
	// StateDestroying is draining the queue and releasing resources.
	StateDestroying
	// StateDestroyed has released everything. It is passed through on the
	// way back to StateUninitialized.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateDestroying:
		return "Destroying"
	case StateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
