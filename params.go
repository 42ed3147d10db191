// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mnca

import (
	"encoding/binary"

	"github.com/gogpu/mnca/internal/kernel"
)

// ParamWords is the number of u32 words in the parameter buffer.
const ParamWords = kernel.ParamWords

// EncodeParams packs the simulation parameters into the fixed kernel layout:
//
//	[gridSize, n, ls1, us1, lb1, ub1, en1, ..., ls4, us4, lb4, ub4, en4]
//
// en is 1 for an enabled rule set and 0 otherwise. The word order and count
// are part of the kernel ABI.
func EncodeParams(gridSize, neighborhoodSize uint32, rules [RuleCount]RuleSet) [ParamWords]uint32 {
	var w [ParamWords]uint32
	w[0] = gridSize
	w[1] = neighborhoodSize
	for i, r := range rules {
		base := 2 + i*5
		w[base] = r.LowerStable
		w[base+1] = r.UpperStable
		w[base+2] = r.LowerBorn
		w[base+3] = r.UpperBorn
		if r.Enabled {
			w[base+4] = 1
		}
	}
	return w
}

// ParamBytes returns the little-endian byte image of the parameter words.
func ParamBytes(words [ParamWords]uint32) []byte {
	buf := make([]byte, 0, kernel.ParamBytes)
	for _, v := range words {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return buf
}
