// Package hashsel implements weighted pipeline selection for a device:
// given a packet's flow tuple and a device's list of (pipeline,
// weight) choices, it picks one deterministically and load-balances
// proportionally to the weights (spec.md §4.5 step 2, "Select the
// pipeline for the packet batch via device → pipeline map (weighted by
// hash; weights are stored verbatim in the device registry)").
package hashsel

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/yanet-platform/yanet2go/internal/cpconfig"
)

// key is a fixed 32-byte all-zero key: selection only needs a fast,
// well-distributed hash, not a MAC, so there is nothing secret to key
// with.
var key [32]byte

// FlowHash returns a 64-bit hash of a flow tuple, stable across calls
// with the same bytes, suitable as Select's input.
func FlowHash(tuple []byte) uint64 {
	h, err := blake2b.New(8, key[:])
	if err != nil {
		// blake2b.New only errors on an oversized key or an
		// out-of-range size, neither possible with fixed arguments.
		panic(err)
	}
	h.Write(tuple)
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// Select picks one of weights' pipeline indexes, proportionally to
// their Weight, using flowHash to place the pick within the weighted
// range. Returns false if weights is empty.
func Select(weights []cpconfig.DeviceWeight, flowHash uint64) (pipelineIndex int, ok bool) {
	if len(weights) == 0 {
		return 0, false
	}

	var total uint64
	for _, w := range weights {
		total += uint64(w.Weight)
	}
	if total == 0 {
		return weights[0].PipelineIndex, true
	}

	target := flowHash % total
	var acc uint64
	for _, w := range weights {
		acc += uint64(w.Weight)
		if target < acc {
			return w.PipelineIndex, true
		}
	}
	return weights[len(weights)-1].PipelineIndex, true
}
