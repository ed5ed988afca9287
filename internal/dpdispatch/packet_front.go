package dpdispatch

// Packet is the unit the dispatch loop moves between lists. The core
// never interprets its contents beyond the flow tuple used for
// pipeline selection; collaborator modules attach whatever payload
// they need via Data.
type Packet struct {
	FlowTuple []byte
	Data      any
}

// PacketFront is the four-list structure a pipeline's modules consume
// from and enqueue into: input, output, drop, bypass (spec.md §3
// "Packet front"). Modules consume from Input and enqueue into the
// other three; the driver swaps Output into Input between module
// invocations (§4.5 step 3).
type PacketFront struct {
	Input  []Packet
	Output []Packet
	Drop   []Packet
	Bypass []Packet
}

// NewPacketFront returns a front with batch queued as the initial
// input.
func NewPacketFront(batch []Packet) *PacketFront {
	return &PacketFront{Input: batch}
}

// Advance swaps Output into Input and clears Output, so the next
// module in the pipeline consumes what the previous one produced.
func (pf *PacketFront) Advance() {
	pf.Input, pf.Output = pf.Output, pf.Input[:0]
}

// Done reports whether every input packet has been consumed: either
// moved to bypass/drop, or the pipeline has run to completion and what
// remains in Output is the final result.
func (pf *PacketFront) Done() bool {
	return len(pf.Input) == 0
}
