// ════════════════════════════════════════════════════════════════════════════════════════════════
// Pipelined Decision Tree Evaluator - Hardware Reference Model
// ────────────────────────────────────────────────────────────────────────────────────────────────
//
// One pipeline stage per tree level. Every stage owns a node-memory read port and a
// comparator, so Depth queries are in flight at once, each one level further down the tree.
//
// DESIGN PHILOSOPHY:
// ──────────────────
// 1. Fixed latency: every query takes exactly Depth ticks, whatever its leaf depth.
// 2. Full throughput: one query accepted and one result emitted per tick.
// 3. Captured input: stage 0 latches the input; later stages never re-sample it.
// 4. Resolve once: a slot that hit a leaf rides through the remaining stages unchanged.
//
// PIPELINE STRUCTURE:
// ───────────────────
//
//	          ┌────────┐   ┌────────┐   ┌────────┐         ┌────────┐
//	start ──▶ │ slot 0 │──▶│ slot 1 │──▶│ slot 2 │──▶ ··· ──▶│ slot D │──▶ action / valid
//	input     │ ingress│   │ level 0│   │ level 1│         │level D-1│
//	          └────────┘   └────────┘   └────────┘         └────────┘
//
// Slot 0 holds the freshly captured query aimed at the root. Stage s reads the node handed
// over by slot s-1, which sits at edge-depth s-1. Depth stages therefore resolve leaves at
// edge-depth 0 .. Depth-1, i.e. trees of up to Depth levels. A deeper leaf leaves the last
// stage valid but unresolved and produces no result.
//
// ORDERING:
// ─────────
// Each slot moves exactly one position per tick. Nothing overtakes anything else, so
// results leave in acceptance order without any reorder buffer.
//
// BUBBLES:
// ────────
// A tick without start loads an invalid slot 0. The hole travels down the pipe and shows
// up as a tick with valid = 0 exactly Depth ticks later.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package pipeline

import (
	"dtree/proto/tree"
)

// ════════════════════════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ════════════════════════════════════════════════════════════════════════════════════════════════

const (
	// Depth: Number of evaluation stages (tree levels resolved). 6 levels cover a complete
	// binary tree in 64 slots (63 nodes, leaves at edge-depth 5).
	// SystemVerilog: parameter DEPTH = 6;
	Depth = 6

	// NumSlots: Pipeline registers, ingress included.
	NumSlots = Depth + 1

	// MaxLeafDepth: Deepest leaf (in edges) the pipeline can resolve.
	MaxLeafDepth = Depth - 1
)

// ════════════════════════════════════════════════════════════════════════════════════════════════
// TYPE DEFINITIONS
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Slot is one pipeline register.
//
// SystemVerilog equivalent:
//
//	typedef struct packed {
//	  logic       valid;
//	  logic       resolved;
//	  logic [5:0] node_idx;
//	  logic [7:0] input_val;
//	  logic [1:0] result;
//	} slot_t;   // 19 bits
type Slot struct {
	Valid     bool        // Slot carries a query
	Resolved  bool        // A leaf has been reached; Result is final
	NodeIndex uint8       // Node the next stage reads (unresolved) or the leaf (resolved)
	Input     uint8       // Captured at ingress, never re-sampled
	Result    tree.Action // Leaf action once Resolved
}

// Inputs are the signals sampled at one clock edge.
type Inputs struct {
	Input uint8
	Start bool
	Reset bool
}

// Output is the egress port, driven by the last slot.
type Output struct {
	Action tree.Action
	Valid  bool  // valid ∧ resolved in the last slot
	Input  uint8 // Captured input of the emitted query (debug port)
}

// Stats counts engine activity since construction.
type Stats struct {
	Ticks      uint64
	Accepted   uint64 // Start pulses captured at ingress
	Emitted    uint64 // Valid results at egress
	Unresolved uint64 // Valid slots that reached egress without a leaf
	Resets     uint64
}

// Engine is the depth-parallel evaluator.
type Engine struct {
	store *tree.Store
	slots [NumSlots]Slot
	out   Output
	stats Stats
}

// New returns an empty pipeline reading from store.
func New(store *tree.Store) *Engine {
	return &Engine{store: store}
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// COMBINATIONAL LOGIC
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Ingress builds the slot 0 value for this tick.
//
//	assign slot0_d = start ? '{valid:1, resolved:0, node_idx:0, input_val:in, result:0}
//	                       : '0;
func Ingress(in Inputs) Slot {
	if !in.Start {
		return Slot{}
	}
	return Slot{Valid: true, NodeIndex: 0, Input: in.Input}
}

// EvaluateStage computes what stage s latches given slot s-1 from the previous tick.
// Pure function of prev and the store contents.
//
// Hardware: one read port + one comparator + muxes per stage.
//
//	node = nodes[prev.node_idx];
//	if (!prev.valid)         next = '0;
//	else if (prev.resolved)  next = prev;
//	else if (node.is_leaf)   next = '{prev with resolved:1, result:node.action};
//	else                     next = '{prev with node_idx: cond ? node.left : node.right};
func EvaluateStage(store *tree.Store, prev Slot) Slot {
	if !prev.Valid {
		return Slot{}
	}
	if prev.Resolved {
		return prev
	}
	n := store.Read(prev.NodeIndex)
	next := prev
	if n.IsLeaf {
		next.Resolved = true
		next.Result = n.Action
		return next
	}
	next.NodeIndex = n.Child(prev.Input)
	return next
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// SEQUENTIAL LOGIC
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Tick advances every stage by one clock edge and returns the egress port.
//
// All stages compute from the previous tick's registers, then all registers update
// together. Building the next array from last to first, or into a fresh array as here,
// are equivalent: no stage sees a value written in the same tick.
func (e *Engine) Tick(in Inputs) Output {
	e.stats.Ticks++

	if in.Reset {
		e.slots = [NumSlots]Slot{}
		e.out = Output{}
		e.stats.Resets++
		return e.out
	}

	var next [NumSlots]Slot
	next[0] = Ingress(in)
	for s := 1; s < NumSlots; s++ {
		next[s] = EvaluateStage(e.store, e.slots[s-1])
	}
	e.slots = next

	if in.Start {
		e.stats.Accepted++
	}

	egress := e.slots[Depth]
	e.out = Output{}
	switch {
	case egress.Valid && egress.Resolved:
		e.out = Output{Action: egress.Result, Valid: true, Input: egress.Input}
		e.stats.Emitted++
	case egress.Valid:
		e.stats.Unresolved++
	}
	return e.out
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// OBSERVATION
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Slots returns a copy of the pipeline registers.
func (e *Engine) Slots() [NumSlots]Slot { return e.slots }

// Occupancy counts valid slots.
func (e *Engine) Occupancy() int {
	n := 0
	for _, s := range e.slots {
		if s.Valid {
			n++
		}
	}
	return n
}

// Output returns the egress port as of the last Tick.
func (e *Engine) Output() Output { return e.out }

// Stats returns activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Result is one query's outcome from ClassifyBatch.
type Result struct {
	Input  uint8
	Action tree.Action
	Valid  bool
	Tick   int // Tick index of the egress pulse, counted from the first submission tick (0)
}

// ClassifyBatch submits inputs on consecutive ticks starting now, then keeps ticking until
// the last submission has had Depth ticks. Results are matched to submissions by
// position: the query accepted at tick i leaves at tick i+Depth. A query that leaves
// unresolved is reported with Valid = false.
func (e *Engine) ClassifyBatch(inputs []uint8) []Result {
	results := make([]Result, len(inputs))
	total := len(inputs) + Depth
	for tick := 0; tick < total; tick++ {
		in := Inputs{}
		if tick < len(inputs) {
			in = Inputs{Input: inputs[tick], Start: true}
		}
		out := e.Tick(in)

		k := tick - Depth
		if k < 0 {
			continue
		}
		results[k] = Result{Input: inputs[k], Action: out.Action, Valid: out.Valid, Tick: tick}
	}
	return results
}

// Drain ticks without start until the pipeline is empty and returns the results that
// emerged on the way, in order.
func (e *Engine) Drain() []Output {
	var outs []Output
	for i := 0; i < NumSlots && e.Occupancy() > 0; i++ {
		if out := e.Tick(Inputs{}); out.Valid {
			outs = append(outs, out)
		}
	}
	return outs
}
