// ════════════════════════════════════════════════════════════════════════════════════════════════
// Sequential Decision Tree Walker - Hardware Reference Model
// ────────────────────────────────────────────────────────────────────────────────────────────────
//
// Pointer-chasing FSM: one traversal in flight, one node hop per tick.
//
// DESIGN PHILOSOPHY:
// ──────────────────
// 1. Frozen next-hop table: at start, every node is compared against the input in parallel
//    and the 64 resulting child indices are latched. The walk only follows that table.
// 2. Combinational leaf detect: the node under the cursor is read directly from the store
//    every tick, never from a register filled the tick before.
// 3. Drop-on-busy: a start pulse while walking is ignored.
//
// STATE MACHINE:
// ──────────────
//
//	          start (root internal)
//	  ┌──────┐ ───────────────────▶ ┌─────────┐
//	  │ IDLE │                      │ WALKING │ ──┐ internal: cur <= next[cur]
//	  └──────┘ ◀─────────────────── └─────────┘ ◀─┘
//	    │  ▲      leaf: valid pulse
//	    └──┘
//	  start (root leaf): valid pulse in the start tick
//
// LATENCY:
// ────────
// Exactly depth ticks after the start tick (depth = edges from root to leaf). The root hop
// is taken in the start tick itself from the freshly computed table; the leaf is recognized
// in the tick the cursor lands on it.
//
// The previous revision registered is_leaf one tick behind the cursor, which made every
// query cost depth+1 ticks. See TestLatency_NeverDepthPlusOne.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package walker

import (
	"dtree/proto/tree"
)

// ════════════════════════════════════════════════════════════════════════════════════════════════
// TYPE DEFINITIONS
// ════════════════════════════════════════════════════════════════════════════════════════════════

// State is the FSM state register.
type State uint8

const (
	Idle State = iota
	Walking
)

func (s State) String() string {
	if s == Walking {
		return "WALKING"
	}
	return "IDLE"
}

// Inputs are the signals sampled at one clock edge.
type Inputs struct {
	Input uint8 // market_input
	Start bool  // start pulse
	Reset bool  // synchronous reset, wins over Start
}

// Output is the registered result port. Valid is a one-tick pulse.
type Output struct {
	Action tree.Action
	Valid  bool
}

// NextTable is the per-traversal snapshot of child indices, one per node.
//
// Hardware: 64 × 6-bit register bank, written only on the start edge.
type NextTable [tree.Capacity]uint8

// Stats counts engine activity since construction.
type Stats struct {
	Ticks         uint64
	Starts        uint64 // Accepted start pulses
	Completions   uint64 // Valid result pulses
	DroppedStarts uint64 // Start pulses ignored while walking
	Resets        uint64
}

// Engine is the sequential walker.
//
// SystemVerilog equivalent:
//
//	module tree_walker (
//	  input  logic       clk, rst, start,
//	  input  logic [7:0] market_input,
//	  output logic [1:0] action,
//	  output logic       action_valid
//	);
//	  state_t     state;
//	  logic [5:0] cur;
//	  logic [5:0] next_tbl [0:63];
//	endmodule
type Engine struct {
	store *tree.Store

	state   State
	current uint8     // Cursor into the store
	next    NextTable // Frozen at start
	out     Output

	stats Stats
}

// New returns an idle walker reading from store.
func New(store *tree.Store) *Engine {
	return &Engine{store: store}
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// COMBINATIONAL LOGIC
// ════════════════════════════════════════════════════════════════════════════════════════════════

// ComputeNextTable evaluates every node against input in parallel.
//
// Hardware: 64 comparators + 64 child muxes, all driven by the same input.
//
//	genvar j;
//	generate
//	  for (j = 0; j < 64; j++) begin
//	    assign next_d[j] = cond(nodes[j], in) ? nodes[j].left_idx : nodes[j].right_idx;
//	  end
//	endgenerate
//
// Leaves produce a meaningless entry; the walk stops before following it.
func ComputeNextTable(store *tree.Store, input uint8) NextTable {
	var t NextTable
	for j := 0; j < tree.Capacity; j++ {
		t[j] = store.Read(uint8(j)).Child(input)
	}
	return t
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// SEQUENTIAL LOGIC
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Tick advances the FSM by one clock edge and returns the registered output.
func (e *Engine) Tick(in Inputs) Output {
	e.stats.Ticks++
	e.out = Output{}

	if in.Reset {
		e.clear()
		e.stats.Resets++
		return e.out
	}

	switch e.state {
	case Idle:
		if in.Start {
			e.start(in.Input)
		}

	case Walking:
		if in.Start {
			e.stats.DroppedStarts++
		}
		e.step()
	}

	return e.out
}

// start latches the next-hop table and takes the root hop.
func (e *Engine) start(input uint8) {
	e.stats.Starts++
	e.next = ComputeNextTable(e.store, input)

	root := e.store.Read(0)
	if root.IsLeaf {
		e.emit(root.Action)
		return
	}
	e.current = e.next[0]
	e.state = Walking
}

// step inspects the node under the cursor. The store read is combinational.
func (e *Engine) step() {
	n := e.store.Read(e.current)
	if n.IsLeaf {
		e.emit(n.Action)
		return
	}
	e.current = e.next[e.current]
}

func (e *Engine) emit(a tree.Action) {
	e.out = Output{Action: a, Valid: true}
	e.stats.Completions++
	e.state = Idle
	e.current = 0
	e.next = NextTable{}
}

func (e *Engine) clear() {
	e.state = Idle
	e.current = 0
	e.next = NextTable{}
	e.out = Output{}
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// OBSERVATION
// ════════════════════════════════════════════════════════════════════════════════════════════════

// State returns the FSM state register.
func (e *Engine) State() State { return e.state }

// Busy reports whether a traversal is in flight.
func (e *Engine) Busy() bool { return e.state == Walking }

// Current returns the cursor.
func (e *Engine) Current() uint8 { return e.current }

// Next returns a copy of the frozen table.
func (e *Engine) Next() NextTable { return e.next }

// Output returns the output port as of the last Tick.
func (e *Engine) Output() Output { return e.out }

// Stats returns activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Classify pulses start for input and ticks until the result or until maxTicks ticks
// after the start tick have elapsed. latency is counted from the start tick.
// ok is false when the walker was busy or the bound was hit (malformed tree).
func (e *Engine) Classify(input uint8, maxTicks int) (action tree.Action, latency int, ok bool) {
	if e.Busy() {
		return tree.None, 0, false
	}
	out := e.Tick(Inputs{Input: input, Start: true})
	if out.Valid {
		return out.Action, 0, true
	}
	for latency = 1; latency <= maxTicks; latency++ {
		out = e.Tick(Inputs{Input: input})
		if out.Valid {
			return out.Action, latency, true
		}
	}
	e.Tick(Inputs{Reset: true})
	return tree.None, maxTicks, false
}
