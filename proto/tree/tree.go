// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Decision Tree Store - Go Reference Model
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// The tree store is a 64-entry node memory. Both traversal engines read it; only the
// configuration write port mutates it. Root is always slot 0.
//
// Each slot holds one NODE, either:
//   - internal: threshold + comparison + left/right child indices
//   - leaf:     an action (NONE, BUY, SELL, CANCEL)
//
// HARDWARE MODEL:
// ───────────────
// Register file with one synchronous write port and any number of combinational read
// ports. A write presented during tick N becomes visible to readers at tick N+1.
//
//   Go method w/ ptr  → SV always_ff (sequential, modifies state)
//   Go method w/o ptr → SV always_comb (combinational, pure function)
//
// HAZARDS (documented, not guarded):
// ──────────────────────────────────
//   - A write and a traversal touching the same tree in overlapping ticks is undefined.
//     Callers must finish loading before pulsing start.
//   - The store does not validate child indices. Dangling or cyclic references are a
//     caller error, caught only by the golden evaluator's step bound.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package tree

import (
	"fmt"
	"math/bits"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   parameter ADDR_WIDTH   = 6;
//   parameter NUM_NODES    = 64;
//   parameter DATA_WIDTH   = 8;
//   parameter ACTION_WIDTH = 2;
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

const (
	// AddrWidth: Node address width. 6 bits = 64 slots.
	AddrWidth = 6

	// Capacity: Number of node slots.
	Capacity = 1 << AddrWidth // 64

	// IndexMask: Mask applied to every child index and read address.
	// Hardware: wire [5:0] idx = field & 6'h3F;
	IndexMask = Capacity - 1 // 0x3F

	// ActionWidth: 2 bits encode NONE/BUY/SELL/CANCEL.
	ActionWidth = 2

	// ActionMask: Mask for the 2-bit action field.
	ActionMask = (1 << ActionWidth) - 1

	// NodeWidth: Packed node word width.
	// 1 (leaf) + 8 (threshold) + 1 (less_than) + 6 (left) + 6 (right) + 2 (action) = 24 bits.
	NodeWidth = 1 + 8 + 1 + AddrWidth + AddrWidth + ActionWidth

	// ValidBitmapWords: 64 slots fit one 64-bit word.
	ValidBitmapWords = Capacity / 64
)

// Packed word bit offsets (LSB first).
const (
	actionShift    = 0
	rightShift     = actionShift + ActionWidth
	leftShift      = rightShift + AddrWidth
	lessThanShift  = leftShift + AddrWidth
	thresholdShift = lessThanShift + 1
	leafShift      = thresholdShift + 8
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FIELD TYPES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Action is the classification result carried by a leaf.
type Action uint8

const (
	None Action = iota
	Buy
	Sell
	Cancel
)

var actionNames = [...]string{"NONE", "BUY", "SELL", "CANCEL"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// ParseAction maps a case-sensitive action name back to its encoding.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if s == name {
			return Action(i), nil
		}
	}
	return None, fmt.Errorf("unknown action %q", s)
}

// MarshalText renders the action name.
func (a Action) MarshalText() ([]byte, error) {
	if int(a) >= len(actionNames) {
		return nil, fmt.Errorf("invalid action %d", uint8(a))
	}
	return []byte(actionNames[a]), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Comparison selects the strict inequality an internal node applies.
//
// The zero value is GreaterThan: a default-zeroed slot has less_than = 1'b0.
type Comparison uint8

const (
	GreaterThan Comparison = iota
	LessThan
)

func (c Comparison) String() string {
	if c == LessThan {
		return "<"
	}
	return ">"
}

// MarshalText renders "<" or ">".
func (c Comparison) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts "<", ">", "lt" and "gt".
func (c *Comparison) UnmarshalText(b []byte) error {
	switch string(b) {
	case "<", "lt", "LESS_THAN":
		*c = LessThan
	case ">", "gt", "GREATER_THAN":
		*c = GreaterThan
	default:
		return fmt.Errorf("unknown comparison %q", string(b))
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// NODE
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SystemVerilog equivalent:
//   typedef struct packed {
//     logic       is_leaf;    // 1 bit
//     logic [7:0] threshold;  // 8 bits
//     logic       less_than;  // 1 bit
//     logic [5:0] left_idx;   // 6 bits
//     logic [5:0] right_idx;  // 6 bits
//     logic [1:0] action;     // 2 bits
//   } node_t;                 // 24 bits total
//
// Leaf nodes ignore threshold/cmp/children; internal nodes ignore action.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Node struct {
	IsLeaf    bool       // Leaf vs internal discriminator
	Threshold uint8      // Compared against the 8-bit input
	Cmp       Comparison // LessThan or GreaterThan (strict)
	Left      uint8      // Child when the comparison holds (6 bits used)
	Right     uint8      // Child when it does not (6 bits used)
	Action    Action     // Leaf result (2 bits used)
}

// Leaf builds a leaf node.
func Leaf(a Action) Node {
	return Node{IsLeaf: true, Action: a}
}

// Branch builds an internal node.
func Branch(cmp Comparison, threshold, left, right uint8) Node {
	return Node{Threshold: threshold, Cmp: cmp, Left: left, Right: right}
}

// Compare evaluates the node's inequality against input.
//
// Hardware: one 8-bit magnitude comparator per node plus a 2:1 mux on the direction.
//
//	assign cond = less_than ? (in < thr) : (in > thr);
func (n Node) Compare(input uint8) bool {
	if n.Cmp == LessThan {
		return input < n.Threshold
	}
	return input > n.Threshold
}

// Child returns the index selected for input. The result is always a valid slot.
func (n Node) Child(input uint8) uint8 {
	if n.Compare(input) {
		return n.Left & IndexMask
	}
	return n.Right & IndexMask
}

// Pack encodes the node as its 24-bit word.
func (n Node) Pack() uint32 {
	var w uint32
	if n.IsLeaf {
		w |= 1 << leafShift
	}
	w |= uint32(n.Threshold) << thresholdShift
	if n.Cmp == LessThan {
		w |= 1 << lessThanShift
	}
	w |= uint32(n.Left&IndexMask) << leftShift
	w |= uint32(n.Right&IndexMask) << rightShift
	w |= uint32(n.Action&ActionMask) << actionShift
	return w
}

// Unpack decodes a 24-bit word. Bits above NodeWidth are ignored.
func Unpack(w uint32) Node {
	n := Node{
		IsLeaf:    (w>>leafShift)&1 != 0,
		Threshold: uint8(w >> thresholdShift),
		Left:      uint8(w>>leftShift) & IndexMask,
		Right:     uint8(w>>rightShift) & IndexMask,
		Action:    Action(w>>actionShift) & ActionMask,
	}
	if (w>>lessThanShift)&1 != 0 {
		n.Cmp = LessThan
	}
	return n
}

func (n Node) String() string {
	if n.IsLeaf {
		return "leaf " + n.Action.String()
	}
	return fmt.Sprintf("in %s %d ? %d : %d", n.Cmp, n.Threshold, n.Left, n.Right)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STORE
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// FIELDS:
//   nodes:   64 committed slots (flip-flop array, default zero)
//   valid:   bitmap of slots written at least once
//   pending: the latched write port (sw_we / sw_addr / sw_data)
//
// SystemVerilog:
//   always_ff @(posedge clk) begin
//     if (sw_we) begin
//       nodes[sw_addr] <= sw_data;
//       valid[sw_addr] <= 1'b1;
//     end
//   end
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type writePort struct {
	enable bool
	addr   uint8
	node   Node
}

// Store is the 64-slot node memory.
type Store struct {
	nodes   [Capacity]Node
	valid   [ValidBitmapWords]uint64
	pending writePort

	writes  uint64
	dropped uint64
}

// NewStore returns a store with every slot zeroed.
func NewStore() *Store {
	return &Store{}
}

// Write presents a node on the write port. It commits at the next Tick.
// Addresses outside the store are dropped; a second Write in the same tick replaces
// the first (single port).
func (s *Store) Write(addr uint8, n Node) {
	if int(addr) >= Capacity {
		s.dropped++
		return
	}
	n.Left &= IndexMask
	n.Right &= IndexMask
	n.Action &= ActionMask
	s.pending = writePort{enable: true, addr: addr, node: n}
}

// Tick is the clock edge: the latched write, if any, lands in its slot.
func (s *Store) Tick() {
	if !s.pending.enable {
		return
	}
	addr := s.pending.addr
	s.nodes[addr] = s.pending.node
	s.valid[addr>>6] |= 1 << (addr & 63)
	s.writes++
	s.pending = writePort{}
}

// Read returns the committed node at addr. The address bus is 6 bits wide.
//
//go:inline
func (s *Store) Read(addr uint8) Node {
	return s.nodes[addr&IndexMask]
}

// Written reports whether addr has been committed since the last Reset.
func (s *Store) Written(addr uint8) bool {
	if int(addr) >= Capacity {
		return false
	}
	return (s.valid[addr>>6]>>(addr&63))&1 != 0
}

// Pending reports whether a write is latched but not yet committed.
func (s *Store) Pending() bool {
	return s.pending.enable
}

// Snapshot copies slots 0 through the highest written slot. An empty store yields nil.
func (s *Store) Snapshot() []Node {
	hi := -1
	for w := ValidBitmapWords - 1; w >= 0; w-- {
		if s.valid[w] != 0 {
			hi = w*64 + 63 - bits.LeadingZeros64(s.valid[w])
			break
		}
	}
	if hi < 0 {
		return nil
	}
	out := make([]Node, hi+1)
	copy(out, s.nodes[:hi+1])
	return out
}

// Reset clears every slot and the write port. Engines never call this; the reset
// signal only clears traversal state.
func (s *Store) Reset() {
	*s = Store{}
}

// Stats summarizes write-port activity.
type Stats struct {
	Writes        uint64 // Committed writes
	DroppedWrites uint64 // Writes addressed beyond Capacity
	Populated     int    // Slots written at least once
}

func (s *Store) Stats() Stats {
	populated := 0
	for _, w := range s.valid {
		populated += bits.OnesCount64(w)
	}
	return Stats{
		Writes:        s.writes,
		DroppedWrites: s.dropped,
		Populated:     populated,
	}
}

// Load programs nodes into slots 0..len-1, one write per tick, like a host driving the
// write port. Nodes beyond Capacity are dropped.
func Load(s *Store, nodes []Node) {
	for i, n := range nodes {
		if i >= Capacity {
			s.dropped += uint64(len(nodes) - i)
			return
		}
		s.Write(uint8(i), n)
		s.Tick()
	}
}

// FromNodes returns a freshly loaded store.
func FromNodes(nodes []Node) *Store {
	s := NewStore()
	Load(s, nodes)
	return s
}
