package tree

import (
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Decision Tree Store - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// These vectors double as the RTL spec for the node memory: same writes, same reads.
//
// 1. NODE ENCODING      compare rule, child select, packed word layout
// 2. WRITE PORT         tick-boundary commit, single port, dropped writes
// 3. READ PORT          round-trip, address masking, snapshot
// 4. FIXTURES           reference trees are well-formed
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 1. NODE ENCODING
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestNode_Compare_LessThanIsStrict(t *testing.T) {
	// WHAT: LessThan holds for input < threshold only
	// WHY: Equal inputs must take the right branch
	// HARDWARE: 8-bit magnitude comparator, strict

	n := Branch(LessThan, 20, 1, 2)

	if !n.Compare(19) {
		t.Error("19 < 20 should hold")
	}
	if n.Compare(20) {
		t.Error("20 < 20 should not hold")
	}
	if n.Child(20) != 2 {
		t.Errorf("Equal input should go right, got %d", n.Child(20))
	}
}

func TestNode_Compare_GreaterThanIsStrict(t *testing.T) {
	// WHAT: GreaterThan holds for input > threshold only
	// WHY: Mirror of the LessThan case

	n := Branch(GreaterThan, 100, 3, 4)

	if !n.Compare(101) {
		t.Error("101 > 100 should hold")
	}
	if n.Compare(100) {
		t.Error("100 > 100 should not hold")
	}
	if n.Child(101) != 3 || n.Child(99) != 4 {
		t.Errorf("Child select wrong: %d %d", n.Child(101), n.Child(99))
	}
}

func TestNode_ZeroValueIsGreaterThanSelfLoop(t *testing.T) {
	// WHAT: A default-zeroed slot is an internal node pointing at slot 0 both ways
	// WHY: Dangling references land here; the engines must treat it as a real node
	// HARDWARE: Reset value of the node flip-flops is all zeros

	var n Node

	if n.IsLeaf {
		t.Fatal("Zero node must not be a leaf")
	}
	if n.Cmp != GreaterThan {
		t.Errorf("Zero comparison should be GreaterThan, got %s", n.Cmp)
	}
	for _, in := range []uint8{0, 1, 255} {
		if n.Child(in) != 0 {
			t.Errorf("Zero node child for %d should be 0, got %d", in, n.Child(in))
		}
	}
}

func TestNode_ChildIsMasked(t *testing.T) {
	// WHAT: Child indices wider than 6 bits are truncated
	// WHY: The index bus is 6 bits; the engines index a 64-entry array

	n := Branch(LessThan, 10, 0xC1, 0xFF)

	if n.Child(0) != 0x01 {
		t.Errorf("Expected masked left 1, got %d", n.Child(0))
	}
	if n.Child(200) != 0x3F {
		t.Errorf("Expected masked right 63, got %d", n.Child(200))
	}
}

func TestNode_PackRoundTrip(t *testing.T) {
	// WHAT: Pack/Unpack preserve every field of a well-formed node
	// WHY: The tree library persists packed words

	cases := []Node{
		{},
		Leaf(None),
		Leaf(Buy),
		Leaf(Sell),
		Leaf(Cancel),
		Branch(LessThan, 0, 0, 0),
		Branch(LessThan, 255, 63, 63),
		Branch(GreaterThan, 128, 17, 42),
	}

	for _, n := range cases {
		got := Unpack(n.Pack())
		if got != n {
			t.Errorf("Round trip %v → 0x%06X → %v", n, n.Pack(), got)
		}
		if n.Pack()>>NodeWidth != 0 {
			t.Errorf("Packed word 0x%X exceeds %d bits", n.Pack(), NodeWidth)
		}
	}
}

func TestNode_PackLayout(t *testing.T) {
	// WHAT: Bit positions match the RTL node_t struct
	// WHY: Memory images are shared with the RTL testbench

	n := Node{IsLeaf: true, Threshold: 0xAB, Cmp: LessThan, Left: 0x15, Right: 0x2A, Action: Cancel}
	want := uint32(1)<<23 | uint32(0xAB)<<15 | uint32(1)<<14 | uint32(0x15)<<8 | uint32(0x2A)<<2 | uint32(3)

	if n.Pack() != want {
		t.Errorf("Pack = 0x%06X, want 0x%06X", n.Pack(), want)
	}
}

func TestAction_TextRoundTrip(t *testing.T) {
	for _, a := range []Action{None, Buy, Sell, Cancel} {
		b, err := a.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", a, err)
		}
		var got Action
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", b, err)
		}
		if got != a {
			t.Errorf("Round trip %s → %s", a, got)
		}
	}

	var a Action
	if err := a.UnmarshalText([]byte("HOLD")); err == nil {
		t.Error("Unknown action should fail")
	}
	if _, err := Action(7).MarshalText(); err == nil {
		t.Error("Out-of-range action should fail to marshal")
	}
}

func TestComparison_UnmarshalText(t *testing.T) {
	cases := map[string]Comparison{
		"<":            LessThan,
		"lt":           LessThan,
		"LESS_THAN":    LessThan,
		">":            GreaterThan,
		"gt":           GreaterThan,
		"GREATER_THAN": GreaterThan,
	}
	for in, want := range cases {
		var c Comparison
		if err := c.UnmarshalText([]byte(in)); err != nil {
			t.Errorf("%q: %v", in, err)
			continue
		}
		if c != want {
			t.Errorf("%q → %s, want %s", in, c, want)
		}
	}

	var c Comparison
	if err := c.UnmarshalText([]byte("<=")); err == nil {
		t.Error("Non-strict comparison should be rejected")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 2. WRITE PORT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestStore_WriteCommitsAtTick(t *testing.T) {
	// WHAT: A write is invisible until the next clock edge
	// WHY: Traversals issued in the same tick must see the old contents
	// HARDWARE: nodes[sw_addr] <= sw_data on posedge

	s := NewStore()
	s.Write(3, Leaf(Buy))

	if s.Read(3) != (Node{}) {
		t.Error("Write visible before tick")
	}
	if !s.Pending() {
		t.Error("Write port should be latched")
	}

	s.Tick()

	if s.Read(3) != Leaf(Buy) {
		t.Errorf("Expected BUY leaf after tick, got %v", s.Read(3))
	}
	if s.Pending() {
		t.Error("Write port should be idle after commit")
	}
}

func TestStore_SinglePortLastWriteWins(t *testing.T) {
	// WHAT: Two writes before one edge: only the second lands
	// WHY: One write port, one write per tick

	s := NewStore()
	s.Write(1, Leaf(Buy))
	s.Write(2, Leaf(Sell))
	s.Tick()

	if s.Written(1) {
		t.Error("Slot 1 should not be written")
	}
	if s.Read(2) != Leaf(Sell) {
		t.Errorf("Slot 2 = %v, want SELL leaf", s.Read(2))
	}
	if s.Stats().Writes != 1 {
		t.Errorf("Expected 1 committed write, got %d", s.Stats().Writes)
	}
}

func TestStore_OutOfCapacityWriteDropped(t *testing.T) {
	// WHAT: Address 64+ never reaches the memory
	// WHY: Out-of-capacity writes are ignored by contract

	s := NewStore()
	s.Write(64, Leaf(Cancel))
	s.Write(200, Leaf(Cancel))
	s.Tick()

	if s.Stats().DroppedWrites != 2 {
		t.Errorf("Expected 2 dropped writes, got %d", s.Stats().DroppedWrites)
	}
	if s.Stats().Populated != 0 {
		t.Errorf("No slot should be populated, got %d", s.Stats().Populated)
	}
	if s.Read(0) != (Node{}) {
		t.Error("Aliased write leaked into slot 0")
	}
}

func TestStore_TickWithoutWriteIsNoop(t *testing.T) {
	s := FromNodes(SampleTree5())
	before := s.Snapshot()

	s.Tick()
	s.Tick()

	after := s.Snapshot()
	if len(before) != len(after) {
		t.Fatalf("Snapshot length changed %d → %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("Slot %d changed without a write", i)
		}
	}
}

func TestStore_OverwriteReplaces(t *testing.T) {
	s := NewStore()
	s.Write(5, Leaf(Buy))
	s.Tick()
	s.Write(5, Branch(GreaterThan, 9, 1, 2))
	s.Tick()

	if s.Read(5) != Branch(GreaterThan, 9, 1, 2) {
		t.Errorf("Overwrite failed: %v", s.Read(5))
	}
	if s.Stats().Populated != 1 {
		t.Errorf("Populated should stay 1, got %d", s.Stats().Populated)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 3. READ PORT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestStore_RoundTripEverySlot(t *testing.T) {
	// WHAT: Write each slot with distinct fields, read all back
	// WHY: Round-trip property over the full address space

	s := NewStore()
	for i := 0; i < Capacity; i++ {
		n := Node{
			IsLeaf:    i%3 == 0,
			Threshold: uint8(i * 4),
			Cmp:       Comparison(i & 1),
			Left:      uint8((i + 1) & IndexMask),
			Right:     uint8((i + 2) & IndexMask),
			Action:    Action(i & ActionMask),
		}
		s.Write(uint8(i), n)
		s.Tick()
	}

	for i := 0; i < Capacity; i++ {
		want := Node{
			IsLeaf:    i%3 == 0,
			Threshold: uint8(i * 4),
			Cmp:       Comparison(i & 1),
			Left:      uint8((i + 1) & IndexMask),
			Right:     uint8((i + 2) & IndexMask),
			Action:    Action(i & ActionMask),
		}
		if got := s.Read(uint8(i)); got != want {
			t.Errorf("Slot %d: got %v, want %v", i, got, want)
		}
		if !s.Written(uint8(i)) {
			t.Errorf("Slot %d should be marked written", i)
		}
	}

	if s.Stats().Populated != Capacity {
		t.Errorf("Expected %d populated, got %d", Capacity, s.Stats().Populated)
	}
}

func TestStore_UnwrittenSlotReadsZero(t *testing.T) {
	// WHAT: Never-written slots return the default node
	// WHY: Dangling indices read whatever was last written, here nothing

	s := FromNodes(SampleTree5())

	if s.Read(40) != (Node{}) {
		t.Errorf("Slot 40 should be zero, got %v", s.Read(40))
	}
	if s.Written(40) {
		t.Error("Slot 40 should not be marked written")
	}
	if s.Written(64) {
		t.Error("Out-of-range address can never be written")
	}
}

func TestStore_ReadAddressWraps(t *testing.T) {
	// WHAT: Read addresses are truncated to 6 bits
	// HARDWARE: 6-bit address bus

	s := FromNodes(SampleTree5())

	if s.Read(64+2) != s.Read(2) {
		t.Error("Address 66 should alias slot 2")
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	if s.Snapshot() != nil {
		t.Error("Empty store snapshot should be nil")
	}

	s.Write(9, Leaf(Sell))
	s.Tick()

	snap := s.Snapshot()
	if len(snap) != 10 {
		t.Fatalf("Snapshot should cover slots 0..9, got %d", len(snap))
	}
	if snap[9] != Leaf(Sell) {
		t.Errorf("snap[9] = %v", snap[9])
	}

	snap[9] = Leaf(Buy)
	if s.Read(9) != Leaf(Sell) {
		t.Error("Snapshot must be a copy")
	}

	s.Write(63, Leaf(Buy))
	s.Tick()
	if len(s.Snapshot()) != Capacity {
		t.Errorf("Full-range snapshot should be %d long", Capacity)
	}
}

func TestStore_Reset(t *testing.T) {
	s := FromNodes(SampleTree15())
	s.Write(20, Leaf(Buy))
	s.Reset()

	if s.Stats() != (Stats{}) {
		t.Errorf("Stats after reset: %+v", s.Stats())
	}
	if s.Pending() {
		t.Error("Reset should clear the write port")
	}
	s.Tick()
	if s.Written(20) {
		t.Error("Latched write survived reset")
	}
}

func TestLoad_DropsBeyondCapacity(t *testing.T) {
	nodes := make([]Node, Capacity+3)
	for i := range nodes {
		nodes[i] = Leaf(Buy)
	}

	s := FromNodes(nodes)

	if s.Stats().Populated != Capacity {
		t.Errorf("Populated = %d", s.Stats().Populated)
	}
	if s.Stats().DroppedWrites != 3 {
		t.Errorf("Dropped = %d, want 3", s.Stats().DroppedWrites)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 4. FIXTURES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestFixtures_ChildrenInRange(t *testing.T) {
	for name, nodes := range map[string][]Node{
		"SampleTree5":  SampleTree5(),
		"SampleTree15": SampleTree15(),
	} {
		for i, n := range nodes {
			if n.IsLeaf {
				continue
			}
			if int(n.Left) >= len(nodes) || int(n.Right) >= len(nodes) {
				t.Errorf("%s[%d] references outside the tree: %v", name, i, n)
			}
			if n.Left <= uint8(i) || n.Right <= uint8(i) {
				t.Errorf("%s[%d] points backwards: %v", name, i, n)
			}
		}
	}
}

func TestDoc_Layout(t *testing.T) {
	// WHAT: Document node memory geometry

	t.Log("NODE MEMORY:")
	t.Log("============")
	t.Logf("Capacity:   %d slots", Capacity)
	t.Logf("AddrWidth:  %d bits", AddrWidth)
	t.Logf("NodeWidth:  %d bits", NodeWidth)
	t.Logf("Storage:    %d bits", Capacity*NodeWidth)

	if NodeWidth != 24 {
		t.Errorf("NodeWidth should be 24, got %d", NodeWidth)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// BENCHMARKS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func BenchmarkRead(b *testing.B) {
	s := FromNodes(SampleTree15())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Read(uint8(i))
	}
}

func BenchmarkPackUnpack(b *testing.B) {
	n := Branch(LessThan, 128, 1, 2)
	for i := 0; i < b.N; i++ {
		_ = Unpack(n.Pack())
	}
}
