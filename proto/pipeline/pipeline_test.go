package pipeline

import (
	"testing"

	"dtree/proto/golden"
	"dtree/proto/tree"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Pipelined Evaluator - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Same vectors, same tick counts on the RTL. Every result must appear exactly Depth ticks
// after its start pulse, in submission order, one per tick under back-to-back load.
//
// 1. STAGE LOGIC        ingress and per-stage evaluation in isolation
// 2. LATENCY            fixed Depth ticks for every leaf depth
// 3. THROUGHPUT         one in, one out per tick, FIFO order
// 4. BUBBLES            holes propagate as valid = 0
// 5. RESET              all slots cleared, nothing emitted
// 6. DEPTH BOUND        leaves deeper than MaxLeafDepth
// 7. EXHAUSTIVE         all 256 inputs vs the golden evaluator
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 1. STAGE LOGIC
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestIngress(t *testing.T) {
	// WHAT: Start captures input aimed at the root; no start is a bubble
	// HARDWARE: slot0 <= start ? {1,0,0,in,0} : 0

	if s := Ingress(Inputs{Input: 42, Start: true}); s != (Slot{Valid: true, Input: 42}) {
		t.Errorf("Ingress with start: %+v", s)
	}
	if s := Ingress(Inputs{Input: 42}); s != (Slot{}) {
		t.Errorf("Ingress without start should be empty, got %+v", s)
	}
}

func TestEvaluateStage_Cases(t *testing.T) {
	// WHAT: The four stage cases
	// WHY: Each stage is a pure function of the previous slot

	store := tree.FromNodes(tree.SampleTree5())

	// Invalid → bubble
	if s := EvaluateStage(store, Slot{NodeIndex: 3, Input: 5}); s != (Slot{}) {
		t.Errorf("Invalid slot should stay empty, got %+v", s)
	}

	// Resolved → passthrough, even if the node index now points at an internal node
	resolved := Slot{Valid: true, Resolved: true, NodeIndex: 0, Input: 5, Result: tree.Sell}
	if s := EvaluateStage(store, resolved); s != resolved {
		t.Errorf("Resolved slot changed: %+v", s)
	}

	// Internal → advance
	s := EvaluateStage(store, Slot{Valid: true, NodeIndex: 0, Input: 15})
	if s.Resolved || s.NodeIndex != 1 {
		t.Errorf("Root hop for 15 should reach node 1, got %+v", s)
	}

	// Leaf → resolve
	s = EvaluateStage(store, Slot{Valid: true, NodeIndex: 2, Input: 25})
	if !s.Resolved || s.Result != tree.Cancel || s.NodeIndex != 2 {
		t.Errorf("Leaf 2 should resolve CANCEL, got %+v", s)
	}
}

func TestEvaluateStage_UsesCapturedInput(t *testing.T) {
	// WHAT: The comparison uses the slot's own input
	// WHY: Different slots carry different queries through the same tree

	store := tree.FromNodes(tree.SampleTree5())

	a := EvaluateStage(store, Slot{Valid: true, NodeIndex: 1, Input: 5})
	b := EvaluateStage(store, Slot{Valid: true, NodeIndex: 1, Input: 15})

	if a.NodeIndex != 3 || b.NodeIndex != 4 {
		t.Errorf("Expected 3 and 4, got %d and %d", a.NodeIndex, b.NodeIndex)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 2. LATENCY
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestLatency_SampleTree5(t *testing.T) {
	// WHAT: Depth-1 and depth-2 leaves both take exactly Depth ticks
	// WHY: Shallow leaves ride unchanged through the remaining stages

	cases := []struct {
		input  uint8
		action tree.Action
	}{
		{5, tree.Buy},
		{15, tree.Sell},
		{25, tree.Cancel},
	}

	for _, tc := range cases {
		e := New(tree.FromNodes(tree.SampleTree5()))
		e.Tick(Inputs{Input: tc.input, Start: true})

		for tick := 1; tick <= Depth; tick++ {
			out := e.Tick(Inputs{})
			if tick < Depth && out.Valid {
				t.Fatalf("input %d: early result at tick %d", tc.input, tick)
			}
			if tick == Depth {
				if !out.Valid || out.Action != tc.action {
					t.Errorf("input %d: at tick %d got %+v, want %s", tc.input, tick, out, tc.action)
				}
			}
		}
	}
}

func TestLatency_IndependentOfLeafDepth(t *testing.T) {
	// WHAT: Every input of the mixed-depth tree emits at exactly Depth ticks
	// WHY: Fixed latency is the whole point of the pipelined engine

	nodes := tree.SampleTree15()
	e := New(tree.FromNodes(nodes))

	for in := 0; in < golden.NumInputs; in++ {
		e.Tick(Inputs{Input: uint8(in), Start: true})
		for tick := 1; tick <= Depth; tick++ {
			out := e.Tick(Inputs{})
			if out.Valid != (tick == Depth) {
				t.Fatalf("input %d: valid=%v at tick %d", in, out.Valid, tick)
			}
		}
	}
}

func TestLatency_RootLeaf(t *testing.T) {
	e := New(tree.FromNodes([]tree.Node{tree.Leaf(tree.Sell)}))

	results := e.ClassifyBatch([]uint8{0})

	if !results[0].Valid || results[0].Action != tree.Sell || results[0].Tick != Depth {
		t.Errorf("Root leaf: %+v", results[0])
	}
}

func TestResolvedSlotImmutable(t *testing.T) {
	// WHAT: A slot resolved at stage 1 carries the same result to egress
	// WHY: Once resolved, later stages must not touch it

	e := New(tree.FromNodes([]tree.Node{tree.Leaf(tree.Buy)}))
	e.Tick(Inputs{Input: 1, Start: true})

	for tick := 1; tick <= Depth; tick++ {
		e.Tick(Inputs{})
		s := e.Slots()[tick]
		if !s.Valid || !s.Resolved || s.Result != tree.Buy || s.NodeIndex != 0 {
			t.Fatalf("Slot %d at tick %d: %+v", tick, tick, s)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 3. THROUGHPUT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestThroughput_BackToBack(t *testing.T) {
	// WHAT: N inputs on N consecutive ticks → N results on N consecutive ticks
	// WHY: One result per tick once full, in submission order

	nodes := tree.SampleTree15()
	e := New(tree.FromNodes(nodes))
	inputs := []uint8{4, 80, 140, 200, 10, 20, 170, 40}

	var outs []Output
	var ticks []int
	for tick := 0; tick < len(inputs)+Depth; tick++ {
		in := Inputs{}
		if tick < len(inputs) {
			in = Inputs{Input: inputs[tick], Start: true}
		}
		if out := e.Tick(in); out.Valid {
			outs = append(outs, out)
			ticks = append(ticks, tick)
		}
	}

	if len(outs) != len(inputs) {
		t.Fatalf("Expected %d results, got %d", len(inputs), len(outs))
	}
	for i := range outs {
		if ticks[i] != i+Depth {
			t.Errorf("Result %d at tick %d, want %d", i, ticks[i], i+Depth)
		}
		if outs[i].Input != inputs[i] {
			t.Errorf("Result %d carries input %d, want %d (reordered)", i, outs[i].Input, inputs[i])
		}
		if want := golden.Evaluate(nodes, inputs[i]).Action; outs[i].Action != want {
			t.Errorf("Result %d: %s, want %s", i, outs[i].Action, want)
		}
	}
}

func TestThroughput_FullPipeOccupancy(t *testing.T) {
	// WHAT: After Depth+1 back-to-back starts every slot is valid
	// HARDWARE: All 7 registers busy, all 6 comparators active

	e := New(tree.FromNodes(tree.SampleTree15()))
	for i := 0; i < NumSlots; i++ {
		e.Tick(Inputs{Input: uint8(i * 30), Start: true})
	}

	if e.Occupancy() != NumSlots {
		t.Errorf("Occupancy %d, want %d", e.Occupancy(), NumSlots)
	}
}

func TestClassifyBatch_OrderAndTicks(t *testing.T) {
	nodes := tree.SampleTree15()
	e := New(tree.FromNodes(nodes))

	inputs := make([]uint8, golden.NumInputs)
	for i := range inputs {
		inputs[i] = uint8(255 - i)
	}

	results := e.ClassifyBatch(inputs)

	for i, r := range results {
		if r.Input != inputs[i] || r.Tick != i+Depth || !r.Valid {
			t.Fatalf("Result %d: %+v", i, r)
		}
		if want := golden.Evaluate(nodes, inputs[i]).Action; r.Action != want {
			t.Errorf("input %d: %s, want %s", inputs[i], r.Action, want)
		}
	}
	if st := e.Stats(); st.Accepted != golden.NumInputs || st.Emitted != golden.NumInputs {
		t.Errorf("Stats %+v", st)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 4. BUBBLES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestBubbles_PropagateAsInvalid(t *testing.T) {
	// WHAT: start pattern 1,0,1,0,0,1 → valid pattern shifted by Depth
	// WHY: A missing start is a hole, not a stall

	e := New(tree.FromNodes(tree.SampleTree5()))
	pattern := []bool{true, false, true, false, false, true}

	var valid []bool
	for tick := 0; tick < len(pattern)+Depth; tick++ {
		in := Inputs{Input: 25}
		if tick < len(pattern) {
			in.Start = pattern[tick]
		}
		valid = append(valid, e.Tick(in).Valid)
	}

	for tick, v := range valid {
		want := false
		if k := tick - Depth; k >= 0 && k < len(pattern) {
			want = pattern[k]
		}
		if v != want {
			t.Errorf("tick %d: valid=%v, want %v", tick, v, want)
		}
	}
}

func TestBubbles_IdlePipeEmitsNothing(t *testing.T) {
	e := New(tree.FromNodes(tree.SampleTree5()))
	for i := 0; i < 3*Depth; i++ {
		if e.Tick(Inputs{Input: uint8(i)}).Valid {
			t.Fatalf("Idle pipeline emitted at tick %d", i)
		}
	}
	if e.Occupancy() != 0 {
		t.Error("Idle pipeline should be empty")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 5. RESET
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestReset_ClearsInFlight(t *testing.T) {
	// WHAT: Reset with 3 queries in flight
	// WHY: Nothing in flight completes after a reset

	e := New(tree.FromNodes(tree.SampleTree15()))
	e.Tick(Inputs{Input: 1, Start: true})
	e.Tick(Inputs{Input: 2, Start: true})
	e.Tick(Inputs{Input: 3, Start: true})

	if out := e.Tick(Inputs{Input: 4, Start: true, Reset: true}); out.Valid {
		t.Fatal("Reset tick emitted a result")
	}
	if e.Occupancy() != 0 {
		t.Fatalf("Occupancy after reset: %d", e.Occupancy())
	}
	for i := 0; i < 2*Depth; i++ {
		if e.Tick(Inputs{}).Valid {
			t.Fatal("Result emitted after reset")
		}
	}
	if e.Stats().Accepted != 3 {
		t.Errorf("Start during reset should not be accepted, Accepted=%d", e.Stats().Accepted)
	}
}

func TestReset_KeepsStore(t *testing.T) {
	e := New(tree.FromNodes(tree.SampleTree5()))
	e.Tick(Inputs{Reset: true})

	if r := e.ClassifyBatch([]uint8{5}); r[0].Action != tree.Buy {
		t.Errorf("Store lost after reset: %+v", r[0])
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 6. DEPTH BOUND
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func chain(leafDepth int) []tree.Node {
	nodes := make([]tree.Node, leafDepth+1)
	for i := 0; i < leafDepth; i++ {
		nodes[i] = tree.Branch(tree.GreaterThan, 255, 0, uint8(i+1))
	}
	nodes[leafDepth] = tree.Leaf(tree.Cancel)
	return nodes
}

func TestDepthBound_DeepestSupportedLeaf(t *testing.T) {
	// WHAT: Chain with its leaf at MaxLeafDepth
	// WHY: The last stage must still resolve it

	e := New(tree.FromNodes(chain(MaxLeafDepth)))

	r := e.ClassifyBatch([]uint8{9})

	if !r[0].Valid || r[0].Action != tree.Cancel {
		t.Errorf("Leaf at depth %d not resolved: %+v", MaxLeafDepth, r[0])
	}
}

func TestDepthBound_TooDeepIsSilent(t *testing.T) {
	// WHAT: Chain with its leaf one level beyond the pipeline
	// WHY: Unsupported shapes exit unresolved; no result, no error

	e := New(tree.FromNodes(chain(Depth)))

	r := e.ClassifyBatch([]uint8{9})

	if r[0].Valid {
		t.Errorf("Too-deep leaf should not produce a result: %+v", r[0])
	}
	if e.Stats().Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", e.Stats().Unresolved)
	}
}

func TestMalformed_CycleExitsUnresolved(t *testing.T) {
	// WHAT: Two-node cycle; the pipeline still terminates after Depth ticks
	// WHY: The pipeline cannot hang, it can only fail silently

	e := New(tree.FromNodes([]tree.Node{
		tree.Branch(tree.LessThan, 128, 1, 1),
		tree.Branch(tree.GreaterThan, 0, 0, 0),
	}))

	r := e.ClassifyBatch([]uint8{0, 200})

	for _, res := range r {
		if res.Valid {
			t.Errorf("Cycle produced a result: %+v", res)
		}
	}
}

func TestDrain(t *testing.T) {
	e := New(tree.FromNodes(tree.SampleTree5()))
	e.Tick(Inputs{Input: 5, Start: true})
	e.Tick(Inputs{Input: 25, Start: true})

	outs := e.Drain()

	if len(outs) != 2 || outs[0].Action != tree.Buy || outs[1].Action != tree.Cancel {
		t.Errorf("Drain: %+v", outs)
	}
	if e.Occupancy() != 0 {
		t.Errorf("Pipeline not empty after drain: %d", e.Occupancy())
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 7. EXHAUSTIVE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestExhaustive_SampleTree15(t *testing.T) {
	nodes := tree.SampleTree15()
	e := New(tree.FromNodes(nodes))

	inputs := make([]uint8, golden.NumInputs)
	for i := range inputs {
		inputs[i] = uint8(i)
	}

	mismatches := 0
	for i, r := range e.ClassifyBatch(inputs) {
		want := golden.Evaluate(nodes, uint8(i))
		if !r.Valid || r.Action != want.Action {
			mismatches++
			t.Errorf("input %d: pipeline %+v, golden %s", i, r, want.Action)
		}
	}
	t.Logf("Passed: %d / 256", golden.NumInputs-mismatches)
}

func TestDoc_Pipeline(t *testing.T) {
	t.Log("PIPELINE GEOMETRY:")
	t.Log("==================")
	t.Logf("Depth:         %d stages", Depth)
	t.Logf("Slots:         %d registers", NumSlots)
	t.Logf("Max leaf:      edge-depth %d", MaxLeafDepth)
	t.Logf("Latency:       %d ticks, every input", Depth)
	t.Log("Throughput:    1 result/tick once full")
}

func BenchmarkTick(b *testing.B) {
	e := New(tree.FromNodes(tree.SampleTree15()))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Tick(Inputs{Input: uint8(i), Start: true})
	}
}
