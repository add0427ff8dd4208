// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Golden Evaluator - Software Reference
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Walks the tree in plain Go with no notion of ticks. This is the oracle: if an engine
// disagrees with it, the engine has a bug. If it disagrees with a hand-traced expectation,
// the expectation was wrong.
//
// It is never used for production timing. Unlike the engines it defends itself against
// malformed trees: every walk is capped at StepBound hops and every index is range
// checked against the node slice it was given.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package golden

import (
	"dtree/proto/tree"
)

// StepBound caps one walk. A well-formed tree in a 64-slot store cannot need more.
const StepBound = tree.Capacity

// NumInputs is the size of the 8-bit input space.
const NumInputs = 256

// Result is the outcome of one reference walk.
type Result struct {
	Action tree.Action // Leaf action (meaningful only when Valid)
	Depth  int         // Edges from root to the reached leaf
	Valid  bool        // False on a cycle, a step-bound overrun or an out-of-range index
}

// Evaluate walks nodes for input starting at the root (index 0).
func Evaluate(nodes []tree.Node, input uint8) Result {
	idx := 0
	for step := 0; step < StepBound; step++ {
		if idx >= len(nodes) {
			return Result{}
		}
		n := nodes[idx]
		if n.IsLeaf {
			return Result{Action: n.Action, Depth: step, Valid: true}
		}
		if n.Compare(input) {
			idx = int(n.Left)
		} else {
			idx = int(n.Right)
		}
	}
	return Result{}
}

// EvaluateAll runs Evaluate for every possible input.
func EvaluateAll(nodes []tree.Node) [NumInputs]Result {
	var out [NumInputs]Result
	for in := 0; in < NumInputs; in++ {
		out[in] = Evaluate(nodes, uint8(in))
	}
	return out
}

// MaxDepth returns the deepest leaf reached by any input. ok is false if any input
// fails to reach a leaf.
func MaxDepth(nodes []tree.Node) (depth int, ok bool) {
	for in := 0; in < NumInputs; in++ {
		r := Evaluate(nodes, uint8(in))
		if !r.Valid {
			return 0, false
		}
		if r.Depth > depth {
			depth = r.Depth
		}
	}
	return depth, true
}
