package verify

import (
	"math/rand/v2"

	"dtree/proto/tree"
)

// RandomTree builds a well-formed tree: acyclic, every child in range, every path ending
// in a leaf no deeper than maxDepth edges, at most tree.Capacity nodes. Nodes are laid out
// in preorder with the root at 0.
//
// maxDepth is clamped to [0, 5]: a complete tree of depth 5 is the largest that fits.
func RandomTree(rng *rand.Rand, maxDepth int) []tree.Node {
	maxDepth = min(max(maxDepth, 0), 5)

	g := &generator{rng: rng, maxDepth: maxDepth}
	g.build(0, tree.Capacity)
	return g.nodes
}

type generator struct {
	rng      *rand.Rand
	maxDepth int
	nodes    []tree.Node
}

// build emits a subtree rooted at depth using at most budget slots and returns its index.
func (g *generator) build(depth, budget int) uint8 {
	idx := uint8(len(g.nodes))
	g.nodes = append(g.nodes, tree.Node{})

	// Non-root nodes stop early a quarter of the time so leaf depths vary.
	leaf := depth >= g.maxDepth || budget < 3 || (depth > 0 && g.rng.IntN(4) == 0)
	if leaf {
		g.nodes[idx] = tree.Leaf(tree.Action(g.rng.IntN(4)))
		return idx
	}

	rest := budget - 1
	leftBudget := rest / 2
	cmp := tree.Comparison(g.rng.IntN(2))
	threshold := uint8(g.rng.IntN(256))

	left := g.build(depth+1, leftBudget)
	used := len(g.nodes) - int(idx) - 1
	right := g.build(depth+1, rest-used)

	g.nodes[idx] = tree.Branch(cmp, threshold, left, right)
	return idx
}
