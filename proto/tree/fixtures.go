package tree

// SampleTree5 is the five-node reference tree.
//
//	        [0] in < 20?
//	       /            \
//	  [1] in < 10?    [2] CANCEL
//	  /        \
//	[3] BUY   [4] SELL
//
// Inputs 5 → BUY (depth 2), 15 → SELL (depth 2), 25 → CANCEL (depth 1).
func SampleTree5() []Node {
	return []Node{
		Branch(LessThan, 20, 1, 2),
		Branch(LessThan, 10, 3, 4),
		Leaf(Cancel),
		Leaf(Buy),
		Leaf(Sell),
	}
}

// SampleTree15 is the fifteen-node mixed-depth tree used for exhaustive checks.
//
//	                     [0] in < 128?
//	                    /                \
//	              [1] < 64              [2] < 192
//	             /       \             /         \
//	         [3] < 32   [4]SELL    [5] < 160   [6]NONE       depth 2 leaves
//	        /      \                /       \
//	    [7]<16   [8]CANCEL     [9]BUY    [10]SELL             depth 3 leaves
//	    /     \
//	 [11]<8  [12]SELL                                         depth 4 leaf
//	  /    \
//	[13]BUY [14]CANCEL                                        depth 5 leaves
func SampleTree15() []Node {
	return []Node{
		/*  0 */ Branch(LessThan, 128, 1, 2),
		/*  1 */ Branch(LessThan, 64, 3, 4),
		/*  2 */ Branch(LessThan, 192, 5, 6),
		/*  3 */ Branch(LessThan, 32, 7, 8),
		/*  4 */ Leaf(Sell),
		/*  5 */ Branch(LessThan, 160, 9, 10),
		/*  6 */ Leaf(None),
		/*  7 */ Branch(LessThan, 16, 11, 12),
		/*  8 */ Leaf(Cancel),
		/*  9 */ Leaf(Buy),
		/* 10 */ Leaf(Sell),
		/* 11 */ Branch(LessThan, 8, 13, 14),
		/* 12 */ Leaf(Sell),
		/* 13 */ Leaf(Buy),
		/* 14 */ Leaf(Cancel),
	}
}
