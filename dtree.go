package dtree

import (
	"dtree/proto/pipeline"
	"dtree/proto/tree"
	"dtree/proto/walker"
)

// ═══════════════════════════════════════════════════════════════════════════
// DTREE: Decision Tree Classifier, Cycle-Accurate Reference Model
// ═══════════════════════════════════════════════════════════════════════════
//
// WHAT THIS IS:
// An 8-bit market signal goes in, one of four actions comes out
// (NONE, BUY, SELL, CANCEL). The decision is a binary tree of at most 64
// nodes held in a small node memory.
//
// Two engines read the same node memory:
//   - walker:   one query at a time, one node hop per tick. Tiny.
//   - pipeline: one stage per tree level. One result every tick.
//
// Every piece of state only moves on Tick. One Tick call is one clock edge.
//
// CLOCK EDGE ORDER:
//   1. Both engines compute from the node memory as it was before the edge.
//   2. The node memory commits the write latched this tick, if any.
//
// A write and a classification in the same tick therefore never interact:
// the classification sees the old node, the next tick sees the new one.
//
// ═══════════════════════════════════════════════════════════════════════════

// WriteOp is one node-memory write: {addr, node}.
type WriteOp struct {
	Addr uint8
	Node tree.Node
}

// Signals are the core's input pins for one clock edge.
//
//	module dtree_core (
//	  input  logic        clk, rst,
//	  input  logic        we,
//	  input  logic [5:0]  waddr,
//	  input  logic [23:0] wdata,
//	  input  logic [7:0]  market_input,
//	  input  logic        start_seq, start_pipe,
//	  ...
type Signals struct {
	Write     *WriteOp // nil: write enable low
	Input     uint8    // Shared by both engines
	StartSeq  bool
	StartPipe bool
	Reset     bool // Clears both engines; the node memory keeps its contents
}

// Outputs are the result ports of both engines after the edge.
type Outputs struct {
	Seq  walker.Output
	Pipe pipeline.Output
}

// Stats aggregates every counter in the core.
type Stats struct {
	Ticks    uint64
	Store    tree.Stats
	Walker   walker.Stats
	Pipeline pipeline.Stats
}

// Core wires the node memory to both engines under one clock.
type Core struct {
	Store    *tree.Store
	Walker   *walker.Engine
	Pipeline *pipeline.Engine

	ticks uint64
}

// NewCore returns a core with an empty node memory and idle engines.
func NewCore() *Core {
	store := tree.NewStore()
	return &Core{
		Store:    store,
		Walker:   walker.New(store),
		Pipeline: pipeline.New(store),
	}
}

// Tick - one clock edge for the whole core.
func (c *Core) Tick(s Signals) Outputs {
	if s.Write != nil {
		c.Store.Write(s.Write.Addr, s.Write.Node)
	}

	out := Outputs{
		Seq:  c.Walker.Tick(walker.Inputs{Input: s.Input, Start: s.StartSeq, Reset: s.Reset}),
		Pipe: c.Pipeline.Tick(pipeline.Inputs{Input: s.Input, Start: s.StartPipe, Reset: s.Reset}),
	}

	c.Store.Tick()
	c.ticks++
	return out
}

// Ticks returns the number of edges since construction.
func (c *Core) Ticks() uint64 { return c.ticks }

// Stats returns all counters.
func (c *Core) Stats() Stats {
	return Stats{
		Ticks:    c.ticks,
		Store:    c.Store.Stats(),
		Walker:   c.Walker.Stats(),
		Pipeline: c.Pipeline.Stats(),
	}
}

// LoadTree clears the node memory, writes nodes into slots 0..len-1 one per
// tick, then pulses reset so no engine carries state from the old tree.
// Nodes beyond the store's capacity are dropped and counted by the store.
func (c *Core) LoadTree(nodes []tree.Node) {
	c.Store.Reset()
	for i, n := range nodes {
		if i >= tree.Capacity {
			c.Tick(Signals{Write: &WriteOp{Addr: tree.Capacity, Node: n}})
			continue
		}
		c.Tick(Signals{Write: &WriteOp{Addr: uint8(i), Node: n}})
	}
	c.Tick(Signals{Reset: true})
}

// Tree returns the programmed nodes, slots 0 through the highest written.
func (c *Core) Tree() []tree.Node { return c.Store.Snapshot() }

// ═══════════════════════════════════════════════════════════════════════════
// HOST-SIDE DRIVERS
// ═══════════════════════════════════════════════════════════════════════════
//
// These sequence the pins the way a host would. Every edge goes through
// Tick, so the tick counter and all engine counters stay exact.

// ClassifySequential pulses StartSeq and ticks until the walker's result or
// maxTicks ticks after the start tick. latency counts ticks after the start
// tick. ok is false if the walker was busy or did not finish (malformed tree);
// on timeout the core is reset.
func (c *Core) ClassifySequential(input uint8, maxTicks int) (action tree.Action, latency int, ok bool) {
	if c.Walker.Busy() {
		return tree.None, 0, false
	}

	out := c.Tick(Signals{Input: input, StartSeq: true})
	for latency = 0; !out.Seq.Valid; latency++ {
		if latency == maxTicks {
			c.Tick(Signals{Reset: true})
			return tree.None, latency, false
		}
		out = c.Tick(Signals{Input: input})
	}
	return out.Seq.Action, latency, true
}

// ClassifyPipelined pulses StartPipe with inputs on consecutive ticks and
// collects the result of submission k from the egress port at tick
// k+pipeline.Depth (Result.Tick counts from the first submission).
func (c *Core) ClassifyPipelined(inputs []uint8) []pipeline.Result {
	results := make([]pipeline.Result, len(inputs))
	for tick := 0; tick < len(inputs)+pipeline.Depth; tick++ {
		s := Signals{}
		if tick < len(inputs) {
			s = Signals{Input: inputs[tick], StartPipe: true}
		}
		out := c.Tick(s)

		if k := tick - pipeline.Depth; k >= 0 {
			results[k] = pipeline.Result{
				Input:  inputs[k],
				Action: out.Pipe.Action,
				Valid:  out.Pipe.Valid,
				Tick:   tick,
			}
		}
	}
	return results
}
