// ════════════════════════════════════════════════════════════════════════════════════════════════
// Verification Harness
// ────────────────────────────────────────────────────────────────────────────────────────────────
//
// Drives both engines over all 256 inputs and compares every result against the golden
// evaluator. This is the testbench of the RTL flow, made callable: the CLI, the HTTP
// service and the property tests all go through Run.
//
// SWEEPS:
// ───────
//   Sequential  one walker, one query at a time: settle tick, start pulse, count ticks
//               until the valid pulse or the timeout. Latency must equal golden depth.
//   Pipelined   one pipeline, all 256 inputs back-to-back. Every result must appear
//               exactly Depth ticks after its start, carrying its own captured input.
//
// The sweeps run concurrently on separate engine instances over one store. The store is
// fully programmed before either sweep starts and is never written afterwards.
//
// EXPECTED SILENCE:
// ─────────────────
// Where the golden evaluator reports no valid result (cycle, dangling child), the
// engines must not produce one either: the walker times out, the pipeline exits
// unresolved. Leaves deeper than pipeline.MaxLeafDepth are outside the pipeline's
// supported shapes; those inputs are counted as unsupported, not as failures.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package verify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dtree/proto/golden"
	"dtree/proto/pipeline"
	"dtree/proto/tree"
	"dtree/proto/walker"
)

// DefaultTimeoutTicks bounds a single sequential query.
const DefaultTimeoutTicks = 20

var (
	// ErrMismatch is returned when any engine disagrees with the golden evaluator.
	ErrMismatch = errors.New("engine result mismatch")

	// ErrEmptyTree is returned for a tree with no nodes.
	ErrEmptyTree = errors.New("empty tree")

	// ErrTooLarge is returned for a tree that does not fit the store.
	ErrTooLarge = errors.New("tree exceeds store capacity")

	// ErrBadChild is returned for a branch whose child index does not fit the
	// 6-bit address bus.
	ErrBadChild = errors.New("child index outside store")
)

// SpotInputs are the individually reported queries.
var SpotInputs = []uint8{4, 10, 20, 40, 80, 140, 170, 200, 0, 127, 128, 255}

// ThroughputInputs are the queries of the back-to-back throughput tables.
var ThroughputInputs = []uint8{4, 80, 140, 200, 10, 20, 170, 40}

// Engine names used in reports and logs.
const (
	Sequential = "sequential"
	Pipelined  = "pipelined"
)

// Options configures a verification run.
type Options struct {
	// TimeoutTicks bounds each sequential query. Zero means DefaultTimeoutTicks.
	TimeoutTicks int

	// Logger receives the summary and per-mismatch details. Nil means no logging.
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.TimeoutTicks <= 0 {
		o.TimeoutTicks = DefaultTimeoutTicks
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// REPORT
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Observation is what one engine produced for one input.
type Observation struct {
	Action  tree.Action `json:"action"`
	Valid   bool        `json:"valid"`
	Latency int         `json:"latency"` // Ticks after the start tick; meaningful when Valid
}

// Mismatch records one input where an engine disagreed with the golden evaluator.
type Mismatch struct {
	Engine   string        `json:"engine"`
	Input    uint8         `json:"input"`
	Want     golden.Result `json:"want"`
	Got      Observation   `json:"got"`
	Reason   string        `json:"reason"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// EngineReport summarizes one exhaustive sweep.
type EngineReport struct {
	Engine      string     `json:"engine"`
	Passed      int        `json:"passed"`
	Failed      int        `json:"failed"`
	Timeouts    int        `json:"timeouts"`    // Walker hit the bound where golden had a result
	Silent      int        `json:"silent"`      // Golden invalid, engine correctly produced nothing
	Unsupported int        `json:"unsupported"` // Leaf beyond the pipeline depth
	MinLatency  int        `json:"min_latency"`
	MaxLatency  int        `json:"max_latency"`
	MeanLatency float64    `json:"mean_latency"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`

	results [golden.NumInputs]Observation
}

// Observed returns what the engine produced for input.
func (r *EngineReport) Observed(input uint8) Observation { return r.results[input] }

func (r *EngineReport) record(in uint8, got Observation) {
	r.results[in] = got
}

func (r *EngineReport) fail(m Mismatch) {
	r.Failed++
	if m.TimedOut {
		r.Timeouts++
	}
	r.Mismatches = append(r.Mismatches, m)
}

func (r *EngineReport) finishLatency() {
	sum, n := 0, 0
	for _, o := range r.results {
		if !o.Valid {
			continue
		}
		if n == 0 || o.Latency < r.MinLatency {
			r.MinLatency = o.Latency
		}
		if o.Latency > r.MaxLatency {
			r.MaxLatency = o.Latency
		}
		sum += o.Latency
		n++
	}
	if n > 0 {
		r.MeanLatency = float64(sum) / float64(n)
	}
}

// SpotRow is one line of the individual query table.
type SpotRow struct {
	Input      uint8         `json:"input"`
	Golden     golden.Result `json:"golden"`
	Sequential Observation   `json:"sequential"`
	Pipelined  Observation   `json:"pipelined"`
}

// Pass reports whether both engines agreed with the golden evaluator on this row.
func (s SpotRow) Pass() bool {
	return agrees(s.Golden, s.Sequential) && agrees(s.Golden, s.Pipelined)
}

func agrees(want golden.Result, got Observation) bool {
	if !want.Valid {
		return !got.Valid
	}
	return got.Valid && got.Action == want.Action
}

// ThroughputRow is one query of a throughput table. Ticks count from the first Tick of
// the run (index 0).
type ThroughputRow struct {
	Input     uint8       `json:"input"`
	Depth     int         `json:"depth"`
	Result    tree.Action `json:"result"`
	Valid     bool        `json:"valid"`
	StartTick int         `json:"start_tick"`
	DoneTick  int         `json:"done_tick"`
	Latency   int         `json:"latency"`
}

// Throughput is a back-to-back run of ThroughputInputs through one engine.
type Throughput struct {
	Engine         string          `json:"engine"`
	Rows           []ThroughputRow `json:"rows"`
	FirstDone      int             `json:"first_done"`
	LastDone       int             `json:"last_done"`
	TicksPerResult float64         `json:"ticks_per_result"`
}

func (t *Throughput) finish() {
	t.FirstDone, t.LastDone = -1, -1
	n := 0
	for _, r := range t.Rows {
		if !r.Valid {
			continue
		}
		if t.FirstDone < 0 {
			t.FirstDone = r.DoneTick
		}
		t.LastDone = r.DoneTick
		n++
	}
	if n > 1 {
		t.TicksPerResult = float64(t.LastDone-t.FirstDone) / float64(n-1)
	}
}

// Report is the outcome of Run.
type Report struct {
	Nodes        int          `json:"nodes"`
	MaxDepth     int          `json:"max_depth"`
	WellFormed   bool         `json:"well_formed"`
	TimeoutTicks int          `json:"timeout_ticks"`
	Sequential   EngineReport `json:"sequential"`
	Pipelined    EngineReport `json:"pipelined"`
	Spot         []SpotRow    `json:"spot"`
	SeqTP        Throughput   `json:"sequential_throughput"`
	PipeTP       Throughput   `json:"pipelined_throughput"`

	golden [golden.NumInputs]golden.Result
}

// Golden returns the golden result for input.
func (r *Report) Golden(input uint8) golden.Result { return r.golden[input] }

// OK reports whether both engines matched the golden evaluator on every input.
func (r *Report) OK() bool {
	return r.Sequential.Failed == 0 && r.Pipelined.Failed == 0
}

// Err returns nil when OK, otherwise an error wrapping ErrMismatch.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: sequential %d/%d, pipelined %d/%d",
		ErrMismatch,
		r.Sequential.Failed, golden.NumInputs,
		r.Pipelined.Failed, golden.NumInputs)
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// RUN
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Run verifies both engines against the golden evaluator for nodes.
//
// The returned report is complete whenever it is non-nil. err wraps ErrMismatch when the
// engines disagree, and is the context error if ctx ends before the sweeps finish.
func Run(ctx context.Context, nodes []tree.Node, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	switch {
	case len(nodes) == 0:
		return nil, ErrEmptyTree
	case len(nodes) > tree.Capacity:
		return nil, fmt.Errorf("%w: %d nodes, capacity %d", ErrTooLarge, len(nodes), tree.Capacity)
	}
	// The store masks child indices to 6 bits and the golden evaluator does not,
	// so such a tree would be judged differently by each side.
	for addr, n := range nodes {
		if !n.IsLeaf && (int(n.Left) >= tree.Capacity || int(n.Right) >= tree.Capacity) {
			return nil, fmt.Errorf("%w: node %d children %d, %d", ErrBadChild, addr, n.Left, n.Right)
		}
	}

	r := &Report{
		Nodes:        len(nodes),
		TimeoutTicks: opts.TimeoutTicks,
		golden:       golden.EvaluateAll(nodes),
		Sequential:   EngineReport{Engine: Sequential},
		Pipelined:    EngineReport{Engine: Pipelined},
	}
	r.MaxDepth, r.WellFormed = golden.MaxDepth(nodes)

	store := tree.FromNodes(nodes)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sweepSequential(gctx, store, r, opts.TimeoutTicks); err != nil {
			return fmt.Errorf("sequential sweep: %w", err)
		}
		r.SeqTP = throughputSequential(store, r, opts.TimeoutTicks)
		return nil
	})
	g.Go(func() error {
		if err := sweepPipelined(gctx, store, r); err != nil {
			return fmt.Errorf("pipelined sweep: %w", err)
		}
		r.PipeTP = throughputPipelined(store, r)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.Sequential.finishLatency()
	r.Pipelined.finishLatency()

	for _, in := range SpotInputs {
		r.Spot = append(r.Spot, SpotRow{
			Input:      in,
			Golden:     r.golden[in],
			Sequential: r.Sequential.results[in],
			Pipelined:  r.Pipelined.results[in],
		})
	}

	for _, m := range append(append([]Mismatch(nil), r.Sequential.Mismatches...), r.Pipelined.Mismatches...) {
		log.Debug("mismatch",
			zap.String("engine", m.Engine),
			zap.Uint8("input", m.Input),
			zap.Stringer("want", m.Want.Action),
			zap.Stringer("got", m.Got.Action),
			zap.String("reason", m.Reason))
	}

	fields := []zap.Field{
		zap.Int("nodes", r.Nodes),
		zap.Int("max_depth", r.MaxDepth),
		zap.Int("sequential_passed", r.Sequential.Passed),
		zap.Int("pipelined_passed", r.Pipelined.Passed),
		zap.Int("pipelined_unsupported", r.Pipelined.Unsupported),
	}
	if err := r.Err(); err != nil {
		log.Warn("verification failed", append(fields, zap.Error(err))...)
		return r, err
	}
	log.Info("verification passed", fields...)
	return r, nil
}

// sweepSequential runs every input through one walker, one query at a time.
func sweepSequential(ctx context.Context, store *tree.Store, r *Report, timeout int) error {
	e := walker.New(store)
	rep := &r.Sequential

	for in := 0; in < golden.NumInputs; in++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		input := uint8(in)
		want := r.golden[in]

		// Settle tick: input presented one edge before start, as on the bench.
		e.Tick(walker.Inputs{Input: input})

		action, latency, ok := e.Classify(input, timeout)
		got := Observation{Action: action, Valid: ok, Latency: latency}
		if !ok {
			got = Observation{}
		}
		rep.record(input, got)

		switch {
		case !want.Valid && !ok:
			rep.Silent++
			rep.Passed++
		case !want.Valid:
			rep.fail(Mismatch{Engine: Sequential, Input: input, Want: want, Got: got,
				Reason: "result for a tree with no valid path"})
		case !ok:
			rep.fail(Mismatch{Engine: Sequential, Input: input, Want: want, Got: got,
				Reason: fmt.Sprintf("no result within %d ticks", timeout), TimedOut: true})
		case action != want.Action:
			rep.fail(Mismatch{Engine: Sequential, Input: input, Want: want, Got: got,
				Reason: "action"})
		case latency != want.Depth:
			rep.fail(Mismatch{Engine: Sequential, Input: input, Want: want, Got: got,
				Reason: fmt.Sprintf("latency %d, depth %d", latency, want.Depth)})
		default:
			rep.Passed++
		}
	}
	return nil
}

// sweepPipelined submits all inputs back-to-back and checks each egress tick.
func sweepPipelined(ctx context.Context, store *tree.Store, r *Report) error {
	e := pipeline.New(store)
	rep := &r.Pipelined

	var outs [golden.NumInputs + pipeline.Depth]pipeline.Output
	for tick := range outs {
		if err := ctx.Err(); err != nil {
			return err
		}
		in := pipeline.Inputs{}
		if tick < golden.NumInputs {
			in = pipeline.Inputs{Input: uint8(tick), Start: true}
		}
		outs[tick] = e.Tick(in)
	}

	for tick := 0; tick < pipeline.Depth; tick++ {
		if outs[tick].Valid {
			return fmt.Errorf("result before the first query could reach egress (tick %d)", tick)
		}
	}

	for in := 0; in < golden.NumInputs; in++ {
		input := uint8(in)
		want := r.golden[in]
		out := outs[in+pipeline.Depth]

		got := Observation{}
		if out.Valid {
			got = Observation{Action: out.Action, Valid: true, Latency: pipeline.Depth}
		}
		rep.record(input, got)

		supported := want.Valid && want.Depth <= pipeline.MaxLeafDepth
		switch {
		case want.Valid && !supported:
			if out.Valid {
				rep.fail(Mismatch{Engine: Pipelined, Input: input, Want: want, Got: got,
					Reason: fmt.Sprintf("result for a leaf deeper than %d", pipeline.MaxLeafDepth)})
				continue
			}
			rep.Unsupported++
			rep.Passed++
		case !want.Valid && !out.Valid:
			rep.Silent++
			rep.Passed++
		case !want.Valid:
			rep.fail(Mismatch{Engine: Pipelined, Input: input, Want: want, Got: got,
				Reason: "result for a tree with no valid path"})
		case !out.Valid:
			rep.fail(Mismatch{Engine: Pipelined, Input: input, Want: want, Got: got,
				Reason: fmt.Sprintf("no result at tick %d", in+pipeline.Depth)})
		case out.Input != input:
			rep.fail(Mismatch{Engine: Pipelined, Input: input, Want: want, Got: got,
				Reason: fmt.Sprintf("out of order: egress carries input %d", out.Input)})
		case out.Action != want.Action:
			rep.fail(Mismatch{Engine: Pipelined, Input: input, Want: want, Got: got,
				Reason: "action"})
		default:
			rep.Passed++
		}
	}
	return nil
}

// throughputSequential replays the bench's back-to-back sequential run: settle tick,
// start tick, then ticks until the result.
func throughputSequential(store *tree.Store, r *Report, timeout int) Throughput {
	e := walker.New(store)
	tp := Throughput{Engine: Sequential}
	tick := 0

	for _, in := range ThroughputInputs {
		e.Tick(walker.Inputs{Input: in})
		tick++

		row := ThroughputRow{Input: in, Depth: r.golden[in].Depth, StartTick: tick}
		out := e.Tick(walker.Inputs{Input: in, Start: true})
		for n := 0; !out.Valid && n < timeout; n++ {
			tick++
			out = e.Tick(walker.Inputs{Input: in})
		}
		if out.Valid {
			row.Result, row.Valid = out.Action, true
			row.DoneTick = tick
			row.Latency = tick - row.StartTick
		} else {
			e.Tick(walker.Inputs{Reset: true})
			tick++
		}
		tick++
		tp.Rows = append(tp.Rows, row)
	}
	tp.finish()
	return tp
}

// throughputPipelined submits ThroughputInputs on consecutive ticks.
func throughputPipelined(store *tree.Store, r *Report) Throughput {
	e := pipeline.New(store)
	tp := Throughput{Engine: Pipelined}

	for _, res := range e.ClassifyBatch(ThroughputInputs) {
		start := res.Tick - pipeline.Depth
		row := ThroughputRow{
			Input:     res.Input,
			Depth:     r.golden[res.Input].Depth,
			Result:    res.Action,
			Valid:     res.Valid,
			StartTick: start,
		}
		if res.Valid {
			row.DoneTick = res.Tick
			row.Latency = pipeline.Depth
		}
		tp.Rows = append(tp.Rows, row)
	}
	tp.finish()
	return tp
}
