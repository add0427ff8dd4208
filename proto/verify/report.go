package verify

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"dtree/proto/golden"
	"dtree/proto/pipeline"
)

const rule = "================================================================"
const subRule = "----------------------------------------------------------------"

// Format writes the human-readable verification report.
func (r *Report) Format(w io.Writer) error {
	b := &strings.Builder{}

	fmt.Fprintln(b, rule)
	fmt.Fprintln(b, "  Decision Tree Verification")
	fmt.Fprintln(b, rule)
	fmt.Fprintln(b)
	if r.WellFormed {
		fmt.Fprintf(b, "Tree: %d nodes, max depth %d\n", r.Nodes, r.MaxDepth)
	} else {
		fmt.Fprintf(b, "Tree: %d nodes, malformed (some inputs never reach a leaf)\n", r.Nodes)
	}
	fmt.Fprintf(b, "Pipeline: %d stages, leaves up to depth %d\n", pipeline.Depth, pipeline.MaxLeafDepth)
	fmt.Fprintf(b, "Sequential timeout: %d ticks\n\n", r.TimeoutTicks)

	section(b, "Individual Queries  (latency = ticks after the start tick)")
	tw := tabwriter.NewWriter(b, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Input\t Depth\t Expected\t Sequential\t Ticks\t Pipelined\t Ticks\t Status\t")
	for _, row := range r.Spot {
		status := "PASS"
		if !row.Pass() {
			status = "*** FAIL ***"
		}
		fmt.Fprintf(tw, "%d\t %s\t %s\t %s\t %s\t %s\t %s\t %s\t\n",
			row.Input,
			depthCell(row.Golden),
			expectedCell(row.Golden),
			observedCell(row.Sequential),
			latencyCell(row.Sequential),
			observedCell(row.Pipelined),
			latencyCell(row.Pipelined),
			status)
	}
	tw.Flush()
	fmt.Fprintln(b)

	formatThroughput(b, &r.SeqTP)
	formatThroughput(b, &r.PipeTP)

	section(b, "Exhaustive Verification  (all 256 inputs vs golden model)")
	for _, rep := range []*EngineReport{&r.Sequential, &r.Pipelined} {
		fmt.Fprintf(b, "  %s:\n", rep.Engine)
		for _, m := range rep.Mismatches {
			fmt.Fprintf(b, "    MISMATCH input=%3d: golden=%s engine=%s (%s)\n",
				m.Input, expectedCell(m.Want), observedCell(m.Got), m.Reason)
		}
		if rep.Failed == 0 {
			fmt.Fprintln(b, "    All 256 inputs match the golden model.")
		}
		fmt.Fprintf(b, "    Passed: %d / %d    Failed: %d / %d\n",
			rep.Passed, golden.NumInputs, rep.Failed, golden.NumInputs)
		if rep.Silent > 0 {
			fmt.Fprintf(b, "    No-result inputs (malformed paths): %d\n", rep.Silent)
		}
		if rep.Unsupported > 0 {
			fmt.Fprintf(b, "    Leaves beyond pipeline depth: %d\n", rep.Unsupported)
		}
		fmt.Fprintf(b, "    Latency: min %d  max %d  mean %.2f ticks\n",
			rep.MinLatency, rep.MaxLatency, rep.MeanLatency)
	}
	fmt.Fprintln(b)

	fmt.Fprintln(b, rule)
	fmt.Fprintln(b, "  Summary")
	fmt.Fprintln(b, rule)
	spotPass := 0
	for _, row := range r.Spot {
		if row.Pass() {
			spotPass++
		}
	}
	fmt.Fprintf(b, "  Spot tests:          %d / %d\n", spotPass, len(r.Spot))
	fmt.Fprintf(b, "  Sequential (0-255):  %d / %d\n", r.Sequential.Passed, golden.NumInputs)
	fmt.Fprintf(b, "  Pipelined  (0-255):  %d / %d\n", r.Pipelined.Passed, golden.NumInputs)
	fmt.Fprintf(b, "  Sequential latency:  depth ticks, %.2f ticks/result back-to-back\n", r.SeqTP.TicksPerResult)
	fmt.Fprintf(b, "  Pipelined latency:   %d ticks, %.2f ticks/result back-to-back\n", pipeline.Depth, r.PipeTP.TicksPerResult)
	fmt.Fprintln(b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title string) {
	fmt.Fprintln(b, subRule)
	fmt.Fprintf(b, "  %s\n", title)
	fmt.Fprintln(b, subRule)
	fmt.Fprintln(b)
}

func formatThroughput(b *strings.Builder, tp *Throughput) {
	section(b, fmt.Sprintf("Throughput  (back-to-back queries, %s)", tp.Engine))
	tw := tabwriter.NewWriter(b, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\t Input\t Depth\t Result\t Start@tick\t Done@tick\t Latency\t")
	for i, row := range tp.Rows {
		result, done, lat := "TIMEOUT", "-", "-"
		if row.Valid {
			result = row.Result.String()
			done = fmt.Sprint(row.DoneTick)
			lat = fmt.Sprintf("%d ticks", row.Latency)
		}
		fmt.Fprintf(tw, "%d\t %d\t %d\t %s\t %d\t %s\t %s\t\n",
			i, row.Input, row.Depth, result, row.StartTick, done, lat)
	}
	tw.Flush()

	if tp.FirstDone >= 0 {
		fmt.Fprintf(b, "\n  First result at tick %d\n", tp.FirstDone)
		fmt.Fprintf(b, "  Last  result at tick %d\n", tp.LastDone)
		fmt.Fprintf(b, "  %d results in %d ticks  ->  avg %.2f ticks/result\n",
			len(tp.Rows), tp.LastDone-tp.FirstDone, tp.TicksPerResult)
	}
	fmt.Fprintln(b)
}

func depthCell(g golden.Result) string {
	if !g.Valid {
		return "-"
	}
	return fmt.Sprint(g.Depth)
}

func expectedCell(g golden.Result) string {
	if !g.Valid {
		return "NO RESULT"
	}
	return g.Action.String()
}

func observedCell(o Observation) string {
	if !o.Valid {
		return "NO RESULT"
	}
	return o.Action.String()
}

func latencyCell(o Observation) string {
	if !o.Valid {
		return "-"
	}
	return fmt.Sprint(o.Latency)
}
