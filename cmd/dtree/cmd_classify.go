package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dtree"
	"dtree/proto/verify"
)

var (
	classifyTreePath string
	classifyEngine   string
)

// classifyCmd runs inputs through an engine
var classifyCmd = &cobra.Command{
	Use:   "classify <input>...",
	Short: "Classify 8-bit inputs on the sequential or pipelined engine",
	Long: `Programs a tree (--tree, then tree.path in the config, then the built-in
sample) and classifies each input.

The sequential engine runs inputs one after another and reports the latency
of each. The pipelined engine accepts them on consecutive ticks and reports
the tick each result emerged on.

Example:
  dtree classify 4 80 140 200
  dtree classify --engine pipelined 4 80 140 200`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyTreePath, "tree", "t", "", "Tree file (YAML or JSON)")
	classifyCmd.Flags().StringVarP(&classifyEngine, "engine", "e", verify.Sequential, "Engine: sequential or pipelined")
}

func parseInputs(args []string) ([]uint8, error) {
	inputs := make([]uint8, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("input %q: want 0..255", a)
		}
		inputs[i] = uint8(v)
	}
	return inputs, nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	inputs, err := parseInputs(args)
	if err != nil {
		return err
	}
	if classifyEngine != verify.Sequential && classifyEngine != verify.Pipelined {
		return fmt.Errorf("engine %q: want %s or %s", classifyEngine, verify.Sequential, verify.Pipelined)
	}

	path := classifyTreePath
	if path == "" {
		path = cfg.Tree.Path
	}
	nodes, err := loadTree(path)
	if err != nil {
		return err
	}
	core := dtree.NewCore()
	core.LoadTree(nodes)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	switch classifyEngine {
	case verify.Pipelined:
		fmt.Fprintln(tw, "INPUT\tACTION\tTICK")
		for _, r := range core.ClassifyPipelined(inputs) {
			fmt.Fprintf(tw, "%d\t%s\t%d\n", r.Input, resultCell(r.Action.String(), r.Valid), r.Tick)
		}
	default:
		fmt.Fprintln(tw, "INPUT\tACTION\tLATENCY")
		for _, in := range inputs {
			action, latency, ok := core.ClassifySequential(in, cfg.Verify.TimeoutTicks)
			if !ok {
				fmt.Fprintf(tw, "%d\t%s\t-\n", in, resultCell("", false))
				continue
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\n", in, action, latency)
		}
	}

	logger.Debug("classified",
		zap.String("engine", classifyEngine),
		zap.Int("inputs", len(inputs)),
		zap.Uint64("ticks", core.Ticks()),
	)
	return tw.Flush()
}

func resultCell(action string, valid bool) string {
	if !valid {
		return "(no result)"
	}
	return action
}
