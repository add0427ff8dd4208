package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dtree/internal/treedb"
	"dtree/proto/tree"
	"dtree/proto/verify"
)

var (
	verifyTreePath string
	verifyName     string
	verifyTimeout  int
)

// verifyCmd checks both engines against the golden evaluator
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check both engines against the golden evaluator on all 256 inputs",
	Long: `Programs a tree and runs the full verification: spot queries, a
throughput run on each engine, and an exhaustive sweep of every input.

The tree comes from --tree, then --name (a tree in the library), then
tree.path in the config, then the built-in 15-node sample.

Exits non-zero when any input disagrees with the golden evaluator.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyTreePath, "tree", "t", "", "Tree file (YAML or JSON)")
	verifyCmd.Flags().StringVarP(&verifyName, "name", "n", "", "Tree name in the library")
	verifyCmd.Flags().IntVar(&verifyTimeout, "timeout-ticks", 0, "Sequential engine tick bound (default from config)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	nodes, err := verifyTree(ctx)
	if err != nil {
		return err
	}

	timeout := cfg.Verify.TimeoutTicks
	if verifyTimeout > 0 {
		timeout = verifyTimeout
	}

	report, err := verify.Run(ctx, nodes, verify.Options{TimeoutTicks: timeout, Logger: logger})
	if report == nil {
		return err
	}
	if ferr := report.Format(cmd.OutOrStdout()); ferr != nil {
		return ferr
	}
	return err
}

func verifyTree(ctx context.Context) ([]tree.Node, error) {
	switch {
	case verifyTreePath != "":
		return loadTree(verifyTreePath)
	case verifyName != "":
		db, err := treedb.Open(cfg.Store.DatabasePath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.Load(ctx, verifyName)
	default:
		return loadTree(cfg.Tree.Path)
	}
}
