package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dtree/internal/config"
	"dtree/internal/treefile"
	"dtree/proto/tree"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dtree",
	Short: "dtree - decision-tree classifier core model",
	Long: `dtree models a small hardware classifier: an 8-bit input walks a binary
decision tree of up to 64 nodes and yields one of NONE, BUY, SELL or CANCEL.

Two engines share the tree store: a sequential walker that visits one level
per clock tick, and a pipelined engine that accepts a new input every tick.
Both are checked against a golden software evaluator.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = newLogger(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// newLogger builds a zap logger from the logging section. verbose forces
// debug level.
func newLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// loadTree reads the tree at path, or returns the built-in 15-node sample
// when path is empty.
func loadTree(path string) ([]tree.Node, error) {
	if path == "" {
		logger.Debug("using built-in sample tree")
		return tree.SampleTree15(), nil
	}
	nodes, err := treefile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("tree loaded", zap.String("path", path), zap.Int("nodes", len(nodes)))
	return nodes, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "dtree.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(treesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
