package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dtree/internal/treedb"
	"dtree/internal/treefile"
)

// treesCmd manages the tree library
var treesCmd = &cobra.Command{
	Use:   "trees",
	Short: "Manage named trees in the library database",
}

var treesSaveCmd = &cobra.Command{
	Use:   "save <name> <file>",
	Short: "Store a tree file under a name, replacing any tree of that name",
	Args:  cobra.ExactArgs(2),
	RunE:  runTreesSave,
}

var treesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored trees",
	Args:  cobra.NoArgs,
	RunE:  runTreesList,
}

var treesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a stored tree as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreesShow,
}

var treesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a stored tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreesDelete,
}

func init() {
	treesCmd.AddCommand(treesSaveCmd)
	treesCmd.AddCommand(treesListCmd)
	treesCmd.AddCommand(treesShowCmd)
	treesCmd.AddCommand(treesDeleteCmd)
}

// withLibrary opens the library for the duration of fn.
func withLibrary(fn func(ctx context.Context, db *treedb.DB) error) error {
	db, err := treedb.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, db)
}

func runTreesSave(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	nodes, err := treefile.ReadFile(path)
	if err != nil {
		return err
	}
	return withLibrary(func(ctx context.Context, db *treedb.DB) error {
		if err := db.Save(ctx, name, nodes); err != nil {
			return err
		}
		logger.Info("tree saved", zap.String("name", name), zap.Int("nodes", len(nodes)))
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d nodes)\n", name, len(nodes))
		return nil
	})
}

func runTreesList(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, db *treedb.DB) error {
		infos, err := db.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tNODES\tUPDATED")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.Nodes, info.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func runTreesShow(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, db *treedb.DB) error {
		nodes, err := db.Load(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := treefile.Marshal(nodes)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	})
}

func runTreesDelete(cmd *cobra.Command, args []string) error {
	return withLibrary(func(ctx context.Context, db *treedb.DB) error {
		if err := db.Delete(ctx, args[0]); err != nil {
			return err
		}
		logger.Info("tree deleted", zap.String("name", args[0]))
		return nil
	})
}
