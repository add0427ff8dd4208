package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dtree"
	"dtree/internal/api"
	"dtree/internal/config"
	"dtree/internal/treedb"
)

// serveCmd runs the HTTP service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve classification, verification and the tree library over HTTP",
	Long: `Starts the HTTP service on server.addr with the tree from tree.path (or
the built-in sample) programmed into the core, and the tree library stored
in store.database_path.

Endpoints:
  GET  /health                 GET  /metrics
  GET  /tree                   PUT  /tree
  POST /classify               POST /classify/batch
  POST /verify
  GET  /trees                  GET|PUT|DELETE /trees/:name
  POST /trees/:name/activate`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, db, core, err := newServeHandler(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	srv := handler.NewServer(cfg.Server.Addr, cfg.GetReadTimeout(), cfg.GetWriteTimeout())
	treeNodes := len(core.Tree())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("tree_nodes", treeNodes),
			zap.String("database", cfg.Store.DatabasePath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped", zap.Uint64("ticks", core.Ticks()))
	return nil
}

// newServeHandler opens the tree library and programs a core with the
// configured tree. The caller closes the returned library.
func newServeHandler(c *config.Config) (*api.APIHandler, *treedb.DB, *dtree.Core, error) {
	db, err := treedb.Open(c.Store.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}

	nodes, err := loadTree(c.Tree.Path)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	core := dtree.NewCore()
	core.LoadTree(nodes)

	handler := api.NewAPIHandler(core, db, api.Options{
		TimeoutTicks: c.Verify.TimeoutTicks,
		MaxBatch:     c.Server.MaxBatch,
		Logger:       logger,
	})
	return handler, db, core, nil
}
