package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/api"
	"github.com/sprite-ai/margin/internal/clock"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the margin annotation engine.

Endpoints:
  GET  /health        Health check
  POST /api/extract   Build annotations from an AI response
  POST /api/detect    Run the offline detectors on a document
  GET  /metrics       Prometheus metrics
  GET  /api/ws        WebSocket editing session`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (default from config, :6142)")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	addr := e.cfg.Addr
	if a, _ := cmd.Flags().GetString("addr"); a != "" {
		addr = a
	}

	ctx := cmd.Context()
	p, err := e.provider(ctx)
	if err != nil {
		if !errors.Is(err, ai.ErrNoProvider) {
			return err
		}
		e.log.Warn("analyze disabled", "reason", err)
	}

	srv := api.New(addr, api.Options{
		Store:        e.store,
		Provider:     p,
		Clock:        clock.Real{},
		DismissDelay: e.cfg.DismissDelay,
		Logger:       e.log,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return errors.Join(err, e.close())
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(err, e.close())
	}
	return e.close()
}
