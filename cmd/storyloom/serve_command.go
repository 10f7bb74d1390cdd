package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"storyloom/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bindFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// One server per data directory; a second serve would race the
			// session database's version checks in confusing ways.
			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire serve lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another storyloom serve already holds %s", cfg.LockPath())
			}
			defer func() { _ = lock.Unlock() }()

			rt, err := buildRuntime(cfg, serveLogPaths(cfg))
			if err != nil {
				return err
			}
			defer rt.close()

			bind := strings.TrimSpace(bindFlag)
			if bind == "" {
				bind = cfg.Paths.APIBind
			}

			srv, err := server.New(server.Options{
				Bind:     bind,
				Runner:   rt.runner,
				Store:    rt.store,
				LLM:      rt.llm,
				Registry: rt.registry,
				Logger:   rt.logger,
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (Ctrl-C to stop)\n", srv.Addr())

			<-runCtx.Done()
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (defaults to api_bind from the config)")
	return cmd
}
