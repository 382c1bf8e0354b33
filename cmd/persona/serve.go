package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/persona/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			eng, bundle, err := loadEngine(cfg)
			if err != nil {
				return err
			}
			defer bundle.Close()

			src, err := openSource(cfg)
			if err != nil {
				return err
			}
			out, err := buildOutputs(cfg, false)
			if err != nil {
				return err
			}
			if out != nil {
				defer func() {
					if err := out.Close(); err != nil {
						slog.Warn("closing output", "error", err)
					}
				}()
			}
			p, err := buildPipeline(cfg, src, eng, out)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("persona starting",
				"addr", cfg.Server.Addr,
				"store", cfg.Store.Provider,
				"policy", p.Policy().String(),
				"labels", len(eng.Labels()),
			)
			err = server.New(p, eng).ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PERSONA_ADDR)")
	return cmd
}
