package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

func newClassifyCmd(a *app) *cobra.Command {
	var users []string

	cmd := &cobra.Command{
		Use:   "classify --user ID [--user ID...]",
		Short: "Fetch each user's posts and write their predictions to the configured output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(users) == 0 {
				return errors.New("at least one --user is required")
			}
			cfg := a.cfg
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
			out, err := buildOutputs(cfg, true)
			if err != nil {
				return err
			}
			defer func() {
				if err := out.Close(); err != nil {
					slog.Warn("closing output", "error", err)
				}
			}()

			p, err := buildPipeline(cfg, src, eng, out)
			if err != nil {
				return err
			}
			for _, u := range users {
				if _, err := p.ClassifyUserPosts(cmd.Context(), u); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&users, "user", nil, "user id to classify (repeatable)")
	return cmd
}
