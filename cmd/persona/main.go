package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/persona/internal/config"
	"github.com/crimson-sun/persona/internal/logging"

	// Register post store implementations.
	_ "github.com/crimson-sun/persona/internal/connector/memory"
	_ "github.com/crimson-sun/persona/internal/connector/supabase"
)

// app carries the configuration resolved before any subcommand runs.
type app struct {
	cfg      config.Config
	envFiles []string
	manifest string
	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "persona",
		Short: "Stacked personality-type classifier",
		Long: `persona predicts a 16-way personality type for short texts using a
stacked model: a convolutional branch and a bidirectional GRU branch feed a
small fusion network. It can serve predictions over HTTP, classify all posts
of a stored user, or label texts given on the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(a.envFiles...); err != nil {
				return err
			}
			a.cfg = config.Load()
			if a.manifest != "" {
				a.cfg.Model.ManifestPath = a.manifest
			}
			if a.logLevel != "" {
				a.cfg.Log.Level = a.logLevel
			}
			logging.Init(a.cfg.Log.Format, logging.ParseLevel(a.cfg.Log.Level))
			return nil
		},
	}

	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	root.PersistentFlags().StringVar(&a.manifest, "manifest", "", "model manifest (overrides PERSONA_MANIFEST)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides PERSONA_LOG_LEVEL)")

	root.AddCommand(
		newServeCmd(a),
		newPredictCmd(a),
		newClassifyCmd(a),
		newInspectCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "persona: %v\n", err)
		os.Exit(1)
	}
}
