package main

import (
	"fmt"
	"log/slog"

	"github.com/crimson-sun/persona/internal/config"
	"github.com/crimson-sun/persona/internal/connector"
	"github.com/crimson-sun/persona/internal/engine"
	"github.com/crimson-sun/persona/internal/engine/artifact"
	"github.com/crimson-sun/persona/internal/output"
	"github.com/crimson-sun/persona/internal/output/async"
	"github.com/crimson-sun/persona/internal/output/file"
	"github.com/crimson-sun/persona/internal/output/multi"
	"github.com/crimson-sun/persona/internal/output/stdout"
	"github.com/crimson-sun/persona/internal/output/webhook"
	"github.com/crimson-sun/persona/internal/pipeline"
)

// loadEngine loads the artifact bundle and builds the predictor. The
// caller owns the bundle and must close it.
func loadEngine(cfg config.Config) (*engine.Engine, *artifact.Bundle, error) {
	var opts []artifact.Option
	if cfg.Model.ORTLibPath != "" {
		opts = append(opts, artifact.WithONNXRuntime(cfg.Model.ORTLibPath))
	}
	b, err := artifact.Load(cfg.Model.ManifestPath, opts...)
	if err != nil {
		return nil, nil, err
	}
	return engine.New(b, engine.WithParallelBranches(cfg.Model.ParallelBranches)), b, nil
}

func openSource(cfg config.Config) (connector.PostSource, error) {
	src, err := connector.Open(connector.Config{
		Provider: cfg.Store.Provider,
		APIKey:   cfg.Store.APIKey,
		Endpoint: cfg.Store.URL,
		Extra:    cfg.Store.Extra,
	})
	if err != nil {
		return nil, fmt.Errorf("open post store: %w", err)
	}
	return src, nil
}

// buildOutputs assembles the result sinks. withLocal adds the stdout or
// file sink; the webhook is added whenever a URL is configured. A nil
// Output means nothing is configured.
func buildOutputs(cfg config.Config, withLocal bool) (output.Output, error) {
	verbosity, err := output.ParseVerbosity(cfg.Output.Verbosity)
	if err != nil {
		return nil, err
	}

	var outs []output.Output
	if withLocal {
		switch cfg.Output.Format {
		case "file":
			f, err := file.New(cfg.Output.Path, verbosity,
				file.WithMaxSize(int64(cfg.Output.MaxBytes)),
				file.WithKeep(cfg.Output.Keep),
			)
			if err != nil {
				return nil, err
			}
			outs = append(outs, f)
		default:
			outs = append(outs, stdout.New(verbosity, cfg.Output.Pretty))
		}
	}
	if cfg.Output.WebhookURL != "" {
		hook := webhook.New(cfg.Output.WebhookURL,
			webhook.WithVerbosity(verbosity),
			webhook.WithBatchSize(cfg.Output.WebhookBatch),
			webhook.WithOnError(func(err error) {
				slog.Warn("webhook delivery failed", "error", err)
			}),
		)
		outs = append(outs, async.New(hook, async.WithDropOnFull(), async.WithOnError(func(err error) {
			slog.Warn("webhook queue", "error", err)
		})))
	}

	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	default:
		return multi.New(outs...), nil
	}
}

func buildPipeline(cfg config.Config, src connector.PostSource, pred pipeline.Predictor, out output.Output) (*pipeline.Pipeline, error) {
	policy, err := pipeline.ParsePolicy(cfg.Store.Policy)
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{
		pipeline.WithPolicy(policy),
		pipeline.WithWorkers(cfg.Store.Workers),
		pipeline.WithFetchTimeout(cfg.Store.FetchTimeout),
		pipeline.WithStoreName(cfg.Store.Provider),
	}
	if out != nil {
		opts = append(opts, pipeline.WithOutput(out))
	}
	return pipeline.New(src, pred, opts...), nil
}
