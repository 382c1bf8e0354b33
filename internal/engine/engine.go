package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/persona/internal/engine/artifact"
	"github.com/crimson-sun/persona/internal/engine/classifier"
	"github.com/crimson-sun/persona/internal/metrics"
	"github.com/crimson-sun/persona/internal/model"
)

// Stage names a step of the stacked prediction.
type Stage string

const (
	StagePreprocessing  Stage = "preprocessing"
	StageBranchEncoding Stage = "branch_encoding"
	StageFusing         Stage = "fusing"
	StageDecoding       Stage = "decoding"
)

// StageError reports the stage a prediction failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Engine orchestrates the preprocess → encode → fuse → decode pipeline over
// a loaded artifact bundle. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	bundle   *artifact.Bundle
	parallel bool
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallelBranches runs the two branch encoders concurrently.
func WithParallelBranches(on bool) Option {
	return func(e *Engine) { e.parallel = on }
}

// New creates an Engine over the bundle.
func New(b *artifact.Bundle, opts ...Option) *Engine {
	e := &Engine{
		bundle:   b,
		parallel: true,
		log:      slog.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Labels returns the label set in class-index order.
func (e *Engine) Labels() []string {
	return e.bundle.Labels.Labels()
}

// Predict returns the personality label for text.
func (e *Engine) Predict(text string) (string, error) {
	p, err := e.PredictDetailed(text)
	if err != nil {
		return "", err
	}
	return p.Label, nil
}

// PredictDetailed returns the label along with the class index, its
// softmax confidence and the number of tokens that survived vocabulary
// mapping.
func (e *Engine) PredictDetailed(text string) (model.Prediction, error) {
	start := time.Now()
	p, err := e.predict(text)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			metrics.RecordStageFailure(string(se.Stage))
		}
		return model.Prediction{}, err
	}
	metrics.RecordPrediction(p.Label, time.Since(start))
	return p, nil
}

func (e *Engine) predict(text string) (model.Prediction, error) {
	b := e.bundle

	seq := b.Preprocessor.Prepare(text)
	if len(seq) != b.Preprocessor.MaxLen() {
		return model.Prediction{}, &StageError{Stage: StagePreprocessing, Err: &model.ShapeMismatchError{
			What: "token sequence", Want: []int{b.Preprocessor.MaxLen()}, Got: []int{len(seq)},
		}}
	}
	kept := seq.NonZero()
	if kept == 0 {
		e.log.Debug("no in-vocabulary tokens", "chars", len(text))
	}

	var featA, featB []float32
	if e.parallel {
		var g errgroup.Group
		g.Go(func() (err error) {
			featA, err = b.CNN.Encode(seq)
			return err
		})
		g.Go(func() (err error) {
			featB, err = b.GRU.Encode(seq)
			return err
		})
		if err := g.Wait(); err != nil {
			return model.Prediction{}, &StageError{Stage: StageBranchEncoding, Err: err}
		}
	} else {
		var err error
		if featA, err = b.CNN.Encode(seq); err != nil {
			return model.Prediction{}, &StageError{Stage: StageBranchEncoding, Err: err}
		}
		if featB, err = b.GRU.Encode(seq); err != nil {
			return model.Prediction{}, &StageError{Stage: StageBranchEncoding, Err: err}
		}
	}

	res, err := b.Fusion.Classify(featA, featB)
	if err != nil {
		return model.Prediction{}, &StageError{Stage: StageFusing, Err: err}
	}
	return e.decode(res, kept)
}

func (e *Engine) decode(res classifier.Result, kept int) (model.Prediction, error) {
	label, err := e.bundle.Labels.Decode(res.Index)
	if err != nil {
		e.log.Error("classifier produced an index outside the label set",
			"index", res.Index, "labels", e.bundle.Labels.Len())
		return model.Prediction{}, &StageError{Stage: StageDecoding, Err: err}
	}
	return model.Prediction{
		Label:      label,
		Class:      res.Index,
		Confidence: res.Confidence,
		KeptTokens: kept,
	}, nil
}

// PredictBatch predicts every text in order. The first failure aborts the
// batch.
func (e *Engine) PredictBatch(texts []string) ([]model.Prediction, error) {
	out := make([]model.Prediction, 0, len(texts))
	for i, text := range texts {
		p, err := e.PredictDetailed(text)
		if err != nil {
			return nil, fmt.Errorf("engine: text %d: %w", i, err)
		}
		p.Ordinal = i
		out = append(out, p)
	}
	return out, nil
}
