package persona

import (
	"fmt"

	"github.com/crimson-sun/persona/internal/engine"
	"github.com/crimson-sun/persona/internal/engine/artifact"
	"github.com/crimson-sun/persona/internal/model"
)

// Classifier predicts personality types with a stacked model.
// Safe for concurrent use.
type Classifier struct {
	engine *engine.Engine
	bundle *artifact.Bundle
}

// New loads the model artifacts and returns a ready Classifier. Loading
// reads every weight file, so create once and reuse.
func New(opts ...Option) (*Classifier, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var aopts []artifact.Option
	if o.ortLib != "" {
		aopts = append(aopts, artifact.WithONNXRuntime(o.ortLib))
	}
	b, err := artifact.Load(manifestPath(o), aopts...)
	if err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}

	eng := engine.New(b, engine.WithParallelBranches(o.parallel))
	return &Classifier{engine: eng, bundle: b}, nil
}

// Predict returns the type code for one text.
func (c *Classifier) Predict(text string) (string, error) {
	return c.engine.Predict(text)
}

// PredictDetailed returns the full prediction for one text.
func (c *Classifier) PredictDetailed(text string) (Prediction, error) {
	p, err := c.engine.PredictDetailed(text)
	if err != nil {
		return Prediction{}, err
	}
	return fromModel(p), nil
}

// PredictAll returns one type code per text, in order. The first failure
// aborts the call.
func (c *Classifier) PredictAll(texts []string) ([]string, error) {
	labels := make([]string, 0, len(texts))
	for i, t := range texts {
		label, err := c.engine.Predict(t)
		if err != nil {
			return nil, fmt.Errorf("persona: text %d: %w", i, err)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// PredictBatch returns the full prediction for each text, in order.
func (c *Classifier) PredictBatch(texts []string) ([]Prediction, error) {
	ps, err := c.engine.PredictBatch(texts)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(ps))
	for i, p := range ps {
		out[i] = fromModel(p)
	}
	return out, nil
}

// Labels returns the label set in class-index order.
func (c *Classifier) Labels() []string {
	return c.engine.Labels()
}

// Close releases model resources. Must be called when the Classifier is no
// longer needed.
func (c *Classifier) Close() error {
	return c.bundle.Close()
}

func fromModel(p model.Prediction) Prediction {
	return Prediction{
		Ordinal:    p.Ordinal,
		Label:      p.Label,
		Class:      p.Class,
		Confidence: p.Confidence,
		KeptTokens: p.KeptTokens,
	}
}
