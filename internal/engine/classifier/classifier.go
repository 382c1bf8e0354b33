// Package classifier implements the fusion meta-classifier that maps the
// concatenated branch features onto class scores.
package classifier

import (
	"fmt"

	"github.com/crimson-sun/persona/internal/engine/nn"
	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// Result holds the outcome of classifying a single feature pair.
type Result struct {
	Index      int
	Confidence float64
	Logits     []float32
}

// Classifier is the frozen meta-learner: three linear layers with ReLU
// between them. Dropout layers are identity at inference.
type Classifier struct {
	dimA, dimB int
	layers     [3]*nn.Linear
}

// layerNames are the positions of the linear layers in the trained
// sequential container; 1, 2 and 4 are ReLU/Dropout and carry no weights.
var layerNames = [3]string{"meta_learner.0", "meta_learner.3", "meta_learner.5"}

// Load opens a safetensors file and builds the classifier for the given
// branch feature widths.
func Load(path string, dimA, dimB int) (*Classifier, error) {
	f, err := weights.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return New(f, dimA, dimB)
}

// New builds the classifier from meta_learner.{0,3,5} parameters. The first
// layer's input width must equal dimA+dimB.
func New(f *weights.File, dimA, dimB int) (*Classifier, error) {
	c := &Classifier{dimA: dimA, dimB: dimB}
	in := dimA + dimB
	for i, name := range layerNames {
		l, err := nn.LoadLinear(f, name, in, -1)
		if err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		c.layers[i] = l
		in = l.Out()
	}
	return c, nil
}

// InDims returns the expected widths of the two feature vectors.
func (c *Classifier) InDims() (int, int) { return c.dimA, c.dimB }

// NumClasses returns the width of the score vector.
func (c *Classifier) NumClasses() int { return c.layers[2].Out() }

// Logits returns the raw class scores for a feature pair.
func (c *Classifier) Logits(featA, featB []float32) ([]float32, error) {
	if len(featA) != c.dimA || len(featB) != c.dimB {
		return nil, &model.ShapeMismatchError{
			What: "classifier: fused features",
			Want: []int{c.dimA, c.dimB},
			Got:  []int{len(featA), len(featB)},
		}
	}
	h := nn.Concat(featA, featB)
	h = nn.ReLU(c.layers[0].Forward(h))
	h = nn.ReLU(c.layers[1].Forward(h))
	return c.layers[2].Forward(h), nil
}

// Classify scores a feature pair and picks the highest-scoring class. Ties
// resolve to the lowest index.
func (c *Classifier) Classify(featA, featB []float32) (Result, error) {
	logits, err := c.Logits(featA, featB)
	if err != nil {
		return Result{Index: -1}, err
	}
	idx := nn.Argmax(logits)
	return Result{
		Index:      idx,
		Confidence: nn.Softmax(logits)[idx],
		Logits:     logits,
	}, nil
}
