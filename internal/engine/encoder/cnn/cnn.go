// Package cnn implements the convolutional branch: parallel multi-width
// filters with max-over-time pooling followed by a normalized
// fully-connected stack.
package cnn

import (
	"fmt"

	"github.com/crimson-sun/persona/internal/engine/encoder"
	"github.com/crimson-sun/persona/internal/engine/nn"
	"github.com/crimson-sun/persona/internal/engine/tokenizer"
	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// Widths are the filter widths of the three convolution groups, in the
// order their pooled outputs are concatenated.
var Widths = []int{3, 4, 5}

// Padding is the zero padding applied on each side of the sequence.
const Padding = 1

var _ encoder.Encoder = (*Encoder)(nil)

// Encoder is the frozen convolutional branch.
type Encoder struct {
	emb   *nn.Embedding
	convs []*nn.Conv1d
	bn1   *nn.BatchNorm
	fc1   *nn.Linear
	bn2   *nn.BatchNorm
	fc2   *nn.Linear
	fc3   *nn.Linear
	head  *nn.Linear // fc4; not part of the feature path
}

// Load opens a safetensors file and builds the branch from it.
func Load(path string) (*Encoder, error) {
	f, err := weights.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	return New(f)
}

// New builds the branch from parameters named after the trained module:
// embedding, convs.{0,1,2}, batch_norm1, fc1, batch_norm2, fc2, fc3 and the
// optional fc4 head.
func New(f *weights.File) (*Encoder, error) {
	table, err := f.Tensor("embedding.weight", -1, -1)
	if err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	emb, err := nn.NewEmbedding(table, -1)
	if err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}

	e := &Encoder{emb: emb}
	pooledDim := 0
	for i, w := range Widths {
		conv, err := nn.LoadConv1d(f, fmt.Sprintf("convs.%d", i), emb.Dim(), w, Padding)
		if err != nil {
			return nil, fmt.Errorf("cnn: %w", err)
		}
		e.convs = append(e.convs, conv)
		pooledDim += conv.Out()
	}

	if e.bn1, err = nn.LoadBatchNorm(f, "batch_norm1", pooledDim); err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	if e.fc1, err = nn.LoadLinear(f, "fc1", pooledDim, -1); err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	if e.bn2, err = nn.LoadBatchNorm(f, "batch_norm2", e.fc1.Out()); err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	if e.fc2, err = nn.LoadLinear(f, "fc2", e.fc1.Out(), -1); err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	if e.fc3, err = nn.LoadLinear(f, "fc3", e.fc2.Out(), -1); err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}
	if f.Has("fc4.weight") {
		if e.head, err = nn.LoadLinear(f, "fc4", e.fc3.Out(), -1); err != nil {
			return nil, fmt.Errorf("cnn: %w", err)
		}
	}
	return e, nil
}

// Name implements encoder.Encoder.
func (e *Encoder) Name() string { return "cnn" }

// Dim implements encoder.Encoder.
func (e *Encoder) Dim() int { return e.fc3.Out() }

// VocabRows returns the number of token ids the embedding table covers.
func (e *Encoder) VocabRows() int { return e.emb.Rows() }

// Encode implements encoder.Encoder.
func (e *Encoder) Encode(seq tokenizer.Sequence) ([]float32, error) {
	x, err := e.emb.Forward(seq)
	if err != nil {
		return nil, fmt.Errorf("cnn: %w", err)
	}

	pooled := make([][]float32, len(e.convs))
	for i, conv := range e.convs {
		steps := conv.OutLen(len(seq))
		if steps <= 0 {
			return nil, &model.ShapeMismatchError{
				What: fmt.Sprintf("cnn: sequence for width-%d filter", conv.Kernel()),
				Want: []int{conv.Kernel() - 2*Padding},
				Got:  []int{len(seq)},
			}
		}
		y := nn.ReLU(conv.Forward(x, len(seq)))
		pooled[i] = nn.MaxOverTime(y, steps, conv.Out())
	}

	h := e.bn1.Forward(nn.Concat(pooled...))
	h = nn.ReLU(e.fc1.Forward(h))
	h = e.bn2.Forward(h)
	h = nn.ReLU(e.fc2.Forward(h))
	return nn.ReLU(e.fc3.Forward(h)), nil
}

// Logits runs the branch's own classification head. The stacked pipeline
// never calls it; it exists for diagnostics.
func (e *Encoder) Logits(seq tokenizer.Sequence) ([]float32, error) {
	if e.head == nil {
		return nil, fmt.Errorf("cnn: artifact has no fc4 head")
	}
	feat, err := e.Encode(seq)
	if err != nil {
		return nil, err
	}
	return e.head.Forward(feat), nil
}

// Close implements encoder.Encoder.
func (e *Encoder) Close() error { return nil }
