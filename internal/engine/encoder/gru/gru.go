// Package gru implements the recurrent branch: two stacked bidirectional
// GRU layers whose terminal states feed a fully-connected reduction.
package gru

import (
	"fmt"

	"github.com/crimson-sun/persona/internal/engine/encoder"
	"github.com/crimson-sun/persona/internal/engine/nn"
	"github.com/crimson-sun/persona/internal/engine/tokenizer"
	"github.com/crimson-sun/persona/internal/engine/vocab"
	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// PadIndex is the embedding row pinned to zero.
const PadIndex = int(vocab.UnknownID)

var _ encoder.Encoder = (*Encoder)(nil)

// Encoder is the frozen recurrent branch.
type Encoder struct {
	emb  *nn.Embedding
	gru1 *nn.BiGRU
	gru2 *nn.BiGRU
	fc1  *nn.Linear
	head *nn.Linear // fc2; not part of the feature path
}

// Load opens a safetensors file and builds the branch from it.
func Load(path string) (*Encoder, error) {
	f, err := weights.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	return New(f)
}

// New builds the branch from parameters named after the trained module:
// embedding, gru1, gru2, fc1 and the optional fc2 head.
func New(f *weights.File) (*Encoder, error) {
	table, err := f.Tensor("embedding.weight", -1, -1)
	if err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	e := &Encoder{}
	if e.emb, err = nn.NewEmbedding(table, PadIndex); err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	if e.gru1, err = nn.LoadBiGRU(f, "gru1", e.emb.Dim()); err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	if e.gru2, err = nn.LoadBiGRU(f, "gru2", 2*e.gru1.Hidden()); err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	if e.fc1, err = nn.LoadLinear(f, "fc1", 2*e.gru2.Hidden(), -1); err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	if f.Has("fc2.weight") {
		if e.head, err = nn.LoadLinear(f, "fc2", e.fc1.Out(), -1); err != nil {
			return nil, fmt.Errorf("gru: %w", err)
		}
	}
	return e, nil
}

// Name implements encoder.Encoder.
func (e *Encoder) Name() string { return "gru" }

// Dim implements encoder.Encoder.
func (e *Encoder) Dim() int { return e.fc1.Out() }

// VocabRows returns the number of token ids the embedding table covers.
func (e *Encoder) VocabRows() int { return e.emb.Rows() }

// Encode implements encoder.Encoder.
func (e *Encoder) Encode(seq tokenizer.Sequence) ([]float32, error) {
	if len(seq) == 0 {
		return nil, &model.ShapeMismatchError{What: "gru: sequence", Want: []int{tokenizer.MaxLength}, Got: []int{0}}
	}
	x, err := e.emb.Forward(seq)
	if err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	out1, _, _ := e.gru1.Forward(x, len(seq))
	_, fwd, bwd := e.gru2.Forward(out1, len(seq))
	return nn.ReLU(e.fc1.Forward(nn.Concat(fwd, bwd))), nil
}

// Logits runs the branch's own classification head. The stacked pipeline
// never calls it; it exists for diagnostics.
func (e *Encoder) Logits(seq tokenizer.Sequence) ([]float32, error) {
	if e.head == nil {
		return nil, fmt.Errorf("gru: artifact has no fc2 head")
	}
	feat, err := e.Encode(seq)
	if err != nil {
		return nil, err
	}
	return e.head.Forward(feat), nil
}

// Close implements encoder.Encoder.
func (e *Encoder) Close() error { return nil }
