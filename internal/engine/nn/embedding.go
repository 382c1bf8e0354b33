package nn

import (
	"fmt"

	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// Embedding maps token ids to dense rows of a [vocab, dim] table.
type Embedding struct {
	table []float32
	rows  int
	dim   int
}

// NewEmbedding wraps a [vocab, dim] tensor. When padIdx >= 0 that row is
// forced to zero, matching a padding_idx embedding.
func NewEmbedding(t *weights.Tensor, padIdx int) (*Embedding, error) {
	if len(t.Shape) != 2 {
		return nil, &model.ShapeMismatchError{What: t.Name, Want: []int{-1, -1}, Got: t.Shape}
	}
	e := &Embedding{table: t.Data, rows: t.Shape[0], dim: t.Shape[1]}
	if padIdx >= 0 && padIdx < e.rows {
		table := make([]float32, len(t.Data))
		copy(table, t.Data)
		clear(table[padIdx*e.dim : (padIdx+1)*e.dim])
		e.table = table
	}
	return e, nil
}

// Rows returns the number of ids the table covers.
func (e *Embedding) Rows() int { return e.rows }

// Dim returns the embedding width.
func (e *Embedding) Dim() int { return e.dim }

// Forward returns a flat [len(ids), Dim()] matrix.
func (e *Embedding) Forward(ids []int64) ([]float32, error) {
	out := make([]float32, len(ids)*e.dim)
	for t, id := range ids {
		if id < 0 || id >= int64(e.rows) {
			return nil, fmt.Errorf("nn: token id %d outside embedding table of %d rows", id, e.rows)
		}
		copy(out[t*e.dim:(t+1)*e.dim], e.table[int(id)*e.dim:(int(id)+1)*e.dim])
	}
	return out, nil
}
