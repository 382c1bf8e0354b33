package nn

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// Linear computes y = Wx + b.
type Linear struct {
	w blas32.General
	b []float32
}

// NewLinear builds a Linear from a [out, in] weight and an optional [out]
// bias.
func NewLinear(w, b *weights.Tensor) (*Linear, error) {
	if len(w.Shape) != 2 {
		return nil, &model.ShapeMismatchError{What: w.Name, Want: []int{-1, -1}, Got: w.Shape}
	}
	out, in := w.Shape[0], w.Shape[1]
	l := &Linear{
		w: blas32.General{Rows: out, Cols: in, Stride: in, Data: w.Data},
		b: make([]float32, out),
	}
	if b != nil {
		if len(b.Shape) != 1 || b.Shape[0] != out {
			return nil, &model.ShapeMismatchError{What: b.Name, Want: []int{out}, Got: b.Shape}
		}
		copy(l.b, b.Data)
	}
	return l, nil
}

// LoadLinear reads <prefix>.weight and <prefix>.bias. Pass -1 for a
// dimension that is not known in advance.
func LoadLinear(f *weights.File, prefix string, in, out int) (*Linear, error) {
	w, err := f.Tensor(prefix+".weight", out, in)
	if err != nil {
		return nil, err
	}
	b, err := f.Tensor(prefix+".bias", w.Dim(0))
	if err != nil {
		return nil, err
	}
	return NewLinear(w, b)
}

// In returns the input width.
func (l *Linear) In() int { return l.w.Cols }

// Out returns the output width.
func (l *Linear) Out() int { return l.w.Rows }

// Forward applies the layer to x, which must have length In().
func (l *Linear) Forward(x []float32) []float32 {
	y := make([]float32, l.w.Rows)
	l.forwardInto(x, y)
	return y
}

// forwardInto writes Wx + b into y.
func (l *Linear) forwardInto(x, y []float32) {
	if len(x) != l.w.Cols {
		panic(fmt.Sprintf("nn: linear input has %d values, want %d", len(x), l.w.Cols))
	}
	copy(y, l.b)
	blas32.Gemv(blas.NoTrans, 1,
		l.w,
		blas32.Vector{N: l.w.Cols, Data: x, Inc: 1},
		1,
		blas32.Vector{N: l.w.Rows, Data: y, Inc: 1},
	)
}
