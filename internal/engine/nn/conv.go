package nn

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// Conv1d is a one-dimensional convolution over a [length, channels]
// sequence with symmetric zero padding.
type Conv1d struct {
	w       blas32.General // [out, k*in], window-major
	b       []float32
	in      int
	out     int
	kernel  int
	padding int
}

// NewConv1d converts a [out, in, k] weight into a window-major matrix so
// that each output position is a single matrix-vector product over a
// contiguous slice of the padded input.
func NewConv1d(w, b *weights.Tensor, padding int) (*Conv1d, error) {
	if len(w.Shape) != 3 {
		return nil, &model.ShapeMismatchError{What: w.Name, Want: []int{-1, -1, -1}, Got: w.Shape}
	}
	out, in, k := w.Shape[0], w.Shape[1], w.Shape[2]
	if len(b.Shape) != 1 || b.Shape[0] != out {
		return nil, &model.ShapeMismatchError{What: b.Name, Want: []int{out}, Got: b.Shape}
	}

	data := make([]float32, out*k*in)
	for o := 0; o < out; o++ {
		for c := 0; c < in; c++ {
			for j := 0; j < k; j++ {
				data[o*k*in+j*in+c] = w.Data[o*in*k+c*k+j]
			}
		}
	}
	bias := make([]float32, out)
	copy(bias, b.Data)

	return &Conv1d{
		w:       blas32.General{Rows: out, Cols: k * in, Stride: k * in, Data: data},
		b:       bias,
		in:      in,
		out:     out,
		kernel:  k,
		padding: padding,
	}, nil
}

// LoadConv1d reads <prefix>.weight and <prefix>.bias.
func LoadConv1d(f *weights.File, prefix string, in, kernel, padding int) (*Conv1d, error) {
	w, err := f.Tensor(prefix+".weight", -1, in, kernel)
	if err != nil {
		return nil, err
	}
	b, err := f.Tensor(prefix+".bias", w.Dim(0))
	if err != nil {
		return nil, err
	}
	return NewConv1d(w, b, padding)
}

// In returns the number of input channels.
func (c *Conv1d) In() int { return c.in }

// Out returns the number of output channels.
func (c *Conv1d) Out() int { return c.out }

// Kernel returns the filter width.
func (c *Conv1d) Kernel() int { return c.kernel }

// OutLen returns the number of output positions for an input of length n.
func (c *Conv1d) OutLen(n int) int {
	return n + 2*c.padding - c.kernel + 1
}

// Forward convolves x, a flat [length, In()] matrix, and returns a flat
// [OutLen(length), Out()] matrix.
func (c *Conv1d) Forward(x []float32, length int) []float32 {
	steps := c.OutLen(length)
	if steps <= 0 {
		return nil
	}
	padded := make([]float32, (length+2*c.padding)*c.in)
	copy(padded[c.padding*c.in:], x[:length*c.in])

	y := make([]float32, steps*c.out)
	window := c.kernel * c.in
	for t := 0; t < steps; t++ {
		dst := y[t*c.out : (t+1)*c.out]
		copy(dst, c.b)
		blas32.Gemv(blas.NoTrans, 1,
			c.w,
			blas32.Vector{N: window, Data: padded[t*c.in : t*c.in+window], Inc: 1},
			1,
			blas32.Vector{N: c.out, Data: dst, Inc: 1},
		)
	}
	return y
}

// MaxOverTime reduces a flat [steps, channels] matrix to its per-channel
// maximum.
func MaxOverTime(x []float32, steps, channels int) []float32 {
	out := make([]float32, channels)
	for ch := range out {
		out[ch] = float32(math.Inf(-1))
	}
	for t := 0; t < steps; t++ {
		row := x[t*channels : (t+1)*channels]
		for ch, v := range row {
			if v > out[ch] {
				out[ch] = v
			}
		}
	}
	return out
}
