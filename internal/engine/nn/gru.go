package nn

import (
	"fmt"

	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// GRU is one direction of a gated recurrent layer:
//
//	r = σ(W_ir x + b_ir + W_hr h + b_hr)
//	z = σ(W_iz x + b_iz + W_hz h + b_hz)
//	n = tanh(W_in x + b_in + r ⊙ (W_hn h + b_hn))
//	h' = (1 - z) ⊙ n + z ⊙ h
type GRU struct {
	ih     *Linear // [3H, in]
	hh     *Linear // [3H, H]
	hidden int
}

// LoadGRU reads the weight_ih/weight_hh/bias_ih/bias_hh tensors of one
// direction. suffix is "_l0" or "_l0_reverse".
func LoadGRU(f *weights.File, prefix, suffix string, in int) (*GRU, error) {
	wih, err := f.Tensor(prefix+".weight_ih"+suffix, -1, in)
	if err != nil {
		return nil, err
	}
	if wih.Dim(0)%3 != 0 {
		return nil, &model.ShapeMismatchError{What: wih.Name, Want: []int{-1, in}, Got: wih.Shape}
	}
	h := wih.Dim(0) / 3
	whh, err := f.Tensor(prefix+".weight_hh"+suffix, 3*h, h)
	if err != nil {
		return nil, err
	}
	bih, err := f.Tensor(prefix+".bias_ih"+suffix, 3*h)
	if err != nil {
		return nil, err
	}
	bhh, err := f.Tensor(prefix+".bias_hh"+suffix, 3*h)
	if err != nil {
		return nil, err
	}

	ih, err := NewLinear(wih, bih)
	if err != nil {
		return nil, err
	}
	hh, err := NewLinear(whh, bhh)
	if err != nil {
		return nil, err
	}
	return &GRU{ih: ih, hh: hh, hidden: h}, nil
}

// Hidden returns the state width.
func (g *GRU) Hidden() int { return g.hidden }

// In returns the input width.
func (g *GRU) In() int { return g.ih.In() }

// Run reads a flat [length, In()] sequence from a zero initial state. With
// reverse set it reads from the last step to the first. It returns the
// per-step states as a flat [length, Hidden()] matrix, indexed by input
// position, and the terminal state.
func (g *GRU) Run(x []float32, length int, reverse bool) (outputs, last []float32) {
	H := g.hidden
	in := g.ih.In()
	outputs = make([]float32, length*H)
	h := make([]float32, H)
	gi := make([]float32, 3*H)
	gh := make([]float32, 3*H)

	for s := 0; s < length; s++ {
		t := s
		if reverse {
			t = length - 1 - s
		}
		g.ih.forwardInto(x[t*in:(t+1)*in], gi)
		g.hh.forwardInto(h, gh)
		next := outputs[t*H : (t+1)*H]
		for j := 0; j < H; j++ {
			r := sigmoid(gi[j] + gh[j])
			z := sigmoid(gi[H+j] + gh[H+j])
			n := tanh(gi[2*H+j] + r*gh[2*H+j])
			next[j] = (1-z)*n + z*h[j]
		}
		copy(h, next)
	}
	return outputs, h
}

// BiGRU pairs a forward and a backward GRU over the same input.
type BiGRU struct {
	fwd *GRU
	bwd *GRU
}

// LoadBiGRU reads both directions of layer 0 of a PyTorch GRU module.
func LoadBiGRU(f *weights.File, prefix string, in int) (*BiGRU, error) {
	fwd, err := LoadGRU(f, prefix, "_l0", in)
	if err != nil {
		return nil, err
	}
	bwd, err := LoadGRU(f, prefix, "_l0_reverse", in)
	if err != nil {
		return nil, err
	}
	if fwd.Hidden() != bwd.Hidden() {
		return nil, fmt.Errorf("nn: %s: forward hidden %d != reverse hidden %d", prefix, fwd.Hidden(), bwd.Hidden())
	}
	return &BiGRU{fwd: fwd, bwd: bwd}, nil
}

// Hidden returns the per-direction state width.
func (b *BiGRU) Hidden() int { return b.fwd.Hidden() }

// In returns the input width.
func (b *BiGRU) In() int { return b.fwd.In() }

// Forward returns per-step outputs as a flat [length, 2*Hidden()] matrix
// (forward state then backward state at each position) and the terminal
// forward and backward states.
func (b *BiGRU) Forward(x []float32, length int) (outputs, lastFwd, lastBwd []float32) {
	H := b.Hidden()
	fo, lastFwd := b.fwd.Run(x, length, false)
	bo, lastBwd := b.bwd.Run(x, length, true)
	outputs = make([]float32, length*2*H)
	for t := 0; t < length; t++ {
		copy(outputs[t*2*H:], fo[t*H:(t+1)*H])
		copy(outputs[t*2*H+H:], bo[t*H:(t+1)*H])
	}
	return outputs, lastFwd, lastBwd
}
