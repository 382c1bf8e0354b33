package nn

import (
	"math"

	"github.com/crimson-sun/persona/internal/engine/weights"
	"github.com/crimson-sun/persona/internal/model"
)

// BatchNormEps matches the PyTorch BatchNorm1d default.
const BatchNormEps = 1e-5

// BatchNorm applies feature normalization with frozen running statistics.
// The affine transform is folded into one scale and shift per feature.
type BatchNorm struct {
	scale []float32
	shift []float32
}

// LoadBatchNorm reads <prefix>.{weight,bias,running_mean,running_var}.
func LoadBatchNorm(f *weights.File, prefix string, features int) (*BatchNorm, error) {
	var ts [4]*weights.Tensor
	for i, suffix := range []string{"weight", "bias", "running_mean", "running_var"} {
		t, err := f.Tensor(prefix+"."+suffix, features)
		if err != nil {
			return nil, err
		}
		ts[i] = t
	}
	return NewBatchNorm(ts[0].Data, ts[1].Data, ts[2].Data, ts[3].Data)
}

// NewBatchNorm folds gamma, beta and running statistics.
func NewBatchNorm(gamma, beta, mean, variance []float32) (*BatchNorm, error) {
	n := len(gamma)
	if len(beta) != n || len(mean) != n || len(variance) != n {
		return nil, &model.ShapeMismatchError{
			What: "batchnorm parameters",
			Want: []int{n, n, n, n},
			Got:  []int{len(gamma), len(beta), len(mean), len(variance)},
		}
	}
	bn := &BatchNorm{scale: make([]float32, n), shift: make([]float32, n)}
	for i := 0; i < n; i++ {
		s := float64(gamma[i]) / math.Sqrt(float64(variance[i])+BatchNormEps)
		bn.scale[i] = float32(s)
		bn.shift[i] = float32(float64(beta[i]) - float64(mean[i])*s)
	}
	return bn, nil
}

// Features returns the normalized width.
func (bn *BatchNorm) Features() int { return len(bn.scale) }

// Forward normalizes x.
func (bn *BatchNorm) Forward(x []float32) []float32 {
	y := make([]float32, len(x))
	for i, v := range x {
		y[i] = v*bn.scale[i] + bn.shift[i]
	}
	return y
}
