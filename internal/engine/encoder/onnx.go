package encoder

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/persona/internal/engine/tokenizer"
	"github.com/crimson-sun/persona/internal/model"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

const onnxInputName = "input_ids"

// ONNX runs a branch's feature graph, exported with a single int64
// input_ids [batch, seq] input and a float32 [batch, dim] output, through
// ONNX Runtime.
type ONNX struct {
	name       string
	session    *ort.DynamicAdvancedSession
	outputName string
	dim        int64
}

// NewONNX loads an exported branch. libPath points at the ONNX Runtime
// shared library.
func NewONNX(name, modelPath, libPath string) (*ONNX, error) {
	if err := initORT(libPath); err != nil {
		return nil, &model.ArtifactLoadError{Path: libPath, Reason: "initialize onnx runtime", Err: err}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: modelPath, Reason: "read model info", Err: err}
	}

	found := false
	for _, in := range inputs {
		if in.Name == onnxInputName {
			found = true
			break
		}
	}
	if !found {
		return nil, &model.ArtifactLoadError{Path: modelPath, Reason: fmt.Sprintf("model missing required input %q", onnxInputName)}
	}

	if len(outputs) == 0 {
		return nil, &model.ArtifactLoadError{Path: modelPath, Reason: "model has no outputs"}
	}
	dims := outputs[0].Dimensions
	if len(dims) != 2 || dims[1] <= 0 {
		return nil, &model.ShapeMismatchError{What: modelPath + ":" + outputs[0].Name, Want: []int{-1, -1}, Got: int64s(dims)}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(2)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{onnxInputName},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: modelPath, Reason: "create session", Err: err}
	}

	return &ONNX{
		name:       name,
		session:    session,
		outputName: outputs[0].Name,
		dim:        dims[1],
	}, nil
}

// Name implements Encoder.
func (o *ONNX) Name() string { return o.name }

// Dim implements Encoder.
func (o *ONNX) Dim() int { return int(o.dim) }

// Encode implements Encoder.
func (o *ONNX) Encode(seq tokenizer.Sequence) ([]float32, error) {
	tIDs, err := ort.NewTensor(ort.NewShape(1, int64(len(seq))), []int64(seq))
	if err != nil {
		return nil, fmt.Errorf("onnx %s: failed to create input_ids tensor: %w", o.name, err)
	}
	defer tIDs.Destroy()

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, o.dim))
	if err != nil {
		return nil, fmt.Errorf("onnx %s: failed to create output tensor: %w", o.name, err)
	}
	defer tOut.Destroy()

	if err := o.session.Run([]ort.Value{tIDs}, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx %s: inference failed: %w", o.name, err)
	}

	// Copy data out before tensor is destroyed.
	src := tOut.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

// Close releases the ONNX session.
func (o *ONNX) Close() error {
	return o.session.Destroy()
}

func int64s(dims []int64) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d)
	}
	return out
}
