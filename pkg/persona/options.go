package persona

import "path/filepath"

type options struct {
	modelDir string
	manifest string
	ortLib   string
	parallel bool
}

// Option configures a Classifier.
type Option func(*options)

// WithModelDir sets the directory holding manifest.yaml and the artifacts
// it names.
func WithModelDir(dir string) Option {
	return func(o *options) {
		o.modelDir = dir
	}
}

// WithManifest sets an explicit manifest path. It takes precedence over
// WithModelDir.
func WithManifest(path string) Option {
	return func(o *options) {
		o.manifest = path
	}
}

// WithONNXRuntime sets the ONNX Runtime shared library. Only needed when
// the manifest declares a branch with backend: onnx.
func WithONNXRuntime(libPath string) Option {
	return func(o *options) {
		o.ortLib = libPath
	}
}

// WithParallelBranches runs the two branch encoders concurrently.
// Default: true.
func WithParallelBranches(on bool) Option {
	return func(o *options) {
		o.parallel = on
	}
}

func defaultOptions() options {
	return options{parallel: true}
}

// manifestPath resolves the manifest from the configured options.
func manifestPath(o options) string {
	if o.manifest != "" {
		return o.manifest
	}
	dir := o.modelDir
	if dir == "" {
		dir = "models"
	}
	return filepath.Join(dir, "manifest.yaml")
}
