// Package artifact loads the complete set of frozen model artifacts named
// by a YAML manifest and cross-checks that they fit together.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/persona/internal/engine/classifier"
	"github.com/crimson-sun/persona/internal/engine/encoder"
	"github.com/crimson-sun/persona/internal/engine/encoder/cnn"
	"github.com/crimson-sun/persona/internal/engine/encoder/gru"
	"github.com/crimson-sun/persona/internal/engine/taxonomy"
	"github.com/crimson-sun/persona/internal/engine/tokenizer"
	"github.com/crimson-sun/persona/internal/engine/vocab"
	"github.com/crimson-sun/persona/internal/model"
)

// ManifestVersion is the manifest layout this build understands.
const ManifestVersion = 1

// Backends for a branch.
const (
	BackendNative = "native"
	BackendONNX   = "onnx"
)

// Branch locates one encoder artifact.
type Branch struct {
	Path    string `yaml:"path"`
	Backend string `yaml:"backend,omitempty"`
}

// Manifest describes an artifact set. Paths are relative to the manifest.
type Manifest struct {
	FormatVersion int    `yaml:"format_version"`
	MaxLength     int    `yaml:"max_length"`
	Language      string `yaml:"language"`
	Vocab         string `yaml:"vocab"`
	Labels        string `yaml:"labels"`
	CNN           Branch `yaml:"cnn"`
	GRU           Branch `yaml:"gru"`
	Fusion        string `yaml:"fusion"`
}

// ReadManifest parses a manifest file and applies defaults.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "read manifest", Err: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "decode manifest", Err: err}
	}
	if m.FormatVersion == 0 {
		m.FormatVersion = ManifestVersion
	}
	if m.FormatVersion != ManifestVersion {
		return nil, &model.ArtifactLoadError{Path: path, Reason: fmt.Sprintf("unsupported format_version %d", m.FormatVersion)}
	}
	if m.MaxLength == 0 {
		m.MaxLength = tokenizer.MaxLength
	}
	if m.MaxLength < 0 {
		return nil, &model.ArtifactLoadError{Path: path, Reason: fmt.Sprintf("invalid max_length %d", m.MaxLength)}
	}
	if m.Language == "" {
		m.Language = "en"
	}
	for _, b := range []*Branch{&m.CNN, &m.GRU} {
		if b.Backend == "" {
			b.Backend = BackendNative
		}
		if b.Backend != BackendNative && b.Backend != BackendONNX {
			return nil, &model.ArtifactLoadError{Path: path, Reason: fmt.Sprintf("unknown backend %q", b.Backend)}
		}
	}
	for name, p := range map[string]string{"vocab": m.Vocab, "labels": m.Labels, "cnn": m.CNN.Path, "gru": m.GRU.Path, "fusion": m.Fusion} {
		if p == "" {
			return nil, &model.ArtifactLoadError{Path: path, Reason: "missing " + name + " path"}
		}
	}
	return &m, nil
}

// Bundle is the immutable set of loaded artifacts the predictor runs on.
type Bundle struct {
	Manifest     *Manifest
	Vocab        *vocab.Vocabulary
	Labels       *taxonomy.Codec
	Preprocessor *tokenizer.Preprocessor
	CNN          encoder.Encoder
	GRU          encoder.Encoder
	Fusion       *classifier.Classifier
}

// Option configures Load.
type Option func(*options)

type options struct {
	ortLib string
}

// WithONNXRuntime sets the ONNX Runtime shared library used by branches
// declared with backend: onnx.
func WithONNXRuntime(libPath string) Option {
	return func(o *options) { o.ortLib = libPath }
}

// Load reads the manifest at path and every artifact it names. Any failure
// is returned as an ArtifactLoadError or ShapeMismatchError and should abort
// startup.
func Load(path string, opts ...Option) (*Bundle, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	tag, err := language.Parse(m.Language)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "parse language", Err: err}
	}

	b := &Bundle{Manifest: m}
	if b.Vocab, err = vocab.Load(resolve(m.Vocab)); err != nil {
		return nil, err
	}
	if b.Labels, err = taxonomy.Load(resolve(m.Labels)); err != nil {
		return nil, err
	}
	b.Preprocessor = tokenizer.New(b.Vocab, tokenizer.WithMaxLength(m.MaxLength), tokenizer.WithLanguage(tag))

	if b.CNN, err = loadBranch("cnn", m.CNN, resolve, o); err != nil {
		return nil, err
	}
	if b.GRU, err = loadBranch("gru", m.GRU, resolve, o); err != nil {
		b.CNN.Close()
		return nil, err
	}
	if b.Fusion, err = classifier.Load(resolve(m.Fusion), b.CNN.Dim(), b.GRU.Dim()); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.check(); err != nil {
		b.Close()
		return nil, err
	}

	slog.Info("artifacts loaded",
		"manifest", path,
		"vocab", b.Vocab.Len(),
		"labels", b.Labels.Len(),
		"max_length", m.MaxLength,
		"cnn_dim", b.CNN.Dim(),
		"gru_dim", b.GRU.Dim(),
	)
	return b, nil
}

func loadBranch(name string, br Branch, resolve func(string) string, o options) (encoder.Encoder, error) {
	path := resolve(br.Path)
	switch br.Backend {
	case BackendONNX:
		if o.ortLib == "" {
			return nil, &model.ArtifactLoadError{Path: path, Reason: name + ": onnx backend requires an ONNX Runtime library path"}
		}
		enc, err := encoder.NewONNX(name, path, o.ortLib)
		if err != nil {
			return nil, err
		}
		return enc, nil
	case "", BackendNative:
		switch name {
		case "cnn":
			enc, err := cnn.Load(path)
			if err != nil {
				return nil, err
			}
			return enc, nil
		case "gru":
			enc, err := gru.Load(path)
			if err != nil {
				return nil, err
			}
			return enc, nil
		}
	}
	return nil, &model.ArtifactLoadError{Path: path, Reason: fmt.Sprintf("%s: unsupported backend %q", name, br.Backend)}
}

// vocabCovered is implemented by native encoders that own an embedding
// table.
type vocabCovered interface {
	VocabRows() int
}

// check verifies the pieces agree with each other.
func (b *Bundle) check() error {
	for _, enc := range []encoder.Encoder{b.CNN, b.GRU} {
		vc, ok := enc.(vocabCovered)
		if !ok {
			continue
		}
		if b.Vocab.Size() > vc.VocabRows() {
			return &model.ShapeMismatchError{
				What: enc.Name() + " embedding rows",
				Want: []int{b.Vocab.Size()},
				Got:  []int{vc.VocabRows()},
			}
		}
	}
	if n := b.Fusion.NumClasses(); n != b.Labels.Len() {
		return &model.ShapeMismatchError{What: "fusion output vs labels", Want: []int{b.Labels.Len()}, Got: []int{n}}
	}
	return nil
}

// Close releases encoder resources.
func (b *Bundle) Close() error {
	var errs []error
	for _, enc := range []encoder.Encoder{b.CNN, b.GRU} {
		if enc != nil {
			errs = append(errs, enc.Close())
		}
	}
	return errors.Join(errs...)
}
