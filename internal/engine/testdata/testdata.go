// Package testdata synthesizes small, deterministic model artifacts so the
// stacked pipeline can be exercised without the trained weights.
package testdata

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/persona/internal/engine/taxonomy"
	"github.com/crimson-sun/persona/internal/engine/weights"
)

// Dims sizes every layer of the synthetic artifact set.
type Dims struct {
	EmbedCNN   int
	Channels   int // per filter width
	CNNFC1     int
	CNNFC2     int
	CNNFeature int
	EmbedGRU   int
	Hidden     int
	GRUFeature int
	Meta1      int
	Meta2      int
}

// Small returns dimensions that keep a full prediction well under a second.
func Small() Dims {
	return Dims{
		EmbedCNN:   8,
		Channels:   4,
		CNNFC1:     12,
		CNNFC2:     10,
		CNNFeature: 6,
		EmbedGRU:   6,
		Hidden:     5,
		GRUFeature: 7,
		Meta1:      8,
		Meta2:      6,
	}
}

// Words is the synthetic vocabulary; word i has id i+1.
var Words = []string{
	"a", "b", "c", "i", "you", "we", "love", "hate", "think", "feel",
	"people", "party", "book", "quiet", "plan", "idea", "logic", "heart",
	"the", "and", "to", "of", "is", "it", "do", "n't", "'s", ".", ",", "!",
	"?", "friends", "alone", "future", "facts", "details", "rules", "freedom",
}

// Labels are the synthetic class labels, in label encoder order.
var Labels = taxonomy.MBTI()

// VocabRows is the embedding table height covering every id in Words.
func VocabRows() int { return len(Words) + 1 }

type gen struct {
	rng *rand.Rand
}

func newGen(seed uint64) *gen {
	return &gen{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *gen) uniform(lo, hi float64, shape ...int) []float32 {
	n := 1
	for _, d := range shape {
		n *= d
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(lo + g.rng.Float64()*(hi-lo))
	}
	return out
}

func (g *gen) tensor(name string, shape ...int) *weights.Tensor {
	return &weights.Tensor{Name: name, Shape: shape, Data: g.uniform(-0.5, 0.5, shape...)}
}

func (g *gen) linear(prefix string, in, out int) []*weights.Tensor {
	return []*weights.Tensor{g.tensor(prefix+".weight", out, in), g.tensor(prefix+".bias", out)}
}

func (g *gen) batchNorm(prefix string, n int) []*weights.Tensor {
	return []*weights.Tensor{
		{Name: prefix + ".weight", Shape: []int{n}, Data: g.uniform(0.8, 1.2, n)},
		{Name: prefix + ".bias", Shape: []int{n}, Data: g.uniform(-0.1, 0.1, n)},
		{Name: prefix + ".running_mean", Shape: []int{n}, Data: g.uniform(-0.2, 0.2, n)},
		{Name: prefix + ".running_var", Shape: []int{n}, Data: g.uniform(0.5, 1.5, n)},
	}
}

func (g *gen) biGRU(prefix string, in, hidden int) []*weights.Tensor {
	var ts []*weights.Tensor
	for _, suffix := range []string{"_l0", "_l0_reverse"} {
		ts = append(ts,
			g.tensor(prefix+".weight_ih"+suffix, 3*hidden, in),
			g.tensor(prefix+".weight_hh"+suffix, 3*hidden, hidden),
			g.tensor(prefix+".bias_ih"+suffix, 3*hidden),
			g.tensor(prefix+".bias_hh"+suffix, 3*hidden),
		)
	}
	return ts
}

// CNN returns the convolutional branch parameters, including the unused
// fc4 head.
func CNN(d Dims, seed uint64) []*weights.Tensor {
	g := newGen(seed)
	ts := []*weights.Tensor{g.tensor("embedding.weight", VocabRows(), d.EmbedCNN)}
	for i, w := range []int{3, 4, 5} {
		ts = append(ts,
			g.tensor(fmt.Sprintf("convs.%d.weight", i), d.Channels, d.EmbedCNN, w),
			g.tensor(fmt.Sprintf("convs.%d.bias", i), d.Channels),
		)
	}
	pooled := 3 * d.Channels
	ts = append(ts, g.batchNorm("batch_norm1", pooled)...)
	ts = append(ts, g.linear("fc1", pooled, d.CNNFC1)...)
	ts = append(ts, g.batchNorm("batch_norm2", d.CNNFC1)...)
	ts = append(ts, g.linear("fc2", d.CNNFC1, d.CNNFC2)...)
	ts = append(ts, g.linear("fc3", d.CNNFC2, d.CNNFeature)...)
	ts = append(ts, g.linear("fc4", d.CNNFeature, len(Labels))...)
	return ts
}

// GRU returns the recurrent branch parameters, including the unused fc2
// head.
func GRU(d Dims, seed uint64) []*weights.Tensor {
	g := newGen(seed)
	ts := []*weights.Tensor{g.tensor("embedding.weight", VocabRows(), d.EmbedGRU)}
	ts = append(ts, g.biGRU("gru1", d.EmbedGRU, d.Hidden)...)
	ts = append(ts, g.biGRU("gru2", 2*d.Hidden, d.Hidden)...)
	ts = append(ts, g.linear("fc1", 2*d.Hidden, d.GRUFeature)...)
	ts = append(ts, g.linear("fc2", d.GRUFeature, len(Labels))...)
	return ts
}

// Fusion returns the meta-classifier parameters for the given branch
// feature widths.
func Fusion(d Dims, cnnDim, gruDim int, seed uint64) []*weights.Tensor {
	g := newGen(seed)
	var ts []*weights.Tensor
	ts = append(ts, g.linear("meta_learner.0", cnnDim+gruDim, d.Meta1)...)
	ts = append(ts, g.linear("meta_learner.3", d.Meta1, d.Meta2)...)
	ts = append(ts, g.linear("meta_learner.5", d.Meta2, len(Labels))...)
	return ts
}

// Manifest mirrors the on-disk artifact manifest layout.
type Manifest struct {
	FormatVersion int               `yaml:"format_version"`
	MaxLength     int               `yaml:"max_length"`
	Language      string            `yaml:"language"`
	Vocab         string            `yaml:"vocab"`
	Labels        string            `yaml:"labels"`
	CNN           map[string]string `yaml:"cnn"`
	GRU           map[string]string `yaml:"gru"`
	Fusion        string            `yaml:"fusion"`
}

// WriteArtifacts writes a complete artifact set into dir and returns the
// manifest path.
func WriteArtifacts(dir string, d Dims, seed uint64) (string, error) {
	table := map[string]int64{"<pad>": 0}
	for i, w := range Words {
		table[w] = int64(i + 1)
	}
	vocabJSON, err := json.Marshal(table)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "vocab.json"), vocabJSON, 0o644); err != nil {
		return "", err
	}
	labels := strings.Join(Labels, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "labels.txt"), []byte(labels), 0o644); err != nil {
		return "", err
	}

	meta := map[string]string{"producer": "testdata"}
	if err := weights.Write(filepath.Join(dir, "cnn.safetensors"), CNN(d, seed), meta); err != nil {
		return "", err
	}
	if err := weights.Write(filepath.Join(dir, "gru.safetensors"), GRU(d, seed+1), meta); err != nil {
		return "", err
	}
	fusion := Fusion(d, d.CNNFeature, d.GRUFeature, seed+2)
	if err := weights.Write(filepath.Join(dir, "fusion.safetensors"), fusion, meta); err != nil {
		return "", err
	}

	m := Manifest{
		FormatVersion: 1,
		MaxLength:     500,
		Language:      "en",
		Vocab:         "vocab.json",
		Labels:        "labels.txt",
		CNN:           map[string]string{"path": "cnn.safetensors"},
		GRU:           map[string]string{"path": "gru.safetensors"},
		Fusion:        "fusion.safetensors",
	}
	return WriteManifest(dir, m)
}

// WriteManifest stores m as manifest.yaml in dir.
func WriteManifest(dir string, m Manifest) (string, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
