// Package weights reads and writes frozen model parameters stored in the
// safetensors format.
package weights

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
)

// FormatVersion is the artifact version this build understands. Files
// without a format_version metadata entry are accepted as version 1.
const FormatVersion = "1"

const metadataKey = "__metadata__"

// Tensor is a row-major float32 parameter.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// File is a parsed safetensors file. All tensors are decoded eagerly; the
// File is read-only afterwards.
type File struct {
	path     string
	tensors  map[string]*Tensor
	metadata map[string]string
}

type tensorMeta struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Open reads a safetensors file. Read and format failures are reported as
// *model.ArtifactLoadError.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadErr(path, "read", err)
	}
	if len(data) < 8 {
		return nil, loadErr(path, fmt.Sprintf("file too small: %d bytes", len(data)), nil)
	}

	// Header: 8-byte LE uint64 length, then JSON.
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return nil, loadErr(path, fmt.Sprintf("header length %d exceeds file size", headerLen), nil)
	}
	dataStart := 8 + int(headerLen)
	avail := (len(data) - dataStart) / 4

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:dataStart], &header); err != nil {
		return nil, loadErr(path, "parse header", err)
	}

	f := &File{path: path, tensors: make(map[string]*Tensor, len(header))}

	if raw, ok := header[metadataKey]; ok {
		if err := json.Unmarshal(raw, &f.metadata); err != nil {
			return nil, loadErr(path, "parse metadata", err)
		}
		delete(header, metadataKey)
	}
	if v := f.metadata["format_version"]; v != "" && v != FormatVersion {
		return nil, loadErr(path, fmt.Sprintf("unsupported format_version %q (want %q)", v, FormatVersion), nil)
	}

	for name, raw := range header {
		var meta tensorMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, loadErr(path, fmt.Sprintf("parse tensor %q metadata", name), err)
		}
		if meta.Dtype != "F32" {
			return nil, loadErr(path, fmt.Sprintf("tensor %q: expected dtype F32, got %s", name, meta.Dtype), nil)
		}

		numFloats := 1
		for _, d := range meta.Shape {
			if d < 0 {
				return nil, loadErr(path, fmt.Sprintf("tensor %q: negative dimension in %v", name, meta.Shape), nil)
			}
			// The product is bounded by the payload size, so it cannot overflow.
			if d > 0 && numFloats > avail/d {
				return nil, loadErr(path, fmt.Sprintf("tensor %q: shape %v exceeds payload of %d floats", name, meta.Shape, avail), nil)
			}
			numFloats *= d
		}

		start := dataStart + meta.DataOffsets[0]
		end := dataStart + meta.DataOffsets[1]
		if end-start != numFloats*4 {
			return nil, loadErr(path, fmt.Sprintf("tensor %q: data size %d doesn't match shape %v", name, end-start, meta.Shape), nil)
		}
		if start < dataStart || end > len(data) {
			return nil, loadErr(path, fmt.Sprintf("tensor %q: data range [%d:%d] exceeds file size %d", name, start, end, len(data)), nil)
		}

		values := make([]float32, numFloats)
		for i := range values {
			bits := binary.LittleEndian.Uint32(data[start+i*4 : start+i*4+4])
			values[i] = math.Float32frombits(bits)
		}
		f.tensors[name] = &Tensor{Name: name, Shape: meta.Shape, Data: values}
	}

	return f, nil
}

// Path returns the file the tensors were read from.
func (f *File) Path() string {
	return f.path
}

// Metadata returns the value of a __metadata__ entry.
func (f *File) Metadata(key string) string {
	return f.metadata[key]
}

// Has reports whether a tensor is present.
func (f *File) Has(name string) bool {
	_, ok := f.tensors[name]
	return ok
}

// Names returns all tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.tensors))
	for n := range f.tensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tensor returns the named tensor after checking it against the expected
// shape. A dimension of -1 matches any size. A missing tensor is an
// *model.ArtifactLoadError, a wrong shape a *model.ShapeMismatchError.
func (f *File) Tensor(name string, shape ...int) (*Tensor, error) {
	t, ok := f.tensors[name]
	if !ok {
		return nil, loadErr(f.path, fmt.Sprintf("tensor %q not found", name), nil)
	}
	if !shapeMatches(t.Shape, shape) {
		return nil, &model.ShapeMismatchError{What: f.path + ":" + name, Want: shape, Got: t.Shape}
	}
	return t, nil
}

func shapeMatches(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if want[i] != -1 && want[i] != got[i] {
			return false
		}
	}
	return true
}

func loadErr(path, reason string, err error) error {
	return &model.ArtifactLoadError{Path: path, Reason: reason, Err: err}
}
