package weights

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// Write stores tensors in safetensors format. Tensors are laid out in name
// order; format_version is always recorded in the metadata.
func Write(path string, tensors []*Tensor, metadata map[string]string) error {
	sorted := make([]*Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	meta := map[string]string{"format_version": FormatVersion}
	for k, v := range metadata {
		meta[k] = v
	}
	header[metadataKey] = meta

	offset := 0
	for _, t := range sorted {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return fmt.Errorf("weights: tensor %q has %d values for shape %v", t.Name, len(t.Data), t.Shape)
		}
		header[t.Name] = tensorMeta{Dtype: "F32", Shape: t.Shape, DataOffsets: [2]int{offset, offset + n*4}}
		offset += n * 4
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("weights: encode header: %w", err)
	}
	// Pad the header so the data section starts 8-byte aligned.
	for len(hdr)%8 != 0 {
		hdr = append(hdr, ' ')
	}

	buf := make([]byte, 8+len(hdr)+offset)
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(hdr)))
	copy(buf[8:], hdr)
	pos := 8 + len(hdr)
	for _, t := range sorted {
		for _, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[pos:pos+4], math.Float32bits(v))
			pos += 4
		}
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return nil
}
