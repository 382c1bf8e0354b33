// Package encoder defines the feature-extraction surface shared by the two
// branches of the stacked model.
package encoder

import "github.com/crimson-sun/persona/internal/engine/tokenizer"

// Encoder turns a token sequence into a fixed-size feature vector. Encoders
// hold frozen weights and are safe for concurrent use; Encode is a pure
// function of the sequence.
type Encoder interface {
	// Name identifies the branch in logs and errors.
	Name() string

	// Dim is the length of every vector Encode returns.
	Dim() int

	// Encode extracts the feature vector that precedes the branch's own
	// classification head.
	Encode(seq tokenizer.Sequence) ([]float32, error)

	Close() error
}
