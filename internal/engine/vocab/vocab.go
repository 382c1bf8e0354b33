package vocab

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
)

// UnknownID is returned for tokens absent from the vocabulary. It doubles as
// the padding id.
const UnknownID int64 = 0

// Vocabulary maps normalized word tokens to integer ids. It is immutable
// after Load and safe for concurrent use.
type Vocabulary struct {
	tokenToID map[string]int64
	maxID     int64
}

// Load reads a JSON object of the form {"token": id, ...}. Id 0 is reserved
// for unknown/pad and may only be bound to a reserved marker such as
// "<pad>" or "<unk>".
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "read vocabulary", Err: err}
	}

	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "decode vocabulary", Err: err}
	}
	if len(raw) == 0 {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "vocabulary is empty"}
	}

	v, err := New(raw)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "invalid vocabulary", Err: err}
	}
	return v, nil
}

// New builds a Vocabulary from an in-memory table. The map is copied.
func New(table map[string]int64) (*Vocabulary, error) {
	v := &Vocabulary{tokenToID: make(map[string]int64, len(table))}
	seen := make(map[int64]string, len(table))
	for tok, id := range table {
		if id < 0 {
			return nil, fmt.Errorf("vocab: token %q has negative id %d", tok, id)
		}
		if id == UnknownID && !isReserved(tok) {
			return nil, fmt.Errorf("vocab: id 0 is reserved, bound to %q", tok)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("vocab: id %d bound to both %q and %q", id, prev, tok)
		}
		seen[id] = tok
		if id == UnknownID {
			continue
		}
		v.tokenToID[tok] = id
		if id > v.maxID {
			v.maxID = id
		}
	}
	return v, nil
}

func isReserved(tok string) bool {
	switch tok {
	case "", "<pad>", "<PAD>", "<unk>", "<UNK>", "[PAD]", "[UNK]":
		return true
	}
	return false
}

// Lookup returns the token's id, or UnknownID if the token is absent.
func (v *Vocabulary) Lookup(token string) int64 {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return UnknownID
}

// Contains reports whether the token has a non-reserved id.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.tokenToID[token]
	return ok
}

// Size returns the number of rows an embedding table needs to cover every
// id, i.e. the largest id plus one.
func (v *Vocabulary) Size() int {
	return int(v.maxID) + 1
}

// Len returns the number of real (non-reserved) tokens.
func (v *Vocabulary) Len() int {
	return len(v.tokenToID)
}
