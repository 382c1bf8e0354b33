package taxonomy

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/crimson-sun/persona/internal/model"
)

// Codec is the bidirectional mapping between class indices and
// personality-type labels. The label count is whatever the loaded artifact
// holds. Immutable after construction.
type Codec struct {
	labels  []string
	indexOf map[string]int
}

// Load reads a label file with one label per line; the 0-indexed line
// number is the class index. Blank lines are not allowed between labels,
// trailing blank lines are ignored.
func Load(path string) (*Codec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "read labels", Err: err}
	}

	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "scan labels", Err: err}
	}
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	c, err := New(labels)
	if err != nil {
		return nil, &model.ArtifactLoadError{Path: path, Reason: "invalid labels", Err: err}
	}
	return c, nil
}

// New builds a Codec from an ordered label list. The slice is copied.
func New(labels []string) (*Codec, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("taxonomy: label set is empty")
	}
	c := &Codec{
		labels:  make([]string, len(labels)),
		indexOf: make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("taxonomy: empty label at index %d", i)
		}
		if j, dup := c.indexOf[l]; dup {
			return nil, fmt.Errorf("taxonomy: label %q at both %d and %d", l, j, i)
		}
		c.labels[i] = l
		c.indexOf[l] = i
	}
	return c, nil
}

// IsMBTI reports whether the codec holds exactly the 16 type codes in
// encoder order.
func (c *Codec) IsMBTI() bool {
	std := MBTI()
	if len(c.labels) != len(std) {
		return false
	}
	for i, l := range std {
		if c.labels[i] != l {
			return false
		}
	}
	return true
}

// Decode returns the label for a class index. Indices outside the label set
// yield *model.OutOfRangeError.
func (c *Codec) Decode(index int) (string, error) {
	if index < 0 || index >= len(c.labels) {
		return "", &model.OutOfRangeError{Index: index, Len: len(c.labels)}
	}
	return c.labels[index], nil
}

// Encode returns the class index of a label.
func (c *Codec) Encode(label string) (int, bool) {
	i, ok := c.indexOf[label]
	return i, ok
}

// Len returns the number of classes.
func (c *Codec) Len() int {
	return len(c.labels)
}

// Labels returns a copy of the ordered label set.
func (c *Codec) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}
