package persona

import "github.com/crimson-sun/persona/internal/engine/taxonomy"

// Trait is the resolved pole of one dichotomy for a type code.
type Trait struct {
	Axis   string `json:"axis"`   // energy, information, decisions, lifestyle
	Letter string `json:"letter"` // e.g. "I"
	Trait  string `json:"trait"`  // e.g. "introversion"
}

// Describe breaks a four-letter type code into its per-axis traits.
func Describe(code string) ([]Trait, error) {
	ts, err := taxonomy.Describe(code)
	if err != nil {
		return nil, err
	}
	out := make([]Trait, len(ts))
	for i, t := range ts {
		out[i] = Trait{Axis: t.Axis, Letter: t.Letter, Trait: t.Trait}
	}
	return out, nil
}

// Dominant returns the most frequent label, ties going to the one seen
// first. It returns "" for no labels.
func Dominant(labels []string) string {
	return taxonomy.Dominant(labels)
}
