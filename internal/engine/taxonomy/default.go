package taxonomy

import (
	"fmt"
	"strings"
)

// Axis is one of the four dichotomies a type code is composed of.
type Axis struct {
	Name  string
	Left  Pole
	Right Pole
}

// Pole is one side of an Axis.
type Pole struct {
	Letter byte
	Trait  string
}

// Axes lists the dichotomies in the order their letters appear in a code.
var Axes = [4]Axis{
	{Name: "energy", Left: Pole{'E', "extraversion"}, Right: Pole{'I', "introversion"}},
	{Name: "information", Left: Pole{'S', "sensing"}, Right: Pole{'N', "intuition"}},
	{Name: "decisions", Left: Pole{'T', "thinking"}, Right: Pole{'F', "feeling"}},
	{Name: "lifestyle", Left: Pole{'J', "judging"}, Right: Pole{'P', "perceiving"}},
}

// MBTI returns the 16 type codes in the sorted order a fitted label
// encoder produces.
func MBTI() []string {
	codes := make([]string, 0, 16)
	for _, a := range []byte{'E', 'I'} {
		for _, b := range []byte{'N', 'S'} {
			for _, c := range []byte{'F', 'T'} {
				for _, d := range []byte{'J', 'P'} {
					codes = append(codes, string([]byte{a, b, c, d}))
				}
			}
		}
	}
	return codes
}

// Trait is the resolved pole of one axis for a type code.
type Trait struct {
	Axis   string `json:"axis"`
	Letter string `json:"letter"`
	Trait  string `json:"trait"`
}

// Describe breaks a four-letter type code into its per-axis traits.
func Describe(code string) ([]Trait, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != len(Axes) {
		return nil, fmt.Errorf("taxonomy: %q is not a four-letter type code", code)
	}
	traits := make([]Trait, 0, len(Axes))
	for i, ax := range Axes {
		var p Pole
		switch code[i] {
		case ax.Left.Letter:
			p = ax.Left
		case ax.Right.Letter:
			p = ax.Right
		default:
			return nil, fmt.Errorf("taxonomy: letter %q is not valid for the %s axis", code[i], ax.Name)
		}
		traits = append(traits, Trait{Axis: ax.Name, Letter: string(p.Letter), Trait: p.Trait})
	}
	return traits, nil
}

// Dominant returns the most frequent label, breaking ties in favor of the
// label that appears first. It returns "" for no labels.
func Dominant(labels []string) string {
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}
	best, bestN := "", 0
	for _, l := range labels {
		if counts[l] > bestN {
			best, bestN = l, counts[l]
		}
	}
	return best
}
