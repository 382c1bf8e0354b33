package output

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/engine/taxonomy"
	"github.com/crimson-sun/persona/internal/model"
)

// Verbosity controls how much of a result a sink records.
type Verbosity int

const (
	// Minimal keeps the user id, post count and dominant label.
	Minimal Verbosity = iota
	// Standard adds the per-post predictions.
	Standard
	// Full adds the per-axis traits of the dominant label.
	Full
)

// ParseVerbosity converts "minimal", "standard" or "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("unknown verbosity %q", s)
}

// Record is the serialized form of a result.
type Record struct {
	UserID      string           `json:"user_id"`
	PostCount   int              `json:"post_count"`
	Dominant    string           `json:"dominant,omitempty"`
	Predictions []string         `json:"predictions"`
	Traits      []taxonomy.Trait `json:"traits,omitempty"`
}

// FormatResult builds the record for r at the given verbosity. Labels that
// are not four-letter type codes simply carry no traits.
func FormatResult(r model.UserPredictions, v Verbosity) Record {
	rec := Record{
		UserID:    r.UserID,
		PostCount: r.PostCount,
		Dominant:  taxonomy.Dominant(r.Predictions),
	}
	if v >= Standard {
		rec.Predictions = r.Predictions
		if rec.Predictions == nil {
			rec.Predictions = []string{}
		}
	}
	if v >= Full && rec.Dominant != "" {
		if traits, err := taxonomy.Describe(rec.Dominant); err == nil {
			rec.Traits = traits
		}
	}
	return rec
}

// MarshalJSON writes predictions whenever the record carries them, as []
// for a user with no posts. Minimal records leave them nil and the key is
// omitted.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Predictions == nil {
		return json.Marshal(struct {
			UserID    string           `json:"user_id"`
			PostCount int              `json:"post_count"`
			Dominant  string           `json:"dominant,omitempty"`
			Traits    []taxonomy.Trait `json:"traits,omitempty"`
		}{r.UserID, r.PostCount, r.Dominant, r.Traits})
	}
	return json.Marshal(struct {
		UserID      string           `json:"user_id"`
		PostCount   int              `json:"post_count"`
		Dominant    string           `json:"dominant,omitempty"`
		Predictions []string         `json:"predictions"`
		Traits      []taxonomy.Trait `json:"traits,omitempty"`
	}{r.UserID, r.PostCount, r.Dominant, r.Predictions, r.Traits})
}
