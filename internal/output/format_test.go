package output

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
)

func baseResult() model.UserPredictions {
	return model.UserPredictions{
		UserID:      "u1",
		PostCount:   3,
		Predictions: []string{"INTJ", "ENFP", "INTJ"},
	}
}

func TestFormatResultMinimal(t *testing.T) {
	r := FormatResult(baseResult(), Minimal)

	if r.Predictions != nil {
		t.Fatal("Predictions should be omitted at Minimal")
	}
	if r.Dominant != "INTJ" {
		t.Fatalf("Dominant = %q, want INTJ", r.Dominant)
	}
	if r.UserID != "u1" || r.PostCount != 3 {
		t.Fatalf("identity not preserved: %+v", r)
	}
}

func TestFormatResultStandard(t *testing.T) {
	r := FormatResult(baseResult(), Standard)
	if len(r.Predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %v", r.Predictions)
	}
	if r.Traits != nil {
		t.Fatal("Traits should be omitted at Standard")
	}
}

func TestFormatResultFull(t *testing.T) {
	r := FormatResult(baseResult(), Full)
	if len(r.Traits) != 4 {
		t.Fatalf("expected 4 traits, got %v", r.Traits)
	}
	if r.Traits[0].Trait != "introversion" {
		t.Fatalf("first trait = %q, want introversion", r.Traits[0].Trait)
	}
}

func TestFormatResultNoPosts(t *testing.T) {
	r := FormatResult(model.UserPredictions{UserID: "u2", Predictions: []string{}}, Full)
	if r.Dominant != "" || r.Traits != nil {
		t.Fatalf("unexpected record for no posts: %+v", r)
	}
}

func TestRecordJSONOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(FormatResult(baseResult(), Minimal))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["predictions"]; ok {
		t.Error("predictions should be omitted from minimal JSON")
	}
	if m["user_id"] != "u1" {
		t.Errorf("user_id = %v", m["user_id"])
	}
}

func TestRecordJSONKeepsEmptyPredictions(t *testing.T) {
	for _, v := range []Verbosity{Standard, Full} {
		rec := FormatResult(model.UserPredictions{UserID: "nobody"}, v)
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatal(err)
		}
		preds, ok := m["predictions"].([]any)
		if !ok || len(preds) != 0 {
			t.Errorf("verbosity %d: predictions = %#v, want empty array in %s", v, m["predictions"], data)
		}
	}
}

func TestRecordJSONInSlice(t *testing.T) {
	recs := []Record{FormatResult(baseResult(), Minimal), FormatResult(baseResult(), Standard)}
	data, err := json.Marshal(recs)
	if err != nil {
		t.Fatal(err)
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if _, ok := out[0]["predictions"]; ok {
		t.Error("minimal record should omit predictions")
	}
	if preds, _ := out[1]["predictions"].([]any); len(preds) != 3 {
		t.Errorf("standard record predictions = %v", out[1]["predictions"])
	}
}

func TestParseVerbosity(t *testing.T) {
	for in, want := range map[string]Verbosity{"minimal": Minimal, "standard": Standard, "": Standard, "full": Full} {
		got, err := ParseVerbosity(in)
		if err != nil || got != want {
			t.Errorf("ParseVerbosity(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}
