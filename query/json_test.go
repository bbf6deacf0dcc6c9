package query

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode_Numbers(t *testing.T) {
	src := `{
		"entity": "user",
		"from": "user",
		"wheres": [
			{"type": "basic", "column": "age", "operator": ">", "value": 18, "boolean": "and"},
			{"type": "in", "column": "score", "values": [1.5, 2], "boolean": "and"},
			{"type": "nested", "boolean": "or", "nested": [
				{"type": "basic", "column": "meta", "operator": "=", "value": {"n": 3, "tags": [4]}, "boolean": "and"}
			]}
		],
		"bindings": [18, "x", true, null]
	}`

	got, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := New("user").
		Where("age", ">", int64(18)).
		WhereIn("score", 1.5, int64(2))
	want.Wheres = append(want.Wheres, Predicate{
		Type:    PredicateNested,
		Boolean: BooleanOr,
		Nested: []Predicate{{
			Type: PredicateBasic, Column: "meta", Operator: "=", Boolean: BooleanAnd,
			Value: map[string]any{"n": int64(3), "tags": []any{int64(4)}},
		}},
	})
	want.Bindings = []any{int64(18), "x", true, nil}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `{"entity": "user", "table": "users"}`},
		{"malformed", `{"entity": `},
		{"wrong type", `{"entity": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.src)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
