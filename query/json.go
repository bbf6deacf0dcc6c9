package query

import (
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a JSON descriptor. Unknown fields are rejected. Integral
// numbers decode to int64 and the rest to float64, so a descriptor loaded from
// a file fingerprints like one built in code with integer values.
func Decode(r io.Reader) (Descriptor, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("query: decode descriptor: %w", err)
	}
	if err := d.normalizeNumbers(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (d *Descriptor) normalizeNumbers() error {
	var err error
	for _, preds := range [][]Predicate{d.Wheres, d.Havings} {
		if err = normalizePredicates(preds); err != nil {
			return err
		}
	}
	for i := range d.Joins {
		if err = normalizePredicates(d.Joins[i].On); err != nil {
			return err
		}
	}
	for i := range d.Unions {
		if d.Unions[i].Query != nil {
			if err = d.Unions[i].Query.normalizeNumbers(); err != nil {
				return err
			}
		}
	}
	return normalizeSlice(d.Bindings)
}

func normalizePredicates(preds []Predicate) error {
	for i := range preds {
		v, err := normalizeValue(preds[i].Value)
		if err != nil {
			return err
		}
		preds[i].Value = v
		if err := normalizeSlice(preds[i].Values); err != nil {
			return err
		}
		if err := normalizePredicates(preds[i].Nested); err != nil {
			return err
		}
	}
	return nil
}

func normalizeSlice(values []any) error {
	for i, v := range values {
		n, err := normalizeValue(v)
		if err != nil {
			return err
		}
		values[i] = n
	}
	return nil
}

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("query: invalid number %q: %w", t.String(), err)
		}
		return f, nil
	case []any:
		return t, normalizeSlice(t)
	case map[string]any:
		for k, inner := range t {
			n, err := normalizeValue(inner)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	}
	return v, nil
}
