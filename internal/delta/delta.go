// Package delta compares the prior and current state of an object field by
// field and produces the minimal description of what changed.
package delta

import (
	"bytes"
	"encoding/json"

	"chronicle/internal/normalize"
	"chronicle/internal/schema"
)

// Source is the minimal read view of an object state. Get returns
// schema.ErrValueGone when a field can no longer be resolved.
type Source interface {
	Get(field string) (any, error)
}

// Change is one field's (old, new) pair in normalized form.
type Change struct {
	Field string
	Old   normalize.Value
	New   normalize.Value
}

// Delta is an ordered set of changes. Order follows the descriptor's field
// declaration order, not the selection, so output is reproducible.
type Delta struct {
	changes []Change
}

func (d *Delta) Len() int          { return len(d.changes) }
func (d *Delta) Changes() []Change { return d.changes }

// Get returns the change recorded for a field.
func (d *Delta) Get(field string) (Change, bool) {
	for _, c := range d.changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

// MarshalJSON renders the wire form {"field": [old, new]}, preserving
// declaration order and mapping the null sentinel to JSON null.
func (d *Delta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range d.changes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		pair, err := json.Marshal([]any{valueJSON(c.Old), valueJSON(c.New)})
		if err != nil {
			return nil, err
		}
		buf.Write(pair)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func valueJSON(v normalize.Value) any {
	if !v.Valid {
		return nil
	}
	return v.S
}

// Compute diffs two states over the selected fields of a descriptor.
//
// A field is recorded only when its normalized old and new values differ; a
// diff with zero entries collapses to nil so callers can cheaply test "did
// anything change" and skip the audit event for no-op saves. A nil old
// state reads as null for every field.
func Compute(old, new Source, desc *schema.Descriptor, sel schema.Selection, n *normalize.Normalizer) *Delta {
	var changes []Change
	for _, field := range desc.Fields {
		if !sel.Contains(field.Name) {
			continue
		}
		oldVal := readField(old, field, n)
		newVal := readField(new, field, n)
		if oldVal != newVal {
			changes = append(changes, Change{Field: field.Name, Old: oldVal, New: newVal})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return &Delta{changes: changes}
}

// readField resolves one field from a state, recovering transient read
// failures with the declared default and treating everything unreadable as
// null. Lookup failures never propagate past this point.
func readField(src Source, field schema.Field, n *normalize.Normalizer) normalize.Value {
	if src == nil {
		return normalize.Null
	}
	raw, err := src.Get(field.Name)
	if err != nil {
		if field.HasDefault {
			return n.Normalize(field.Default, field)
		}
		return normalize.Null
	}
	return n.Normalize(raw, field)
}
