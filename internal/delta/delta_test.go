package delta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chronicle/internal/normalize"
	"chronicle/internal/schema"
)

// mapSource backs tests with a plain field map; absent keys read as null and
// goneFields simulate vanished related rows.
type mapSource struct {
	values map[string]any
	gone   map[string]bool
}

func (s mapSource) Get(field string) (any, error) {
	if s.gone[field] {
		return nil, schema.ErrValueGone
	}
	return s.values[field], nil
}

func accountDescriptor() *schema.Descriptor {
	return &schema.Descriptor{
		Name: "account",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "name"},
			{Name: "plan", Default: "free", HasDefault: true},
			{Name: "updated_at", Kind: schema.KindTemporal},
		},
	}
}

func TestComputeNoChanges(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	state := mapSource{values: map[string]any{"id": 1, "name": "Alice", "plan": "pro"}}
	require.Nil(t, Compute(state, state, desc, sel, n))
}

func TestComputeSingleFieldChange(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	old := mapSource{values: map[string]any{"id": 1, "name": "Alice", "plan": "pro"}}
	cur := mapSource{values: map[string]any{"id": 1, "name": "Alicia", "plan": "pro"}}

	d := Compute(old, cur, desc, sel, n)
	require.NotNil(t, d)
	require.Equal(t, 1, d.Len())

	change, ok := d.Get("name")
	require.True(t, ok)
	require.Equal(t, normalize.String("Alice"), change.Old)
	require.Equal(t, normalize.String("Alicia"), change.New)
}

func TestComputeDeclarationOrder(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	old := mapSource{values: map[string]any{"id": 1, "name": "a", "plan": "free"}}
	cur := mapSource{values: map[string]any{"id": 1, "name": "b", "plan": "pro"}}

	d := Compute(old, cur, desc, sel, n)
	require.NotNil(t, d)

	var order []string
	for _, c := range d.Changes() {
		order = append(order, c.Field)
	}
	require.Equal(t, []string{"name", "plan"}, order)
}

func TestComputeRespectsSelection(t *testing.T) {
	desc := accountDescriptor()
	desc.Exclude = []string{"plan"}
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	old := mapSource{values: map[string]any{"plan": "free"}}
	cur := mapSource{values: map[string]any{"plan": "pro"}}
	require.Nil(t, Compute(old, cur, desc, sel, n))
}

func TestComputeMissingOldState(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	cur := mapSource{values: map[string]any{"name": "Alice"}}
	d := Compute(nil, cur, desc, sel, n)
	require.NotNil(t, d)

	change, ok := d.Get("name")
	require.True(t, ok)
	require.Equal(t, normalize.Null, change.Old)
	require.Equal(t, normalize.String("Alice"), change.New)
}

func TestComputeVanishedValueFallsBackToDefault(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	// The old row's relation vanished; the declared default stands in, so a
	// new state already at the default reports no change.
	old := mapSource{values: map[string]any{"id": 1}, gone: map[string]bool{"plan": true}}
	cur := mapSource{values: map[string]any{"id": 1, "plan": "free"}}
	require.Nil(t, Compute(old, cur, desc, sel, n))

	// A field without a default reads as null instead of erroring.
	old = mapSource{values: map[string]any{"id": 1, "name": "x"}, gone: map[string]bool{"name": true}}
	cur = mapSource{values: map[string]any{"id": 1, "name": "x"}}
	d := Compute(old, cur, desc, sel, n)
	require.NotNil(t, d)
	change, _ := d.Get("name")
	require.Equal(t, normalize.Null, change.Old)
}

func TestComputeTemporalZoneInsensitive(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	instant := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	old := mapSource{values: map[string]any{"updated_at": instant}}
	cur := mapSource{values: map[string]any{"updated_at": instant.In(time.FixedZone("CEST", 2*3600))}}
	require.Nil(t, Compute(old, cur, desc, sel, n))
}

func TestDeltaJSON(t *testing.T) {
	desc := accountDescriptor()
	sel := schema.ResolveSelection(desc)
	n := normalize.New()

	old := mapSource{values: map[string]any{"name": "Alice", "plan": "free"}}
	cur := mapSource{values: map[string]any{"name": "Alicia"}}

	d := Compute(old, cur, desc, sel, n)
	require.NotNil(t, d)

	raw, err := d.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"name":["Alice","Alicia"],"plan":["free",null]}`, string(raw))

	// Declaration order survives serialization.
	require.Equal(t, `{"name":["Alice","Alicia"],"plan":["free",null]}`, string(raw))
}
