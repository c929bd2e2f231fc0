// Package schema holds the per-type descriptors the audit engine consults
// instead of runtime reflection. Hosts register a Descriptor for every model
// they want audited; the engine never inspects Go types directly.
package schema

import "errors"

// ErrValueGone is returned by host objects when a field can no longer be
// read, typically because a related row was deleted between the mutation and
// the audit pass. Readers fall back to the field default instead of failing.
var ErrValueGone = errors.New("schema: value no longer reachable")

// FieldKind classifies how a field's value is normalized before comparison.
type FieldKind int

const (
	// KindScalar covers plain values compared by their string form.
	KindScalar FieldKind = iota
	// KindTemporal marks timestamp fields that need timezone normalization.
	KindTemporal
	// KindMeasurement marks unit-carrying values converted to the field's
	// canonical unit when a converter is configured.
	KindMeasurement
	// KindRelation marks to-one relation fields (stored as the related ID).
	KindRelation
)

// Field describes one auditable field in declaration order.
type Field struct {
	Name string
	Kind FieldKind

	// Default is used when a read fails with ErrValueGone. HasDefault
	// distinguishes a declared zero default from no default at all.
	Default    any
	HasDefault bool

	// Unit is the canonical unit for KindMeasurement fields, e.g. "kg".
	Unit string
}

// Relationship describes a to-many relation so the engine can resolve the
// local field name from the other side of a relationship-change notification.
type Relationship struct {
	// Name is the field name on the owning type, e.g. "members".
	Name string
	// Target is the registered type name of the related model.
	Target string
}

// Descriptor is the static audit schema for one model type.
type Descriptor struct {
	// Name is the stable type identifier used on audit events.
	Name string

	// Fields in declaration order. Delta output preserves this order.
	Fields []Field

	Relationships []Relationship

	// Include seeds field selection. Empty or containing Wildcard means
	// every direct field. Entries may use the parent__child path syntax and
	// the relation+__attr member-attribute syntax.
	Include []string

	// Exclude is subtracted from the selection unconditionally.
	Exclude []string
}

// Wildcard in an include list expands to all direct fields.
const Wildcard = "*"

// Field returns the declared field with the given name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RelationshipTo resolves the local relation field pointing at the given
// type. Relationship-change notifications identify the related model, not
// the local field, so the engine looks the field name up here.
func (d *Descriptor) RelationshipTo(target string) (Relationship, bool) {
	for _, r := range d.Relationships {
		if r.Target == target {
			return r, true
		}
	}
	return Relationship{}, false
}
