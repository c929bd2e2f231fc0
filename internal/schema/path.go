package schema

import "strings"

const (
	pathSep          = "__"
	memberPathMarker = "+__"
)

// Path is a parsed field-selection entry. Three shapes exist:
//
//	"name"          direct field
//	"team__name"    nested path through a to-one relation
//	"members+__name" member attribute of a to-many relation
type Path struct {
	// Raw is the entry exactly as declared.
	Raw string
	// Relation is the leading relation segment, empty for direct fields.
	Relation string
	// Attr is the trailing attribute, equal to Raw for direct fields.
	Attr string
	// ToMany reports the relation+__attr member-attribute form.
	ToMany bool
}

// ParsePath splits a selection entry into its relation and attribute parts.
func ParsePath(raw string) Path {
	if rel, attr, ok := strings.Cut(raw, memberPathMarker); ok {
		return Path{Raw: raw, Relation: rel, Attr: attr, ToMany: true}
	}
	if rel, attr, ok := strings.Cut(raw, pathSep); ok {
		return Path{Raw: raw, Relation: rel, Attr: attr}
	}
	return Path{Raw: raw, Attr: raw}
}

// IsDirect reports whether the path names a field on the type itself.
func (p Path) IsDirect() bool { return p.Relation == "" }
