package recorder

import "fmt"

// Object is the engine's view of a host model instance. Hosts adapt their
// persistence layer's rows to this interface; the engine never reflects.
type Object interface {
	fmt.Stringer

	// TypeName is the registered schema type of the instance.
	TypeName() string

	// ObjectID is the instance's primary identity as a string.
	ObjectID() string

	// Get reads one field's raw value. schema.ErrValueGone signals a value
	// that is no longer reachable (e.g. the related row was deleted).
	Get(field string) (any, error)
}

// RelatedMember is one member of a to-many relationship.
type RelatedMember struct {
	ID string
	// Attrs holds the member attributes tracked via relation+__attr paths.
	Attrs map[string]any
}

// Relational is implemented by objects whose to-many relationships the
// engine snapshots. The engine orders members by ID ascending itself,
// numerically when IDs parse as integers, so implementations need not
// pre-sort.
type Relational interface {
	RelatedMembers(field string) ([]RelatedMember, error)
}
