package recorder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the audit event classification.
type Kind string

const (
	KindCreate    Kind = "CREATE"
	KindUpdate    Kind = "UPDATE"
	KindDelete    Kind = "DELETE"
	KindM2MChange Kind = "M2M_CHANGE"
)

// AuditEvent is the durable audit record. It is assembled once per detected
// change, owned by a single dispatch call, and never mutated afterwards.
type AuditEvent struct {
	ID         uuid.UUID `json:"id"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`

	// ObjectRepr is the entity's human-readable form, computed before the
	// entity can become unreachable (a deleted row has no String later).
	ObjectRepr string `json:"object_repr"`

	Kind Kind `json:"event_kind"`

	// ChangedFields is the serialized delta payload, nil when the event
	// carries no field-level changes (CREATE, DELETE).
	ChangedFields json.RawMessage `json:"changed_fields,omitempty"`

	// Actor fields stay empty for anonymous or unresolvable actors.
	ActorID  string `json:"actor_id,omitempty"`
	ActorRef string `json:"actor_ref,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is the append-only write target for finished events. Implementations
// are expected to join a transaction riding the context (pkg/platform/tx) so
// the audit write shares the triggering mutation's atomic unit.
type Sink interface {
	Append(ctx context.Context, event AuditEvent) error
}

// ActorDirectory re-validates that a resolved actor still exists. Optional;
// lookups that fail are treated as "no actor", never as dispatch errors.
type ActorDirectory interface {
	Exists(ctx context.Context, actorID string) (bool, error)
}
