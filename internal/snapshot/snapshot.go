// Package snapshot bridges the two lifecycle callbacks of a relationship
// mutation. The "before" callback captures the relationship's member state
// under a fully-qualified key; the paired "after" callback consumes it. A
// short TTL keeps entries from outliving aborted operations.
package snapshot

import (
	"context"
	"strings"
	"time"
)

// DefaultTTL bridges a pre/post lifecycle pair without letting orphaned
// entries (an after callback that never fires) accumulate.
const DefaultTTL = 30 * time.Second

// Key fully qualifies one captured relationship path. Concurrent operations
// on different entities or fields never collide because every component
// participates in the key.
type Key struct {
	TypeName   string
	InstanceID string
	FieldName  string
	Phase      string
}

// NormalizePhase strips the pre_/post_ lifecycle prefix so the capture and
// consume sides of one logical operation agree on the same key.
func NormalizePhase(phase string) string {
	phase = strings.TrimPrefix(phase, "pre_")
	return strings.TrimPrefix(phase, "post_")
}

// Normalized returns the key with its phase normalized.
func (k Key) Normalized() Key {
	k.Phase = NormalizePhase(k.Phase)
	return k
}

func (k Key) String() string {
	k = k.Normalized()
	return strings.Join([]string{k.TypeName, k.InstanceID, k.FieldName, k.Phase}, ":")
}

// Cache stores member-value lists between lifecycle phases.
//
// Consume is best-effort: a missing or expired entry yields (nil, false),
// never an error a caller has to branch on. Implementations must support
// concurrent capture/consume on independent keys.
type Cache interface {
	Capture(ctx context.Context, key Key, values []string, ttl time.Duration) error
	Consume(ctx context.Context, key Key) ([]string, bool)
}
