package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"chronicle/internal/delta"
	"chronicle/internal/schema"
	"chronicle/internal/snapshot"
)

// Phase names the relationship-mutation lifecycle point, matching the host's
// pre/post callback pairing.
type Phase string

const (
	PhasePreAdd     Phase = "pre_add"
	PhasePostAdd    Phase = "post_add"
	PhasePreRemove  Phase = "pre_remove"
	PhasePostRemove Phase = "post_remove"
	PhasePreClear   Phase = "pre_clear"
	PhasePostClear  Phase = "post_clear"
)

// IsPre reports whether the phase is the "before" half of a pair.
func (p Phase) IsPre() bool { return strings.HasPrefix(string(p), "pre_") }

// Action is the phase with its lifecycle prefix stripped.
func (p Phase) Action() string { return snapshot.NormalizePhase(string(p)) }

// BeforeUpdate computes the field delta between the stored and the incoming
// state and dispatches an UPDATE event. A save that changes nothing on the
// selected fields emits no event at all.
func (r *Recorder) BeforeUpdate(ctx context.Context, old, cur Object) error {
	return r.guard(ctx, cur, "before_update", func(ctx context.Context) error {
		desc, ok := r.registry.Lookup(cur.TypeName())
		if !ok {
			return fmt.Errorf("type %q not registered", cur.TypeName())
		}
		sel := schema.ResolveSelection(desc)

		var oldSrc delta.Source
		if old != nil {
			oldSrc = old
		}
		d := delta.Compute(oldSrc, cur, desc, sel, r.norm)
		if d == nil {
			return nil
		}
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal changed fields: %w", err)
		}
		return r.dispatch(ctx, KindUpdate, desc.Name, cur.ObjectID(), safeRepr(cur), payload)
	})
}

// AfterCreate dispatches a CREATE event for a freshly persisted instance.
func (r *Recorder) AfterCreate(ctx context.Context, obj Object) error {
	return r.guard(ctx, obj, "after_create", func(ctx context.Context) error {
		desc, ok := r.registry.Lookup(obj.TypeName())
		if !ok {
			return fmt.Errorf("type %q not registered", obj.TypeName())
		}
		return r.dispatch(ctx, KindCreate, desc.Name, obj.ObjectID(), safeRepr(obj), nil)
	})
}

// AfterDelete dispatches a DELETE event. The identity is passed explicitly
// because the row is already gone; the repr comes from the in-memory
// instance captured before deletion.
func (r *Recorder) AfterDelete(ctx context.Context, obj Object, objectID string) error {
	return r.guard(ctx, obj, "after_delete", func(ctx context.Context) error {
		desc, ok := r.registry.Lookup(obj.TypeName())
		if !ok {
			return fmt.Errorf("type %q not registered", obj.TypeName())
		}
		return r.dispatch(ctx, KindDelete, desc.Name, objectID, safeRepr(obj), nil)
	})
}

// RelationshipChanged is the m2m lifecycle entry point. relatedType names
// the model on the far side of the notification; the local field is
// resolved through the owning type's relationship table.
//
// pre_add/pre_remove capture the current member state into the snapshot
// cache; post_add/post_remove consume it and dispatch the relationship
// delta. A bulk clear bypasses the cache entirely: pre_clear is a no-op and
// post_clear reports empty membership on both sides by convention.
func (r *Recorder) RelationshipChanged(ctx context.Context, phase Phase, relatedType string, obj Object, pks []string) error {
	return r.guard(ctx, obj, "relationship_changed", func(ctx context.Context) error {
		desc, ok := r.registry.Lookup(obj.TypeName())
		if !ok {
			return fmt.Errorf("type %q not registered", obj.TypeName())
		}
		rel, ok := desc.RelationshipTo(relatedType)
		if !ok {
			return fmt.Errorf("type %q has no relationship to %q", desc.Name, relatedType)
		}
		sel := schema.ResolveSelection(desc)

		switch {
		case phase == PhasePreClear:
			return nil
		case phase == PhasePostClear:
			payload, err := clearedPayload(rel, sel)
			if err != nil {
				return err
			}
			return r.dispatch(ctx, KindM2MChange, desc.Name, obj.ObjectID(), safeRepr(obj), payload)
		case phase.IsPre():
			return r.captureRelationship(ctx, phase, obj, rel, sel)
		default:
			payload, err := r.relationshipDelta(ctx, phase, obj, rel, sel)
			if err != nil {
				return err
			}
			return r.dispatch(ctx, KindM2MChange, desc.Name, obj.ObjectID(), safeRepr(obj), payload)
		}
	})
}

// trackedPaths is the ordered list of snapshot paths for a relationship:
// membership itself first, then the declared member-attribute paths.
func trackedPaths(rel schema.Relationship, sel schema.Selection) []schema.Path {
	paths := []schema.Path{{Raw: rel.Name, Relation: rel.Name, ToMany: true}}
	members := sel.MemberPaths(rel.Name)
	sort.Slice(members, func(i, j int) bool { return members[i].Raw < members[j].Raw })
	return append(paths, members...)
}

// memberValues enumerates the relationship's current state for one tracked
// path: the member IDs for the membership path, or the attribute values
// across members (ID order) for a relation+__attr path.
func memberValues(members []RelatedMember, path schema.Path) []string {
	values := make([]string, 0, len(members))
	for _, m := range members {
		if path.Raw == path.Relation {
			values = append(values, m.ID)
			continue
		}
		values = append(values, fmt.Sprintf("%v", m.Attrs[path.Attr]))
	}
	return values
}

func currentMembers(obj Object, field string) ([]RelatedMember, error) {
	relational, ok := obj.(Relational)
	if !ok {
		return nil, fmt.Errorf("object %q does not enumerate relationships", obj.TypeName())
	}
	members, err := relational.RelatedMembers(field)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s members: %w", field, err)
	}
	sort.Slice(members, func(i, j int) bool { return idLess(members[i].ID, members[j].ID) })
	return members, nil
}

// idLess orders primary keys ascending: numerically when both sides parse as
// integers ("2" before "10"), lexicographically otherwise.
func idLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// captureRelationship writes the "before" state of every tracked path under
// the phase-normalized key so the paired post callback can read it back.
func (r *Recorder) captureRelationship(ctx context.Context, phase Phase, obj Object, rel schema.Relationship, sel schema.Selection) error {
	members, err := currentMembers(obj, rel.Name)
	if err != nil {
		return err
	}
	for _, path := range trackedPaths(rel, sel) {
		key := snapshot.Key{
			TypeName:   obj.TypeName(),
			InstanceID: obj.ObjectID(),
			FieldName:  path.Raw,
			Phase:      string(phase),
		}
		if err := r.cache.Capture(ctx, key, memberValues(members, path), r.cfg.SnapshotTTL); err != nil {
			return err
		}
	}
	return nil
}

// relationshipDelta pairs each tracked path's snapshot with its current
// state. A missing snapshot (expired, evicted, process restarted between
// phases) reports "no prior value" rather than failing.
func (r *Recorder) relationshipDelta(ctx context.Context, phase Phase, obj Object, rel schema.Relationship, sel schema.Selection) (json.RawMessage, error) {
	members, err := currentMembers(obj, rel.Name)
	if err != nil {
		return nil, err
	}

	var entries []relationshipEntry
	for _, path := range trackedPaths(rel, sel) {
		key := snapshot.Key{
			TypeName:   obj.TypeName(),
			InstanceID: obj.ObjectID(),
			FieldName:  path.Raw,
			Phase:      string(phase),
		}
		old, ok := r.cache.Consume(ctx, key)
		if ok {
			r.metrics.IncSnapshotHit()
		} else {
			r.metrics.IncSnapshotMiss()
		}
		entries = append(entries, relationshipEntry{
			path: path.Raw,
			old:  old,
			new:  memberValues(members, path),
		})
	}
	return marshalRelationshipEntries(entries)
}

func clearedPayload(rel schema.Relationship, sel schema.Selection) (json.RawMessage, error) {
	var entries []relationshipEntry
	for _, path := range trackedPaths(rel, sel) {
		entries = append(entries, relationshipEntry{path: path.Raw})
	}
	return marshalRelationshipEntries(entries)
}

// relationshipEntry is one tracked path's (old, new) member-value pair in
// the wire payload {"path": [old_values, new_values]}.
type relationshipEntry struct {
	path     string
	old, new []string
}

func marshalRelationshipEntries(entries []relationshipEntry) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.path)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		pair, err := json.Marshal([][]string{emptyNotNull(e.old), emptyNotNull(e.new)})
		if err != nil {
			return nil, err
		}
		buf.Write(pair)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// emptyNotNull keeps "no members" distinct from JSON null in the payload.
func emptyNotNull(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
