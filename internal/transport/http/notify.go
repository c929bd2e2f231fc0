package httptransport

import (
	"fmt"
	"net/http"
	"sort"

	"chronicle/internal/recorder"
	"chronicle/internal/schema"
	"chronicle/pkg/actorcontext"
)

// notification is the wire form of a host lifecycle callback. Hosts that
// cannot embed the recorder in-process push their mutations here instead.
type notification struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Repr   string         `json:"repr"`
	Action string         `json:"action"`
	Old    map[string]any `json:"old,omitempty"`
	New    map[string]any `json:"new,omitempty"`
	Actor  *struct {
		ID  string `json:"id"`
		Ref string `json:"ref,omitempty"`
	} `json:"actor,omitempty"`
}

func (n notification) validate() error {
	if n.Type == "" || n.ID == "" {
		return fmt.Errorf("type and id are required")
	}
	switch n.Action {
	case "create", "update", "delete":
		return nil
	default:
		return fmt.Errorf("unknown action %q", n.Action)
	}
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	var n notification
	if err := decodeJSON(r, &n); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed notification"})
		return
	}
	if err := n.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx := r.Context()
	if n.Actor != nil && n.Actor.ID != "" {
		ctx = actorcontext.WithActor(ctx, actorcontext.Actor{ID: n.Actor.ID, Ref: n.Actor.Ref})
	}

	h.ensureDescriptor(n)

	var err error
	switch n.Action {
	case "create":
		err = h.rec.AfterCreate(ctx, newNotifiedObject(n, n.New))
	case "update":
		var old recorder.Object
		if n.Old != nil {
			old = newNotifiedObject(n, n.Old)
		}
		err = h.rec.BeforeUpdate(ctx, old, newNotifiedObject(n, n.New))
	case "delete":
		err = h.rec.AfterDelete(ctx, newNotifiedObject(n, n.Old), n.ID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// ensureDescriptor keeps the registry covering every field a notification has
// ever mentioned for the type. The union is delegated to the registry's
// atomic Grow so concurrent notifications introducing distinct fields never
// lose each other's additions. Hosts with include/exclude tuning register
// their own descriptors at startup; those are extended, never narrowed.
func (h *Handler) ensureDescriptor(n notification) {
	names := make([]string, 0, len(n.Old)+len(n.New))
	for name := range n.Old {
		names = append(names, name)
	}
	for name := range n.New {
		if _, ok := n.Old[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fields := make([]schema.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, schema.Field{Name: name, Kind: schema.KindScalar})
	}
	_, _ = h.registry.Grow(n.Type, fields)
}

// notifiedObject adapts a notification's field map to the recorder's view of
// a host instance.
type notifiedObject struct {
	typeName string
	id       string
	repr     string
	values   map[string]any
}

func newNotifiedObject(n notification, values map[string]any) *notifiedObject {
	repr := n.Repr
	if repr == "" {
		repr = n.Type + ":" + n.ID
	}
	return &notifiedObject{typeName: n.Type, id: n.ID, repr: repr, values: values}
}

func (o *notifiedObject) String() string   { return o.repr }
func (o *notifiedObject) TypeName() string { return o.typeName }
func (o *notifiedObject) ObjectID() string { return o.id }

func (o *notifiedObject) Get(field string) (any, error) {
	value, ok := o.values[field]
	if !ok {
		return nil, schema.ErrValueGone
	}
	return value, nil
}
