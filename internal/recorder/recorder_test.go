package recorder_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chronicle/internal/recorder"
	"chronicle/internal/recorder/mocks"
	"chronicle/internal/schema"
	"chronicle/internal/store/memory"
	"chronicle/pkg/actorcontext"
)

// fakeObject adapts a plain map to the engine's object contract.
type fakeObject struct {
	typeName string
	id       string
	repr     string
	values   map[string]any
	members  map[string][]recorder.RelatedMember
}

func (o *fakeObject) TypeName() string { return o.typeName }
func (o *fakeObject) ObjectID() string { return o.id }
func (o *fakeObject) String() string   { return o.repr }

func (o *fakeObject) Get(field string) (any, error) {
	return o.values[field], nil
}

func (o *fakeObject) RelatedMembers(field string) ([]recorder.RelatedMember, error) {
	return o.members[field], nil
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Descriptor{
		Name: "user",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "name"},
		},
	}))
	require.NoError(t, reg.Register(&schema.Descriptor{
		Name: "team",
		Fields: []schema.Field{
			{Name: "id"},
			{Name: "name"},
		},
		Relationships: []schema.Relationship{{Name: "members", Target: "user"}},
		Include:       []string{schema.Wildcard, "members+__name"},
	}))
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func user(id, name string) *fakeObject {
	return &fakeObject{
		typeName: "user",
		id:       id,
		repr:     name,
		values:   map[string]any{"id": id, "name": name},
	}
}

func TestBeforeUpdateEmitsDelta(t *testing.T) {
	sink := memory.New()
	rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))

	err := rec.BeforeUpdate(context.Background(), user("1", "Alice"), user("1", "Alicia"))
	require.NoError(t, err)

	events, err := sink.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	require.Equal(t, recorder.KindUpdate, event.Kind)
	require.Equal(t, "user", event.TargetType)
	require.Equal(t, "1", event.TargetID)
	require.Equal(t, "Alicia", event.ObjectRepr)
	require.JSONEq(t, `{"name":["Alice","Alicia"]}`, string(event.ChangedFields))
	require.Empty(t, event.ActorID)
	require.False(t, event.OccurredAt.IsZero())
}

func TestBeforeUpdateNoOpSaveEmitsNothing(t *testing.T) {
	sink := memory.New()
	rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))

	require.NoError(t, rec.BeforeUpdate(context.Background(), user("1", "Alice"), user("1", "Alice")))

	events, err := sink.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestCreateAndDeleteEvents(t *testing.T) {
	sink := memory.New()
	rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))
	ctx := context.Background()

	require.NoError(t, rec.AfterCreate(ctx, user("1", "Alice")))
	require.NoError(t, rec.AfterDelete(ctx, user("1", "Alice"), "1"))

	events, err := sink.ListByTarget(ctx, "user", "1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, recorder.KindCreate, events[0].Kind)
	require.Nil(t, events[0].ChangedFields)

	require.Equal(t, recorder.KindDelete, events[1].Kind)
	// The repr was captured from the in-memory instance even though the
	// row is already gone.
	require.Equal(t, "Alice", events[1].ObjectRepr)
}

func TestDispatchFailureIsolation(t *testing.T) {
	t.Run("swallowed by default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockSink(ctrl)
		sink.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("sink unavailable"))

		rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))
		err := rec.BeforeUpdate(context.Background(), user("1", "Alice"), user("1", "Alicia"))
		require.NoError(t, err)
	})

	t.Run("propagated when configured", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockSink(ctrl)
		sink.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("sink unavailable"))

		cfg := recorder.DefaultConfig()
		cfg.PropagateFailures = true
		rec := recorder.New(newRegistry(t), sink, nil, cfg, recorder.WithLogger(quietLogger()))

		err := rec.BeforeUpdate(context.Background(), user("1", "Alice"), user("1", "Alicia"))
		require.ErrorContains(t, err, "sink unavailable")
	})

	t.Run("panic in the sink is recovered", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mocks.NewMockSink(ctrl)
		sink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, recorder.AuditEvent) error { panic("broken sink") },
		)

		rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))
		require.NotPanics(t, func() {
			require.NoError(t, rec.AfterCreate(context.Background(), user("1", "Alice")))
		})
	})

	t.Run("unregistered type follows the same policy", func(t *testing.T) {
		rec := recorder.New(newRegistry(t), memory.New(), nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))
		ghost := &fakeObject{typeName: "ghost", id: "1", repr: "?"}
		require.NoError(t, rec.AfterCreate(context.Background(), ghost))

		cfg := recorder.DefaultConfig()
		cfg.PropagateFailures = true
		strict := recorder.New(newRegistry(t), memory.New(), nil, cfg, recorder.WithLogger(quietLogger()))
		require.ErrorContains(t, strict.AfterCreate(context.Background(), ghost), "not registered")
	})
}

func TestActorResolution(t *testing.T) {
	ctx := actorcontext.WithActor(context.Background(), actorcontext.Actor{ID: "42", Ref: "alice@example.com"})

	t.Run("stamped without a directory", func(t *testing.T) {
		sink := memory.New()
		rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(), recorder.WithLogger(quietLogger()))
		require.NoError(t, rec.AfterCreate(ctx, user("1", "Alice")))

		events, _ := sink.ListRecent(ctx, 1)
		require.Equal(t, "42", events[0].ActorID)
		require.Equal(t, "alice@example.com", events[0].ActorRef)
	})

	t.Run("re-validated against the directory", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dir := mocks.NewMockActorDirectory(ctrl)
		dir.EXPECT().Exists(gomock.Any(), "42").Return(true, nil)

		sink := memory.New()
		rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(),
			recorder.WithLogger(quietLogger()), recorder.WithActorDirectory(dir))
		require.NoError(t, rec.AfterCreate(ctx, user("1", "Alice")))

		events, _ := sink.ListRecent(ctx, 1)
		require.Equal(t, "42", events[0].ActorID)
	})

	t.Run("vanished actor leaves fields empty", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dir := mocks.NewMockActorDirectory(ctrl)
		dir.EXPECT().Exists(gomock.Any(), "42").Return(false, nil)

		sink := memory.New()
		rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(),
			recorder.WithLogger(quietLogger()), recorder.WithActorDirectory(dir))
		require.NoError(t, rec.AfterCreate(ctx, user("1", "Alice")))

		events, _ := sink.ListRecent(ctx, 1)
		require.Empty(t, events[0].ActorID)
		require.Empty(t, events[0].ActorRef)
	})

	t.Run("directory failure never blocks the event", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dir := mocks.NewMockActorDirectory(ctrl)
		dir.EXPECT().Exists(gomock.Any(), "42").Return(false, errors.New("directory down"))

		sink := memory.New()
		rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(),
			recorder.WithLogger(quietLogger()), recorder.WithActorDirectory(dir))
		require.NoError(t, rec.AfterCreate(ctx, user("1", "Alice")))

		events, _ := sink.ListRecent(ctx, 1)
		require.Empty(t, events[0].ActorID)
	})

	t.Run("re-validation can be disabled", func(t *testing.T) {
		cfg := recorder.DefaultConfig()
		cfg.CheckActorExists = false

		ctrl := gomock.NewController(t)
		dir := mocks.NewMockActorDirectory(ctrl)
		// No Exists expectation: the directory must not be consulted.

		sink := memory.New()
		rec := recorder.New(newRegistry(t), sink, nil, cfg,
			recorder.WithLogger(quietLogger()), recorder.WithActorDirectory(dir))
		require.NoError(t, rec.AfterCreate(ctx, user("1", "Alice")))

		events, _ := sink.ListRecent(ctx, 1)
		require.Equal(t, "42", events[0].ActorID)
	})
}

func TestClockOverride(t *testing.T) {
	fixed := time.Date(2026, 8, 28, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	sink := memory.New()
	rec := recorder.New(newRegistry(t), sink, nil, recorder.DefaultConfig(),
		recorder.WithLogger(quietLogger()), recorder.WithClock(func() time.Time { return fixed }))

	require.NoError(t, rec.AfterCreate(context.Background(), user("1", "Alice")))

	events, _ := sink.ListRecent(context.Background(), 1)
	require.Equal(t, fixed.UTC(), events[0].OccurredAt)
}
