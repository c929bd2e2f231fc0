// Package recorder assembles audit events from detected changes and
// dispatches them to the configured sink. Every dispatch runs behind a
// failure-isolation guard so an auditing defect cannot corrupt the business
// transaction that triggered it, unless propagation is explicitly enabled.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chronicle/internal/normalize"
	"chronicle/internal/platform/metrics"
	"chronicle/internal/schema"
	"chronicle/internal/snapshot"
	"chronicle/pkg/actorcontext"
)

// Config is the recorder's behavior surface.
type Config struct {
	// CheckActorExists re-validates the request actor against the
	// directory before stamping it on an event. Default on.
	CheckActorExists bool

	// PropagateFailures re-raises pipeline failures to the caller so the
	// triggering mutation fails alongside the audit. Default off: the
	// business operation succeeds even when auditing breaks.
	PropagateFailures bool

	// SnapshotTTL bounds relationship snapshots between lifecycle phases.
	SnapshotTTL time.Duration
}

// DefaultConfig mirrors the recognized option defaults.
func DefaultConfig() Config {
	return Config{
		CheckActorExists: true,
		SnapshotTTL:      snapshot.DefaultTTL,
	}
}

// Recorder is the change-detection and audit-event materialization engine.
// It has no scheduler of its own: every method runs synchronously in the
// caller's goroutine and participates in any transaction on the context.
type Recorder struct {
	registry  *schema.Registry
	sink      Sink
	cache     snapshot.Cache
	norm      *normalize.Normalizer
	directory ActorDirectory
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       Config
	now       func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics sets the metrics collector. Without one, counting is skipped.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithActorDirectory enables actor re-validation against an identity store.
func WithActorDirectory(d ActorDirectory) Option {
	return func(r *Recorder) { r.directory = d }
}

// WithNormalizer replaces the default value normalizer, typically to attach
// a unit converter for measurement fields.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(r *Recorder) { r.norm = n }
}

// WithClock overrides event timestamping, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New wires a Recorder. A nil cache falls back to the in-process snapshot
// cache, which is correct for single-process hosts.
func New(registry *schema.Registry, sink Sink, cache snapshot.Cache, cfg Config, opts ...Option) *Recorder {
	if cache == nil {
		cache = snapshot.NewMemoryCache()
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = snapshot.DefaultTTL
	}
	r := &Recorder{
		registry: registry,
		sink:     sink,
		cache:    cache,
		norm:     normalize.New(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("chronicle/recorder"),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// dispatch assembles the canonical event and appends it to the sink. The
// write joins any transaction riding the context, so a partially written
// event is never observable.
func (r *Recorder) dispatch(ctx context.Context, kind Kind, targetType, targetID, repr string, changed json.RawMessage) error {
	ctx, span := r.tracer.Start(ctx, "chronicle.dispatch", trace.WithAttributes(
		attribute.String("audit.kind", string(kind)),
		attribute.String("audit.target_type", targetType),
	))
	defer span.End()

	actor := r.resolveActor(ctx)
	event := AuditEvent{
		ID:            uuid.New(),
		TargetType:    targetType,
		TargetID:      targetID,
		ObjectRepr:    repr,
		Kind:          kind,
		ChangedFields: changed,
		ActorID:       actor.ID,
		ActorRef:      actor.Ref,
		OccurredAt:    r.now().UTC(),
	}

	if err := r.sink.Append(ctx, event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("append audit event: %w", err)
	}
	r.metrics.IncRecorded(string(kind))
	return nil
}

// resolveActor reads the request actor and optionally re-validates it.
// Nothing here may raise past this boundary: every failure, including a
// panicking directory, degrades to an anonymous event.
func (r *Recorder) resolveActor(ctx context.Context) (actor actorcontext.Actor) {
	defer func() {
		if recover() != nil {
			actor = actorcontext.Actor{}
		}
	}()

	found, ok := actorcontext.From(ctx)
	if !ok {
		return actorcontext.Actor{}
	}
	if r.cfg.CheckActorExists && r.directory != nil {
		exists, err := r.directory.Exists(ctx, found.ID)
		if err != nil || !exists {
			return actorcontext.Actor{}
		}
	}
	if found.Ref == "" {
		found.Ref = found.ID
	}
	return found
}

// guard is the single failure-isolation point of the pipeline. Errors and
// panics from fn are logged with defensively built entity context, counted,
// and swallowed unless propagation is enabled.
func (r *Recorder) guard(ctx context.Context, obj Object, op string, fn func(context.Context) error) error {
	err := runProtected(ctx, fn)
	if err == nil {
		return nil
	}

	r.metrics.IncDispatchFailure()
	r.logger.ErrorContext(ctx, "audit event dispatch failed",
		"op", op,
		"entity", safeRepr(obj),
		"entity_id", safeID(obj),
		"error", err,
	)

	if r.cfg.PropagateFailures {
		return err
	}
	r.metrics.IncFailureSwallowed()
	return nil
}

func runProtected(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("audit pipeline panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// safeRepr and safeID build log context without letting a broken String or
// identity accessor turn error reporting into a second failure.
func safeRepr(obj Object) (repr string) {
	defer func() { _ = recover() }()
	if obj == nil {
		return ""
	}
	return obj.String()
}

func safeID(obj Object) (id string) {
	defer func() { _ = recover() }()
	if obj == nil {
		return ""
	}
	return obj.ObjectID()
}
