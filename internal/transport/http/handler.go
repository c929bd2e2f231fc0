// Package httptransport exposes the read-side audit API. It is a thin layer:
// queries delegate to the store, no business logic lives here.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chronicle/internal/platform/middleware"
	"chronicle/internal/recorder"
	"chronicle/internal/schema"
)

const defaultListLimit = 50

// EventReader is the query surface the API needs from a sink.
type EventReader interface {
	ListRecent(ctx context.Context, limit int) ([]recorder.AuditEvent, error)
	ListByTarget(ctx context.Context, targetType, targetID string) ([]recorder.AuditEvent, error)
}

// HealthChecker reports a dependency's liveness.
type HealthChecker func(ctx context.Context) error

// Handler handles audit query endpoints, plus the write-side notification
// endpoint when a recorder is attached.
type Handler struct {
	logger   *slog.Logger
	events   EventReader
	health   []HealthChecker
	rec      *recorder.Recorder
	registry *schema.Registry
}

// New creates the read API handler. Health checkers are probed in order by
// the healthz endpoint.
func New(events EventReader, logger *slog.Logger, health ...HealthChecker) *Handler {
	return &Handler{logger: logger, events: events, health: health}
}

// EnableNotifications mounts the lifecycle notification endpoint backed by
// the given recorder and its schema registry.
func (h *Handler) EnableNotifications(rec *recorder.Recorder, registry *schema.Registry) {
	h.rec = rec
	h.registry = registry
}

// Router wires all public endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/events", h.handleListRecent)
	r.Get("/v1/targets/{type}/{id}/events", h.handleListByTarget)
	if h.rec != nil {
		r.Post("/v1/notify", h.handleNotify)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.health {
		if err := check(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": eventsOrEmpty(events)})
}

func (h *Handler) handleListByTarget(w http.ResponseWriter, r *http.Request) {
	targetType := chi.URLParam(r, "type")
	targetID := chi.URLParam(r, "id")

	events, err := h.events.ListByTarget(r.Context(), targetType, targetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": eventsOrEmpty(events)})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "audit query failed",
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
}

// eventsOrEmpty keeps the JSON body an array, never null.
func eventsOrEmpty(events []recorder.AuditEvent) []recorder.AuditEvent {
	if events == nil {
		return []recorder.AuditEvent{}
	}
	return events
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
