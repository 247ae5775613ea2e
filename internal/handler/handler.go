// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/logging"
	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/Shivanand-hulikatti/orgevents/internal/service"
	"github.com/go-chi/chi/v5"
)

// EventHandler holds all HTTP handlers for the events API.
type EventHandler struct {
	svc *service.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// writeServiceError maps a command error onto an HTTP status and envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		if logger := logging.FromContext(r.Context()); logger != nil {
			logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusFor(svcErr.Kind), model.ErrorResponse{
		Error:  svcErr.Error(),
		Kind:   string(svcErr.Kind),
		Code:   svcErr.Code,
		Issues: svcErr.Issues,
	})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindValidation:
		return http.StatusUnprocessableEntity
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict, service.KindEventFull, service.KindDuplicateRegistration, service.KindInvalidStatus:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeDecodeError reports a body that did not decode. A value of the wrong
// JSON type for a known field is a field issue, not a malformed request.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeServiceError(w, r, &service.Error{
			Kind:   service.KindValidation,
			Issues: []model.FieldIssue{{Field: typeErr.Field, Issue: service.IssueInvalidFormat}},
		})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), ActorFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?page=&page_size=
// Returns a page of upcoming published events.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListUpcoming(r.Context(), ActorFrom(r.Context()), queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// PublishEvent handles POST /events/{id}/publish
func (h *EventHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.PublishEvent(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateCapacity handles PUT /events/{id}/capacity
func (h *EventHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCapacityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	event, err := h.svc.UpdateCapacity(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Capacity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdatePricing handles PUT /events/{id}/pricing
func (h *EventHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req model.UpdatePricingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	event, err := h.svc.UpdatePricing(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ─── Ledger ───────────────────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
// Performs a concurrency-safe registration for the specified event.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	reg, err := h.svc.Register(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// CancelRegistration handles DELETE /events/{id}/register?member_id=
func (h *EventHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	err := h.svc.CancelRegistration(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), r.URL.Query().Get("member_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListRegistrations(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Operations ───────────────────────────────────────────────────────────────

type runRemindersRequest struct {
	Now *time.Time `json:"now"`
}

// RunReminders handles POST /reminders/run
// An optional "now" in the body pins the scan's reference time.
func (h *EventHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	var req runRemindersRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	var now time.Time
	if req.Now != nil {
		now = *req.Now
	}

	actor := ActorFrom(r.Context())
	sent, err := h.svc.RunReminders(r.Context(), actor, now)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ReminderRun{TenantID: actor.TenantID, Sent: sent})
}

// AuditTrail handles GET /audit
func (h *EventHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.AuditTrail(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
