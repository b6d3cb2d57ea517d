// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gatherly/rewards/internal/ledger"
	"github.com/gatherly/rewards/internal/model"
	"github.com/gatherly/rewards/internal/repository"
	"github.com/gatherly/rewards/internal/roster"
	"github.com/gatherly/rewards/internal/service"
	"github.com/go-chi/chi/v5"
)

// Handler holds all HTTP handlers for the rewards API.
type Handler struct {
	events  *service.EventService
	rewards *service.RewardService
}

// New constructs a Handler.
func New(events *service.EventService, rewards *service.RewardService) *Handler {
	return &Handler{events: events, rewards: rewards}
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

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondError maps typed business errors to stable HTTP statuses. Every
// business-rule error keeps its descriptive message; nothing is swallowed
// into a generic failure.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, roster.ErrEventFull),
		errors.Is(err, roster.ErrEventClosed),
		errors.Is(err, roster.ErrAlreadyRegistered),
		errors.Is(err, roster.ErrNotRegistered),
		errors.Is(err, roster.ErrAlreadyCheckedIn),
		errors.Is(err, repository.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, roster.ErrInvalidCheckIn):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CancelEvent handles DELETE /events/{id}
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.CancelEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ListRoster handles GET /events/{id}/roster
func (h *Handler) ListRoster(w http.ResponseWriter, r *http.Request) {
	entries, err := h.events.ListRoster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Roster handlers ──────────────────────────────────────────────────────────

// JoinEvent handles POST /events/{id}/join
func (h *Handler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	var req model.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.rewards.JoinEvent(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// LeaveEvent handles POST /events/{id}/leave
func (h *Handler) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	var req model.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.rewards.LeaveEvent(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CheckIn handles POST /events/{id}/checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.rewards.CheckIn(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Token)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Points handlers ──────────────────────────────────────────────────────────

// Earn handles POST /users/{id}/points/earn
func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	h.ledgerWrite(w, r, h.rewards.Earn)
}

// Spend handles POST /users/{id}/points/spend
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	h.ledgerWrite(w, r, h.rewards.Spend)
}

// Bonus handles POST /users/{id}/points/bonus
func (h *Handler) Bonus(w http.ResponseWriter, r *http.Request) {
	h.ledgerWrite(w, r, h.rewards.Bonus)
}

// Penalty handles POST /users/{id}/points/penalty
func (h *Handler) Penalty(w http.ResponseWriter, r *http.Request) {
	h.ledgerWrite(w, r, h.rewards.Penalty)
}

// Refund handles POST /users/{id}/points/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.ledgerWrite(w, r, h.rewards.Refund)
}

func (h *Handler) ledgerWrite(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID string, req model.SpendRequest) (*model.BalanceResult, error)) {
	var req model.SpendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := op(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBalance handles GET /users/{id}/points
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := h.rewards.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GetHistory handles GET /users/{id}/points/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	f := historyFilterFromQuery(r)
	txns, err := h.rewards.GetHistory(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		respondError(w, err)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// GetMonthlyTotals handles GET /users/{id}/points/monthly
func (h *Handler) GetMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.rewards.GetMonthlyTotals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if totals == nil {
		totals = []model.MonthlyTotal{}
	}
	writeJSON(w, http.StatusOK, totals)
}

func historyFilterFromQuery(r *http.Request) model.HistoryFilter {
	q := r.URL.Query()
	f := model.HistoryFilter{
		Type:   q.Get("type"),
		Source: q.Get("source"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = t
		}
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	return f
}

// ─── Unlock handlers ──────────────────────────────────────────────────────────

// EvaluateUnlocks handles POST /users/{id}/unlocks/evaluate
func (h *Handler) EvaluateUnlocks(w http.ResponseWriter, r *http.Request) {
	newly, err := h.rewards.EvaluateUnlocks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if newly == nil {
		newly = []model.Definition{}
	}
	writeJSON(w, http.StatusOK, newly)
}

// ListUnlocked handles GET /users/{id}/unlocks
func (h *Handler) ListUnlocked(w http.ResponseWriter, r *http.Request) {
	items, err := h.rewards.ListUnlocked(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
