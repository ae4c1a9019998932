package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/fraudwatch/internal/blacklist"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/rules"
	"github.com/opensource-finance/fraudwatch/internal/scoring"
	"github.com/opensource-finance/fraudwatch/internal/worker"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = 5

// Deps are the components the handlers serve. Cache, Bus and Worker may be
// nil; without a Worker, ?async=true is refused.
type Deps struct {
	Repo            domain.Repository
	Cache           domain.Cache
	Bus             domain.EventBus
	Worker          *worker.Worker
	Evaluator       *scoring.Evaluator
	Rules           *rules.Store
	Registry        *blacklist.Registry
	Recommendations *blacklist.Service
	Thresholds      *blacklist.ThresholdStore
	Version         string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// RecordTransaction handles POST /transactions. The transaction is stored and
// scored synchronously, or queued for the worker with ?async=true.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}
	tx := req.ToTransaction(tenantID)

	if r.URL.Query().Get("async") == "true" {
		h.enqueue(w, r, tx)
		return
	}

	a, err := h.Evaluator.Record(ctx, tenantID, tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, tx *domain.Transaction) {
	if h.Worker == nil {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("async processing is not enabled"))
		return
	}
	if err := tx.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Worker.Enqueue(r.Context(), tx); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": tx.ID})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Repo.GetTransaction(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// EvaluateTransaction handles POST /transactions/{id}/evaluate. With
// ?dryRun=true the rule-level decision is returned and nothing is stored.
func (h *Handler) EvaluateTransaction(w http.ResponseWriter, r *http.Request) {
	if dry, _ := strconv.ParseBool(r.URL.Query().Get("dryRun")); dry {
		d, err := h.Evaluator.Assess(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	a, err := h.Evaluator.Evaluate(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetAssessment handles GET /assessments/{txId}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Repo.GetAssessment(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "txId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListRules handles GET /rules. ?enabled=true limits to active rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))
	list, err := h.Rules.List(r.Context(), GetTenantID(r.Context()), enabledOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Rules.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// SaveRule handles POST /rules. A body without id creates a rule; with id and
// version it stores the next version of that rule.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}

	saved, err := h.Rules.Save(r.Context(), GetTenantID(r.Context()), &rule)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if saved.Version == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

// DisableRule handles DELETE /rules/{id}. Rules are disabled, never erased.
func (h *Handler) DisableRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Rules.Disable(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// RuleSnapshot handles GET /rules/snapshot.
func (h *Handler) RuleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Rules.Snapshot(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetThresholds handles GET /blacklist/thresholds.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := h.Thresholds.Get(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SaveThresholds handles PUT /blacklist/thresholds.
func (h *Handler) SaveThresholds(w http.ResponseWriter, r *http.Request) {
	var t domain.BlacklistThresholds
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}

	saved, err := h.Thresholds.Save(r.Context(), GetTenantID(r.Context()), t, GetActorID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// RecommendationResponse adds the derived status to a recommendation.
type RecommendationResponse struct {
	*domain.Recommendation
	Status domain.RecipientStatus `json:"status"`
}

func toResponse(rec *domain.Recommendation) RecommendationResponse {
	return RecommendationResponse{Recommendation: rec, Status: rec.Status()}
}

// ListRecommendations handles GET /recommendations[?all=true].
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	recs, err := h.Recommendations.Recommendations(r.Context(), GetTenantID(r.Context()), all)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]RecommendationResponse, len(recs))
	for i, rec := range recs {
		out[i] = toResponse(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": out,
		"count":           len(out),
	})
}

// GetRecommendation handles GET /recommendations/{recipientId}.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Recommendations.Recommendation(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "recipientId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

// ReasonRequest carries an optional free-text reason.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Promote handles POST /recommendations/{recipientId}/promote.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
			return
		}
	}

	ctx := r.Context()
	entry, err := h.Recommendations.Promote(ctx, GetTenantID(ctx), chi.URLParam(r, "recipientId"), GetActorID(ctx), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListBlacklist handles GET /blacklist.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Registry.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// AddBlacklistRequest is the body of POST /blacklist.
type AddBlacklistRequest struct {
	RecipientID string `json:"recipientId"`
	Reason      string `json:"reason,omitempty"`
}

// AddBlacklist handles POST /blacklist.
func (h *Handler) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req AddBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}

	ctx := r.Context()
	entry, err := h.Registry.Add(ctx, GetTenantID(ctx), req.RecipientID, req.Reason, GetActorID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RemoveBlacklist handles DELETE /blacklist/{id}.
func (h *Handler) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Registry.Remove(ctx, GetTenantID(ctx), chi.URLParam(r, "id"), GetActorID(ctx)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.Repo != nil {
		if err := h.Repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.Cache != nil {
		if err := h.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.Bus != nil {
		if err := h.Bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.Version,
	})
}

// Ready reports whether the store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Repo != nil {
		if err := h.Repo.Ping(r.Context()); err != nil {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRule):
		return http.StatusBadRequest
	case domain.IsRetryable(err), errors.Is(err, worker.ErrNotConsumed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		slog.Warn("service unavailable", "path", r.URL.Path, "trace_id", GetTraceID(r.Context()), "error", err)
	case http.StatusInternalServerError:
		slog.Error("request failed", "path", r.URL.Path, "trace_id", GetTraceID(r.Context()), "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody(msg))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
