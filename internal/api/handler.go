package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/talon/internal/analysis"
	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/policy"
)

// analysisCacheTTL bounds how long completed analyses stay in cache.
const analysisCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *policy.Engine
	pipeline *analysis.Pipeline
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *policy.Engine, pipeline *analysis.Pipeline, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		pipeline: pipeline,
		version:  version,
	}
}

// Analyze handles POST /analyze requests.
//
// The default path runs the detection pipeline synchronously and returns
// the full analysis. With ?async=true the loan book is published to the
// event bus instead and a 202 with the pre-assigned analysis ID comes
// back immediately; a worker picks the run up and persists the result
// under that ID.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Loans) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "loans must not be empty",
		})
		return
	}
	for i, loan := range req.Loans {
		if loan.LenderID == "" || loan.BorrowerID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "lenderId and borrowerId are required on loan " + strconv.Itoa(i),
			})
			return
		}
		if loan.Amount < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "amount must not be negative on loan " + strconv.Itoa(i),
			})
			return
		}
	}

	if r.URL.Query().Get("async") == "true" {
		h.analyzeAsync(w, r, tenantID, &req)
		return
	}

	result, err := h.pipeline.Run(ctx, tenantID, req.Loans, req.Params)
	if err != nil {
		slog.Error("analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to save analysis", "id", result.ID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetAnalysis(ctx, tenantID, result, analysisCacheTTL); err != nil {
			slog.Warn("failed to cache analysis", "id", result.ID, "error", err)
		}
	}

	h.publishResult(r, tenantID, result)

	writeJSON(w, http.StatusOK, result)
}

// analyzeAsync pre-assigns the analysis ID, caches a QUEUED stub so polls
// resolve immediately, and publishes the loan book for a worker.
func (h *Handler) analyzeAsync(w http.ResponseWriter, r *http.Request, tenantID string, req *domain.AnalyzeRequest) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	analysisID := uuid.New().String()

	async := domain.AsyncAnalyzeRequest{
		AnalysisID: analysisID,
		Loans:      req.Loans,
	}
	if req.Params != nil {
		async.Params = *req.Params
	}

	payload, err := json.Marshal(async)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode analysis request",
		})
		return
	}

	if h.cache != nil {
		stub := &domain.Analysis{
			ID:        analysisID,
			TenantID:  tenantID,
			Status:    domain.StatusQueued,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.cache.SetAnalysis(ctx, tenantID, stub, analysisCacheTTL); err != nil {
			slog.Warn("failed to cache queued stub", "id", analysisID, "error", err)
		}
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisRequested, payload); err != nil {
		slog.Error("failed to publish analysis request", "id", analysisID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue analysis",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, domain.AnalyzeAccepted{
		AnalysisID: analysisID,
		TenantID:   tenantID,
		Status:     domain.StatusQueued,
	})
}

// publishResult emits the completion event and one alert event per policy
// match. Publish failures are logged, never surfaced to the caller.
func (h *Handler) publishResult(r *http.Request, tenantID string, result *domain.Analysis) {
	if h.bus == nil {
		return
	}
	ctx := r.Context()

	if payload, err := json.Marshal(result.Summary); err == nil {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
			slog.Warn("failed to publish completion event", "id", result.ID, "error", err)
		}
	}

	for _, alert := range result.Alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "policy", alert.PolicyID, "error", err)
		}
	}
}

// GetAnalysis retrieves an analysis by ID, cache first.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetAnalysis(ctx, tenantID, analysisID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get analysis", "id", analysisID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetAnalysis(ctx, tenantID, a, analysisCacheTTL); err != nil {
			slog.Warn("failed to cache analysis", "id", a.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAnalyses returns the most recent analyses for the tenant.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	analyses, err := h.repo.ListAnalyses(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list analyses", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreatePolicyRequest is the request body for creating an alert policy.
type CreatePolicyRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Severity    domain.Severity `json:"severity"`
	Enabled     bool            `json:"enabled"`
}

// ListPolicies returns all policies stored for the tenant.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	policies, err := h.repo.ListPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	})
}

// GetPolicy retrieves a policy by ID.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	p, err := h.repo.GetPolicy(ctx, tenantID, policyID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get policy", "id", policyID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "policy not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// CreatePolicy validates the CEL expression, persists the policy for the
// tenant, and reports back. Changes apply after POST /policies/reload.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	switch severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be one of low, medium, high, critical",
		})
		return
	}

	cfg := &domain.PolicyConfig{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
	}

	if h.engine != nil {
		if err := h.engine.ValidatePolicy(cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, tenantID, cfg); err != nil {
			slog.Error("failed to save policy", "id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	slog.Info("policy created", "id", cfg.ID, "name", cfg.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"policy":  cfg,
		"message": "Policy created. Call POST /policies/reload to apply changes.",
	})
}

// DeletePolicy removes a policy and reloads the engine so the change takes
// effect immediately.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeletePolicy(ctx, tenantID, policyID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to delete policy", "id", policyID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "policy not found",
		})
		return
	}

	if h.engine != nil {
		remaining, err := h.repo.ListPolicies(ctx, tenantID)
		if err != nil {
			slog.Error("failed to reload policies after delete", "error", err)
		} else if err := h.engine.ReloadPolicies(remaining); err != nil {
			slog.Error("failed to reload engine after delete", "error", err)
		}
	}

	slog.Info("policy deleted", "id", policyID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Policy deleted and engine reloaded.",
	})
}

// ReloadPolicies reloads the tenant's stored policies into the engine.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	policies, err := h.repo.ListPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.engine.ReloadPolicies(policies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded", "tenant_id", tenantID, "count", len(policies))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   len(policies),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
