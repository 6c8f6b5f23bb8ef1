// Package worker provides asynchronous analysis processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/talon/internal/analysis"
	"github.com/opensource-finance/talon/internal/domain"
)

// Worker consumes queued loan-book analyses from the EventBus, runs the
// detection pipeline, and persists results under the pre-assigned ID.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	pipeline *analysis.Pipeline

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	alerted   atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = default tenant only).
	TenantIDs []string

	// Concurrency bounds simultaneous analysis runs across all subscriptions.
	Concurrency int
}

// cacheTTL bounds how long worker-produced analyses stay cached.
const cacheTTL = 15 * time.Minute

// NewWorker creates a new async worker. Cache is optional.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, pipeline *analysis.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the analysis-requested topic for each configured tenant.
func (w *Worker) Start(cfg Config) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	w.sem = make(chan struct{}, concurrency)

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{"default"}
	}

	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(tenants),
		"concurrency", concurrency,
	)

	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// processRequest runs one queued analysis. The semaphore bounds concurrent
// pipeline runs so a burst of large loan books cannot exhaust the host.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	var req domain.AsyncAnalyzeRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if msg.TenantID != "" {
		tenantID = msg.TenantID
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	start := time.Now()

	slog.Debug("processing analysis request",
		"analysis_id", req.AnalysisID,
		"tenant_id", tenantID,
		"loans", len(req.Loans),
	)

	result, err := w.pipeline.Run(ctx, tenantID, req.Loans, &req.Params)
	if err != nil {
		w.failed.Add(1)
		slog.Error("analysis failed",
			"analysis_id", req.AnalysisID,
			"tenant_id", tenantID,
			"error", err,
		)
		w.publishFailure(ctx, tenantID, req.AnalysisID, err)
		return err
	}

	// The caller polls under the pre-assigned ID.
	if req.AnalysisID != "" {
		result.ID = req.AnalysisID
	}

	if w.repo != nil {
		if err := w.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to save analysis",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}
	if w.cache != nil {
		if err := w.cache.SetAnalysis(ctx, tenantID, result, cacheTTL); err != nil {
			slog.Warn("failed to cache analysis",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	if payload, err := json.Marshal(result.Summary); err == nil {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
			slog.Error("failed to publish completion",
				"analysis_id", result.ID,
				"error", err,
			)
		}
	}

	for _, alert := range result.Alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"analysis_id", result.ID,
				"policy", alert.PolicyID,
				"error", err,
			)
			continue
		}
		w.alerted.Add(1)
	}

	w.processed.Add(1)

	slog.Info("analysis processed",
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"status", result.Status,
		"risk_level", result.Summary.RiskLevel,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func (w *Worker) publishFailure(ctx context.Context, tenantID, analysisID string, cause error) {
	payload, err := json.Marshal(map[string]string{
		"analysisId": analysisID,
		"status":     domain.StatusFailed,
		"error":      cause.Error(),
	})
	if err != nil {
		return
	}
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisFailed, payload); err != nil {
		slog.Error("failed to publish failure event",
			"analysis_id", analysisID,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Alerted           int64    `json:"alerted"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Alerted:           w.alerted.Load(),
	}
}
