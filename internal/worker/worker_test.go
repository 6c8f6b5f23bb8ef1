package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/talon/internal/analysis"
	"github.com/opensource-finance/talon/internal/bus"
	"github.com/opensource-finance/talon/internal/cache"
	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/policy"
)

func testDefaults() domain.AnalysisConfig {
	return domain.AnalysisConfig{
		Mode:              domain.ModeBounded,
		MaxCycleLength:    5,
		HighRiskThreshold: 0.1,
	}
}

// ringBook returns a 3-participant lending ring. Every member scores 0.5
// betweenness, well over the default threshold.
func ringBook() []domain.Loan {
	return []domain.Loan{
		{LenderID: "a", BorrowerID: "b", Amount: 1000, Label: domain.LabelLegit},
		{LenderID: "b", BorrowerID: "c", Amount: 1100, Label: domain.LabelLegit},
		{LenderID: "c", BorrowerID: "a", Amount: 1200, Label: domain.LabelLegit},
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	pipeline := analysis.NewPipeline(testDefaults(), nil, "test")

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, pipeline)

		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			Concurrency: 1,
		}

		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessAnalysis", func(t *testing.T) {
		analysisCache := cache.NewLRUCache(100)
		w := NewWorker(eventBus, nil, analysisCache, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		var completedReceived atomic.Bool
		var completedPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			completedPayload = msg.Payload
			completedReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		req := domain.AsyncAnalyzeRequest{
			AnalysisID: "analysis-pre-assigned",
			Loans:      ringBook(),
		}

		payload, _ := json.Marshal(req)
		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicAnalysisRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		deadline := time.Now().Add(2 * time.Second)
		for !completedReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		if !completedReceived.Load() {
			t.Fatal("expected completion event to be published")
		}

		var summary domain.AnalysisSummary
		if err := json.Unmarshal(completedPayload, &summary); err != nil {
			t.Fatalf("failed to parse summary: %v", err)
		}
		if summary.Participants != 3 {
			t.Errorf("expected 3 participants, got %d", summary.Participants)
		}
		if summary.SuspiciousCycles != 1 {
			t.Errorf("expected 1 suspicious cycle, got %d", summary.SuspiciousCycles)
		}

		// Result is cached under the pre-assigned ID
		cached, err := analysisCache.GetAnalysis(context.Background(), "tenant-test", "analysis-pre-assigned")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if cached == nil {
			t.Fatal("expected analysis cached under pre-assigned ID")
		}
		if cached.Status != domain.StatusCompleted {
			t.Errorf("expected status COMPLETED, got %s", cached.Status)
		}

		stats := w.GetStats()
		if stats.Processed != 1 {
			t.Errorf("expected 1 processed, got %d", stats.Processed)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		engine, err := policy.NewEngine(4)
		if err != nil {
			t.Fatalf("NewEngine failed: %v", err)
		}
		err = engine.LoadPolicy(&domain.PolicyConfig{
			ID:         "ring-member",
			Name:       "Ring Member",
			Expression: "high_risk && cycle_count > 0",
			Severity:   domain.SeverityHigh,
			Enabled:    true,
		})
		if err != nil {
			t.Fatalf("LoadPolicy failed: %v", err)
		}

		alertPipeline := analysis.NewPipeline(testDefaults(), engine, "test")
		w := NewWorker(eventBus, nil, nil, alertPipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertCount atomic.Int32

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertCount.Add(1)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		req := domain.AsyncAnalyzeRequest{
			AnalysisID: "analysis-alert",
			Loans:      ringBook(),
		}

		payload, _ := json.Marshal(req)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicAnalysisRequested, payload)

		deadline := time.Now().Add(2 * time.Second)
		for alertCount.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		// All three ring members are high risk and on the cycle
		if alertCount.Load() != 3 {
			t.Errorf("expected 3 alerts, got %d", alertCount.Load())
		}
	})

	t.Run("MalformedRequest", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-bad"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		eventBus.Publish(context.Background(), "tenant-bad", domain.TopicAnalysisRequested, []byte("not json"))

		deadline := time.Now().Add(time.Second)
		for w.GetStats().Failed == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		stats := w.GetStats()
		if stats.Failed != 1 {
			t.Errorf("expected 1 failed, got %d", stats.Failed)
		}
		if stats.Processed != 0 {
			t.Errorf("expected 0 processed, got %d", stats.Processed)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestAsyncRequestParsing(t *testing.T) {
	req := domain.AsyncAnalyzeRequest{
		AnalysisID: "analysis-123",
		Loans:      ringBook(),
		Params: domain.AnalysisParams{
			MaxCycleLength:    4,
			HighRiskThreshold: 0.2,
			Mode:              domain.ModeExhaustive,
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed domain.AsyncAnalyzeRequest
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.AnalysisID != req.AnalysisID {
		t.Errorf("expected AnalysisID '%s', got '%s'", req.AnalysisID, parsed.AnalysisID)
	}
	if len(parsed.Loans) != 3 {
		t.Errorf("expected 3 loans, got %d", len(parsed.Loans))
	}
	if parsed.Params.Mode != domain.ModeExhaustive {
		t.Errorf("expected exhaustive mode, got '%s'", parsed.Params.Mode)
	}
}
