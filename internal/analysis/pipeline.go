// Package analysis orchestrates the circular-lending detection pipeline.
//
// One run takes an ordered loan book and produces a persisted-ready
// Analysis: build the directed multigraph, enumerate simple cycles and
// score betweenness centrality concurrently, compose the fraud signal,
// attach flow profiles, evaluate alert policies, and roll the result up
// into a summary with a risk level. Every stage receives its parameters
// explicitly; nothing reads ambient configuration.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/talon/internal/centrality"
	"github.com/opensource-finance/talon/internal/cycles"
	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/flow"
	"github.com/opensource-finance/talon/internal/graph"
	"github.com/opensource-finance/talon/internal/metrics"
	"github.com/opensource-finance/talon/internal/policy"
	"github.com/opensource-finance/talon/internal/signal"
)

var tracer = otel.Tracer("talon-analysis")

// Pipeline runs detection passes. Safe for concurrent use: each run
// builds its own graph and shares only the policy engine, which guards
// its compiled set internally.
type Pipeline struct {
	defaults domain.AnalysisConfig
	engine   *policy.Engine
	version  string
}

// NewPipeline creates a pipeline with configured defaults. The policy
// engine is optional; without it runs produce no alerts.
func NewPipeline(defaults domain.AnalysisConfig, engine *policy.Engine, version string) *Pipeline {
	return &Pipeline{
		defaults: defaults,
		engine:   engine,
		version:  version,
	}
}

// Run executes one detection pass over the loan book. Topologically
// unusual input (empty book, self-loops, disconnected or complete
// graphs) degrades gracefully and never errors; the only failure mode
// is context cancellation. A census cut short by the MaxCycles stop is
// reported with status TRUNCATED, not an error.
func (p *Pipeline) Run(ctx context.Context, tenantID string, loans []domain.Loan, params *domain.AnalysisParams) (*domain.Analysis, error) {
	start := time.Now()
	resolved := p.defaults.Resolve(params)

	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("loans", len(loans)),
		attribute.String("mode", string(resolved.Mode)),
	)

	// Build
	buildStart := time.Now()
	_, buildSpan := tracer.Start(ctx, "pipeline.build")
	g := graph.Build(loans)
	buildSpan.End()
	buildMs := time.Since(buildStart).Milliseconds()

	metrics.GraphNodes.Set(float64(g.Order()))
	metrics.GraphEdges.Set(float64(g.Size()))

	// Enumerate and score run concurrently on the immutable graph.
	enumOpts := cycles.Options{MaxCycles: resolved.MaxCycles}
	if resolved.Mode != domain.ModeExhaustive {
		enumOpts.MaxLength = resolved.MaxCycleLength
	}

	var (
		census    []cycles.Cycle
		truncated bool
		scores    map[string]float64
		cycleMs   int64
		scoreMs   int64
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		t := time.Now()
		_, s := tracer.Start(egCtx, "pipeline.cycles")
		defer s.End()
		census, truncated = cycles.Enumerate(g, enumOpts)
		cycleMs = time.Since(t).Milliseconds()
		return egCtx.Err()
	})
	eg.Go(func() error {
		t := time.Now()
		sctx, s := tracer.Start(egCtx, "pipeline.centrality")
		defer s.End()
		var err error
		scores, err = centrality.Betweenness(sctx, g, centrality.Options{Workers: resolved.Workers})
		scoreMs = time.Since(t).Milliseconds()
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	// Compose + flow profiles
	composeStart := time.Now()
	_, composeSpan := tracer.Start(ctx, "pipeline.compose")
	sig := signal.Compose(g, census, scores, signal.Params{
		HighRiskThreshold: resolved.HighRiskThreshold,
		MaxCycleLength:    resolved.MaxCycleLength,
	})
	profiles := flow.Profile(g)
	for i := range sig.Nodes {
		sig.Nodes[i].Flow = profiles[sig.Nodes[i].ID]
	}
	composeSpan.End()
	composeMs := time.Since(composeStart).Milliseconds()

	// Alert policies
	policyStart := time.Now()
	var (
		results []domain.PolicyResult
		alerts  []domain.Alert
	)
	if p.engine != nil && p.engine.PoliciesCount() > 0 {
		pctx, policySpan := tracer.Start(ctx, "pipeline.policies")
		facts := buildFacts(g, sig, profiles)
		var err error
		results, err = p.engine.EvaluateAll(pctx, facts)
		if err != nil {
			policySpan.End()
			return nil, fmt.Errorf("policy evaluation: %w", err)
		}
		alerts = p.engine.Alerts(results)
		policySpan.End()
	}
	policyMs := time.Since(policyStart).Milliseconds()

	summary := summarize(g, sig, results)
	summary.RiskLevel = domain.DetermineRiskLevel(summary, alerts)

	status := domain.StatusCompleted
	if truncated {
		status = domain.StatusTruncated
	}

	totalMs := time.Since(start).Milliseconds()
	analysis := &domain.Analysis{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Status:   status,
		Params:   resolved,
		Signal:   sig,
		Summary:  summary,
		Alerts:   alerts,
		Metadata: domain.AnalysisMetadata{
			TraceID:       span.SpanContext().TraceID().String(),
			BuildMs:       buildMs,
			CycleMs:       cycleMs,
			ScoreMs:       scoreMs,
			ComposeMs:     composeMs,
			PolicyMs:      policyMs,
			TotalMs:       totalMs,
			EngineVersion: p.version,
		},
		CreatedAt: time.Now().UTC(),
	}

	metrics.AnalysesTotal.WithLabelValues(tenantID, status).Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	metrics.CyclesFound.Add(float64(summary.Cycles))
	metrics.SuspiciousCycles.Add(float64(summary.SuspiciousCycles))
	metrics.HighRiskNodes.Add(float64(summary.HighRiskNodes))
	for _, a := range alerts {
		metrics.PolicyMatches.WithLabelValues(a.PolicyID).Inc()
	}

	return analysis, nil
}

// buildFacts derives per-node policy variables from the composed signal.
// Cycle facts count only suspicious cycles, so the policy surface matches
// what an operator sees flagged.
func buildFacts(g *graph.Graph, sig *domain.FraudSignal, profiles map[string]*domain.FlowProfile) []*policy.NodeFacts {
	cycleCount := make(map[string]int)
	minLen := make(map[string]int)
	for _, c := range sig.Cycles {
		if !c.Suspicious {
			continue
		}
		for _, id := range c.Members {
			cycleCount[id]++
			if minLen[id] == 0 || c.Length < minLen[id] {
				minLen[id] = c.Length
			}
		}
	}

	facts := make([]*policy.NodeFacts, 0, len(sig.Nodes))
	for _, n := range sig.Nodes {
		facts = append(facts, &policy.NodeFacts{
			NodeID:         n.ID,
			Score:          n.Score,
			HighRisk:       n.HighRisk,
			CycleCount:     cycleCount[n.ID],
			MinCycleLength: minLen[n.ID],
			InDegree:       g.InDegree(n.ID),
			OutDegree:      g.OutDegree(n.ID),
			Flow:           profiles[n.ID],
		})
	}
	return facts
}

func summarize(g *graph.Graph, sig *domain.FraudSignal, results []domain.PolicyResult) domain.AnalysisSummary {
	s := domain.AnalysisSummary{
		Participants: g.Order(),
		Loans:        g.Size(),
		Cycles:       len(sig.Cycles),
	}
	for _, c := range sig.Cycles {
		if c.Suspicious {
			s.SuspiciousCycles++
		}
	}
	for _, n := range sig.Nodes {
		if n.HighRisk {
			s.HighRiskNodes++
		}
	}
	for _, e := range sig.Edges {
		if e.CycleEdge {
			s.FlaggedEdges++
		}
	}
	for _, r := range results {
		if r.Matched {
			s.PolicyMatches++
		}
	}
	return s
}
