// Package policy provides the CEL-Go based alert-policy engine.
//
// Policies are boolean CEL expressions evaluated against every
// participant's composed fraud-signal facts; a match raises an alert on
// the analysis.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/talon/internal/domain"
)

// Engine compiles and evaluates alert policies.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledPolicy
	maxWorkers int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.PolicyConfig
	Program cel.Program
}

// NewEngine creates a new alert-policy engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with per-node fact variables
	env, err := cel.NewEnv(
		cel.Variable("node", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("high_risk", cel.BoolType),
		cel.Variable("cycle_count", cel.IntType),
		cel.Variable("min_cycle_length", cel.IntType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("total_lent", cel.DoubleType),
		cel.Variable("total_borrowed", cel.DoubleType),
		cel.Variable("net_flow", cel.DoubleType),
		cel.Variable("loans_out", cel.IntType),
		cel.Variable("loans_in", cel.IntType),
		cel.Variable("fraud_edges", cel.IntType),
		cel.Variable("counterparties", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledPolicy),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(cfg *domain.PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadPolicies compiles and loads all enabled policies.
func (e *Engine) LoadPolicies(configs []*domain.PolicyConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadPolicies swaps the loaded set atomically. Disabled policies are
// dropped; any compile failure aborts the swap.
func (e *Engine) ReloadPolicies(configs []*domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledPolicy)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.compiled = next
	return nil
}

// NodeFacts are the per-participant variables a policy can reference.
type NodeFacts struct {
	NodeID   string
	Score    float64
	HighRisk bool

	// CycleCount is the number of suspicious cycles the node belongs to;
	// MinCycleLength is the shortest of them (0 when none).
	CycleCount     int
	MinCycleLength int

	InDegree  int
	OutDegree int

	Flow *domain.FlowProfile
}

func (f *NodeFacts) activation() map[string]any {
	var fl domain.FlowProfile
	if f.Flow != nil {
		fl = *f.Flow
	}
	return map[string]any{
		"node":             f.NodeID,
		"score":            f.Score,
		"high_risk":        f.HighRisk,
		"cycle_count":      int64(f.CycleCount),
		"min_cycle_length": int64(f.MinCycleLength),
		"in_degree":        int64(f.InDegree),
		"out_degree":       int64(f.OutDegree),
		"total_lent":       fl.TotalLent,
		"total_borrowed":   fl.TotalBorrowed,
		"net_flow":         fl.NetFlow,
		"loans_out":        int64(fl.LoansOut),
		"loans_in":         int64(fl.LoansIn),
		"fraud_edges":      int64(fl.FraudEdges),
		"counterparties":   int64(fl.Borrowers + fl.Lenders),
	}
}

// EvaluateAll evaluates every loaded policy against every node, fanning
// nodes out across a bounded worker pool. Only matches and evaluation
// errors are returned; clean misses are dropped. Result order is
// deterministic: nodes in input order, policies by id.
func (e *Engine) EvaluateAll(ctx context.Context, facts []*NodeFacts) ([]domain.PolicyResult, error) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 || len(facts) == 0 {
		return nil, nil
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Config.ID < policies[j].Config.ID
	})

	perNode := make([][]domain.PolicyResult, len(facts))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, f := range facts {
		wg.Add(1)
		go func(idx int, nf *NodeFacts) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			activation := nf.activation()
			var results []domain.PolicyResult
			for _, p := range policies {
				r := evaluatePolicy(p, nf.NodeID, activation)
				if r.Matched || r.Error != "" {
					results = append(results, r)
				}
			}
			perNode[idx] = results
		}(i, f)
	}

	wg.Wait()

	var out []domain.PolicyResult
	for _, rs := range perNode {
		out = append(out, rs...)
	}
	return out, nil
}

// EvaluateNode evaluates every loaded policy against a single node.
func (e *Engine) EvaluateNode(ctx context.Context, facts *NodeFacts) ([]domain.PolicyResult, error) {
	return e.EvaluateAll(ctx, []*NodeFacts{facts})
}

func evaluatePolicy(p *CompiledPolicy, nodeID string, activation map[string]any) domain.PolicyResult {
	start := time.Now()

	result := domain.PolicyResult{
		PolicyID: p.Config.ID,
		Name:     p.Config.Name,
		NodeID:   nodeID,
		Severity: p.Config.Severity,
	}

	out, _, err := p.Program.Eval(activation)
	if err != nil {
		result.Error = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessUs = time.Since(start).Microseconds()
		return result
	}

	if matched, ok := out.(types.Bool); ok {
		result.Matched = bool(matched)
	}
	result.ProcessUs = time.Since(start).Microseconds()
	return result
}

// Alerts converts matched results into alerts, attaching the policy
// description as detail.
func (e *Engine) Alerts(results []domain.PolicyResult) []domain.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var alerts []domain.Alert
	for _, r := range results {
		if !r.Matched {
			continue
		}
		detail := ""
		if p, ok := e.compiled[r.PolicyID]; ok {
			detail = p.Config.Description
		}
		alerts = append(alerts, domain.Alert{
			PolicyID:   r.PolicyID,
			PolicyName: r.Name,
			NodeID:     r.NodeID,
			Severity:   r.Severity,
			Detail:     detail,
		})
	}
	return alerts
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedPolicies returns the currently loaded policy configurations.
func (e *Engine) GetLoadedPolicies() []*domain.PolicyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]*domain.PolicyConfig, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		policies = append(policies, compiled.Config)
	}
	return policies
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.PolicyConfig) (*CompiledPolicy, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{Config: cfg, Program: program}, nil
}
