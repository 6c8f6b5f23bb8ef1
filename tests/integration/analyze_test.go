//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Talon
// circular-lending detection engine.
//
// These tests verify the COMPLETE analysis pipeline:
//
//	Loan Book → Graph → Cycle Census → Centrality → Signal → Policies → Risk Level
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. LOAN: A directed lending record (lender → borrower) with an amount
//    and an optional Legit/Fraud label.
//
// 2. CYCLE: A closed chain of loans (a lends to b, b to c, c back to a).
//    Cycles at or under the configured max length are SUSPICIOUS.
//
// 3. SCORE: Normalized betweenness centrality in [0,1]. Participants
//    scoring strictly above the threshold are HIGH RISK.
//
// 4. POLICY: A CEL expression over per-node facts. Matches become alerts.
//
// 5. RISK LEVEL: none/low/medium/high/critical, rolled up from the
//    suspicious-cycle census, high-risk counts, and alert severities.
//
// A default Talon instance seeds starter policies at boot, so a fresh
// server is enough to run these tests.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("TALON_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Talon's API contract)
// ============================================================================

type Loan struct {
	LenderID   string  `json:"lenderId"`
	BorrowerID string  `json:"borrowerId"`
	Amount     float64 `json:"amount"`
	Label      string  `json:"label,omitempty"`
}

type AnalyzeRequest struct {
	Loans  []Loan          `json:"loans"`
	Params *AnalysisParams `json:"params,omitempty"`
}

type AnalysisParams struct {
	MaxCycleLength    int     `json:"maxCycleLength,omitempty"`
	HighRiskThreshold float64 `json:"highRiskThreshold,omitempty"`
	Mode              string  `json:"mode,omitempty"`
}

type NodeSignal struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	HighRisk bool    `json:"highRisk"`
}

type CycleSignal struct {
	Members    []string `json:"members"`
	Length     int      `json:"length"`
	Suspicious bool     `json:"suspicious"`
}

type Signal struct {
	Nodes  []NodeSignal  `json:"nodes"`
	Cycles []CycleSignal `json:"cycles"`
}

type Summary struct {
	Participants     int    `json:"participants"`
	Loans            int    `json:"loans"`
	Cycles           int    `json:"cycles"`
	SuspiciousCycles int    `json:"suspiciousCycles"`
	HighRiskNodes    int    `json:"highRiskNodes"`
	RiskLevel        string `json:"riskLevel"`
}

type Metadata struct {
	TraceID       string `json:"traceId"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

type AnalyzeResponse struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	Status   string   `json:"status"`
	Signal   *Signal  `json:"signal"`
	Summary  Summary  `json:"summary"`
	Metadata Metadata `json:"metadata"`
}

type AnalyzeAccepted struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func analyze(t *testing.T, config TestConfig, req AnalyzeRequest) AnalyzeResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

func postRaw(t *testing.T, config TestConfig, path string, body []byte, tenant bool) *http.Response {
	t.Helper()

	httpReq, _ := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	if tenant {
		httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

// ============================================================================
// SCENARIO 1: Clean Loan Book (No Cycles)
// ============================================================================

func TestCleanBook_NoRisk(t *testing.T) {
	/*
	   SCENARIO: A chain of loans with no way back to the start

	   EXPECTED BEHAVIOR:
	   - Zero cycles, zero suspicious cycles
	   - Risk level "none" or at most "medium" (centrality can still flag
	     the middle of a long chain)
	*/
	config := getTestConfig()

	req := AnalyzeRequest{
		Loans: []Loan{
			{LenderID: "chain-a", BorrowerID: "chain-b", Amount: 500},
			{LenderID: "chain-b", BorrowerID: "chain-c", Amount: 450},
			{LenderID: "chain-c", BorrowerID: "chain-d", Amount: 400},
		},
	}

	result := analyze(t, config, req)

	if result.Status != "COMPLETED" {
		t.Errorf("Expected COMPLETED, got %s", result.Status)
	}
	if result.Summary.Cycles != 0 {
		t.Errorf("Expected 0 cycles in a chain, got %d", result.Summary.Cycles)
	}
	if result.Summary.SuspiciousCycles != 0 {
		t.Errorf("Expected 0 suspicious cycles, got %d", result.Summary.SuspiciousCycles)
	}
	if result.Summary.RiskLevel == "high" || result.Summary.RiskLevel == "critical" {
		t.Errorf("Expected low risk for acyclic book, got %s", result.Summary.RiskLevel)
	}

	t.Logf("✓ Clean book: risk=%s, cycles=%d", result.Summary.RiskLevel, result.Summary.Cycles)
}

// ============================================================================
// SCENARIO 2: Lending Ring (Critical Risk)
// ============================================================================

func TestLendingRing_Critical(t *testing.T) {
	/*
	   SCENARIO: Three participants lending in a closed ring

	   EXPECTED BEHAVIOR:
	   - Exactly one suspicious cycle of length 3
	   - Every member scores 0.5 centrality (above the default 0.1 threshold)
	   - Risk level "critical" (suspicious ring with 3+ high-risk members)
	*/
	config := getTestConfig()

	req := AnalyzeRequest{
		Loans: []Loan{
			{LenderID: "ring-a", BorrowerID: "ring-b", Amount: 1000},
			{LenderID: "ring-b", BorrowerID: "ring-c", Amount: 1100},
			{LenderID: "ring-c", BorrowerID: "ring-a", Amount: 1200},
		},
	}

	result := analyze(t, config, req)

	if result.Summary.SuspiciousCycles != 1 {
		t.Errorf("Expected 1 suspicious cycle, got %d", result.Summary.SuspiciousCycles)
	}
	if result.Summary.HighRiskNodes != 3 {
		t.Errorf("Expected 3 high-risk nodes, got %d", result.Summary.HighRiskNodes)
	}
	if result.Summary.RiskLevel != "critical" {
		t.Errorf("Expected critical risk for a 3-ring, got %s", result.Summary.RiskLevel)
	}

	if result.Signal == nil || len(result.Signal.Cycles) != 1 {
		t.Fatalf("Expected exactly one cycle in signal")
	}
	if result.Signal.Cycles[0].Length != 3 {
		t.Errorf("Expected cycle length 3, got %d", result.Signal.Cycles[0].Length)
	}

	t.Logf("✓ Ring detected: risk=%s, members=%v",
		result.Summary.RiskLevel, result.Signal.Cycles[0].Members)
}

// ============================================================================
// SCENARIO 3: Cycle-Length Boundary
// ============================================================================

func TestCycleLengthBoundary(t *testing.T) {
	/*
	   SCENARIO: A 4-ring analyzed with maxCycleLength 3, then 4

	   EXPECTED BEHAVIOR:
	   - With the bound at 3 the 4-ring is found but NOT suspicious
	   - With the bound at 4 the same ring IS suspicious

	   WHY THIS TEST:
	   The suspicious classification is length <= bound. Boundary conditions
	   catch off-by-one errors in the census.
	*/
	config := getTestConfig()

	ring := []Loan{
		{LenderID: "quad-a", BorrowerID: "quad-b", Amount: 1000},
		{LenderID: "quad-b", BorrowerID: "quad-c", Amount: 1000},
		{LenderID: "quad-c", BorrowerID: "quad-d", Amount: 1000},
		{LenderID: "quad-d", BorrowerID: "quad-a", Amount: 1000},
	}

	tight := analyze(t, config, AnalyzeRequest{
		Loans:  ring,
		Params: &AnalysisParams{MaxCycleLength: 3, Mode: "exhaustive"},
	})
	if tight.Summary.SuspiciousCycles != 0 {
		t.Errorf("Expected 4-ring over the bound, got %d suspicious", tight.Summary.SuspiciousCycles)
	}

	loose := analyze(t, config, AnalyzeRequest{
		Loans:  ring,
		Params: &AnalysisParams{MaxCycleLength: 4},
	})
	if loose.Summary.SuspiciousCycles != 1 {
		t.Errorf("Expected 4-ring within the bound, got %d suspicious", loose.Summary.SuspiciousCycles)
	}

	t.Logf("✓ Boundary: bound 3 → %d suspicious, bound 4 → %d suspicious",
		tight.Summary.SuspiciousCycles, loose.Summary.SuspiciousCycles)
}

// ============================================================================
// SCENARIO 4: Async Analysis
// ============================================================================

func TestAsyncAnalysis(t *testing.T) {
	/*
	   SCENARIO: Submit with ?async=true, then poll until the worker finishes

	   EXPECTED BEHAVIOR:
	   - 202 Accepted with a pre-assigned analysis ID and status QUEUED
	   - GET /analyses/{id} eventually returns COMPLETED

	   NOTE: Requires a worker (TALON_WORKER_ENABLED=true). The test skips
	   when the submission is rejected with 503.
	*/
	config := getTestConfig()

	req := AnalyzeRequest{
		Loans: []Loan{
			{LenderID: "async-a", BorrowerID: "async-b", Amount: 1000},
			{LenderID: "async-b", BorrowerID: "async-c", Amount: 1000},
			{LenderID: "async-c", BorrowerID: "async-a", Amount: 1000},
		},
	}

	body, _ := json.Marshal(req)
	resp := postRaw(t, config, "/analyze?async=true", body, true)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		t.Skip("async analysis requires a running worker")
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	var accepted AnalyzeAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("Failed to decode accepted response: %v", err)
	}
	if accepted.AnalysisID == "" {
		t.Fatal("Expected pre-assigned analysis ID")
	}
	if accepted.Status != "QUEUED" {
		t.Errorf("Expected QUEUED, got %s", accepted.Status)
	}

	// Poll for completion
	client := &http.Client{Timeout: 10 * time.Second}
	deadline := time.Now().Add(10 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		getReq, _ := http.NewRequest("GET", config.BaseURL+"/analyses/"+accepted.AnalysisID, nil)
		getReq.Header.Set("X-Tenant-ID", config.TenantID)
		getResp, err := client.Do(getReq)
		if err == nil && getResp.StatusCode == http.StatusOK {
			var result AnalyzeResponse
			json.NewDecoder(getResp.Body).Decode(&result)
			getResp.Body.Close()
			status = result.Status
			if status == "COMPLETED" || status == "TRUNCATED" {
				break
			}
		} else if getResp != nil {
			getResp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}

	if status != "COMPLETED" && status != "TRUNCATED" {
		t.Errorf("Expected async analysis to finish, last status %q", status)
	}

	t.Logf("✓ Async analysis %s finished with status %s", accepted.AnalysisID, status)
}

// ============================================================================
// SCENARIO 5: Input Validation
// ============================================================================

func TestEmptyLoanBook_Error(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(AnalyzeRequest{Loans: []Loan{}})
	resp := postRaw(t, config, "/analyze", body, true)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty loan book, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: empty book → HTTP %d", resp.StatusCode)
}

func TestMissingLenderID_Error(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(AnalyzeRequest{
		Loans: []Loan{{LenderID: "", BorrowerID: "someone", Amount: 100}},
	})
	resp := postRaw(t, config, "/analyze", body, true)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing lenderId, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing lenderId → HTTP %d", resp.StatusCode)
}

func TestNegativeAmount_Error(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(AnalyzeRequest{
		Loans: []Loan{{LenderID: "a", BorrowerID: "b", Amount: -50}},
	})
	resp := postRaw(t, config, "/analyze", body, true)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative amount, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: negative amount → HTTP %d", resp.StatusCode)
}

func TestMissingTenantHeader_DefaultTenant(t *testing.T) {
	/*
	   SCENARIO: Request without X-Tenant-ID header

	   BEHAVIOR: Talon scopes the request to the default tenant rather
	   than rejecting it, so single-tenant deployments need no header.
	*/
	config := getTestConfig()

	body, _ := json.Marshal(AnalyzeRequest{
		Loans: []Loan{{LenderID: "nt-a", BorrowerID: "nt-b", Amount: 100}},
	})
	resp := postRaw(t, config, "/analyze", body, false)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 without tenant header, got %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if result.TenantID != "default" {
		t.Errorf("Expected default tenant, got %q", result.TenantID)
	}

	t.Logf("✓ Missing tenant header scoped to %q", result.TenantID)
}

// ============================================================================
// SCENARIO 6: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify the response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	req := AnalyzeRequest{
		Loans: []Loan{
			{LenderID: "meta-a", BorrowerID: "meta-b", Amount: 100},
		},
	}

	result := analyze(t, config, req)

	if result.ID == "" {
		t.Error("Missing id")
	}
	if result.Status != "COMPLETED" && result.Status != "TRUNCATED" {
		t.Errorf("Invalid status: %s", result.Status)
	}
	if result.Summary.Loans != 1 {
		t.Errorf("Expected 1 loan in summary, got %d", result.Summary.Loans)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Missing metadata.engineVersion")
	}
	// TotalMs can be 0 for very fast runs (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: id=%s, traceId=%s, totalMs=%d",
		result.ID[:8], result.Metadata.TraceID[:8], result.Metadata.TotalMs)
}

// ============================================================================
// SCENARIO 7: Tenant Isolation
// ============================================================================

func TestTenantIsolation(t *testing.T) {
	/*
	   SCENARIO: An analysis saved under one tenant must not be readable
	   from another.
	*/
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		Loans: []Loan{{LenderID: "iso-a", BorrowerID: "iso-b", Amount: 100}},
	})

	otherReq, _ := http.NewRequest("GET", config.BaseURL+"/analyses/"+result.ID, nil)
	otherReq.Header.Set("X-Tenant-ID", fmt.Sprintf("other-%d", time.Now().UnixNano()))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(otherReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 across tenants, got %d", resp.StatusCode)
	}

	t.Logf("✓ Tenant isolation: cross-tenant read → HTTP %d", resp.StatusCode)
}
