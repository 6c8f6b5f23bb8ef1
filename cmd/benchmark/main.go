// Benchmark tool for testing Talon against synthetic loan books.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -users 500 -loans 2000
//
// This tool:
//   1. Generates a synthetic P2P loan book with planted lending rings
//   2. Sends the book to Talon for analysis
//   3. Compares flagged participants with the planted ring members
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"
)

// Loan matches the Talon API loan record format.
type Loan struct {
	LenderID   string  `json:"lenderId"`
	BorrowerID string  `json:"borrowerId"`
	Amount     float64 `json:"amount"`
	Label      string  `json:"label,omitempty"`
}

// AnalyzeRequest is the Talon API request format.
type AnalyzeRequest struct {
	Loans  []Loan          `json:"loans"`
	Params *AnalysisParams `json:"params,omitempty"`
}

type AnalysisParams struct {
	MaxCycleLength    int     `json:"maxCycleLength,omitempty"`
	HighRiskThreshold float64 `json:"highRiskThreshold,omitempty"`
	Mode              string  `json:"mode,omitempty"`
}

// AnalyzeResponse is the subset of the Talon analysis result the
// benchmark scores against.
type AnalyzeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Signal struct {
		Nodes []struct {
			ID       string  `json:"id"`
			Score    float64 `json:"score"`
			HighRisk bool    `json:"highRisk"`
		} `json:"nodes"`
		Cycles []struct {
			Members    []string `json:"members"`
			Suspicious bool     `json:"suspicious"`
		} `json:"cycles"`
	} `json:"signal"`
	Summary struct {
		Participants     int    `json:"participants"`
		Cycles           int    `json:"cycles"`
		SuspiciousCycles int    `json:"suspiciousCycles"`
		HighRiskNodes    int    `json:"highRiskNodes"`
		RiskLevel        string `json:"riskLevel"`
	} `json:"summary"`
	Metadata struct {
		TotalMs int64 `json:"totalMs"`
	} `json:"metadata"`
}

// book is one generated loan book plus the ground truth of who sits on a
// planted ring.
type book struct {
	loans   []Loan
	planted map[string]bool
}

// Metrics tracks benchmark results across all trials.
type Metrics struct {
	TruePositives  int64 // planted member flagged high risk
	FalsePositives int64 // clean participant flagged high risk
	TrueNegatives  int64 // clean participant not flagged
	FalseNegatives int64 // planted member missed

	TotalTrials  int64
	TotalErrors  int64
	TotalPlanted int64
	TotalClean   int64

	latenciesMs []int64
	engineMs    []int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Talon base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	users := flag.Int("users", 200, "Participants per generated loan book")
	loans := flag.Int("loans", 800, "Legitimate loans per book")
	rings := flag.Int("rings", 1, "Planted lending rings per book")
	fraudRatio := flag.Float64("fraud-ratio", 0.1, "Fraction of users drawn into each planted ring")
	ringSize := flag.Int("ring-size", 0, "Members per planted ring (0 = max(3, round(users*fraud-ratio)))")
	trials := flag.Int("trials", 20, "Number of loan books to analyze")
	seed := flag.Int64("seed", 42, "RNG seed (deterministic books)")
	mode := flag.String("mode", "", "Analysis mode override (bounded, exhaustive)")
	verbose := flag.Bool("verbose", false, "Print each trial result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        TALON BENCHMARK - Circular-Lending Detection           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nTalon URL:   %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	if *ringSize <= 0 {
		derived := int(float64(*users)**fraudRatio + 0.5)
		if derived < 3 {
			derived = 3
		}
		*ringSize = derived
	}

	fmt.Printf("Users:       %d\n", *users)
	fmt.Printf("Loans:       %d\n", *loans)
	fmt.Printf("Rings:       %d x %d members\n", *rings, *ringSize)
	fmt.Printf("Trials:      %d\n", *trials)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Talon not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Talon is running:")
		fmt.Println("  go run cmd/talon/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Talon is healthy")

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 60 * time.Second}
	metrics := &Metrics{}

	fmt.Printf("\nRunning %d trials...\n", *trials)
	startTime := time.Now()

	for i := 0; i < *trials; i++ {
		b := generateBook(rng, *users, *loans, *rings, *ringSize)
		metrics.TotalTrials++

		start := time.Now()
		result, err := analyzeBook(client, *baseURL, *tenantID, b.loans, *mode)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			metrics.TotalErrors++
			if *verbose {
				fmt.Printf("ERROR: trial %d -> %v\n", i, err)
			}
			continue
		}

		metrics.latenciesMs = append(metrics.latenciesMs, elapsed)
		metrics.engineMs = append(metrics.engineMs, result.Metadata.TotalMs)

		scoreTrial(metrics, b, result)

		if *verbose {
			fmt.Printf("trial %2d | participants: %4d | cycles: %3d | suspicious: %2d | risk: %-8s | %4d ms\n",
				i,
				result.Summary.Participants,
				result.Summary.Cycles,
				result.Summary.SuspiciousCycles,
				result.Summary.RiskLevel,
				elapsed,
			)
		}
	}

	printResults(metrics, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateBook builds a loan book of random legitimate loans plus planted
// rings. Legit loans connect distinct random pairs with amounts in
// [100, 5000); ring loans carry [1000, 7000) and a Fraud label so the
// flow profiler sees labeled edges, mirroring labeled training books.
func generateBook(rng *rand.Rand, users, loans, rings, ringSize int) book {
	if ringSize < 3 {
		ringSize = 3
	}

	b := book{planted: make(map[string]bool)}

	name := func(i int) string { return fmt.Sprintf("user_%d", i) }

	for i := 0; i < loans; i++ {
		lender := rng.Intn(users)
		borrower := rng.Intn(users)
		for borrower == lender {
			borrower = rng.Intn(users)
		}
		b.loans = append(b.loans, Loan{
			LenderID:   name(lender),
			BorrowerID: name(borrower),
			Amount:     100 + rng.Float64()*4900,
			Label:      "Legit",
		})
	}

	// Plant rings over disjoint member sets drawn from the same population
	used := make(map[int]bool)
	for r := 0; r < rings; r++ {
		members := make([]int, 0, ringSize)
		for len(members) < ringSize {
			u := rng.Intn(users)
			if !used[u] {
				used[u] = true
				members = append(members, u)
			}
		}
		for i, m := range members {
			next := members[(i+1)%ringSize]
			b.loans = append(b.loans, Loan{
				LenderID:   name(m),
				BorrowerID: name(next),
				Amount:     1000 + rng.Float64()*6000,
				Label:      "Fraud",
			})
			b.planted[name(m)] = true
		}
	}

	return b
}

func analyzeBook(client *http.Client, baseURL, tenantID string, loans []Loan, mode string) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{Loans: loans}
	if mode != "" {
		req.Params = &AnalysisParams{Mode: mode}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// scoreTrial updates the confusion matrix. A participant counts as flagged
// when it is high risk or sits on a suspicious cycle; ground truth is
// membership in a planted ring.
func scoreTrial(m *Metrics, b book, result *AnalyzeResponse) {
	flagged := make(map[string]bool)
	for _, n := range result.Signal.Nodes {
		if n.HighRisk {
			flagged[n.ID] = true
		}
	}
	for _, c := range result.Signal.Cycles {
		if !c.Suspicious {
			continue
		}
		for _, member := range c.Members {
			flagged[member] = true
		}
	}

	for _, n := range result.Signal.Nodes {
		planted := b.planted[n.ID]
		hit := flagged[n.ID]

		if planted {
			m.TotalPlanted++
		} else {
			m.TotalClean++
		}

		switch {
		case hit && planted:
			m.TruePositives++
		case hit && !planted:
			m.FalsePositives++
		case !hit && !planted:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}
	}
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Trials:           %d\n", m.TotalTrials)
	fmt.Printf("   Planted Members:  %d\n", m.TotalPlanted)
	fmt.Printf("   Clean Members:    %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX (per participant)\n")
	fmt.Println("                         Predicted")
	fmt.Println("                    Flagged     Clear")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("  Actual   R  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NR  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged members, how many were planted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of planted members, how many were caught)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct classifications)\n", accuracy)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if len(m.latenciesMs) > 0 {
		sort.Slice(m.latenciesMs, func(i, j int) bool { return m.latenciesMs[i] < m.latenciesMs[j] })
		sort.Slice(m.engineMs, func(i, j int) bool { return m.engineMs[i] < m.engineMs[j] })
		fmt.Printf("   Latency p50:      %d ms\n", percentile(m.latenciesMs, 0.50))
		fmt.Printf("   Latency p95:      %d ms\n", percentile(m.latenciesMs, 0.95))
		fmt.Printf("   Latency p99:      %d ms\n", percentile(m.latenciesMs, 0.99))
		fmt.Printf("   Engine p50:       %d ms (server-side pipeline time)\n", percentile(m.engineMs, 0.50))
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most planted rings")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some ring members")
	} else {
		fmt.Println("   ❌ Poor recall - most planted rings are being missed")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many clean participants flagged")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false flags")
	}

	fmt.Println()
}
