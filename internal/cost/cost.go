// Package cost tracks token usage and estimated spend for the lifetime of
// the process. Pricing comes from an embedded YAML table keyed by model-name
// substring; unknown models are free rather than an error.
package cost

import (
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var pricingYAML []byte

type rate struct {
	Match  string  `yaml:"match"`
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

var (
	ratesOnce sync.Once
	rates     []rate
)

func loadRates() []rate {
	ratesOnce.Do(func() {
		if err := yaml.Unmarshal(pricingYAML, &rates); err != nil {
			// The table is embedded at build time, so a parse failure is a
			// programming error caught by the package tests.
			rates = nil
		}
	})
	return rates
}

// Price estimates the USD cost of one call. The first table entry whose
// match string occurs in the model name wins; entries are ordered most
// specific first.
func Price(model string, inputTokens, outputTokens int) float64 {
	for _, r := range loadRates() {
		if strings.Contains(model, r.Match) {
			return float64(inputTokens)/1_000_000*r.Input + float64(outputTokens)/1_000_000*r.Output
		}
	}
	return 0
}

// Stats accumulates session totals. Counters only grow; they reset with the
// process.
type Stats struct {
	mu           sync.Mutex
	inputTokens  int
	outputTokens int
	totalCost    float64
}

func NewStats() *Stats {
	return &Stats{}
}

// Record adds one call's usage and returns its estimated cost.
func (s *Stats) Record(model string, inputTokens, outputTokens int) float64 {
	cost := Price(model, inputTokens, outputTokens)
	s.mu.Lock()
	s.inputTokens += inputTokens
	s.outputTokens += outputTokens
	s.totalCost += cost
	s.mu.Unlock()
	return cost
}

func (s *Stats) Totals() (inputTokens, outputTokens int, totalCost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputTokens, s.outputTokens, s.totalCost
}
