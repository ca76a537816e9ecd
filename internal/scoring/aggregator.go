package scoring

import (
	"darkmatter/internal/finding"
)

// Aggregator turns findings into dark mass scores using a fixed weight table.
// Scores are plain sums: no caps, no normalisation.
type Aggregator struct {
	weights Weights
}

func NewAggregator(w Weights) *Aggregator {
	return &Aggregator{weights: w}
}

// Weights returns the table the aggregator scores with.
func (a *Aggregator) Weights() Weights {
	return a.weights
}

// Score sums the weight of every finding.
func (a *Aggregator) Score(findings []finding.Finding) float64 {
	total := 0.0
	for _, f := range findings {
		total += a.weights.Weight(f.Kind, f.Severity)
	}
	return total
}

// Result wraps one detector's findings with their score.
func (a *Aggregator) Result(kind finding.Kind, findings []finding.Finding) finding.DetectionResult {
	if findings == nil {
		findings = []finding.Finding{}
	}
	return finding.DetectionResult{Detector: kind, Findings: findings, Score: a.Score(findings)}
}

// File builds a file report whose score is the sum of its detector scores plus the
// weight of its diagnostics.
func (a *Aggregator) File(path string, results []finding.DetectionResult, diagnostics []finding.Finding) *finding.FileReport {
	total := a.Score(diagnostics)
	for _, r := range results {
		total += r.Score
	}
	return &finding.FileReport{Path: path, Results: results, Diagnostics: diagnostics, Score: total}
}

// Project merges file reports into a scan report. Later reports for the same path
// replace earlier ones.
func (a *Aggregator) Project(files []*finding.FileReport) *finding.ScanReport {
	report := &finding.ScanReport{Files: make(map[string]*finding.FileReport, len(files))}
	for _, f := range files {
		if f == nil {
			continue
		}
		report.Files[f.Path] = f
	}
	for _, p := range report.Paths() {
		report.Total += report.Files[p].Score
	}
	return report
}
