package finding

import "sort"

// DetectionResult holds the findings of one detector over one file, in source order,
// with their aggregate score.
type DetectionResult struct {
	Detector Kind      `json:"detector"`
	Findings []Finding `json:"findings"`
	Score    float64   `json:"score"`
}

// FileReport collects every detector's result for a single file. Diagnostics hold
// findings about the file itself (parse failures, detector failures).
type FileReport struct {
	Path        string            `json:"path"`
	Results     []DetectionResult `json:"results,omitempty"`
	Diagnostics []Finding         `json:"diagnostics,omitempty"`
	Score       float64           `json:"score"`
}

// Findings returns all pattern findings of the file followed by its diagnostics.
func (r *FileReport) Findings() []Finding {
	var out []Finding
	for _, res := range r.Results {
		out = append(out, res.Findings...)
	}
	return append(out, r.Diagnostics...)
}

// Result returns the result of the given detector, if it ran.
func (r *FileReport) Result(kind Kind) (DetectionResult, bool) {
	for _, res := range r.Results {
		if res.Detector == kind {
			return res, true
		}
	}
	return DetectionResult{}, false
}

// Unparsable reports whether the file could not be turned into a syntax tree.
func (r *FileReport) Unparsable() bool {
	for _, d := range r.Diagnostics {
		if d.Kind == KindUnparsableFile || d.Kind == KindInvalidTarget {
			return true
		}
	}
	return false
}

// ScanReport is the project-wide outcome of one scan invocation.
type ScanReport struct {
	Files map[string]*FileReport `json:"files"`
	Total float64                `json:"total"`
}

// Paths returns the scanned file paths in lexical order.
func (r *ScanReport) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FindingCount counts all findings, diagnostics included.
func (r *ScanReport) FindingCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Findings())
	}
	return n
}

// AllFailed reports whether no file in the scan could be analysed.
func (r *ScanReport) AllFailed() bool {
	if len(r.Files) == 0 {
		return false
	}
	for _, f := range r.Files {
		if !f.Unparsable() {
			return false
		}
	}
	return true
}
