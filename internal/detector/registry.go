package detector

import (
	"fmt"
	"strings"

	"darkmatter/internal/finding"
)

// Status describes how far a registered pattern is implemented.
type Status string

const (
	StatusImplemented Status = "implemented"
	StatusPlanned     Status = "planned"
)

// Pattern describes one registered detector kind.
type Pattern struct {
	Kind        finding.Kind `json:"kind"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
}

type registration struct {
	pattern Pattern
	build   func(Options) Detector
}

// registry is the closed set of detectors, in the order results are reported.
var registry = []registration{
	{
		pattern: Pattern{finding.KindMagicConstant, "unexplained numeric literals in thresholds, factors and bounds", StatusImplemented},
		build:   func(o Options) Detector { return NewMagicConstantDetector(o) },
	},
	{
		pattern: Pattern{finding.KindPhantomLoop, "infinite loops that always exit on the first pass", StatusImplemented},
		build:   func(o Options) Detector { return NewPhantomLoopDetector(o) },
	},
	{
		pattern: Pattern{finding.KindDeadComputation, "computed values and function results nobody observes", StatusImplemented},
		build:   func(o Options) Detector { return NewDeadComputationDetector(o) },
	},
	{
		pattern: Pattern{finding.KindSilentFailure, "exception handlers that swallow errors without evidence", StatusImplemented},
		build:   func(o Options) Detector { return NewSilentFailureDetector(o) },
	},
}

// Patterns lists every registered pattern in registry order.
func Patterns() []Pattern {
	out := make([]Pattern, len(registry))
	for i, r := range registry {
		out[i] = r.pattern
	}
	return out
}

// All builds every implemented detector.
func All(opts Options) []Detector {
	var out []Detector
	for _, r := range registry {
		if r.pattern.Status == StatusImplemented {
			out = append(out, r.build(opts))
		}
	}
	return out
}

// Lookup builds the detector registered under kind.
func Lookup(kind string, opts Options) (Detector, error) {
	k := finding.Kind(strings.ToLower(strings.TrimSpace(kind)))
	for _, r := range registry {
		if r.pattern.Kind != k {
			continue
		}
		if r.pattern.Status != StatusImplemented {
			return nil, fmt.Errorf("pattern %s is not implemented", k)
		}
		return r.build(opts), nil
	}
	return nil, fmt.Errorf("unknown pattern %q (see list-patterns)", kind)
}

// Select builds the detectors named in kinds, keeping registry order. An empty
// selection means all detectors.
func Select(kinds []string, opts Options) ([]Detector, error) {
	if len(kinds) == 0 {
		return All(opts), nil
	}
	wanted := make(map[finding.Kind]bool, len(kinds))
	for _, k := range kinds {
		d, err := Lookup(k, opts)
		if err != nil {
			return nil, err
		}
		wanted[d.Kind()] = true
	}
	var out []Detector
	for _, r := range registry {
		if wanted[r.pattern.Kind] {
			out = append(out, r.build(opts))
		}
	}
	return out, nil
}
