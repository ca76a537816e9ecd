package scoring

import (
	"darkmatter/internal/finding"
)

// Table maps a severity to the weight one finding of that severity contributes.
type Table map[finding.Severity]float64

// Weights is an immutable kind -> severity -> weight table. The zero value weighs
// every finding 0.
type Weights struct {
	tables map[finding.Kind]Table
}

// NewWeights builds a weight table from a deep copy of tables.
func NewWeights(tables map[finding.Kind]Table) Weights {
	w := Weights{tables: make(map[finding.Kind]Table, len(tables))}
	for kind, t := range tables {
		w.tables[kind] = copyTable(t)
	}
	return w
}

// DefaultWeights returns the built-in weight table.
func DefaultWeights() Weights {
	return NewWeights(map[finding.Kind]Table{
		finding.KindMagicConstant: {
			finding.SeverityHigh: 3.0, finding.SeverityMedium: 1.5, finding.SeverityLow: 0.5,
		},
		finding.KindPhantomLoop: {
			finding.SeverityHigh: 3.0, finding.SeverityMedium: 2.0, finding.SeverityLow: 1.0,
		},
		finding.KindDeadComputation: {
			finding.SeverityHigh: 3.0, finding.SeverityMedium: 2.0, finding.SeverityLow: 1.0,
		},
		finding.KindSilentFailure: {
			finding.SeverityHigh: 3.0, finding.SeverityMedium: 1.5, finding.SeverityLow: 0.5,
		},
	})
}

// With returns a copy of w where kind uses table t.
func (w Weights) With(kind finding.Kind, t Table) Weights {
	out := NewWeights(w.tables)
	out.tables[kind] = copyTable(t)
	return out
}

// Weight returns the weight of one finding. Unknown kinds and severities weigh 0.
func (w Weights) Weight(kind finding.Kind, sev finding.Severity) float64 {
	return w.tables[kind][sev]
}

// Table returns a copy of the table for kind.
func (w Weights) Table(kind finding.Kind) Table {
	return copyTable(w.tables[kind])
}

func copyTable(t Table) Table {
	out := make(Table, len(t))
	for sev, v := range t {
		out[sev] = v
	}
	return out
}
