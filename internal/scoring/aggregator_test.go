package scoring

import (
	"testing"

	"darkmatter/internal/finding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mk(kind finding.Kind, sev finding.Severity) finding.Finding {
	return finding.Finding{Kind: kind, Severity: sev, Line: 1}
}

func TestAggregator_ScoreIsWeightedSum(t *testing.T) {
	a := NewAggregator(DefaultWeights())

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, 0.0, a.Score(nil))
		assert.Equal(t, 0.0, a.Result(finding.KindPhantomLoop, nil).Score)
	})

	t.Run("Magic constants", func(t *testing.T) {
		findings := []finding.Finding{
			mk(finding.KindMagicConstant, finding.SeverityMedium),
			mk(finding.KindMagicConstant, finding.SeverityMedium),
			mk(finding.KindMagicConstant, finding.SeverityMedium),
		}
		assert.InDelta(t, 4.5, a.Score(findings), 1e-9)
	})

	t.Run("Mixed kinds", func(t *testing.T) {
		findings := []finding.Finding{
			mk(finding.KindPhantomLoop, finding.SeverityMedium),
			mk(finding.KindDeadComputation, finding.SeverityLow),
			mk(finding.KindSilentFailure, finding.SeverityHigh),
			mk(finding.KindMagicConstant, finding.SeverityLow),
		}
		assert.InDelta(t, 2.0+1.0+3.0+0.5, a.Score(findings), 1e-9)
	})

	t.Run("Diagnostics weigh nothing", func(t *testing.T) {
		d := finding.Diagnostic(finding.KindUnparsableFile, 1, "syntax error")
		assert.Equal(t, 0.0, a.Score([]finding.Finding{d}))
	})

	t.Run("No cap", func(t *testing.T) {
		var many []finding.Finding
		for i := 0; i < 20; i++ {
			many = append(many, mk(finding.KindSilentFailure, finding.SeverityHigh))
		}
		assert.InDelta(t, 60.0, a.Score(many), 1e-9)
	})
}

func TestAggregator_Commutative(t *testing.T) {
	a := NewAggregator(DefaultWeights())
	x := []finding.Finding{mk(finding.KindPhantomLoop, finding.SeverityMedium), mk(finding.KindMagicConstant, finding.SeverityHigh)}
	y := []finding.Finding{mk(finding.KindSilentFailure, finding.SeverityLow)}

	assert.InDelta(t, a.Score(append(append([]finding.Finding{}, x...), y...)), a.Score(x)+a.Score(y), 1e-9)
	assert.InDelta(t, a.Score(append(append([]finding.Finding{}, y...), x...)), a.Score(x)+a.Score(y), 1e-9)
}

func TestAggregator_FileAndProject(t *testing.T) {
	a := NewAggregator(DefaultWeights())

	r1 := a.Result(finding.KindMagicConstant, []finding.Finding{mk(finding.KindMagicConstant, finding.SeverityHigh)})
	r2 := a.Result(finding.KindPhantomLoop, []finding.Finding{mk(finding.KindPhantomLoop, finding.SeverityMedium)})
	f1 := a.File("a.py", []finding.DetectionResult{r1, r2}, nil)
	assert.InDelta(t, 5.0, f1.Score, 1e-9)

	f2 := a.File("b.py", nil, []finding.Finding{finding.Diagnostic(finding.KindUnparsableFile, 3, "syntax error")})
	assert.Equal(t, 0.0, f2.Score)

	report := a.Project([]*finding.FileReport{f1, f2, nil})
	require.Len(t, report.Files, 2)
	assert.InDelta(t, 5.0, report.Total, 1e-9)
	assert.Equal(t, []string{"a.py", "b.py"}, report.Paths())
}

func TestWeights_Immutable(t *testing.T) {
	src := map[finding.Kind]Table{
		finding.KindMagicConstant: {finding.SeverityHigh: 10},
	}
	w := NewWeights(src)
	src[finding.KindMagicConstant][finding.SeverityHigh] = 99

	assert.Equal(t, 10.0, w.Weight(finding.KindMagicConstant, finding.SeverityHigh))

	table := w.Table(finding.KindMagicConstant)
	table[finding.SeverityHigh] = 50
	assert.Equal(t, 10.0, w.Weight(finding.KindMagicConstant, finding.SeverityHigh))

	w2 := w.With(finding.KindPhantomLoop, Table{finding.SeverityMedium: 7})
	assert.Equal(t, 0.0, w.Weight(finding.KindPhantomLoop, finding.SeverityMedium))
	assert.Equal(t, 7.0, w2.Weight(finding.KindPhantomLoop, finding.SeverityMedium))
	assert.Equal(t, 10.0, w2.Weight(finding.KindMagicConstant, finding.SeverityHigh))
}

func TestWeights_Substitution(t *testing.T) {
	flat := NewWeights(map[finding.Kind]Table{
		finding.KindDeadComputation: {finding.SeverityLow: 1, finding.SeverityMedium: 1, finding.SeverityHigh: 1},
	})
	a := NewAggregator(flat)
	findings := []finding.Finding{
		mk(finding.KindDeadComputation, finding.SeverityLow),
		mk(finding.KindDeadComputation, finding.SeverityHigh),
		mk(finding.KindMagicConstant, finding.SeverityHigh),
	}
	assert.Equal(t, 2.0, a.Score(findings))
}
