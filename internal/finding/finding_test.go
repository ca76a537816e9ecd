package finding

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_Ordering(t *testing.T) {
	assert.Less(t, SeverityLow, SeverityMedium)
	assert.Less(t, SeverityMedium, SeverityHigh)
	assert.Equal(t, SeverityHigh, ParseSeverity("high"))
	assert.Equal(t, Severity(0), ParseSeverity("critical"))
}

func TestSeverity_JSON(t *testing.T) {
	data, err := json.Marshal(Finding{Kind: KindPhantomLoop, Severity: SeverityMedium, Line: 3})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"MEDIUM"`)

	var f Finding
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, SeverityMedium, f.Severity)

	err = json.Unmarshal([]byte(`{"severity":"SEVERE"}`), &f)
	assert.Error(t, err)
}

func TestFinding_WithMetaDoesNotAlias(t *testing.T) {
	base := Finding{Kind: KindPhantomLoop}.WithMeta("exit", "break")
	other := base.WithMeta("exit", "return")

	assert.Equal(t, "break", base.Meta("exit"))
	assert.Equal(t, "return", other.Meta("exit"))
}

func TestSort_SourceOrder(t *testing.T) {
	findings := []Finding{
		{Kind: KindSilentFailure, Line: 9},
		{Kind: KindMagicConstant, Line: 2, Column: 10},
		{Kind: KindDeadComputation, Line: 2, Column: 4},
		{Kind: KindMagicConstant, Line: 1},
	}
	Sort(findings)

	lines := []int{}
	for _, f := range findings {
		lines = append(lines, f.Line)
	}
	assert.Equal(t, []int{1, 2, 2, 9}, lines)
	assert.Equal(t, KindDeadComputation, findings[1].Kind)
}

func TestScanReport_Helpers(t *testing.T) {
	report := &ScanReport{Files: map[string]*FileReport{
		"b.py": {Path: "b.py", Diagnostics: []Finding{Diagnostic(KindUnparsableFile, 1, "syntax error")}},
		"a.py": {Path: "a.py", Results: []DetectionResult{{
			Detector: KindMagicConstant,
			Findings: []Finding{{Kind: KindMagicConstant, Line: 1}},
		}}},
	}}

	assert.Equal(t, []string{"a.py", "b.py"}, report.Paths())
	assert.Equal(t, 2, report.FindingCount())
	assert.False(t, report.AllFailed())

	res, ok := report.Files["a.py"].Result(KindMagicConstant)
	require.True(t, ok)
	assert.Len(t, res.Findings, 1)

	delete(report.Files, "a.py")
	assert.True(t, report.AllFailed())
}
