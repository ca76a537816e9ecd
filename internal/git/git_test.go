package git

import (
	"path/filepath"
	"testing"

	"darkmatter/internal/finding"
	"darkmatter/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/app/service.py b/app/service.py
index 1111111..2222222 100644
--- a/app/service.py
+++ b/app/service.py
@@ -3,0 +4,2 @@ def run():
+    limit = 500
+    return limit
@@ -10 +12 @@ def stop():
-    pass
+    return None
@@ -20,3 +21,0 @@ def gone():
diff --git a/old.py b/old.py
deleted file mode 100644
--- a/old.py
+++ /dev/null
@@ -1,2 +0,0 @@
-x = 1
-y = 2
diff --git a/new.py b/new.py
new file mode 100644
--- /dev/null
+++ b/new.py
@@ -0,0 +1,3 @@
+a = 1
+b = 2
+c = 3
`

func TestParseDiff(t *testing.T) {
	changes, err := parseDiff([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "app/service.py", changes[0].Path)
	assert.Equal(t, []int{4, 5, 12}, changes[0].ChangedLines)
	assert.True(t, changes[0].Touches(12))
	assert.False(t, changes[0].Touches(21))

	assert.Equal(t, "new.py", changes[1].Path)
	assert.Equal(t, []int{1, 2, 3}, changes[1].ChangedLines)
}

func TestRestrict(t *testing.T) {
	agg := scoring.NewAggregator(scoring.DefaultWeights())
	dir := t.TempDir()
	changed := filepath.Join(dir, "service.py")
	untouched := filepath.Join(dir, "other.py")

	mk := func(line int) finding.Finding {
		return finding.Finding{Kind: finding.KindMagicConstant, Severity: finding.SeverityMedium, Line: line}
	}
	report := agg.Project([]*finding.FileReport{
		agg.File(changed, []finding.DetectionResult{
			agg.Result(finding.KindMagicConstant, []finding.Finding{mk(4), mk(9)}),
		}, nil),
		agg.File(untouched, []finding.DetectionResult{
			agg.Result(finding.KindMagicConstant, []finding.Finding{mk(1)}),
		}, []finding.Finding{finding.Diagnostic(finding.KindDetectorFailed, 0, "boom")}),
	})
	require.InDelta(t, 4.5, report.Total, 1e-9)

	restricted := Restrict(agg, report, []ChangedFile{{Path: changed, ChangedLines: []int{4, 5}}})

	require.Len(t, restricted.Files, 2)
	res, ok := restricted.Files[changed].Result(finding.KindMagicConstant)
	require.True(t, ok)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 4, res.Findings[0].Line)

	assert.Empty(t, restricted.Files[untouched].Results)
	assert.Len(t, restricted.Files[untouched].Diagnostics, 1)
	assert.InDelta(t, 1.5, restricted.Total, 1e-9)
}
