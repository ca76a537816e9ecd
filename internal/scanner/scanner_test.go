package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"darkmatter/internal/detector"
	"darkmatter/internal/finding"
	"darkmatter/internal/parser"
	"darkmatter/internal/scoring"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const processSrc = "def process(data):\n    threshold = 0.7\n    if score > threshold * 1.2:\n        return data[:100]\n"

func newScanner(t *testing.T, detectors ...detector.Detector) *Scanner {
	t.Helper()
	p, err := parser.NewParser("python")
	require.NoError(t, err)
	return New(p, detectors, scoring.NewAggregator(scoring.DefaultWeights()),
		WithLogger(hclog.NewNullLogger()), WithWorkers(2))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type panicDetector struct{}

func (panicDetector) Kind() finding.Kind { return finding.KindPhantomLoop }
func (panicDetector) Detect(*parser.Tree) ([]finding.Finding, error) {
	panic("unexpected node shape")
}

type failingDetector struct{}

func (failingDetector) Kind() finding.Kind { return finding.KindSilentFailure }
func (failingDetector) Detect(*parser.Tree) ([]finding.Finding, error) {
	return nil, errors.New("boom")
}

func TestScanSource_EndToEndExample(t *testing.T) {
	s := newScanner(t)
	report := s.ScanSource(context.Background(), "process.py", []byte(processSrc))

	require.Empty(t, report.Diagnostics)
	require.Len(t, report.Results, 4)

	magic, ok := report.Result(finding.KindMagicConstant)
	require.True(t, ok)
	assert.Len(t, magic.Findings, 3)
	assert.InDelta(t, 4.5, magic.Score, 1e-9)
	assert.InDelta(t, 4.5, report.Score, 1e-9)

	for _, kind := range []finding.Kind{finding.KindPhantomLoop, finding.KindDeadComputation, finding.KindSilentFailure} {
		r, ok := report.Result(kind)
		require.True(t, ok)
		assert.Empty(t, r.Findings, "%s", kind)
		assert.Equal(t, 0.0, r.Score)
	}
}

func TestScanSource_Unparsable(t *testing.T) {
	s := newScanner(t)
	report := s.ScanSource(context.Background(), "broken.py", []byte("def broken(:\n    return 1\n"))

	assert.Empty(t, report.Results)
	require.Len(t, report.Diagnostics, 1)
	d := report.Diagnostics[0]
	assert.Equal(t, finding.KindUnparsableFile, d.Kind)
	assert.Equal(t, finding.SeverityLow, d.Severity)
	assert.Equal(t, 1, d.Line)
	assert.True(t, report.Unparsable())
}

func TestScanSource_DetectorFailuresAreRecorded(t *testing.T) {
	magic := detector.NewMagicConstantDetector(detector.Options{})
	s := newScanner(t, panicDetector{}, magic, failingDetector{})
	report := s.ScanSource(context.Background(), "process.py", []byte(processSrc))

	require.Len(t, report.Results, 1)
	assert.Equal(t, finding.KindMagicConstant, report.Results[0].Detector)

	require.Len(t, report.Diagnostics, 2)
	assert.Equal(t, finding.KindDetectorFailed, report.Diagnostics[0].Kind)
	assert.Equal(t, "phantom-loop", report.Diagnostics[0].Meta("detector"))
	assert.Contains(t, report.Diagnostics[0].Message, "unexpected node shape")
	assert.Equal(t, "silent-failure", report.Diagnostics[1].Meta("detector"))
	assert.InDelta(t, 4.5, report.Score, 1e-9)
	assert.False(t, report.Unparsable())
}

func TestScan_DirectoryWithBrokenFile(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.py", processSrc)
	other := writeFile(t, dir, "pkg/other.py", "def f():\n    try:\n        return g()\n    except:\n        pass\n")
	broken := writeFile(t, dir, "broken.py", "def broken(:\n")
	writeFile(t, dir, "notes.txt", "ignored")

	report, err := newScanner(t).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, report.Files, 3)

	assert.True(t, report.Files[broken].Unparsable())
	assert.Len(t, report.Files[good].Results, 4)
	assert.Len(t, report.Files[other].Results, 4)
	assert.InDelta(t, 4.5, report.Files[good].Score, 1e-9)
	assert.InDelta(t, 3.0, report.Files[other].Score, 1e-9)
	assert.InDelta(t, 7.5, report.Total, 1e-9)
	assert.False(t, report.AllFailed())
}

func TestScan_InvalidTargets(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.py")

	t.Run("Sole target fails the scan", func(t *testing.T) {
		_, err := newScanner(t).Scan(context.Background(), []string{missing})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTarget))
	})

	t.Run("One of several targets is recorded", func(t *testing.T) {
		good := writeFile(t, dir, "good.py", processSrc)
		report, err := newScanner(t).Scan(context.Background(), []string{good, missing})
		require.NoError(t, err)
		require.Len(t, report.Files, 2)
		require.Len(t, report.Files[missing].Diagnostics, 1)
		assert.Equal(t, finding.KindInvalidTarget, report.Files[missing].Diagnostics[0].Kind)
		assert.False(t, report.AllFailed())
	})

	t.Run("Every file failing is visible", func(t *testing.T) {
		broken := writeFile(t, dir, "only/broken.py", "def broken(:\n")
		report, err := newScanner(t).Scan(context.Background(), []string{broken})
		require.NoError(t, err)
		assert.True(t, report.AllFailed())
	})
}

func TestScan_DuplicateTargets(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.py", processSrc)
	report, err := newScanner(t).Scan(context.Background(), []string{good, good, dir})
	require.NoError(t, err)
	assert.Len(t, report.Files, 1)
	assert.InDelta(t, 4.5, report.Total, 1e-9)
}

func TestScan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.py", processSrc)
	writeFile(t, dir, "b.py", processSrc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newScanner(t).Scan(ctx, []string{dir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report)
	assert.Empty(t, report.Files)
}

func TestScan_Deterministic(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.py", "b.py", "c.py", "d.py"} {
		writeFile(t, dir, name, processSrc)
	}
	s := newScanner(t)
	first, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
