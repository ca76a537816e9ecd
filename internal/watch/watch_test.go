package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"darkmatter/internal/crawler"
	"darkmatter/internal/finding"
	"darkmatter/internal/parser"
	"darkmatter/internal/scanner"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_RescansChangedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "pkg"), 0o755))

	p, err := parser.NewParser("python")
	require.NoError(t, err)
	c := crawler.NewCrawler(p.Extensions())
	s := scanner.New(p, nil, nil, scanner.WithCrawler(c))

	reports := make(chan *finding.FileReport, 8)
	w := New(s, c, hclog.NewNullLogger(), func(r *finding.FileReport) { reports <- r })
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, root) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher time to register directories
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644))
	target := filepath.Join(root, "pkg", "mod.py")
	require.NoError(t, os.WriteFile(target, []byte("try:\n    run()\nexcept:\n    pass\n"), 0o644))

	select {
	case r := <-reports:
		assert.Equal(t, target, r.Path)
		assert.InDelta(t, 3.0, r.Score, 1e-9)
	case <-time.After(5 * time.Second):
		t.Fatal("no report after file change")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	p, err := parser.NewParser("python")
	require.NoError(t, err)
	c := crawler.NewCrawler(p.Extensions())
	w := New(scanner.New(p, nil, nil), c, nil, func(*finding.FileReport) {})
	err = w.Run(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func newRescanWatcher(t *testing.T, reports chan<- *finding.FileReport) *Watcher {
	t.Helper()
	p, err := parser.NewParser("python")
	require.NoError(t, err)
	c := crawler.NewCrawler(p.Extensions())
	return New(scanner.New(p, nil, nil), c, nil, func(r *finding.FileReport) { reports <- r })
}

func TestWatcher_RescanAfterShutdownIsDropped(t *testing.T) {
	target := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(target, []byte("def f():\n    return 1\n"), 0o644))

	reports := make(chan *finding.FileReport, 1)
	w := newRescanWatcher(t, reports)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.rescan(ctx, target)
	assert.Empty(t, reports)
}

func TestWatcher_RescanReportsValidFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "mod.py")
	require.NoError(t, os.WriteFile(target, []byte("def f():\n    return 1\n"), 0o644))

	reports := make(chan *finding.FileReport, 1)
	w := newRescanWatcher(t, reports)
	w.rescan(context.Background(), target)

	require.Len(t, reports, 1)
	r := <-reports
	assert.Equal(t, target, r.Path)
	assert.False(t, r.Unparsable())
	assert.Empty(t, r.Diagnostics)
}
