package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"darkmatter/internal/crawler"
	"darkmatter/internal/finding"
	"darkmatter/internal/scanner"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// DefaultDebounce is how long a file must stay quiet before it is rescanned.
const DefaultDebounce = 200 * time.Millisecond

// Watcher rescans source files under a directory tree whenever they change.
type Watcher struct {
	scanner  *scanner.Scanner
	crawler  *crawler.Crawler
	logger   hclog.Logger
	debounce time.Duration
	onReport func(*finding.FileReport)
}

// New creates a watcher that passes every fresh file report to onReport.
// onReport may be called from several goroutines, one file at a time per path.
func New(s *scanner.Scanner, c *crawler.Crawler, logger hclog.Logger, onReport func(*finding.FileReport)) *Watcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Watcher{
		scanner:  s,
		crawler:  c,
		logger:   logger.Named("watch"),
		debounce: DefaultDebounce,
		onReport: onReport,
	}
}

// SetDebounce changes the quiet period before a rescan.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run watches root until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := w.addTree(watcher, root); err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	w.logger.Info("watching for changes", "root", root)

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			mu.Unlock()
			w.logger.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(watcher, event.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.crawler.Match(event.Name) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(w.debounce, func() {
				w.rescan(ctx, path)
				mu.Lock()
				delete(pending, path)
				mu.Unlock()
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// rescan reports path unless the watch has stopped. A scan already underway
// when ctx is cancelled finishes but its report is dropped.
func (w *Watcher) rescan(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	src, err := os.ReadFile(path)
	if err != nil {
		// removed or renamed before the debounce fired
		w.logger.Debug("skipping vanished file", "path", path, "error", err)
		return
	}
	report := w.scanner.ScanSource(context.WithoutCancel(ctx), path, src)
	if ctx.Err() != nil {
		w.logger.Debug("dropping rescan after shutdown", "path", path)
		return
	}
	w.logger.Debug("rescanned", "path", path, "score", report.Score)
	w.onReport(report)
}

// addTree registers root and every non-ignored directory below it.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.crawler.Ignored(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
