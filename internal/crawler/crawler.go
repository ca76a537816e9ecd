package crawler

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// DefaultIgnored lists directories that never hold first-party source.
var DefaultIgnored = []string{
	".git", ".hg", "__pycache__", "venv", ".venv", "env", "node_modules", ".tox",
	".mypy_cache", ".pytest_cache", "build", "dist", "site-packages",
}

// Crawler scans a directory for source files.
type Crawler struct {
	extensions []string
	ignored    []string
	logger     hclog.Logger
}

// NewCrawler creates a crawler that keeps files with one of the given extensions
// and skips DefaultIgnored plus any extra directory names.
func NewCrawler(extensions []string, extraIgnored ...string) *Crawler {
	ignored := append([]string{}, DefaultIgnored...)
	ignored = append(ignored, extraIgnored...)
	return &Crawler{
		extensions: extensions,
		ignored:    ignored,
		logger:     hclog.NewNullLogger(),
	}
}

// WithLogger sets the logger skipped and unreadable entries are reported to.
func (c *Crawler) WithLogger(l hclog.Logger) *Crawler {
	if l != nil {
		c.logger = l.Named("crawler")
	}
	return c
}

// Match reports whether path has one of the crawler's extensions.
func (c *Crawler) Match(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Ignored reports whether a directory with this name is skipped.
func (c *Crawler) Ignored(name string) bool {
	for _, ign := range c.ignored {
		if name == ign {
			return true
		}
	}
	return strings.HasSuffix(name, ".egg-info")
}

// ScanProject walks the root directory and streams every matching file to visit in
// lexical order. Entries that cannot be read are passed to visit with their error
// and the walk continues. Only a failure to open root itself is returned.
func (c *Crawler) ScanProject(root string, visit func(path string, err error)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			c.logger.Warn("unreadable entry", "path", path, "error", err)
			visit(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip ignored directories
		if d.IsDir() {
			if path != root && c.Ignored(d.Name()) {
				c.logger.Debug("skipping directory", "path", path)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !c.Match(path) {
			return nil
		}

		visit(path, nil)
		return nil
	})
}

// Collect returns the matching files under root and the entries that failed.
func (c *Crawler) Collect(root string) (files []string, failures map[string]error, err error) {
	failures = make(map[string]error)
	err = c.ScanProject(root, func(path string, err error) {
		if err != nil {
			failures[path] = err
			return
		}
		files = append(files, path)
	})
	return files, failures, err
}
