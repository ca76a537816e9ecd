package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"darkmatter/internal/crawler"
	"darkmatter/internal/detector"
	"darkmatter/internal/finding"
	"darkmatter/internal/parser"
	"darkmatter/internal/scoring"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidTarget reports a scan target that does not exist or cannot be read.
var ErrInvalidTarget = errors.New("invalid target")

// Scanner runs a fixed set of detectors over files and aggregates their findings.
// A Scanner holds no state between scans and is safe for concurrent use.
type Scanner struct {
	parser     *parser.Parser
	detectors  []detector.Detector
	aggregator *scoring.Aggregator
	crawler    *crawler.Crawler
	logger     hclog.Logger
	workers    int
}

type Option func(*Scanner)

// WithLogger sets the logger used for per-file progress and recovered failures.
func WithLogger(l hclog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers bounds how many files are analysed at once.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCrawler sets the collaborator that expands directory targets into files.
func WithCrawler(c *crawler.Crawler) Option {
	return func(s *Scanner) {
		if c != nil {
			s.crawler = c
		}
	}
}

// New creates a scanner. An empty detector list means every registered detector
// with default options.
func New(p *parser.Parser, detectors []detector.Detector, agg *scoring.Aggregator, opts ...Option) *Scanner {
	if len(detectors) == 0 {
		detectors = detector.All(detector.Options{})
	}
	if agg == nil {
		agg = scoring.NewAggregator(scoring.DefaultWeights())
	}
	s := &Scanner{
		parser:     p,
		detectors:  detectors,
		aggregator: agg,
		logger:     hclog.NewNullLogger(),
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.crawler == nil {
		s.crawler = crawler.NewCrawler(p.Extensions())
	}
	s.crawler.WithLogger(s.logger)
	return s
}

// Detectors returns the detectors the scanner runs, in invocation order.
func (s *Scanner) Detectors() []detector.Detector {
	return append([]detector.Detector(nil), s.detectors...)
}

// Aggregator returns the aggregator the scanner scores with.
func (s *Scanner) Aggregator() *scoring.Aggregator {
	return s.aggregator
}

// Scan analyses every file named by targets. Directory targets are expanded by the
// crawler. Per-file problems are recorded as diagnostics in the report. An error is
// returned only when the sole target is invalid or ctx is cancelled; in the latter
// case the report holds the files finished so far.
func (s *Scanner) Scan(ctx context.Context, targets []string) (*finding.ScanReport, error) {
	paths, early, err := s.expand(targets)
	if err != nil {
		return nil, err
	}

	reports := make([]*finding.FileReport, 0, len(paths)+len(early))
	reports = append(reports, early...)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// in-flight files finish even if the scan is cancelled
			r := s.scanFile(context.WithoutCancel(gctx), path)
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := s.aggregator.Project(reports)
	s.logger.Info("scan finished", "files", len(report.Files), "findings", report.FindingCount(), "total", report.Total)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("scan interrupted: %w", err)
	}
	return report, nil
}

// expand resolves targets into a deduplicated file list. Invalid targets become
// reports holding an invalid-target diagnostic, unless there is only one target.
func (s *Scanner) expand(targets []string) ([]string, []*finding.FileReport, error) {
	var (
		paths []string
		early []*finding.FileReport
		seen  = make(map[string]bool)
	)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	invalid := func(p string, err error) {
		s.logger.Warn("invalid target", "path", p, "error", err)
		d := finding.Diagnostic(finding.KindInvalidTarget, 0, err.Error())
		early = append(early, s.aggregator.File(p, nil, []finding.Finding{d}))
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			if len(targets) == 1 {
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidTarget, target, err)
			}
			invalid(target, err)
			continue
		}
		if !info.IsDir() {
			add(target)
			continue
		}
		err = s.crawler.ScanProject(target, func(path string, err error) {
			if err != nil {
				invalid(path, err)
				return
			}
			add(path)
		})
		if err != nil {
			if len(targets) == 1 {
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidTarget, target, err)
			}
			invalid(target, err)
		}
	}
	return paths, early, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string) *finding.FileReport {
	src, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("unreadable file", "path", path, "error", err)
		d := finding.Diagnostic(finding.KindInvalidTarget, 0, err.Error())
		return s.aggregator.File(path, nil, []finding.Finding{d})
	}
	return s.ScanSource(ctx, path, src)
}

// ScanSource analyses a single in-memory file. It never fails: parse and detector
// failures are recorded as diagnostics on the returned report.
func (s *Scanner) ScanSource(ctx context.Context, path string, src []byte) *finding.FileReport {
	tree, err := s.parser.Parse(ctx, path, src)
	if err != nil {
		s.logger.Warn("unparsable file", "path", path, "error", err)
		line := 0
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			line = perr.Line
		}
		d := finding.Diagnostic(finding.KindUnparsableFile, line, err.Error())
		return s.aggregator.File(path, nil, []finding.Finding{d})
	}
	defer tree.Close()

	var (
		results     []finding.DetectionResult
		diagnostics []finding.Finding
	)
	for _, d := range s.detectors {
		findings, err := runDetector(d, tree)
		if err != nil {
			s.logger.Error("detector failed", "path", path, "detector", d.Kind(), "error", err)
			diag := finding.Diagnostic(finding.KindDetectorFailed, 0, fmt.Sprintf("%s: %v", d.Kind(), err))
			diagnostics = append(diagnostics, diag.WithMeta("detector", string(d.Kind())))
			continue
		}
		results = append(results, s.aggregator.Result(d.Kind(), findings))
	}

	report := s.aggregator.File(path, results, diagnostics)
	s.logger.Debug("scanned file", "path", path, "findings", len(report.Findings()), "score", report.Score)
	return report
}

// runDetector converts a detector panic into an error.
func runDetector(d detector.Detector, tree *parser.Tree) (findings []finding.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(tree)
}
