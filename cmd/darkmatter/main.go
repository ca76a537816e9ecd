package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"darkmatter/internal/config"
	"darkmatter/internal/crawler"
	"darkmatter/internal/detector"
	"darkmatter/internal/finding"
	"darkmatter/internal/git"
	"darkmatter/internal/parser"
	"darkmatter/internal/report"
	"darkmatter/internal/scanner"
	"darkmatter/internal/scoring"
	"darkmatter/internal/storage"
	"darkmatter/internal/watch"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "darkmatter",
		Short:         "Find the dark matter in Python code: magic constants, phantom loops, dead computation and silent failures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := hclog.Warn
			if verbose {
				level = hclog.Debug
			}
			logger = hclog.New(&hclog.LoggerOptions{
				Name:   "darkmatter",
				Output: os.Stderr,
				Level:  level,
			})
		},
	}
	configPath string
	dbPath     string
	workers    int
	verbose    bool
	noColor    bool
	record     bool

	logger = hclog.NewNullLogger()
)

// errAllFailed is returned when no scanned file could be analysed.
var errAllFailed = errors.New("no file could be analysed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the scan history database (SQLite); overrides history.db")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Files analysed in parallel (default: config or CPU count)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	rootCmd.PersistentFlags().BoolVar(&record, "record", false, "Record the scan in the history database")

	detectCmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Pattern kind to run (see list-patterns)")
	_ = detectCmd.MarkFlagRequired("pattern")

	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Run every registered detector, ignoring the configured selection")
	scanCmd.Flags().StringVar(&scanSince, "since", "", "Only report findings on lines changed since this git ref")

	reportCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or sarif")
	reportCmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the report to a file instead of stdout")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the findings of one recorded run")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(listPatternsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}

// engine bundles everything one command needs to run a scan.
type engine struct {
	cfg     *config.Config
	crawler *crawler.Crawler
	scanner *scanner.Scanner
}

// initEngine loads the config and builds a scanner for the given detector kinds.
// A nil kinds slice uses the configured selection.
func initEngine(kinds []string) (*engine, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if kinds == nil {
		kinds = cfg.Detectors
	}

	detectors, err := detector.Select(kinds, cfg.DetectorOptions())
	if err != nil {
		return nil, err
	}
	weights, err := cfg.ScoringWeights()
	if err != nil {
		return nil, err
	}

	p, err := parser.NewParser("python")
	if err != nil {
		return nil, err
	}
	extensions := p.Extensions()
	if len(cfg.Scan.Extensions) > 0 {
		extensions = cfg.Scan.Extensions
	}
	cr := crawler.NewCrawler(extensions, cfg.Scan.Ignore...)

	n := cfg.Scan.Workers
	if workers > 0 {
		n = workers
	}
	s := scanner.New(p, detectors, scoring.NewAggregator(weights),
		scanner.WithLogger(logger),
		scanner.WithCrawler(cr),
		scanner.WithWorkers(n),
	)
	return &engine{cfg: cfg, crawler: cr, scanner: s}, nil
}

// runScan scans targets, records the run when requested and applies the exit
// code contract: a failed target or an entirely unanalysable scan is an error.
func (e *engine) runScan(ctx context.Context, targets []string) (*finding.ScanReport, error) {
	rep, err := e.scanner.Scan(ctx, targets)
	if err != nil {
		return nil, err
	}
	if record {
		if err := recordRun(ctx, e.cfg, rep, targets); err != nil {
			logger.Error("failed to record scan", "error", err)
		}
	}
	if rep.AllFailed() {
		return rep, errAllFailed
	}
	return rep, nil
}

func historyDB(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.History.DB
}

// initStore opens the history database, creating its directory if needed.
func initStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	path := historyDB(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	return storage.NewSQLiteStore(path)
}

func recordRun(ctx context.Context, cfg *config.Config, rep *finding.ScanReport, targets []string) error {
	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.SaveReport(ctx, rep, targets)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "💾 Recorded run %s in %s\n", runID, historyDB(cfg))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func targetsOrCwd(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}

var pattern string

var detectCmd = &cobra.Command{
	Use:   "detect --pattern <kind> <file>",
	Short: "Run exactly one detector and print its findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEngine([]string{pattern})
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		rep, err := e.runScan(ctx, args)
		if rep != nil {
			if werr := report.Text(cmd.OutOrStdout(), rep, !noColor); werr != nil {
				return werr
			}
		}
		return err
	},
}

var (
	scanAll   bool
	scanSince string
)

// changedTargets narrows targets to the matching files changed since ref.
func changedTargets(ctx context.Context, e *engine, targets []string, ref string) ([]string, []git.ChangedFile, error) {
	var files []string
	var all []git.ChangedFile
	seen := make(map[string]bool)
	for _, target := range targets {
		dir := target
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			dir = filepath.Dir(target)
		}
		changes, err := git.GetChangedFiles(ctx, dir, ref)
		if err != nil {
			return nil, nil, err
		}
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range changes {
			if seen[c.Path] || !e.crawler.Match(c.Path) {
				continue
			}
			if c.Path != abs && !strings.HasPrefix(c.Path, abs+string(filepath.Separator)) {
				continue
			}
			seen[c.Path] = true
			files = append(files, c.Path)
			all = append(all, c)
		}
	}
	return files, all, nil
}

var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "Run the detectors over files or directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		var kinds []string
		if scanAll {
			kinds = []string{}
		}
		e, err := initEngine(kinds)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		targets := targetsOrCwd(args)
		if scanSince == "" {
			rep, err := e.runScan(ctx, targets)
			if rep != nil {
				if werr := report.Text(cmd.OutOrStdout(), rep, !noColor); werr != nil {
					return werr
				}
			}
			return err
		}

		files, changes, err := changedTargets(ctx, e, targets, scanSince)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No changed source files since %s.\n", scanSince)
			return nil
		}
		logger.Debug("scanning changed files", "ref", scanSince, "files", len(files))
		rep, err := e.runScan(ctx, files)
		if rep != nil {
			rep = git.Restrict(e.scanner.Aggregator(), rep, changes)
			if werr := report.Text(cmd.OutOrStdout(), rep, !noColor); werr != nil {
				return werr
			}
		}
		return err
	},
}

var (
	outputFormat string
	outputFile   string
)

var reportCmd = &cobra.Command{
	Use:   "report [path...]",
	Short: "Run all detectors and serialise the scan report",
	RunE: func(cmd *cobra.Command, args []string) error {
		render, err := renderer(outputFormat)
		if err != nil {
			return err
		}
		e, err := initEngine([]string{})
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		rep, scanErr := e.runScan(ctx, targetsOrCwd(args))
		if rep == nil {
			return scanErr
		}

		var w io.Writer = cmd.OutOrStdout()
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create report file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := render(w, rep); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "📄 Report written to %s\n", outputFile)
		}
		return scanErr
	},
}

func renderer(format string) (func(io.Writer, *finding.ScanReport) error, error) {
	switch strings.ToLower(format) {
	case "text":
		return func(w io.Writer, r *finding.ScanReport) error { return report.Text(w, r, false) }, nil
	case "json":
		return report.JSON, nil
	case "sarif":
		return report.SARIF, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want text, json or sarif)", format)
}

var listPatternsCmd = &cobra.Command{
	Use:   "list-patterns",
	Short: "List the registered detector kinds",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, p := range detector.Patterns() {
			fmt.Fprintf(out, "%-18s %-12s %s\n", p.Kind, p.Status, p.Description)
		}
	},
}

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show scans recorded with --record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := initStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out := cmd.OutOrStdout()

		if historyRun != "" {
			findings, err := store.Findings(ctx, historyRun)
			if err != nil {
				return err
			}
			for _, f := range findings {
				fmt.Fprintf(out, "%s:%s\n", f.Path, f.Finding)
			}
			return nil
		}

		runs, err := store.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No recorded scans. Run a scan with --record first.")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  %3d files  %4d findings  total %.1f  %s\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Files, r.Findings, r.Total,
				strings.Join(r.Targets, " "))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rescan Python files as they change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		e, err := initEngine(nil)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		out := cmd.OutOrStdout()
		var mu sync.Mutex
		w := watch.New(e.scanner, e.crawler, logger, func(fr *finding.FileReport) {
			rep := &finding.ScanReport{Files: map[string]*finding.FileReport{fr.Path: fr}, Total: fr.Score}
			mu.Lock()
			defer mu.Unlock()
			if err := report.Text(out, rep, !noColor); err != nil {
				logger.Error("failed to print report", "error", err)
			}
		})
		fmt.Fprintf(os.Stderr, "👀 Watching %s (Ctrl+C to stop)\n", root)
		return w.Run(ctx, root)
	},
}
