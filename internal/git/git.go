package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"darkmatter/internal/finding"
	"darkmatter/internal/scoring"
)

type ChangedFile struct {
	Path         string
	ChangedLines []int
}

// Touches reports whether line was added or modified.
func (c ChangedFile) Touches(line int) bool {
	for _, l := range c.ChangedLines {
		if l == line {
			return true
		}
	}
	return false
}

// GetChangedFiles runs git diff in dir against baseRef and returns the files that
// still exist with their added or modified line numbers. Paths are absolute.
func GetChangedFiles(ctx context.Context, dir, baseRef string) ([]ChangedFile, error) {
	top, err := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return nil, fmt.Errorf("not a git repository %s: %w", dir, err)
	}
	root := strings.TrimSpace(string(top))

	output, err := exec.CommandContext(ctx, "git", "-C", dir, "diff", "-U0", "--no-color", baseRef, "--").Output()
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	changes, err := parseDiff(output)
	if err != nil {
		return nil, err
	}
	for i := range changes {
		changes[i].Path = filepath.Join(root, filepath.FromSlash(changes[i].Path))
	}
	return changes, nil
}

// chunkHeader matches @@ -oldStart,oldLen +newStart,newLen @@; only the + side matters.
var chunkHeader = regexp.MustCompile(`^@@ \-\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

func parseDiff(output []byte) ([]ChangedFile, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var changes []ChangedFile
	var currentFile *ChangedFile

	flush := func() {
		if currentFile != nil {
			changes = append(changes, *currentFile)
			currentFile = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "diff --git"):
			flush()
			continue
		case strings.HasPrefix(line, "+++ "):
			target := strings.TrimPrefix(line, "+++ ")
			if target == "/dev/null" {
				// deleted file
				continue
			}
			currentFile = &ChangedFile{Path: strings.TrimPrefix(target, "b/"), ChangedLines: []int{}}
			continue
		}

		if currentFile == nil || !strings.HasPrefix(line, "@@") {
			continue
		}
		matches := chunkHeader.FindStringSubmatch(line)
		if len(matches) < 2 {
			continue
		}
		startLine, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("bad chunk header %q: %w", line, err)
		}
		count := 1
		if matches[2] != "" {
			count, _ = strconv.Atoi(matches[2])
		}
		// count 0 is a pure deletion: no line of the new file changed
		for i := 0; i < count; i++ {
			currentFile.ChangedLines = append(currentFile.ChangedLines, startLine+i)
		}
	}
	flush()

	return changes, scanner.Err()
}

// Restrict keeps only the findings reported on changed lines of changed files and
// rescores the result. Diagnostics are always kept.
func Restrict(agg *scoring.Aggregator, report *finding.ScanReport, changes []ChangedFile) *finding.ScanReport {
	byPath := make(map[string]ChangedFile, len(changes))
	for _, c := range changes {
		byPath[filepath.Clean(c.Path)] = c
	}

	var files []*finding.FileReport
	for _, path := range report.Paths() {
		fr := report.Files[path]
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		change, ok := byPath[filepath.Clean(abs)]
		if !ok {
			files = append(files, agg.File(path, nil, fr.Diagnostics))
			continue
		}

		var results []finding.DetectionResult
		for _, res := range fr.Results {
			var kept []finding.Finding
			for _, f := range res.Findings {
				if change.Touches(f.Line) {
					kept = append(kept, f)
				}
			}
			results = append(results, agg.Result(res.Detector, kept))
		}
		files = append(files, agg.File(path, results, fr.Diagnostics))
	}
	return agg.Project(files)
}
