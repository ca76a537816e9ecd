package report

import (
	"fmt"
	"io"

	"darkmatter/internal/finding"

	"github.com/charmbracelet/lipgloss"
)

var (
	pathStyle   = lipgloss.NewStyle().Bold(true)
	kindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
)

type textWriter struct {
	w     io.Writer
	color bool
}

func (t textWriter) style(s lipgloss.Style, text string) string {
	if !t.color {
		return text
	}
	return s.Render(text)
}

func (t textWriter) severity(sev finding.Severity) string {
	label := fmt.Sprintf("%-6s", sev)
	switch sev {
	case finding.SeverityHigh:
		return t.style(highStyle, label)
	case finding.SeverityMedium:
		return t.style(mediumStyle, label)
	}
	return t.style(lowStyle, label)
}

// Text writes a human-readable report grouped by file in path order. color enables
// terminal styling.
func Text(w io.Writer, r *finding.ScanReport, color bool) error {
	t := textWriter{w: w, color: color}
	for _, path := range r.Paths() {
		if err := t.file(r.Files[path]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s %.1f (%d files, %d findings)\n",
		t.style(totalStyle, "Total dark mass:"), r.Total, len(r.Files), r.FindingCount())
	return err
}

func (t textWriter) file(f *finding.FileReport) error {
	fmt.Fprintf(t.w, "%s  score %.1f\n", t.style(pathStyle, f.Path), f.Score)
	for _, d := range f.Diagnostics {
		fmt.Fprintf(t.w, "  ! %s: %s\n", d.Kind, d.Message)
	}
	for _, res := range f.Results {
		if len(res.Findings) == 0 {
			continue
		}
		fmt.Fprintf(t.w, "  %s  %.1f\n", t.style(kindStyle, string(res.Detector)), res.Score)
		for _, fd := range res.Findings {
			fmt.Fprintf(t.w, "    %4d:%-3d %s %-40s %s\n", fd.Line, fd.Column, t.severity(fd.Severity), fd.Subtype, fd.Message)
		}
	}
	_, err := fmt.Fprintln(t.w)
	return err
}
