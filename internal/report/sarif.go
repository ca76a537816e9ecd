package report

import (
	"fmt"
	"io"

	"darkmatter/internal/detector"
	"darkmatter/internal/finding"

	"github.com/owenrumney/go-sarif/v2/sarif"
)

const toolName = "darkmatter"

var diagnosticDescriptions = map[finding.Kind]string{
	finding.KindUnparsableFile: "file could not be parsed",
	finding.KindDetectorFailed: "a detector failed on this file",
	finding.KindInvalidTarget:  "target does not exist or cannot be read",
}

// SARIF writes the report as a SARIF 2.1.0 log with one rule per kind and subtype.
func SARIF(w io.Writer, r *finding.ScanReport) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}

	descriptions := make(map[finding.Kind]string)
	for _, p := range detector.Patterns() {
		descriptions[p.Kind] = p.Description
	}
	for k, d := range diagnosticDescriptions {
		descriptions[k] = d
	}

	run := sarif.NewRun(*sarif.NewSimpleTool(toolName))
	for _, path := range r.Paths() {
		for _, f := range r.Files[path].Findings() {
			id := ruleID(f)
			level := toSarifLevel(f.Severity)
			rule := run.AddRule(id).
				WithDescription(descriptions[f.Kind]).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level})

			region := sarif.NewRegion().WithStartLine(max(f.Line, 1))
			if f.Column > 0 {
				region = region.WithStartColumn(f.Column)
			}
			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(path)).
					WithRegion(region),
			)

			message := f.Message
			if message == "" {
				message = string(f.Kind)
			}
			result := sarif.NewRuleResult(rule.ID).
				WithMessage(sarif.NewTextMessage(message)).
				WithLevel(level).
				WithLocations([]*sarif.Location{location})
			run.AddResult(result)
		}
	}
	report.AddRun(run)
	return report.PrettyWrite(w)
}

func ruleID(f finding.Finding) string {
	if f.Subtype == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + "/" + string(f.Subtype)
}

func toSarifLevel(sev finding.Severity) string {
	switch sev {
	case finding.SeverityHigh:
		return "error"
	case finding.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
