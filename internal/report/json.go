package report

import (
	"encoding/json"
	"io"

	"darkmatter/internal/finding"
)

type jsonDocument struct {
	Total    float64               `json:"total"`
	Files    int                   `json:"file_count"`
	Findings int                   `json:"finding_count"`
	Reports  []*finding.FileReport `json:"files"`
}

// JSON writes the report as an indented JSON document with files in path order.
func JSON(w io.Writer, r *finding.ScanReport) error {
	doc := jsonDocument{
		Total:    r.Total,
		Files:    len(r.Files),
		Findings: r.FindingCount(),
		Reports:  make([]*finding.FileReport, 0, len(r.Files)),
	}
	for _, p := range r.Paths() {
		doc.Reports = append(doc.Reports, r.Files[p])
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
