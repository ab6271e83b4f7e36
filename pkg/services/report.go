package services

import (
	"fmt"
	"sort"

	"github.com/jinzhu/inflection"

	"github.com/heliogrid/onboard-engine/pkg/models"
)

// SummarizeReport renders the report's row counts as human-readable lines for
// caller-side auditing, one per entity kind, kinds sorted for stable output.
func SummarizeReport(report *models.BatchReport) []string {
	kinds := make([]string, 0, len(report.RowCounts))
	for kind := range report.RowCounts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	lines := make([]string, 0, len(kinds)+len(report.Warnings))
	for _, kind := range kinds {
		n := report.RowCounts[kind]
		label := kind
		if n != 1 {
			label = inflection.Plural(kind)
		}
		lines = append(lines, fmt.Sprintf("%d %s", n, label))
	}
	for _, w := range report.Warnings {
		lines = append(lines, "warning: "+w)
	}
	return lines
}
