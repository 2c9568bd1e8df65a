package convert

import (
	"fmt"
	"strings"

	"github.com/me/cwl2nf/pkg/model"
)

// BatchReport renders a batch summary as text.
func BatchReport(s *model.BatchSummary) string {
	var b strings.Builder
	b.WriteString("CWL to Nextflow Batch Conversion Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Batch: %s\n", s.ID)
	fmt.Fprintf(&b, "Mode: %s\n", s.Mode)
	if s.Tier != "" {
		fmt.Fprintf(&b, "Tier: %s\n", s.Tier)
	}
	fmt.Fprintf(&b, "Total: %d\n", s.Total)
	fmt.Fprintf(&b, "Successful: %d\n", s.Successful)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n\n", s.SuccessRate)

	invalid := 0
	if s.Successful > 0 {
		b.WriteString("Successful conversions:\n")
		for _, item := range s.Items {
			if !item.Successful() {
				continue
			}
			v := item.Conversion.Validation
			status := "valid"
			if !v.Valid {
				status = "invalid"
				invalid++
			}
			fmt.Fprintf(&b, "  [ok] %s -> %s (%s, score %.1f)\n", item.Input, item.Conversion.WorkflowName, status, v.OverallScore)
		}
		b.WriteString("\n")
	}

	if s.Failed > 0 {
		b.WriteString("Failed conversions:\n")
		for _, item := range s.Items {
			if !item.Successful() {
				fmt.Fprintf(&b, "  [x] %s: %s\n", item.Input, item.Error)
			}
		}
		b.WriteString("\n")
	}

	var recs []string
	if s.Failed > 0 {
		recs = append(recs, "Fix the failed documents and convert them again")
	}
	if invalid > 0 {
		recs = append(recs, fmt.Sprintf("Review validation issues in %d generated pipeline(s)", invalid))
	}
	if s.Total > 0 && s.Failed == 0 && invalid == 0 {
		recs = append(recs, "Run the generated pipelines with -profile healthomics to test them on AWS")
	}
	if len(recs) > 0 {
		b.WriteString("Recommendations:\n")
		for _, r := range recs {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	return b.String()
}
