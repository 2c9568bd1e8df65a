package resources

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/me/cwl2nf/pkg/model"
)

// GenerateReport renders a human-readable resource usage report. Processes
// are listed in name order, followed by cpu and memory totals.
func (t UnitTable) GenerateReport(rm model.ResourceMap) string {
	names := make([]string, 0, len(rm))
	for name := range rm {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Resource Usage Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	totalCPUs := 0
	var totalGB, totalBytes float64
	for _, name := range names {
		p := rm[name]
		fmt.Fprintf(&b, "Process: %s\n", name)
		fmt.Fprintf(&b, "  CPUs: %d\n", p.CPUs)
		fmt.Fprintf(&b, "  Memory: %s\n", orNA(p.Memory))
		fmt.Fprintf(&b, "  Disk: %s\n", orNA(p.Disk))
		fmt.Fprintf(&b, "  Time: %s\n", orNA(p.Time))
		fmt.Fprintf(&b, "  Instance Type: %s\n", orNA(p.InstanceType))
		b.WriteString("\n")

		totalCPUs += p.CPUs
		if _, bytes, ok := t.Normalize(p.Memory); ok {
			totalBytes += bytes
			if gb, ok := t.GB(p.Memory); ok {
				totalGB += gb
			}
		}
	}

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  Processes: %d\n", len(names))
	fmt.Fprintf(&b, "  Total CPUs: %d\n", totalCPUs)
	fmt.Fprintf(&b, "  Total Memory: %.1f GB (%s)\n", totalGB, humanize.IBytes(uint64(totalBytes)))
	return b.String()
}

// GenerateReport renders the report with the mapper's unit table.
func (m *Mapper) GenerateReport(rm model.ResourceMap) string {
	return m.units.GenerateReport(rm)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
