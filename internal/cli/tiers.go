package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/resources"
)

func newTiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List the compute tiers resources can be fitted to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-14s  %-14s  %5s  %s\n", "NAME", "INSTANCE", "CPUS", "MEMORY")
			fmt.Fprintf(out, "%-14s  %-14s  %5s  %s\n", "----", "--------", "----", "------")
			for _, t := range cfg.Resources.Catalog().Tiers() {
				fmt.Fprintf(out, "%-14s  %-14s  %5d  %s\n", t.Name, orDash(t.InstanceType), t.CPUs, tierMemory(t))
			}
			return nil
		},
	}
}

func tierMemory(t resources.Tier) string {
	return humanize.IBytes(uint64(t.MemoryGB * (1 << 30)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
