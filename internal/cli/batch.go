package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/convert"
	"github.com/me/cwl2nf/pkg/model"
)

func newBatchCmd() *cobra.Command {
	var (
		input     string
		outDir    string
		workers   int
		timeout   time.Duration
		report    string
		convFlags conversionFlags
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Convert every .cwl file under a directory",
		Long: `Convert every .cwl file found recursively under the input directory with a
bounded worker pool. One document's failure never stops the others; the
command exits non-zero when any document failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := convFlags.options()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Batch.Workers
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Batch.Timeout
			}

			inputs, err := convert.Discover(input)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no .cwl files found under %s", input)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			st, err := openStore(cmd.Context(), cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}
			conv := buildConverter(cfg, logger, st, true)

			summary := conv.Batch(ctx, inputs, convert.BatchOptions{Options: opts, Workers: workers})
			if err := writeBatch(conv, outDir, summary, convFlags.scripts); err != nil {
				return err
			}

			text := convert.BatchReport(summary)
			if report != "" {
				if err := os.WriteFile(report, []byte(text), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", report)
			} else {
				fmt.Fprint(cmd.OutOrStdout(), text)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %d/%d documents (%.1f%%)\n",
				summary.Successful, summary.Total, summary.SuccessRate)

			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed to convert", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Directory searched recursively for .cwl files")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Output directory; each workflow gets its own subdirectory")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent conversions (default: batch.workers, 0 means one per CPU)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Deadline for the whole batch (default: batch.timeout)")
	cmd.Flags().StringVar(&report, "report", "", "Write the text report to this file instead of stdout")
	convFlags.register(cmd)
	cmd.MarkFlagRequired("input")

	return cmd
}

// writeBatch writes each successful conversion into its own subdirectory
// and the JSON summary into outDir. Workflows sharing a name get numbered
// subdirectories in input order.
func writeBatch(conv *convert.Converter, outDir string, summary *model.BatchSummary, scripts bool) error {
	used := make(map[string]int)
	for _, item := range summary.Items {
		if !item.Successful() {
			continue
		}
		stem := convert.Stem(item.Conversion)
		used[stem]++
		dir := stem
		if n := used[stem]; n > 1 {
			dir = stem + "_" + strconv.Itoa(n)
		}
		if _, err := conv.WriteArtifacts(filepath.Join(outDir, dir), item.Conversion, scripts); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch summary: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outDir, err)
	}
	path := filepath.Join(outDir, "batch_summary.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
