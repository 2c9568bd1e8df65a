package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/validate"
	"github.com/me/cwl2nf/pkg/model"
)

func newValidateCmd() *cobra.Command {
	var (
		asJSON bool
		lint   bool
		nfBin  string
	)

	cmd := &cobra.Command{
		Use:   "validate <pipeline.nf>",
		Short: "Score a Nextflow pipeline",
		Long: `Score a Nextflow pipeline against the built-in rules and print the report.
With --lint the pipeline is also checked by the nextflow CLI. The command
exits non-zero when the pipeline has issues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read pipeline: %w", err)
			}

			result, diags := buildConverter(cfg, logger, nil, false).Validator.Validate(string(data))

			var lintResult *validate.LintResult
			if lint {
				r := validate.NewLinter(nfBin, 0).Lint(cmd.Context(), path)
				lintResult = &r
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					*model.ValidationResult
					Diagnostics model.Diagnostics    `json:"diagnostics,omitempty"`
					Lint        *validate.LintResult `json:"lint,omitempty"`
				}{result, diags, lintResult}); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
			} else {
				fmt.Fprint(out, validate.Report(result))
				for _, d := range diags {
					fmt.Fprintf(out, "%s\n", d)
				}
				if lintResult != nil {
					status := "passed"
					if !lintResult.Valid {
						status = "failed"
					}
					fmt.Fprintf(out, "nextflow check %s (exit %d)\n", status, lintResult.ExitCode)
					if lintResult.Error != "" {
						fmt.Fprintln(out, lintResult.Error)
					}
				}
			}

			if !result.Valid || (lintResult != nil && !lintResult.Valid) {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&lint, "lint", false, "Also check the pipeline with the nextflow CLI")
	cmd.Flags().StringVar(&nfBin, "nextflow", "nextflow", "nextflow binary used by --lint")

	return cmd
}
