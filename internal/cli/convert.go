package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/internal/convert"
	"github.com/me/cwl2nf/internal/publish"
	"github.com/me/cwl2nf/pkg/model"
)

func newConvertCmd() *cobra.Command {
	var (
		input     string
		outDir    string
		target    string
		pull      bool
		pullCLI   string
		convFlags conversionFlags
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert one CWL document to a Nextflow pipeline",
		Example: `  cwl2nf convert -i workflow.cwl -o out/
  cwl2nf convert -i workflow.cwl -o out/ --mode augmented --tier m5.xlarge --scripts
  cwl2nf convert -i workflow.cwl -o out/ --publish s3://my-bucket/pipelines`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := convFlags.options()
			if err != nil {
				return err
			}
			if target == "" {
				target = cfg.Publish.Target
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}
			conv := buildConverter(cfg, logger, st, true)

			result, err := conv.ConvertFile(ctx, input, opts)
			if err != nil {
				return fmt.Errorf("convert %s: %w", input, err)
			}
			paths, err := conv.WriteArtifacts(outDir, result, convFlags.scripts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printConversion(out, result)
			fmt.Fprintln(out, "  Files:")
			for _, p := range paths {
				fmt.Fprintf(out, "    %s\n", p)
			}

			failed := false
			if pull {
				for _, r := range container.NewPuller(pullCLI, logger).Pull(ctx, result.Containers) {
					if r.OK {
						fmt.Fprintf(out, "  Pulled:     %s\n", r.Image)
						continue
					}
					failed = true
					fmt.Fprintf(out, "  Pull failed: %s: %s\n", r.Image, r.Error)
				}
			}
			if target != "" {
				if err := publishConversion(ctx, out, conv, result, target, convFlags.scripts); err != nil {
					fmt.Fprintf(out, "  Publish failed: %v\n", err)
					failed = true
				}
			}
			if failed {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "CWL document to convert")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Output directory")
	cmd.Flags().StringVar(&target, "publish", "", "Upload artifacts to s3://bucket/prefix (default: publish.target from config)")
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull the resolved container images after converting")
	cmd.Flags().StringVar(&pullCLI, "container-cli", "docker", "Container CLI used by --pull")
	convFlags.register(cmd)
	cmd.MarkFlagRequired("input")

	return cmd
}

func publishConversion(ctx context.Context, out io.Writer, conv *convert.Converter, result *model.Conversion, target string, scripts bool) error {
	var popts []publish.Option
	if cfg.Publish.Region != "" {
		popts = append(popts, publish.WithRegion(cfg.Publish.Region))
	}
	pub, err := publish.NewS3Publisher(ctx, target, logger, popts...)
	if err != nil {
		return err
	}
	arts, err := conv.Artifacts(result, scripts)
	if err != nil {
		return err
	}
	loc, err := pub.Publish(ctx, convert.Stem(result), arts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  Published:  %s\n", loc)
	return nil
}

// printConversion writes the one-screen summary of a conversion.
func printConversion(out io.Writer, c *model.Conversion) {
	status := "VALID"
	if !c.Validation.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(out, "Converted %s\n", c.Input)
	fmt.Fprintf(out, "  Workflow:   %s\n", c.WorkflowName)
	fmt.Fprintf(out, "  Strategy:   %s\n", c.Strategy)
	fmt.Fprintf(out, "  Mode:       %s\n", c.Mode)
	if c.Augmented {
		fmt.Fprintln(out, "  Augmented:  yes")
	}
	if c.Tier != "" {
		fmt.Fprintf(out, "  Tier:       %s\n", c.Tier)
	}
	fmt.Fprintf(out, "  Processes:  %d\n", len(c.Resources))
	fmt.Fprintf(out, "  Validation: %s (score %.1f/100)\n", status, c.Validation.OverallScore)
	for _, issue := range c.Validation.Issues {
		fmt.Fprintf(out, "    [x] %s\n", issue)
	}
	if n := len(c.Diagnostics); n > 0 {
		fmt.Fprintf(out, "  Diagnostics: %d\n", n)
		for _, d := range c.Diagnostics {
			fmt.Fprintf(out, "    %s\n", d)
		}
	}
}
