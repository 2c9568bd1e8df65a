package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit   int
		offset  int
		batchID string
		remote  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversions, newest first",
		Long: `List recorded conversions, newest first, from the local history store
(--db or store.path) or from a running API with --server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := model.ListOptions{Limit: limit, Offset: offset, BatchID: batchID}
			opts.Clamp()

			var (
				recs  []*model.HistoryRecord
				total int
				err   error
			)
			if remote != "" {
				recs, total, err = remoteHistory(cmd.Context(), NewClient(remote, logger), opts)
			} else {
				recs, total, err = localHistory(cmd.Context(), opts)
			}
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), recs, total, opts)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to show (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	cmd.Flags().StringVar(&batchID, "batch", "", "Only show conversions of this batch")
	cmd.Flags().StringVar(&remote, "server", "", "Read history from a running cwl2nf API at this URL")

	return cmd
}

func localHistory(ctx context.Context, opts model.ListOptions) ([]*model.HistoryRecord, int, error) {
	if cfg.Store.Path == "" {
		return nil, 0, errors.New("no history store configured; pass --db or set store.path")
	}
	st, err := openStore(ctx, cfg.Store.Path, logger)
	if err != nil {
		return nil, 0, err
	}
	defer st.Close()
	return st.ListConversions(ctx, opts)
}

func remoteHistory(ctx context.Context, c *Client, opts model.ListOptions) ([]*model.HistoryRecord, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if opts.BatchID != "" {
		q.Set("batch_id", opts.BatchID)
	}
	resp, err := c.Get(ctx, "/api/v1/conversions?"+q.Encode())
	if err != nil {
		return nil, 0, fmt.Errorf("list conversions: %w", err)
	}

	var recs []*model.HistoryRecord
	if err := json.Unmarshal(resp.Data, &recs); err != nil {
		return nil, 0, fmt.Errorf("parse response: %w", err)
	}
	total := len(recs)
	if resp.Pagination != nil {
		total = resp.Pagination.Total
	}
	return recs, total, nil
}

func printHistory(out io.Writer, recs []*model.HistoryRecord, total int, opts model.ListOptions) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No conversions recorded.")
		return
	}

	fmt.Fprintf(out, "%-36s  %-24s  %-8s  %-6s  %5s  %s\n", "ID", "WORKFLOW", "STATUS", "VALID", "SCORE", "CREATED")
	fmt.Fprintf(out, "%-36s  %-24s  %-8s  %-6s  %5s  %s\n", "--", "--------", "------", "-----", "-----", "-------")
	for _, r := range recs {
		status, valid, score := "ok", strconv.FormatBool(r.Valid), fmt.Sprintf("%.1f", r.OverallScore)
		name := r.WorkflowName
		if !r.Success {
			status, valid, score = "failed", "-", "-"
			if name == "" {
				name = r.Input
			}
		}
		fmt.Fprintf(out, "%-36s  %-24s  %-8s  %-6s  %5s  %s\n", r.ID, name, status, valid, score, humanize.Time(r.CreatedAt))
	}

	if shown := opts.Offset + len(recs); shown < total {
		fmt.Fprintf(out, "\n(%d-%d of %d shown)\n", opts.Offset+1, shown, total)
	}
}
