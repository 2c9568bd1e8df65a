package convert

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/me/cwl2nf/pkg/model"
)

// BatchOptions bound a batch run. A deadline on the context passed to Batch
// stops items that have not started yet.
type BatchOptions struct {
	Options
	// Workers is the pool size; zero means GOMAXPROCS.
	Workers int
}

// Batch converts every input with a bounded worker pool and waits for all of
// them. One input's failure is recorded in its item and never stops the
// others. Items keep the order of inputs.
func (c *Converter) Batch(ctx context.Context, inputs []string, opts BatchOptions) *model.BatchSummary {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	summary := &model.BatchSummary{
		ID:        uuid.New().String(),
		Total:     len(inputs),
		Mode:      opts.Mode,
		Tier:      opts.Tier,
		Items:     make([]model.BatchItem, len(inputs)),
		Errors:    []string{},
		CreatedAt: c.now().UTC(),
	}
	if summary.Mode == "" {
		summary.Mode = model.ModeBase
	}
	c.logger.Info("batch started", "batch", summary.ID, "inputs", len(inputs), "workers", workers)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, input := range inputs {
		g.Go(func() error {
			summary.Items[i] = c.batchItem(ctx, summary.ID, input, opts.Options)
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range summary.Items {
		if item.Successful() {
			summary.Successful++
			continue
		}
		summary.Failed++
		summary.Errors = append(summary.Errors, item.Input+": "+item.Error)
	}
	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(summary.Total) * 100
	}

	if c.recorder != nil {
		rec := &model.BatchRecord{
			ID:         summary.ID,
			Total:      summary.Total,
			Successful: summary.Successful,
			Failed:     summary.Failed,
			CreatedAt:  summary.CreatedAt,
		}
		if err := c.recorder.SaveBatch(ctx, rec); err != nil {
			c.logger.Warn("record batch failed", "batch", summary.ID, "error", err)
		}
	}
	c.logger.Info("batch completed", "batch", summary.ID,
		"successful", summary.Successful, "failed", summary.Failed)
	return summary
}

func (c *Converter) batchItem(ctx context.Context, batchID, input string, opts Options) (item model.BatchItem) {
	item.Input = input
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			item.Conversion = nil
			item.Err = &model.BatchItemFailure{Input: input, Err: err}
			item.Error = err.Error()
		}
		if item.Err != nil {
			c.logger.Error("batch item failed", "batch", batchID, "input", input, "error", item.Error)
		}
	}()

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("batch deadline reached before conversion started: %w", err)
		item.Err = &model.BatchItemFailure{Input: input, Err: err}
		item.Error = err.Error()
		c.record(ctx, batchID, input, nil, err)
		return item
	}

	conv, err := c.convertFile(input, opts)
	c.record(ctx, batchID, input, conv, err)
	if err != nil {
		item.Err = &model.BatchItemFailure{Input: input, Err: err}
		item.Error = err.Error()
		return item
	}
	item.Conversion = conv
	return item
}

// Discover returns the .cwl files under root, recursively and sorted. A
// file path is returned as is.
func Discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if path == root || strings.EqualFold(filepath.Ext(path), ".cwl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
