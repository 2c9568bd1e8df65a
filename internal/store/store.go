package store

import (
	"context"

	"github.com/me/cwl2nf/pkg/model"
)

// Store defines the persistence layer for conversion history.
type Store interface {
	// Conversions
	SaveConversion(ctx context.Context, rec *model.HistoryRecord) error
	GetConversion(ctx context.Context, id string) (*model.HistoryRecord, error)
	ListConversions(ctx context.Context, opts model.ListOptions) ([]*model.HistoryRecord, int, error)

	// Batches
	SaveBatch(ctx context.Context, rec *model.BatchRecord) error
	GetBatch(ctx context.Context, id string) (*model.BatchRecord, error)
	ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.BatchRecord, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
