package store

import (
	"context"

	"github.com/me/bioclick/pkg/model"
)

// Store defines the persistence layer for the batch ledger.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, b *model.Batch) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.Batch, int, error)
	MarkDispatched(ctx context.Context, id string, dispatched int) error
	FinishBatch(ctx context.Context, b *model.Batch) error

	// Jobs
	RecordDispatch(ctx context.Context, rec *model.JobRecord) error
	RecordOutcome(ctx context.Context, rec *model.JobRecord) error
	ListOutcomes(ctx context.Context, batchID string) ([]*model.JobRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
