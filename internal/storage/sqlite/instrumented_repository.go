package sqlite

import (
	"context"
	"database/sql"

	"github.com/echotrails/native/internal/storage"
	"github.com/echotrails/native/internal/telemetry"
)

// InstrumentedTransferRepository wraps TransferRepository with telemetry.
type InstrumentedTransferRepository struct {
	repo      *TransferRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedTransferRepository creates a new instrumented transfer repository.
func NewInstrumentedTransferRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedTransferRepository {
	return &InstrumentedTransferRepository{
		repo:      NewTransferRepository(dbConn),
		telemetry: tel,
	}
}

// GetTransfers lists transfers with telemetry.
func (r *InstrumentedTransferRepository) GetTransfers(ctx context.Context, kind string) ([]storage.TransferRecord, error) {
	var result []storage.TransferRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_transfers", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetTransfers(ctx, kind)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetTransfer fetches one transfer with telemetry.
func (r *InstrumentedTransferRepository) GetTransfer(ctx context.Context, kind, key string) (*storage.TransferRecord, error) {
	var result *storage.TransferRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_transfer", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetTransfer(ctx, kind, key)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// TrackTransfer records a transfer outcome with telemetry.
func (r *InstrumentedTransferRepository) TrackTransfer(ctx context.Context, record storage.TransferRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_transfer", func(ctx context.Context) error {
		return r.repo.TrackTransfer(ctx, record)
	})
}

// DeleteTransfer removes a transfer record with telemetry.
func (r *InstrumentedTransferRepository) DeleteTransfer(ctx context.Context, kind, key string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_transfer", func(ctx context.Context) error {
		return r.repo.DeleteTransfer(ctx, kind, key)
	})
}

var _ storage.TransferRepository = (*InstrumentedTransferRepository)(nil)
