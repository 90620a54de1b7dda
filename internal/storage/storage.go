package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for a kind and key.
var ErrNotFound = errors.New("transfer record not found")

const (
	KindDownload = "download"
	KindUpload   = "upload"

	StatusDone   = "done"
	StatusFailed = "failed"
)

// TransferRecord is the last known outcome of a download or upload. For
// downloads Key is the version tag and Path the cache slot; for uploads Key
// is the correlation key and Source the uploaded resource.
type TransferRecord struct {
	Kind      string `json:"kind"`
	Key       string `json:"key"`
	Source    string `json:"source"`
	Path      string `json:"path,omitempty"`
	Status    string `json:"status"`
	Bytes     int64  `json:"bytes"`
	Digest    string `json:"digest,omitempty"`
	Error     string `json:"error,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

type TransferReadRepository interface {
	// GetTransfers lists records newest first. An empty kind lists all.
	GetTransfers(ctx context.Context, kind string) ([]TransferRecord, error)
	GetTransfer(ctx context.Context, kind, key string) (*TransferRecord, error)
}

type TransferWriteRepository interface {
	// TrackTransfer inserts or replaces the record for (Kind, Key).
	TrackTransfer(ctx context.Context, record TransferRecord) error
	DeleteTransfer(ctx context.Context, kind, key string) error
}

type TransferRepository interface {
	TransferReadRepository
	TransferWriteRepository
}
