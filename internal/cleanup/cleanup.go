package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/echotrails/native/internal/logctx"
	"github.com/echotrails/native/internal/storage"
)

// DeleteExpiredFiles deletes cached downloads older than keepDuration based
// on their tracked records and returns the records whose files are gone.
// Files outside dir are never touched.
func DeleteExpiredFiles(ctx context.Context, records []storage.TransferRecord, dir string, keepDuration time.Duration) ([]storage.TransferRecord, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	var (
		expired []storage.TransferRecord
		freed   uint64
	)

	for _, rec := range records {
		if rec.Kind != storage.KindDownload || rec.Path == "" {
			continue
		}

		filePath, ok := insideDir(dir, rec.Path)
		if !ok {
			logger.WarnContext(ctx, "Skipping record outside cache dir", "file", rec.Path)

			continue
		}

		info, err := os.Stat(filePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				expired = append(expired, rec)

				continue
			}

			logger.ErrorContext(ctx, "Failed to stat file", "file", filePath, "err", err)

			return expired, err
		}

		updatedAt, err := time.Parse(time.RFC3339, rec.UpdatedAt)
		if err != nil {
			logger.WarnContext(ctx, "Failed to parse transfer time, using file mod time", "file", filePath, "err", err)

			updatedAt = info.ModTime()
		}

		if now.Sub(updatedAt) <= keepDuration {
			continue
		}

		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.ErrorContext(ctx, "Failed to delete expired file", "file", filePath, "err", err)

			return expired, err
		}

		freed += uint64(info.Size())
		expired = append(expired, rec)

		logger.InfoContext(ctx, "Deleted expired file", "file", filePath, "size", humanize.Bytes(uint64(info.Size())))
	}

	if freed > 0 {
		logger.InfoContext(ctx, "Cache cleanup finished", "freed", humanize.Bytes(freed))
	}

	return expired, nil
}

func insideDir(dir, path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	path = filepath.Clean(path)

	rel, err := filepath.Rel(filepath.Clean(dir), path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return path, true
}

// Cleaner expires cached downloads and forgets their history records.
type Cleaner struct {
	repo         storage.TransferRepository
	dir          string
	keepDuration time.Duration
}

func NewCleaner(repo storage.TransferRepository, dir string, keepDuration time.Duration) *Cleaner {
	return &Cleaner{repo: repo, dir: dir, keepDuration: keepDuration}
}

// RunOnce performs a single cleanup pass.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	records, err := c.repo.GetTransfers(ctx, storage.KindDownload)
	if err != nil {
		return err
	}

	expired, err := DeleteExpiredFiles(ctx, records, c.dir, c.keepDuration)

	for _, rec := range expired {
		if delErr := c.repo.DeleteTransfer(ctx, rec.Kind, rec.Key); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
			return errors.Join(err, delErr)
		}
	}

	return err
}

// Run repeats RunOnce every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	if interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				logger.ErrorContext(ctx, "Cache cleanup failed", "err", err)
			}
		}
	}
}
