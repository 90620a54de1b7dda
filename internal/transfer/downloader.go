package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/echotrails/native/internal/checksum"
	"github.com/echotrails/native/internal/events"
	"github.com/echotrails/native/internal/logctx"
	"github.com/echotrails/native/internal/progress"
	"github.com/echotrails/native/internal/telemetry"
)

const (
	dirPerm          = 0755
	slotPrefix       = "echo-trails-"
	slotExtension    = ".apk"
	defaultChunkSize = 64 * 1024
)

// Target identifies a download. An empty ExpectedDigest means no
// verification was requested.
type Target struct {
	URL            string
	Version        string
	ExpectedDigest string
}

// SlotPath returns the cache slot for a version tag under cacheRoot.
func SlotPath(cacheRoot, version string) string {
	return filepath.Join(cacheRoot, slotPrefix+version+slotExtension)
}

// Downloader fetches a remote file into a per-version cache slot, reusing
// the slot when it passes the digest gate.
//
// Two concurrent fetches of the same version race on one slot; the last
// writer wins and a concurrent digest check may observe a partial file.
type Downloader struct {
	client    *http.Client
	notifier  events.Notifier
	telemetry *telemetry.Telemetry
	chunkSize int
}

func NewDownloader(client *http.Client, notifier events.Notifier, tel *telemetry.Telemetry, chunkSize int) *Downloader {
	if client == nil {
		client = tel.HTTPClient()
	}

	if notifier == nil {
		notifier = events.Discard
	}

	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &Downloader{
		client:    client,
		notifier:  notifier,
		telemetry: tel,
		chunkSize: chunkSize,
	}
}

// Fetch returns the path of a valid local copy of target, downloading it
// into cacheRoot when the slot is empty or stale.
func (d *Downloader) Fetch(ctx context.Context, target Target, cacheRoot string) (string, error) {
	ctx = logctx.WithTransferKey(ctx, target.Version)

	var path string

	err := d.telemetry.InstrumentTransfer(ctx, telemetry.DirectionDownload, func(ctx context.Context) error {
		var err error
		path, err = d.fetch(ctx, target, cacheRoot)

		return err
	})

	return path, err
}

func (d *Downloader) fetch(ctx context.Context, target Target, cacheRoot string) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	if target.Version == "" || strings.ContainsAny(target.Version, `/\`) || strings.Contains(target.Version, "..") {
		return "", fmt.Errorf("invalid version tag %q", target.Version)
	}

	if err := os.MkdirAll(cacheRoot, dirPerm); err != nil {
		return "", &IOError{Op: "create_cache_dir", Path: cacheRoot, Err: err}
	}

	slot := SlotPath(cacheRoot, target.Version)

	if d.cacheHit(ctx, slot, target.ExpectedDigest) {
		return slot, nil
	}

	written, err := d.download(ctx, target.URL, slot)
	if err != nil {
		return "", err
	}

	if target.ExpectedDigest != "" {
		actual, err := checksum.File(slot)
		if err != nil {
			return "", &IOError{Op: "digest", Path: slot, Err: err}
		}

		if !checksum.Equal(actual, target.ExpectedDigest) {
			logger.WarnContext(ctx, "downloaded file failed digest check", "expected", target.ExpectedDigest, "actual", actual)

			if err := os.Remove(slot); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.ErrorContext(ctx, "failed to remove mismatched download", "path", slot, "err", err)
			}

			return "", &DigestMismatchError{Expected: target.ExpectedDigest, Actual: actual}
		}
	}

	logger.InfoContext(ctx, "downloaded and saved file", "path", slot, "size", humanize.Bytes(uint64(written)))

	return slot, nil
}

// cacheHit applies the digest gate to an existing slot. A slot that cannot
// be digested or does not match is removed so the download can replace it.
func (d *Downloader) cacheHit(ctx context.Context, slot, expected string) bool {
	logger := logctx.LoggerFromContext(ctx)

	if _, err := os.Stat(slot); err != nil {
		d.telemetry.RecordCacheLookup("miss")

		return false
	}

	if expected != "" {
		actual, err := checksum.File(slot)
		if err != nil || !checksum.Equal(actual, expected) {
			logger.InfoContext(ctx, "cached file is stale, downloading again", "path", slot, "expected", expected, "actual", actual, "err", err)

			if err := os.Remove(slot); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.WarnContext(ctx, "failed to remove stale cache slot", "path", slot, "err", err)
			}

			d.telemetry.RecordCacheLookup("stale")

			return false
		}
	}

	logger.DebugContext(ctx, "cache hit", "path", slot)
	d.telemetry.RecordCacheLookup("hit")
	d.notifier.Notify(ctx, events.DownloadProgress, events.Event{Progress: 100, Total: 100, Status: events.StatusExists})

	return true
}

// download streams url into path chunk by chunk. A failure leaves whatever
// was written on disk.
func (d *Downloader) download(ctx context.Context, url, path string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &NetworkError{Operation: "download", APIMessage: err.Error(), Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &NetworkError{Operation: "download", APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &NetworkError{Operation: "download", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	var total int64
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	logger.InfoContext(ctx, "downloading file", "path", path, "size", humanize.Bytes(uint64(total)))

	out, err := os.Create(path)
	if err != nil {
		return 0, &IOError{Op: "create", Path: path, Err: err}
	}

	pw := progress.NewWriter(out, total, 0, func(written, total int64) {
		d.notifier.Notify(ctx, events.DownloadProgress, events.Event{
			Progress: uint64(written),
			Total:    uint64(total),
			Status:   events.StatusDownloading,
		})
	})

	copyErr := d.copyChunks(ctx, pw, resp.Body, path)
	closeErr := out.Close()

	d.telemetry.RecordTransferBytes(telemetry.DirectionDownload, pw.Transferred())

	if copyErr != nil {
		return pw.Transferred(), copyErr
	}

	if closeErr != nil {
		return pw.Transferred(), &IOError{Op: "close", Path: path, Err: closeErr}
	}

	return pw.Transferred(), nil
}

func (d *Downloader) copyChunks(ctx context.Context, dst io.Writer, body io.Reader, path string) error {
	buf := make([]byte, d.chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return &NetworkError{Operation: "download", APIMessage: "cancelled", Err: err}
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return &IOError{Op: "write_chunk", Path: path, Err: err}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}

		if readErr != nil {
			return &NetworkError{Operation: "download", APIMessage: readErr.Error(), Err: readErr}
		}
	}
}
