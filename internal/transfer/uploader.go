package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/echotrails/native/internal/events"
	"github.com/echotrails/native/internal/fsaccess"
	"github.com/echotrails/native/internal/logctx"
	"github.com/echotrails/native/internal/progress"
	"github.com/echotrails/native/internal/telemetry"
)

// UploadTarget identifies an upload. Source may be a filesystem path or a
// virtualized resource identifier; Key correlates the progress events.
type UploadTarget struct {
	Source         string
	DestinationURL string
	Key            string
}

// Uploader streams a local resource to a destination with one PUT request.
type Uploader struct {
	client    *http.Client
	resolver  fsaccess.Resolver
	notifier  events.Notifier
	telemetry *telemetry.Telemetry
}

func NewUploader(client *http.Client, resolver fsaccess.Resolver, notifier events.Notifier, tel *telemetry.Telemetry) *Uploader {
	if client == nil {
		client = tel.HTTPClient()
	}

	if notifier == nil {
		notifier = events.Discard
	}

	return &Uploader{
		client:    client,
		resolver:  resolver,
		notifier:  notifier,
		telemetry: tel,
	}
}

// Upload sends target.Source to target.DestinationURL. Nothing is retried;
// the source is read once and must be reopened for another attempt.
func (u *Uploader) Upload(ctx context.Context, target UploadTarget) error {
	ctx = logctx.WithTransferKey(ctx, target.Key)

	return u.telemetry.InstrumentTransfer(ctx, telemetry.DirectionUpload, func(ctx context.Context) error {
		return u.upload(ctx, target)
	})
}

func (u *Uploader) upload(ctx context.Context, target UploadTarget) error {
	logger := logctx.LoggerFromContext(ctx)

	handle, err := fsaccess.Open(ctx, target.Source, u.resolver)
	if err != nil {
		return &ResourceOpenError{Source: target.Source, Err: err}
	}
	defer handle.Close()

	size, err := handle.Size()
	if err != nil {
		return &IOError{Op: "stat_source", Path: target.Source, Err: err}
	}

	src := &sourceReader{r: handle}
	pr := progress.NewReader(src, size, 0, func(uploaded, total int64) {
		u.notifier.Notify(ctx, events.UploadProgress, events.Event{
			Key:      target.Key,
			Progress: uint64(uploaded),
			Total:    uint64(total),
			Status:   events.StatusUploading,
		})
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.DestinationURL, io.NopCloser(pr))
	if err != nil {
		return &NetworkError{Operation: "upload", APIMessage: err.Error(), Err: err}
	}

	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}

	logger.InfoContext(ctx, "uploading file", "source", target.Source, "size", humanize.Bytes(uint64(size)))

	resp, err := u.client.Do(req)

	u.telemetry.RecordTransferBytes(telemetry.DirectionUpload, pr.Transferred())

	if err != nil {
		if src.err != nil {
			return &IOError{Op: "read_source", Path: target.Source, Err: src.err}
		}

		return &NetworkError{Operation: "upload", APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnContext(ctx, "upload rejected", "status", resp.StatusCode, "sent", humanize.Bytes(uint64(pr.Transferred())))

		return &HTTPStatusError{Operation: "upload", Status: resp.StatusCode}
	}

	logger.InfoContext(ctx, "upload finished", "sent", humanize.Bytes(uint64(pr.Transferred())))

	return nil
}

// sourceReader remembers the first read failure so a local read error is
// not reported as a transport failure.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && s.err == nil {
		s.err = err
	}

	return n, err
}
