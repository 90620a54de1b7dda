// Package command implements the operations exposed to the UI: download,
// open_installable, get_file_info, upload and save_to_pictures.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/echotrails/native/internal/events"
	"github.com/echotrails/native/internal/logctx"
	"github.com/echotrails/native/internal/notifier"
	"github.com/echotrails/native/internal/platform"
	"github.com/echotrails/native/internal/storage"
	"github.com/echotrails/native/internal/transfer"
)

// ErrInvalidArgument marks a request that is missing a required field.
var ErrInvalidArgument = errors.New("invalid argument")

type Downloader interface {
	Fetch(ctx context.Context, target transfer.Target, cacheRoot string) (string, error)
}

type Uploader interface {
	Upload(ctx context.Context, target transfer.UploadTarget) error
}

// PictureSaver stores image bytes under a bare file name.
type PictureSaver interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
}

type DownloadRequest struct {
	URL     string `json:"url"`
	Version string `json:"version"`
	MD5     string `json:"md5,omitempty"`
}

type UploadRequest struct {
	Key      string `json:"key"`
	FilePath string `json:"file_path"`
	URL      string `json:"url"`
}

// SaveRequest carries the picture bytes; Data is base64 in JSON.
type SaveRequest struct {
	FileName string `json:"file_name"`
	Data     []byte `json:"data"`
}

// Service runs one operation per call. Every download and upload outcome is
// recorded in the history, pushed to the UI and sent to the webhook.
type Service struct {
	downloader Downloader
	uploader   Uploader
	metadata   platform.MetadataProvider
	repo       storage.TransferRepository
	events     events.Notifier
	notifier   notifier.Notifier
	pictures   PictureSaver
	cacheDir   string
}

// NewService creates the command service. repo, ev and n may be nil.
func NewService(d Downloader, u Uploader, metadata platform.MetadataProvider, repo storage.TransferRepository, ev events.Notifier, n notifier.Notifier, cacheDir string) *Service {
	if ev == nil {
		ev = events.Discard
	}

	if n == nil {
		n = notifier.Nop{}
	}

	return &Service{
		downloader: d,
		uploader:   u,
		metadata:   metadata,
		repo:       repo,
		events:     ev,
		notifier:   n,
		cacheDir:   cacheDir,
	}
}

// WithPictures enables SaveToPictures.
func (s *Service) WithPictures(p PictureSaver) *Service {
	s.pictures = p

	return s
}

// Download returns the local path of the requested version.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (string, error) {
	if req.URL == "" || req.Version == "" {
		return "", fmt.Errorf("%w: url and version are required", ErrInvalidArgument)
	}

	path, err := s.downloader.Fetch(ctx, transfer.Target{
		URL:            req.URL,
		Version:        req.Version,
		ExpectedDigest: req.MD5,
	}, s.cacheDir)

	record := storage.TransferRecord{
		Kind:   storage.KindDownload,
		Key:    req.Version,
		Source: req.URL,
		Path:   path,
		Digest: req.MD5,
	}

	if err == nil {
		if info, statErr := os.Stat(path); statErr == nil {
			record.Bytes = info.Size()
		}
	} else if slot, ok := s.partialSlot(req.Version); ok {
		// keeps the partial file visible to cache cleanup
		record.Path = slot
	}

	s.finish(ctx, record, err)

	return path, err
}

// partialSlot returns the cache slot of version when a failed download left
// a file there.
func (s *Service) partialSlot(version string) (string, bool) {
	if strings.ContainsAny(version, `/\`) || strings.Contains(version, "..") {
		return "", false
	}

	slot := transfer.SlotPath(s.cacheDir, version)
	if _, err := os.Stat(slot); err != nil {
		return "", false
	}

	return slot, true
}

func (s *Service) OpenInstallable(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: file_path is required", ErrInvalidArgument)
	}

	return s.metadata.OpenInstallable(ctx, path)
}

func (s *Service) GetFileInfo(ctx context.Context, path string) (*platform.FileInfo, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file_path is required", ErrInvalidArgument)
	}

	return s.metadata.FileInfo(ctx, path)
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) error {
	if req.Key == "" || req.FilePath == "" || req.URL == "" {
		return fmt.Errorf("%w: key, file_path and url are required", ErrInvalidArgument)
	}

	err := s.uploader.Upload(ctx, transfer.UploadTarget{
		Source:         req.FilePath,
		DestinationURL: req.URL,
		Key:            req.Key,
	})

	record := storage.TransferRecord{
		Kind:   storage.KindUpload,
		Key:    req.Key,
		Source: req.FilePath,
	}

	if err == nil {
		if info, statErr := os.Stat(req.FilePath); statErr == nil {
			record.Bytes = info.Size()
		}
	}

	s.finish(ctx, record, err)

	return err
}

// SaveToPictures writes req.Data into the pictures directory and returns the
// saved path.
func (s *Service) SaveToPictures(ctx context.Context, req SaveRequest) (string, error) {
	if req.FileName == "" {
		return "", fmt.Errorf("%w: file_name is required", ErrInvalidArgument)
	}

	if s.pictures == nil {
		return "", platform.ErrUnsupported
	}

	path, err := s.pictures.Save(ctx, req.FileName, req.Data)
	if errors.Is(err, platform.ErrInvalidFileName) {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return path, err
}

// History lists recorded transfers newest first.
func (s *Service) History(ctx context.Context, kind string) ([]storage.TransferRecord, error) {
	if s.repo == nil {
		return nil, nil
	}

	return s.repo.GetTransfers(ctx, kind)
}

func (s *Service) finish(ctx context.Context, record storage.TransferRecord, err error) {
	logger := logctx.LoggerFromContext(ctx).With("kind", record.Kind, "key", record.Key)

	outcome := events.Outcome{Kind: record.Kind, Key: record.Key, Path: record.Path}
	name := events.TransferFinished
	message := fmt.Sprintf("%s of %s finished", record.Kind, record.Key)

	record.Status = storage.StatusDone

	if err != nil {
		record.Status = storage.StatusFailed
		record.Error = err.Error()
		outcome.Path = ""
		outcome.Error = err.Error()
		name = events.TransferFailed
		message = fmt.Sprintf("%s of %s failed: %v", record.Kind, record.Key, err)

		logger.ErrorContext(ctx, "transfer failed", "err", err)
	} else {
		logger.InfoContext(ctx, "transfer finished", "path", record.Path)
	}

	if s.repo != nil {
		if repoErr := s.repo.TrackTransfer(ctx, record); repoErr != nil {
			logger.ErrorContext(ctx, "failed to record transfer", "err", repoErr)
		}
	}

	s.events.Notify(ctx, name, outcome)

	if notifyErr := s.notifier.Notify(ctx, message); notifyErr != nil {
		logger.WarnContext(ctx, "failed to send notification", "err", notifyErr)
	}
}
