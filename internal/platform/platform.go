// Package platform reads file metadata and hands installable packages to the
// host operating system.
package platform

import (
	"context"
	"errors"

	"github.com/echotrails/native/internal/logctx"
)

// ErrUnsupported is returned when the host has no way to perform an operation.
var ErrUnsupported = errors.New("operation not supported on this platform")

// FileInfo describes a media file. Times are milliseconds since the Unix
// epoch. Width and Height are 0 when the provider does not decode images.
type FileInfo struct {
	LastModified int64   `json:"last_modified"`
	CreationTime int64   `json:"creation_time"`
	Size         uint64  `json:"size"`
	Width        uint32  `json:"width"`
	Height       uint32  `json:"height"`
	FileType     *string `json:"file_type"`
	MD5          *string `json:"md5"`
}

type MetadataProvider interface {
	FileInfo(ctx context.Context, path string) (*FileInfo, error)
	OpenInstallable(ctx context.Context, path string) error
}

// Detect returns a provider backed by the platform bridge when one is
// configured and reachable, and the local provider otherwise.
func Detect(ctx context.Context, bridge Bridge, local *LocalMetadataProvider) MetadataProvider {
	logger := logctx.LoggerFromContext(ctx)

	if bridge == nil {
		logger.DebugContext(ctx, "no platform bridge configured, using local metadata provider")

		return local
	}

	if err := bridge.Ping(ctx); err != nil {
		logger.WarnContext(ctx, "platform bridge unreachable, using local metadata provider", "err", err)

		return local
	}

	logger.InfoContext(ctx, "using platform bridge metadata provider")

	return NewPlatformMetadataProvider(bridge)
}
