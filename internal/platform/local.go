package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/echotrails/native/internal/checksum"
	"github.com/echotrails/native/internal/logctx"
)

const defaultDigestCacheSize = 256

var mediaTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
}

// MediaType maps a file extension to its media type. Unknown extensions
// return false.
func MediaType(path string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	t, ok := mediaTypes[ext]

	return t, ok
}

type digestKey struct {
	path    string
	size    int64
	modTime int64
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LocalMetadataProvider answers from the local filesystem. Media type comes
// from the extension and no image decoding is performed.
type LocalMetadataProvider struct {
	digests *lru.Cache[digestKey, string]
	run     commandRunner
	goos    string
}

func NewLocalMetadataProvider(digestCacheSize int) (*LocalMetadataProvider, error) {
	if digestCacheSize <= 0 {
		digestCacheSize = defaultDigestCacheSize
	}

	digests, err := lru.New[digestKey, string](digestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest cache: %w", err)
	}

	return &LocalMetadataProvider{
		digests: digests,
		run:     runCommand,
		goos:    runtime.GOOS,
	}, nil
}

func (p *LocalMetadataProvider) FileInfo(ctx context.Context, path string) (*FileInfo, error) {
	logger := logctx.LoggerFromContext(ctx).With("path", path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	created, ok := birthTime(path, info)
	if !ok {
		created = info.ModTime()
	}

	fi := &FileInfo{
		LastModified: info.ModTime().UnixMilli(),
		CreationTime: created.UnixMilli(),
		Size:         uint64(info.Size()),
	}

	if t, ok := MediaType(path); ok {
		fi.FileType = &t
	}

	digest, err := p.digest(path, info)
	if err != nil {
		logger.DebugContext(ctx, "failed to digest file", "err", err)
	} else {
		fi.MD5 = &digest
	}

	return fi, nil
}

func (p *LocalMetadataProvider) digest(path string, info fs.FileInfo) (string, error) {
	key := digestKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}

	if d, ok := p.digests.Get(key); ok {
		return d, nil
	}

	d, err := checksum.File(path)
	if err != nil {
		return "", err
	}

	p.digests.Add(key, d)

	return d, nil
}

// OpenInstallable hands path to the desktop opener. A missing file is
// ignored.
func (p *LocalMetadataProvider) OpenInstallable(ctx context.Context, path string) error {
	logger := logctx.LoggerFromContext(ctx).With("path", path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WarnContext(ctx, "installable not found, nothing to open")

			return nil
		}

		return fmt.Errorf("failed to stat installable: %w", err)
	}

	name, args := openerCommand(p.goos, path)
	logger.DebugContext(ctx, "launching opener", "command", name, "args", args)

	output, err := p.run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("opener failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}

	logger.InfoContext(ctx, "installable handed to the system opener")

	return nil
}

func openerCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", path}
	default:
		return "xdg-open", []string{path}
	}
}
