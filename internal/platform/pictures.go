package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/echotrails/native/internal/logctx"
)

// ErrInvalidFileName is returned for names that would escape the pictures
// directory.
var ErrInvalidFileName = errors.New("invalid file name")

// Pictures writes caller-supplied image bytes into the pictures directory.
type Pictures struct {
	dir string
}

func NewPictures(dir string) *Pictures {
	return &Pictures{dir: dir}
}

// Save writes data to dir/fileName, replacing any file of the same name, and
// returns the saved path. A failed write removes the partial file.
func (p *Pictures) Save(ctx context.Context, fileName string, data []byte) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	path, err := p.pathFor(fileName)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pictures dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	_, writeErr := f.Write(data)
	closeErr := f.Close()

	if err := errors.Join(writeErr, closeErr); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.WarnContext(ctx, "failed to remove partial picture", "path", path, "err", rmErr)
		}

		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logger.InfoContext(ctx, "saved picture", "path", path, "size", humanize.Bytes(uint64(len(data))))

	return path, nil
}

// pathFor accepts a bare file name only. The joined path must stay directly
// inside dir.
func (p *Pictures) pathFor(fileName string) (string, error) {
	if fileName == "" || fileName == "." || strings.Contains(fileName, "..") || strings.ContainsAny(fileName, `/\`+"\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}

	dir := filepath.Clean(p.dir)
	path := filepath.Join(dir, fileName)

	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != fileName {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}

	return path, nil
}
