// Package fsaccess opens upload sources that may be plain paths or
// virtualized resource identifiers.
package fsaccess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutOfScope is returned when a source resolves outside every declared root.
	ErrOutOfScope = errors.New("resource outside allowed scope")
	// ErrUnresolvable is returned when no resolver understands the identifier.
	ErrUnresolvable = errors.New("resource identifier not resolvable")
)

// Handle is a readable byte stream with a declared length.
type Handle interface {
	io.ReadCloser
	Size() (int64, error)
}

// Resolver turns an opaque resource identifier into a Handle.
type Resolver interface {
	Resolve(ctx context.Context, source string) (Handle, error)
}

// ErrIsDirectory is returned when the direct path names a directory.
var ErrIsDirectory = errors.New("is a directory")

// Open tries source as a regular file first and falls back to resolver.
// The returned error joins both failures.
func Open(ctx context.Context, source string, resolver Resolver) (Handle, error) {
	f, directErr := openFile(source)
	if directErr == nil {
		return &fileHandle{f}, nil
	}

	if resolver == nil {
		return nil, directErr
	}

	h, err := resolver.Resolve(ctx, source)
	if err != nil {
		return nil, errors.Join(directErr, err)
	}

	return h, nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	if info.IsDir() {
		f.Close()

		return nil, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}

	return f, nil
}

type fileHandle struct {
	*os.File
}

func (h *fileHandle) Size() (int64, error) {
	info, err := h.Stat()
	if err != nil {
		return 0, err
	}

	if info.IsDir() {
		return 0, fmt.Errorf("%s: %w", h.Name(), ErrIsDirectory)
	}

	return info.Size(), nil
}

// NewStreamHandle wraps a stream whose length was declared out of band.
func NewStreamHandle(rc io.ReadCloser, size int64) Handle {
	return &streamHandle{ReadCloser: rc, size: size}
}

type streamHandle struct {
	io.ReadCloser
	size int64
}

func (h *streamHandle) Size() (int64, error) {
	if h.size < 0 {
		return 0, errors.New("stream length unknown")
	}

	return h.size, nil
}

// ScopedResolver grants read access to file:// identifiers and relative
// paths under the declared roots.
type ScopedResolver struct {
	Roots []string
}

func (s *ScopedResolver) Resolve(_ context.Context, source string) (Handle, error) {
	path, err := s.localPath(source)
	if err != nil {
		return nil, err
	}

	f, err := openFile(path)
	if err != nil {
		return nil, err
	}

	return &fileHandle{f}, nil
}

func (s *ScopedResolver) localPath(source string) (string, error) {
	candidate := source

	if strings.Contains(source, "://") {
		u, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrUnresolvable, err)
		}

		if u.Scheme != "file" {
			return "", fmt.Errorf("%w: scheme %q", ErrUnresolvable, u.Scheme)
		}

		candidate = u.Path
	}

	for _, root := range s.Roots {
		root, err := filepath.Abs(root)
		if err != nil {
			continue
		}

		path := candidate
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}

		path = filepath.Clean(path)

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrOutOfScope, source)
}

// Chain tries each resolver in order and returns the first handle.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, source string) (Handle, error) {
	var errs []error

	for _, r := range c {
		if r == nil {
			continue
		}

		h, err := r.Resolve(ctx, source)
		if err == nil {
			return h, nil
		}

		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, source)
	}

	return nil, errors.Join(errs...)
}
