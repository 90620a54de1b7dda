package fsaccess

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	content string
	err     error
	calls   int
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (Handle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	return NewStreamHandle(io.NopCloser(strings.NewReader(s.content)), int64(len(s.content))), nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestOpen_DirectPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "hello")
	r := &stubResolver{}

	h, err := Open(context.Background(), path, r)
	require.NoError(t, err)
	defer h.Close()

	size, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Zero(t, r.calls, "resolver must not be consulted when the direct open works")
}

func TestOpen_FallsBackToResolver(t *testing.T) {
	r := &stubResolver{content: "virtual"}

	h, err := Open(context.Background(), "content://media/external/images/1", r)
	require.NoError(t, err)
	defer h.Close()

	b, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "virtual", string(b))
	assert.Equal(t, 1, r.calls)
}

func TestOpen_BothFail(t *testing.T) {
	cause := errors.New("provider missing")

	_, err := Open(context.Background(), "content://nope", &stubResolver{err: cause})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_DirectoryIsNotOpened(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(context.Background(), dir, nil)
	require.ErrorIs(t, err, ErrIsDirectory)

	r := &stubResolver{content: "from resolver"}

	h, err := Open(context.Background(), dir, r)
	require.NoError(t, err)
	defer h.Close()

	b, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "from resolver", string(b))
	assert.Equal(t, 1, r.calls)

	_, err = Open(context.Background(), dir, &stubResolver{err: ErrUnresolvable})
	require.ErrorIs(t, err, ErrIsDirectory)
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestScopedResolver(t *testing.T) {
	root := t.TempDir()
	inside := writeFile(t, root, "sub/photo.jpg", "jpeg")
	outside := writeFile(t, t.TempDir(), "secret.txt", "no")

	s := &ScopedResolver{Roots: []string{root}}

	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{"file uri inside root", "file://" + filepath.ToSlash(inside), nil},
		{"relative path", "sub/photo.jpg", nil},
		{"traversal", "../" + filepath.Base(root) + "/../secret.txt", ErrOutOfScope},
		{"file uri outside root", "file://" + filepath.ToSlash(outside), ErrOutOfScope},
		{"other scheme", "content://media/1", ErrUnresolvable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := s.Resolve(context.Background(), tt.source)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			defer h.Close()

			b, err := io.ReadAll(h)
			require.NoError(t, err)
			assert.Equal(t, "jpeg", string(b))
		})
	}
}

func TestChain(t *testing.T) {
	first := &stubResolver{err: ErrUnresolvable}
	second := &stubResolver{content: "ok"}

	h, err := Chain{first, nil, second}.Resolve(context.Background(), "x")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	_, err = Chain{}.Resolve(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestStreamHandle_UnknownSize(t *testing.T) {
	h := NewStreamHandle(io.NopCloser(strings.NewReader("")), -1)

	_, err := h.Size()
	require.Error(t, err)
}
