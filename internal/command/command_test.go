package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/echotrails/native/internal/events"
	"github.com/echotrails/native/internal/platform"
	"github.com/echotrails/native/internal/storage"
	"github.com/echotrails/native/internal/storage/sqlite"
	"github.com/echotrails/native/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	path   string
	err    error
	target transfer.Target
	root   string
}

func (f *fakeDownloader) Fetch(_ context.Context, target transfer.Target, cacheRoot string) (string, error) {
	f.target = target
	f.root = cacheRoot

	return f.path, f.err
}

type fakeUploader struct {
	err    error
	target transfer.UploadTarget
}

func (f *fakeUploader) Upload(_ context.Context, target transfer.UploadTarget) error {
	f.target = target

	return f.err
}

type fakeMetadata struct {
	opened []string
	info   *platform.FileInfo
}

func (f *fakeMetadata) FileInfo(context.Context, string) (*platform.FileInfo, error) {
	if f.info == nil {
		return nil, os.ErrNotExist
	}

	return f.info, nil
}

func (f *fakeMetadata) OpenInstallable(_ context.Context, path string) error {
	f.opened = append(f.opened, path)

	return nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	names    []string
	outcomes []events.Outcome
}

func (r *outcomeRecorder) Notify(_ context.Context, name string, payload any) {
	outcome, ok := payload.(events.Outcome)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.names = append(r.names, name)
	r.outcomes = append(r.outcomes, outcome)
}

type messages struct {
	sent []string
	err  error
}

func (m *messages) Notify(_ context.Context, content string) error {
	m.sent = append(m.sent, content)

	return m.err
}

func newRepo(t *testing.T) storage.TransferRepository {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "transfers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlite.NewTransferRepository(db)
}

func TestService_DownloadRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	slot := filepath.Join(t.TempDir(), "echo-trails-1.0.0.apk")
	require.NoError(t, os.WriteFile(slot, []byte("0123456789"), 0o644))

	d := &fakeDownloader{path: slot}
	repo := newRepo(t)
	ev := &outcomeRecorder{}
	msgs := &messages{}

	svc := NewService(d, nil, nil, repo, ev, msgs, "/cache")

	path, err := svc.Download(ctx, DownloadRequest{URL: "https://example.com/app.apk", Version: "1.0.0", MD5: "abc"})
	require.NoError(t, err)
	assert.Equal(t, slot, path)
	assert.Equal(t, transfer.Target{URL: "https://example.com/app.apk", Version: "1.0.0", ExpectedDigest: "abc"}, d.target)
	assert.Equal(t, "/cache", d.root)

	rec, err := repo.GetTransfer(ctx, storage.KindDownload, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusDone, rec.Status)
	assert.Equal(t, slot, rec.Path)
	assert.EqualValues(t, 10, rec.Bytes)

	assert.Equal(t, []string{events.TransferFinished}, ev.names)
	assert.Equal(t, events.Outcome{Kind: storage.KindDownload, Key: "1.0.0", Path: slot}, ev.outcomes[0])
	assert.Equal(t, []string{"download of 1.0.0 finished"}, msgs.sent)
}

func TestService_DownloadRecordsFailure(t *testing.T) {
	ctx := context.Background()
	mismatch := &transfer.DigestMismatchError{Expected: "a", Actual: "b"}
	repo := newRepo(t)
	ev := &outcomeRecorder{}
	msgs := &messages{err: errors.New("webhook down")}

	svc := NewService(&fakeDownloader{err: mismatch}, nil, nil, repo, ev, msgs, t.TempDir())

	_, err := svc.Download(ctx, DownloadRequest{URL: "https://example.com/app.apk", Version: "2.0.0", MD5: "a"})
	require.ErrorIs(t, err, mismatch)

	rec, err := repo.GetTransfer(ctx, storage.KindDownload, "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Equal(t, "MD5 mismatch: expected a, got b", rec.Error)

	assert.Equal(t, []string{events.TransferFailed}, ev.names)
	assert.Equal(t, "MD5 mismatch: expected a, got b", ev.outcomes[0].Error)
	assert.Len(t, msgs.sent, 1)
}

func TestService_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&fakeDownloader{}, &fakeUploader{}, &fakeMetadata{}, nil, nil, nil, t.TempDir())

	_, err := svc.Download(ctx, DownloadRequest{URL: "x"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.ErrorIs(t, svc.Upload(ctx, UploadRequest{Key: "k"}), ErrInvalidArgument)
	require.ErrorIs(t, svc.OpenInstallable(ctx, ""), ErrInvalidArgument)

	_, err = svc.GetFileInfo(ctx, "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_Upload(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(src, []byte("12345"), 0o644))

	u := &fakeUploader{}
	repo := newRepo(t)
	ev := &outcomeRecorder{}

	svc := NewService(nil, u, nil, repo, ev, nil, t.TempDir())

	require.NoError(t, svc.Upload(ctx, UploadRequest{Key: "photos/a.jpg", FilePath: src, URL: "https://bucket/a.jpg"}))
	assert.Equal(t, transfer.UploadTarget{Source: src, DestinationURL: "https://bucket/a.jpg", Key: "photos/a.jpg"}, u.target)

	history, err := svc.History(ctx, storage.KindUpload)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.EqualValues(t, 5, history[0].Bytes)
	assert.Equal(t, []string{events.TransferFinished}, ev.names)

	u.err = &transfer.HTTPStatusError{Operation: "upload", Status: 500}

	var statusErr *transfer.HTTPStatusError
	require.ErrorAs(t, svc.Upload(ctx, UploadRequest{Key: "photos/a.jpg", FilePath: src, URL: "https://bucket/a.jpg"}), &statusErr)

	rec, err := repo.GetTransfer(ctx, storage.KindUpload, "photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
}

func TestService_MetadataOperations(t *testing.T) {
	ctx := context.Background()
	meta := &fakeMetadata{info: &platform.FileInfo{Size: 3}}
	svc := NewService(nil, nil, meta, nil, nil, nil, "")

	require.NoError(t, svc.OpenInstallable(ctx, "/cache/echo-trails-1.0.0.apk"))
	assert.Equal(t, []string{"/cache/echo-trails-1.0.0.apk"}, meta.opened)

	info, err := svc.GetFileInfo(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.Size)

	history, err := svc.History(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_DownloadEndToEnd(t *testing.T) {
	ctx := context.Background()
	body := make([]byte, 10000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	svc := NewService(transfer.NewDownloader(srv.Client(), nil, nil, 0), nil, nil, newRepo(t), nil, nil, cacheDir)

	path, err := svc.Download(ctx, DownloadRequest{URL: srv.URL, Version: "9.9.9"})
	require.NoError(t, err)
	assert.Equal(t, transfer.SlotPath(cacheDir, "9.9.9"), path)

	history, err := svc.History(ctx, storage.KindDownload)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.EqualValues(t, 10000, history[0].Bytes)
}

func TestService_FailedDownloadKeepsPartialSlot(t *testing.T) {
	ctx := context.Background()
	cacheDir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10000")
		_, _ = w.Write(make([]byte, 100))
		w.(http.Flusher).Flush()
		// drop the connection before the declared length arrives
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}

		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	repo := newRepo(t)
	svc := NewService(transfer.NewDownloader(srv.Client(), nil, nil, 0), nil, nil, repo, nil, nil, cacheDir)

	_, err := svc.Download(ctx, DownloadRequest{URL: srv.URL, Version: "3.1.0"})
	require.Error(t, err)

	slot := transfer.SlotPath(cacheDir, "3.1.0")
	require.FileExists(t, slot)

	rec, err := repo.GetTransfer(ctx, storage.KindDownload, "3.1.0")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, rec.Status)
	assert.Equal(t, slot, rec.Path)

	// nothing on disk, nothing to clean up
	svc = NewService(&fakeDownloader{err: errors.New("dial failed")}, nil, nil, repo, nil, nil, cacheDir)
	_, err = svc.Download(ctx, DownloadRequest{URL: srv.URL, Version: "3.2.0"})
	require.Error(t, err)

	rec, err = repo.GetTransfer(ctx, storage.KindDownload, "3.2.0")
	require.NoError(t, err)
	assert.Empty(t, rec.Path)
}

type fakePictures struct {
	name string
	data []byte
	err  error
}

func (f *fakePictures) Save(_ context.Context, fileName string, data []byte) (string, error) {
	f.name = fileName
	f.data = data

	if f.err != nil {
		return "", f.err
	}

	return "/pictures/" + fileName, nil
}

func TestService_SaveToPictures(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(nil, nil, nil, nil, nil, nil, "").SaveToPictures(ctx, SaveRequest{FileName: "a.jpg"})
	require.ErrorIs(t, err, platform.ErrUnsupported)

	pics := &fakePictures{}
	svc := NewService(nil, nil, nil, nil, nil, nil, "").WithPictures(pics)

	path, err := svc.SaveToPictures(ctx, SaveRequest{FileName: "a.jpg", Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "/pictures/a.jpg", path)
	assert.Equal(t, []byte("jpeg"), pics.data)

	_, err = svc.SaveToPictures(ctx, SaveRequest{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	pics.err = fmt.Errorf("%w: %q", platform.ErrInvalidFileName, "../a.jpg")
	_, err = svc.SaveToPictures(ctx, SaveRequest{FileName: "../a.jpg"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, err, platform.ErrInvalidFileName)
}

func TestService_SaveToPicturesWritesFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(nil, nil, nil, nil, nil, nil, "").WithPictures(platform.NewPictures(dir))

	path, err := svc.SaveToPictures(context.Background(), SaveRequest{FileName: "trail.png", Data: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "trail.png"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))
}
