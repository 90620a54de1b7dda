package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/echotrails/native/internal/fsaccess"
	"github.com/echotrails/native/internal/logctx"
)

// Bridge is the platform helper that owns media metadata and the package
// installer on mobile hosts.
type Bridge interface {
	FileInfo(ctx context.Context, path string) (*FileInfo, error)
	InstallPackage(ctx context.Context, path string) error
	Ping(ctx context.Context) error
}

// HTTPBridge talks to the platform helper over its local HTTP endpoint. It
// also resolves content identifiers for uploads.
type HTTPBridge struct {
	BaseURL    string
	httpClient *http.Client
}

func NewHTTPBridge(baseURL string, client *http.Client) *HTTPBridge {
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPBridge{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

type pathRequest struct {
	Path string `json:"path"`
}

func (b *HTTPBridge) FileInfo(ctx context.Context, path string) (*FileInfo, error) {
	logger := logctx.LoggerFromContext(ctx).With("method", "file-info", "path", path)

	resp, err := b.post(ctx, "/file-info", pathRequest{Path: path})
	if err != nil {
		logger.ErrorContext(ctx, "failed to query platform bridge", "err", err)

		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logger.ErrorContext(ctx, "non-200 response", "status", resp.StatusCode, "body", string(body))

		return nil, fmt.Errorf("failed to get file info for path %s: HTTP %d", path, resp.StatusCode)
	}

	var info *FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode file info: %w", err)
	}

	if info == nil {
		return nil, fmt.Errorf("failed to get file info for path: %s", path)
	}

	return info, nil
}

func (b *HTTPBridge) InstallPackage(ctx context.Context, path string) error {
	logger := logctx.LoggerFromContext(ctx).With("method", "install", "path", path)

	resp, err := b.post(ctx, "/install", pathRequest{Path: path})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		logger.ErrorContext(ctx, "non-2xx response", "status", resp.StatusCode, "body", string(body))

		return fmt.Errorf("install request failed: HTTP %d", resp.StatusCode)
	}

	logger.DebugContext(ctx, "install flow started")

	return nil
}

func (b *HTTPBridge) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform bridge ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform bridge ping: HTTP %d", resp.StatusCode)
	}

	return nil
}

// Resolve opens a content identifier through the helper. The helper enforces
// the access scope and answers 403 for identifiers outside it.
func (b *HTTPBridge) Resolve(ctx context.Context, source string) (fsaccess.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/open?uri="+url.QueryEscape(source), nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform bridge open: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return fsaccess.NewStreamHandle(resp.Body, resp.ContentLength), nil
	case http.StatusForbidden:
		resp.Body.Close()

		return nil, fmt.Errorf("%w: %s", fsaccess.ErrOutOfScope, source)
	case http.StatusNotFound:
		resp.Body.Close()

		return nil, fmt.Errorf("%s: %w", source, fs.ErrNotExist)
	default:
		resp.Body.Close()

		return nil, fmt.Errorf("platform bridge open %s: HTTP %d", source, resp.StatusCode)
	}
}

func (b *HTTPBridge) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform bridge %s: %w", path, err)
	}

	return resp, nil
}

var (
	_ Bridge            = (*HTTPBridge)(nil)
	_ fsaccess.Resolver = (*HTTPBridge)(nil)
)
