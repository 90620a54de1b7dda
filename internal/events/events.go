// Package events carries transfer progress and status to the UI layer.
package events

import (
	"context"

	"github.com/echotrails/native/internal/logctx"
)

// Event names pushed to the UI.
const (
	DownloadProgress = "download-progress"
	UploadProgress   = "upload-progress"
	TransferFinished = "transfer-finished"
	TransferFailed   = "transfer-failed"
	Log              = "log"
)

// Status is the phase a progress event reports.
type Status string

const (
	StatusExists      Status = "exists"
	StatusDownloading Status = "downloading"
	StatusUploading   Status = "uploading"
)

// Event is the progress payload. Total is 0 when the size is unknown.
type Event struct {
	Key      string `json:"key,omitempty"`
	Progress uint64 `json:"progress"`
	Total    uint64 `json:"total"`
	Status   Status `json:"status"`
}

// Outcome is the payload of TransferFinished and TransferFailed.
type Outcome struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Emitter pushes a named payload to whoever listens. No acknowledgment.
type Emitter interface {
	Emit(name string, payload any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(name string, payload any) error

func (f EmitterFunc) Emit(name string, payload any) error {
	return f(name, payload)
}

// Notifier is the capability transfer pipelines push events into.
// It never fails and never blocks on a slow consumer.
type Notifier interface {
	Notify(ctx context.Context, name string, payload any)
}

type emitterNotifier struct {
	emitter Emitter
}

// NewNotifier wraps an Emitter so that its errors are dropped. A nil emitter
// yields a notifier that discards everything.
func NewNotifier(e Emitter) Notifier {
	return &emitterNotifier{emitter: e}
}

func (n *emitterNotifier) Notify(ctx context.Context, name string, payload any) {
	if n.emitter == nil {
		return
	}

	if err := n.emitter.Emit(name, payload); err != nil {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "event emission dropped", "event", name, "err", err)
	}
}

// Discard is a Notifier that drops every event.
var Discard Notifier = NewNotifier(nil)
