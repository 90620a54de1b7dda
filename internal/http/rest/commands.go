package rest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/echotrails/native/internal/command"
	"github.com/echotrails/native/internal/logctx"
	"github.com/echotrails/native/internal/platform"
	"github.com/echotrails/native/internal/storage"
	"github.com/echotrails/native/internal/transfer"
	"github.com/go-chi/chi/v5"
)

const (
	maxRequestSize     = 64 * 1024
	// picture bytes travel base64-encoded inside the JSON body
	maxSaveRequestSize = 64 * 1024 * 1024
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type PathResponse struct {
	Path string `json:"path"`
}

type FilePathRequest struct {
	FilePath string `json:"file_path"`
}

type CommandHandler struct {
	svc *command.Service
}

// NewCommandHandler creates the handler for the UI command surface.
func NewCommandHandler(svc *command.Service) *CommandHandler {
	return &CommandHandler{svc: svc}
}

func (h *CommandHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/commands/download", h.HandleDownload)
	r.Post("/commands/open_installable", h.HandleOpenInstallable)
	r.Post("/commands/get_file_info", h.HandleGetFileInfo)
	r.Post("/commands/upload", h.HandleUpload)
	r.Post("/commands/save_to_pictures", h.HandleSaveToPictures)
	r.Get("/transfers", h.HandleTransfers)

	return r
}

func (h *CommandHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var req command.DownloadRequest
	if !decode(w, r, &req) {
		return
	}

	path, err := h.svc.Download(r.Context(), req)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, PathResponse{Path: path})
}

func (h *CommandHandler) HandleOpenInstallable(w http.ResponseWriter, r *http.Request) {
	var req FilePathRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.svc.OpenInstallable(r.Context(), req.FilePath); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CommandHandler) HandleGetFileInfo(w http.ResponseWriter, r *http.Request) {
	var req FilePathRequest
	if !decode(w, r, &req) {
		return
	}

	info, err := h.svc.GetFileInfo(r.Context(), req.FilePath)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, info)
}

func (h *CommandHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req command.UploadRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.svc.Upload(r.Context(), req); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CommandHandler) HandleSaveToPictures(w http.ResponseWriter, r *http.Request) {
	var req command.SaveRequest
	if !decodeLimit(w, r, &req, maxSaveRequestSize) {
		return
	}

	path, err := h.svc.SaveToPictures(r.Context(), req)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, PathResponse{Path: path})
}

func (h *CommandHandler) HandleTransfers(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.History(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, r, err)

		return
	}

	if records == nil {
		records = []storage.TransferRecord{}
	}

	writeJSON(w, r, http.StatusOK, records)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeLimit(w, r, v, maxRequestSize)
}

func decodeLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	logger := logctx.LoggerFromContext(r.Context())

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		logger.Error("failed to decode request", "err", err)
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})

		return false
	}

	return true
}

// statusFor maps a failure to the HTTP status the UI sees alongside the
// error text.
func statusFor(err error) int {
	var (
		mismatch  *transfer.DigestMismatchError
		openErr   *transfer.ResourceOpenError
		netErr    *transfer.NetworkError
		statusErr *transfer.HTTPStatusError
	)

	switch {
	case errors.Is(err, command.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.As(err, &openErr), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &netErr), errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())
	status := statusFor(err)

	logger.Error("command failed", "path", r.URL.Path, "status", status, "err", err)
	writeJSON(w, r, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
