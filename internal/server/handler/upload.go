package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/pinning"
)

// maxUploadBytes bounds multipart upload payloads.
const maxUploadBytes = 25 << 20

// Uploader pins a payload through the content service.
type Uploader interface {
	PinFile(ctx context.Context, name string, data []byte, contentType string, keyvalues map[string]string) (domain.ContentDescriptor, error)
	PinJSON(ctx context.Context, name string, v any) (domain.ContentDescriptor, error)
}

// UploadHandler proxies multipart uploads to the pinning service so the
// bearer secret never reaches the browser. When a mirror is wired, every
// pinned payload is also written to object storage under its CID.
type UploadHandler struct {
	uploader Uploader
	mirror   domain.BlobWriter
	logger   *slog.Logger
}

// NewUploadHandler creates an UploadHandler. The mirror is optional.
func NewUploadHandler(uploader Uploader, mirror domain.BlobWriter, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploader: uploader,
		mirror:   mirror,
		logger:   logger,
	}
}

// Upload pins a multipart file field and returns the content descriptor.
// POST /api/upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	logger := logHandler(h.logger, "upload")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	name := header.Filename
	if name == "" {
		name = "content"
	}
	contentType := header.Header.Get("Content-Type")

	// JSON documents go through the provider's JSON-specific endpoint;
	// everything else, including malformed payloads merely declared as
	// JSON, takes the generic binary path.
	var desc domain.ContentDescriptor
	if pinning.IsJSONUpload(name, contentType) && json.Valid(data) {
		desc, err = h.uploader.PinJSON(r.Context(), name, json.RawMessage(data))
	} else {
		desc, err = h.uploader.PinFile(r.Context(), name, data, contentType, map[string]string{
			"source": "upload-proxy",
		})
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "pin failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusBadGateway, "pinning service rejected credentials")
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "pinning service rate limited")
		default:
			writeError(w, http.StatusBadGateway, "pin failed: "+err.Error())
		}
		return
	}

	if h.mirror != nil {
		if err := h.mirror.Put(r.Context(), "content/"+desc.CID, bytes.NewReader(data), contentType); err != nil {
			// The pin succeeded; a failed mirror copy is not fatal.
			logger.WarnContext(r.Context(), "mirror write failed",
				slog.String("cid", desc.CID),
				slog.String("error", err.Error()),
			)
		}
	}

	logger.InfoContext(r.Context(), "content pinned",
		slog.String("cid", desc.CID),
		slog.Int64("size", desc.Size),
	)
	writeJSON(w, http.StatusOK, desc)
}
