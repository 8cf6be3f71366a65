package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// ArchiveHandler serves the cold-storage archive listing for operators.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

type blobInfoDTO struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type,omitempty"`
	LastModified string `json:"last_modified"`
}

// List returns archived objects under the given prefix.
// GET /api/archives?prefix=archive/trades/
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, r, h.logger, "list archives", err)
		return
	}

	out := make([]blobInfoDTO, len(infos))
	for i, info := range infos {
		out[i] = blobInfoDTO{
			Path:         info.Path,
			Size:         info.Size,
			ContentType:  info.ContentType,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prefix":   prefix,
		"archives": out,
	})
}
