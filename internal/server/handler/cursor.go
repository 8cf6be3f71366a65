package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/brixmarket/syncengine/internal/domain"
)

// CursorHandler serves indexing cursor endpoints. Cursor resets are how
// an operator resumes a contract after a reorg halt: write the cursor to
// the common ancestor with an empty block hash and the indexer re-walks
// the affected range.
type CursorHandler struct {
	cursors domain.CursorStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewCursorHandler creates a CursorHandler. audit may be nil.
func NewCursorHandler(cursors domain.CursorStore, audit domain.AuditStore, logger *slog.Logger) *CursorHandler {
	return &CursorHandler{cursors: cursors, audit: audit, logger: logger}
}

type cursorDTO struct {
	Contract    string `json:"contract"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint   `json:"log_index"`
	BlockHash   string `json:"block_hash,omitempty"`
}

// List returns the durable cursor of every tracked contract.
// GET /api/cursors
func (h *CursorHandler) List(w http.ResponseWriter, r *http.Request) {
	cursors, err := h.cursors.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list cursors", err)
		return
	}

	out := make([]cursorDTO, len(cursors))
	for i, c := range cursors {
		out[i] = cursorDTO{
			Contract:    c.Contract,
			BlockNumber: c.Position.BlockNumber,
			LogIndex:    c.Position.LogIndex,
			BlockHash:   c.BlockHash,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"cursors": out})
}

// Reset overwrites a contract's cursor.
// PUT /api/cursors/{contract}
func (h *CursorHandler) Reset(w http.ResponseWriter, r *http.Request) {
	contract := pathParam(r, "contract")

	var body struct {
		BlockNumber uint64 `json:"block_number"`
		LogIndex    uint   `json:"log_index"`
		BlockHash   string `json:"block_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cur := domain.EventCursor{
		Contract:  contract,
		Position:  domain.Cursor{BlockNumber: body.BlockNumber, LogIndex: body.LogIndex},
		BlockHash: body.BlockHash,
	}
	if err := h.cursors.Put(r.Context(), cur); err != nil {
		writeDomainError(w, r, h.logger, "reset cursor", err)
		return
	}

	h.logger.WarnContext(r.Context(), "cursor reset by operator",
		slog.String("contract", contract),
		slog.Uint64("block", body.BlockNumber),
	)
	if h.audit != nil {
		if err := h.audit.Log(r.Context(), "cursor_reset", map[string]any{
			"contract":     contract,
			"block_number": body.BlockNumber,
			"log_index":    body.LogIndex,
			"block_hash":   body.BlockHash,
		}); err != nil {
			h.logger.WarnContext(r.Context(), "audit log failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, cursorDTO{
		Contract:    contract,
		BlockNumber: body.BlockNumber,
		LogIndex:    body.LogIndex,
		BlockHash:   body.BlockHash,
	})
}
