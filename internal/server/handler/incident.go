package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

// IncidentHandler serves operator incident endpoints.
type IncidentHandler struct {
	incidents domain.IncidentStore
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewIncidentHandler creates an IncidentHandler. audit may be nil.
func NewIncidentHandler(incidents domain.IncidentStore, audit domain.AuditStore, logger *slog.Logger) *IncidentHandler {
	return &IncidentHandler{incidents: incidents, audit: audit, logger: logger}
}

type incidentDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Contract  string `json:"contract,omitempty"`
	AssetID   string `json:"asset_id,omitempty"`
	OrderID   int64  `json:"order_id,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

// ListOpen returns unresolved incidents, newest first.
// GET /api/incidents
func (h *IncidentHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	incidents, err := h.incidents.ListOpen(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list incidents", err)
		return
	}

	out := make([]incidentDTO, len(incidents))
	for i, inc := range incidents {
		out[i] = incidentDTO{
			ID:        inc.ID,
			Kind:      string(inc.Kind),
			Contract:  inc.Contract,
			AssetID:   inc.AssetID,
			OrderID:   inc.OrderID,
			TxHash:    inc.TxHash,
			Detail:    inc.Detail,
			CreatedAt: inc.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": out,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// Resolve marks an incident as handled.
// POST /api/incidents/{id}/resolve
func (h *IncidentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.incidents.Resolve(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, "resolve incident", err)
		return
	}
	if h.audit != nil {
		if err := h.audit.Log(r.Context(), "incident_resolved", map[string]any{"incident_id": id}); err != nil {
			h.logger.WarnContext(r.Context(), "audit log failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true})
}
