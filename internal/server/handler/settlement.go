package handler

import (
	"log/slog"
	"net/http"

	"github.com/bancorprotocol/bancor-arbitrage/internal/service"
)

// SettlementHandler serves the settlement audit history.
type SettlementHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(svc *service.ExecutionService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, logger: logHandler(logger, "settlement")}
}

// ListRecent returns the newest settlements.
// GET /api/settlements?limit=50
func (h *SettlementHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.svc.RecentSettlements(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("list settlements failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}

	out := make([]SettlementDTO, 0, len(settlements))
	for _, s := range settlements {
		out = append(out, ToSettlementDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": out})
}

// GetByID returns one settlement.
// GET /api/settlements/{id}
func (h *SettlementHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing settlement id")
		return
	}

	s, err := h.svc.SettlementByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToSettlementDTO(s))
}
