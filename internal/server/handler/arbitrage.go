package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bancorprotocol/bancor-arbitrage/internal/service"
)

// ArbHandler exposes the two arbitrage execution entry points.
type ArbHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(svc *service.ExecutionService, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{svc: svc, logger: logHandler(logger, "arb")}
}

// ExecuteFlashloan runs a flash-loan arbitrage.
// POST /api/arb/flashloan
func (h *ArbHandler) ExecuteFlashloan(w http.ResponseWriter, r *http.Request) {
	var req FlashloanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller, plan, route, err := req.Decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settlement, err := h.svc.ExecuteFlashloan(r.Context(), caller, plan, route)
	if err != nil {
		h.logger.Warn("flashloan execution failed",
			slog.String("caller", req.Caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ToSettlementDTO(settlement))
}

// ExecuteFunded runs a self-funded arbitrage.
// POST /api/arb/fund
func (h *ArbHandler) ExecuteFunded(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller, anchor, amount, value, route, err := req.Decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settlement, err := h.svc.ExecuteFunded(r.Context(), caller, route, anchor, amount, value)
	if err != nil {
		h.logger.Warn("funded execution failed",
			slog.String("caller", req.Caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ToSettlementDTO(settlement))
}
