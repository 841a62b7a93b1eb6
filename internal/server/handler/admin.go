package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/service"
)

// AdminHandler exposes the durable engine parameters. The routes are behind
// API-key auth; the service supplies the admin identity to the engine.
type AdminHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *service.ExecutionService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logHandler(logger, "admin")}
}

type rewardsDTO struct {
	PercentPPM uint32 `json:"percentPPM"`
	MaxAmount  string `json:"maxAmount"`
}

type minBurnDTO struct {
	MinBurn string `json:"minBurn"`
}

// GetRewards returns the current rewards configuration.
// GET /api/admin/rewards
func (h *AdminHandler) GetRewards(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.Rewards()
	writeJSON(w, http.StatusOK, rewardsDTO{
		PercentPPM: cfg.PercentPPM,
		MaxAmount:  cfg.MaxAmount.Dec(),
	})
}

// UpdateRewards replaces the rewards configuration.
// PUT /api/admin/rewards
func (h *AdminHandler) UpdateRewards(w http.ResponseWriter, r *http.Request) {
	var req rewardsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	maxAmount, err := parseAmount("maxAmount", req.MaxAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := domain.RewardsConfig{PercentPPM: req.PercentPPM, MaxAmount: maxAmount}
	if err := h.svc.SetRewards(r.Context(), cfg); err != nil {
		h.logger.Warn("rewards update failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetMinBurn returns the current minimum burn threshold.
// GET /api/admin/minburn
func (h *AdminHandler) GetMinBurn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, minBurnDTO{MinBurn: h.svc.MinBurn().Dec()})
}

// UpdateMinBurn replaces the minimum burn threshold.
// PUT /api/admin/minburn
func (h *AdminHandler) UpdateMinBurn(w http.ResponseWriter, r *http.Request) {
	var req minBurnDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	v, err := parseAmount("minBurn", req.MinBurn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetMinBurn(r.Context(), v); err != nil {
		h.logger.Warn("min burn update failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
