package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain error to an HTTP status and sends it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

// statusForError classifies domain errors into HTTP status codes: malformed
// requests are 400, contention is 409, authorization failures are 403,
// missing records are 404, and executions that ran but failed their economic
// checks are 422.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrReentrancy), errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRouteLength),
		errors.Is(err, domain.ErrInvalidLoanPlan),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInvalidExchangeID),
		errors.Is(err, domain.ErrInvalidAnchor),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, domain.ErrSameSourceTarget),
		errors.Is(err, domain.ErrMinTargetTooHigh):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientTarget),
		errors.Is(err, domain.ErrInsufficientBurn),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllow),
		errors.Is(err, domain.ErrPairNotTradeable),
		errors.Is(err, domain.ErrDeadlineExpired),
		errors.Is(err, domain.ErrAmountOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseLimit extracts a ?limit= query parameter. Defaults to 50, capped at
// 500.
func parseLimit(r *http.Request) int {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// parseAmount parses a required decimal amount field.
func parseAmount(field, v string) (*uint256.Int, error) {
	if v == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	n, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid amount %q", field, v)
	}
	return n, nil
}

// parseOptionalAmount parses a decimal amount field, returning nil when the
// field is empty.
func parseOptionalAmount(field, v string) (*uint256.Int, error) {
	if v == "" {
		return nil, nil
	}
	return parseAmount(field, v)
}

// parseAddress parses a required hex account address field.
func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, v)
	}
	return common.HexToAddress(v), nil
}

// parseAsset parses a required asset field ("native" or a hex address).
func parseAsset(field, v string) (domain.Asset, error) {
	asset, err := domain.ParseAsset(v)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("%s: %v", field, err)
	}
	return asset, nil
}
