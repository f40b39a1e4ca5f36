package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/forescene/forescene/internal/domain"
)

// PositionService defines what the position handler needs from the service
// layer.
type PositionService interface {
	GetPositions(ctx context.Context, account string) ([]domain.Position, error)
}

// PositionHandler serves per-account position endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// positionView is the JSON shape served for a position. Amounts are decimal
// strings in token base units.
type positionView struct {
	RecordID      uint64 `json:"record_id"`
	ForAmount     string `json:"for_amount"`
	AgainstAmount string `json:"against_amount"`
}

type listPositionsResponse struct {
	Account   string         `json:"account"`
	Positions []positionView `json:"positions"`
	Total     int            `json:"total"`
}

// ListPositions returns all non-empty positions held by an account.
// GET /api/positions/{account}
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account address")
		return
	}

	positions, err := h.positions.GetPositions(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to list positions")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionView{
			RecordID:      p.RecordID,
			ForAmount:     amountString(p.ForAmount),
			AgainstAmount: amountString(p.AgainstAmount),
		})
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Account:   account,
		Positions: views,
		Total:     len(views),
	})
}
