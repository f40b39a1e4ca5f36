package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves backend runtime metadata for dashboards.
type StatusHandler struct {
	Mode      string
	ChainID   uint64
	Account   string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler with the given runtime metadata.
func NewStatusHandler(mode string, chainID uint64, account string) *StatusHandler {
	return &StatusHandler{
		Mode:      mode,
		ChainID:   chainID,
		Account:   account,
		StartedAt: time.Now().UTC(),
	}
}

// GetStatus responds with the current backend mode, network, and account.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"chain_id":       h.ChainID,
		"account":        h.Account,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
