package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
)

// SequenceService defines what the sequence handler needs from the service
// layer.
type SequenceService interface {
	StakeFor(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error)
	StakeAgainst(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error)
	Copy(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error)
	Create(ctx context.Context, params sequencer.CreateParams) (domain.SequenceResult, error)
	Status() domain.SequenceStatus
	Reset()
	History(ctx context.Context, lastID string, count int) ([]domain.SequenceStatus, string, error)
}

// SequenceHandler serves the state-changing endpoints. Each write runs the
// full pipeline synchronously; clients observe intermediate stages over the
// websocket feed or by polling the status endpoint.
type SequenceHandler struct {
	sequences SequenceService
	logger    *slog.Logger
}

// NewSequenceHandler creates a SequenceHandler.
func NewSequenceHandler(sequences SequenceService, logger *slog.Logger) *SequenceHandler {
	return &SequenceHandler{
		sequences: sequences,
		logger:    logger,
	}
}

// stakeRequest is the body for stake and copy endpoints.
type stakeRequest struct {
	Side   string `json:"side,omitempty"` // "for" (default) or "against"
	Amount string `json:"amount"`
}

// createRequest is the body for the creation endpoint. File payloads arrive
// base64-encoded; callers that pinned content out of band pass content_ref
// instead.
type createRequest struct {
	Title           string `json:"title"`
	Text            string `json:"text,omitempty"`
	Summary         string `json:"summary,omitempty"`
	Category        string `json:"category"`
	Deadline        string `json:"deadline"` // RFC 3339
	FeeBps          int    `json:"fee_bps"`
	Amount          string `json:"amount"`
	MediaKind       string `json:"media_kind,omitempty"`
	File            []byte `json:"file,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	FileContentType string `json:"file_content_type,omitempty"`
	ContentRef      string `json:"content_ref,omitempty"`
}

// Stake stakes on a record.
// POST /api/records/{id}/stake
func (h *SequenceHandler) Stake(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decodeStake(w, r)
	if !ok {
		return
	}

	var (
		result domain.SequenceResult
		err    error
	)
	if req.Side == "against" {
		result, err = h.sequences.StakeAgainst(r.Context(), id, req.Amount)
	} else {
		result, err = h.sequences.StakeFor(r.Context(), id, req.Amount)
	}
	h.writeResult(w, r, result, err)
}

// Copy copies a record with a stake.
// POST /api/records/{id}/copy
func (h *SequenceHandler) Copy(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decodeStake(w, r)
	if !ok {
		return
	}
	result, err := h.sequences.Copy(r.Context(), id, req.Amount)
	h.writeResult(w, r, result, err)
}

// Create creates a new record.
// POST /api/records
func (h *SequenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := sequencer.CreateParams{
		Title:           req.Title,
		Text:            req.Text,
		Summary:         req.Summary,
		Category:        req.Category,
		FeeBps:          req.FeeBps,
		Amount:          req.Amount,
		MediaKind:       domain.MediaKind(req.MediaKind),
		File:            req.File,
		FileName:        req.FileName,
		FileContentType: req.FileContentType,
		ContentRef:      req.ContentRef,
	}
	if req.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deadline, expected RFC 3339")
			return
		}
		params.Deadline = deadline
	}

	result, err := h.sequences.Create(r.Context(), params)
	h.writeResult(w, r, result, err)
}

// Status returns the current sequencer run state.
// GET /api/sequence
func (h *SequenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sequences.Status())
}

// Reset returns an errored sequencer to idle.
// POST /api/sequence/reset
func (h *SequenceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.sequences.Reset()
	writeJSON(w, http.StatusOK, h.sequences.Status())
}

// History returns terminal sequence states from the durable stream.
// GET /api/sequence/history?after=<stream id>&limit=50
func (h *SequenceHandler) History(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	statuses, lastID, err := h.sequences.History(r.Context(), after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sequence history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sequences": statuses,
		"last_id":   lastID,
	})
}

func (h *SequenceHandler) decodeStake(w http.ResponseWriter, r *http.Request) (uint64, stakeRequest, bool) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return 0, stakeRequest{}, false
	}

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return 0, stakeRequest{}, false
	}
	if req.Side != "" && req.Side != "for" && req.Side != "against" {
		writeError(w, http.StatusBadRequest, `side must be "for" or "against"`)
		return 0, stakeRequest{}, false
	}
	return id, req, true
}

// writeResult maps a pipeline outcome to an HTTP response. Failures include
// the frozen failed stage so clients can render where the run stopped.
func (h *SequenceHandler) writeResult(w http.ResponseWriter, r *http.Request, result domain.SequenceResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	status := h.sequences.Status()
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrSequenceActive):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrNoClient), errors.Is(err, domain.ErrNoAccount):
		code = http.StatusServiceUnavailable
	}

	h.logger.ErrorContext(r.Context(), "handler: sequence failed",
		slog.String("action", string(status.Action)),
		slog.String("failed_stage", string(status.FailedStage)),
		slog.String("error", err.Error()),
	)
	writeJSON(w, code, map[string]any{
		"error":        err.Error(),
		"failed_stage": status.FailedStage,
		"run_id":       status.RunID,
	})
}
