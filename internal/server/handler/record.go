package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/forescene/forescene/internal/domain"
)

// RecordService defines what the record handler needs from the service layer.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type RecordService interface {
	ListRecords(ctx context.Context) ([]domain.NormalizedRecord, error)
	ListByCreator(ctx context.Context, creator string) ([]domain.NormalizedRecord, error)
	GetRecord(ctx context.Context, id uint64) (domain.NormalizedRecord, error)
	Refresh(ctx context.Context) error
}

// RecordHandler serves the aggregated record read endpoints.
type RecordHandler struct {
	records RecordService
	logger  *slog.Logger
}

// NewRecordHandler creates a RecordHandler with the given service and logger.
func NewRecordHandler(records RecordService, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{
		records: records,
		logger:  logger,
	}
}

// listRecordsResponse wraps the list endpoint output with metadata.
type listRecordsResponse struct {
	Records []recordView `json:"records"`
	Total   int          `json:"total"`
}

// recordView is the JSON shape served for a normalized record.
type recordView struct {
	ID         uint64      `json:"id"`
	Creator    string      `json:"creator"`
	Title      string      `json:"title"`
	Summary    string      `json:"summary,omitempty"`
	Category   string      `json:"category,omitempty"`
	MediaKind  string      `json:"media_kind"`
	MediaURL   string      `json:"media_url,omitempty"`
	ContentRef string      `json:"content_ref,omitempty"`
	Status     string      `json:"status"`
	IsActive   bool        `json:"is_active"`
	Deadline   string      `json:"deadline,omitempty"`
	FeeBps     uint16      `json:"fee_bps"`
	CopyCount  uint64      `json:"copy_count"`
	Odds       domain.Odds `json:"odds"`
	FetchedAt  string      `json:"fetched_at"`
}

func viewFromRecord(rec domain.NormalizedRecord) recordView {
	v := recordView{
		ID:         rec.ID,
		Creator:    rec.Creator,
		Title:      rec.Title,
		Summary:    rec.Summary,
		Category:   rec.Category,
		MediaKind:  string(rec.MediaKind),
		MediaURL:   rec.MediaURL,
		ContentRef: rec.ContentRef,
		Status:     rec.Status.String(),
		IsActive:   rec.IsActive,
		FeeBps:     rec.FeeBps,
		CopyCount:  rec.CopyCount,
		Odds:       rec.Odds,
	}
	if !rec.Deadline.IsZero() {
		v.Deadline = rec.Deadline.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if !rec.FetchedAt.IsZero() {
		v.FetchedAt = rec.FetchedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return v
}

func viewsFromRecords(records []domain.NormalizedRecord) []recordView {
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewFromRecord(rec))
	}
	return views
}

// ListRecords returns the full aggregated collection.
// GET /api/records
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.ListRecords(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list records failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to list records")
		return
	}

	writeJSON(w, http.StatusOK, listRecordsResponse{
		Records: viewsFromRecords(records),
		Total:   len(records),
	})
}

// GetRecord returns a single record by its numeric id.
// GET /api/records/{id}
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec, err := h.records.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get record failed",
			slog.Uint64("record_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to get record")
		return
	}

	writeJSON(w, http.StatusOK, viewFromRecord(rec))
}

// ListByCreator returns one creator's records.
// GET /api/creators/{address}/records
func (h *RecordHandler) ListByCreator(w http.ResponseWriter, r *http.Request) {
	creator := pathParam(r, "address")
	if creator == "" {
		writeError(w, http.StatusBadRequest, "missing creator address")
		return
	}

	records, err := h.records.ListByCreator(r.Context(), creator)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list by creator failed",
			slog.String("creator", creator),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to list records")
		return
	}

	writeJSON(w, http.StatusOK, listRecordsResponse{
		Records: viewsFromRecords(records),
		Total:   len(records),
	})
}

// TriggerRefresh forces a refetch of the aggregated collection.
// POST /api/records/refresh
func (h *RecordHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Refresh(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: refresh failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
