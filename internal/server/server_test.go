package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
	"github.com/forescene/forescene/internal/server/handler"
)

type stubRecords struct{}

func (stubRecords) ListRecords(ctx context.Context) ([]domain.NormalizedRecord, error) {
	return []domain.NormalizedRecord{}, nil
}

func (stubRecords) ListByCreator(ctx context.Context, creator string) ([]domain.NormalizedRecord, error) {
	return []domain.NormalizedRecord{}, nil
}

func (stubRecords) GetRecord(ctx context.Context, id uint64) (domain.NormalizedRecord, error) {
	return domain.NormalizedRecord{}, domain.ErrNotFound
}

func (stubRecords) Refresh(ctx context.Context) error { return nil }

type stubPositions struct{}

func (stubPositions) GetPositions(ctx context.Context, account string) ([]domain.Position, error) {
	return []domain.Position{}, nil
}

type stubSequences struct{}

func (stubSequences) StakeFor(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return domain.SequenceResult{}, nil
}

func (stubSequences) StakeAgainst(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return domain.SequenceResult{}, nil
}

func (stubSequences) Copy(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return domain.SequenceResult{}, nil
}

func (stubSequences) Create(ctx context.Context, params sequencer.CreateParams) (domain.SequenceResult, error) {
	return domain.SequenceResult{}, nil
}

func (stubSequences) Status() domain.SequenceStatus {
	return domain.SequenceStatus{Stage: domain.StageIdle}
}

func (stubSequences) Reset() {}

func (stubSequences) History(ctx context.Context, lastID string, count int) ([]domain.SequenceStatus, string, error) {
	return nil, "", nil
}

func newTestHandler(apiKey string) http.Handler {
	logger := slog.Default()
	handlers := Handlers{
		Health:    handler.NewHealthHandler(logger),
		Status:    handler.NewStatusHandler("server", 8453, ""),
		Records:   handler.NewRecordHandler(stubRecords{}, logger),
		Positions: handler.NewPositionHandler(stubPositions{}, logger),
		Sequences: handler.NewSequenceHandler(stubSequences{}, logger),
	}
	srv := NewServer(Config{Port: 0, APIKey: apiKey}, handlers, nil, nil, logger)
	return srv.httpServer.Handler
}

func TestReadsArePublicWhenAPIKeyConfigured(t *testing.T) {
	h := newTestHandler("sekrit")

	for _, path := range []string{
		"/api/health",
		"/api/status",
		"/api/records",
		"/api/positions/0xabc",
		"/api/sequence",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestWritesRequireAPIKey(t *testing.T) {
	h := newTestHandler("sekrit")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sequence/reset", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sequence/reset", nil)
	req.Header.Set("X-API-Key", "sekrit")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/sequence/reset", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWritesOpenWhenNoAPIKeyConfigured(t *testing.T) {
	h := newTestHandler("")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sequence/reset", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
