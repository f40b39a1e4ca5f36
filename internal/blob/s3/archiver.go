package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/forescene/forescene/internal/domain"
)

// RecordArchiveStore is the narrow store surface the archiver needs: only
// the stale-snapshot query, not the full record store.
type RecordArchiveStore interface {
	ListStaleBefore(ctx context.Context, chainID uint64, cutoff time.Time) ([]domain.NormalizedRecord, error)
}

// ArchiveImpl implements domain.Archiver by querying the snapshot store for
// records last refreshed before a cutoff, serializing them to JSONL, and
// uploading the result to object storage. Each upload is read back and
// length-checked before the archive is considered successful.
//
// Deletion of archived rows from the primary store is intentionally not
// performed here; that is a separate, explicit step run after the archive
// has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	store   RecordArchiveStore
	chainID uint64
	logger  *slog.Logger
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, store RecordArchiveStore, chainID uint64, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		reader:  reader,
		store:   store,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveRecords archives every snapshot last refreshed before the cutoff.
// It returns the number of archived records; zero stale records is a no-op,
// not an error.
func (a *ArchiveImpl) ArchiveRecords(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.store.ListStaleBefore(ctx, a.chainID, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list stale records: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: encode record %d: %w", rec.ID, err)
		}
	}

	path := fmt.Sprintf("archive/records/%d/%s.jsonl", a.chainID, before.UTC().Format("20060102T150405Z"))
	size := int64(buf.Len())

	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive %s: %w", path, err)
	}
	if err := a.verify(ctx, path, size); err != nil {
		return 0, err
	}

	a.logger.InfoContext(ctx, "archived stale records",
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.Int64("bytes", size),
	)
	return int64(len(records)), nil
}

// verify reads the uploaded object back and checks its length against what
// was written.
func (a *ArchiveImpl) verify(ctx context.Context, path string, want int64) error {
	if a.reader == nil {
		return nil
	}
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: verify archive %s: %w", path, err)
	}
	defer body.Close()

	got, err := io.Copy(io.Discard, body)
	if err != nil {
		return fmt.Errorf("s3blob: verify archive %s: %w", path, err)
	}
	if got != want {
		return fmt.Errorf("s3blob: verify archive %s: size mismatch, wrote %d read %d", path, want, got)
	}
	return nil
}

// RunArchiveLoop archives on a fixed interval until the context is
// cancelled. maxAge selects which snapshots count as stale on each tick.
func (a *ArchiveImpl) RunArchiveLoop(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveRecords(ctx, time.Now().UTC().Add(-maxAge))
			if err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archive pass complete",
					slog.Int64("count", count),
				)
			}
		}
	}
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
