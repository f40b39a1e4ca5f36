package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forescene/forescene/internal/domain"
)

// RecordStore implements domain.RecordStore using PostgreSQL. It persists the
// normalized snapshots produced by the read layer so the API keeps serving
// across restarts and while the ledger is unreachable.
type RecordStore struct {
	pool *pgxpool.Pool
}

// NewRecordStore creates a new RecordStore backed by the given connection pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

const upsertRecordQuery = `
	INSERT INTO records (
		chain_id, id, creator, content_ref, format, category,
		deadline, lock_time, status, is_active, fee_bps, copy_count,
		title, summary, media_kind, media_url,
		for_total, against_total, fetched_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16,
		$17, $18, $19, NOW()
	)
	ON CONFLICT (chain_id, id) DO UPDATE SET
		creator       = EXCLUDED.creator,
		content_ref   = EXCLUDED.content_ref,
		format        = EXCLUDED.format,
		category      = EXCLUDED.category,
		deadline      = EXCLUDED.deadline,
		lock_time     = EXCLUDED.lock_time,
		status        = EXCLUDED.status,
		is_active     = EXCLUDED.is_active,
		fee_bps       = EXCLUDED.fee_bps,
		copy_count    = EXCLUDED.copy_count,
		title         = EXCLUDED.title,
		summary       = EXCLUDED.summary,
		media_kind    = EXCLUDED.media_kind,
		media_url     = EXCLUDED.media_url,
		for_total     = EXCLUDED.for_total,
		against_total = EXCLUDED.against_total,
		fetched_at    = EXCLUDED.fetched_at,
		updated_at    = NOW()`

const selectRecordColumns = `
	id, creator, content_ref, format, category,
	deadline, lock_time, status, is_active, fee_bps, copy_count,
	title, summary, media_kind, media_url,
	for_total::TEXT, against_total::TEXT, fetched_at`

// UpsertBatch inserts or updates a refresh's worth of snapshots in a single
// batch round trip.
func (s *RecordStore) UpsertBatch(ctx context.Context, chainID uint64, records []domain.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertRecordQuery,
			chainID, r.ID, r.Creator, r.ContentRef, int16(r.Format), r.Category,
			nullableTime(r.Deadline), nullableTime(r.LockTime),
			int16(r.Status), r.IsActive, int32(r.FeeBps), r.CopyCount,
			r.Title, r.Summary, string(r.MediaKind), r.MediaURL,
			r.Odds.ForTotal, r.Odds.AgainstTot, r.FetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert record batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID retrieves a single snapshot. It returns domain.ErrNotFound when no
// snapshot exists for the id on that network.
func (s *RecordStore) GetByID(ctx context.Context, chainID, id uint64) (domain.NormalizedRecord, error) {
	query := `SELECT` + selectRecordColumns + ` FROM records WHERE chain_id = $1 AND id = $2`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, chainID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NormalizedRecord{}, domain.ErrNotFound
		}
		return domain.NormalizedRecord{}, fmt.Errorf("postgres: get record %d: %w", id, err)
	}
	return rec, nil
}

// List returns snapshots for a network ordered by descending id.
func (s *RecordStore) List(ctx context.Context, chainID uint64, opts domain.ListOpts) ([]domain.NormalizedRecord, error) {
	query := `SELECT` + selectRecordColumns + `
		FROM records WHERE chain_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, chainID, normalizeLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListByCreator returns one creator's snapshots ordered by descending id.
// The creator address comparison is case-insensitive.
func (s *RecordStore) ListByCreator(ctx context.Context, chainID uint64, creator string, opts domain.ListOpts) ([]domain.NormalizedRecord, error) {
	query := `SELECT` + selectRecordColumns + `
		FROM records WHERE chain_id = $1 AND LOWER(creator) = LOWER($2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.pool.Query(ctx, query, chainID, creator, normalizeLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records by creator %s: %w", creator, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListStaleBefore returns snapshots last refreshed before the cutoff.
func (s *RecordStore) ListStaleBefore(ctx context.Context, chainID uint64, cutoff time.Time) ([]domain.NormalizedRecord, error) {
	query := `SELECT` + selectRecordColumns + `
		FROM records WHERE chain_id = $1 AND fetched_at < $2
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, chainID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Count returns the number of snapshots held for a network.
func (s *RecordStore) Count(ctx context.Context, chainID uint64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE chain_id = $1`, chainID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count records: %w", err)
	}
	return count, nil
}

func scanRecord(row pgx.Row) (domain.NormalizedRecord, error) {
	var (
		r                  domain.NormalizedRecord
		format, status     int16
		feeBps             int32
		deadline, lockTime *time.Time
		mediaKind          string
		forTot, againstTot string
	)
	err := row.Scan(
		&r.ID, &r.Creator, &r.ContentRef, &format, &r.Category,
		&deadline, &lockTime, &status, &r.IsActive, &feeBps, &r.CopyCount,
		&r.Title, &r.Summary, &mediaKind, &r.MediaURL,
		&forTot, &againstTot, &r.FetchedAt,
	)
	if err != nil {
		return domain.NormalizedRecord{}, err
	}

	r.Format = domain.ContentFormat(format)
	r.Status = domain.RecordStatus(status)
	r.FeeBps = uint16(feeBps)
	r.MediaKind = domain.MediaKind(mediaKind)
	if deadline != nil {
		r.Deadline = deadline.UTC()
	}
	if lockTime != nil {
		r.LockTime = lockTime.UTC()
	}
	r.Odds = domain.OddsFromPool(domain.Pool{
		ForTotal:     parseNumeric(forTot),
		AgainstTotal: parseNumeric(againstTot),
		FeeBps:       r.FeeBps,
	})
	return r, nil
}

func collectRecords(rows pgx.Rows) ([]domain.NormalizedRecord, error) {
	var records []domain.NormalizedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate records: %w", err)
	}
	return records, nil
}

// parseNumeric converts a NUMERIC column read as text back into a big.Int,
// defaulting to zero on anything unparsable.
func parseNumeric(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

// Compile-time interface check.
var _ domain.RecordStore = (*RecordStore)(nil)
