package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forescene/forescene/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// UpsertBatch inserts or updates an account's position snapshots in one batch.
func (s *PositionStore) UpsertBatch(ctx context.Context, chainID uint64, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	const query = `
		INSERT INTO positions (
			chain_id, account, record_id, for_amount, against_amount, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (chain_id, account, record_id) DO UPDATE SET
			for_amount     = EXCLUDED.for_amount,
			against_amount = EXCLUDED.against_amount,
			updated_at     = NOW()`

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(query,
			chainID, p.Account, p.RecordID,
			bigString(p.ForAmount), bigString(p.AgainstAmount),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByAccount returns one account's position snapshots ordered by record id.
// The account comparison is case-insensitive.
func (s *PositionStore) ListByAccount(ctx context.Context, chainID uint64, account string) ([]domain.Position, error) {
	const query = `
		SELECT account, record_id, for_amount::TEXT, against_amount::TEXT
		FROM positions
		WHERE chain_id = $1 AND LOWER(account) = LOWER($2)
		ORDER BY record_id`

	rows, err := s.pool.Query(ctx, query, chainID, account)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", account, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			p                  domain.Position
			forAmt, againstAmt string
		)
		if err := rows.Scan(&p.Account, &p.RecordID, &forAmt, &againstAmt); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.ForAmount = parseNumeric(forAmt)
		p.AgainstAmount = parseNumeric(againstAmt)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
