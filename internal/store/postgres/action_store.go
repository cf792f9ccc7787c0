package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

// ActionStore implements domain.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ActionStore = (*ActionStore)(nil)

// NewActionStore creates an ActionStore backed by pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

const actionSelectCols = `id::text, kind, slot, wallet, value_wei::text, tx_hash, status, error, created_at, updated_at`

// Create inserts a new action record.
func (s *ActionStore) Create(ctx context.Context, rec domain.ActionRecord) error {
	const query = `
		INSERT INTO actions (id, kind, slot, wallet, value_wei, tx_hash, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)`

	value := rec.ValueWei
	if value == "" {
		value = "0"
	}
	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Kind), rec.Slot.Hex(), rec.Wallet.Hex(), value,
		rec.TxHash, string(rec.Status), rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create action %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatus settles an action. An empty txHash keeps the stored one.
func (s *ActionStore) UpdateStatus(ctx context.Context, id string, status domain.ActionStatus, txHash, errMsg string) error {
	const query = `
		UPDATE actions
		SET status = $2,
		    tx_hash = CASE WHEN $3 = '' THEN tx_hash ELSE $3 END,
		    error = $4,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), txHash, errMsg)
	if err != nil {
		return fmt.Errorf("postgres: update action %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update action %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID fetches one action.
func (s *ActionStore) GetByID(ctx context.Context, id string) (domain.ActionRecord, error) {
	query := `SELECT ` + actionSelectCols + ` FROM actions WHERE id = $1`
	rec, err := scanAction(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ActionRecord{}, fmt.Errorf("postgres: get action %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ActionRecord{}, fmt.Errorf("postgres: get action %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns up to limit actions, newest first.
func (s *ActionStore) ListRecent(ctx context.Context, limit int) ([]domain.ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + actionSelectCols + ` FROM actions ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionRecord
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan action: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list actions rows: %w", err)
	}
	return out, nil
}

func scanAction(row pgx.Row) (domain.ActionRecord, error) {
	var (
		rec          domain.ActionRecord
		kind, status string
		slot, wallet string
	)
	if err := row.Scan(
		&rec.ID, &kind, &slot, &wallet, &rec.ValueWei,
		&rec.TxHash, &status, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return domain.ActionRecord{}, err
	}
	rec.Kind = domain.ActionKind(kind)
	rec.Status = domain.ActionStatus(status)
	rec.Slot = common.HexToAddress(slot)
	rec.Wallet = common.HexToAddress(wallet)
	return rec, nil
}
