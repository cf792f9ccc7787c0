package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

// SlotSnapshotStore implements domain.SlotSnapshotStore. Each row keeps the
// queryable columns alongside the full normalized slot as JSONB.
type SlotSnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SlotSnapshotStore = (*SlotSnapshotStore)(nil)

// NewSlotSnapshotStore creates a SlotSnapshotStore backed by pool.
func NewSlotSnapshotStore(pool *pgxpool.Pool) *SlotSnapshotStore {
	return &SlotSnapshotStore{pool: pool}
}

const snapshotInsert = `
	INSERT INTO slot_snapshots (
		address, slot_type, owner,
		valuation_wei, locked_wei, prepaid_wei,
		tax_paid_until, is_expired, ad_uri, data, observed_at
	) VALUES (
		$1, $2, $3,
		$4::numeric, $5::numeric, $6::numeric,
		$7, $8, $9, $10, $11
	)`

// InsertBatch records one observation per slot, all stamped observedAt.
func (s *SlotSnapshotStore) InsertBatch(ctx context.Context, slots []domain.NormalizedSlot, observedAt time.Time) error {
	if len(slots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sl := range slots {
		data, err := json.Marshal(sl)
		if err != nil {
			return fmt.Errorf("postgres: marshal slot %s: %w", sl.Address.Hex(), err)
		}
		var owner *string
		if sl.Owner != nil {
			o := sl.Owner.Hex()
			owner = &o
		}
		batch.Queue(snapshotInsert,
			sl.Address.Hex(), string(sl.Type), owner,
			numeric(sl.ValuationWei), numeric(sl.LockedValueWei), numeric(sl.PrepaidTaxBalanceWei),
			int64(min(sl.TaxPaidUntil, 1<<63-1)), sl.IsExpired, sl.CurrentAdURI, data, observedAt.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range slots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

// History returns snapshots of address, newest first.
func (s *SlotSnapshotStore) History(ctx context.Context, address common.Address, opts domain.ListOpts) ([]domain.SlotSnapshot, error) {
	query := `SELECT id, data, observed_at FROM slot_snapshots WHERE address = $1`
	args := []any{address.Hex()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND observed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND observed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY observed_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: snapshot history %s: %w", address.Hex(), err)
	}
	defer rows.Close()

	var out []domain.SlotSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: snapshot history rows: %w", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (domain.SlotSnapshot, error) {
	var (
		snap domain.SlotSnapshot
		data []byte
	)
	if err := row.Scan(&snap.ID, &data, &snap.ObservedAt); err != nil {
		return domain.SlotSnapshot{}, err
	}
	if err := json.Unmarshal(data, &snap.Slot); err != nil {
		return domain.SlotSnapshot{}, fmt.Errorf("unmarshal slot: %w", err)
	}
	return snap, nil
}

// numeric renders a wei amount for a $n::numeric parameter.
func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
