package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SlotSnapshot is one persisted observation of a slot.
type SlotSnapshot struct {
	ID         int64
	Slot       NormalizedSlot
	ObservedAt time.Time
}

// SlotSnapshotStore persists the history of slot observations.
type SlotSnapshotStore interface {
	InsertBatch(ctx context.Context, slots []NormalizedSlot, observedAt time.Time) error
	History(ctx context.Context, address common.Address, opts ListOpts) ([]SlotSnapshot, error)
}

// ActionStore persists the action log.
type ActionStore interface {
	Create(ctx context.Context, rec ActionRecord) error
	UpdateStatus(ctx context.Context, id string, status ActionStatus, txHash, errMsg string) error
	GetByID(ctx context.Context, id string) (ActionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ActionRecord, error)
}
