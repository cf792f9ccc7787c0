package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind names a state-changing slot operation.
type ActionKind string

const (
	ActionClaim          ActionKind = "claim"
	ActionTakeover       ActionKind = "takeover"
	ActionRenew          ActionKind = "renew"
	ActionForfeit        ActionKind = "forfeit"
	ActionPoke           ActionKind = "poke"
	ActionUpdateCreative ActionKind = "update_creative"
)

// ActionStatus is the settlement state of a recorded action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionConfirmed ActionStatus = "confirmed"
	ActionFailed    ActionStatus = "failed"
)

// ActionRecord is one submitted (or attempted) action in the action log.
type ActionRecord struct {
	ID        string         `json:"id"`
	Kind      ActionKind     `json:"kind"`
	Slot      common.Address `json:"slot"`
	Wallet    common.Address `json:"wallet"`
	ValueWei  string         `json:"value_wei"`
	TxHash    string         `json:"tx_hash,omitempty"`
	Status    ActionStatus   `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ActionEvent is published on the signal bus whenever an action changes state.
type ActionEvent struct {
	Event  string       `json:"event"`
	Record ActionRecord `json:"record"`
}
