// Package action validates and submits state-changing slot transactions.
//
// Each action checks its preconditions locally, computes the exact value to
// attach, and hands a Call to an Executor that simulates, signs, broadcasts and
// waits for the receipt. Only one action may be in flight per Engine.
package action

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

// Contract method names.
const (
	MethodClaim          = "claim"
	MethodTakeover       = "takeover"
	MethodRenew          = "renew"
	MethodForfeit        = "forfeit"
	MethodPoke           = "poke"
	MethodUpdateCreative = "updateCreative"
)

// Call is a contract invocation before it has been simulated.
type Call struct {
	Slot     common.Address
	SlotType domain.SlotType
	Method   string
	Args     []any
	// Value is nil for non-payable methods.
	Value *big.Int
}

// Prepared is a Call that passed simulation and is ready to sign.
type Prepared struct {
	Call Call
	Data []byte
	Gas  uint64
}

// Executor is the wallet collaborator.
type Executor interface {
	// From returns the address transactions are sent from.
	From() common.Address
	Simulate(ctx context.Context, call Call) (Prepared, error)
	Submit(ctx context.Context, prepared Prepared) (common.Hash, error)
	AwaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Notifier receives action outcome alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventActionPending   = "action_pending"
	EventActionConfirmed = "action_confirmed"
	EventActionFailed    = "action_failed"
)

// ClaimRequest is the input to Claim.
type ClaimRequest struct {
	Valuation  *big.Int
	TaxPeriods uint64
	AdURI      string
}

// TakeoverRequest is the input to Takeover.
type TakeoverRequest struct {
	NewValuation *big.Int
	TaxPeriods   uint64
	AdURI        string
}
