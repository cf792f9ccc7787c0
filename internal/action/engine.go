package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/money"
	"github.com/alanyoungcy/slotengine/internal/slot"
)

// DefaultTimeout bounds one simulate, submit and confirm sequence.
const DefaultTimeout = 3 * time.Minute

// Options holds the optional collaborators of an Engine. Nil fields disable
// the corresponding feature.
type Options struct {
	Notifier Notifier
	Locks    domain.LockManager
	Actions  domain.ActionStore
	Bus      domain.SignalBus
	// Timeout bounds each sequence; zero selects DefaultTimeout.
	Timeout time.Duration
	// OnSettled runs after every action that reached the executor.
	OnSettled func(kind domain.ActionKind, slot common.Address, err error)
}

// Engine runs slot actions one at a time. A request made while another is in
// flight is rejected with domain.ErrActionInProgress.
type Engine struct {
	exec      Executor
	notifier  Notifier
	locks     domain.LockManager
	actions   domain.ActionStore
	bus       domain.SignalBus
	timeout   time.Duration
	onSettled func(domain.ActionKind, common.Address, error)
	logger    *slog.Logger

	mu      sync.Mutex
	pending *domain.ActionKind
}

// NewEngine creates an Engine that submits through exec.
func NewEngine(exec Executor, opts Options, logger *slog.Logger) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		exec:      exec,
		notifier:  opts.Notifier,
		locks:     opts.Locks,
		actions:   opts.Actions,
		bus:       opts.Bus,
		timeout:   timeout,
		onSettled: opts.OnSettled,
		logger:    logger.With(slog.String("component", "action_engine")),
	}
}

// From returns the wallet address actions are sent from.
func (e *Engine) From() common.Address {
	return e.exec.From()
}

// Pending returns the kind of the in-flight action, if any.
func (e *Engine) Pending() (domain.ActionKind, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return "", false
	}
	return *e.pending, true
}

// Claim occupies a vacant slot at valuation, prepaying tax for TaxPeriods.
func (e *Engine) Claim(ctx context.Context, s domain.NormalizedSlot, req ClaimRequest) (common.Hash, error) {
	if !s.IsEffectivelyVacant() {
		return common.Hash{}, invalid(domain.ErrSlotOccupied, "%s is owned by %s", s.Address.Hex(), s.Owner.Hex())
	}
	if req.Valuation == nil || req.Valuation.Cmp(money.OrZero(s.MinValuationWei)) < 0 {
		return common.Hash{}, invalid(domain.ErrBelowMinimum, "valuation %s < minimum %s", weiString(req.Valuation), weiString(s.MinValuationWei))
	}
	if err := requirePeriods(req.TaxPeriods); err != nil {
		return common.Hash{}, err
	}
	uri, err := slot.NormalizeCreativeURI(req.AdURI)
	if err != nil {
		return common.Hash{}, err
	}
	value := ClaimValue(s, req.Valuation, req.TaxPeriods)
	if err := requirePositive(value); err != nil {
		return common.Hash{}, err
	}
	return e.run(ctx, domain.ActionClaim, Call{
		Slot:     s.Address,
		SlotType: s.Type,
		Method:   MethodClaim,
		Args:     []any{new(big.Int).Set(req.Valuation), new(big.Int).SetUint64(req.TaxPeriods), uri},
		Value:    value,
	})
}

// Takeover displaces the current owner with a bid of at least MinTakeoverBid.
func (e *Engine) Takeover(ctx context.Context, s domain.NormalizedSlot, req TakeoverRequest) (common.Hash, error) {
	if err := requirePeriods(req.TaxPeriods); err != nil {
		return common.Hash{}, err
	}
	minBid := MinTakeoverBid(s)
	if req.NewValuation == nil || req.NewValuation.Cmp(minBid) < 0 {
		return common.Hash{}, invalid(domain.ErrBelowMinimum, "bid %s < minimum takeover bid %s", weiString(req.NewValuation), minBid.String())
	}
	uri, err := slot.NormalizeCreativeURI(req.AdURI)
	if err != nil {
		return common.Hash{}, err
	}
	value := TakeoverValue(s, req.NewValuation, req.TaxPeriods)
	if err := requirePositive(value); err != nil {
		return common.Hash{}, err
	}
	return e.run(ctx, domain.ActionTakeover, Call{
		Slot:     s.Address,
		SlotType: s.Type,
		Method:   MethodTakeover,
		Args:     []any{new(big.Int).Set(req.NewValuation), new(big.Int).SetUint64(req.TaxPeriods), uri},
		Value:    value,
	})
}

// Renew extends the owner's coverage by taxPeriods.
func (e *Engine) Renew(ctx context.Context, s domain.NormalizedSlot, taxPeriods uint64) (common.Hash, error) {
	if err := e.requireOwner(s); err != nil {
		return common.Hash{}, err
	}
	if err := requirePeriods(taxPeriods); err != nil {
		return common.Hash{}, err
	}
	value := RenewValue(s, taxPeriods)
	if err := requirePositive(value); err != nil {
		return common.Hash{}, err
	}
	return e.run(ctx, domain.ActionRenew, Call{
		Slot:     s.Address,
		SlotType: s.Type,
		Method:   MethodRenew,
		Args:     []any{new(big.Int).SetUint64(taxPeriods)},
		Value:    value,
	})
}

// Forfeit vacates the slot and releases the bond to the owner.
func (e *Engine) Forfeit(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
	if err := e.requireOwner(s); err != nil {
		return common.Hash{}, err
	}
	return e.run(ctx, domain.ActionForfeit, Call{Slot: s.Address, SlotType: s.Type, Method: MethodForfeit})
}

// Poke triggers on-chain settlement. Anyone may call it.
func (e *Engine) Poke(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
	return e.run(ctx, domain.ActionPoke, Call{Slot: s.Address, SlotType: s.Type, Method: MethodPoke})
}

// UpdateCreative replaces the slot's ad creative.
func (e *Engine) UpdateCreative(ctx context.Context, s domain.NormalizedSlot, adURI string) (common.Hash, error) {
	if err := e.requireOwner(s); err != nil {
		return common.Hash{}, err
	}
	uri, err := slot.NormalizeCreativeURI(adURI)
	if err != nil {
		return common.Hash{}, err
	}
	return e.run(ctx, domain.ActionUpdateCreative, Call{
		Slot:     s.Address,
		SlotType: s.Type,
		Method:   MethodUpdateCreative,
		Args:     []any{uri},
	})
}

func (e *Engine) requireOwner(s domain.NormalizedSlot) error {
	from := e.exec.From()
	if !s.IsOwnedBy(from) {
		return invalid(domain.ErrNotOwner, "%s does not own %s", from.Hex(), s.Address.Hex())
	}
	return nil
}

type outcome struct {
	hash common.Hash
	err  error
}

// run claims the pending slot and settles call in a goroutine that outlives
// ctx. The pending slot is released only when that goroutine finishes.
func (e *Engine) run(ctx context.Context, kind domain.ActionKind, call Call) (common.Hash, error) {
	if ctx.Err() != nil {
		return common.Hash{}, fmt.Errorf("action: %s: %w", kind, domain.ErrAbandoned)
	}
	if err := e.begin(kind); err != nil {
		return common.Hash{}, err
	}

	release := func() {}
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, lockKey(e.exec.From()), e.timeout+30*time.Second)
		if err != nil {
			e.finish()
			if errors.Is(err, domain.ErrLockHeld) {
				return common.Hash{}, fmt.Errorf("action: %s: wallet busy on another instance: %w", kind, domain.ErrActionInProgress)
			}
			return common.Hash{}, fmt.Errorf("action: %s: acquire lock: %w", kind, err)
		}
		release = unlock
	}

	done := make(chan outcome, 1)
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		rec := e.recordStart(sctx, kind, call)
		hash, err := e.settle(ctx, sctx, kind, call)
		e.recordEnd(sctx, rec, hash, err)

		release()
		e.finish()
		if e.onSettled != nil {
			e.onSettled(kind, call.Slot, err)
		}
		done <- outcome{hash: hash, err: err}
	}()

	select {
	case out := <-done:
		return out.hash, out.err
	case <-ctx.Done():
		e.logger.WarnContext(ctx, "caller stopped waiting for action",
			slog.String("kind", string(kind)),
			slog.String("slot", call.Slot.Hex()),
		)
		return common.Hash{}, fmt.Errorf("action: %s: %w", kind, domain.ErrAbandoned)
	}
}

func (e *Engine) begin(kind domain.ActionKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		return fmt.Errorf("action: %s requested while %s is pending: %w", kind, *e.pending, domain.ErrActionInProgress)
	}
	k := kind
	e.pending = &k
	return nil
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
}

// settle simulates under the caller's context and detaches from it only once
// the transaction is handed to the wallet. A caller that stops waiting before
// then never causes a submission.
func (e *Engine) settle(caller, ctx context.Context, kind domain.ActionKind, call Call) (common.Hash, error) {
	fail := func(stage string, hash common.Hash, err error) error {
		return &Error{
			Kind:    kind,
			Slot:    call.Slot,
			Stage:   stage,
			TxHash:  hash,
			Message: NormalizeMessage(err),
			Err:     err,
		}
	}

	simCtx, cancel := context.WithTimeout(caller, e.timeout)
	prepared, err := e.exec.Simulate(simCtx, call)
	cancel()
	if err != nil {
		return common.Hash{}, fail("simulate", common.Hash{}, err)
	}
	if caller.Err() != nil {
		return common.Hash{}, fail("submit", common.Hash{}, domain.ErrAbandoned)
	}
	hash, err := e.exec.Submit(ctx, prepared)
	if err != nil {
		return common.Hash{}, fail("submit", common.Hash{}, err)
	}
	e.logger.InfoContext(ctx, "action submitted",
		slog.String("kind", string(kind)),
		slog.String("slot", call.Slot.Hex()),
		slog.String("tx", hash.Hex()),
	)
	receipt, err := e.exec.AwaitReceipt(ctx, hash)
	if err != nil {
		return hash, fail("confirm", hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, fail("confirm", hash, domain.ErrTransactionReverted)
	}
	return hash, nil
}

func (e *Engine) recordStart(ctx context.Context, kind domain.ActionKind, call Call) domain.ActionRecord {
	now := time.Now().UTC()
	rec := domain.ActionRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Slot:      call.Slot,
		Wallet:    e.exec.From(),
		ValueWei:  weiString(call.Value),
		Status:    domain.ActionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e.actions != nil {
		if err := e.actions.Create(ctx, rec); err != nil {
			e.logger.WarnContext(ctx, "failed to record action",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(ctx, EventActionPending, rec)
	return rec
}

func (e *Engine) recordEnd(ctx context.Context, rec domain.ActionRecord, hash common.Hash, err error) {
	rec.UpdatedAt = time.Now().UTC()
	if hash != (common.Hash{}) {
		rec.TxHash = hash.Hex()
	}
	event := EventActionConfirmed
	rec.Status = domain.ActionConfirmed
	if err != nil {
		event = EventActionFailed
		rec.Status = domain.ActionFailed
		rec.Error = err.Error()
		var ae *Error
		if errors.As(err, &ae) {
			rec.Error = ae.Message
		}
		e.logger.ErrorContext(ctx, "action failed",
			slog.String("id", rec.ID),
			slog.String("kind", string(rec.Kind)),
			slog.String("slot", rec.Slot.Hex()),
			slog.String("error", err.Error()),
		)
	} else {
		e.logger.InfoContext(ctx, "action confirmed",
			slog.String("id", rec.ID),
			slog.String("kind", string(rec.Kind)),
			slog.String("tx", rec.TxHash),
		)
	}

	if e.actions != nil {
		if serr := e.actions.UpdateStatus(ctx, rec.ID, rec.Status, rec.TxHash, rec.Error); serr != nil {
			e.logger.WarnContext(ctx, "failed to update action record",
				slog.String("id", rec.ID),
				slog.String("error", serr.Error()),
			)
		}
	}
	e.publish(ctx, event, rec)

	if e.notifier != nil {
		title := fmt.Sprintf("%s confirmed", rec.Kind)
		msg := fmt.Sprintf("slot %s\ntx %s", rec.Slot.Hex(), rec.TxHash)
		if err != nil {
			title = fmt.Sprintf("%s failed", rec.Kind)
			msg = fmt.Sprintf("slot %s\n%s", rec.Slot.Hex(), rec.Error)
		}
		if nerr := e.notifier.Notify(ctx, event, title, msg); nerr != nil {
			e.logger.WarnContext(ctx, "failed to send notification",
				slog.String("event", event),
				slog.String("error", nerr.Error()),
			)
		}
	}
}

func (e *Engine) publish(ctx context.Context, event string, rec domain.ActionRecord) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.ActionEvent{Event: event, Record: rec})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelActions, payload); err != nil {
		e.logger.WarnContext(ctx, "failed to publish action event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func lockKey(wallet common.Address) string {
	return "action:" + wallet.Hex()
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
