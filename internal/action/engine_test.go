package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	wallet   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	slotAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	txHash   = common.HexToHash("0xabc1")
)

// fakeExecutor records every call and can block in AwaitReceipt until
// release is closed.
type fakeExecutor struct {
	mu        sync.Mutex
	simulated []Call
	submitted int
	awaited   int

	simErr    error
	submitErr error
	awaitErr  error
	status    uint64
	release   chan struct{}
	started   chan struct{}
	// onSimulate runs after a simulation is recorded, outside the lock.
	onSimulate func()
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{status: types.ReceiptStatusSuccessful}
}

func (f *fakeExecutor) From() common.Address { return wallet }

func (f *fakeExecutor) Simulate(_ context.Context, call Call) (Prepared, error) {
	f.mu.Lock()
	f.simulated = append(f.simulated, call)
	simErr, hook := f.simErr, f.onSimulate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if simErr != nil {
		return Prepared{}, simErr
	}
	return Prepared{Call: call, Gas: 100_000}, nil
}

func (f *fakeExecutor) Submit(context.Context, Prepared) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return txHash, nil
}

func (f *fakeExecutor) AwaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	f.awaited++
	release, started := f.release, f.started
	f.started = nil
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.awaitErr != nil {
		return nil, f.awaitErr
	}
	return &types.Receipt{Status: f.status, TxHash: hash}, nil
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.simulated) + f.submitted + f.awaited
}

func (f *fakeExecutor) lastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.simulated[len(f.simulated)-1]
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	msgs   []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.msgs = append(n.msgs, message)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.ActionRecord
}

func (s *fakeStore) Create(_ context.Context, rec domain.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[string]domain.ActionRecord)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, status domain.ActionStatus, txHash, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status, rec.TxHash, rec.Error = status, txHash, errMsg
	s.records[id] = rec
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (domain.ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ActionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) ListRecent(context.Context, int) ([]domain.ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ActionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if channel == domain.ChannelActions {
		b.payloads = append(b.payloads, payload)
	}
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vacant() domain.NormalizedSlot {
	return domain.NormalizedSlot{
		Address:              slotAddr,
		Type:                 domain.SlotTypeEnabled,
		ValuationWei:         big.NewInt(0),
		LockedValueWei:       big.NewInt(0),
		MinValuationWei:      big.NewInt(1_000_000),
		PrepaidTaxBalanceWei: big.NewInt(0),
		BaseValuationWei:     big.NewInt(0),
		BondRateBps:          500,
		AnnualTaxRateBps:     1_000,
		MinBidIncrementBps:   1_000,
		TaxPeriodSeconds:     604_800,
	}
}

func ownedBy(owner common.Address) domain.NormalizedSlot {
	s := vacant()
	s.Owner = &owner
	s.ValuationWei = big.NewInt(1_000_000)
	s.LockedValueWei = big.NewInt(50_000)
	return s
}

func TestClaimScenario(t *testing.T) {
	exec := newFakeExecutor()
	eng := NewEngine(exec, Options{}, testLogger())

	hash, err := eng.Claim(context.Background(), vacant(), ClaimRequest{
		Valuation:  big.NewInt(1_000_000),
		TaxPeriods: 1,
		AdURI:      "ipfs://ipfs/QmHash",
	})
	require.NoError(t, err)
	assert.Equal(t, txHash, hash)

	call := exec.lastCall()
	assert.Equal(t, MethodClaim, call.Method)
	assert.Equal(t, "51917", call.Value.String())
	require.Len(t, call.Args, 3)
	assert.Equal(t, "1000000", call.Args[0].(*big.Int).String())
	assert.Equal(t, "1", call.Args[1].(*big.Int).String())
	assert.Equal(t, "ipfs://QmHash", call.Args[2])

	_, pending := eng.Pending()
	assert.False(t, pending)
}

func TestValidationNeverReachesExecutor(t *testing.T) {
	tests := []struct {
		name   string
		run    func(*Engine) error
		reason error
	}{
		{
			name: "claim below minimum",
			run: func(e *Engine) error {
				_, err := e.Claim(context.Background(), vacant(), ClaimRequest{Valuation: big.NewInt(999_999), TaxPeriods: 1})
				return err
			},
			reason: domain.ErrBelowMinimum,
		},
		{
			name: "claim occupied",
			run: func(e *Engine) error {
				_, err := e.Claim(context.Background(), ownedBy(stranger), ClaimRequest{Valuation: big.NewInt(2_000_000), TaxPeriods: 1})
				return err
			},
			reason: domain.ErrSlotOccupied,
		},
		{
			name: "claim zero periods",
			run: func(e *Engine) error {
				_, err := e.Claim(context.Background(), vacant(), ClaimRequest{Valuation: big.NewInt(1_000_000)})
				return err
			},
			reason: domain.ErrInvalidPeriods,
		},
		{
			name: "claim bad uri",
			run: func(e *Engine) error {
				_, err := e.Claim(context.Background(), vacant(), ClaimRequest{Valuation: big.NewInt(1_000_000), TaxPeriods: 1, AdURI: "ftp://x"})
				return err
			},
			reason: domain.ErrInvalidURI,
		},
		{
			name: "takeover below increment",
			run: func(e *Engine) error {
				_, err := e.Takeover(context.Background(), ownedBy(stranger), TakeoverRequest{NewValuation: big.NewInt(1_050_000), TaxPeriods: 1})
				return err
			},
			reason: domain.ErrBelowMinimum,
		},
		{
			name: "renew by non-owner",
			run: func(e *Engine) error {
				_, err := e.Renew(context.Background(), ownedBy(stranger), 1)
				return err
			},
			reason: domain.ErrNotOwner,
		},
		{
			name: "renew zero periods",
			run: func(e *Engine) error {
				_, err := e.Renew(context.Background(), ownedBy(wallet), 0)
				return err
			},
			reason: domain.ErrInvalidPeriods,
		},
		{
			name: "forfeit by non-owner",
			run: func(e *Engine) error {
				_, err := e.Forfeit(context.Background(), ownedBy(stranger))
				return err
			},
			reason: domain.ErrNotOwner,
		},
		{
			name: "update creative by non-owner",
			run: func(e *Engine) error {
				_, err := e.UpdateCreative(context.Background(), ownedBy(stranger), "https://x")
				return err
			},
			reason: domain.ErrNotOwner,
		},
		{
			name: "zero value claim",
			run: func(e *Engine) error {
				s := vacant()
				s.BondRateBps, s.AnnualTaxRateBps = 0, 0
				_, err := e.Claim(context.Background(), s, ClaimRequest{Valuation: big.NewInt(1_000_000), TaxPeriods: 1})
				return err
			},
			reason: domain.ErrZeroValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			err := tt.run(NewEngine(exec, Options{}, testLogger()))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.ErrorIs(t, err, tt.reason)
			assert.Zero(t, exec.calls(), "executor must not be touched")
		})
	}
}

func TestTakeoverAtMinimumBid(t *testing.T) {
	exec := newFakeExecutor()
	eng := NewEngine(exec, Options{}, testLogger())

	_, err := eng.Takeover(context.Background(), ownedBy(stranger), TakeoverRequest{NewValuation: big.NewInt(1_100_000), TaxPeriods: 2})
	require.NoError(t, err)

	call := exec.lastCall()
	assert.Equal(t, MethodTakeover, call.Method)
	// bond 55_000 + tax 1_100_000 * 1000 * 604800 * 2 / 315360000000 = 4_219
	assert.Equal(t, "59219", call.Value.String())
}

func TestRenew(t *testing.T) {
	exec := newFakeExecutor()
	eng := NewEngine(exec, Options{}, testLogger())

	_, err := eng.Renew(context.Background(), ownedBy(wallet), 1)
	require.NoError(t, err)
	assert.Equal(t, "1917", exec.lastCall().Value.String())

	// a zero valuation falls back to the minimum valuation
	s := ownedBy(wallet)
	s.ValuationWei = big.NewInt(0)
	s.MinValuationWei = big.NewInt(2_000_000)
	_, err = eng.Renew(context.Background(), s, 1)
	require.NoError(t, err)
	assert.Equal(t, "3835", exec.lastCall().Value.String())
}

func TestNonPayableActions(t *testing.T) {
	exec := newFakeExecutor()
	eng := NewEngine(exec, Options{}, testLogger())
	ctx := context.Background()

	_, err := eng.Forfeit(ctx, ownedBy(wallet))
	require.NoError(t, err)
	assert.Equal(t, MethodForfeit, exec.lastCall().Method)
	assert.Nil(t, exec.lastCall().Value)

	_, err = eng.Poke(ctx, ownedBy(stranger))
	require.NoError(t, err)
	assert.Equal(t, MethodPoke, exec.lastCall().Method)

	_, err = eng.UpdateCreative(ctx, ownedBy(wallet), "0xDEAD")
	require.NoError(t, err)
	assert.Equal(t, MethodUpdateCreative, exec.lastCall().Method)
	assert.Equal(t, []any{"0xdead"}, exec.lastCall().Args)
}

func TestSecondActionRejectedWhilePending(t *testing.T) {
	exec := newFakeExecutor()
	exec.release = make(chan struct{})
	exec.started = make(chan struct{})
	eng := NewEngine(exec, Options{}, testLogger())

	errCh := make(chan error, 1)
	go func() {
		_, err := eng.Poke(context.Background(), ownedBy(stranger))
		errCh <- err
	}()
	<-exec.started

	kind, pending := eng.Pending()
	require.True(t, pending)
	assert.Equal(t, domain.ActionPoke, kind)

	// a different slot is still rejected: serialization is engine-wide
	other := ownedBy(wallet)
	other.Address = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	_, err := eng.Forfeit(context.Background(), other)
	require.ErrorIs(t, err, domain.ErrActionInProgress)

	close(exec.release)
	require.NoError(t, <-errCh)

	_, pending = eng.Pending()
	assert.False(t, pending)

	_, err = eng.Forfeit(context.Background(), other)
	require.NoError(t, err)
}

func TestAbandonedCallerStillClearsPending(t *testing.T) {
	exec := newFakeExecutor()
	exec.release = make(chan struct{})
	exec.started = make(chan struct{})
	var settled sync.WaitGroup
	settled.Add(1)
	eng := NewEngine(exec, Options{
		OnSettled: func(domain.ActionKind, common.Address, error) { settled.Done() },
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := eng.Poke(ctx, ownedBy(stranger))
		errCh <- err
	}()
	<-exec.started
	cancel()

	require.ErrorIs(t, <-errCh, domain.ErrAbandoned)
	_, pending := eng.Pending()
	assert.True(t, pending, "pending holds until the sequence resolves")

	close(exec.release)
	settled.Wait()
	_, pending = eng.Pending()
	assert.False(t, pending)
}

func TestCancelledCallerNeverSubmits(t *testing.T) {
	exec := newFakeExecutor()
	eng := NewEngine(exec, Options{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Claim(ctx, vacant(), ClaimRequest{
		Valuation:  big.NewInt(1_000_000),
		TaxPeriods: 1,
		AdURI:      "ipfs://QmHash",
	})
	require.ErrorIs(t, err, domain.ErrAbandoned)
	for range 50 {
		_, err = eng.Poke(ctx, ownedBy(stranger))
		require.ErrorIs(t, err, domain.ErrAbandoned)
	}

	exec.mu.Lock()
	assert.Zero(t, exec.submitted)
	assert.Empty(t, exec.simulated)
	exec.mu.Unlock()
	_, pending := eng.Pending()
	assert.False(t, pending)

	_, err = eng.Poke(context.Background(), ownedBy(stranger))
	require.NoError(t, err)
}

func TestCallerCancelledDuringSimulationNeverSubmits(t *testing.T) {
	exec := newFakeExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	exec.onSimulate = cancel

	settled := make(chan error, 1)
	eng := NewEngine(exec, Options{
		OnSettled: func(_ domain.ActionKind, _ common.Address, err error) { settled <- err },
	}, testLogger())

	_, err := eng.Poke(ctx, ownedBy(stranger))
	require.ErrorIs(t, err, domain.ErrAbandoned)

	settleErr := <-settled
	var ae *Error
	require.ErrorAs(t, settleErr, &ae)
	assert.Equal(t, "submit", ae.Stage)
	assert.ErrorIs(t, settleErr, domain.ErrAbandoned)

	exec.mu.Lock()
	assert.Zero(t, exec.submitted)
	assert.Zero(t, exec.awaited)
	exec.mu.Unlock()
	_, pending := eng.Pending()
	assert.False(t, pending)
}

func TestTimeoutClearsPending(t *testing.T) {
	exec := newFakeExecutor()
	exec.release = make(chan struct{})
	defer close(exec.release)
	eng := NewEngine(exec, Options{Timeout: 50 * time.Millisecond}, testLogger())

	_, err := eng.Poke(context.Background(), ownedBy(stranger))
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, txHash, ae.TxHash)

	_, pending := eng.Pending()
	assert.False(t, pending)
}

func TestWalletFailureIsNormalizedAndNotified(t *testing.T) {
	exec := newFakeExecutor()
	exec.simErr = errors.New("call failed: execution reverted: slot occupied\nat block 123")
	notifier := &fakeNotifier{}
	store := &fakeStore{}
	bus := &fakeBus{}
	eng := NewEngine(exec, Options{Notifier: notifier, Actions: store, Bus: bus}, testLogger())

	_, err := eng.Poke(context.Background(), ownedBy(stranger))
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "execution reverted: slot occupied", ae.Message)
	assert.Equal(t, "simulate", ae.Stage)
	assert.Equal(t, domain.ActionPoke, ae.Kind)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, []string{EventActionFailed}, notifier.events)
	assert.Contains(t, notifier.msgs[0], "execution reverted: slot occupied")

	recs, _ := store.ListRecent(context.Background(), 10)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ActionFailed, recs[0].Status)
	assert.Equal(t, "execution reverted: slot occupied", recs[0].Error)

	require.Len(t, bus.payloads, 2)
	var last domain.ActionEvent
	require.NoError(t, json.Unmarshal(bus.payloads[1], &last))
	assert.Equal(t, EventActionFailed, last.Event)

	// failures are not retried
	assert.Equal(t, 1, exec.calls())
}

func TestRevertedReceipt(t *testing.T) {
	exec := newFakeExecutor()
	exec.status = types.ReceiptStatusFailed
	store := &fakeStore{}
	eng := NewEngine(exec, Options{Actions: store}, testLogger())

	hash, err := eng.Poke(context.Background(), ownedBy(stranger))
	require.ErrorIs(t, err, domain.ErrTransactionReverted)
	assert.Equal(t, txHash, hash)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "transaction reverted", ae.Message)

	recs, _ := store.ListRecent(context.Background(), 10)
	require.Len(t, recs, 1)
	assert.Equal(t, txHash.Hex(), recs[0].TxHash)
}

func TestConfirmedActionIsRecorded(t *testing.T) {
	exec := newFakeExecutor()
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	eng := NewEngine(exec, Options{Actions: store, Notifier: notifier}, testLogger())

	_, err := eng.Renew(context.Background(), ownedBy(wallet), 1)
	require.NoError(t, err)

	recs, _ := store.ListRecent(context.Background(), 10)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ActionConfirmed, recs[0].Status)
	assert.Equal(t, domain.ActionRenew, recs[0].Kind)
	assert.Equal(t, "1917", recs[0].ValueWei)
	assert.Equal(t, wallet, recs[0].Wallet)
	assert.Equal(t, []string{EventActionConfirmed}, notifier.events)
}

func TestDistributedLockHeld(t *testing.T) {
	exec := newFakeExecutor()
	eng := NewEngine(exec, Options{Locks: heldLocks{}}, testLogger())

	_, err := eng.Poke(context.Background(), ownedBy(stranger))
	require.ErrorIs(t, err, domain.ErrActionInProgress)
	assert.Zero(t, exec.calls())

	_, pending := eng.Pending()
	assert.False(t, pending)
}
