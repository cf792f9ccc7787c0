package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

// DefaultReadConcurrency caps in-flight slotState calls per batch.
const DefaultReadConcurrency = 8

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader fetches raw slot state.
type Reader struct {
	caller      Caller
	concurrency int
	logger      *slog.Logger
}

// NewReader creates a Reader. A concurrency below one selects
// DefaultReadConcurrency.
func NewReader(caller Caller, concurrency int, logger *slog.Logger) *Reader {
	if concurrency < 1 {
		concurrency = DefaultReadConcurrency
	}
	return &Reader{
		caller:      caller,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "chain_reader")),
	}
}

// ReadSlot calls slotState on one slot contract.
func (r *Reader) ReadSlot(ctx context.Context, ref domain.SlotRef) (domain.RawSlot, error) {
	contract, err := ABIFor(ref.Type)
	if err != nil {
		return domain.RawSlot{}, err
	}
	data, err := contract.Pack(MethodSlotState)
	if err != nil {
		return domain.RawSlot{}, fmt.Errorf("chain: pack slotState: %w", err)
	}
	to := ref.Address
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return domain.RawSlot{}, fmt.Errorf("chain: read %s: %w", ref.Address.Hex(), err)
	}

	raw := domain.RawSlot{Ref: ref}
	switch ref.Type {
	case domain.SlotTypeEnabled:
		var s domain.RawEnabledSlot
		if err := contract.UnpackIntoInterface(&s, MethodSlotState, out); err != nil {
			return domain.RawSlot{}, fmt.Errorf("chain: decode %s: %w", ref.Address.Hex(), err)
		}
		raw.Enabled = &s
	case domain.SlotTypeShielded:
		var s domain.RawShieldedSlot
		if err := contract.UnpackIntoInterface(&s, MethodSlotState, out); err != nil {
			return domain.RawSlot{}, fmt.Errorf("chain: decode %s: %w", ref.Address.Hex(), err)
		}
		raw.Shielded = &s
	}
	return raw, nil
}

// ReadSlots reads every ref concurrently and returns results in ref order.
// Any single failure fails the batch.
func (r *Reader) ReadSlots(ctx context.Context, refs []domain.SlotRef) ([]domain.RawSlot, error) {
	start := time.Now()
	out := make([]domain.RawSlot, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			raw, err := r.ReadSlot(gctx, ref)
			if err != nil {
				return err
			}
			out[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "slots read",
		slog.Int("count", len(refs)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
