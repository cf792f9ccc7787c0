package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/slotengine/internal/action"
)

// Backend is the subset of the JSON-RPC API the wallet needs.
// *ethclient.Client satisfies it.
type Backend interface {
	Caller
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return c, nil
}

// WalletConfig tunes transaction construction.
type WalletConfig struct {
	// ChainID is fetched from the node when nil.
	ChainID *big.Int
	// GasHeadroomPct is added on top of the node's gas estimate.
	GasHeadroomPct uint64
	// ReceiptPollInterval defaults to two seconds.
	ReceiptPollInterval time.Duration
}

// Wallet signs and sends slot transactions from a single key. It implements
// action.Executor.
type Wallet struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	from     common.Address
	headroom uint64
	poll     time.Duration
	logger   *slog.Logger

	mu      sync.Mutex // serializes nonce assignment
	chainID *big.Int
}

var _ action.Executor = (*Wallet)(nil)

// NewWallet creates a Wallet for key.
func NewWallet(backend Backend, key *ecdsa.PrivateKey, cfg WalletConfig, logger *slog.Logger) *Wallet {
	poll := cfg.ReceiptPollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	w := &Wallet{
		backend:  backend,
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		headroom: cfg.GasHeadroomPct,
		poll:     poll,
		logger:   logger.With(slog.String("component", "wallet")),
	}
	if cfg.ChainID != nil {
		w.chainID = new(big.Int).Set(cfg.ChainID)
	}
	return w
}

// From returns the sending address.
func (w *Wallet) From() common.Address { return w.from }

// Simulate packs call, runs it against the latest state, and estimates gas.
// A reverting call returns the node's error unchanged under the wrap so its
// revert data stays inspectable.
func (w *Wallet) Simulate(ctx context.Context, call action.Call) (action.Prepared, error) {
	contract, err := ABIFor(call.SlotType)
	if err != nil {
		return action.Prepared{}, err
	}
	data, err := contract.Pack(call.Method, call.Args...)
	if err != nil {
		return action.Prepared{}, fmt.Errorf("chain: pack %s: %w", call.Method, err)
	}
	to := call.Slot
	msg := ethereum.CallMsg{From: w.from, To: &to, Value: call.Value, Data: data}

	if _, err := w.backend.CallContract(ctx, msg, nil); err != nil {
		return action.Prepared{}, fmt.Errorf("chain: simulate %s: %w", call.Method, err)
	}
	gas, err := w.backend.EstimateGas(ctx, msg)
	if err != nil {
		return action.Prepared{}, fmt.Errorf("chain: estimate gas for %s: %w", call.Method, err)
	}
	gas += gas * w.headroom / 100

	return action.Prepared{Call: call, Data: data, Gas: gas}, nil
}

// Submit signs an EIP-1559 transaction for p and broadcasts it.
func (w *Wallet) Submit(ctx context.Context, p action.Prepared) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chainID, err := w.ensureChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := w.backend.PendingNonceAt(ctx, w.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pending nonce: %w", err)
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest tip: %w", err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	value := new(big.Int)
	if p.Call.Value != nil {
		value.Set(p.Call.Value)
	}
	to := p.Call.Slot
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       p.Gas,
		To:        &to,
		Value:     value,
		Data:      p.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send: %w", err)
	}

	w.logger.InfoContext(ctx, "transaction sent",
		slog.String("method", p.Call.Method),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", p.Gas),
	)
	return signed.Hash(), nil
}

// AwaitReceipt polls until the receipt is available or ctx ends. Transient
// RPC errors are retried on the next tick.
func (w *Wallet) AwaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		default:
			lastErr = err
			w.logger.WarnContext(ctx, "receipt poll failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("chain: await %s: %w (last error: %v)", hash.Hex(), ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("chain: await %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (w *Wallet) ensureChainID(ctx context.Context) (*big.Int, error) {
	if w.chainID != nil {
		return w.chainID, nil
	}
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	w.chainID = id
	return id, nil
}

// Ping checks the node is reachable, caching its chain id.
func (w *Wallet) Ping(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.ensureChainID(ctx)
	return err
}
