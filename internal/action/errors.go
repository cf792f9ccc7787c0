package action

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

const maxMessageLen = 200

// Error is a wallet or RPC failure of a submitted action.
type Error struct {
	Kind   domain.ActionKind
	Slot   common.Address
	Stage  string
	TxHash common.Hash
	// Message is the short human-readable form of Err.
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("action: %s %s (tx %s): %s", e.Kind, e.Stage, e.TxHash.Hex(), e.Message)
	}
	return fmt.Sprintf("action: %s %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

type shortMessager interface {
	ShortMessage() string
}

// userRejectedCode is the EIP-1193 code wallets return when a signature
// request is declined.
const userRejectedCode = 4001

// NormalizeMessage reduces a wallet or RPC error to one short line.
func NormalizeMessage(err error) string {
	if err == nil {
		return ""
	}

	var sm shortMessager
	if errors.As(err, &sm) {
		if msg := strings.TrimSpace(sm.ShortMessage()); msg != "" {
			return truncate(msg)
		}
	}

	if errors.Is(err, domain.ErrTransactionReverted) {
		return "transaction reverted"
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if reason, ok := revertReason(de.ErrorData()); ok {
			return truncate("execution reverted: " + reason)
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		return truncate(firstLine(msg[i:]))
	}

	var ce rpc.Error
	if errors.As(err, &ce) && ce.ErrorCode() == userRejectedCode {
		return "transaction rejected by user"
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "user rejected") || strings.Contains(lower, "user denied") {
		return "transaction rejected by user"
	}

	return truncate(firstLine(msg))
}

func revertReason(data any) (string, bool) {
	s, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// truncate caps s at maxMessageLen runes.
func truncate(s string) string {
	if r := []rune(s); len(r) > maxMessageLen {
		return string(r[:maxMessageLen-3]) + "..."
	}
	return s
}
