package action

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

type shortErr struct{ short string }

func (e shortErr) Error() string        { return "long and noisy\ndetails follow" }
func (e shortErr) ShortMessage() string { return e.short }

type dataErr struct{ data any }

func (e dataErr) Error() string  { return "execution reverted" }
func (e dataErr) ErrorData() any { return e.data }

type codeErr struct{ code int }

func (e codeErr) Error() string  { return "request failed" }
func (e codeErr) ErrorCode() int { return e.code }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	strT, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strT}}.Pack(reason)
	require.NoError(t, err)
	return "0x08c379a0" + hex.EncodeToString(packed)
}

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "short message", err: fmt.Errorf("wrap: %w", shortErr{short: "insufficient funds"}), want: "insufficient funds"},
		{name: "revert data", err: dataErr{data: revertData(t, "not owner")}, want: "execution reverted: not owner"},
		{name: "undecodable revert data", err: dataErr{data: "0x1234"}, want: "execution reverted"},
		{name: "revert in text", err: errors.New("estimate gas: execution reverted: BelowMinimum\ntrace"), want: "execution reverted: BelowMinimum"},
		{name: "rejected code", err: codeErr{code: 4001}, want: "transaction rejected by user"},
		{name: "rejected text", err: errors.New("MetaMask: User rejected the request."), want: "transaction rejected by user"},
		{name: "receipt status", err: domain.ErrTransactionReverted, want: "transaction reverted"},
		{name: "first line", err: errors.New("dial tcp: connection refused\nretrying"), want: "dial tcp: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMessage(tt.err))
		})
	}
}

func TestNormalizeMessageTruncates(t *testing.T) {
	msg := NormalizeMessage(errors.New(strings.Repeat("x", 500)))
	assert.Len(t, msg, maxMessageLen)
	assert.True(t, strings.HasSuffix(msg, "..."))
}

func TestNormalizeMessageTruncatesOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes put the cut inside a two-byte rune
	msg := NormalizeMessage(errors.New(strings.Repeat("x", 199) + strings.Repeat("é", 100)))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, maxMessageLen, utf8.RuneCountInString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))

	short := strings.Repeat("é", maxMessageLen)
	assert.Equal(t, short, NormalizeMessage(errors.New(short)))
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: domain.ActionClaim, Stage: "submit", Message: "nonce too low", Err: errors.New("nonce too low")}
	assert.Equal(t, "action: claim submit: nonce too low", err.Error())
	assert.Equal(t, "nonce too low", errors.Unwrap(err).Error())
}
