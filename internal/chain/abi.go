// Package chain connects the engine to an Ethereum JSON-RPC node: it batches
// slot state reads and implements action.Executor with a local signing key.
package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

const writeMethodsJSON = `
  {"type":"function","name":"claim","stateMutability":"payable","inputs":[
    {"name":"valuation","type":"uint256"},{"name":"taxPeriods","type":"uint256"},{"name":"adURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"takeover","stateMutability":"payable","inputs":[
    {"name":"newValuation","type":"uint256"},{"name":"taxPeriods","type":"uint256"},{"name":"adURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"renew","stateMutability":"payable","inputs":[
    {"name":"taxPeriods","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"forfeit","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"poke","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"updateCreative","stateMutability":"nonpayable","inputs":[
    {"name":"adURI","type":"string"}],"outputs":[]}`

// EnabledSlotABI is the interface of the enabled slot contract.
const EnabledSlotABI = `[
  {"type":"function","name":"slotState","stateMutability":"view","inputs":[],"outputs":[
    {"name":"owner","type":"address"},
    {"name":"valuation","type":"uint256"},
    {"name":"lockedValue","type":"uint256"},
    {"name":"minValuation","type":"uint256"},
    {"name":"bondRate","type":"uint256"},
    {"name":"annualTaxRate","type":"uint256"},
    {"name":"minBidIncrement","type":"uint256"},
    {"name":"taxPeriod","type":"uint256"},
    {"name":"taxPaidUntil","type":"uint256"},
    {"name":"prepaidTaxBalance","type":"uint256"},
    {"name":"timeRemaining","type":"uint256"},
    {"name":"baseValuation","type":"uint256"},
    {"name":"dustRate","type":"uint256"},
    {"name":"currentAdURI","type":"string"},
    {"name":"contentUpdateCount","type":"uint256"},
    {"name":"contentUpdateLimit","type":"uint256"}]},` + writeMethodsJSON + `
]`

// ShieldedSlotABI is the interface of the shielded slot contract.
const ShieldedSlotABI = `[
  {"type":"function","name":"slotState","stateMutability":"view","inputs":[],"outputs":[
    {"name":"owner","type":"address"},
    {"name":"valuation","type":"uint256"},
    {"name":"lockedValue","type":"uint256"},
    {"name":"minValuation","type":"uint256"},
    {"name":"bondRate","type":"uint256"},
    {"name":"annualTaxRate","type":"uint256"},
    {"name":"minBidIncrement","type":"uint256"},
    {"name":"taxPeriod","type":"uint256"},
    {"name":"taxPaidUntil","type":"uint256"},
    {"name":"prepaidTaxBalance","type":"uint256"},
    {"name":"timeRemaining","type":"uint256"},
    {"name":"isOccupied","type":"bool"},
    {"name":"isExpired","type":"bool"},
    {"name":"currentAdURI","type":"string"},
    {"name":"contentUpdateCount","type":"uint256"},
    {"name":"contentUpdateLimit","type":"uint256"}]},` + writeMethodsJSON + `
]`

// MethodSlotState is the view returning a slot's full state.
const MethodSlotState = "slotState"

var (
	abiOnce     sync.Once
	enabledABI  abi.ABI
	shieldedABI abi.ABI
	abiErr      error
)

func parseABIs() {
	enabledABI, abiErr = abi.JSON(strings.NewReader(EnabledSlotABI))
	if abiErr != nil {
		abiErr = fmt.Errorf("chain: parse enabled abi: %w", abiErr)
		return
	}
	shieldedABI, abiErr = abi.JSON(strings.NewReader(ShieldedSlotABI))
	if abiErr != nil {
		abiErr = fmt.Errorf("chain: parse shielded abi: %w", abiErr)
	}
}

// ABIFor returns the parsed contract interface of a slot type.
func ABIFor(t domain.SlotType) (*abi.ABI, error) {
	abiOnce.Do(parseABIs)
	if abiErr != nil {
		return nil, abiErr
	}
	switch t {
	case domain.SlotTypeEnabled:
		return &enabledABI, nil
	case domain.SlotTypeShielded:
		return &shieldedABI, nil
	default:
		return nil, fmt.Errorf("chain: unknown slot type %q", t)
	}
}
