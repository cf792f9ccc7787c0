package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SlotType tags which contract family a slot was deployed from.
type SlotType string

const (
	// SlotTypeEnabled is the rate-limited slot contract with a dust threshold.
	SlotTypeEnabled SlotType = "enabled"
	// SlotTypeShielded is the slot contract with a hard expiry flag.
	SlotTypeShielded SlotType = "shielded"
)

// Valid reports whether t is a known slot type.
func (t SlotType) Valid() bool {
	return t == SlotTypeEnabled || t == SlotTypeShielded
}

// SlotMetadata is the off-chain placement description of a slot, supplied by
// the registry and keyed by contract address.
type SlotMetadata struct {
	Name     string `json:"name"`
	Page     string `json:"page"`
	Position string `json:"position"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// SlotRef identifies a slot contract to read.
type SlotRef struct {
	Address common.Address
	Type    SlotType
	// Index is the 1-based position of the slot among slots of the same type.
	Index int
}

// RawEnabledSlot is the contract-read result of an enabled slot. Any field may
// be nil when the node returned nothing for it.
type RawEnabledSlot struct {
	Owner              common.Address
	Valuation          *big.Int
	LockedValue        *big.Int
	MinValuation       *big.Int
	BondRate           *big.Int
	AnnualTaxRate      *big.Int
	MinBidIncrement    *big.Int
	TaxPeriod          *big.Int
	TaxPaidUntil       *big.Int
	PrepaidTaxBalance  *big.Int
	TimeRemaining      *big.Int
	BaseValuation      *big.Int
	DustRate           *big.Int
	CurrentAdURI       string
	ContentUpdateCount *big.Int
	ContentUpdateLimit *big.Int
}

// RawShieldedSlot is the contract-read result of a shielded slot.
type RawShieldedSlot struct {
	Owner              common.Address
	Valuation          *big.Int
	LockedValue        *big.Int
	MinValuation       *big.Int
	BondRate           *big.Int
	AnnualTaxRate      *big.Int
	MinBidIncrement    *big.Int
	TaxPeriod          *big.Int
	TaxPaidUntil       *big.Int
	PrepaidTaxBalance  *big.Int
	TimeRemaining      *big.Int
	IsOccupied         bool
	IsExpired          bool
	CurrentAdURI       string
	ContentUpdateCount *big.Int
	ContentUpdateLimit *big.Int
}

// RawSlot carries exactly one of the two raw shapes together with its ref.
type RawSlot struct {
	Ref      SlotRef
	Enabled  *RawEnabledSlot
	Shielded *RawShieldedSlot
}

// NormalizedSlot is the unified in-memory view of either slot type. Fields
// that only exist on one contract family are zero for the other.
type NormalizedSlot struct {
	Address common.Address `json:"address"`
	Type    SlotType       `json:"type"`
	Index   int            `json:"index"`

	// Owner is nil when the slot is vacant.
	Owner *common.Address `json:"owner,omitempty"`

	ValuationWei         *big.Int `json:"valuation_wei"`
	LockedValueWei       *big.Int `json:"locked_value_wei"`
	MinValuationWei      *big.Int `json:"min_valuation_wei"`
	PrepaidTaxBalanceWei *big.Int `json:"prepaid_tax_balance_wei"`

	BondRateBps        uint64 `json:"bond_rate_bps"`
	AnnualTaxRateBps   uint64 `json:"annual_tax_rate_bps"`
	MinBidIncrementBps uint64 `json:"min_bid_increment_bps"`

	TaxPeriodSeconds     uint64 `json:"tax_period_seconds"`
	TaxPaidUntil         uint64 `json:"tax_paid_until"`
	TimeRemainingSeconds uint64 `json:"time_remaining_seconds"`

	// IsExpired is only ever set on shielded slots.
	IsExpired bool `json:"is_expired"`

	// BaseValuationWei and DustRateBps are only set on enabled slots.
	BaseValuationWei *big.Int `json:"base_valuation_wei"`
	DustRateBps      uint64   `json:"dust_rate_bps"`

	CurrentAdURI       string `json:"current_ad_uri"`
	ContentUpdateCount uint64 `json:"content_update_count"`
	ContentUpdateLimit uint64 `json:"content_update_limit"`

	Metadata SlotMetadata `json:"metadata"`
}

// IsOccupied reports whether an owner is recorded on the slot.
func (s NormalizedSlot) IsOccupied() bool {
	return s.Owner != nil
}

// IsEffectivelyVacant reports whether the slot can be claimed: it has no owner,
// or it is a shielded slot whose term has expired.
func (s NormalizedSlot) IsEffectivelyVacant() bool {
	return s.Owner == nil || (s.Type == SlotTypeShielded && s.IsExpired)
}

// IsOwnedBy reports whether addr is the recorded owner.
func (s NormalizedSlot) IsOwnedBy(addr common.Address) bool {
	return s.Owner != nil && *s.Owner == addr
}

// DustThresholdWei returns base * dustRate / 10000 for enabled slots with both
// inputs configured, or nil when no threshold applies.
func (s NormalizedSlot) DustThresholdWei() *big.Int {
	if s.Type != SlotTypeEnabled || s.DustRateBps == 0 || s.BaseValuationWei == nil || s.BaseValuationWei.Sign() <= 0 {
		return nil
	}
	t := new(big.Int).Mul(s.BaseValuationWei, new(big.Int).SetUint64(s.DustRateBps))
	return t.Quo(t, big.NewInt(10_000))
}

// ContentUpdatesRemaining returns how many creative changes the owner may still
// make, or zero when the limit is reached.
func (s NormalizedSlot) ContentUpdatesRemaining() uint64 {
	if s.ContentUpdateCount >= s.ContentUpdateLimit {
		return 0
	}
	return s.ContentUpdateLimit - s.ContentUpdateCount
}
