// Package slot converts raw contract reads into domain.NormalizedSlot values.
package slot

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

// MetadataLookup resolves off-chain placement data for a slot address.
type MetadataLookup interface {
	Lookup(addr common.Address) (domain.SlotMetadata, bool)
}

// MetadataMap is a MetadataLookup backed by a plain map.
type MetadataMap map[common.Address]domain.SlotMetadata

// Lookup implements MetadataLookup.
func (m MetadataMap) Lookup(addr common.Address) (domain.SlotMetadata, bool) {
	md, ok := m[addr]
	return md, ok
}

// PlaceholderName returns the generated display name for a slot without
// registry metadata.
func PlaceholderName(t domain.SlotType, index int) string {
	if t == domain.SlotTypeShielded {
		return fmt.Sprintf("Shielded Slot #%d", index)
	}
	return fmt.Sprintf("Slot #%d", index)
}

// Normalize dispatches on whichever raw shape is present. A RawSlot with
// neither shape yields a vacant slot of the ref's type.
func Normalize(raw domain.RawSlot, meta MetadataLookup) domain.NormalizedSlot {
	switch {
	case raw.Enabled != nil:
		return NormalizeEnabled(*raw.Enabled, raw.Ref.Address, raw.Ref.Index, meta)
	case raw.Shielded != nil:
		return NormalizeShielded(*raw.Shielded, raw.Ref.Address, raw.Ref.Index, meta)
	default:
		return base(raw.Ref.Address, raw.Ref.Type, raw.Ref.Index, meta)
	}
}

// NormalizeEnabled converts an enabled-slot read.
func NormalizeEnabled(raw domain.RawEnabledSlot, addr common.Address, index int, meta MetadataLookup) domain.NormalizedSlot {
	s := base(addr, domain.SlotTypeEnabled, index, meta)
	s.Owner = ownerOf(raw.Owner)
	s.ValuationWei = wei(raw.Valuation)
	s.LockedValueWei = wei(raw.LockedValue)
	s.MinValuationWei = wei(raw.MinValuation)
	s.PrepaidTaxBalanceWei = wei(raw.PrepaidTaxBalance)
	s.BondRateBps = u64(raw.BondRate)
	s.AnnualTaxRateBps = u64(raw.AnnualTaxRate)
	s.MinBidIncrementBps = u64(raw.MinBidIncrement)
	s.TaxPeriodSeconds = u64(raw.TaxPeriod)
	s.TaxPaidUntil = u64(raw.TaxPaidUntil)
	s.TimeRemainingSeconds = u64(raw.TimeRemaining)
	s.BaseValuationWei = wei(raw.BaseValuation)
	s.DustRateBps = u64(raw.DustRate)
	s.CurrentAdURI = raw.CurrentAdURI
	s.ContentUpdateCount = u64(raw.ContentUpdateCount)
	s.ContentUpdateLimit = u64(raw.ContentUpdateLimit)
	return s
}

// NormalizeShielded converts a shielded-slot read. The owner is dropped when
// the contract reports the slot unoccupied, even if the field is populated.
func NormalizeShielded(raw domain.RawShieldedSlot, addr common.Address, index int, meta MetadataLookup) domain.NormalizedSlot {
	s := base(addr, domain.SlotTypeShielded, index, meta)
	if raw.IsOccupied {
		s.Owner = ownerOf(raw.Owner)
	}
	s.ValuationWei = wei(raw.Valuation)
	s.LockedValueWei = wei(raw.LockedValue)
	s.MinValuationWei = wei(raw.MinValuation)
	s.PrepaidTaxBalanceWei = wei(raw.PrepaidTaxBalance)
	s.BondRateBps = u64(raw.BondRate)
	s.AnnualTaxRateBps = u64(raw.AnnualTaxRate)
	s.MinBidIncrementBps = u64(raw.MinBidIncrement)
	s.TaxPeriodSeconds = u64(raw.TaxPeriod)
	s.TaxPaidUntil = u64(raw.TaxPaidUntil)
	s.TimeRemainingSeconds = u64(raw.TimeRemaining)
	s.IsExpired = raw.IsExpired
	s.CurrentAdURI = raw.CurrentAdURI
	s.ContentUpdateCount = u64(raw.ContentUpdateCount)
	s.ContentUpdateLimit = u64(raw.ContentUpdateLimit)
	return s
}

func base(addr common.Address, t domain.SlotType, index int, meta MetadataLookup) domain.NormalizedSlot {
	s := domain.NormalizedSlot{
		Address:              addr,
		Type:                 t,
		Index:                index,
		ValuationWei:         new(big.Int),
		LockedValueWei:       new(big.Int),
		MinValuationWei:      new(big.Int),
		PrepaidTaxBalanceWei: new(big.Int),
		BaseValuationWei:     new(big.Int),
	}
	if meta != nil {
		if md, ok := meta.Lookup(addr); ok {
			s.Metadata = md
		}
	}
	if s.Metadata.Name == "" {
		s.Metadata.Name = PlaceholderName(t, index)
	}
	return s
}

func ownerOf(a common.Address) *common.Address {
	if a == (common.Address{}) {
		return nil
	}
	owner := a
	return &owner
}

// wei copies v, mapping nil and negative values to zero.
func wei(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// u64 saturates at MaxUint64.
func u64(v *big.Int) uint64 {
	switch {
	case v == nil || v.Sign() <= 0:
		return 0
	case !v.IsUint64():
		return math.MaxUint64
	default:
		return v.Uint64()
	}
}
