package action

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/money"
)

// ClaimValue is bond(valuation) + tax(valuation) for the requested periods.
func ClaimValue(s domain.NormalizedSlot, valuation *big.Int, periods uint64) *big.Int {
	return money.Sum(
		money.CalculateBond(valuation, s.BondRateBps),
		money.CalculateTaxForPeriods(valuation, s.AnnualTaxRateBps, s.TaxPeriodSeconds, periods),
	)
}

// TakeoverValue uses the same formula as ClaimValue at the new valuation.
func TakeoverValue(s domain.NormalizedSlot, newValuation *big.Int, periods uint64) *big.Int {
	return ClaimValue(s, newValuation, periods)
}

// RenewValue is the tax for the requested periods at the current valuation,
// or at the minimum valuation when the current one is zero.
func RenewValue(s domain.NormalizedSlot, periods uint64) *big.Int {
	basis := s.ValuationWei
	if basis == nil || basis.Sign() == 0 {
		basis = s.MinValuationWei
	}
	return money.CalculateTaxForPeriods(basis, s.AnnualTaxRateBps, s.TaxPeriodSeconds, periods)
}

// MinTakeoverBid is the smallest valuation Takeover accepts for s.
func MinTakeoverBid(s domain.NormalizedSlot) *big.Int {
	return money.MinTakeoverBid(!s.IsEffectivelyVacant(), s.ValuationWei, s.MinBidIncrementBps, s.MinValuationWei)
}

func invalid(reason error, format string, args ...any) error {
	return fmt.Errorf("action: %w: %w: %s", domain.ErrValidation, reason, fmt.Sprintf(format, args...))
}

func requirePeriods(periods uint64) error {
	if periods == 0 {
		return invalid(domain.ErrInvalidPeriods, "got 0")
	}
	return nil
}

func requirePositive(value *big.Int) error {
	if value == nil || value.Sign() <= 0 {
		return invalid(domain.ErrZeroValue, "check the slot's rate and period configuration")
	}
	return nil
}
