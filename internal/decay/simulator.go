// Package decay replays the slot contract's per-period tax settlement off-chain
// to decide whether an overdue slot's funds still cover the present moment.
//
// Each elapsed period the contract decays the valuation by the compounding
// factor TAX_BASE / (TAX_BASE + rate * period), takes the difference as tax,
// and draws it from the prepaid balance first and the bond second. The
// simulator performs the same integer steps so its verdict matches what a
// poke would do. It is advisory: the contract remains the tie-breaker.
package decay

import (
	"math"
	"math/big"

	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/money"
)

// DefaultMaxPeriods bounds the settlement replay. A slot more than this many
// periods behind is reported as lapsed without iterating.
const DefaultMaxPeriods = 512

// Reason explains how a simulation resolved.
type Reason string

const (
	ReasonVacant             Reason = "vacant"
	ReasonExpired            Reason = "expired"
	ReasonNotDue             Reason = "not_due"
	ReasonCovered            Reason = "covered"
	ReasonValuationExhausted Reason = "valuation_exhausted"
	ReasonBondExhausted      Reason = "bond_exhausted"
	ReasonDust               Reason = "dust"
	ReasonPeriodsExhausted   Reason = "periods_exhausted"
	ReasonIterationCap       Reason = "iteration_cap"
)

// Result is the outcome of one simulation. Valuation, Bond, Prepaid and
// PaidUntil hold the replayed state at the point the simulation resolved.
type Result struct {
	Covered   bool
	Reason    Reason
	Periods   int
	Valuation *big.Int
	Bond      *big.Int
	Prepaid   *big.Int
	PaidUntil uint64
}

// Simulator replays settlement with a bounded number of periods.
type Simulator struct {
	// MaxPeriods is the iteration cap; zero or negative selects
	// DefaultMaxPeriods.
	MaxPeriods int
}

// New returns a Simulator with the given cap.
func New(maxPeriods int) *Simulator {
	return &Simulator{MaxPeriods: maxPeriods}
}

var defaultSimulator = &Simulator{MaxPeriods: DefaultMaxPeriods}

// CoverageExtendsBeyondNow reports whether slot's coverage reaches now using
// the default iteration cap.
func CoverageExtendsBeyondNow(slot domain.NormalizedSlot, now uint64) bool {
	return defaultSimulator.CoverageExtendsBeyondNow(slot, now)
}

// CoverageExtendsBeyondNow reports whether slot's coverage reaches now.
func (s *Simulator) CoverageExtendsBeyondNow(slot domain.NormalizedSlot, now uint64) bool {
	return s.Simulate(slot, now).Covered
}

func (s *Simulator) limit() uint64 {
	if s == nil || s.MaxPeriods <= 0 {
		return DefaultMaxPeriods
	}
	return uint64(s.MaxPeriods)
}

// Simulate replays settlement of slot up to now. The input is never mutated.
func (s *Simulator) Simulate(slot domain.NormalizedSlot, now uint64) Result {
	res := Result{
		Valuation: new(big.Int).Set(money.OrZero(slot.ValuationWei)),
		Bond:      new(big.Int).Set(money.OrZero(slot.LockedValueWei)),
		Prepaid:   new(big.Int).Set(money.OrZero(slot.PrepaidTaxBalanceWei)),
		PaidUntil: slot.TaxPaidUntil,
	}

	if !slot.IsOccupied() {
		return res.lapsed(ReasonVacant)
	}
	if slot.IsExpired {
		return res.lapsed(ReasonExpired)
	}

	period := slot.TaxPeriodSeconds
	if period == 0 || now < slot.TaxPaidUntil || (slot.TimeRemainingSeconds > 0 && now <= slot.TaxPaidUntil) {
		return res.covered(ReasonNotDue)
	}

	periodsDue := (now-slot.TaxPaidUntil)/period + 1
	if periodsDue > s.limit() {
		return res.lapsed(ReasonIterationCap)
	}

	taxBase := money.TaxBase()
	denom := new(big.Int).Mul(new(big.Int).SetUint64(slot.AnnualTaxRateBps), new(big.Int).SetUint64(period))
	denom.Add(denom, taxBase)
	dust := slot.DustThresholdWei()

	theoretical := new(big.Int)
	owed := new(big.Int)
	fromPrepaid := new(big.Int)
	remainder := new(big.Int)

	for i := uint64(0); i < periodsDue; i++ {
		if res.Valuation.Sign() == 0 {
			return res.lapsed(ReasonValuationExhausted)
		}
		if res.Bond.Sign() == 0 {
			return res.lapsed(ReasonBondExhausted)
		}

		theoretical.Mul(res.Valuation, taxBase)
		theoretical.Quo(theoretical, denom)
		owed.Sub(res.Valuation, theoretical)
		if owed.Sign() < 0 {
			owed.SetInt64(0)
		}

		fromPrepaid.Set(money.Min(res.Prepaid, owed))
		remainder.Sub(owed, fromPrepaid)

		if remainder.Cmp(res.Bond) >= 0 {
			return res.lapsed(ReasonBondExhausted)
		}

		if remainder.Sign() == 0 {
			res.Valuation.Set(theoretical)
		} else {
			res.Valuation.Sub(res.Valuation, remainder)
		}
		res.Bond.Sub(res.Bond, remainder)
		res.Prepaid.Sub(res.Prepaid, fromPrepaid)
		saturated := period > math.MaxUint64-res.PaidUntil
		if saturated {
			res.PaidUntil = math.MaxUint64
		} else {
			res.PaidUntil += period
		}
		res.Periods++

		if dust != nil && res.Valuation.Cmp(dust) <= 0 {
			return res.lapsed(ReasonDust)
		}
		// a settlement past the end of time covers any representable now
		if saturated || res.PaidUntil > now {
			return res.covered(ReasonCovered)
		}
		if res.Valuation.Sign() == 0 {
			return res.lapsed(ReasonValuationExhausted)
		}
		if res.Bond.Sign() == 0 {
			return res.lapsed(ReasonBondExhausted)
		}
	}
	return res.lapsed(ReasonPeriodsExhausted)
}

func (r Result) covered(reason Reason) Result {
	r.Covered = true
	r.Reason = reason
	return r
}

func (r Result) lapsed(reason Reason) Result {
	r.Covered = false
	r.Reason = reason
	return r
}
