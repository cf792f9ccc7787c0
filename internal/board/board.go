// Package board derives display records and aggregates from normalized slots.
// Every function here is a pure function of its arguments.
package board

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/slotengine/internal/decay"
	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/money"
)

// CoverageChecker decides whether an overdue slot's funds still reach now.
// *decay.Simulator satisfies it.
type CoverageChecker interface {
	CoverageExtendsBeyondNow(slot domain.NormalizedSlot, now uint64) bool
}

func checker(c CoverageChecker) CoverageChecker {
	if c == nil {
		return decay.New(decay.DefaultMaxPeriods)
	}
	return c
}

// IsOverdue reports whether an occupied, unexpired slot has no contract-reported
// time left.
func IsOverdue(s domain.NormalizedSlot) bool {
	return s.IsOccupied() && !s.IsExpired && s.TimeRemainingSeconds == 0
}

// CanForfeit reports whether an overdue slot has also lapsed once pending
// settlement is replayed.
func CanForfeit(s domain.NormalizedSlot, now uint64, cov CoverageChecker) bool {
	return IsOverdue(s) && !checker(cov).CoverageExtendsBeyondNow(s, now)
}

// StatusLabel returns Open, Expired, Vacant or Owned.
func StatusLabel(s domain.NormalizedSlot, now uint64, cov CoverageChecker) string {
	switch {
	case s.Type == domain.SlotTypeShielded && s.IsExpired:
		return domain.StatusExpired
	case !s.IsOccupied():
		return domain.StatusOpen
	case CanForfeit(s, now, cov):
		return domain.StatusVacant
	default:
		return domain.StatusOwned
	}
}

// RemainingUnits renders the coverage left on s.
func RemainingUnits(s domain.NormalizedSlot) string {
	switch {
	case s.Type == domain.SlotTypeShielded && s.IsExpired:
		return domain.RemainingExpired
	case !s.IsOccupied():
		return domain.RemainingVacant
	default:
		return money.FormatDuration(s.TimeRemainingSeconds, domain.RemainingOverdue)
	}
}

// MinTakeoverBid returns the smallest valuation that displaces the owner, or
// the minimum valuation for an unoccupied slot.
func MinTakeoverBid(s domain.NormalizedSlot) *big.Int {
	return money.MinTakeoverBid(!s.IsEffectivelyVacant(), s.ValuationWei, s.MinBidIncrementBps, s.MinValuationWei)
}

// ClaimQuote is the value required to claim s at its minimum valuation for a
// single tax period.
func ClaimQuote(s domain.NormalizedSlot) *big.Int {
	return money.Sum(
		money.CalculateBond(s.MinValuationWei, s.BondRateBps),
		money.CalculateTaxForPeriods(s.MinValuationWei, s.AnnualTaxRateBps, s.TaxPeriodSeconds, 1),
	)
}

// BuildVacant renders a claimable slot.
func BuildVacant(s domain.NormalizedSlot) domain.VacantSlotData {
	quote := ClaimQuote(s)
	return domain.VacantSlotData{
		Address:         s.Address.Hex(),
		Type:            s.Type,
		Name:            s.Metadata.Name,
		Metadata:        s.Metadata,
		StatusLabel:     StatusLabel(s, 0, nil),
		RemainingUnits:  RemainingUnits(s),
		MinValuationWei: money.OrZero(s.MinValuationWei).String(),
		MinValuationEth: money.FormatEth(s.MinValuationWei),
		BondRate:        money.FormatBps(s.BondRateBps),
		AnnualTaxRate:   money.FormatBps(s.AnnualTaxRateBps),
		TaxPeriod:       money.FormatDuration(s.TaxPeriodSeconds, "n/a"),
		ClaimQuoteWei:   quote.String(),
		ClaimQuoteEth:   money.FormatEth(quote),
	}
}

// BuildActive renders an occupied, unexpired slot as of now.
func BuildActive(s domain.NormalizedSlot, now uint64, cov CoverageChecker) domain.ActiveSlotData {
	cov = checker(cov)
	bid := MinTakeoverBid(s)
	var owner string
	if s.Owner != nil {
		owner = s.Owner.Hex()
	}
	var dueIn uint64
	if s.TaxPaidUntil > now {
		dueIn = s.TaxPaidUntil - now
	}
	return domain.ActiveSlotData{
		Address:                 s.Address.Hex(),
		Type:                    s.Type,
		Name:                    s.Metadata.Name,
		Metadata:                s.Metadata,
		Owner:                   owner,
		StatusLabel:             StatusLabel(s, now, cov),
		RemainingUnits:          RemainingUnits(s),
		ValuationWei:            money.OrZero(s.ValuationWei).String(),
		ValuationEth:            money.FormatEth(s.ValuationWei),
		LockedValueWei:          money.OrZero(s.LockedValueWei).String(),
		LockedValueEth:          money.FormatEth(s.LockedValueWei),
		PrepaidTaxBalanceWei:    money.OrZero(s.PrepaidTaxBalanceWei).String(),
		PrepaidTaxBalanceEth:    money.FormatEth(s.PrepaidTaxBalanceWei),
		MinTakeoverBidWei:       bid.String(),
		MinTakeoverBidEth:       money.FormatEth(bid),
		AnnualTaxRate:           money.FormatBps(s.AnnualTaxRateBps),
		TaxPeriod:               money.FormatDuration(s.TaxPeriodSeconds, "n/a"),
		TaxPaidUntil:            s.TaxPaidUntil,
		TaxDueInSeconds:         dueIn,
		IsOverdue:               IsOverdue(s),
		CanForfeit:              CanForfeit(s, now, cov),
		CurrentAdURI:            s.CurrentAdURI,
		ContentUpdatesRemaining: s.ContentUpdatesRemaining(),
	}
}

// Build splits slots into vacant and active records, preserving input order,
// and computes metrics and totals over them.
func Build(slots []domain.NormalizedSlot, now uint64, cov CoverageChecker) domain.Board {
	cov = checker(cov)
	b := domain.Board{
		Vacant:      make([]domain.VacantSlotData, 0, len(slots)),
		Active:      make([]domain.ActiveSlotData, 0, len(slots)),
		GeneratedAt: time.Unix(int64(now), 0).UTC(),
		Now:         now,
	}
	var active []domain.NormalizedSlot
	for _, s := range slots {
		if s.IsEffectivelyVacant() {
			b.Vacant = append(b.Vacant, BuildVacant(s))
			continue
		}
		active = append(active, s)
		b.Active = append(b.Active, BuildActive(s, now, cov))
	}
	b.Metrics = Metrics(slots)
	b.Totals = Totals(active)
	return b
}

// Metrics counts active, vacant and overdue slots.
func Metrics(slots []domain.NormalizedSlot) domain.SlotMetrics {
	var m domain.SlotMetrics
	for _, s := range slots {
		if s.IsEffectivelyVacant() {
			m.VacantCount++
			continue
		}
		m.ActiveCount++
		if IsOverdue(s) {
			m.OverdueCount++
		}
	}
	return m
}

// Totals sums the wei balances of the active slots. Effectively vacant slots
// are skipped.
func Totals(slots []domain.NormalizedSlot) domain.BoardTotals {
	prepaid, locked, valuation := new(big.Int), new(big.Int), new(big.Int)
	for _, s := range slots {
		if s.IsEffectivelyVacant() {
			continue
		}
		prepaid.Add(prepaid, money.OrZero(s.PrepaidTaxBalanceWei))
		locked.Add(locked, money.OrZero(s.LockedValueWei))
		valuation.Add(valuation, money.OrZero(s.ValuationWei))
	}
	return domain.BoardTotals{
		PrepaidTaxBalanceWei: prepaid.String(),
		PrepaidTaxBalanceEth: money.FormatEth(prepaid),
		LockedValueWei:       locked.String(),
		LockedValueEth:       money.FormatEth(locked),
		ValuationWei:         valuation.String(),
		ValuationEth:         money.FormatEth(valuation),
	}
}
