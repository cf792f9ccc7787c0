// Package money holds the integer wei arithmetic shared by the simulator, the
// view-model builders and the action engine, plus display formatting.
//
// Every amount is a *big.Int and every division truncates toward zero so that
// results match the slot contracts' uint256 integer division bit for bit.
package money

import (
	"math/big"
)

const (
	// SecondsPerYear is the contract's 365-day year.
	SecondsPerYear = 31_536_000
	// BpsDenominator is the basis-point scale.
	BpsDenominator = 10_000
)

var (
	bpsDenominator = big.NewInt(BpsDenominator)
	// taxBase is BpsDenominator * SecondsPerYear.
	taxBase = new(big.Int).Mul(big.NewInt(BpsDenominator), big.NewInt(SecondsPerYear))
)

// TaxBase returns a fresh copy of 10000 * SecondsPerYear, the denominator of
// every per-second tax computation.
func TaxBase() *big.Int {
	return new(big.Int).Set(taxBase)
}

// Zero returns a new zero-valued big.Int.
func Zero() *big.Int {
	return new(big.Int)
}

// OrZero returns v, or a new zero when v is nil.
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// CalculateBond returns valuation * bondRateBps / 10000.
func CalculateBond(valuation *big.Int, bondRateBps uint64) *big.Int {
	out := new(big.Int).Mul(OrZero(valuation), new(big.Int).SetUint64(bondRateBps))
	return out.Quo(out, bpsDenominator)
}

// CalculateTaxForPeriods returns the linear tax owed on valuation for the
// given number of periods:
//
//	valuation * annualRateBps * periodSeconds * periods / (10000 * SecondsPerYear)
//
// The product is formed before the single division, as the contract does.
func CalculateTaxForPeriods(valuation *big.Int, annualRateBps, periodSeconds, periods uint64) *big.Int {
	out := new(big.Int).Mul(OrZero(valuation), new(big.Int).SetUint64(annualRateBps))
	out.Mul(out, new(big.Int).SetUint64(periodSeconds))
	out.Mul(out, new(big.Int).SetUint64(periods))
	return out.Quo(out, taxBase)
}

// MinTakeoverBid returns valuation + valuation * incrementBps / 10000 when
// the slot is occupied at a non-zero valuation, and minValuation otherwise.
func MinTakeoverBid(occupied bool, valuation *big.Int, incrementBps uint64, minValuation *big.Int) *big.Int {
	if !occupied || valuation == nil || valuation.Sign() <= 0 {
		return new(big.Int).Set(OrZero(minValuation))
	}
	inc := new(big.Int).Mul(valuation, new(big.Int).SetUint64(incrementBps))
	inc.Quo(inc, bpsDenominator)
	return inc.Add(inc, valuation)
}

// Sum adds every value, treating nil as zero.
func Sum(values ...*big.Int) *big.Int {
	out := new(big.Int)
	for _, v := range values {
		if v != nil {
			out.Add(out, v)
		}
	}
	return out
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
