package board

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/slotengine/internal/decay"
	"github.com/alanyoungcy/slotengine/internal/domain"
)

const now = uint64(1_700_000_000)

var ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")

// stubCoverage returns a fixed verdict and records how often it was asked.
type stubCoverage struct {
	covered bool
	calls   int
}

func (s *stubCoverage) CoverageExtendsBeyondNow(domain.NormalizedSlot, uint64) bool {
	s.calls++
	return s.covered
}

func vacantSlot(index int) domain.NormalizedSlot {
	return domain.NormalizedSlot{
		Address:              common.BigToAddress(big.NewInt(int64(0xa0 + index))),
		Type:                 domain.SlotTypeEnabled,
		Index:                index,
		ValuationWei:         big.NewInt(0),
		LockedValueWei:       big.NewInt(0),
		MinValuationWei:      big.NewInt(1_000_000),
		PrepaidTaxBalanceWei: big.NewInt(0),
		BaseValuationWei:     big.NewInt(0),
		BondRateBps:          500,
		AnnualTaxRateBps:     1_000,
		MinBidIncrementBps:   1_000,
		TaxPeriodSeconds:     604_800,
		Metadata:             domain.SlotMetadata{Name: "Slot #" + string(rune('0'+index))},
	}
}

func activeSlot(index int) domain.NormalizedSlot {
	s := vacantSlot(index)
	o := ownerAddr
	s.Owner = &o
	s.ValuationWei = big.NewInt(1_000_000)
	s.LockedValueWei = big.NewInt(50_000)
	s.PrepaidTaxBalanceWei = big.NewInt(1_917)
	s.TaxPaidUntil = now + 3_600
	s.TimeRemainingSeconds = 3_600
	s.ContentUpdateLimit = 3
	s.ContentUpdateCount = 1
	return s
}

func overdueSlot(index int) domain.NormalizedSlot {
	s := activeSlot(index)
	s.TaxPaidUntil = now - 10
	s.TimeRemainingSeconds = 0
	return s
}

func TestBuildVacant(t *testing.T) {
	got := BuildVacant(vacantSlot(1))
	want := domain.VacantSlotData{
		Address:         vacantSlot(1).Address.Hex(),
		Type:            domain.SlotTypeEnabled,
		Name:            "Slot #1",
		Metadata:        domain.SlotMetadata{Name: "Slot #1"},
		StatusLabel:     domain.StatusOpen,
		RemainingUnits:  domain.RemainingVacant,
		MinValuationWei: "1000000",
		MinValuationEth: "<0.000001 ETH",
		BondRate:        "5%",
		AnnualTaxRate:   "10%",
		TaxPeriod:       "7d",
		ClaimQuoteWei:   "51917",
		ClaimQuoteEth:   "<0.000001 ETH",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("BuildVacant mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildVacantExpiredShielded(t *testing.T) {
	s := activeSlot(2)
	s.Type = domain.SlotTypeShielded
	s.IsExpired = true

	got := BuildVacant(s)
	assert.Equal(t, domain.StatusExpired, got.StatusLabel)
	assert.Equal(t, domain.RemainingExpired, got.RemainingUnits)
}

func TestBuildActive(t *testing.T) {
	cov := &stubCoverage{covered: true}
	got := BuildActive(activeSlot(1), now, cov)

	assert.Equal(t, ownerAddr.Hex(), got.Owner)
	assert.Equal(t, domain.StatusOwned, got.StatusLabel)
	assert.Equal(t, "1h", got.RemainingUnits)
	assert.Equal(t, "1100000", got.MinTakeoverBidWei)
	assert.Equal(t, uint64(3_600), got.TaxDueInSeconds)
	assert.Equal(t, uint64(2), got.ContentUpdatesRemaining)
	assert.False(t, got.IsOverdue)
	assert.False(t, got.CanForfeit)
	assert.Zero(t, cov.calls, "coverage is only replayed for overdue slots")
}

func TestForfeitureEligibility(t *testing.T) {
	tests := []struct {
		name        string
		covered     bool
		wantForfeit bool
		wantStatus  string
	}{
		{name: "lapsed after replay", covered: false, wantForfeit: true, wantStatus: domain.StatusVacant},
		{name: "funds still cover now", covered: true, wantForfeit: false, wantStatus: domain.StatusOwned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildActive(overdueSlot(1), now, &stubCoverage{covered: tt.covered})
			assert.True(t, got.IsOverdue)
			assert.Equal(t, tt.wantForfeit, got.CanForfeit)
			assert.Equal(t, tt.wantStatus, got.StatusLabel)
			assert.Equal(t, domain.RemainingOverdue, got.RemainingUnits)
			assert.Zero(t, got.TaxDueInSeconds)
		})
	}
}

func TestCanForfeitWithSimulator(t *testing.T) {
	// 50_000 of bond covers the weekly settlement of a 1_000_000 valuation
	s := overdueSlot(1)
	assert.False(t, CanForfeit(s, now, nil))

	s.LockedValueWei = big.NewInt(1)
	s.PrepaidTaxBalanceWei = big.NewInt(0)
	assert.True(t, CanForfeit(s, now, nil))
}

// dustBoundarySlot is overdue by less than one period. A single settlement at
// a 100% annual rate over a tenth of a year decays 1_210_000 to exactly
// 1_100_000, paid from prepaid alone.
func dustBoundarySlot(base int64) domain.NormalizedSlot {
	s := overdueSlot(2)
	s.ValuationWei = big.NewInt(1_210_000)
	s.PrepaidTaxBalanceWei = big.NewInt(110_000)
	s.LockedValueWei = big.NewInt(100_000)
	s.AnnualTaxRateBps = 10_000
	s.TaxPeriodSeconds = 3_153_600
	s.BaseValuationWei = big.NewInt(base)
	s.DustRateBps = 10_000
	return s
}

func TestCanForfeitAtDustThreshold(t *testing.T) {
	sim := decay.New(decay.DefaultMaxPeriods)
	tests := []struct {
		name string
		base int64
		want bool
	}{
		{name: "valuation exactly at threshold", base: 1_100_000, want: true},
		{name: "valuation one wei above threshold", base: 1_099_999, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := dustBoundarySlot(tt.base)
			require.Zero(t, s.TimeRemainingSeconds)
			assert.Equal(t, tt.want, CanForfeit(s, now, sim))
			assert.Equal(t, tt.want, CanForfeit(s, now, nil))
			assert.Equal(t, tt.want, BuildActive(s, now, sim).CanForfeit)
		})
	}
}

func TestBuild(t *testing.T) {
	expired := activeSlot(4)
	expired.Type = domain.SlotTypeShielded
	expired.IsExpired = true

	slots := []domain.NormalizedSlot{vacantSlot(1), activeSlot(2), overdueSlot(3), expired}
	b := Build(slots, now, &stubCoverage{covered: false})

	require.Len(t, b.Vacant, 2)
	require.Len(t, b.Active, 2)
	assert.Equal(t, "Slot #1", b.Vacant[0].Name)
	assert.Equal(t, domain.StatusExpired, b.Vacant[1].StatusLabel)
	assert.Equal(t, domain.StatusOwned, b.Active[0].StatusLabel)
	assert.Equal(t, domain.StatusVacant, b.Active[1].StatusLabel)

	wantMetrics := domain.SlotMetrics{ActiveCount: 2, VacantCount: 2, OverdueCount: 1}
	if diff := cmp.Diff(wantMetrics, b.Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "3834", b.Totals.PrepaidTaxBalanceWei)
	assert.Equal(t, "100000", b.Totals.LockedValueWei)
	assert.Equal(t, "2000000", b.Totals.ValuationWei)
	assert.Equal(t, time.Unix(int64(now), 0).UTC(), b.GeneratedAt)
	assert.Equal(t, now, b.Now)
}

func TestBuildEmpty(t *testing.T) {
	b := Build(nil, now, nil)
	assert.Empty(t, b.Vacant)
	assert.Empty(t, b.Active)
	assert.Equal(t, domain.SlotMetrics{}, b.Metrics)
	assert.Equal(t, "0", b.Totals.ValuationWei)
	assert.Equal(t, "0 ETH", b.Totals.ValuationEth)
}
