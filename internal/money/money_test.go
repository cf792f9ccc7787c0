package money

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBond(t *testing.T) {
	tests := []struct {
		name      string
		valuation *big.Int
		bps       uint64
		want      int64
	}{
		{name: "five percent", valuation: big.NewInt(1_000_000), bps: 500, want: 50_000},
		{name: "truncates", valuation: big.NewInt(199), bps: 50, want: 0},
		{name: "full", valuation: big.NewInt(42), bps: 10_000, want: 42},
		{name: "nil valuation", valuation: nil, bps: 500, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, big.NewInt(tt.want).String(), CalculateBond(tt.valuation, tt.bps).String())
		})
	}
}

func TestCalculateTaxForPeriods(t *testing.T) {
	// 1e6 * 1000 * 604800 / 315360000000 = 1917.8 → 1917
	assert.Equal(t, big.NewInt(1_917), CalculateTaxForPeriods(big.NewInt(1_000_000), 1_000, 604_800, 1))
	// multiplication happens before the division
	assert.Equal(t, big.NewInt(3_835), CalculateTaxForPeriods(big.NewInt(1_000_000), 1_000, 604_800, 2))
	assert.Zero(t, CalculateTaxForPeriods(big.NewInt(1_000_000), 1_000, 604_800, 0).Sign())
}

func TestClaimTotal(t *testing.T) {
	v := big.NewInt(1_000_000)
	total := Sum(CalculateBond(v, 500), CalculateTaxForPeriods(v, 1_000, 604_800, 1))
	assert.Equal(t, big.NewInt(51_917), total)
}

func TestMinTakeoverBid(t *testing.T) {
	minVal := big.NewInt(10)
	assert.Equal(t, big.NewInt(1_100_000), MinTakeoverBid(true, big.NewInt(1_000_000), 1_000, minVal))
	assert.Equal(t, big.NewInt(10), MinTakeoverBid(false, big.NewInt(1_000_000), 1_000, minVal))
	assert.Equal(t, big.NewInt(10), MinTakeoverBid(true, big.NewInt(0), 1_000, minVal))

	got := MinTakeoverBid(false, nil, 0, minVal)
	got.SetInt64(99)
	assert.Equal(t, big.NewInt(10), minVal, "result must not alias the input")
}

func TestTaxBaseIsCopy(t *testing.T) {
	tb := TaxBase()
	tb.SetInt64(1)
	assert.Equal(t, big.NewInt(315_360_000_000), TaxBase())
}

func TestFormatEth(t *testing.T) {
	oneEth, _ := new(big.Int).SetString("1000000000000000000", 10)
	tests := []struct {
		name string
		wei  *big.Int
		want string
	}{
		{name: "nil", wei: nil, want: "0 ETH"},
		{name: "zero", wei: big.NewInt(0), want: "0 ETH"},
		{name: "one", wei: oneEth, want: "1 ETH"},
		{name: "strips zeros", wei: big.NewInt(1_500_000_000_000_000_000 / 1_000), want: "0.0015 ETH"},
		{name: "truncates", wei: big.NewInt(1_234_567_890_000_000), want: "0.001234 ETH"},
		{name: "smallest shown", wei: big.NewInt(1_000_000_000_000), want: "0.000001 ETH"},
		{name: "dust", wei: big.NewInt(999_999_999_999), want: "<0.000001 ETH"},
		{name: "one wei", wei: big.NewInt(1), want: "<0.000001 ETH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEth(tt.wei))
		})
	}
}

func TestFormatBps(t *testing.T) {
	tests := map[uint64]string{
		0:      "0%",
		1:      "0.01%",
		10:     "0.1%",
		250:    "2.5%",
		500:    "5%",
		1_234:  "12.34%",
		10_000: "100%",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatBps(in), "bps=%d", in)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds uint64
		want    string
	}{
		{0, "n/a"},
		{45, "45s"},
		{200, "3m 20s"},
		{7_500, "2h 5m"},
		{7_205, "2h"},
		{90_000, "1d 1h"},
		{86_400, "1d"},
		{86_401, "1d"},
		{604_800, "7d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds, "n/a"), "seconds=%d", tt.seconds)
	}
}
