package money

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ethDisplayPlaces is how many fractional ETH digits FormatEth keeps.
const ethDisplayPlaces = 6

var smallestDisplayed = decimal.New(1, -ethDisplayPlaces)

// FormatEth renders a wei amount in ETH, truncated to six fractional digits
// with trailing zeros removed. Non-zero amounts too small to show render as
// "<0.000001 ETH".
func FormatEth(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0 ETH"
	}
	d := decimal.NewFromBigInt(wei, -18)
	neg := d.Sign() < 0
	abs := d.Abs()
	if abs.LessThan(smallestDisplayed) {
		if neg {
			return ">-0.000001 ETH"
		}
		return "<0.000001 ETH"
	}
	s := abs.Truncate(ethDisplayPlaces).String()
	if neg {
		s = "-" + s
	}
	return s + " ETH"
}

// FormatBps renders a basis-point rate as a percentage: 500 → "5%",
// 250 → "2.5%", 1 → "0.01%".
func FormatBps(bps uint64) string {
	whole := bps / 100
	frac := bps % 100
	if frac == 0 {
		return strconv.FormatUint(whole, 10) + "%"
	}
	f := strings.TrimRight(fmt.Sprintf("%02d", frac), "0")
	return fmt.Sprintf("%d.%s%%", whole, f)
}

// FormatDuration renders seconds using its two most significant units
// ("1d 1h", "2h 5m", "3m 20s", "45s"). Zero renders as fallback.
func FormatDuration(seconds uint64, fallback string) string {
	if seconds == 0 {
		return fallback
	}
	units := []struct {
		size   uint64
		suffix string
	}{
		{86_400, "d"},
		{3_600, "h"},
		{60, "m"},
		{1, "s"},
	}
	parts := make([]string, 0, 2)
	rem := seconds
	for _, u := range units {
		if len(parts) == 2 {
			break
		}
		n := rem / u.size
		if n == 0 {
			if len(parts) > 0 {
				// Keep the two units adjacent: "1d 0h" reads as "1d".
				break
			}
			continue
		}
		parts = append(parts, strconv.FormatUint(n, 10)+u.suffix)
		rem -= n * u.size
	}
	return strings.Join(parts, " ")
}
