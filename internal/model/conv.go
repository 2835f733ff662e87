package model

import "github.com/shopspring/decimal"

// Itoa is a minimal int-to-string converter for hot-path key building.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Rupees converts a paise amount to an exact decimal rupee value.
func Rupees(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// Paise converts a rupee decimal to paise, rounding half away from zero.
func Paise(rupees decimal.Decimal) int64 {
	return rupees.Shift(2).Round(0).IntPart()
}
