package domain

import (
	"math"
	"strconv"
)

// ToMinor converts a decimal amount to minor units (two decimals).
// It reports false for amounts that are not finite or do not fit in int64.
func ToMinor(amount float64) (int64, bool) {
	v := math.Round(amount * 100)
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, false
	}
	return int64(v), true
}

func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	major := v / 100
	minor := v % 100
	out := sign + strconv.FormatInt(major, 10) + "."
	if minor < 10 {
		out += "0"
	}
	return out + strconv.FormatInt(minor, 10)
}
