package lien

import "math/bits"

// Collateral haircut applied to an invoice's face value.
const (
	RiskFactor    = 90
	RiskPrecision = 100
)

// Discount returns value*RiskFactor/RiskPrecision, truncated. The product is
// formed in 128 bits so the result is exact for every uint64 value.
func Discount(value uint64) uint64 {
	hi, lo := bits.Mul64(value, RiskFactor)
	q, _ := bits.Div64(hi, lo, RiskPrecision)
	return q
}
