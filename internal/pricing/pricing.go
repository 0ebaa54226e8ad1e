// Package pricing holds the points/TTD conversion math. Prices per point
// are decimals in TTD; amounts move through the system as int64 minor units.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PointsForTopUp returns the points credited for a top-up amount, floored.
// A 100.00 TTD top-up at 2.00 TTD per point credits 50 points.
func PointsForTopUp(amountMinor int64, buyPricePerPoint decimal.Decimal) int64 {
	if amountMinor <= 0 || !buyPricePerPoint.IsPositive() {
		return 0
	}
	priceMinor := buyPricePerPoint.Mul(hundred)
	return decimal.NewFromInt(amountMinor).Div(priceMinor).Floor().IntPart()
}

// PointsValueMinor values a points quantity at the given price per point.
func PointsValueMinor(points int64, pricePerPoint decimal.Decimal) int64 {
	return decimal.NewFromInt(points).Mul(pricePerPoint).Mul(hundred).RoundBank(0).IntPart()
}

// MarginMinor is the platform margin on credited points: points times
// (buy price minus user value), clamped to non-negative.
func MarginMinor(points int64, buyPricePerPoint, userValuePerPoint decimal.Decimal) int64 {
	margin := buyPricePerPoint.Sub(userValuePerPoint)
	value := decimal.NewFromInt(points).Mul(margin).Mul(hundred).RoundBank(0).IntPart()
	if value < 0 {
		return 0
	}
	return value
}

// MinPayoutPoints is the smallest earnings balance eligible for a payout:
// ceil(payout minimum / user value per point).
func MinPayoutPoints(payoutMinimumMinor int64, userValuePerPoint decimal.Decimal) int64 {
	if !userValuePerPoint.IsPositive() {
		return 0
	}
	priceMinor := userValuePerPoint.Mul(hundred)
	return decimal.NewFromInt(payoutMinimumMinor).Div(priceMinor).Ceil().IntPart()
}
