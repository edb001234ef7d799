package analytics

// CarryAnnualizationFactor converts a per-period funding rate (three periods
// a day) into an annual rate.
const CarryAnnualizationFactor = 365 * 3

// ComputeCarryScore annualizes a funding rate into a carry score. Negative
// funding on a long perp is negative carry.
func ComputeCarryScore(fundingRate float64) float64 {
	return fundingRate * CarryAnnualizationFactor
}
