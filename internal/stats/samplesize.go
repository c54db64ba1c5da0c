package stats

import "math"

// zBeta80 is the one-tailed z for 80% statistical power.
const zBeta80 = 0.8416

// MinimumSampleSize returns the per-variant sample size needed to detect a
// relative lift of mde over baselineRate at 95% significance and 80% power,
// using the standard two-proportion formula
//
//	n = ((z_a/2 + z_b)^2 * 2*p*(1-p)) / delta^2, delta = p * mde.
//
// Returns 0 when the inputs are out of domain (baseline outside (0,1) or a
// non-positive effect); callers treat 0 as undefined.
func MinimumSampleSize(baselineRate, mde float64) uint64 {
	if baselineRate <= 0 || baselineRate >= 1 || mde <= 0 {
		return 0
	}

	zAlpha := ZScore(SignificanceThreshold)
	delta := baselineRate * mde
	p := baselineRate

	n := math.Pow(zAlpha+zBeta80, 2) * 2 * p * (1 - p) / (delta * delta)
	return uint64(math.Ceil(n))
}

// Experiment display states.
const (
	StatusNotEnoughData = "not enough data"
	StatusTrending      = "trending but not significant"
	StatusWinnerFound   = "winner found"
	StatusNoDifference  = "no meaningful difference"
)

// StatusMessage maps an analysis to one of a fixed set of display states.
// Pure dispatch; no computation of its own.
func StatusMessage(a Analysis, totalUsers uint64) string {
	switch {
	case totalUsers < MinTotalUsers:
		return StatusNotEnoughData
	case a.IsSignificant && a.WinnerVariantID != "":
		return StatusWinnerFound
	case a.ConfidenceLevel >= TrendingThreshold:
		return StatusTrending
	default:
		return StatusNoDifference
	}
}
