package stats

import "math"

// SignificanceThreshold is the two-tailed confidence level required before a
// comparison is treated as significant.
const SignificanceThreshold = 0.95

// TrendingThreshold is the confidence level at which a not-yet-significant
// experiment is reported as trending.
const TrendingThreshold = 0.90

// MinUsersPerVariant is the observation floor below which significance is
// never declared, whatever the z-test says.
const MinUsersPerVariant = 100

// MinTotalUsers is the floor below which an experiment is reported as not
// having enough data.
const MinTotalUsers = 200

// VariantStats holds the top-level conversion counts for one variant.
type VariantStats struct {
	VariantID      string  `json:"variantId"`
	Users          uint64  `json:"users"`
	Conversions    uint64  `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

// NewVariantStats builds a VariantStats with its rate derived from the
// counts. Rate is 0 when there are no users.
func NewVariantStats(id string, users, conversions uint64) VariantStats {
	v := VariantStats{VariantID: id, Users: users, Conversions: conversions}
	if users > 0 {
		v.ConversionRate = float64(conversions) / float64(users)
	}
	return v
}

// Comparison is the z-test outcome for one challenger variant against the
// control.
type Comparison struct {
	VariantID       string  `json:"variantId"`
	ZScore          float64 `json:"zScore"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	Significant     bool    `json:"significant"`
}

// Analysis is the inference result for a full variant set.
type Analysis struct {
	IsSignificant   bool         `json:"isSignificant"`
	ConfidenceLevel float64      `json:"confidenceLevel"`
	WinnerVariantID string       `json:"winnerVariantId,omitempty"`
	Comparisons     []Comparison `json:"pairwiseComparisons"`
}

// Analyze runs a two-proportion z-test of every challenger variant against
// the control. The control is the first variant in the supplied order, which
// callers must keep deterministic (ascending variant id).
//
// Each challenger is tested pairwise against the control only; no correction
// for multiple comparisons is applied when more than two variants are
// present. This matches how results have historically been reported.
func Analyze(variants []VariantStats) Analysis {
	withData := 0
	for _, v := range variants {
		if v.Users > 0 {
			withData++
		}
	}
	if len(variants) < 2 || withData < 2 || variants[0].Users == 0 {
		return Analysis{}
	}

	control := variants[0]
	best := 0.0
	comparisons := make([]Comparison, 0, len(variants)-1)
	for _, v := range variants[1:] {
		if v.Users == 0 {
			comparisons = append(comparisons, Comparison{VariantID: v.VariantID})
			continue
		}
		z := zTest(control, v)
		conf := 2*normalCDF(math.Abs(z)) - 1
		comparisons = append(comparisons, Comparison{
			VariantID:       v.VariantID,
			ZScore:          z,
			ConfidenceLevel: conf,
			Significant:     conf >= SignificanceThreshold,
		})
		if conf > best {
			best = conf
		}
	}

	significant := best >= SignificanceThreshold && allAboveFloor(variants)

	a := Analysis{
		IsSignificant:   significant,
		ConfidenceLevel: best,
		Comparisons:     comparisons,
	}
	if significant {
		a.WinnerVariantID = pickWinner(variants, comparisons)
	}
	return a
}

// zTest computes the pooled two-proportion z statistic for challenger vs
// control. Positive z means the challenger converts better.
func zTest(control, challenger VariantStats) float64 {
	nc := float64(control.Users)
	nv := float64(challenger.Users)
	pooled := float64(control.Conversions+challenger.Conversions) / (nc + nv)
	se := math.Sqrt(pooled * (1 - pooled) * (1/nc + 1/nv))
	if se == 0 {
		return 0
	}
	return (challenger.ConversionRate - control.ConversionRate) / se
}

func allAboveFloor(variants []VariantStats) bool {
	for _, v := range variants {
		if v.Users < MinUsersPerVariant {
			return false
		}
	}
	return true
}

// pickWinner returns the highest-rate variant among those significant
// against the control. Ties break toward more users, then the
// lexicographically smaller variant id.
func pickWinner(variants []VariantStats, comparisons []Comparison) string {
	significant := make(map[string]bool, len(comparisons))
	for _, c := range comparisons {
		if c.Significant {
			significant[c.VariantID] = true
		}
	}

	var winner *VariantStats
	for i := range variants {
		v := &variants[i]
		if !significant[v.VariantID] {
			continue
		}
		if winner == nil || betterThan(*v, *winner) {
			winner = v
		}
	}
	if winner == nil {
		return ""
	}
	return winner.VariantID
}

func betterThan(a, b VariantStats) bool {
	if a.ConversionRate != b.ConversionRate {
		return a.ConversionRate > b.ConversionRate
	}
	if a.Users != b.Users {
		return a.Users > b.Users
	}
	return a.VariantID < b.VariantID
}
