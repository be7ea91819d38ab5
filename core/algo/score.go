// Package algo has the pure ownership and ranking math used by the statistics stage.
package algo

import (
	"math"
	"slices"

	"github.com/huangsam/xray/schema"
)

// Risk thresholds on the bus factor scale.
const (
	CriticalThreshold = 0.30
	HighThreshold     = 0.50
	ModerateThreshold = 0.70
)

// Gini calculates the Gini coefficient of a set of non-negative values.
// It uses the rank form G = 2·Σ(i·xᵢ)/(n·Σx) − (n+1)/n over the ascending values,
// ranging from 0 (perfect equality) to (n-1)/n (one holder of everything).
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum, rankWeighted float64
	for i, v := range sorted {
		sum += v
		rankWeighted += float64(i+1) * v
	}
	if sum == 0 {
		return 0
	}

	nf := float64(n)
	g := (2*rankWeighted)/(nf*sum) - (nf+1)/nf
	return math.Min(math.Max(g, 0), 1) // clamp to [0,1]
}

// BusFactor converts ownership shares into a distribution score in [0,1], rounded to 2 decimals.
// Zero or one owner always yields 0 since single ownership is the worst case.
func BusFactor(shares []float64) float64 {
	var owners []float64
	for _, s := range shares {
		if s > 0 {
			owners = append(owners, s)
		}
	}
	if len(owners) <= 1 {
		return 0
	}
	bf := 1 - Gini(owners)
	return RoundTo(math.Min(math.Max(bf, 0), 1), 2)
}

// RiskLevelFor maps a bus factor onto its risk label.
func RiskLevelFor(busFactor float64) schema.RiskLevel {
	switch {
	case busFactor < CriticalThreshold:
		return schema.RiskCritical
	case busFactor < HighThreshold:
		return schema.RiskHigh
	case busFactor < ModerateThreshold:
		return schema.RiskModerate
	default:
		return schema.RiskLow
	}
}

// RoundTo rounds v to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
