// Package valuation holds the pure price-per-area computations. Nothing in
// here performs I/O.
package valuation

import (
	"sort"

	"tasaciones/server/internal/models"
)

// HomogenizedSurface weights the uncovered surface by factor
func HomogenizedSurface(covered, uncovered, factor float64) float64 {
	return covered + uncovered*factor
}

// HomogenizedPrice returns price per homogenized m², or 0 when hSurface is 0
func HomogenizedPrice(price, hSurface float64) float64 {
	if hSurface == 0 {
		return 0
	}
	return price / hSurface
}

// ProcessComparables derives hSurface/hPrice for every comparable and drops
// the ones whose hPrice is not positive. Input order is preserved.
func ProcessComparables(comparables []models.Comparable) []models.ProcessedComparable {
	processed := make([]models.ProcessedComparable, 0, len(comparables))
	for _, c := range comparables {
		hSurface := HomogenizedSurface(c.CoveredSurface, c.UncoveredSurface, c.HomogenizationFactor)
		hPrice := HomogenizedPrice(c.Price, hSurface)
		if hPrice <= 0 {
			continue
		}
		processed = append(processed, models.ProcessedComparable{
			Comparable: c,
			HSurface:   hSurface,
			HPrice:     hPrice,
		})
	}
	return processed
}

// ComputeStatistics summarizes the hPrice distribution. The middle tercile
// slot carries the mean, not the median.
func ComputeStatistics(processed []models.ProcessedComparable) models.Statistics {
	n := len(processed)
	if n == 0 {
		return models.Statistics{}
	}

	prices := make([]float64, n)
	var sum float64
	for i, c := range processed {
		prices[i] = c.HPrice
		sum += c.HPrice
	}
	sort.Float64s(prices)

	avg := sum / float64(n)
	return models.Statistics{
		Avg:      avg,
		Min:      prices[0],
		Max:      prices[n-1],
		Terciles: [3]float64{prices[n/3], avg, prices[2*n/3]},
	}
}

// ValuationRange scales the statistics by the target's homogenized surface
func ValuationRange(stats models.Statistics, targetHSurface float64) models.ValuationRange {
	if targetHSurface == 0 {
		return models.ValuationRange{}
	}
	return models.ValuationRange{
		Low:    stats.Terciles[0] * targetHSurface,
		Market: stats.Avg * targetHSurface,
		High:   stats.Terciles[2] * targetHSurface,
	}
}

// Evaluate runs the whole pipeline for a target and its comparables
func Evaluate(target models.TargetProperty, comparables []models.Comparable) models.Summary {
	targetHSurface := HomogenizedSurface(target.CoveredSurface, target.UncoveredSurface, target.HomogenizationFactor)
	processed := ProcessComparables(comparables)
	stats := ComputeStatistics(processed)

	return models.Summary{
		TargetHomogenizedSurface: targetHSurface,
		Comparables:              processed,
		Stats:                    stats,
		Valuation:                ValuationRange(stats, targetHSurface),
	}
}
