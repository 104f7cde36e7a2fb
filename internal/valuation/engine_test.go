package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasaciones/server/internal/models"
)

func comparable(id string, price, covered, uncovered, factor float64) models.Comparable {
	c := models.Comparable{ID: id, Price: price}
	c.CoveredSurface = covered
	c.UncoveredSurface = uncovered
	c.HomogenizationFactor = factor
	return c
}

func withHPrices(values ...float64) []models.ProcessedComparable {
	out := make([]models.ProcessedComparable, len(values))
	for i, v := range values {
		out[i] = models.ProcessedComparable{HPrice: v}
	}
	return out
}

func TestHomogenizedSurface(t *testing.T) {
	assert.Equal(t, 80.0, HomogenizedSurface(80, 0, 0.5))
	assert.Equal(t, 85.0, HomogenizedSurface(80, 10, 0.5))
	assert.Equal(t, 2*HomogenizedSurface(40, 10, 0.5), HomogenizedSurface(80, 20, 0.5))
	assert.InDelta(t, 51.0, HomogenizedSurface(50, 10, 0.10), 1e-9)
}

func TestHomogenizedPrice(t *testing.T) {
	assert.Equal(t, 0.0, HomogenizedPrice(150000, 0))
	assert.Equal(t, 0.0, HomogenizedPrice(0, 0))
	assert.Equal(t, 2000.0, HomogenizedPrice(100000, 50))
}

func TestProcessComparables(t *testing.T) {
	input := []models.Comparable{
		comparable("a", 100000, 50, 0, 1),
		comparable("zero-surface", 100000, 0, 0, 1),
		comparable("zero-price", 0, 50, 0, 1),
		comparable("b", 120000, 40, 20, 0.5),
	}

	processed := ProcessComparables(input)
	require.Len(t, processed, 2)
	assert.Equal(t, "a", processed[0].ID)
	assert.Equal(t, 2000.0, processed[0].HPrice)
	assert.Equal(t, "b", processed[1].ID)
	assert.Equal(t, 50.0, processed[1].HSurface)
	assert.Equal(t, 2400.0, processed[1].HPrice)

	for _, p := range processed {
		assert.Greater(t, p.HPrice, 0.0)
	}
}

func TestComputeStatistics_Empty(t *testing.T) {
	stats := ComputeStatistics(nil)
	assert.Equal(t, models.Statistics{}, stats)
	assert.Equal(t, [3]float64{0, 0, 0}, stats.Terciles)
}

func TestComputeStatistics_Single(t *testing.T) {
	stats := ComputeStatistics(withHPrices(100))
	assert.Equal(t, 100.0, stats.Avg)
	assert.Equal(t, 100.0, stats.Min)
	assert.Equal(t, 100.0, stats.Max)
	assert.Equal(t, [3]float64{100, 100, 100}, stats.Terciles)
}

func TestComputeStatistics_Terciles(t *testing.T) {
	stats := ComputeStatistics(withHPrices(110, 80, 120, 90, 100))
	assert.Equal(t, 100.0, stats.Avg)
	assert.Equal(t, 80.0, stats.Min)
	assert.Equal(t, 120.0, stats.Max)
	assert.Equal(t, [3]float64{90, 100, 110}, stats.Terciles)
}

func TestValuationRange(t *testing.T) {
	stats := models.Statistics{Avg: 100, Terciles: [3]float64{90, 100, 110}}

	assert.Equal(t, models.ValuationRange{}, ValuationRange(stats, 0))
	assert.Equal(t, models.ValuationRange{Low: 4500, Market: 5000, High: 5500}, ValuationRange(stats, 50))
}

func TestEvaluate(t *testing.T) {
	target := models.TargetProperty{CoveredSurface: 45, UncoveredSurface: 50, HomogenizationFactor: 0.10}
	comps := []models.Comparable{
		comparable("a", 4000, 40, 0, 1),
		comparable("b", 5000, 50, 0, 1),
		comparable("c", 6000, 50, 0, 1),
	}

	summary := Evaluate(target, comps)
	assert.InDelta(t, 50.0, summary.TargetHomogenizedSurface, 1e-9)
	assert.Len(t, summary.Comparables, 3)
	assert.InDelta(t, 106.667, summary.Stats.Avg, 0.001)
	assert.Equal(t, 100.0, summary.Stats.Terciles[0])
	assert.Equal(t, 120.0, summary.Stats.Terciles[2])
	assert.InDelta(t, 5000, summary.Valuation.Low, 1e-9)
	assert.InDelta(t, 6000, summary.Valuation.High, 1e-9)
}
