package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
)

func seriesRecords(start string, totals []float64) []*costdata.UnifiedCostRecord {
	day, _ := time.Parse(costdata.DateFormat, start)
	var out []*costdata.UnifiedCostRecord
	for i, total := range totals {
		out = append(out, &costdata.UnifiedCostRecord{
			ClientID:  "acme-corp",
			Provider:  costdata.ProviderAWS,
			Date:      day.AddDate(0, 0, i).Format(costdata.DateFormat),
			Currency:  "USD",
			TotalCost: total,
			Services: map[string]costdata.ServiceCost{
				"Compute Engine": {Cost: total, UnifiedCategory: costdata.CategoryCompute},
			},
		})
	}
	return out
}

func flatSeries(n int, total float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = total
	}
	return out
}

func TestForecastFlatMonthProjection(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	// 30 days at $100/day, then 10 days at $150/day this month.
	historical := seriesRecords("2026-07-01", flatSeries(30, 100))
	current := seriesRecords("2026-08-01", flatSeries(10, 150))

	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp", historical, current, 0)

	assert.InDelta(t, 1500, result.MonthToDate, 0.0001)
	assert.InDelta(t, 150, result.DailyAverage, 0.0001)
	assert.Equal(t, 30, result.HorizonDays, "unset horizon falls back to a calendar month")
	assert.Equal(t, 10, result.ElapsedDays)
	assert.Equal(t, 20, result.RemainingDays)

	// Flat daily spend projects linearly: 1500 observed + 150 x 20.
	assert.InDelta(t, 4500, result.ProjectedMonthTotal, 0.0001)
	assert.InDelta(t, 3000, result.BaselineTotal, 0.0001)
	assert.InDelta(t, 0.5, result.DeviationFromBaseline, 0.0001)
	assert.True(t, result.IsTrendingUp, "a 50% deviation is well past the trending threshold")

	require.Contains(t, result.ServiceProjections, "Compute Engine")
	assert.InDelta(t, 4500, result.ServiceProjections["Compute Engine"], 0.0001)
}

func TestForecastCustomHorizon(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	historical := seriesRecords("2026-07-01", flatSeries(30, 100))
	current := seriesRecords("2026-08-01", flatSeries(10, 150))

	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp", historical, current, 60)

	// The horizon scales the remainder, the baseline and the per-service
	// projections alike.
	assert.Equal(t, 60, result.HorizonDays)
	assert.Equal(t, 50, result.RemainingDays)
	assert.InDelta(t, 1500+150*50, result.ProjectedMonthTotal, 0.0001)
	assert.InDelta(t, 6000, result.BaselineTotal, 0.0001)
	assert.InDelta(t, 9000, result.ServiceProjections["Compute Engine"], 0.0001)
}

func TestForecastHorizonShorterThanElapsed(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp",
		nil, seriesRecords("2026-08-01", flatSeries(10, 100)), 7)

	// Already past the window: nothing remains to project.
	assert.Equal(t, 0, result.RemainingDays)
	assert.InDelta(t, 1000, result.ProjectedMonthTotal, 0.0001)
}

func TestForecastFlatSpendNotTrendingUp(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	historical := seriesRecords("2026-07-01", flatSeries(30, 100))
	current := seriesRecords("2026-08-01", flatSeries(10, 100))

	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp", historical, current, 0)

	assert.InDelta(t, 3000, result.ProjectedMonthTotal, 0.0001)
	assert.InDelta(t, 0, result.DeviationFromBaseline, 0.0001)
	assert.False(t, result.IsTrendingUp)
}

func TestForecastSmallDeviationBelowThreshold(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	// 3% above baseline stays under the 4% trending-up threshold.
	historical := seriesRecords("2026-07-01", flatSeries(30, 100))
	current := seriesRecords("2026-08-01", flatSeries(10, 103))

	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp", historical, current, 0)

	assert.InDelta(t, 0.03, result.DeviationFromBaseline, 0.0001)
	assert.False(t, result.IsTrendingUp)
}

func TestForecastNoCurrentDataFallsBackToBaseline(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	historical := seriesRecords("2026-07-01", flatSeries(30, 100))
	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp", historical, nil, 0)

	assert.InDelta(t, 3000, result.ProjectedMonthTotal, 0.0001)
	assert.Equal(t, AccuracyVeryLow, result.Accuracy)
	assert.InDelta(t, 0.2, result.Confidence, 0.0001)
	assert.Zero(t, result.MonthToDate)
}

func TestForecastBoundsWidenWithVolatility(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	historical := seriesRecords("2026-07-01", flatSeries(30, 100))
	stable := forecaster.ForecastVsCurrent(context.Background(), "acme-corp",
		historical, seriesRecords("2026-08-01", flatSeries(10, 150)), 0)
	volatile := forecaster.ForecastVsCurrent(context.Background(), "acme-corp",
		historical, seriesRecords("2026-08-01", []float64{50, 250, 50, 250, 50, 250, 50, 250, 50, 250}), 0)

	stableBand := stable.UpperBound - stable.LowerBound
	volatileBand := volatile.UpperBound - volatile.LowerBound
	assert.Greater(t, volatileBand, stableBand)
	assert.GreaterOrEqual(t, stable.LowerBound, stable.MonthToDate,
		"the lower bound never dips below what was already spent")
}

func TestForecastAccuracyGrading(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	// Under a week of combined history grades very low.
	short := forecaster.ForecastVsCurrent(context.Background(), "acme-corp",
		nil, seriesRecords("2026-08-01", flatSeries(3, 100)), 0)
	assert.Equal(t, AccuracyVeryLow, short.Accuracy)

	// A full stable 40 days grades high.
	long := forecaster.ForecastVsCurrent(context.Background(), "acme-corp",
		seriesRecords("2026-07-01", flatSeries(30, 100)),
		seriesRecords("2026-08-01", flatSeries(10, 100)), 0)
	assert.Equal(t, AccuracyHigh, long.Accuracy)
	assert.Greater(t, long.Confidence, short.Confidence)
}

func TestForecastNoBaselineTreatsSpendAsTrendingUp(t *testing.T) {
	forecaster := NewForecaster(config.Default().Forecast, nil)

	result := forecaster.ForecastVsCurrent(context.Background(), "acme-corp",
		nil, seriesRecords("2026-08-01", flatSeries(10, 100)), 0)

	assert.Zero(t, result.BaselineTotal)
	assert.True(t, result.IsTrendingUp)
}

func TestLinearRegression(t *testing.T) {
	slope, r2 := linearRegression([]float64{100, 110, 120, 130, 140})
	assert.InDelta(t, 10, slope, 0.0001)
	assert.InDelta(t, 1.0, r2, 0.0001)

	slope, r2 = linearRegression([]float64{100, 100, 100})
	assert.InDelta(t, 0, slope, 0.0001)
	assert.InDelta(t, 0, r2, 0.0001)

	slope, _ = linearRegression([]float64{100})
	assert.Zero(t, slope)
}
