// Package forecast projects near-future cost totals from unified cost
// record histories. Projections combine a daily-average extrapolation with a
// linear regression growth component, and every projection carries an
// accuracy assessment so consumers can weigh how much to trust it.
package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
)

// Accuracy grades how much history backs a projection.
type Accuracy string

const (
	AccuracyVeryLow Accuracy = "very_low"
	AccuracyLow     Accuracy = "low"
	AccuracyMedium  Accuracy = "medium"
	AccuracyHigh    Accuracy = "high"
)

// Result is one horizon-end cost projection.
type Result struct {
	ClientID string `json:"client_id"`

	// HorizonDays is the projection window, a calendar month by default.
	HorizonDays int `json:"forecast_horizon_days"`

	// ProjectedMonthTotal is the projected total over the horizon: observed
	// spend to date plus the projected remainder.
	ProjectedMonthTotal float64 `json:"projected_month_total"`
	MonthToDate         float64 `json:"month_to_date"`
	DailyAverage        float64 `json:"daily_average"`
	ElapsedDays         int     `json:"elapsed_days"`
	RemainingDays       int     `json:"remaining_days"`

	// LowerBound and UpperBound widen with the observed volatility.
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`

	// GrowthRatePerDay is the regression slope of the daily series.
	GrowthRatePerDay float64 `json:"growth_rate_per_day"`

	// BaselineTotal is the prior period's spend normalized to the horizon;
	// DeviationFromBaseline is the projection's relative departure.
	BaselineTotal         float64 `json:"baseline_total"`
	DeviationFromBaseline float64 `json:"deviation_from_baseline"`
	IsTrendingUp          bool    `json:"is_trending_up"`

	ServiceProjections map[string]float64 `json:"service_projections,omitempty"`

	Accuracy   Accuracy  `json:"accuracy"`
	Confidence float64   `json:"confidence"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Forecaster projects month-end costs for one client at a time.
type Forecaster struct {
	cfg    config.ForecastConfig
	logger *logger.Logger
	tracer trace.Tracer
}

// NewForecaster creates a forecaster. A zero-value config is replaced with
// the defaults.
func NewForecaster(cfg config.ForecastConfig, log *logger.Logger) *Forecaster {
	if cfg.TrendingUpDeviation == 0 {
		cfg = config.Default().Forecast
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = config.Default().Forecast.HorizonDays
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Forecaster{
		cfg:    cfg,
		logger: log.WithField("component", "forecaster"),
		tracer: otel.Tracer("insights"),
	}
}

// ForecastVsCurrent projects the total spend over the horizon from the
// records observed so far and compares it against the prior period baseline.
// A horizon of zero or less falls back to the configured default, a calendar
// month. With no current data the projection falls back to the baseline
// itself at very low accuracy; the call never fails.
func (f *Forecaster) ForecastVsCurrent(ctx context.Context, clientID string, historical, current []*costdata.UnifiedCostRecord, horizonDays int) *Result {
	_, span := f.tracer.Start(ctx, "insights.forecast",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	if horizonDays <= 0 {
		horizonDays = f.cfg.HorizonDays
	}

	result := &Result{
		ClientID:           clientID,
		HorizonDays:        horizonDays,
		ServiceProjections: make(map[string]float64),
		AnalyzedAt:         time.Now().UTC(),
	}

	histDates, histTotals := dailySeries(historical)
	histMean, histVolatility := meanVolatility(histTotals)
	result.BaselineTotal = histMean * float64(horizonDays)

	curDates, curTotals := dailySeries(current)
	result.ElapsedDays = len(curDates)
	result.RemainingDays = horizonDays - result.ElapsedDays
	if result.RemainingDays < 0 {
		result.RemainingDays = 0
	}

	if len(curTotals) == 0 {
		result.ProjectedMonthTotal = result.BaselineTotal
		result.Accuracy = AccuracyVeryLow
		result.Confidence = 0.2
		return result
	}

	for _, total := range curTotals {
		result.MonthToDate += total
	}
	result.DailyAverage = result.MonthToDate / float64(len(curTotals))

	// Daily average carries the projection; the regression slope adjusts the
	// remaining days when spend is drifting within the month.
	slope, r2 := linearRegression(curTotals)
	result.GrowthRatePerDay = slope

	remainder := result.DailyAverage * float64(result.RemainingDays)
	if len(curTotals) >= 5 {
		projectedLast := result.DailyAverage + slope*float64(result.RemainingDays)/2
		if projectedLast > 0 {
			remainder = (result.DailyAverage + projectedLast) / 2 * float64(result.RemainingDays)
		}
	}
	result.ProjectedMonthTotal = result.MonthToDate + remainder

	_, curVolatility := meanVolatility(curTotals)
	volatility := math.Max(histVolatility, curVolatility)
	band := result.ProjectedMonthTotal * volatility / 100
	result.LowerBound = math.Max(result.MonthToDate, result.ProjectedMonthTotal-band)
	result.UpperBound = result.ProjectedMonthTotal + band

	if result.BaselineTotal > 0 {
		result.DeviationFromBaseline = (result.ProjectedMonthTotal - result.BaselineTotal) / result.BaselineTotal
		result.IsTrendingUp = result.DeviationFromBaseline > f.cfg.TrendingUpDeviation
	} else {
		result.IsTrendingUp = result.ProjectedMonthTotal > 0
	}

	for service, perDay := range serviceDailyAverages(current) {
		result.ServiceProjections[service] = perDay * float64(horizonDays)
	}

	result.Accuracy = f.assessAccuracy(len(histDates)+len(curDates), volatility)
	result.Confidence = f.confidence(result.Accuracy, r2)

	span.SetAttributes(
		attribute.Float64("projected_total", result.ProjectedMonthTotal),
		attribute.Bool("trending_up", result.IsTrendingUp),
		attribute.String("accuracy", string(result.Accuracy)),
	)
	return result
}

// assessAccuracy grades the projection by history depth and stability.
func (f *Forecaster) assessAccuracy(historyDays int, volatility float64) Accuracy {
	switch {
	case historyDays < f.cfg.MinHistoryDays:
		return AccuracyVeryLow
	case historyDays < f.cfg.AmpleHistoryDays/2:
		return AccuracyLow
	case historyDays < f.cfg.AmpleHistoryDays || volatility > f.cfg.StableVolatility:
		return AccuracyMedium
	default:
		return AccuracyHigh
	}
}

func (f *Forecaster) confidence(accuracy Accuracy, r2 float64) float64 {
	base := map[Accuracy]float64{
		AccuracyVeryLow: 0.2,
		AccuracyLow:     0.4,
		AccuracyMedium:  0.6,
		AccuracyHigh:    0.8,
	}[accuracy]
	return math.Min(base+r2*0.15, 0.95)
}

// linearRegression fits y = a + b*x over the index-ordered series and
// returns the slope with its coefficient of determination.
func linearRegression(values []float64) (slope, r2 float64) {
	n := float64(len(values))
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, y := range values {
		predicted := intercept + slope*float64(i)
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - predicted) * (y - predicted)
	}
	if ssTot == 0 {
		return slope, 0
	}
	return slope, math.Max(0, 1-ssRes/ssTot)
}

// dailySeries returns sorted dates and matching per-date totals.
func dailySeries(records []*costdata.UnifiedCostRecord) ([]string, []float64) {
	byDate := make(map[string]float64)
	for _, record := range records {
		byDate[record.Date] += record.TotalCost
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	totals := make([]float64, 0, len(dates))
	for _, date := range dates {
		totals = append(totals, byDate[date])
	}
	return dates, totals
}

// serviceDailyAverages returns each service's mean daily cost over the
// window.
func serviceDailyAverages(records []*costdata.UnifiedCostRecord) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, record := range records {
		for service, cost := range record.Services {
			sums[service] += cost.Cost
			counts[service]++
		}
	}

	out := make(map[string]float64, len(sums))
	for service, sum := range sums {
		out[service] = sum / float64(counts[service])
	}
	return out
}

// meanVolatility returns the mean and the coefficient of variation as a
// percentage.
func meanVolatility(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(variance / float64(len(values)))

	if mean == 0 {
		return 0, 0
	}
	return mean, stddev / mean * 100
}
