// Package trend computes growth, volatility, direction and seasonal
// patterns over unified cost record histories, per service and overall.
// Analysis never fails: insufficient history yields a defined default
// result instead of an error.
package trend

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

// Direction classifies where a cost series is heading.
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// Significance grades how strongly a directional call stands out from the
// series' own noise.
type Significance string

const (
	SignificanceNone   Significance = "none"
	SignificanceLow    Significance = "low"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

// SeasonalPattern classifies recurring weekly structure in spend.
type SeasonalPattern string

const (
	SeasonalNone        SeasonalPattern = "none"
	SeasonalWeekdayHigh SeasonalPattern = "weekday_heavy"
	SeasonalWeekendHigh SeasonalPattern = "weekend_heavy"
	SeasonalUnknown     SeasonalPattern = "insufficient_data"
)

// Trend describes one cost series.
type Trend struct {
	Service string `json:"service,omitempty"`

	// GrowthRate is the relative change of the recent week's mean daily
	// cost against the preceding period (0.25 = 25% growth).
	GrowthRate float64 `json:"growth_rate"`
	// Volatility is the coefficient of variation as a percentage.
	Volatility float64   `json:"volatility"`
	Direction  Direction `json:"direction"`
	// Significance grades the directional call from the growth magnitude
	// against the volatility; none means the move is within noise.
	Significance Significance `json:"significance"`
	// Confidence reflects how much history backs this trend, zero when the
	// series was too short to analyze.
	Confidence float64 `json:"confidence"`

	MeanDailyCost float64 `json:"mean_daily_cost"`
	DataPoints    int     `json:"data_points"`
}

// IsSignificant reports whether the directional call rises above noise.
func (t *Trend) IsSignificant() bool {
	return t.Significance != SignificanceNone
}

// Result is the output of one trend analysis run.
type Result struct {
	ClientID string `json:"client_id"`

	Overall  *Trend            `json:"overall"`
	Services map[string]*Trend `json:"services,omitempty"`

	Seasonal SeasonalPattern `json:"seasonal_pattern"`
	// WeekendRatio is weekend mean spend over weekday mean spend; only
	// meaningful when the seasonal pattern is not insufficient_data.
	WeekendRatio float64 `json:"weekend_ratio,omitempty"`

	// Confidence mirrors the overall trend's confidence.
	Confidence float64 `json:"trend_confidence"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Analyzer computes cost trends for one client at a time.
type Analyzer struct {
	cfg    config.TrendConfig
	logger *logger.Logger
	tracer trace.Tracer
}

// NewAnalyzer creates a trend analyzer. A zero-value config is replaced
// with the defaults.
func NewAnalyzer(cfg config.TrendConfig, log *logger.Logger) *Analyzer {
	if cfg.IncreaseBand == 0 {
		cfg = config.Default().Trend
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Analyzer{
		cfg:    cfg,
		logger: log.WithField("component", "trend_analyzer"),
		tracer: otel.Tracer("insights"),
	}
}

// AnalyzeTrends computes the overall and per-service trends over the given
// records. Fewer data points than the configured minimum produce a stable,
// non-significant default.
func (a *Analyzer) AnalyzeTrends(ctx context.Context, clientID string, records []*costdata.UnifiedCostRecord) *Result {
	_, span := a.tracer.Start(ctx, "insights.analyze_trends",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	result := &Result{
		ClientID:   clientID,
		Services:   make(map[string]*Trend),
		Seasonal:   SeasonalUnknown,
		AnalyzedAt: time.Now().UTC(),
	}

	dates, totals := dailySeries(records)
	result.Overall = a.computeTrend("", totals)
	result.Confidence = result.Overall.Confidence

	for service, series := range serviceDailySeries(records) {
		result.Services[service] = a.computeTrend(service, series)
	}

	if len(dates) >= a.cfg.SeasonalMinDays {
		result.Seasonal, result.WeekendRatio = seasonalPattern(dates, totals)
	}

	span.SetAttributes(
		attribute.String("overall_direction", string(result.Overall.Direction)),
		attribute.Int("service_count", len(result.Services)),
	)
	return result
}

// computeTrend derives one trend from a date-ordered daily cost series.
func (a *Analyzer) computeTrend(service string, series []float64) *Trend {
	trend := &Trend{
		Service:      service,
		Direction:    DirectionStable,
		Significance: SignificanceNone,
		DataPoints:   len(series),
	}
	if len(series) < a.cfg.MinDataPoints {
		// Too little history for any call; confidence stays zero.
		return trend
	}
	trend.Confidence = clamp01(0.4 + float64(len(series))/60)

	mean, stddev := meanStddev(series)
	trend.MeanDailyCost = mean
	if mean > 0 {
		trend.Volatility = stddev / mean * 100
	}

	// Recent week against everything before it; short series split in half.
	split := len(series) - 7
	if split < 1 {
		split = len(series) / 2
	}
	olderMean, _ := meanStddev(series[:split])
	recentMean, _ := meanStddev(series[split:])

	if olderMean > 0 {
		trend.GrowthRate = (recentMean - olderMean) / olderMean
		ratio := recentMean / olderMean
		switch {
		case ratio >= a.cfg.IncreaseBand:
			trend.Direction = DirectionIncreasing
		case ratio <= a.cfg.DecreaseBand:
			trend.Direction = DirectionDecreasing
		}
	} else if recentMean > 0 {
		trend.GrowthRate = 1
		trend.Direction = DirectionIncreasing
	}

	trend.Significance = significanceFor(trend, len(series))

	return trend
}

// significanceFor grades a directional call. The signal is the growth rate in
// percent; it has to clear half the series' volatility before the call counts
// at all, and clear the volatility by a wider margin to rank higher.
func significanceFor(t *Trend, points int) Significance {
	if t.Direction == DirectionStable || points < 7 {
		return SignificanceNone
	}
	signal := math.Abs(t.GrowthRate) * 100
	switch {
	case signal <= t.Volatility/2:
		return SignificanceNone
	case signal >= 50 && signal > 2*t.Volatility:
		return SignificanceHigh
	case signal >= 25 || signal > t.Volatility:
		return SignificanceMedium
	default:
		return SignificanceLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// seasonalPattern compares weekend and weekday mean spend.
func seasonalPattern(dates []string, totals []float64) (SeasonalPattern, float64) {
	var weekdaySum, weekendSum float64
	var weekdayCount, weekendCount int
	for i, date := range dates {
		day, err := time.Parse(costdata.DateFormat, date)
		if err != nil {
			continue
		}
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			weekendSum += totals[i]
			weekendCount++
		} else {
			weekdaySum += totals[i]
			weekdayCount++
		}
	}
	if weekdayCount == 0 || weekendCount == 0 {
		return SeasonalUnknown, 0
	}

	weekdayMean := weekdaySum / float64(weekdayCount)
	weekendMean := weekendSum / float64(weekendCount)
	if weekdayMean == 0 {
		return SeasonalUnknown, 0
	}

	ratio := weekendMean / weekdayMean
	switch {
	case ratio <= 0.8:
		return SeasonalWeekdayHigh, ratio
	case ratio >= 1.25:
		return SeasonalWeekendHigh, ratio
	default:
		return SeasonalNone, ratio
	}
}

// dailySeries returns sorted dates and the matching per-date totals.
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

// serviceDailySeries returns each service's date-ordered daily cost series.
func serviceDailySeries(records []*costdata.UnifiedCostRecord) map[string][]float64 {
	sorted := make([]*costdata.UnifiedCostRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	series := make(map[string][]float64)
	for _, record := range sorted {
		for service, cost := range record.Services {
			series[service] = append(series[service], cost.Cost)
		}
	}
	return series
}

func meanStddev(values []float64) (float64, float64) {
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
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
