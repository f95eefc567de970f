// Package anomaly detects cost irregularities by comparing a current window
// of unified cost records against a historical baseline. Detection is
// statistical and rule based: spikes against a mean/sigma baseline, service
// appearance and disappearance against cost floors, and cumulative spend
// against the client budget.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
)

// Detector runs anomaly detection for one client at a time.
type Detector struct {
	cfg    config.AnomalyConfig
	logger *logger.Logger
	tracer trace.Tracer
}

// NewDetector creates a detector. A zero-value config is replaced with the
// defaults.
func NewDetector(cfg config.AnomalyConfig, log *logger.Logger) *Detector {
	if cfg.SpikeSigma == 0 {
		cfg = config.Default().Anomaly
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Detector{
		cfg:    cfg,
		logger: log.WithField("component", "anomaly_detector"),
		tracer: otel.Tracer("insights"),
	}
}

// DetectAnomalies compares the current records against the historical
// baseline. With fewer historical points than the configured minimum the
// result is empty rather than noisy: there is no baseline to deviate from.
// Budget checks run against the current calendar month when a budget is set.
func (d *Detector) DetectAnomalies(ctx context.Context, clientID string, historical, current []*costdata.UnifiedCostRecord, budget *clients.BudgetInfo) *Result {
	_, span := d.tracer.Start(ctx, "insights.detect_anomalies",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	result := &Result{
		ClientID:       clientID,
		Anomalies:      []*Anomaly{},
		HistoricalDays: countDays(historical),
		CurrentDays:    countDays(current),
		BySeverity:     make(map[Severity]int),
		AnalyzedAt:     time.Now().UTC(),
	}

	if result.HistoricalDays < d.cfg.MinHistoricalPoints {
		d.logger.WithField(logger.FieldClientID, clientID).
			Debug("only %d historical days available, skipping detection", result.HistoricalDays)
		return result
	}

	result.Anomalies = append(result.Anomalies, d.detectTotalSpikes(clientID, historical, current)...)
	result.Anomalies = append(result.Anomalies, d.detectServiceSpikes(clientID, historical, current)...)
	result.Anomalies = append(result.Anomalies, d.detectNewServices(clientID, historical, current)...)
	result.Anomalies = append(result.Anomalies, d.detectDisappearances(clientID, historical, current)...)
	if budget != nil && budget.MonthlyBudget > 0 {
		if a := d.detectBudgetDeviation(clientID, current, budget); a != nil {
			result.Anomalies = append(result.Anomalies, a)
		}
	}

	sort.SliceStable(result.Anomalies, func(i, j int) bool {
		return severityRank[result.Anomalies[i].Severity] > severityRank[result.Anomalies[j].Severity]
	})
	for _, a := range result.Anomalies {
		result.BySeverity[a.Severity]++
	}

	span.SetAttributes(attribute.Int("anomaly_count", len(result.Anomalies)))
	return result
}

// detectTotalSpikes flags current daily totals above mean + sigma*stddev of
// the historical daily totals.
func (d *Detector) detectTotalSpikes(clientID string, historical, current []*costdata.UnifiedCostRecord) []*Anomaly {
	baseline := dailyTotals(historical)
	mean, stddev := meanStddev(baseline)
	if stddev == 0 {
		// A flat baseline makes sigma thresholds meaningless; fall back to a
		// fraction of the mean so genuinely flat spend still catches jumps.
		stddev = math.Max(mean*0.1, 1)
	}
	threshold := mean + d.cfg.SpikeSigma*stddev

	var out []*Anomaly
	for date, total := range dailyTotalsByDate(current) {
		if total <= threshold {
			continue
		}
		z := (total - mean) / stddev
		out = append(out, &Anomaly{
			ID:            uuid.New().String(),
			ClientID:      clientID,
			Type:          TypeCostSpike,
			Severity:      spikeSeverity(z),
			Description:   fmt.Sprintf("total cost %.2f on %s is %.1f standard deviations above the %.2f baseline", total, date, z, mean),
			CurrentValue:  total,
			ExpectedValue: mean,
			Deviation:     safeRatio(total-mean, mean),
			Confidence:    spikeConfidence(len(baseline), z),
			RecommendedActions: []string{
				"Review the service cost breakdown for this date",
				"Check for unplanned resource launches or scaling events",
				"Verify no pricing or billing changes took effect",
			},
			DetectedAt: time.Now().UTC(),
			Metadata:   map[string]interface{}{"date": date, "z_score": z},
		})
	}
	return out
}

// detectServiceSpikes applies the same sigma test per service.
func (d *Detector) detectServiceSpikes(clientID string, historical, current []*costdata.UnifiedCostRecord) []*Anomaly {
	baselines := serviceSeries(historical)
	latest := latestServiceCosts(current)

	var out []*Anomaly
	for service, cost := range latest {
		series, ok := baselines[service]
		if !ok || len(series) < d.cfg.MinHistoricalPoints {
			continue
		}
		mean, stddev := meanStddev(series)
		if stddev == 0 {
			stddev = math.Max(mean*0.1, 1)
		}
		if cost <= mean+d.cfg.SpikeSigma*stddev {
			continue
		}
		z := (cost - mean) / stddev
		out = append(out, &Anomaly{
			ID:            uuid.New().String(),
			ClientID:      clientID,
			Type:          TypeCostSpike,
			Severity:      spikeSeverity(z),
			Service:       service,
			Description:   fmt.Sprintf("%s cost %.2f is %.1f standard deviations above its %.2f baseline", service, cost, z, mean),
			CurrentValue:  cost,
			ExpectedValue: mean,
			Deviation:     safeRatio(cost-mean, mean),
			Confidence:    spikeConfidence(len(series), z),
			RecommendedActions: []string{
				fmt.Sprintf("Inspect recent usage changes in %s", service),
				"Check for runaway workloads or misconfigured autoscaling",
			},
			DetectedAt: time.Now().UTC(),
			Metadata:   map[string]interface{}{"z_score": z},
		})
	}
	return out
}

// detectNewServices flags services appearing in the current window with
// meaningful spend and no historical presence.
func (d *Detector) detectNewServices(clientID string, historical, current []*costdata.UnifiedCostRecord) []*Anomaly {
	known := make(map[string]bool)
	for _, record := range historical {
		for service := range record.Services {
			known[service] = true
		}
	}

	var out []*Anomaly
	for service, cost := range latestServiceCosts(current) {
		if known[service] || cost < d.cfg.NewServiceCostFloor {
			continue
		}
		out = append(out, &Anomaly{
			ID:            uuid.New().String(),
			ClientID:      clientID,
			Type:          TypeNewService,
			Severity:      SeverityMedium,
			Service:       service,
			Description:   fmt.Sprintf("%s appeared with %.2f/day and no prior usage", service, cost),
			CurrentValue:  cost,
			ExpectedValue: 0,
			Deviation:     1,
			Confidence:    0.8,
			RecommendedActions: []string{
				fmt.Sprintf("Confirm %s usage is intentional", service),
				"Tag the new resources with an owner and cost center",
			},
			DetectedAt: time.Now().UTC(),
		})
	}
	return out
}

// detectDisappearances flags services with meaningful historical spend that
// vanished from the current window.
func (d *Detector) detectDisappearances(clientID string, historical, current []*costdata.UnifiedCostRecord) []*Anomaly {
	active := make(map[string]bool)
	for _, record := range current {
		for service := range record.Services {
			active[service] = true
		}
	}

	var out []*Anomaly
	for service, series := range serviceSeries(historical) {
		if active[service] {
			continue
		}
		mean, _ := meanStddev(series)
		if mean < d.cfg.DisappearanceCostFloor {
			continue
		}
		out = append(out, &Anomaly{
			ID:            uuid.New().String(),
			ClientID:      clientID,
			Type:          TypeDisappearance,
			Severity:      SeverityMedium,
			Service:       service,
			Description:   fmt.Sprintf("%s averaged %.2f/day historically but reports no current cost", service, mean),
			CurrentValue:  0,
			ExpectedValue: mean,
			Deviation:     1,
			Confidence:    0.7,
			RecommendedActions: []string{
				fmt.Sprintf("Verify %s workloads were decommissioned intentionally", service),
				"Check billing account and permission changes that could hide usage",
			},
			DetectedAt: time.Now().UTC(),
		})
	}
	return out
}

// detectBudgetDeviation compares cumulative month-to-date spend against the
// pro-rated monthly budget.
func (d *Detector) detectBudgetDeviation(clientID string, current []*costdata.UnifiedCostRecord, budget *clients.BudgetInfo) *Anomaly {
	now := time.Now().UTC()
	monthPrefix := now.Format("2006-01")

	var spent float64
	for _, record := range current {
		if len(record.Date) >= 7 && record.Date[:7] == monthPrefix {
			spent += record.TotalCost
		}
	}
	if spent == 0 {
		return nil
	}

	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	expected := budget.MonthlyBudget * float64(now.Day()) / float64(daysInMonth)
	if expected <= 0 {
		return nil
	}

	overrun := (spent - expected) / expected
	if overrun < d.cfg.BudgetWarnRatio {
		return nil
	}

	severity := SeverityMedium
	if overrun >= d.cfg.BudgetHighRatio {
		severity = SeverityHigh
	}
	if spent > budget.MonthlyBudget {
		severity = SeverityCritical
	}

	return &Anomaly{
		ID:            uuid.New().String(),
		ClientID:      clientID,
		Type:          TypeBudgetDeviation,
		Severity:      severity,
		Description:   fmt.Sprintf("month-to-date spend %.2f is %.0f%% above the pro-rated budget %.2f", spent, overrun*100, expected),
		CurrentValue:  spent,
		ExpectedValue: expected,
		Deviation:     overrun,
		Confidence:    0.9,
		RecommendedActions: []string{
			"Review the largest cost drivers for this month",
			"Adjust the monthly budget or reduce discretionary usage",
			"Enable budget alerts for earlier warning",
		},
		DetectedAt: time.Now().UTC(),
		Metadata: map[string]interface{}{
			"monthly_budget": budget.MonthlyBudget,
			"currency":       budget.Currency,
		},
	}
}

// spikeSeverity bands the z-score into severities.
func spikeSeverity(z float64) Severity {
	switch {
	case z >= 4:
		return SeverityCritical
	case z >= 3:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// spikeConfidence grows with sample size and deviation magnitude, capped
// below certainty.
func spikeConfidence(samples int, z float64) float64 {
	confidence := 0.5 + float64(samples)/100 + z/20
	return math.Min(confidence, 0.95)
}

func countDays(records []*costdata.UnifiedCostRecord) int {
	dates := make(map[string]bool)
	for _, record := range records {
		dates[record.Date] = true
	}
	return len(dates)
}

// dailyTotals returns per-date total cost in date order.
func dailyTotals(records []*costdata.UnifiedCostRecord) []float64 {
	byDate := dailyTotalsByDate(records)
	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	totals := make([]float64, 0, len(dates))
	for _, date := range dates {
		totals = append(totals, byDate[date])
	}
	return totals
}

// dailyTotalsByDate sums records sharing a date across providers.
func dailyTotalsByDate(records []*costdata.UnifiedCostRecord) map[string]float64 {
	byDate := make(map[string]float64)
	for _, record := range records {
		byDate[record.Date] += record.TotalCost
	}
	return byDate
}

// serviceSeries returns each service's per-date cost series in date order.
func serviceSeries(records []*costdata.UnifiedCostRecord) map[string][]float64 {
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

// latestServiceCosts returns per-service costs of the most recent date in
// the window.
func latestServiceCosts(records []*costdata.UnifiedCostRecord) map[string]float64 {
	latestDate := ""
	for _, record := range records {
		if record.Date > latestDate {
			latestDate = record.Date
		}
	}

	out := make(map[string]float64)
	for _, record := range records {
		if record.Date != latestDate {
			continue
		}
		for service, cost := range record.Services {
			out[service] += cost.Cost
		}
	}
	return out
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

func safeRatio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
