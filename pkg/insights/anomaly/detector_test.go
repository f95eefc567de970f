package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
)

func dayRecord(date string, services map[string]float64) *costdata.UnifiedCostRecord {
	record := &costdata.UnifiedCostRecord{
		ClientID: "acme-corp",
		Provider: costdata.ProviderAWS,
		Date:     date,
		Currency: "USD",
		Services: make(map[string]costdata.ServiceCost),
	}
	for name, cost := range services {
		record.Services[name] = costdata.ServiceCost{Cost: cost, UnifiedCategory: costdata.CategoryCompute}
		record.TotalCost += cost
	}
	return record
}

// flatHistory builds days records ending yesterday, each costing dailyTotal.
func flatHistory(days int, dailyTotal float64) []*costdata.UnifiedCostRecord {
	now := time.Now().UTC()
	var out []*costdata.UnifiedCostRecord
	for i := days; i >= 1; i-- {
		date := now.AddDate(0, 0, -i).Format(costdata.DateFormat)
		out = append(out, dayRecord(date, map[string]float64{"Compute Engine": dailyTotal}))
	}
	return out
}

func todayRecord(services map[string]float64) *costdata.UnifiedCostRecord {
	return dayRecord(time.Now().UTC().Format(costdata.DateFormat), services)
}

func TestDetectAnomaliesInsufficientHistory(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)

	result := detector.DetectAnomalies(context.Background(), "acme-corp",
		flatHistory(3, 100), []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{"Compute Engine": 5000})}, nil)

	assert.Empty(t, result.Anomalies, "no baseline means no anomalies, however wild the current spend")
	assert.Equal(t, 3, result.HistoricalDays)
	assert.Empty(t, result.HighestSeverity())
}

func TestDetectTotalCostSpike(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)

	result := detector.DetectAnomalies(context.Background(), "acme-corp",
		flatHistory(10, 100), []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{"Compute Engine": 500})}, nil)

	require.NotEmpty(t, result.Anomalies)
	spike := result.Anomalies[0]
	assert.Equal(t, TypeCostSpike, spike.Type)
	assert.Equal(t, SeverityCritical, spike.Severity, "a 5x jump over a flat baseline is critical")
	assert.InDelta(t, 500, spike.CurrentValue, 0.0001)
	assert.InDelta(t, 100, spike.ExpectedValue, 0.0001)
	assert.InDelta(t, 4.0, spike.Deviation, 0.0001)
	assert.Greater(t, spike.Confidence, 0.5)
	assert.NotEmpty(t, spike.RecommendedActions)
}

func TestDetectNoSpikeOnStableSpend(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)

	result := detector.DetectAnomalies(context.Background(), "acme-corp",
		flatHistory(10, 100), []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{"Compute Engine": 105})}, nil)

	assert.Empty(t, result.Anomalies)
}

func TestDetectNewService(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)

	current := []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{
		"Compute Engine": 100,
		"Cloud Spanner":  25, // never seen before, above the $10 floor
		"Cloud Armor":    2,  // below the floor, ignored
	})}
	result := detector.DetectAnomalies(context.Background(), "acme-corp", flatHistory(10, 100), current, nil)

	var newServices []*Anomaly
	for _, a := range result.Anomalies {
		if a.Type == TypeNewService {
			newServices = append(newServices, a)
		}
	}
	require.Len(t, newServices, 1)
	assert.Equal(t, "Cloud Spanner", newServices[0].Service)
	assert.Equal(t, SeverityMedium, newServices[0].Severity)
}

func TestDetectServiceDisappearance(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)

	now := time.Now().UTC()
	var historical []*costdata.UnifiedCostRecord
	for i := 10; i >= 1; i-- {
		date := now.AddDate(0, 0, -i).Format(costdata.DateFormat)
		historical = append(historical, dayRecord(date, map[string]float64{
			"Compute Engine": 100,
			"Cloud SQL":      60, // above the $50 floor
			"Cloud Logging":  20, // below the floor
		}))
	}
	current := []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{"Compute Engine": 100})}

	result := detector.DetectAnomalies(context.Background(), "acme-corp", historical, current, nil)

	var gone []*Anomaly
	for _, a := range result.Anomalies {
		if a.Type == TypeDisappearance {
			gone = append(gone, a)
		}
	}
	require.Len(t, gone, 1)
	assert.Equal(t, "Cloud SQL", gone[0].Service)
	assert.InDelta(t, 60, gone[0].ExpectedValue, 0.0001)
}

func TestDetectBudgetOverrunCritical(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)
	budget := &clients.BudgetInfo{MonthlyBudget: 1000, Currency: "USD"}

	// Spend past the full monthly budget is critical regardless of the day.
	current := []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{"Compute Engine": 1500})}
	result := detector.DetectAnomalies(context.Background(), "acme-corp", flatHistory(10, 10), current, budget)

	var deviation *Anomaly
	for _, a := range result.Anomalies {
		if a.Type == TypeBudgetDeviation {
			deviation = a
		}
	}
	require.NotNil(t, deviation)
	assert.Equal(t, SeverityCritical, deviation.Severity)
	assert.InDelta(t, 1500, deviation.CurrentValue, 0.0001)
}

func TestDetectBudgetWithinToleranceSilent(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)
	// Spend is a tiny fraction of the pro-rated budget.
	budget := &clients.BudgetInfo{MonthlyBudget: 100000, Currency: "USD"}

	current := []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{"Compute Engine": 10})}
	result := detector.DetectAnomalies(context.Background(), "acme-corp", flatHistory(10, 10), current, budget)

	for _, a := range result.Anomalies {
		assert.NotEqual(t, TypeBudgetDeviation, a.Type)
	}
}

func TestAnomaliesSortedBySeverity(t *testing.T) {
	detector := NewDetector(config.Default().Anomaly, nil)
	budget := &clients.BudgetInfo{MonthlyBudget: 1000, Currency: "USD"}

	// Mixes a critical budget overrun with a medium new-service finding.
	current := []*costdata.UnifiedCostRecord{todayRecord(map[string]float64{
		"Compute Engine": 100,
		"Cloud Spanner":  1500,
	})}
	result := detector.DetectAnomalies(context.Background(), "acme-corp", flatHistory(10, 100), current, budget)

	require.GreaterOrEqual(t, len(result.Anomalies), 2)
	for i := 1; i < len(result.Anomalies); i++ {
		assert.GreaterOrEqual(t,
			severityRank[result.Anomalies[i-1].Severity],
			severityRank[result.Anomalies[i].Severity])
	}
	assert.Equal(t, SeverityCritical, result.HighestSeverity())
	assert.Positive(t, result.BySeverity[SeverityCritical])
}

func TestSpikeSeverityBands(t *testing.T) {
	assert.Equal(t, SeverityMedium, spikeSeverity(2.5))
	assert.Equal(t, SeverityHigh, spikeSeverity(3.2))
	assert.Equal(t, SeverityCritical, spikeSeverity(4.5))
}

func TestMeanStddev(t *testing.T) {
	mean, stddev := meanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, mean, 0.0001)
	assert.InDelta(t, 2, stddev, 0.0001)

	mean, stddev = meanStddev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}
