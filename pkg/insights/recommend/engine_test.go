package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/insights/anomaly"
	"github.com/jscharber/costlens/pkg/insights/forecast"
	"github.com/jscharber/costlens/pkg/insights/trend"
)

// daysOfService builds n consecutive daily records with one service at cost.
func daysOfService(service string, category string, n int, cost float64) []*costdata.UnifiedCostRecord {
	day, _ := time.Parse(costdata.DateFormat, "2026-08-01")
	var out []*costdata.UnifiedCostRecord
	for i := 0; i < n; i++ {
		out = append(out, &costdata.UnifiedCostRecord{
			ClientID:  "acme-corp",
			Provider:  costdata.ProviderAWS,
			Date:      day.AddDate(0, 0, i).Format(costdata.DateFormat),
			TotalCost: cost,
			Services: map[string]costdata.ServiceCost{
				service: {Cost: cost, UnifiedCategory: category},
			},
		})
	}
	return out
}

func TestGenerateFromIdleServices(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	// $2/day for 10 days: persistent low spend.
	inputs := &Inputs{Records: daysOfService("AWS CloudTrail", costdata.CategoryManagement, 10, 2)}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	var rec *Recommendation
	for _, candidate := range result.Recommendations {
		if candidate.Category == CategoryCostOptimization {
			rec = candidate
		}
	}
	require.NotNil(t, rec)
	assert.Equal(t, []string{"AWS CloudTrail"}, rec.AffectedServices)
	assert.InDelta(t, 30, rec.EstimatedSavings, 0.0001) // half of the $60 monthly run rate
	assert.NotEmpty(t, rec.Priority)
	assert.Greater(t, rec.Score, 0.0)
}

func TestGenerateFromConcentration(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	day, _ := time.Parse(costdata.DateFormat, "2026-08-01")
	var records []*costdata.UnifiedCostRecord
	for i := 0; i < 10; i++ {
		records = append(records, &costdata.UnifiedCostRecord{
			ClientID: "acme-corp",
			Provider: costdata.ProviderAWS,
			Date:     day.AddDate(0, 0, i).Format(costdata.DateFormat),
			Services: map[string]costdata.ServiceCost{
				"Amazon Elastic Compute Cloud - Compute": {Cost: 80, UnifiedCategory: costdata.CategoryCompute},
				"Amazon Simple Storage Service":          {Cost: 20, UnifiedCategory: costdata.CategoryStorage},
			},
		})
	}

	result := engine.GenerateRecommendations(context.Background(), "acme-corp", &Inputs{Records: records})

	var rightsizing *Recommendation
	for _, rec := range result.Recommendations {
		if rec.Category == CategoryRightsizing {
			rightsizing = rec
		}
	}
	require.NotNil(t, rightsizing, "compute holds 80% of spend")
	assert.Equal(t, []string{"Amazon Elastic Compute Cloud - Compute"}, rightsizing.AffectedServices)
	assert.InDelta(t, 120, rightsizing.EstimatedSavings, 0.0001) // 15% of the $800 compute total
}

func TestGenerateFromStableSpendCommitment(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	inputs := &Inputs{
		Trends: &trend.Result{
			Services: map[string]*trend.Trend{
				"Compute Engine": {Service: "Compute Engine", MeanDailyCost: 100, Volatility: 5, Direction: trend.DirectionStable},
			},
		},
	}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	require.Len(t, result.Recommendations, 1)
	rec := result.Recommendations[0]
	assert.Equal(t, CategoryCommitment, rec.Category)
	assert.InDelta(t, 900, rec.EstimatedSavings, 0.0001) // 30% of the $3000 monthly run rate
}

func TestGenerateFromTrendsGrowthNeedsSignificance(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	inputs := &Inputs{
		Trends: &trend.Result{
			Services: map[string]*trend.Trend{
				"Cloud SQL": {
					Service: "Cloud SQL", MeanDailyCost: 100, GrowthRate: 0.4,
					Direction: trend.DirectionIncreasing, Significance: trend.SignificanceMedium,
				},
				"Cloud CDN": {
					Service: "Cloud CDN", MeanDailyCost: 100, GrowthRate: 0.15,
					Direction: trend.DirectionIncreasing, Significance: trend.SignificanceNone,
				},
			},
		},
	}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	require.Len(t, result.Recommendations, 1, "growth within noise produces no work item")
	rec := result.Recommendations[0]
	assert.Equal(t, CategoryTrendResponse, rec.Category)
	assert.Equal(t, []string{"Cloud SQL"}, rec.AffectedServices)
}

func TestGenerateFromAnomaliesHighSeverityOnly(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	inputs := &Inputs{
		Anomalies: &anomaly.Result{
			Anomalies: []*anomaly.Anomaly{
				{Type: anomaly.TypeCostSpike, Severity: anomaly.SeverityCritical, Service: "Cloud SQL",
					CurrentValue: 500, ExpectedValue: 100, Deviation: 4, Confidence: 0.9},
				{Type: anomaly.TypeNewService, Severity: anomaly.SeverityMedium, Service: "Cloud Armor",
					CurrentValue: 15, Confidence: 0.8},
			},
		},
	}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	require.Len(t, result.Recommendations, 1, "medium severity anomalies do not generate recommendations")
	rec := result.Recommendations[0]
	assert.Equal(t, CategoryAnomalyResponse, rec.Category)
	assert.InDelta(t, 1.0, rec.Urgency, 0.0001)
	assert.Equal(t, []string{"Cloud SQL"}, rec.AffectedServices)
}

func TestGenerateFromForecastBudgetBreach(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	inputs := &Inputs{
		Forecast: &forecast.Result{
			ProjectedMonthTotal:   4500,
			BaselineTotal:         3000,
			DeviationFromBaseline: 0.5,
			IsTrendingUp:          true,
			Confidence:            0.8,
		},
		Client: &clients.ClientConfig{
			ClientID: "acme-corp",
			Budget:   &clients.BudgetInfo{MonthlyBudget: 4000, Currency: "USD"},
		},
	}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	require.Len(t, result.Recommendations, 1)
	rec := result.Recommendations[0]
	assert.Equal(t, CategoryBudgetControl, rec.Category)
	assert.InDelta(t, 1.0, rec.Urgency, 0.0001, "projection over budget escalates urgency")
	assert.Contains(t, rec.Description, "monthly budget")
	assert.InDelta(t, 750, rec.EstimatedSavings, 0.0001)
}

func TestGenerateDropsLowConfidence(t *testing.T) {
	cfg := config.Default().Recommendation
	cfg.MinConfidence = 0.95
	engine := NewEngine(cfg, nil)

	inputs := &Inputs{Records: daysOfService("AWS CloudTrail", costdata.CategoryManagement, 10, 2)}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	assert.Empty(t, result.Recommendations)
	assert.Equal(t, result.GeneratedCount, result.DroppedCount)
}

func TestGenerateCapsRecommendationCount(t *testing.T) {
	cfg := config.Default().Recommendation
	cfg.MaxRecommendations = 2
	engine := NewEngine(cfg, nil)

	trends := &trend.Result{Services: map[string]*trend.Trend{}}
	for _, service := range []string{"svc-a", "svc-b", "svc-c", "svc-d"} {
		trends.Services[service] = &trend.Trend{
			Service: service, MeanDailyCost: 100, Volatility: 5, Direction: trend.DirectionStable,
		}
	}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", &Inputs{Trends: trends})

	assert.Equal(t, 4, result.GeneratedCount)
	assert.Len(t, result.Recommendations, 2)
	assert.Equal(t, 2, result.DroppedCount)
}

func TestGenerateIsSortedByScore(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	inputs := &Inputs{
		Records: daysOfService("AWS CloudTrail", costdata.CategoryManagement, 10, 2),
		Anomalies: &anomaly.Result{
			Anomalies: []*anomaly.Anomaly{
				{Type: anomaly.TypeCostSpike, Severity: anomaly.SeverityCritical, Service: "Cloud SQL",
					CurrentValue: 500, ExpectedValue: 100, Deviation: 4, Confidence: 0.9},
			},
		},
	}
	result := engine.GenerateRecommendations(context.Background(), "acme-corp", inputs)

	require.GreaterOrEqual(t, len(result.Recommendations), 2)
	for i := 1; i < len(result.Recommendations); i++ {
		assert.GreaterOrEqual(t, result.Recommendations[i-1].Score, result.Recommendations[i].Score)
	}
}

func TestDeduplicateKeepsHigherSavings(t *testing.T) {
	recs := []*Recommendation{
		{Category: CategoryCommitment, AffectedServices: []string{"Compute Engine"}, EstimatedSavings: 100, ConfidenceScore: 0.9},
		{Category: CategoryCommitment, AffectedServices: []string{"Compute Engine"}, EstimatedSavings: 300, ConfidenceScore: 0.5},
	}

	out := Deduplicate(recs)

	require.Len(t, out, 1)
	assert.InDelta(t, 300, out[0].EstimatedSavings, 0.0001)
}

func TestDeduplicateTieKeepsHigherConfidence(t *testing.T) {
	recs := []*Recommendation{
		{Category: CategoryCommitment, AffectedServices: []string{"Compute Engine"}, EstimatedSavings: 100, ConfidenceScore: 0.5},
		{Category: CategoryCommitment, AffectedServices: []string{"Compute Engine"}, EstimatedSavings: 100, ConfidenceScore: 0.9},
	}

	out := Deduplicate(recs)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.9, out[0].ConfidenceScore, 0.0001)
}

func TestDeduplicateDistinctKeysSurvive(t *testing.T) {
	recs := []*Recommendation{
		{Category: CategoryCommitment, AffectedServices: []string{"Compute Engine"}, EstimatedSavings: 100},
		{Category: CategoryRightsizing, AffectedServices: []string{"Compute Engine"}, EstimatedSavings: 100},
		{Category: CategoryCommitment, AffectedServices: []string{"Cloud SQL"}, EstimatedSavings: 100},
		// Service order must not matter.
		{Category: CategoryCommitment, AffectedServices: []string{"b", "a"}, EstimatedSavings: 50},
		{Category: CategoryCommitment, AffectedServices: []string{"a", "b"}, EstimatedSavings: 80},
	}

	out := Deduplicate(recs)

	assert.Len(t, out, 4)
}

func TestScoreWeightsAndPriorityBands(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	rec := &Recommendation{
		Category:        CategoryCostOptimization,
		CostImpact:      1,
		EaseOfImplement: 1,
		ConfidenceScore: 1,
		Urgency:         1,
	}
	engine.score(rec, nil)
	// 0.3 + 0.2 + 0.2 + 0.15 + 0.5*0.15 with default business alignment.
	assert.InDelta(t, 0.925, rec.Score, 0.0001)
	assert.Equal(t, PriorityCritical, rec.Priority)

	weak := &Recommendation{Category: CategoryCostOptimization, ConfidenceScore: 0.3}
	engine.score(weak, nil)
	assert.Equal(t, PriorityLow, weak.Priority)
}

func TestScoreBusinessAlignmentByClientPosture(t *testing.T) {
	engine := NewEngine(config.Default().Recommendation, nil)

	costConscious := &clients.ClientConfig{Context: &clients.ClientContext{CostConscious: true}}
	rec := &Recommendation{Category: CategoryCostOptimization, ConfidenceScore: 0.5}
	engine.score(rec, costConscious)
	assert.InDelta(t, 0.8, rec.BusinessAlignment, 0.0001)

	growing := &clients.ClientConfig{Context: &clients.ClientContext{Growing: true}}
	commitment := &Recommendation{Category: CategoryCommitment, ConfidenceScore: 0.5}
	engine.score(commitment, growing)
	assert.InDelta(t, 0.3, commitment.BusinessAlignment, 0.0001)
}
