package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/insights/anomaly"
	"github.com/jscharber/costlens/pkg/insights/forecast"
	"github.com/jscharber/costlens/pkg/insights/recommend"
	"github.com/jscharber/costlens/pkg/insights/trend"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(config.Default().Insights, nil)
}

func TestAggregateAnomalyCategories(t *testing.T) {
	agg := newTestAggregator()
	now := time.Now().UTC()

	anomalies := &anomaly.Result{
		ClientID: "client-1",
		Anomalies: []*anomaly.Anomaly{
			{
				Type:        anomaly.TypeCostSpike,
				Severity:    anomaly.SeverityHigh,
				Service:     "Amazon OpenSearch Service",
				Description: "daily spend jumped",
				Deviation:   2.5,
				Confidence:  0.8,
				DetectedAt:  now,
			},
			{
				Type:        anomaly.TypeBudgetDeviation,
				Severity:    anomaly.SeverityCritical,
				Description: "spend exceeds the monthly budget",
				Deviation:   0.5,
				Confidence:  0.95,
				DetectedAt:  now,
			},
		},
	}

	insights := agg.Aggregate("client-1", anomalies, nil, nil, nil)
	require.Len(t, insights, 2)

	spike := insights[0]
	assert.Equal(t, CategoryAnomaly, spike.Category)
	assert.Equal(t, "Cost spike detected in Amazon OpenSearch Service", spike.Title)
	assert.Equal(t, 0.8, spike.Severity)
	assert.Equal(t, []string{"Amazon OpenSearch Service"}, spike.AffectedServices)
	assert.Equal(t, 1.0, spike.BusinessImpact, "deviation is clamped into the unit range")
	assert.Equal(t, "anomaly_detection", spike.Source)

	budget := insights[1]
	assert.Equal(t, CategoryBudget, budget.Category, "budget deviations land in the budget category")
	assert.Equal(t, "Spend is running ahead of budget", budget.Title)
	assert.Equal(t, 1.0, budget.Severity)
	assert.Empty(t, budget.AffectedServices)
}

func TestAggregateTrendsOnlySignificant(t *testing.T) {
	agg := newTestAggregator()
	now := time.Now().UTC()

	trends := &trend.Result{
		ClientID: "client-1",
		Overall: &trend.Trend{
			GrowthRate:    0.4,
			Direction:     trend.DirectionIncreasing,
			Significance:  trend.SignificanceMedium,
			Confidence:    0.4 + 21.0/60,
			MeanDailyCost: 120,
			DataPoints:    21,
		},
		Services: map[string]*trend.Trend{
			"Cloud SQL": {
				Service:      "Cloud SQL",
				GrowthRate:   0.1,
				Direction:    trend.DirectionIncreasing,
				Significance: trend.SignificanceNone,
				DataPoints:   21,
			},
		},
		AnalyzedAt: now,
	}

	insights := agg.Aggregate("client-1", nil, trends, nil, nil)
	require.Len(t, insights, 1, "non-significant trends are dropped")

	overall := insights[0]
	assert.Equal(t, CategoryTrend, overall.Category)
	assert.Equal(t, "total spend is growing 40% week over week", overall.Title)
	assert.Equal(t, 0.6, overall.Severity)
	assert.InDelta(t, 0.4+21.0/60, overall.Confidence, 1e-9)
	assert.InDelta(t, 0.4, overall.BusinessImpact, 1e-9)
}

func TestAggregateTrendSeverityEscalatesWithSignificance(t *testing.T) {
	agg := newTestAggregator()

	steep := agg.trendInsight("client-1", "total spend", &trend.Trend{
		GrowthRate:   0.8,
		Direction:    trend.DirectionIncreasing,
		Significance: trend.SignificanceHigh,
		Confidence:   0.6,
		DataPoints:   14,
	}, time.Now().UTC())
	assert.Equal(t, 0.8, steep.Severity)
	assert.Equal(t, 0.6, steep.Confidence)

	shrinking := agg.trendInsight("client-1", "Cloud CDN", &trend.Trend{
		Service:      "Cloud CDN",
		GrowthRate:   -0.3,
		Direction:    trend.DirectionDecreasing,
		Significance: trend.SignificanceMedium,
		DataPoints:   14,
	}, time.Now().UTC())
	assert.Equal(t, 0.4, shrinking.Severity)
	assert.Contains(t, shrinking.Title, "shrinking 30%")
}

func TestAggregateForecastSeverity(t *testing.T) {
	agg := newTestAggregator()
	now := time.Now().UTC()

	assert.Empty(t, agg.Aggregate("client-1", nil, nil, nil, nil))
	assert.Empty(t, agg.Aggregate("client-1", nil, nil, &forecast.Result{}, nil),
		"a zero projection yields no forecast insight")

	flat := agg.Aggregate("client-1", nil, nil, &forecast.Result{
		ProjectedMonthTotal:   3000,
		BaselineTotal:         3000,
		DeviationFromBaseline: 0,
		Confidence:            0.7,
		Accuracy:              forecast.AccuracyHigh,
		AnalyzedAt:            now,
	}, nil)
	require.Len(t, flat, 1)
	assert.Equal(t, CategoryForecast, flat[0].Category)
	assert.Equal(t, 0.4, flat[0].Severity)

	trendingUp := agg.Aggregate("client-1", nil, nil, &forecast.Result{
		ProjectedMonthTotal:   4500,
		BaselineTotal:         3000,
		DeviationFromBaseline: 0.5,
		IsTrendingUp:          true,
		Confidence:            0.7,
		Accuracy:              forecast.AccuracyMedium,
		AnalyzedAt:            now,
	}, nil)
	require.Len(t, trendingUp, 1)
	assert.Equal(t, 0.8, trendingUp[0].Severity, "a third above baseline reads as high severity")
	assert.Equal(t, true, trendingUp[0].Metadata["is_trending_up"])
}

func TestAggregateRecommendations(t *testing.T) {
	agg := newTestAggregator()
	now := time.Now().UTC()

	recs := &recommend.Result{
		ClientID: "client-1",
		Recommendations: []*recommend.Recommendation{{
			Category:         recommend.CategoryCommitment,
			Priority:         recommend.PriorityHigh,
			Title:            "Commit stable compute spend to savings plans",
			Description:      "Spend has been stable for a month.",
			AffectedServices: []string{"Amazon Elastic Compute Cloud - Compute"},
			EstimatedSavings: 900,
			ConfidenceScore:  0.7,
			CostImpact:       0.6,
			EaseOfImplement:  0.5,
			Actions:          []string{"Review savings plan coverage"},
			CreatedAt:        now,
		}},
	}

	insights := agg.Aggregate("client-1", nil, nil, nil, recs)
	require.Len(t, insights, 1)

	opt := insights[0]
	assert.Equal(t, CategoryOptimization, opt.Category)
	assert.Equal(t, 0.8, opt.Severity, "priority label maps onto the severity scale")
	assert.Equal(t, 900.0, opt.EstimatedSavings)
	assert.Equal(t, 0.5, opt.Actionability)
	assert.Equal(t, "commitment", opt.Metadata["recommendation_category"])
}

func TestDeduplicateKeepsHigherConfidence(t *testing.T) {
	agg := newTestAggregator()
	now := time.Now().UTC()

	// The more severe duplicate still loses when it is the less certain one.
	shaky := &Insight{
		ID:               "shaky",
		Category:         CategoryAnomaly,
		Title:            "Cost spike detected in Cloud SQL",
		Severity:         0.8,
		Confidence:       0.6,
		AffectedServices: []string{"Cloud SQL"},
		CreatedAt:        now,
	}
	solid := &Insight{
		ID:               "solid",
		Category:         CategoryAnomaly,
		Title:            "Cost spike detected in Cloud SQL",
		Severity:         0.6,
		Confidence:       0.9,
		AffectedServices: []string{"Cloud SQL"},
		CreatedAt:        now,
	}

	kept := agg.deduplicate([]*Insight{shaky, solid})
	require.Len(t, kept, 1)
	assert.Equal(t, "solid", kept[0].ID)
}

func TestDeduplicateTieBreaksOnBusinessImpact(t *testing.T) {
	agg := newTestAggregator()

	minor := &Insight{
		ID:               "minor",
		Category:         CategoryAnomaly,
		Title:            "Cost spike detected in Cloud SQL",
		Confidence:       0.8,
		BusinessImpact:   0.3,
		AffectedServices: []string{"Cloud SQL"},
	}
	major := &Insight{
		ID:               "major",
		Category:         CategoryAnomaly,
		Title:            "Cost spike detected in Cloud SQL",
		Confidence:       0.8,
		BusinessImpact:   0.7,
		AffectedServices: []string{"Cloud SQL"},
	}

	kept := agg.deduplicate([]*Insight{minor, major})
	require.Len(t, kept, 1)
	assert.Equal(t, "major", kept[0].ID)
}

func TestDeduplicateNeverCrossesCategories(t *testing.T) {
	agg := newTestAggregator()

	anomalous := &Insight{
		ID:               "anomaly",
		Category:         CategoryAnomaly,
		Title:            "Cost spike detected in Cloud SQL",
		Severity:         0.8,
		AffectedServices: []string{"Cloud SQL"},
	}
	optimization := &Insight{
		ID:               "optimization",
		Category:         CategoryOptimization,
		Title:            "Cost spike detected in Cloud SQL",
		Severity:         0.6,
		AffectedServices: []string{"Cloud SQL"},
	}

	kept := agg.deduplicate([]*Insight{anomalous, optimization})
	assert.Len(t, kept, 2)
}

func TestDeduplicateKeepsDissimilarInsights(t *testing.T) {
	agg := newTestAggregator()

	sql := &Insight{
		ID:               "sql",
		Category:         CategoryAnomaly,
		Title:            "Cost spike detected in Cloud SQL",
		AffectedServices: []string{"Cloud SQL"},
	}
	spanner := &Insight{
		ID:               "spanner",
		Category:         CategoryAnomaly,
		Title:            "New service spend: Cloud Spanner",
		AffectedServices: []string{"Cloud Spanner"},
	}

	kept := agg.deduplicate([]*Insight{sql, spanner})
	assert.Len(t, kept, 2)
}

func TestCorrelateLinksRelatedInsights(t *testing.T) {
	agg := newTestAggregator()
	now := time.Now().UTC()

	spike := &Insight{
		ID:               "spike",
		Category:         CategoryAnomaly,
		Title:            "Total cost spike detected",
		AffectedServices: []string{"Compute Engine"},
		CreatedAt:        now,
	}
	budget := &Insight{
		ID:               "budget",
		Category:         CategoryBudget,
		Title:            "Spend is running ahead of budget",
		AffectedServices: []string{"Compute Engine"},
		CreatedAt:        now,
	}
	// Disjoint services, unrelated category, a day older.
	faraway := &Insight{
		ID:               "faraway",
		Category:         CategoryDataQuality,
		Title:            "Validation flagged stale records",
		AffectedServices: []string{"Cloud Storage"},
		CreatedAt:        now.Add(-25 * time.Hour),
	}

	agg.correlate([]*Insight{spike, budget, faraway})

	assert.Equal(t, []string{"budget"}, spike.RelatedInsights)
	assert.Equal(t, []string{"spike"}, budget.RelatedInsights, "correlation links both directions")
	assert.Empty(t, faraway.RelatedInsights)
}

func TestSimilarityBlendsServicesAndTitles(t *testing.T) {
	identical := similarity(
		&Insight{Title: "Cost spike detected in Cloud SQL", AffectedServices: []string{"Cloud SQL"}},
		&Insight{Title: "Cost spike detected in Cloud SQL", AffectedServices: []string{"Cloud SQL"}},
	)
	assert.InDelta(t, 1.0, identical, 1e-9)

	disjoint := similarity(
		&Insight{Title: "Cost spike detected in Cloud SQL", AffectedServices: []string{"Cloud SQL"}},
		&Insight{Title: "Month-end spend projected at 4500.00", AffectedServices: []string{"Compute Engine"}},
	)
	assert.Less(t, disjoint, 0.2)
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 0.0, jaccard(nil, nil))
	assert.Equal(t, 1.0, jaccard([]string{"a", "b"}, []string{"B", "A"}), "comparison ignores case and order")
	assert.InDelta(t, 1.0/3, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 0.0, jaccard([]string{"a"}, []string{"b"}))
}

func TestTitleTokens(t *testing.T) {
	tokens := titleTokens("Total spend is growing 40% week over week.")
	assert.Equal(t, []string{"growing", "over", "spend", "total", "week", "week"}, tokens)
}

func TestTimeProximity(t *testing.T) {
	now := time.Now().UTC()
	assert.Equal(t, 1.0, timeProximity(now, now))
	assert.InDelta(t, 0.5, timeProximity(now, now.Add(12*time.Hour)), 1e-9)
	assert.Equal(t, 0.0, timeProximity(now, now.Add(24*time.Hour)))
	assert.InDelta(t, 0.5, timeProximity(now.Add(12*time.Hour), now), 1e-9, "proximity is symmetric")
}

func TestAffinity(t *testing.T) {
	assert.Equal(t, 1.0, affinity(CategoryAnomaly, CategoryBudget))
	assert.Equal(t, 1.0, affinity(CategoryBudget, CategoryAnomaly), "affinity is symmetric")
	assert.Equal(t, 1.0, affinity(CategoryTrend, CategoryForecast))
	assert.Equal(t, 0.5, affinity(CategoryDataQuality, CategoryDataQuality), "same category defaults to a mild affinity")
	assert.Equal(t, 0.0, affinity(CategoryDataQuality, CategoryForecast))
}
