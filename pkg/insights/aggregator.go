package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/insights/anomaly"
	"github.com/jscharber/costlens/pkg/insights/forecast"
	"github.com/jscharber/costlens/pkg/insights/recommend"
	"github.com/jscharber/costlens/pkg/insights/trend"
	"github.com/jscharber/costlens/pkg/logger"
)

// categoryAffinity scores how naturally two insight categories relate when
// correlating. Symmetric; missing pairs score zero.
var categoryAffinity = map[Category]map[Category]float64{
	CategoryAnomaly: {
		CategoryAnomaly:      0.6,
		CategoryBudget:       1.0,
		CategoryTrend:        0.8,
		CategoryOptimization: 0.6,
	},
	CategoryTrend: {
		CategoryTrend:        0.5,
		CategoryForecast:     1.0,
		CategoryOptimization: 0.8,
	},
	CategoryForecast: {
		CategoryBudget: 1.0,
	},
	CategoryBudget: {
		CategoryOptimization: 0.8,
	},
}

// Aggregator converts engine outputs into unified insights and collapses
// near-duplicates.
type Aggregator struct {
	cfg    config.InsightsConfig
	logger *logger.Logger
}

// NewAggregator creates an aggregator. A zero-value config is replaced with
// the defaults.
func NewAggregator(cfg config.InsightsConfig, log *logger.Logger) *Aggregator {
	if cfg.DuplicateSimilarity == 0 {
		cfg = config.Default().Insights
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Aggregator{cfg: cfg, logger: log.WithField("component", "insight_aggregator")}
}

// Aggregate converts every engine result into insights, deduplicates, and
// cross-links correlated insights. Nil results contribute nothing.
func (a *Aggregator) Aggregate(clientID string, anomalies *anomaly.Result, trends *trend.Result, fc *forecast.Result, recs *recommend.Result) []*Insight {
	var all []*Insight
	all = append(all, a.fromAnomalies(clientID, anomalies)...)
	all = append(all, a.fromTrends(clientID, trends)...)
	all = append(all, a.fromForecast(clientID, fc)...)
	all = append(all, a.fromRecommendations(clientID, recs)...)

	deduped := a.deduplicate(all)
	a.correlate(deduped)
	return deduped
}

func (a *Aggregator) fromAnomalies(clientID string, result *anomaly.Result) []*Insight {
	if result == nil {
		return nil
	}

	var out []*Insight
	for _, anom := range result.Anomalies {
		category := CategoryAnomaly
		if anom.Type == anomaly.TypeBudgetDeviation {
			category = CategoryBudget
		}
		var services []string
		if anom.Service != "" {
			services = []string{anom.Service}
		}
		out = append(out, &Insight{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         category,
			Title:            anomalyInsightTitle(anom),
			Description:      anom.Description,
			Severity:         SeverityScore(string(anom.Severity)),
			Confidence:       anom.Confidence,
			BusinessImpact:   clamp01(anom.Deviation),
			Actionability:    0.7,
			AffectedServices: services,
			Actions:          anom.RecommendedActions,
			Source:           "anomaly_detection",
			CreatedAt:        anom.DetectedAt,
			Metadata:         map[string]interface{}{"anomaly_type": string(anom.Type)},
		})
	}
	return out
}

func (a *Aggregator) fromTrends(clientID string, result *trend.Result) []*Insight {
	if result == nil {
		return nil
	}

	var out []*Insight
	if overall := result.Overall; overall != nil && overall.IsSignificant() {
		out = append(out, a.trendInsight(clientID, "total spend", overall, result.AnalyzedAt))
	}
	for service, t := range result.Services {
		if !t.IsSignificant() {
			continue
		}
		out = append(out, a.trendInsight(clientID, service, t, result.AnalyzedAt))
	}
	return out
}

func (a *Aggregator) trendInsight(clientID, subject string, t *trend.Trend, at time.Time) *Insight {
	direction := "growing"
	severity := 0.6
	if t.Direction == trend.DirectionDecreasing {
		direction = "shrinking"
		severity = 0.4
	}
	if t.Significance == trend.SignificanceHigh {
		severity = 0.8
	}

	var services []string
	if t.Service != "" {
		services = []string{t.Service}
	}
	return &Insight{
		ID:               uuid.New().String(),
		ClientID:         clientID,
		Category:         CategoryTrend,
		Title:            fmt.Sprintf("%s is %s %.0f%% week over week", subject, direction, absFloat(t.GrowthRate)*100),
		Description:      fmt.Sprintf("Mean daily cost %.2f with %.0f%% volatility over %d data points.", t.MeanDailyCost, t.Volatility, t.DataPoints),
		Severity:         severity,
		Confidence:       t.Confidence,
		BusinessImpact:   clamp01(absFloat(t.GrowthRate)),
		Actionability:    0.6,
		AffectedServices: services,
		Source:           "trend_analysis",
		CreatedAt:        at,
	}
}

func (a *Aggregator) fromForecast(clientID string, fc *forecast.Result) []*Insight {
	if fc == nil || fc.ProjectedMonthTotal == 0 {
		return nil
	}

	severity := 0.4
	if fc.IsTrendingUp {
		severity = 0.6
	}
	if fc.DeviationFromBaseline > 0.3 {
		severity = 0.8
	}

	return []*Insight{{
		ID:             uuid.New().String(),
		ClientID:       clientID,
		Category:       CategoryForecast,
		Title:          fmt.Sprintf("Month-end spend projected at %.2f", fc.ProjectedMonthTotal),
		Description:    fmt.Sprintf("Projection spans %.2f to %.2f (%s accuracy), %.0f%% against the %.2f baseline.", fc.LowerBound, fc.UpperBound, fc.Accuracy, fc.DeviationFromBaseline*100, fc.BaselineTotal),
		Severity:       severity,
		Confidence:     fc.Confidence,
		BusinessImpact: clamp01(absFloat(fc.DeviationFromBaseline)),
		Actionability:  0.5,
		Source:         "forecast_projection",
		CreatedAt:      fc.AnalyzedAt,
		Metadata: map[string]interface{}{
			"is_trending_up": fc.IsTrendingUp,
			"accuracy":       string(fc.Accuracy),
		},
	}}
}

func (a *Aggregator) fromRecommendations(clientID string, recs *recommend.Result) []*Insight {
	if recs == nil {
		return nil
	}

	var out []*Insight
	for _, rec := range recs.Recommendations {
		out = append(out, &Insight{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         CategoryOptimization,
			Title:            rec.Title,
			Description:      rec.Description,
			Severity:         SeverityScore(string(rec.Priority)),
			Confidence:       rec.ConfidenceScore,
			BusinessImpact:   rec.CostImpact,
			Actionability:    rec.EaseOfImplement,
			AffectedServices: rec.AffectedServices,
			EstimatedSavings: rec.EstimatedSavings,
			Actions:          rec.Actions,
			Source:           "recommendation_engine",
			CreatedAt:        rec.CreatedAt,
			Metadata:         map[string]interface{}{"recommendation_category": string(rec.Category)},
		})
	}
	return out
}

// deduplicate collapses same-category insights whose combined service and
// title similarity exceeds the threshold, keeping the better-backed one.
// Confidence decides first, business impact breaks ties.
func (a *Aggregator) deduplicate(insights []*Insight) []*Insight {
	var kept []*Insight
	for _, candidate := range insights {
		duplicate := false
		for i, existing := range kept {
			if existing.Category != candidate.Category {
				continue
			}
			if similarity(existing, candidate) <= a.cfg.DuplicateSimilarity {
				continue
			}
			duplicate = true
			if candidate.Confidence > existing.Confidence ||
				(candidate.Confidence == existing.Confidence && candidate.BusinessImpact > existing.BusinessImpact) {
				kept[i] = candidate
			}
			break
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	if dropped := len(insights) - len(kept); dropped > 0 {
		a.logger.Debug("deduplicated %d of %d insights", dropped, len(insights))
	}
	return kept
}

// similarity blends service overlap and title token overlap.
func similarity(a, b *Insight) float64 {
	return jaccard(a.AffectedServices, b.AffectedServices)*0.6 +
		jaccard(titleTokens(a.Title), titleTokens(b.Title))*0.4
}

// correlate cross-links insight pairs whose combined service overlap,
// category affinity and time proximity exceed the threshold.
func (a *Aggregator) correlate(insights []*Insight) {
	for i := 0; i < len(insights); i++ {
		for j := i + 1; j < len(insights); j++ {
			left, right := insights[i], insights[j]

			score := jaccard(left.AffectedServices, right.AffectedServices)*0.4 +
				affinity(left.Category, right.Category)*0.3 +
				timeProximity(left.CreatedAt, right.CreatedAt)*0.3
			if score <= a.cfg.CorrelationThreshold {
				continue
			}
			left.RelatedInsights = append(left.RelatedInsights, right.ID)
			right.RelatedInsights = append(right.RelatedInsights, left.ID)
		}
	}
}

func affinity(a, b Category) float64 {
	if score, ok := categoryAffinity[a][b]; ok {
		return score
	}
	if score, ok := categoryAffinity[b][a]; ok {
		return score
	}
	if a == b {
		return 0.5
	}
	return 0
}

// timeProximity scores 1 for simultaneous insights, fading to 0 at 24h.
func timeProximity(a, b time.Time) float64 {
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	if gap >= 24*time.Hour {
		return 0
	}
	return 1 - float64(gap)/float64(24*time.Hour)
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[strings.ToLower(v)] = true
	}
	intersection := 0
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		key := strings.ToLower(v)
		if setB[key] {
			continue
		}
		setB[key] = true
		if setA[key] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// titleTokens splits a title into lowercase word tokens, dropping
// connectives too short to carry meaning.
func titleTokens(title string) []string {
	fields := strings.Fields(strings.ToLower(title))
	tokens := fields[:0]
	for _, field := range fields {
		field = strings.Trim(field, ".,:%")
		if len(field) > 2 {
			tokens = append(tokens, field)
		}
	}
	sort.Strings(tokens)
	return tokens
}

func anomalyInsightTitle(a *anomaly.Anomaly) string {
	switch a.Type {
	case anomaly.TypeCostSpike:
		if a.Service != "" {
			return fmt.Sprintf("Cost spike detected in %s", a.Service)
		}
		return "Total cost spike detected"
	case anomaly.TypeNewService:
		return fmt.Sprintf("New service spend: %s", a.Service)
	case anomaly.TypeDisappearance:
		return fmt.Sprintf("Service spend disappeared: %s", a.Service)
	case anomaly.TypeBudgetDeviation:
		return "Spend is running ahead of budget"
	default:
		return "Cost anomaly detected"
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

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
