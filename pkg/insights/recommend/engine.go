// Package recommend generates cost-optimization recommendations by
// combining rule-based heuristics, usage pattern analysis, and the outputs
// of the anomaly, trend and forecast engines. Duplicate suggestions are
// collapsed and the survivors ranked by a weighted multi-criteria score.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/insights/anomaly"
	"github.com/jscharber/costlens/pkg/insights/forecast"
	"github.com/jscharber/costlens/pkg/insights/trend"
	"github.com/jscharber/costlens/pkg/logger"
)

// Weighted scoring criteria. Cost impact dominates; ease and confidence
// matter equally; urgency and business alignment share the remainder.
const (
	weightCostImpact = 0.30
	weightEase       = 0.20
	weightConfidence = 0.20
	weightUrgency    = 0.15
	weightBusiness   = 0.15
)

// Inputs carries everything the generators draw on. Analysis results may be
// nil; their generators simply produce nothing.
type Inputs struct {
	Records   []*costdata.UnifiedCostRecord
	Anomalies *anomaly.Result
	Trends    *trend.Result
	Forecast  *forecast.Result
	Client    *clients.ClientConfig
}

// Engine generates and ranks recommendations for one client at a time.
type Engine struct {
	cfg    config.RecommendationConfig
	logger *logger.Logger
	tracer trace.Tracer
}

// NewEngine creates a recommendation engine. A zero-value config is replaced
// with the defaults.
func NewEngine(cfg config.RecommendationConfig, log *logger.Logger) *Engine {
	if cfg.MaxRecommendations == 0 {
		cfg = config.Default().Recommendation
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Engine{
		cfg:    cfg,
		logger: log.WithField("component", "recommendation_engine"),
		tracer: otel.Tracer("insights"),
	}
}

// GenerateRecommendations runs every generator, drops low-confidence output,
// deduplicates by affected services and category, scores, and returns the
// top recommendations.
func (e *Engine) GenerateRecommendations(ctx context.Context, clientID string, inputs *Inputs) *Result {
	_, span := e.tracer.Start(ctx, "insights.generate_recommendations",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	var all []*Recommendation
	all = append(all, e.fromIdleServices(clientID, inputs)...)
	all = append(all, e.fromConcentration(clientID, inputs)...)
	all = append(all, e.fromStableSpend(clientID, inputs)...)
	all = append(all, e.fromAnomalies(clientID, inputs.Anomalies)...)
	all = append(all, e.fromTrends(clientID, inputs.Trends)...)
	all = append(all, e.fromForecast(clientID, inputs)...)

	result := &Result{
		ClientID:       clientID,
		GeneratedCount: len(all),
		GeneratedAt:    time.Now().UTC(),
	}

	kept := all[:0]
	for _, rec := range all {
		if rec.ConfidenceScore < e.cfg.MinConfidence {
			result.DroppedCount++
			continue
		}
		kept = append(kept, rec)
	}

	deduped := Deduplicate(kept)
	result.DroppedCount += len(kept) - len(deduped)

	for _, rec := range deduped {
		e.score(rec, inputs.Client)
	}
	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })
	if len(deduped) > e.cfg.MaxRecommendations {
		result.DroppedCount += len(deduped) - e.cfg.MaxRecommendations
		deduped = deduped[:e.cfg.MaxRecommendations]
	}

	result.Recommendations = deduped
	for _, rec := range deduped {
		result.TotalSavings += rec.EstimatedSavings
	}

	span.SetAttributes(
		attribute.Int("recommendation_count", len(deduped)),
		attribute.Float64("total_savings", result.TotalSavings),
	)
	return result
}

// fromIdleServices flags services whose recent daily spend is small but
// persistent, a common sign of forgotten resources.
func (e *Engine) fromIdleServices(clientID string, inputs *Inputs) []*Recommendation {
	averages, counts := serviceAverages(inputs.Records)

	var out []*Recommendation
	for service, avg := range averages {
		// Persistent low spend: present most days but under $5/day.
		if counts[service] < 7 || avg >= 5 || avg < 0.5 {
			continue
		}
		monthly := avg * 30
		out = append(out, &Recommendation{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         CategoryCostOptimization,
			Title:            fmt.Sprintf("Review low-utilization spend in %s", service),
			Description:      fmt.Sprintf("%s has run at a steady %.2f/day for %d days. Spend this small and constant often belongs to forgotten or idle resources.", service, avg, counts[service]),
			Actions:          []string{fmt.Sprintf("Inventory active %s resources", service), "Remove or downsize anything without an owner"},
			AffectedServices: []string{service},
			EstimatedSavings: monthly * 0.5,
			ConfidenceScore:  0.5,
			CostImpact:       clamp(monthly / 500),
			EaseOfImplement:  0.8,
			Urgency:          0.2,
			Source:           "idle_service_heuristic",
			CreatedAt:        time.Now().UTC(),
		})
	}
	return out
}

// fromConcentration flags categories dominating total spend, where
// rightsizing has the most leverage.
func (e *Engine) fromConcentration(clientID string, inputs *Inputs) []*Recommendation {
	categoryTotals := make(map[string]float64)
	categoryServices := make(map[string][]string)
	seenService := make(map[string]bool)
	var total float64

	for _, record := range inputs.Records {
		for service, cost := range record.Services {
			category := cost.UnifiedCategory
			if category == "" {
				category = costdata.CategoryOther
			}
			categoryTotals[category] += cost.Cost
			total += cost.Cost
			if !seenService[category+"/"+service] {
				seenService[category+"/"+service] = true
				categoryServices[category] = append(categoryServices[category], service)
			}
		}
	}
	if total == 0 {
		return nil
	}

	var out []*Recommendation
	for category, catTotal := range categoryTotals {
		share := catTotal / total
		if share < 0.5 || category == costdata.CategoryOther {
			continue
		}
		services := categoryServices[category]
		sort.Strings(services)
		out = append(out, &Recommendation{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         CategoryRightsizing,
			Title:            fmt.Sprintf("Rightsize %s workloads", category),
			Description:      fmt.Sprintf("%s accounts for %.0f%% of total spend. Concentrated categories usually hold the largest rightsizing opportunities.", category, share*100),
			Actions:          []string{fmt.Sprintf("Pull utilization metrics for %s resources", category), "Downsize instances running under 40% utilization"},
			AffectedServices: services,
			EstimatedSavings: catTotal * 0.15,
			ConfidenceScore:  0.55,
			CostImpact:       clamp(share),
			EaseOfImplement:  0.4,
			Urgency:          0.4,
			Source:           "concentration_analysis",
			CreatedAt:        time.Now().UTC(),
		})
	}
	return out
}

// fromStableSpend suggests commitment discounts for high, steady compute
// spend.
func (e *Engine) fromStableSpend(clientID string, inputs *Inputs) []*Recommendation {
	if inputs.Trends == nil {
		return nil
	}

	var out []*Recommendation
	for service, t := range inputs.Trends.Services {
		if t.MeanDailyCost < 20 || t.Volatility > 25 || t.Direction == trend.DirectionDecreasing {
			continue
		}
		monthly := t.MeanDailyCost * 30
		out = append(out, &Recommendation{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         CategoryCommitment,
			Title:            fmt.Sprintf("Commit to discounted pricing for %s", service),
			Description:      fmt.Sprintf("%s spends a stable %.2f/day (volatility %.0f%%). Steady usage like this qualifies for reserved or committed-use discounts of 30%% or more.", service, t.MeanDailyCost, t.Volatility),
			Actions:          []string{"Compare reserved and savings-plan pricing against on-demand", "Start with a one-year commitment covering baseline usage"},
			AffectedServices: []string{service},
			EstimatedSavings: monthly * 0.3,
			ConfidenceScore:  0.7,
			CostImpact:       clamp(monthly / 2000),
			EaseOfImplement:  0.6,
			Urgency:          0.3,
			Source:           "stable_spend_analysis",
			CreatedAt:        time.Now().UTC(),
		})
	}
	return out
}

// fromAnomalies converts high-severity anomalies into response actions.
func (e *Engine) fromAnomalies(clientID string, result *anomaly.Result) []*Recommendation {
	if result == nil {
		return nil
	}

	var out []*Recommendation
	for _, a := range result.Anomalies {
		if a.Severity != anomaly.SeverityHigh && a.Severity != anomaly.SeverityCritical {
			continue
		}
		urgency := 0.8
		if a.Severity == anomaly.SeverityCritical {
			urgency = 1.0
		}
		var services []string
		if a.Service != "" {
			services = []string{a.Service}
		}
		out = append(out, &Recommendation{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         CategoryAnomalyResponse,
			Title:            anomalyTitle(a),
			Description:      a.Description,
			Actions:          a.RecommendedActions,
			AffectedServices: services,
			EstimatedSavings: positive(a.CurrentValue-a.ExpectedValue) * 30,
			ConfidenceScore:  a.Confidence,
			CostImpact:       clamp(a.Deviation),
			EaseOfImplement:  0.5,
			Urgency:          urgency,
			Source:           "anomaly_detection",
			CreatedAt:        time.Now().UTC(),
		})
	}
	return out
}

// fromTrends converts significant sustained growth into investigation work.
func (e *Engine) fromTrends(clientID string, result *trend.Result) []*Recommendation {
	if result == nil {
		return nil
	}

	var out []*Recommendation
	for service, t := range result.Services {
		if t.Direction != trend.DirectionIncreasing || !t.IsSignificant() {
			continue
		}
		monthly := t.MeanDailyCost * 30
		out = append(out, &Recommendation{
			ID:               uuid.New().String(),
			ClientID:         clientID,
			Category:         CategoryTrendResponse,
			Title:            fmt.Sprintf("Investigate sustained growth in %s", service),
			Description:      fmt.Sprintf("%s is growing %.0f%% week over week. Left alone it compounds into %.2f/month of additional spend.", service, t.GrowthRate*100, monthly*t.GrowthRate),
			Actions:          []string{fmt.Sprintf("Attribute the %s growth to a team or workload", service), "Decide whether the growth is planned before it compounds"},
			AffectedServices: []string{service},
			EstimatedSavings: monthly * t.GrowthRate * 0.5,
			ConfidenceScore:  0.6,
			CostImpact:       clamp(t.GrowthRate),
			EaseOfImplement:  0.5,
			Urgency:          0.6,
			Source:           "trend_analysis",
			CreatedAt:        time.Now().UTC(),
		})
	}
	return out
}

// fromForecast raises budget-control work when the projection runs hot.
func (e *Engine) fromForecast(clientID string, inputs *Inputs) []*Recommendation {
	f := inputs.Forecast
	if f == nil || !f.IsTrendingUp {
		return nil
	}

	overrun := f.ProjectedMonthTotal - f.BaselineTotal
	rec := &Recommendation{
		ID:               uuid.New().String(),
		ClientID:         clientID,
		Category:         CategoryBudgetControl,
		Title:            "Projected month-end spend exceeds the prior baseline",
		Description:      fmt.Sprintf("Current spend projects to %.2f this month, %.0f%% above the %.2f baseline.", f.ProjectedMonthTotal, f.DeviationFromBaseline*100, f.BaselineTotal),
		Actions:          []string{"Review the service projections driving the increase", "Defer discretionary workloads until spend stabilizes"},
		EstimatedSavings: positive(overrun) * 0.5,
		ConfidenceScore:  f.Confidence,
		CostImpact:       clamp(f.DeviationFromBaseline),
		EaseOfImplement:  0.5,
		Urgency:          0.7,
		Source:           "forecast_projection",
		CreatedAt:        time.Now().UTC(),
	}

	if client := inputs.Client; client != nil && client.Budget != nil && client.Budget.MonthlyBudget > 0 {
		if f.ProjectedMonthTotal > client.Budget.MonthlyBudget {
			rec.Urgency = 1.0
			rec.Description += fmt.Sprintf(" The projection also exceeds the %.2f monthly budget.", client.Budget.MonthlyBudget)
		}
	}
	return []*Recommendation{rec}
}

// Deduplicate collapses recommendations sharing affected services and
// category, keeping the one with higher savings, or higher confidence when
// savings tie.
func Deduplicate(recs []*Recommendation) []*Recommendation {
	byKey := make(map[string]*Recommendation)
	var order []string

	for _, rec := range recs {
		services := append([]string(nil), rec.AffectedServices...)
		sort.Strings(services)
		key := strings.Join(services, ",") + "|" + string(rec.Category)

		existing, ok := byKey[key]
		if !ok {
			byKey[key] = rec
			order = append(order, key)
			continue
		}
		if rec.EstimatedSavings > existing.EstimatedSavings ||
			(rec.EstimatedSavings == existing.EstimatedSavings && rec.ConfidenceScore > existing.ConfidenceScore) {
			byKey[key] = rec
		}
	}

	out := make([]*Recommendation, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// score combines the criteria into the final weighted score and remaps it to
// a priority. Client posture nudges business alignment.
func (e *Engine) score(rec *Recommendation, client *clients.ClientConfig) {
	if rec.BusinessAlignment == 0 {
		rec.BusinessAlignment = 0.5
		if client != nil && client.Context != nil {
			if client.Context.CostConscious {
				rec.BusinessAlignment = 0.8
			}
			if client.Context.Growing && rec.Category == CategoryCommitment {
				// Growing clients should not lock in commitments early.
				rec.BusinessAlignment = 0.3
			}
		}
	}

	rec.Score = rec.CostImpact*weightCostImpact +
		rec.EaseOfImplement*weightEase +
		rec.ConfidenceScore*weightConfidence +
		rec.Urgency*weightUrgency +
		rec.BusinessAlignment*weightBusiness

	switch {
	case rec.Score > 0.8:
		rec.Priority = PriorityCritical
	case rec.Score > 0.6:
		rec.Priority = PriorityHigh
	case rec.Score > 0.4:
		rec.Priority = PriorityMedium
	default:
		rec.Priority = PriorityLow
	}
}

func anomalyTitle(a *anomaly.Anomaly) string {
	switch a.Type {
	case anomaly.TypeCostSpike:
		if a.Service != "" {
			return fmt.Sprintf("Contain the cost spike in %s", a.Service)
		}
		return "Contain the total cost spike"
	case anomaly.TypeBudgetDeviation:
		return "Bring month-to-date spend back toward budget"
	case anomaly.TypeNewService:
		return fmt.Sprintf("Validate new spend in %s", a.Service)
	case anomaly.TypeDisappearance:
		return fmt.Sprintf("Confirm the disappearance of %s spend", a.Service)
	default:
		return "Investigate detected cost anomaly"
	}
}

// serviceAverages returns mean daily cost and day counts per service.
func serviceAverages(records []*costdata.UnifiedCostRecord) (map[string]float64, map[string]int) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, record := range records {
		for service, cost := range record.Services {
			sums[service] += cost.Cost
			counts[service]++
		}
	}
	averages := make(map[string]float64, len(sums))
	for service, sum := range sums {
		averages[service] = sum / float64(counts[service])
	}
	return averages, counts
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
