package insights

import (
	"sort"

	"github.com/jscharber/costlens/pkg/clients"
)

// Ranking criteria weights. Severity leads; confidence and business impact
// share second place; actionability rounds it out.
const (
	rankWeightSeverity      = 0.30
	rankWeightConfidence    = 0.25
	rankWeightBusiness      = 0.25
	rankWeightActionability = 0.20
)

// categoryMultipliers bias ranking toward categories that usually demand
// action sooner.
var categoryMultipliers = map[Category]float64{
	CategoryBudget:       1.15,
	CategoryAnomaly:      1.10,
	CategoryOptimization: 1.05,
	CategoryTrend:        1.00,
	CategoryForecast:     1.00,
	CategoryDataQuality:  0.90,
}

// Ranker orders unified insights by a weighted multi-criteria score.
type Ranker struct{}

// NewRanker creates a ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// RankInsights scores every insight, sorts them highest first, and
// reassigns priorities from the final ranked positions. The client context,
// when present, boosts categories the client cares about. The input slice is
// not modified; insights are scored in place.
func (r *Ranker) RankInsights(insights []*Insight, clientContext *clients.ClientContext) []*Insight {
	ranked := make([]*Insight, len(insights))
	copy(ranked, insights)

	for _, insight := range ranked {
		score := insight.Severity*rankWeightSeverity +
			insight.Confidence*rankWeightConfidence +
			insight.BusinessImpact*rankWeightBusiness +
			insight.Actionability*rankWeightActionability

		if multiplier, ok := categoryMultipliers[insight.Category]; ok {
			score *= multiplier
		}
		score *= contextBoost(insight.Category, clientContext)

		if score > 1 {
			score = 1
		}
		insight.Score = score
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	for position, insight := range ranked {
		insight.Priority = priorityFor(insight.Score, position)
	}
	return ranked
}

// contextBoost nudges scores toward the client's stated posture.
func contextBoost(category Category, ctx *clients.ClientContext) float64 {
	if ctx == nil {
		return 1
	}
	boost := 1.0
	if ctx.CostConscious && (category == CategoryOptimization || category == CategoryBudget) {
		boost *= 1.1
	}
	if ctx.Growing && (category == CategoryTrend || category == CategoryForecast) {
		boost *= 1.1
	}
	if ctx.SecurityFocus && category == CategoryAnomaly {
		boost *= 1.1
	}
	return boost
}

// priorityFor maps the final score to a priority, demoting by ranked
// position so a long tail of decent scores does not read as all-critical.
func priorityFor(score float64, position int) Priority {
	priority := PriorityLow
	switch {
	case score > 0.8:
		priority = PriorityCritical
	case score > 0.6:
		priority = PriorityHigh
	case score > 0.4:
		priority = PriorityMedium
	}

	if priority == PriorityCritical && position >= 3 {
		priority = PriorityHigh
	}
	if priority == PriorityHigh && position >= 10 {
		priority = PriorityMedium
	}
	return priority
}
