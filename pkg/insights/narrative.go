package insights

import (
	"context"
	"fmt"
	"strings"
)

// NarrativeGenerator produces the executive summary text for a workflow
// result. An LLM-backed implementation can be injected; the deterministic
// template generator is always available as the fallback.
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, result *AIInsights) (string, error)
}

// TemplateNarrative composes the summary from the ranked insights without
// any external dependency.
type TemplateNarrative struct{}

// GenerateNarrative implements NarrativeGenerator.
func (TemplateNarrative) GenerateNarrative(_ context.Context, result *AIInsights) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Cost analysis for %s to %s surfaced %d insights",
		result.DateRange.Start, result.DateRange.End, len(result.Insights))

	critical := 0
	var savings float64
	for _, insight := range result.Insights {
		if insight.Priority == PriorityCritical {
			critical++
		}
		savings += insight.EstimatedSavings
	}
	if critical > 0 {
		fmt.Fprintf(&b, ", %d of them critical", critical)
	}
	b.WriteString(".")

	if len(result.Insights) > 0 {
		top := result.Insights[0]
		fmt.Fprintf(&b, " Leading finding: %s.", strings.TrimRight(top.Title, "."))
	}
	if savings > 0 {
		fmt.Fprintf(&b, " Estimated savings opportunity: %.2f/month.", savings)
	}
	if result.Forecast != nil && result.Forecast.IsTrendingUp {
		fmt.Fprintf(&b, " Month-end spend is projected at %.2f, %.0f%% above the prior baseline.",
			result.Forecast.ProjectedMonthTotal, result.Forecast.DeviationFromBaseline*100)
	}
	if len(result.Insights) == 0 {
		b.Reset()
		fmt.Fprintf(&b, "Cost analysis for %s to %s found no notable anomalies, trends or optimization opportunities.",
			result.DateRange.Start, result.DateRange.End)
	}
	return b.String(), nil
}
