// Package insights unifies the outputs of the anomaly, trend, forecast and
// recommendation engines into a single ranked insight stream, and drives the
// end-to-end analysis workflow that produces it.
package insights

import (
	"time"
)

// Category classifies what an insight is about.
type Category string

const (
	CategoryAnomaly      Category = "cost_anomaly"
	CategoryTrend        Category = "cost_trend"
	CategoryForecast     Category = "forecast"
	CategoryOptimization Category = "optimization"
	CategoryBudget       Category = "budget"
	CategoryDataQuality  Category = "data_quality"
)

// Priority ranks insights for presentation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// severityScores maps source severity labels onto the numeric scale the
// ranker works with.
var severityScores = map[string]float64{
	"critical": 1.0,
	"high":     0.8,
	"medium":   0.6,
	"low":      0.4,
}

// Insight is the unified representation every analysis output converges to.
type Insight struct {
	ID       string   `json:"id"`
	ClientID string   `json:"client_id"`
	Category Category `json:"category"`
	Priority Priority `json:"priority"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Ranking criteria, each in [0,1].
	Severity       float64 `json:"severity"`
	Confidence     float64 `json:"confidence"`
	BusinessImpact float64 `json:"business_impact"`
	Actionability  float64 `json:"actionability"`

	// Score is the weighted ranking score; set by the ranker.
	Score float64 `json:"score"`

	AffectedServices []string `json:"affected_services,omitempty"`
	EstimatedSavings float64  `json:"estimated_savings,omitempty"`
	Actions          []string `json:"actions,omitempty"`

	// RelatedInsights lists ids of correlated insights.
	RelatedInsights []string `json:"related_insights,omitempty"`

	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SeverityScore converts a source severity label to the numeric scale,
// defaulting unknown labels to medium.
func SeverityScore(label string) float64 {
	if score, ok := severityScores[label]; ok {
		return score
	}
	return 0.6
}
