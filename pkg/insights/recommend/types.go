package recommend

import (
	"time"
)

// Category groups recommendations by the kind of action they ask for.
type Category string

const (
	CategoryCostOptimization Category = "cost_optimization"
	CategoryRightsizing      Category = "rightsizing"
	CategoryCommitment       Category = "commitment"
	CategoryAnomalyResponse  Category = "anomaly_response"
	CategoryTrendResponse    Category = "trend_response"
	CategoryBudgetControl    Category = "budget_control"
)

// Priority ranks recommendations for presentation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Recommendation is one actionable cost-optimization suggestion.
type Recommendation struct {
	ID       string   `json:"id"`
	ClientID string   `json:"client_id"`
	Category Category `json:"category"`
	Priority Priority `json:"priority"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`

	AffectedServices []string `json:"affected_services,omitempty"`
	EstimatedSavings float64  `json:"estimated_savings"`
	ConfidenceScore  float64  `json:"confidence_score"`

	// Scoring criteria, each in [0,1]; Score is their weighted combination.
	CostImpact        float64 `json:"cost_impact"`
	EaseOfImplement   float64 `json:"ease_of_implementation"`
	Urgency           float64 `json:"urgency"`
	BusinessAlignment float64 `json:"business_alignment"`
	Score             float64 `json:"score"`

	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is the ranked recommendation output for one client.
type Result struct {
	ClientID        string            `json:"client_id"`
	Recommendations []*Recommendation `json:"recommendations"`
	TotalSavings    float64           `json:"total_estimated_savings"`
	GeneratedCount  int               `json:"generated_count"`
	DroppedCount    int               `json:"dropped_count"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
