package anomaly

import (
	"time"

	"github.com/jscharber/costlens/pkg/costdata"
)

// Type classifies what kind of cost anomaly was detected.
type Type string

const (
	TypeCostSpike       Type = "COST_SPIKE"
	TypeNewService      Type = "NEW_SERVICE"
	TypeDisappearance   Type = "SERVICE_DISAPPEARANCE"
	TypeBudgetDeviation Type = "BUDGET_DEVIATION"
)

// Severity ranks how urgently an anomaly needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for sorting, highest first.
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// Anomaly is one detected cost irregularity.
type Anomaly struct {
	ID          string                 `json:"id"`
	ClientID    string                 `json:"client_id"`
	Type        Type                   `json:"type"`
	Severity    Severity               `json:"severity"`
	Service     string                 `json:"service,omitempty"`
	Provider    costdata.CloudProvider `json:"provider,omitempty"`
	Description string                 `json:"description"`

	CurrentValue  float64 `json:"current_value"`
	ExpectedValue float64 `json:"expected_value"`
	// Deviation is the relative departure from expectation (0.5 = 50% over).
	Deviation  float64 `json:"deviation"`
	Confidence float64 `json:"confidence"`

	RecommendedActions []string  `json:"recommended_actions,omitempty"`
	DetectedAt         time.Time `json:"detected_at"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Result is the output of one detection run.
type Result struct {
	ClientID       string           `json:"client_id"`
	Anomalies      []*Anomaly       `json:"anomalies"`
	HistoricalDays int              `json:"historical_days"`
	CurrentDays    int              `json:"current_days"`
	BySeverity     map[Severity]int `json:"by_severity"`
	AnalyzedAt     time.Time        `json:"analyzed_at"`
}

// HighestSeverity returns the worst severity present, or empty when no
// anomalies were found.
func (r *Result) HighestSeverity() Severity {
	var worst Severity
	for _, a := range r.Anomalies {
		if severityRank[a.Severity] > severityRank[worst] {
			worst = a.Severity
		}
	}
	return worst
}
