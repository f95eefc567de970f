package quality

import (
	"time"

	"github.com/jscharber/costlens/pkg/costdata"
)

// IssueSeverity ranks how much a validation issue should worry a consumer.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "CRITICAL"
	SeverityHigh     IssueSeverity = "HIGH"
	SeverityMedium   IssueSeverity = "MEDIUM"
	SeverityLow      IssueSeverity = "LOW"
)

// IssueCategory names the quality dimension an issue belongs to.
type IssueCategory string

const (
	CategoryCompleteness IssueCategory = "completeness"
	CategoryAccuracy     IssueCategory = "accuracy"
	CategoryConsistency  IssueCategory = "consistency"
	CategoryTimeliness   IssueCategory = "timeliness"
	CategoryValidity     IssueCategory = "validity"
)

// ValidationIssue is one quality finding. Issues are data, never errors:
// validation always completes and consumers decide what to accept.
type ValidationIssue struct {
	Category IssueCategory `json:"category"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// checkResult is the outcome of one dimension check.
type checkResult struct {
	issues []ValidationIssue
	passed int
	total  int
}

func (c *checkResult) fail(severity IssueSeverity, category IssueCategory, message string) {
	c.issues = append(c.issues, ValidationIssue{
		Category: category,
		Severity: severity,
		Message:  message,
	})
	c.total++
}

func (c *checkResult) pass() {
	c.passed++
	c.total++
}

func (c *checkResult) score() float64 {
	if c.total == 0 {
		return 1.0
	}
	return float64(c.passed) / float64(c.total)
}

// ValidationResult is the full outcome of validating one record.
type ValidationResult struct {
	ClientID string                 `json:"client_id"`
	Provider costdata.CloudProvider `json:"provider"`
	Date     string                 `json:"date"`

	Issues []ValidationIssue `json:"issues,omitempty"`

	CompletenessScore float64 `json:"completeness_score"`
	AccuracyScore     float64 `json:"accuracy_score"`
	ConsistencyScore  float64 `json:"consistency_score"`
	TimelinessScore   float64 `json:"timeliness_score"`
	ValidityScore     float64 `json:"validity_score"`
	OverallScore      float64 `json:"overall_score"`

	ConfidenceLevel costdata.ConfidenceLevel `json:"confidence_level"`
	ValidatedAt     time.Time                `json:"validated_at"`
}

// HasSeverity reports whether any issue carries the given severity.
func (r *ValidationResult) HasSeverity(severity IssueSeverity) bool {
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			return true
		}
	}
	return false
}

// DataQuality converts the result into the form attached to cost records.
// CRITICAL and HIGH issues become validation errors, the rest warnings.
func (r *ValidationResult) DataQuality() *costdata.DataQuality {
	dq := &costdata.DataQuality{
		CompletenessScore: r.CompletenessScore,
		AccuracyScore:     r.AccuracyScore,
		ConsistencyScore:  r.ConsistencyScore,
		TimelinessScore:   r.TimelinessScore,
		ValidityScore:     r.ValidityScore,
		OverallScore:      r.OverallScore,
		ConfidenceLevel:   r.ConfidenceLevel,
		ValidatedAt:       r.ValidatedAt,
	}
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityCritical, SeverityHigh:
			dq.ValidationErrors = append(dq.ValidationErrors, string(issue.Category)+": "+issue.Message)
		default:
			dq.ValidationWarnings = append(dq.ValidationWarnings, string(issue.Category)+": "+issue.Message)
		}
	}
	return dq
}

// Statistics summarizes the engine's validation history.
type Statistics struct {
	RecordsValidated  int64                   `json:"records_validated"`
	IssuesBySeverity  map[IssueSeverity]int64 `json:"issues_by_severity"`
	AverageScore      float64                 `json:"average_score"`
	LowConfidenceRate float64                 `json:"low_confidence_rate"`
}
