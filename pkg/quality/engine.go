// Package quality validates unified cost records across five dimensions
// (completeness, accuracy, consistency, timeliness, validity). Validation
// never fails a record outright: every finding is surfaced as a typed issue
// and the record's quality scores let downstream consumers decide what to
// trust.
package quality

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
	"github.com/jscharber/costlens/pkg/providers"
)

var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Engine runs dimension checks over unified cost records and tracks running
// validation statistics.
type Engine struct {
	cfg    config.QualityConfig
	logger *logger.Logger
	tracer trace.Tracer

	mu            sync.RWMutex
	validated     int64
	lowConfidence int64
	scoreSum      float64
	bySeverity    map[IssueSeverity]int64
}

// NewEngine creates a quality engine. A zero-value config is replaced with
// the defaults.
func NewEngine(cfg config.QualityConfig, log *logger.Logger) *Engine {
	if cfg.VarianceTolerance == 0 {
		cfg = config.Default().Quality
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Engine{
		cfg:        cfg,
		logger:     log.WithField("component", "quality_engine"),
		tracer:     otel.Tracer("quality"),
		bySeverity: make(map[IssueSeverity]int64),
	}
}

// Validate runs all five dimension checks against the record. The original
// provider payload is optional; when present the normalized total is compared
// against the provider's stated total. Validate never returns an error: a
// record that cannot be scored meaningfully simply scores low.
func (e *Engine) Validate(ctx context.Context, record *costdata.UnifiedCostRecord, original *providers.CostPayload) *ValidationResult {
	_, span := e.tracer.Start(ctx, "quality.validate")
	defer span.End()

	now := time.Now().UTC()
	result := &ValidationResult{ValidatedAt: now}
	if record != nil {
		result.ClientID = record.ClientID
		result.Provider = record.Provider
		result.Date = record.Date
	}

	if record == nil {
		result.Issues = []ValidationIssue{{
			Category: CategoryCompleteness,
			Severity: SeverityCritical,
			Message:  "record is missing",
		}}
		result.ConfidenceLevel = costdata.ConfidenceLow
		e.record(result)
		return result
	}

	completeness := e.checkCompleteness(record)
	accuracy := e.checkAccuracy(record, original)
	consistency := e.checkConsistency(record)
	timeliness := e.checkTimeliness(record, now)
	validity := e.checkValidity(record)

	for _, check := range []checkResult{completeness, accuracy, consistency, timeliness, validity} {
		result.Issues = append(result.Issues, check.issues...)
	}

	result.CompletenessScore = completeness.score()
	result.AccuracyScore = accuracy.score()
	result.ConsistencyScore = consistency.score()
	result.TimelinessScore = timeliness.score()
	result.ValidityScore = validity.score()
	result.OverallScore = (result.CompletenessScore + result.AccuracyScore +
		result.ConsistencyScore + result.TimelinessScore + result.ValidityScore) / 5

	result.ConfidenceLevel = e.confidence(result)

	span.SetAttributes(
		attribute.String("client_id", record.ClientID),
		attribute.String("provider", string(record.Provider)),
		attribute.Float64("overall_score", result.OverallScore),
		attribute.Int("issue_count", len(result.Issues)),
	)

	if len(result.Issues) > 0 {
		e.logger.WithFields(map[string]interface{}{
			logger.FieldClientID: record.ClientID,
			"provider":           string(record.Provider),
			"date":               record.Date,
			"overall_score":      result.OverallScore,
			"issue_count":        len(result.Issues),
		}).Debug("cost record validated with issues")
	}

	e.record(result)
	return result
}

func (e *Engine) checkCompleteness(r *costdata.UnifiedCostRecord) checkResult {
	var c checkResult

	if r.ClientID == "" {
		c.fail(SeverityCritical, CategoryCompleteness, "client_id is missing")
	} else {
		c.pass()
	}
	if r.Date == "" {
		c.fail(SeverityCritical, CategoryCompleteness, "date is missing")
	} else {
		c.pass()
	}

	if len(r.Services) == 0 && len(r.Accounts) == 0 {
		c.fail(SeverityHigh, CategoryCompleteness, "record carries neither service nor account breakdowns")
	} else {
		c.pass()
	}

	if len(r.Services) > 0 {
		zero := 0
		for _, svc := range r.Services {
			if svc.Cost == 0 {
				zero++
			}
		}
		ratio := float64(zero) / float64(len(r.Services))
		if ratio > e.cfg.ZeroCostServiceRatio {
			c.fail(SeverityMedium, CategoryCompleteness, fmt.Sprintf(
				"%.0f%% of services report zero cost (tolerated %.0f%%)",
				ratio*100, e.cfg.ZeroCostServiceRatio*100))
		} else {
			c.pass()
		}
	} else {
		c.pass()
	}

	if r.CollectionMetadata == nil {
		c.fail(SeverityLow, CategoryCompleteness, "collection metadata is missing")
	} else {
		c.pass()
	}

	return c
}

func (e *Engine) checkAccuracy(r *costdata.UnifiedCostRecord, original *providers.CostPayload) checkResult {
	var c checkResult

	if len(r.Services) > 0 {
		if variance := relativeVariance(r.TotalCost, r.ServicesTotal()); variance > e.cfg.VarianceTolerance {
			c.fail(SeverityHigh, CategoryAccuracy, fmt.Sprintf(
				"total %.2f disagrees with service sum %.2f by %.1f%%",
				r.TotalCost, r.ServicesTotal(), variance*100))
		} else {
			c.pass()
		}
	} else {
		c.pass()
	}

	if len(r.Accounts) > 0 {
		if variance := relativeVariance(r.TotalCost, r.AccountsTotal()); variance > e.cfg.VarianceTolerance {
			c.fail(SeverityHigh, CategoryAccuracy, fmt.Sprintf(
				"total %.2f disagrees with account sum %.2f by %.1f%%",
				r.TotalCost, r.AccountsTotal(), variance*100))
		} else {
			c.pass()
		}
	} else {
		c.pass()
	}

	if stated, ok := statedTotal(original); ok {
		if variance := relativeVariance(stated, r.TotalCost); variance > e.cfg.ProviderTotalTolerance {
			c.fail(SeverityMedium, CategoryAccuracy, fmt.Sprintf(
				"normalized total %.2f deviates %.1f%% from provider-stated total %.2f",
				r.TotalCost, variance*100, stated))
		} else {
			c.pass()
		}
	} else {
		c.pass()
	}

	if len(r.Services) > 0 {
		unknown := 0
		for _, svc := range r.Services {
			if svc.UnifiedCategory == costdata.CategoryOther || svc.UnifiedCategory == "" {
				unknown++
			}
		}
		ratio := float64(unknown) / float64(len(r.Services))
		if ratio > e.cfg.UnknownCategoryRatio {
			c.fail(SeverityMedium, CategoryAccuracy, fmt.Sprintf(
				"%.0f%% of services map to no known category (tolerated %.0f%%)",
				ratio*100, e.cfg.UnknownCategoryRatio*100))
		} else {
			c.pass()
		}
	} else {
		c.pass()
	}

	return c
}

func (e *Engine) checkConsistency(r *costdata.UnifiedCostRecord) checkResult {
	var c checkResult

	if r.TotalCost < 0 {
		c.fail(SeverityCritical, CategoryConsistency, fmt.Sprintf("negative total cost %.2f", r.TotalCost))
	} else {
		c.pass()
	}

	negative := 0
	for _, svc := range r.Services {
		if svc.Cost < 0 {
			negative++
		}
	}
	for _, acct := range r.Accounts {
		if acct.Cost < 0 {
			negative++
		}
	}
	if negative > 0 {
		c.fail(SeverityHigh, CategoryConsistency, fmt.Sprintf(
			"%d service/account entries carry negative costs", negative))
	} else {
		c.pass()
	}

	if r.Currency == "" || len(r.Currency) != 3 {
		c.fail(SeverityMedium, CategoryConsistency, fmt.Sprintf(
			"currency %q is not a three-letter code", r.Currency))
	} else {
		c.pass()
	}

	if _, err := time.Parse(costdata.DateFormat, r.Date); err != nil {
		c.fail(SeverityHigh, CategoryConsistency, fmt.Sprintf(
			"date %q is not a valid calendar date", r.Date))
	} else {
		c.pass()
	}

	return c
}

func (e *Engine) checkTimeliness(r *costdata.UnifiedCostRecord, now time.Time) checkResult {
	var c checkResult

	if r.CollectionMetadata != nil && !r.CollectionMetadata.CollectedAt.IsZero() {
		age := now.Sub(r.CollectionMetadata.CollectedAt)
		if age > e.cfg.MaxStaleness {
			c.fail(SeverityMedium, CategoryTimeliness, fmt.Sprintf(
				"record was collected %.0fh ago (tolerated %.0fh)",
				age.Hours(), e.cfg.MaxStaleness.Hours()))
		} else {
			c.pass()
		}

		if r.CollectionMetadata.DataFreshnessHours > e.cfg.MaxStaleness.Hours() {
			c.fail(SeverityLow, CategoryTimeliness, fmt.Sprintf(
				"provider reports data %.0fh old at collection time",
				r.CollectionMetadata.DataFreshnessHours))
		} else {
			c.pass()
		}
	} else {
		c.pass()
		c.pass()
	}

	if date, err := time.Parse(costdata.DateFormat, r.Date); err == nil {
		window := time.Duration(e.cfg.DateWindowDays) * 24 * time.Hour
		if date.Before(now.Add(-window)) || date.After(now.Add(window)) {
			c.fail(SeverityLow, CategoryTimeliness, fmt.Sprintf(
				"record date %s sits outside the ±%d day window", r.Date, e.cfg.DateWindowDays))
		} else {
			c.pass()
		}
	} else {
		c.pass()
	}

	return c
}

func (e *Engine) checkValidity(r *costdata.UnifiedCostRecord) checkResult {
	var c checkResult

	if r.ClientID != "" && !clientIDPattern.MatchString(r.ClientID) {
		c.fail(SeverityLow, CategoryValidity, fmt.Sprintf(
			"client_id %q contains unexpected characters", r.ClientID))
	} else {
		c.pass()
	}

	if r.TotalCost > e.cfg.CostSanityBound {
		c.fail(SeverityLow, CategoryValidity, fmt.Sprintf(
			"total cost %.2f exceeds the %.0f sanity bound", r.TotalCost, e.cfg.CostSanityBound))
	} else {
		c.pass()
	}

	malformed := 0
	for name := range r.Services {
		if name == "" || len(name) > 256 {
			malformed++
		}
	}
	for id := range r.Accounts {
		if id == "" || len(id) > 128 {
			malformed++
		}
	}
	if malformed > 0 {
		c.fail(SeverityMedium, CategoryValidity, fmt.Sprintf(
			"%d service/account identifiers are empty or oversized", malformed))
	} else {
		c.pass()
	}

	return c
}

// confidence derives the confidence level from scores and issue severities.
// Only a CRITICAL issue forces LOW; a HIGH issue or a weak overall score caps
// at MEDIUM; only clean high-scoring records reach HIGH.
func (e *Engine) confidence(result *ValidationResult) costdata.ConfidenceLevel {
	if result.HasSeverity(SeverityCritical) {
		return costdata.ConfidenceLow
	}
	if result.HasSeverity(SeverityHigh) || result.OverallScore < e.cfg.LowConfidenceScore {
		return costdata.ConfidenceMedium
	}
	if result.OverallScore >= e.cfg.HighConfidenceScore {
		return costdata.ConfidenceHigh
	}
	return costdata.ConfidenceMedium
}

func (e *Engine) record(result *ValidationResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validated++
	e.scoreSum += result.OverallScore
	if result.ConfidenceLevel == costdata.ConfidenceLow {
		e.lowConfidence++
	}
	for _, issue := range result.Issues {
		e.bySeverity[issue.Severity]++
	}
}

// GetValidationStatistics returns a snapshot of the engine's running counts.
func (e *Engine) GetValidationStatistics() *Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Statistics{
		RecordsValidated: e.validated,
		IssuesBySeverity: make(map[IssueSeverity]int64, len(e.bySeverity)),
	}
	for severity, count := range e.bySeverity {
		stats.IssuesBySeverity[severity] = count
	}
	if e.validated > 0 {
		stats.AverageScore = e.scoreSum / float64(e.validated)
		stats.LowConfidenceRate = float64(e.lowConfidence) / float64(e.validated)
	}
	return stats
}

// relativeVariance returns |a-b| relative to the larger magnitude, 0 when
// both are zero.
func relativeVariance(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger
}

// statedTotal extracts the provider-stated total from a payload union.
func statedTotal(payload *providers.CostPayload) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch {
	case payload.AWS != nil:
		return payload.AWS.TotalUnblended, payload.AWS.TotalUnblended != 0
	case payload.GCP != nil:
		return payload.GCP.TotalCost, payload.GCP.TotalCost != 0
	case payload.Azure != nil:
		return payload.Azure.PreTaxCost, payload.Azure.PreTaxCost != 0
	}
	return 0, false
}
