package insights

import (
	"context"
	"fmt"
	"math"
	"sync"
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
	"github.com/jscharber/costlens/pkg/insights/recommend"
	"github.com/jscharber/costlens/pkg/insights/trend"
	"github.com/jscharber/costlens/pkg/logger"
)

// WorkflowStatus is the terminal state of one workflow run.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// StepStatus is the outcome of one workflow step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepResult records how one workflow step went. Failed steps carry the
// error and the step's output falls back to a defined default, so a single
// bad step degrades the workflow instead of aborting it.
type StepResult struct {
	Name      string        `json:"name"`
	Status    StepStatus    `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// AIInsights is the workflow's final product: ranked insights plus the raw
// engine outputs, an executive narrative, and enough confidence metadata for
// the caller to decide how much to trust it.
type AIInsights struct {
	WorkflowID string             `json:"workflow_id"`
	ClientID   string             `json:"client_id"`
	Status     WorkflowStatus     `json:"status"`
	DateRange  costdata.DateRange `json:"date_range"`

	ExecutiveSummary string   `json:"executive_summary"`
	RiskAssessment   []string `json:"risk_assessment,omitempty"`

	Insights        []*Insight        `json:"insights"`
	Anomalies       *anomaly.Result   `json:"anomalies,omitempty"`
	Trends          *trend.Result     `json:"trends,omitempty"`
	Forecast        *forecast.Result  `json:"forecast,omitempty"`
	Recommendations *recommend.Result `json:"recommendations,omitempty"`

	DataQualityScore float64 `json:"data_quality_score"`
	// ConfidenceScore grades the whole result: data volume, data quality,
	// step failures and analysis confidence all feed it.
	ConfidenceScore float64 `json:"confidence_score"`

	Steps     []*StepResult `json:"steps"`
	FromCache bool          `json:"from_cache"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FailedSteps counts steps that fell back to their defaults.
func (r *AIInsights) FailedSteps() int {
	n := 0
	for _, step := range r.Steps {
		if step.Status == StepFailed {
			n++
		}
	}
	return n
}

// Workflow sequences the full analysis pipeline for one client: data
// retrieval, quality assessment, the three analysis engines, recommendation
// generation, aggregation and ranking, and narrative composition. Each step
// is fault-isolated with a defined fallback.
type Workflow struct {
	cfg         config.InsightsConfig
	clientStore clients.Store
	costStore   costdata.Store
	detector    *anomaly.Detector
	analyzer    *trend.Analyzer
	forecaster  *forecast.Forecaster
	recommender *recommend.Engine
	aggregator  *Aggregator
	ranker      *Ranker
	narrative   NarrativeGenerator
	cache       *ResultCache
	logger      *logger.Logger
	tracer      trace.Tracer

	mu   sync.RWMutex
	runs map[string]*AIInsights
}

// NewWorkflow wires the workflow controller. A nil narrative generator
// degrades to the deterministic template.
func NewWorkflow(
	cfg config.InsightsConfig,
	clientStore clients.Store,
	costStore costdata.Store,
	detector *anomaly.Detector,
	analyzer *trend.Analyzer,
	forecaster *forecast.Forecaster,
	recommender *recommend.Engine,
	aggregator *Aggregator,
	ranker *Ranker,
	narrative NarrativeGenerator,
	log *logger.Logger,
) *Workflow {
	if cfg.CacheSize == 0 {
		cfg = config.Default().Insights
	}
	if narrative == nil {
		narrative = TemplateNarrative{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Workflow{
		cfg:         cfg,
		clientStore: clientStore,
		costStore:   costStore,
		detector:    detector,
		analyzer:    analyzer,
		forecaster:  forecaster,
		recommender: recommender,
		aggregator:  aggregator,
		ranker:      ranker,
		narrative:   narrative,
		cache:       NewResultCache(cfg),
		logger:      log.WithField("component", "insight_workflow"),
		tracer:      otel.Tracer("insights"),
		runs:        make(map[string]*AIInsights),
	}
}

// GetWorkflow returns a previously produced workflow result by id.
func (w *Workflow) GetWorkflow(workflowID string) (*AIInsights, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	run, ok := w.runs[workflowID]
	return run, ok
}

// RunWorkflow executes the full pipeline for the client over the date range.
// Client resolution is the only hard failure; every later step degrades to a
// fallback and the workflow completes with a reduced confidence score.
// Results are cached per client, range and data fingerprint.
func (w *Workflow) RunWorkflow(ctx context.Context, clientID string, dateRange costdata.DateRange) (*AIInsights, error) {
	ctx, span := w.tracer.Start(ctx, "insights.run_workflow",
		trace.WithAttributes(
			attribute.String("client_id", clientID),
			attribute.String("date_range.start", dateRange.Start),
			attribute.String("date_range.end", dateRange.End),
		))
	defer span.End()

	client, err := w.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("resolving client %s: %w", clientID, err)
	}

	result := &AIInsights{
		WorkflowID: uuid.New().String(),
		ClientID:   clientID,
		Status:     WorkflowRunning,
		DateRange:  dateRange,
		Insights:   []*Insight{},
		StartedAt:  time.Now().UTC(),
	}
	log := w.logger.WithFields(map[string]interface{}{
		logger.FieldClientID:   clientID,
		logger.FieldWorkflowID: result.WorkflowID,
	})
	log.Info("insight workflow started")

	// Step 1: collect cost data.
	var historical, current []*costdata.UnifiedCostRecord
	w.runStep(result, "collect_cost_data", log, func() error {
		var err error
		historical, current, err = w.loadRecords(ctx, clientID, dateRange)
		return err
	})

	// Cache check happens after the data fetch so a re-collection that
	// changed the records bypasses stale cache entries.
	cacheKey := CacheKey(clientID, dateRange, append(historical, current...))
	if cached, ok := w.cache.Get(cacheKey); ok {
		log.Info("serving insight workflow result from cache")
		copied := *cached
		copied.FromCache = true
		return &copied, nil
	}

	// Step 2: assess the attached data quality.
	w.runStep(result, "validate_data_quality", log, func() error {
		result.DataQualityScore = dataQualityScore(append(historical, current...))
		return nil
	})

	// Step 3: anomaly detection.
	w.runStep(result, "detect_anomalies", log, func() error {
		var budget *clients.BudgetInfo
		if client != nil {
			budget = client.Budget
		}
		result.Anomalies = w.detector.DetectAnomalies(ctx, clientID, historical, current, budget)
		return nil
	})
	if result.Anomalies == nil {
		result.Anomalies = &anomaly.Result{ClientID: clientID, Anomalies: []*anomaly.Anomaly{}}
	}

	// Step 4: trend analysis.
	w.runStep(result, "analyze_trends", log, func() error {
		result.Trends = w.analyzer.AnalyzeTrends(ctx, clientID, append(historical, current...))
		return nil
	})

	// Step 5: forecast.
	w.runStep(result, "generate_forecast", log, func() error {
		result.Forecast = w.forecaster.ForecastVsCurrent(ctx, clientID, historical, current, 0)
		return nil
	})

	// Step 6: recommendations.
	w.runStep(result, "generate_recommendations", log, func() error {
		result.Recommendations = w.recommender.GenerateRecommendations(ctx, clientID, &recommend.Inputs{
			Records:   append(historical, current...),
			Anomalies: result.Anomalies,
			Trends:    result.Trends,
			Forecast:  result.Forecast,
			Client:    client,
		})
		return nil
	})
	if result.Recommendations == nil {
		result.Recommendations = &recommend.Result{ClientID: clientID, Recommendations: []*recommend.Recommendation{}}
	}

	// Step 7: aggregate and rank.
	w.runStep(result, "aggregate_and_rank", log, func() error {
		aggregated := w.aggregator.Aggregate(clientID, result.Anomalies, result.Trends, result.Forecast, result.Recommendations)
		var clientContext *clients.ClientContext
		if client != nil {
			clientContext = client.Context
		}
		result.Insights = w.ranker.RankInsights(aggregated, clientContext)
		return nil
	})
	if result.Insights == nil {
		result.Insights = []*Insight{}
	}

	// Step 8: narrative and final assessment.
	w.runStep(result, "generate_narrative", log, func() error {
		result.RiskAssessment = assessRisks(result)
		summary, err := w.narrative.GenerateNarrative(ctx, result)
		if err != nil {
			// The template never fails; use it when the injected generator does.
			summary, _ = TemplateNarrative{}.GenerateNarrative(ctx, result)
			result.ExecutiveSummary = summary
			return err
		}
		result.ExecutiveSummary = summary
		return nil
	})
	if result.ExecutiveSummary == "" {
		result.ExecutiveSummary, _ = TemplateNarrative{}.GenerateNarrative(ctx, result)
	}

	result.ConfidenceScore = confidenceScore(result, len(current))
	result.Status = WorkflowCompleted
	now := time.Now().UTC()
	result.CompletedAt = &now

	w.mu.Lock()
	w.runs[result.WorkflowID] = result
	w.mu.Unlock()
	w.cache.Put(cacheKey, result)

	span.SetAttributes(
		attribute.Int("insight_count", len(result.Insights)),
		attribute.Int("failed_steps", result.FailedSteps()),
		attribute.Float64("confidence_score", result.ConfidenceScore),
	)
	log.Info("insight workflow completed: %d insights, %d failed steps, confidence %.2f",
		len(result.Insights), result.FailedSteps(), result.ConfidenceScore)
	return result, nil
}

// runStep executes one step with fault isolation, recording its outcome.
func (w *Workflow) runStep(result *AIInsights, name string, log *logger.Logger, fn func() error) {
	step := &StepResult{Name: name, StartedAt: time.Now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			step.Status = StepFailed
			step.Error = fmt.Sprintf("panic: %v", r)
			log.Error("workflow step %s panicked at %s: %v", name, step.StartedAt.Format(time.RFC3339), r)
		}
		step.Duration = time.Since(step.StartedAt)
		result.Steps = append(result.Steps, step)
	}()

	if err := fn(); err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		log.Error("workflow step %s failed at %s: %v", name, step.StartedAt.Format(time.RFC3339), err)
		return
	}
	step.Status = StepCompleted
}

// loadRecords fetches the analysis window plus a 30 day baseline before it.
func (w *Workflow) loadRecords(ctx context.Context, clientID string, dateRange costdata.DateRange) (historical, current []*costdata.UnifiedCostRecord, err error) {
	start, parseErr := time.Parse(costdata.DateFormat, dateRange.Start)
	if parseErr != nil {
		return nil, nil, fmt.Errorf("invalid range start %q: %w", dateRange.Start, parseErr)
	}

	histStart := start.AddDate(0, 0, -30).Format(costdata.DateFormat)
	histEnd := start.AddDate(0, 0, -1).Format(costdata.DateFormat)

	historical, err = w.costStore.GetCostDataRange(ctx, clientID, histStart, histEnd, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("loading historical records: %w", err)
	}
	current, err = w.costStore.GetCostDataRange(ctx, clientID, dateRange.Start, dateRange.End, nil)
	if err != nil {
		return historical, nil, fmt.Errorf("loading current records: %w", err)
	}
	return historical, current, nil
}

// dataQualityScore averages the overall scores attached to the records.
// Records that skipped validation count as neutral.
func dataQualityScore(records []*costdata.UnifiedCostRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, record := range records {
		if record.DataQuality != nil {
			sum += record.DataQuality.OverallScore
		} else {
			sum += 0.5
		}
	}
	return sum / float64(len(records))
}

// confidenceScore grades the workflow output from data volume, data
// quality, step health and analysis confidence.
func confidenceScore(result *AIInsights, currentDays int) float64 {
	volume := math.Min(float64(currentDays)/30, 1)

	stepHealth := 1.0
	if len(result.Steps) > 0 {
		stepHealth = 1 - float64(result.FailedSteps())/float64(len(result.Steps))
	}

	analysis := 0.5
	if result.Forecast != nil {
		analysis = result.Forecast.Confidence
	}

	score := 0.25*volume + 0.25*result.DataQualityScore + 0.2*stepHealth + 0.3*analysis
	return math.Min(math.Max(score, 0), 1)
}

// assessRisks lists the top risks the ranked output exposes.
func assessRisks(result *AIInsights) []string {
	var risks []string

	if result.Anomalies != nil {
		for _, a := range result.Anomalies.Anomalies {
			if a.Severity == anomaly.SeverityCritical {
				risks = append(risks, fmt.Sprintf("Critical anomaly: %s", a.Description))
			}
		}
	}
	if result.Forecast != nil && result.Forecast.IsTrendingUp {
		risk := fmt.Sprintf("Month-end spend projected %.0f%% above baseline", result.Forecast.DeviationFromBaseline*100)
		if result.Forecast.Accuracy == forecast.AccuracyVeryLow || result.Forecast.Accuracy == forecast.AccuracyLow {
			risk += " (projection backed by limited history)"
		}
		risks = append(risks, risk)
	}
	if result.DataQualityScore > 0 && result.DataQualityScore < 0.7 {
		risks = append(risks, fmt.Sprintf("Underlying data quality is weak (%.2f), findings may shift after re-collection", result.DataQualityScore))
	}
	if failed := result.FailedSteps(); failed > 0 {
		risks = append(risks, fmt.Sprintf("%d analysis steps fell back to defaults", failed))
	}

	if len(risks) > 5 {
		risks = risks[:5]
	}
	return risks
}
