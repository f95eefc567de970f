package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
	"github.com/jscharber/costlens/pkg/normalize"
	"github.com/jscharber/costlens/pkg/providers"
	"github.com/jscharber/costlens/pkg/quality"
)

// OrchestrationStatus summarizes how a multi-provider collection run ended.
type OrchestrationStatus string

const (
	OrchestrationCompleted OrchestrationStatus = "COMPLETED"
	OrchestrationPartial   OrchestrationStatus = "PARTIAL"
	OrchestrationFailed    OrchestrationStatus = "FAILED"
)

// OrchestrationResult aggregates per-task outcomes for one orchestration
// call. Callers must treat PARTIAL as valid-but-degraded, not an error.
type OrchestrationResult struct {
	OrchestrationID string              `json:"orchestration_id"`
	ClientID        string              `json:"client_id"`
	Status          OrchestrationStatus `json:"status"`
	DateRange       costdata.DateRange  `json:"date_range"`
	Tasks           []*CollectionTask   `json:"tasks"`
	StartedAt       time.Time           `json:"started_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// SucceededTasks counts tasks that reached COMPLETED.
func (r *OrchestrationResult) SucceededTasks() int {
	n := 0
	for _, task := range r.Tasks {
		if task.Status == TaskCompleted {
			n++
		}
	}
	return n
}

// Orchestrator executes collection tasks under a global and a per-provider
// concurrency bound, retries transient failures with exponential backoff, and
// persists normalized, quality-validated records.
type Orchestrator struct {
	cfg         config.CollectionConfig
	clientStore clients.Store
	adapters    map[costdata.CloudProvider]providers.Adapter
	normalizer  *normalize.Normalizer
	validator   *quality.Engine
	costStore   costdata.Store
	logger      *logger.Logger
	tracer      trace.Tracer

	globalSem    chan struct{}
	providerSems map[costdata.CloudProvider]chan struct{}
	limiters     map[costdata.CloudProvider]*rate.Limiter
	retryPolicy  RetryPolicy

	mu      sync.RWMutex
	results map[string]*OrchestrationResult
	cancels map[string]context.CancelFunc
}

// NewOrchestrator wires an orchestrator. Adapters are registered per
// provider; a task for a provider without an adapter fails without retry.
func NewOrchestrator(
	cfg config.CollectionConfig,
	clientStore clients.Store,
	adapters map[costdata.CloudProvider]providers.Adapter,
	normalizer *normalize.Normalizer,
	validator *quality.Engine,
	costStore costdata.Store,
	log *logger.Logger,
) *Orchestrator {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg = config.Default().Collection
	}
	if log == nil {
		log = logger.GetDefault()
	}

	providerSems := make(map[costdata.CloudProvider]chan struct{})
	limiters := make(map[costdata.CloudProvider]*rate.Limiter)
	for _, provider := range costdata.AllProviders() {
		providerSems[provider] = make(chan struct{}, cfg.MaxConcurrentPerProvider)
		limiters[provider] = rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), cfg.ProviderRateBurst)
	}

	return &Orchestrator{
		cfg:          cfg,
		clientStore:  clientStore,
		adapters:     adapters,
		normalizer:   normalizer,
		validator:    validator,
		costStore:    costStore,
		logger:       log.WithField("component", "orchestrator"),
		tracer:       otel.Tracer("collection"),
		globalSem:    make(chan struct{}, cfg.MaxConcurrentTasks),
		providerSems: providerSems,
		limiters:     limiters,
		retryPolicy: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
			Jitter:     cfg.RetryJitter,
		},
		results: make(map[string]*OrchestrationResult),
		cancels: make(map[string]context.CancelFunc),
	}
}

// OrchestrateCollection collects cost data for one client across the given
// providers (all configured providers when nil) and returns the aggregated
// result. Client resolution failures abort the whole call with a synthetic
// FAILED result; per-task adapter failures never abort sibling tasks.
func (o *Orchestrator) OrchestrateCollection(ctx context.Context, clientID string, dateRange costdata.DateRange, requested []costdata.CloudProvider, priority TaskPriority) (*OrchestrationResult, error) {
	ctx, span := o.tracer.Start(ctx, "collection.orchestrate",
		trace.WithAttributes(
			attribute.String("client_id", clientID),
			attribute.String("date_range.start", dateRange.Start),
			attribute.String("date_range.end", dateRange.End),
		))
	defer span.End()

	if priority == "" {
		priority = PriorityNormal
	}

	result := &OrchestrationResult{
		OrchestrationID: uuid.New().String(),
		ClientID:        clientID,
		DateRange:       dateRange,
		StartedAt:       time.Now().UTC(),
	}
	log := o.logger.WithFields(map[string]interface{}{
		logger.FieldClientID:        clientID,
		logger.FieldOrchestrationID: result.OrchestrationID,
	})

	client, err := o.clientStore.GetClient(ctx, clientID)
	if err != nil {
		result.Status = OrchestrationFailed
		result.Error = err.Error()
		o.finish(result)
		log.Error("client resolution failed: %v", err)
		return result, fmt.Errorf("resolving client %s: %w", clientID, err)
	}

	if len(requested) == 0 {
		requested = client.Providers()
	}
	if len(requested) == 0 {
		err := &clients.ClientValidationError{ClientID: clientID, Reason: "no enabled cloud accounts"}
		result.Status = OrchestrationFailed
		result.Error = err.Error()
		o.finish(result)
		return result, err
	}

	for _, provider := range requested {
		result.Tasks = append(result.Tasks,
			NewCollectionTask(clientID, provider, dateRange, priority, o.cfg.MaxRetries))
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.results[result.OrchestrationID] = result
	o.cancels[result.OrchestrationID] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.cancels, result.OrchestrationID)
		o.mu.Unlock()
	}()

	log.Info("orchestration started with %d tasks", len(result.Tasks))

	var wg sync.WaitGroup
	for _, task := range result.Tasks {
		wg.Add(1)
		go func(task *CollectionTask) {
			defer wg.Done()
			o.executeTask(runCtx, task)
		}(task)
	}
	wg.Wait()

	succeeded := result.SucceededTasks()
	switch {
	case succeeded == len(result.Tasks):
		result.Status = OrchestrationCompleted
	case succeeded > 0:
		result.Status = OrchestrationPartial
	default:
		result.Status = OrchestrationFailed
	}
	o.finish(result)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("tasks.succeeded", succeeded),
		attribute.Int("tasks.total", len(result.Tasks)),
	)
	log.Info("orchestration finished: %s (%d/%d tasks succeeded)",
		result.Status, succeeded, len(result.Tasks))
	return result, nil
}

// GetOrchestration returns a previously started orchestration result by id.
func (o *Orchestrator) GetOrchestration(orchestrationID string) (*OrchestrationResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	result, ok := o.results[orchestrationID]
	return result, ok
}

// CancelOrchestration cancels an in-flight orchestration. Tasks already past
// their adapter call still persist their records.
func (o *Orchestrator) CancelOrchestration(orchestrationID string) bool {
	o.mu.RLock()
	cancel, ok := o.cancels[orchestrationID]
	o.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) finish(result *OrchestrationResult) {
	now := time.Now().UTC()
	result.CompletedAt = &now
	o.mu.Lock()
	o.results[result.OrchestrationID] = result
	o.mu.Unlock()
}

// executeTask runs one task to a terminal status, retrying in place with
// backoff. Both semaphores are held for the task's whole attempt sequence so
// a retrying task does not release capacity it will immediately need again.
func (o *Orchestrator) executeTask(ctx context.Context, task *CollectionTask) {
	log := o.logger.WithFields(map[string]interface{}{
		logger.FieldClientID: task.ClientID,
		"task_id":            task.TaskID,
		"provider":           string(task.Provider),
	})

	select {
	case o.globalSem <- struct{}{}:
		defer func() { <-o.globalSem }()
	case <-ctx.Done():
		o.failTask(task, ctx.Err())
		return
	}

	providerSem, ok := o.providerSems[task.Provider]
	if !ok {
		o.failTask(task, fmt.Errorf("unsupported provider %s", task.Provider))
		return
	}
	select {
	case providerSem <- struct{}{}:
		defer func() { <-providerSem }()
	case <-ctx.Done():
		o.failTask(task, ctx.Err())
		return
	}

	adapter, ok := o.adapters[task.Provider]
	if !ok {
		o.failTask(task, fmt.Errorf("no adapter registered for provider %s", task.Provider))
		return
	}

	now := time.Now().UTC()
	task.StartedAt = &now
	task.Status = TaskRunning
	log.Info("task started")

	for {
		err := o.attempt(ctx, adapter, task)
		if err == nil {
			completed := time.Now().UTC()
			task.CompletedAt = &completed
			task.Status = TaskCompleted
			task.Error = ""
			log.Info("task completed")
			return
		}

		task.Error = err.Error()
		if !IsRetryable(err) || task.RetryCount >= task.MaxRetries {
			o.failTask(task, err)
			log.Error("task failed permanently after %d attempts: %v", task.RetryCount+1, err)
			return
		}

		delay := o.retryPolicy.NextRetryDelay(task.RetryCount)
		task.RetryCount++
		log.Warn("task attempt %d failed, retrying in %s: %v", task.RetryCount, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			o.failTask(task, ctx.Err())
			return
		}
	}
}

// attempt performs one adapter call plus downstream normalize, validate and
// persist. Any returned error counts as one failed attempt.
func (o *Orchestrator) attempt(ctx context.Context, adapter providers.Adapter, task *CollectionTask) error {
	if limiter, ok := o.limiters[task.Provider]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	result, err := adapter.CollectCostData(ctx, task.DateRange)
	if err != nil {
		return err
	}
	task.Result = result
	if result.Status == providers.StatusFailure {
		return fmt.Errorf("adapter reported failure: %s", result.Error)
	}

	var record *costdata.UnifiedCostRecord
	if result.Payload.IsEmpty() {
		// Zero spend for the range is a valid outcome.
		record = o.emptyRecord(task)
	} else {
		record, err = o.normalizer.Normalize(task.ClientID, result.Payload)
		if err != nil {
			return err
		}
	}

	validation := o.validator.Validate(ctx, record, result.Payload)
	record.DataQuality = validation.DataQuality()

	if err := o.costStore.StoreCostRecord(ctx, record); err != nil {
		return fmt.Errorf("persisting cost record: %w", err)
	}
	return nil
}

func (o *Orchestrator) emptyRecord(task *CollectionTask) *costdata.UnifiedCostRecord {
	return &costdata.UnifiedCostRecord{
		ClientID: task.ClientID,
		Provider: task.Provider,
		Date:     task.DateRange.End,
		Currency: normalize.CanonicalCurrency,
		Services: map[string]costdata.ServiceCost{},
		Accounts: map[string]costdata.AccountCost{},
		Regions:  map[string]costdata.RegionCost{},
		CollectionMetadata: &costdata.CollectionMetadata{
			CollectedAt: time.Now().UTC(),
			Source:      "empty provider response",
		},
	}
}

func (o *Orchestrator) failTask(task *CollectionTask, err error) {
	now := time.Now().UTC()
	task.CompletedAt = &now
	task.Status = TaskFailed
	if err != nil {
		task.Error = err.Error()
	}
}
