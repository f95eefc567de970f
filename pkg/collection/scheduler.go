package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
	"github.com/jscharber/costlens/pkg/queue"
)

// cron rules per collection frequency. Daily and slower tiers fire in the
// early morning, after provider billing exports have settled.
var frequencyCronRules = map[clients.CollectionFrequency]string{
	clients.FrequencyHourly:  "0 * * * *",
	clients.FrequencyDaily:   "0 6 * * *",
	clients.FrequencyWeekly:  "0 6 * * 1",
	clients.FrequencyMonthly: "0 6 1 * *",
}

// tierConfig is the queue delay and visibility timeout for one priority.
type tierConfig struct {
	delay      time.Duration
	visibility time.Duration
}

var priorityTiers = map[TaskPriority]tierConfig{
	PriorityCritical: {delay: 0, visibility: 5 * time.Minute},
	PriorityHigh:     {delay: 30 * time.Second, visibility: 10 * time.Minute},
	PriorityNormal:   {delay: 2 * time.Minute, visibility: 15 * time.Minute},
	PriorityLow:      {delay: 5 * time.Minute, visibility: 30 * time.Minute},
}

// CollectionRequest is the queued message body driving one orchestration.
type CollectionRequest struct {
	RequestID string                   `json:"request_id"`
	ClientID  string                   `json:"client_id"`
	Providers []costdata.CloudProvider `json:"providers,omitempty"`
	DateRange costdata.DateRange       `json:"date_range"`
	Priority  TaskPriority             `json:"priority"`
	Attempt   int                      `json:"attempt"`
}

// Runner executes an orchestration for a queued request. The orchestrator
// satisfies it; tests substitute a fake.
type Runner interface {
	OrchestrateCollection(ctx context.Context, clientID string, dateRange costdata.DateRange, providers []costdata.CloudProvider, priority TaskPriority) (*OrchestrationResult, error)
}

// Scheduler maps wall-clock schedules onto queued collection requests and
// drives queue consumption with retry and dead-letter routing.
type Scheduler struct {
	cfg         config.SchedulerConfig
	clientStore clients.Store
	requests    queue.Queue
	deadLetter  queue.Queue
	runner      Runner
	logger      *logger.Logger
	tracer      trace.Tracer

	cron *cron.Cron

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

// NewScheduler wires a scheduler. The dead-letter queue may differ from the
// request queue but must never be nil: exhausted requests are recorded, not
// dropped.
func NewScheduler(cfg config.SchedulerConfig, clientStore clients.Store, requests, deadLetter queue.Queue, runner Runner, log *logger.Logger) *Scheduler {
	if cfg.ReceiveBatchSize <= 0 {
		cfg = config.Default().Scheduler
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Scheduler{
		cfg:         cfg,
		clientStore: clientStore,
		requests:    requests,
		deadLetter:  deadLetter,
		runner:      runner,
		logger:      log.WithField("component", "scheduler"),
		tracer:      otel.Tracer("collection"),
	}
}

// Start registers the cron rules and begins consuming the request queue in
// the background. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cron = cron.New()
	for frequency, rule := range frequencyCronRules {
		frequency := frequency
		if _, err := s.cron.AddFunc(rule, func() { s.enqueueDue(runCtx, frequency) }); err != nil {
			cancel()
			return fmt.Errorf("registering %s cron rule: %w", frequency, err)
		}
	}
	s.cron.Start()

	s.stop = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.consume(runCtx)

	s.logger.Info("scheduler started")
	return nil
}

// Stop halts cron firing and queue consumption, waiting for the in-flight
// batch to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	cronStop := s.cron.Stop()
	s.mu.Unlock()

	stop()
	<-cronStop.Done()
	<-done
	s.logger.Info("scheduler stopped")
}

// ScheduleOption adjusts one on-demand collection request before it is
// enqueued.
type ScheduleOption func(*CollectionRequest)

// WithProviders restricts the request to a subset of the client's configured
// providers. An empty list leaves the request covering all of them.
func WithProviders(providers ...costdata.CloudProvider) ScheduleOption {
	return func(r *CollectionRequest) {
		if len(providers) > 0 {
			r.Providers = providers
		}
	}
}

// WithPriority pins the queue priority instead of deriving it from the
// client's tier and frequency.
func WithPriority(priority TaskPriority) ScheduleOption {
	return func(r *CollectionRequest) {
		if priority != "" {
			r.Priority = priority
		}
	}
}

// ScheduleCollection enqueues one on-demand collection request for a client
// and returns the request id. When no explicit priority is given the
// client's tier decides the queue priority: enterprise clients jump to
// CRITICAL regardless of frequency.
func (s *Scheduler) ScheduleCollection(ctx context.Context, clientID string, frequency clients.CollectionFrequency, opts ...ScheduleOption) (string, error) {
	ctx, span := s.tracer.Start(ctx, "collection.schedule",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("resolving client %s: %w", clientID, err)
	}

	request := &CollectionRequest{
		RequestID: uuid.New().String(),
		ClientID:  clientID,
		DateRange: frequencyDateRange(frequency, time.Now().UTC()),
		Priority:  priorityFor(client.Tier, frequency),
	}
	for _, opt := range opts {
		opt(request)
	}
	if err := s.enqueue(ctx, request); err != nil {
		return "", err
	}

	s.logger.WithFields(map[string]interface{}{
		logger.FieldClientID: clientID,
		"request_id":         request.RequestID,
		"priority":           string(request.Priority),
	}).Info("collection scheduled")
	return request.RequestID, nil
}

// enqueueDue schedules every client configured for the firing frequency.
// Clients with no explicit frequency are collected on the daily rule.
func (s *Scheduler) enqueueDue(ctx context.Context, frequency clients.CollectionFrequency) {
	all, err := s.clientStore.ListClients(ctx)
	if err != nil {
		s.logger.Error("listing clients for %s schedule: %v", frequency, err)
		return
	}

	scheduled := 0
	for _, client := range all {
		effective := client.Frequency
		if effective == "" {
			effective = clients.FrequencyDaily
		}
		if effective != frequency {
			continue
		}
		if _, err := s.ScheduleCollection(ctx, client.ClientID, frequency); err != nil {
			s.logger.Error("scheduling %s collection for %s: %v", frequency, client.ClientID, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		s.logger.Info("%s schedule fired, %d clients enqueued", frequency, scheduled)
	}
}

func (s *Scheduler) enqueue(ctx context.Context, request *CollectionRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding collection request: %w", err)
	}

	tier := priorityTiers[request.Priority]
	return s.requests.Send(ctx, &queue.Message{
		ID:                request.RequestID,
		Body:              string(body),
		Delay:             tier.delay,
		VisibilityTimeout: tier.visibility,
		Attributes: map[string]string{
			"client_id": request.ClientID,
			"priority":  string(request.Priority),
		},
	})
}

func (s *Scheduler) consume(ctx context.Context) {
	defer close(s.done)
	for {
		if err := s.ProcessQueueMessages(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("queue consumption error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// ProcessQueueMessages receives one batch of collection requests and runs
// them. Failed requests are re-enqueued with exponentially growing delay up
// to the retry limit, then routed to the dead-letter queue with the final
// error recorded.
func (s *Scheduler) ProcessQueueMessages(ctx context.Context) error {
	msgs, err := s.requests.Receive(ctx, s.cfg.ReceiveBatchSize, s.cfg.ReceiveWait)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		s.handleMessage(ctx, msg)
	}
	return nil
}

func (s *Scheduler) handleMessage(ctx context.Context, msg *queue.Message) {
	var request CollectionRequest
	if err := json.Unmarshal([]byte(msg.Body), &request); err != nil {
		// A body that never parses will never succeed; dead-letter it now.
		s.logger.Error("undecodable collection request %s: %v", msg.ID, err)
		s.routeToDeadLetter(ctx, msg, fmt.Sprintf("undecodable body: %v", err))
		s.ack(ctx, msg)
		return
	}

	log := s.logger.WithFields(map[string]interface{}{
		logger.FieldClientID: request.ClientID,
		"request_id":         request.RequestID,
		"attempt":            request.Attempt,
	})

	result, err := s.runner.OrchestrateCollection(ctx, request.ClientID, request.DateRange, request.Providers, request.Priority)
	switch {
	case err != nil && !IsRetryable(err):
		log.Error("collection request failed on a precondition, dead-lettering: %v", err)
		s.routeToDeadLetter(ctx, msg, err.Error())
	case err != nil || result.Status == OrchestrationFailed:
		reason := orchestrationFailureReason(result, err)
		if request.Attempt >= s.cfg.MaxRetries {
			log.Error("collection request exhausted %d retries, dead-lettering: %s", request.Attempt, reason)
			s.routeToDeadLetter(ctx, msg, reason)
			break
		}
		request.Attempt++
		retry := request
		if requeueErr := s.requeue(ctx, &retry); requeueErr != nil {
			log.Error("re-enqueueing failed request: %v", requeueErr)
			// Leave the original message to reappear after its visibility
			// timeout rather than losing the request.
			return
		}
		log.Warn("collection request failed, re-enqueued as attempt %d: %s", retry.Attempt, reason)
	default:
		log.Info("collection request finished: %s", result.Status)
	}

	s.ack(ctx, msg)
}

// requeue sends a retry copy with delay doubling per attempt.
func (s *Scheduler) requeue(ctx context.Context, request *CollectionRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	tier := priorityTiers[request.Priority]
	delay := 30 * time.Second
	for i := 1; i < request.Attempt; i++ {
		delay *= 2
	}
	return s.requests.Send(ctx, &queue.Message{
		ID:                uuid.New().String(),
		Body:              string(body),
		Delay:             delay,
		VisibilityTimeout: tier.visibility,
		Attributes: map[string]string{
			"client_id": request.ClientID,
			"priority":  string(request.Priority),
			"attempt":   fmt.Sprintf("%d", request.Attempt),
		},
	})
}

func (s *Scheduler) routeToDeadLetter(ctx context.Context, msg *queue.Message, reason string) {
	dead := &queue.Message{
		ID:         uuid.New().String(),
		Body:       msg.Body,
		Attributes: map[string]string{"failure_reason": reason},
	}
	for key, value := range msg.Attributes {
		dead.Attributes[key] = value
	}
	if err := s.deadLetter.Send(ctx, dead); err != nil {
		s.logger.Error("dead-letter send failed for %s: %v", msg.ID, err)
	}
}

func (s *Scheduler) ack(ctx context.Context, msg *queue.Message) {
	if err := s.requests.Delete(ctx, msg.Receipt); err != nil {
		s.logger.Warn("deleting message %s: %v", msg.ID, err)
	}
}

func orchestrationFailureReason(result *OrchestrationResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result != nil && result.Error != "" {
		return result.Error
	}
	return "all collection tasks failed"
}

// priorityFor maps a client tier and frequency to a queue priority.
func priorityFor(tier clients.ClientTier, frequency clients.CollectionFrequency) TaskPriority {
	if tier == clients.TierEnterprise {
		return PriorityCritical
	}
	switch frequency {
	case clients.FrequencyHourly:
		return PriorityHigh
	case clients.FrequencyDaily:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// frequencyDateRange maps a frequency to the date range it should collect.
// Daily and slower tiers end at yesterday because provider billing data for
// the current day is still settling.
func frequencyDateRange(frequency clients.CollectionFrequency, now time.Time) costdata.DateRange {
	today := now.Format(costdata.DateFormat)
	yesterday := now.AddDate(0, 0, -1).Format(costdata.DateFormat)
	switch frequency {
	case clients.FrequencyHourly:
		return costdata.DateRange{Start: today, End: today}
	case clients.FrequencyWeekly:
		return costdata.DateRange{Start: now.AddDate(0, 0, -7).Format(costdata.DateFormat), End: yesterday}
	case clients.FrequencyMonthly:
		return costdata.DateRange{Start: now.AddDate(0, 0, -30).Format(costdata.DateFormat), End: yesterday}
	default:
		return costdata.DateRange{Start: yesterday, End: yesterday}
	}
}
