// Package collection contains the orchestration core: collection tasks, the
// bounded-concurrency orchestrator that executes them, and the scheduler that
// turns wall-clock schedules into queued collection requests.
package collection

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/normalize"
	"github.com/jscharber/costlens/pkg/providers"
)

// TaskPriority orders competing collection work.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "LOW"
	PriorityNormal   TaskPriority = "NORMAL"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityCritical TaskPriority = "CRITICAL"
)

// TaskStatus is the lifecycle state of a collection task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// RetryPolicy computes backoff delays for failed tasks.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the symmetric fraction applied to each delay (0.2 = ±20%).
	Jitter float64
}

// CollectionTask is one unit of provider collection work for one client.
type CollectionTask struct {
	TaskID     string                 `json:"task_id"`
	ClientID   string                 `json:"client_id"`
	Provider   costdata.CloudProvider `json:"provider"`
	DateRange  costdata.DateRange     `json:"date_range"`
	Priority   TaskPriority           `json:"priority"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
	Status     TaskStatus             `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error string `json:"error,omitempty"`

	Result *providers.CollectionResult `json:"result,omitempty"`
}

// NewCollectionTask creates a pending task.
func NewCollectionTask(clientID string, provider costdata.CloudProvider, dateRange costdata.DateRange, priority TaskPriority, maxRetries int) *CollectionTask {
	return &CollectionTask{
		TaskID:     uuid.New().String(),
		ClientID:   clientID,
		Provider:   provider,
		DateRange:  dateRange,
		Priority:   priority,
		MaxRetries: maxRetries,
		Status:     TaskPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// NextRetryDelay returns the backoff delay before attempt retryCount+1:
// base doubled per retry, capped, with symmetric jitter applied.
func (p RetryPolicy) NextRetryDelay(retryCount int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(retryCount))
	if capped := float64(p.MaxDelay); delay > capped {
		delay = capped
	}
	if p.Jitter > 0 {
		// rand.Float64()*2-1 spans [-1, 1).
		delay *= 1 + p.Jitter*(rand.Float64()*2-1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsRetryable reports whether a task failure is worth retrying. Precondition
// violations (unknown client, tenant mismatch, malformed payloads) and
// cancellations never are; everything else is presumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var notFound *clients.ClientNotFoundError
	var validation *clients.ClientValidationError
	var isolation *clients.TenantIsolationError
	var badPayload *normalize.NormalizationError
	if errors.As(err, &notFound) || errors.As(err, &validation) ||
		errors.As(err, &isolation) || errors.As(err, &badPayload) {
		return false
	}
	return true
}
