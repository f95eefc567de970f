// Package providers defines the adapter contract every cloud billing source
// implements, and the provider-native payload schemas those adapters emit.
// Adapters are treated as opaque collaborators by the orchestration layer:
// they either return a typed payload or a typed failure, never both.
package providers

import (
	"context"
	"time"

	"github.com/jscharber/costlens/pkg/costdata"
)

// CollectionStatus classifies an adapter call outcome.
type CollectionStatus string

const (
	StatusSuccess CollectionStatus = "SUCCESS"
	StatusFailure CollectionStatus = "FAILURE"
	StatusPartial CollectionStatus = "PARTIAL"
)

// CollectionResult is the outcome of one adapter collection call.
type CollectionResult struct {
	Status  CollectionStatus `json:"status"`
	Payload *CostPayload     `json:"payload,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Adapter abstracts a single cloud provider's billing API. Implementations
// must be idempotent for the same date range: collecting twice yields
// equivalent payloads.
type Adapter interface {
	// Name returns the provider this adapter collects for.
	Name() costdata.CloudProvider

	// CollectCostData fetches provider-native billing data for the range.
	// Transport-level failures are returned as an error (retryable by the
	// caller); a degraded-but-usable response is StatusPartial.
	CollectCostData(ctx context.Context, dateRange costdata.DateRange) (*CollectionResult, error)
}

// CostPayload is the tagged union of provider-native billing responses. The
// Provider field discriminates; exactly one of the per-provider schemas is
// populated. Normalization branches once on the tag and never inspects
// loose maps.
type CostPayload struct {
	Provider costdata.CloudProvider `json:"provider"`

	AWS   *AWSPayload   `json:"aws,omitempty"`
	GCP   *GCPPayload   `json:"gcp,omitempty"`
	Azure *AzurePayload `json:"azure,omitempty"`
}

// IsEmpty reports whether the payload carries no cost figures at all. An
// empty payload is a valid zero-spend response, not a failure.
func (p *CostPayload) IsEmpty() bool {
	if p == nil {
		return true
	}
	switch {
	case p.AWS != nil:
		return len(p.AWS.ServiceCosts) == 0 && len(p.AWS.AccountCosts) == 0 && p.AWS.TotalUnblended == 0
	case p.GCP != nil:
		return len(p.GCP.ServiceCosts) == 0 && len(p.GCP.ProjectCosts) == 0 && p.GCP.TotalCost == 0
	case p.Azure != nil:
		return len(p.Azure.ServiceCosts) == 0 && len(p.Azure.SubscriptionCosts) == 0 && p.Azure.PreTaxCost == 0
	}
	return true
}

// AWSPayload mirrors the shape of a Cost Explorer GetCostAndUsage response
// after the SDK types have been flattened.
type AWSPayload struct {
	Date           string              `json:"date"`
	Currency       string              `json:"currency"`
	TotalUnblended float64             `json:"total_unblended"`
	ServiceCosts   []AWSServiceCost    `json:"service_costs"`
	AccountCosts   []AWSAccountCost    `json:"account_costs,omitempty"`
	RegionCosts    map[string]float64  `json:"region_costs,omitempty"`
	CollectedAt    time.Time           `json:"collected_at"`
	FreshnessHours float64             `json:"freshness_hours"`
}

// AWSServiceCost is one SERVICE group from Cost Explorer.
type AWSServiceCost struct {
	ServiceName string  `json:"service_name"`
	Amount      float64 `json:"amount"`
}

// AWSAccountCost is one LINKED_ACCOUNT group from Cost Explorer.
type AWSAccountCost struct {
	AccountID   string  `json:"account_id"`
	AccountName string  `json:"account_name,omitempty"`
	Amount      float64 `json:"amount"`
}

// GCPPayload mirrors a BigQuery billing export rollup for one day.
type GCPPayload struct {
	UsageDate      string             `json:"usage_date"`
	CurrencyCode   string             `json:"currency_code"`
	TotalCost      float64            `json:"total_cost"`
	ServiceCosts   map[string]float64 `json:"service_costs"`
	ProjectCosts   map[string]float64 `json:"project_costs,omitempty"`
	LocationCosts  map[string]float64 `json:"location_costs,omitempty"`
	ExportedAt     time.Time          `json:"exported_at"`
	FreshnessHours float64            `json:"freshness_hours"`
}

// AzurePayload mirrors a Cost Management query rollup for one day.
type AzurePayload struct {
	UsageDate         string             `json:"usage_date"`
	Currency          string             `json:"currency"`
	PreTaxCost        float64            `json:"pre_tax_cost"`
	ServiceCosts      map[string]float64 `json:"service_costs"`
	SubscriptionCosts map[string]float64 `json:"subscription_costs,omitempty"`
	LocationCosts     map[string]float64 `json:"location_costs,omitempty"`
	RetrievedAt       time.Time          `json:"retrieved_at"`
	FreshnessHours    float64            `json:"freshness_hours"`
}
