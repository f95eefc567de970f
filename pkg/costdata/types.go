// Package costdata defines the unified cost record model shared by every
// component in the pipeline. Provider-native billing payloads are normalized
// into these types once, at collection time, and all downstream analysis
// operates on them.
package costdata

import (
	"context"
	"time"
)

// CloudProvider identifies a supported cloud billing source.
type CloudProvider string

const (
	ProviderAWS   CloudProvider = "AWS"
	ProviderGCP   CloudProvider = "GCP"
	ProviderAzure CloudProvider = "AZURE"
)

// AllProviders returns every supported provider in a stable order.
func AllProviders() []CloudProvider {
	return []CloudProvider{ProviderAWS, ProviderGCP, ProviderAzure}
}

// Valid reports whether the provider is one of the supported values.
func (p CloudProvider) Valid() bool {
	switch p {
	case ProviderAWS, ProviderGCP, ProviderAzure:
		return true
	}
	return false
}

// ConfidenceLevel expresses how much a consumer should trust a record or
// analysis result.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// DateFormat is the calendar-date layout used throughout the pipeline.
const DateFormat = "2006-01-02"

// DateRange is an inclusive calendar date range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Days returns the number of calendar days covered by the range, or 0 when
// either bound fails to parse.
func (r DateRange) Days() int {
	start, err := time.Parse(DateFormat, r.Start)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateFormat, r.End)
	if err != nil {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// ServiceCost is the normalized cost of one provider service on one date.
type ServiceCost struct {
	Cost            float64 `json:"cost"`
	UnifiedCategory string  `json:"unified_category"`
}

// AccountCost is the normalized cost attributed to one billing account.
type AccountCost struct {
	Cost        float64 `json:"cost"`
	AccountName string  `json:"account_name,omitempty"`
}

// RegionCost is the normalized cost attributed to one provider region.
type RegionCost struct {
	Cost float64 `json:"cost"`
}

// CollectionMetadata records how and when a cost record was collected.
type CollectionMetadata struct {
	CollectedAt        time.Time `json:"collected_at"`
	DataFreshnessHours float64   `json:"data_freshness_hours"`
	Source             string    `json:"source,omitempty"`
}

// DataQuality is attached 1:1 to a UnifiedCostRecord by the quality engine.
type DataQuality struct {
	CompletenessScore  float64         `json:"completeness_score"`
	AccuracyScore      float64         `json:"accuracy_score"`
	ConsistencyScore   float64         `json:"consistency_score"`
	TimelinessScore    float64         `json:"timeliness_score"`
	ValidityScore      float64         `json:"validity_score"`
	OverallScore       float64         `json:"overall_score"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	ValidationErrors   []string        `json:"validation_errors,omitempty"`
	ValidationWarnings []string        `json:"validation_warnings,omitempty"`
	ValidatedAt        time.Time       `json:"validated_at"`
}

// UnifiedCostRecord is one provider's total cost for one client on one
// calendar date, with per-service, per-account and per-region breakdowns.
//
// Records are immutable once quality-validated; re-collection for the same
// (client, provider, date) key supersedes the previous record via upsert, it
// never mutates it in place.
type UnifiedCostRecord struct {
	ClientID  string        `json:"client_id"`
	Provider  CloudProvider `json:"provider"`
	Date      string        `json:"date"`
	Currency  string        `json:"currency"`
	TotalCost float64       `json:"total_cost"`

	Services map[string]ServiceCost `json:"services,omitempty"`
	Accounts map[string]AccountCost `json:"accounts,omitempty"`
	Regions  map[string]RegionCost  `json:"regions,omitempty"`

	CollectionMetadata *CollectionMetadata `json:"collection_metadata,omitempty"`
	DataQuality        *DataQuality        `json:"data_quality,omitempty"`
}

// Key returns the upsert key identifying this record in the cost store.
func (r *UnifiedCostRecord) Key() string {
	return r.ClientID + ":" + string(r.Provider) + ":" + r.Date
}

// ServicesTotal returns the sum of all per-service costs.
func (r *UnifiedCostRecord) ServicesTotal() float64 {
	var total float64
	for _, svc := range r.Services {
		total += svc.Cost
	}
	return total
}

// AccountsTotal returns the sum of all per-account costs.
func (r *UnifiedCostRecord) AccountsTotal() float64 {
	var total float64
	for _, acct := range r.Accounts {
		total += acct.Cost
	}
	return total
}

// Store persists unified cost records. Implementations must treat
// (client_id, provider, date) as the upsert key: storing a record for an
// existing key replaces the stored record (last writer wins). Concurrent
// writers for the same key are serialized by the implementation.
type Store interface {
	// StoreCostRecord upserts a record by (client_id, provider, date).
	StoreCostRecord(ctx context.Context, record *UnifiedCostRecord) error

	// GetCostDataRange returns records for a client within [start, end],
	// optionally filtered to a single provider, ordered by date ascending.
	GetCostDataRange(ctx context.Context, clientID, start, end string, provider *CloudProvider) ([]*UnifiedCostRecord, error)
}
