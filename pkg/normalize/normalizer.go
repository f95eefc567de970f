// Package normalize converts provider-native billing payloads into the
// unified cost record schema. Normalization is a pure function over the
// payload and a supplied exchange-rate table: it never persists, never
// substitutes zero for missing required fields, and flags disagreements
// instead of silently trusting either source.
package normalize

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/providers"
)

// CanonicalCurrency is the currency every record is normalized into.
const CanonicalCurrency = "USD"

// NormalizationError indicates a payload that cannot be normalized at all:
// no recognizable date, or no cost figures of any kind.
type NormalizationError struct {
	Provider costdata.CloudProvider
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize %s payload: %s", e.Provider, e.Reason)
}

// RateTable supplies exchange rates into the canonical currency.
type RateTable interface {
	// Rate returns the multiplier converting one unit of currency into the
	// canonical currency, or an error for unknown currencies.
	Rate(currency string) (decimal.Decimal, error)
}

// StaticRates is a fixed in-memory rate table.
type StaticRates map[string]decimal.Decimal

// Rate implements RateTable. The canonical currency always converts at
// identity even when absent from the table.
func (r StaticRates) Rate(currency string) (decimal.Decimal, error) {
	if currency == CanonicalCurrency {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := r[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no exchange rate for currency %s", currency)
	}
	return rate, nil
}

// Normalizer converts provider payloads into unified cost records.
type Normalizer struct {
	rates RateTable
	// tolerance is the relative gap between the provider's stated total and
	// the recomputed service sum beyond which the recomputed value wins and
	// a warning is attached.
	tolerance decimal.Decimal
}

// New creates a normalizer. A nil rate table accepts only the canonical
// currency; a tolerance of zero or less falls back to the configured
// provider-total tolerance.
func New(rates RateTable, totalTolerance float64) *Normalizer {
	if rates == nil {
		rates = StaticRates{}
	}
	if totalTolerance <= 0 {
		totalTolerance = config.Default().Quality.ProviderTotalTolerance
	}
	return &Normalizer{rates: rates, tolerance: decimal.NewFromFloat(totalTolerance)}
}

// Normalize converts one provider payload into a unified cost record for the
// given client. The returned record carries normalization warnings in its
// collection metadata source field; quality validation happens downstream.
func (n *Normalizer) Normalize(clientID string, payload *providers.CostPayload) (*costdata.UnifiedCostRecord, error) {
	if payload == nil {
		return nil, &NormalizationError{Reason: "nil payload"}
	}

	switch payload.Provider {
	case costdata.ProviderAWS:
		if payload.AWS == nil {
			return nil, &NormalizationError{Provider: payload.Provider, Reason: "missing AWS payload body"}
		}
		return n.normalizeAWS(clientID, payload.AWS)
	case costdata.ProviderGCP:
		if payload.GCP == nil {
			return nil, &NormalizationError{Provider: payload.Provider, Reason: "missing GCP payload body"}
		}
		return n.normalizeGCP(clientID, payload.GCP)
	case costdata.ProviderAzure:
		if payload.Azure == nil {
			return nil, &NormalizationError{Provider: payload.Provider, Reason: "missing Azure payload body"}
		}
		return n.normalizeAzure(clientID, payload.Azure)
	default:
		return nil, &NormalizationError{Provider: payload.Provider, Reason: "unknown provider"}
	}
}

func (n *Normalizer) normalizeAWS(clientID string, p *providers.AWSPayload) (*costdata.UnifiedCostRecord, error) {
	if err := validDate(p.Date); err != nil {
		return nil, &NormalizationError{Provider: costdata.ProviderAWS, Reason: err.Error()}
	}
	if len(p.ServiceCosts) == 0 && len(p.AccountCosts) == 0 && p.TotalUnblended == 0 {
		return nil, &NormalizationError{Provider: costdata.ProviderAWS, Reason: "payload carries no cost figures"}
	}

	rate, err := n.rates.Rate(p.Currency)
	if err != nil {
		return nil, &NormalizationError{Provider: costdata.ProviderAWS, Reason: err.Error()}
	}

	record := newRecord(clientID, costdata.ProviderAWS, p.Date, p.CollectedAt, p.FreshnessHours)

	serviceSum := decimal.Zero
	for _, svc := range p.ServiceCosts {
		cost := convert(svc.Amount, rate)
		serviceSum = serviceSum.Add(cost)
		record.Services[svc.ServiceName] = costdata.ServiceCost{
			Cost:            cost.InexactFloat64(),
			UnifiedCategory: costdata.UnifiedCategory(svc.ServiceName),
		}
	}
	for _, acct := range p.AccountCosts {
		record.Accounts[acct.AccountID] = costdata.AccountCost{
			Cost:        convert(acct.Amount, rate).InexactFloat64(),
			AccountName: acct.AccountName,
		}
	}
	for region, amount := range p.RegionCosts {
		record.Regions[region] = costdata.RegionCost{Cost: convert(amount, rate).InexactFloat64()}
	}

	record.TotalCost = n.reconcileTotal(record, convert(p.TotalUnblended, rate), serviceSum)
	return record, nil
}

func (n *Normalizer) normalizeGCP(clientID string, p *providers.GCPPayload) (*costdata.UnifiedCostRecord, error) {
	if err := validDate(p.UsageDate); err != nil {
		return nil, &NormalizationError{Provider: costdata.ProviderGCP, Reason: err.Error()}
	}
	if len(p.ServiceCosts) == 0 && len(p.ProjectCosts) == 0 && p.TotalCost == 0 {
		return nil, &NormalizationError{Provider: costdata.ProviderGCP, Reason: "payload carries no cost figures"}
	}

	rate, err := n.rates.Rate(p.CurrencyCode)
	if err != nil {
		return nil, &NormalizationError{Provider: costdata.ProviderGCP, Reason: err.Error()}
	}

	record := newRecord(clientID, costdata.ProviderGCP, p.UsageDate, p.ExportedAt, p.FreshnessHours)

	serviceSum := decimal.Zero
	for name, amount := range p.ServiceCosts {
		cost := convert(amount, rate)
		serviceSum = serviceSum.Add(cost)
		record.Services[name] = costdata.ServiceCost{
			Cost:            cost.InexactFloat64(),
			UnifiedCategory: costdata.UnifiedCategory(name),
		}
	}
	for project, amount := range p.ProjectCosts {
		record.Accounts[project] = costdata.AccountCost{Cost: convert(amount, rate).InexactFloat64()}
	}
	for location, amount := range p.LocationCosts {
		record.Regions[location] = costdata.RegionCost{Cost: convert(amount, rate).InexactFloat64()}
	}

	record.TotalCost = n.reconcileTotal(record, convert(p.TotalCost, rate), serviceSum)
	return record, nil
}

func (n *Normalizer) normalizeAzure(clientID string, p *providers.AzurePayload) (*costdata.UnifiedCostRecord, error) {
	if err := validDate(p.UsageDate); err != nil {
		return nil, &NormalizationError{Provider: costdata.ProviderAzure, Reason: err.Error()}
	}
	if len(p.ServiceCosts) == 0 && len(p.SubscriptionCosts) == 0 && p.PreTaxCost == 0 {
		return nil, &NormalizationError{Provider: costdata.ProviderAzure, Reason: "payload carries no cost figures"}
	}

	rate, err := n.rates.Rate(p.Currency)
	if err != nil {
		return nil, &NormalizationError{Provider: costdata.ProviderAzure, Reason: err.Error()}
	}

	record := newRecord(clientID, costdata.ProviderAzure, p.UsageDate, p.RetrievedAt, p.FreshnessHours)

	serviceSum := decimal.Zero
	for name, amount := range p.ServiceCosts {
		cost := convert(amount, rate)
		serviceSum = serviceSum.Add(cost)
		record.Services[name] = costdata.ServiceCost{
			Cost:            cost.InexactFloat64(),
			UnifiedCategory: costdata.UnifiedCategory(name),
		}
	}
	for sub, amount := range p.SubscriptionCosts {
		record.Accounts[sub] = costdata.AccountCost{Cost: convert(amount, rate).InexactFloat64()}
	}
	for location, amount := range p.LocationCosts {
		record.Regions[location] = costdata.RegionCost{Cost: convert(amount, rate).InexactFloat64()}
	}

	record.TotalCost = n.reconcileTotal(record, convert(p.PreTaxCost, rate), serviceSum)
	return record, nil
}

// reconcileTotal decides between the provider's stated total and the
// recomputed service sum. When they disagree by more than the tolerance the
// recomputed sum wins and the discrepancy is flagged on the record's
// metadata; neither source is silently trusted.
func (n *Normalizer) reconcileTotal(record *costdata.UnifiedCostRecord, statedTotal, serviceSum decimal.Decimal) float64 {
	if serviceSum.IsZero() {
		return statedTotal.InexactFloat64()
	}
	if statedTotal.IsZero() {
		return serviceSum.InexactFloat64()
	}

	diff := statedTotal.Sub(serviceSum).Abs()
	tolerance := statedTotal.Abs().Mul(n.tolerance)
	if diff.GreaterThan(tolerance) {
		if record.CollectionMetadata != nil {
			record.CollectionMetadata.Source = fmt.Sprintf(
				"total recomputed from services: provider stated %s, services sum to %s",
				statedTotal.StringFixed(4), serviceSum.StringFixed(4))
		}
		return serviceSum.InexactFloat64()
	}
	return statedTotal.InexactFloat64()
}

func newRecord(clientID string, provider costdata.CloudProvider, date string, collectedAt time.Time, freshnessHours float64) *costdata.UnifiedCostRecord {
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}
	return &costdata.UnifiedCostRecord{
		ClientID: clientID,
		Provider: provider,
		Date:     date,
		Currency: CanonicalCurrency,
		Services: make(map[string]costdata.ServiceCost),
		Accounts: make(map[string]costdata.AccountCost),
		Regions:  make(map[string]costdata.RegionCost),
		CollectionMetadata: &costdata.CollectionMetadata{
			CollectedAt:        collectedAt,
			DataFreshnessHours: freshnessHours,
		},
	}
}

func convert(amount float64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(amount).Mul(rate).Round(6)
}

func validDate(date string) error {
	if date == "" {
		return fmt.Errorf("payload carries no usage date")
	}
	if _, err := time.Parse(costdata.DateFormat, date); err != nil {
		return fmt.Errorf("unrecognizable usage date %q", date)
	}
	return nil
}
