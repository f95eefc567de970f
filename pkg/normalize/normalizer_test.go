package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/providers"
)

func awsPayload() *providers.CostPayload {
	return &providers.CostPayload{
		Provider: costdata.ProviderAWS,
		AWS: &providers.AWSPayload{
			Date:           "2026-08-15",
			Currency:       "USD",
			TotalUnblended: 150,
			ServiceCosts: []providers.AWSServiceCost{
				{ServiceName: "Amazon Elastic Compute Cloud - Compute", Amount: 100},
				{ServiceName: "Amazon Simple Storage Service", Amount: 50},
			},
			AccountCosts: []providers.AWSAccountCost{
				{AccountID: "123456789012", AccountName: "production", Amount: 150},
			},
			RegionCosts: map[string]float64{"us-east-1": 150},
			CollectedAt: time.Now().UTC(),
		},
	}
}

func TestNormalizeAWS(t *testing.T) {
	record, err := New(nil, 0).Normalize("acme-corp", awsPayload())
	require.NoError(t, err)

	assert.Equal(t, "acme-corp", record.ClientID)
	assert.Equal(t, costdata.ProviderAWS, record.Provider)
	assert.Equal(t, "2026-08-15", record.Date)
	assert.Equal(t, CanonicalCurrency, record.Currency)
	assert.InDelta(t, 150, record.TotalCost, 0.0001)

	require.Contains(t, record.Services, "Amazon Elastic Compute Cloud - Compute")
	assert.Equal(t, costdata.CategoryCompute, record.Services["Amazon Elastic Compute Cloud - Compute"].UnifiedCategory)
	assert.Equal(t, "production", record.Accounts["123456789012"].AccountName)
	assert.InDelta(t, 150, record.Regions["us-east-1"].Cost, 0.0001)
	require.NotNil(t, record.CollectionMetadata)
	assert.Empty(t, record.CollectionMetadata.Source)
}

func TestNormalizeGCP(t *testing.T) {
	payload := &providers.CostPayload{
		Provider: costdata.ProviderGCP,
		GCP: &providers.GCPPayload{
			UsageDate:    "2026-08-15",
			CurrencyCode: "USD",
			TotalCost:    80,
			ServiceCosts: map[string]float64{
				"Compute Engine": 60,
				"Cloud Storage":  20,
			},
			ProjectCosts: map[string]float64{"prod-project": 80},
		},
	}

	record, err := New(nil, 0).Normalize("acme-corp", payload)
	require.NoError(t, err)

	assert.Equal(t, costdata.ProviderGCP, record.Provider)
	assert.InDelta(t, 80, record.TotalCost, 0.0001)
	assert.Equal(t, costdata.CategoryCompute, record.Services["Compute Engine"].UnifiedCategory)
	assert.InDelta(t, 80, record.Accounts["prod-project"].Cost, 0.0001)
}

func TestNormalizeAzure(t *testing.T) {
	payload := &providers.CostPayload{
		Provider: costdata.ProviderAzure,
		Azure: &providers.AzurePayload{
			UsageDate:  "2026-08-15",
			Currency:   "USD",
			PreTaxCost: 42,
			ServiceCosts: map[string]float64{
				"Virtual Machines": 42,
			},
		},
	}

	record, err := New(nil, 0).Normalize("acme-corp", payload)
	require.NoError(t, err)
	assert.InDelta(t, 42, record.TotalCost, 0.0001)
}

func TestNormalizeCurrencyConversion(t *testing.T) {
	rates := StaticRates{"EUR": decimal.NewFromFloat(1.10)}
	payload := awsPayload()
	payload.AWS.Currency = "EUR"

	record, err := New(rates, 0).Normalize("acme-corp", payload)
	require.NoError(t, err)

	assert.Equal(t, CanonicalCurrency, record.Currency)
	assert.InDelta(t, 165, record.TotalCost, 0.0001)
	assert.InDelta(t, 110, record.Services["Amazon Elastic Compute Cloud - Compute"].Cost, 0.0001)
}

func TestNormalizeUnknownCurrency(t *testing.T) {
	payload := awsPayload()
	payload.AWS.Currency = "JPY"

	_, err := New(nil, 0).Normalize("acme-corp", payload)

	var normErr *NormalizationError
	require.ErrorAs(t, err, &normErr)
	assert.Equal(t, costdata.ProviderAWS, normErr.Provider)
}

func TestNormalizeTotalDiscrepancyFlagged(t *testing.T) {
	payload := awsPayload()
	payload.AWS.TotalUnblended = 200 // services sum to 150

	record, err := New(nil, 0).Normalize("acme-corp", payload)
	require.NoError(t, err)

	// The recomputed service sum wins and the disagreement is flagged.
	assert.InDelta(t, 150, record.TotalCost, 0.0001)
	require.NotNil(t, record.CollectionMetadata)
	assert.Contains(t, record.CollectionMetadata.Source, "total recomputed from services")
}

func TestNormalizeTotalWithinToleranceKept(t *testing.T) {
	payload := awsPayload()
	payload.AWS.TotalUnblended = 150.5 // within 1% of the 150 service sum

	record, err := New(nil, 0).Normalize("acme-corp", payload)
	require.NoError(t, err)

	assert.InDelta(t, 150.5, record.TotalCost, 0.0001)
	assert.Empty(t, record.CollectionMetadata.Source)
}

func TestNormalizeToleranceIsConfigurable(t *testing.T) {
	payload := awsPayload()
	payload.AWS.TotalUnblended = 200 // 33% over the 150 service sum

	// A widened tolerance accepts the same disagreement the default flags.
	record, err := New(nil, 0.5).Normalize("acme-corp", payload)
	require.NoError(t, err)

	assert.InDelta(t, 200, record.TotalCost, 0.0001)
	assert.Empty(t, record.CollectionMetadata.Source)
}

func TestNormalizeRejectsEmptyPayloads(t *testing.T) {
	var normErr *NormalizationError

	_, err := New(nil, 0).Normalize("acme-corp", nil)
	require.ErrorAs(t, err, &normErr)

	_, err = New(nil, 0).Normalize("acme-corp", &providers.CostPayload{Provider: costdata.ProviderAWS})
	require.ErrorAs(t, err, &normErr)

	payload := &providers.CostPayload{
		Provider: costdata.ProviderAWS,
		AWS:      &providers.AWSPayload{Date: "2026-08-15", Currency: "USD"},
	}
	_, err = New(nil, 0).Normalize("acme-corp", payload)
	require.ErrorAs(t, err, &normErr)
	assert.Contains(t, normErr.Error(), "no cost figures")
}

func TestNormalizeRejectsBadDate(t *testing.T) {
	payload := awsPayload()
	payload.AWS.Date = "15/08/2026"

	_, err := New(nil, 0).Normalize("acme-corp", payload)

	var normErr *NormalizationError
	require.ErrorAs(t, err, &normErr)
	assert.Contains(t, normErr.Reason, "usage date")
}

func TestNormalizeUnknownProvider(t *testing.T) {
	_, err := New(nil, 0).Normalize("acme-corp", &providers.CostPayload{Provider: "ORACLE"})

	var normErr *NormalizationError
	require.ErrorAs(t, err, &normErr)
	assert.Contains(t, normErr.Reason, "unknown provider")
}
