package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/costdata"
)

func record(clientID string, provider costdata.CloudProvider, date string, total float64) *costdata.UnifiedCostRecord {
	return &costdata.UnifiedCostRecord{
		ClientID:  clientID,
		Provider:  provider,
		Date:      date,
		Currency:  "USD",
		TotalCost: total,
	}
}

func TestMemoryCostStoreUpsertIsIdempotent(t *testing.T) {
	store := NewMemoryCostStore()
	ctx := context.Background()

	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderAWS, "2026-08-15", 100)))
	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderAWS, "2026-08-15", 120)))

	// Same (client, provider, date) key: one record, last writer wins.
	assert.Equal(t, 1, store.Len())
	records, err := store.GetCostDataRange(ctx, "acme", "2026-08-15", "2026-08-15", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 120, records[0].TotalCost, 0.0001)
}

func TestMemoryCostStoreDistinctKeys(t *testing.T) {
	store := NewMemoryCostStore()
	ctx := context.Background()

	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderAWS, "2026-08-15", 100)))
	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderGCP, "2026-08-15", 50)))
	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderAWS, "2026-08-16", 110)))
	require.NoError(t, store.StoreCostRecord(ctx, record("other", costdata.ProviderAWS, "2026-08-15", 999)))

	assert.Equal(t, 4, store.Len())
}

func TestMemoryCostStoreRangeQuery(t *testing.T) {
	store := NewMemoryCostStore()
	ctx := context.Background()

	for _, date := range []string{"2026-08-13", "2026-08-14", "2026-08-15", "2026-08-16"} {
		require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderAWS, date, 100)))
	}
	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderGCP, "2026-08-14", 40)))

	records, err := store.GetCostDataRange(ctx, "acme", "2026-08-14", "2026-08-15", nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Ordered by date ascending.
	assert.Equal(t, "2026-08-14", records[0].Date)
	assert.Equal(t, "2026-08-15", records[2].Date)

	aws := costdata.ProviderAWS
	records, err = store.GetCostDataRange(ctx, "acme", "2026-08-13", "2026-08-16", &aws)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestMemoryCostStoreReturnsCopies(t *testing.T) {
	store := NewMemoryCostStore()
	ctx := context.Background()

	require.NoError(t, store.StoreCostRecord(ctx, record("acme", costdata.ProviderAWS, "2026-08-15", 100)))

	records, err := store.GetCostDataRange(ctx, "acme", "2026-08-15", "2026-08-15", nil)
	require.NoError(t, err)
	records[0].TotalCost = 0

	again, err := store.GetCostDataRange(ctx, "acme", "2026-08-15", "2026-08-15", nil)
	require.NoError(t, err)
	assert.InDelta(t, 100, again[0].TotalCost, 0.0001)
}

func TestMemoryClientStore(t *testing.T) {
	store := NewMemoryClientStore()
	ctx := context.Background()

	_, err := store.GetClient(ctx, "missing")
	var notFound *clients.ClientNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ClientID)

	store.Put(&clients.ClientConfig{ClientID: "beta"})
	store.Put(&clients.ClientConfig{ClientID: "alpha"})

	cfg, err := store.GetClient(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.ClientID)

	all, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ClientID)
	assert.Equal(t, "beta", all[1].ClientID)
}
