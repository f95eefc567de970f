package database

import (
	"context"
	"sort"
	"sync"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/costdata"
)

// MemoryCostStore is an in-process costdata.Store with the same upsert
// semantics as the postgres store.
type MemoryCostStore struct {
	mu      sync.RWMutex
	records map[string]*costdata.UnifiedCostRecord
}

// NewMemoryCostStore creates an empty in-memory cost store.
func NewMemoryCostStore() *MemoryCostStore {
	return &MemoryCostStore{records: make(map[string]*costdata.UnifiedCostRecord)}
}

// StoreCostRecord implements costdata.Store with last-writer-wins upsert.
func (s *MemoryCostStore) StoreCostRecord(ctx context.Context, record *costdata.UnifiedCostRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := *record
	s.mu.Lock()
	s.records[record.Key()] = &copied
	s.mu.Unlock()
	return nil
}

// GetCostDataRange implements costdata.Store.
func (s *MemoryCostStore) GetCostDataRange(ctx context.Context, clientID, start, end string, provider *costdata.CloudProvider) ([]*costdata.UnifiedCostRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*costdata.UnifiedCostRecord
	for _, record := range s.records {
		if record.ClientID != clientID || record.Date < start || record.Date > end {
			continue
		}
		if provider != nil && record.Provider != *provider {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Len returns the number of stored records, one per upsert key.
func (s *MemoryCostStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MemoryClientStore is an in-process clients.Store.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*clients.ClientConfig
}

// NewMemoryClientStore creates an empty in-memory client store.
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: make(map[string]*clients.ClientConfig)}
}

// Put stores or replaces a client configuration.
func (s *MemoryClientStore) Put(cfg *clients.ClientConfig) {
	s.mu.Lock()
	s.clients[cfg.ClientID] = cfg
	s.mu.Unlock()
}

// GetClient implements clients.Store.
func (s *MemoryClientStore) GetClient(ctx context.Context, clientID string) (*clients.ClientConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.clients[clientID]
	if !ok {
		return nil, &clients.ClientNotFoundError{ClientID: clientID}
	}
	return cfg, nil
}

// ListClients implements clients.Store.
func (s *MemoryClientStore) ListClients(ctx context.Context) ([]*clients.ClientConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*clients.ClientConfig, 0, len(s.clients))
	for _, cfg := range s.clients {
		out = append(out, cfg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}
