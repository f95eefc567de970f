// Package static implements a fixture-backed provider adapter used in tests
// and local development. Payloads are registered per (provider, date) and
// served verbatim.
package static

import (
	"context"
	"fmt"
	"sync"

	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/providers"
)

// Adapter serves pre-registered payloads for one provider.
type Adapter struct {
	provider costdata.CloudProvider
	mu       sync.RWMutex
	payloads map[string]*providers.CostPayload // keyed by end date
	failWith error
}

// New creates a static adapter for the given provider.
func New(provider costdata.CloudProvider) *Adapter {
	return &Adapter{
		provider: provider,
		payloads: make(map[string]*providers.CostPayload),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() costdata.CloudProvider {
	return a.provider
}

// Register adds a payload served for collections ending on date.
func (a *Adapter) Register(date string, payload *providers.CostPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads[date] = payload
}

// FailWith makes every subsequent collection return err. Passing nil restores
// normal behavior.
func (a *Adapter) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failWith = err
}

// CollectCostData serves the payload registered for the range's end date. An
// unregistered date yields a successful result with no payload, mirroring a
// provider that has no billing activity for the period.
func (a *Adapter) CollectCostData(ctx context.Context, dateRange costdata.DateRange) (*providers.CollectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.failWith != nil {
		return nil, fmt.Errorf("static adapter %s: %w", a.provider, a.failWith)
	}

	payload, ok := a.payloads[dateRange.End]
	if !ok {
		return &providers.CollectionResult{Status: providers.StatusSuccess}, nil
	}
	return &providers.CollectionResult{
		Status:  providers.StatusSuccess,
		Payload: payload,
	}, nil
}
