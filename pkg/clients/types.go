// Package clients defines the client (tenant) configuration model and the
// store contract the orchestration layer resolves clients through.
package clients

import (
	"context"
	"time"

	"github.com/jscharber/costlens/pkg/costdata"
)

// ClientTier maps to scheduling priority defaults: enterprise clients are
// collected at CRITICAL priority regardless of frequency.
type ClientTier string

const (
	TierFree       ClientTier = "free"
	TierStandard   ClientTier = "standard"
	TierEnterprise ClientTier = "enterprise"
)

// CloudAccount is one connected billing account for a client.
type CloudAccount struct {
	Provider  costdata.CloudProvider `json:"provider"`
	AccountID string                 `json:"account_id"`
	Name      string                 `json:"name,omitempty"`
	Enabled   bool                   `json:"enabled"`
}

// BudgetInfo carries a client's monthly budget configuration.
type BudgetInfo struct {
	MonthlyBudget float64 `json:"monthly_budget"`
	Currency      string  `json:"currency"`
}

// NotificationPrefs holds delivery preferences for generated reports and
// alerts. The core only threads these through; delivery is out of scope.
type NotificationPrefs struct {
	Emails        []string `json:"emails,omitempty"`
	SlackChannel  string   `json:"slack_channel,omitempty"`
	AlertsEnabled bool     `json:"alerts_enabled"`
}

// ClientContext carries client posture flags used to bias insight ranking.
type ClientContext struct {
	CostConscious bool `json:"cost_conscious"`
	Growing       bool `json:"growing"`
	SecurityFocus bool `json:"security_focus"`
}

// CollectionFrequency is how often a client's costs are collected.
type CollectionFrequency string

const (
	FrequencyHourly  CollectionFrequency = "HOURLY"
	FrequencyDaily   CollectionFrequency = "DAILY"
	FrequencyWeekly  CollectionFrequency = "WEEKLY"
	FrequencyMonthly CollectionFrequency = "MONTHLY"
)

// ClientConfig is the resolved configuration of one client.
type ClientConfig struct {
	ClientID          string              `json:"client_id"`
	Name              string              `json:"name"`
	Tier              ClientTier          `json:"tier"`
	Frequency         CollectionFrequency `json:"frequency,omitempty"`
	CloudAccounts     []CloudAccount      `json:"cloud_accounts"`
	Budget            *BudgetInfo         `json:"budget,omitempty"`
	NotificationPrefs *NotificationPrefs  `json:"notification_prefs,omitempty"`
	Context           *ClientContext      `json:"context,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Providers returns the distinct providers of all enabled cloud accounts.
func (c *ClientConfig) Providers() []costdata.CloudProvider {
	seen := make(map[costdata.CloudProvider]bool)
	var providers []costdata.CloudProvider
	for _, acct := range c.CloudAccounts {
		if !acct.Enabled || seen[acct.Provider] {
			continue
		}
		seen[acct.Provider] = true
		providers = append(providers, acct.Provider)
	}
	return providers
}

// Store resolves client configurations.
type Store interface {
	// GetClient returns the configuration for a client, or a
	// *ClientNotFoundError when no such client exists.
	GetClient(ctx context.Context, clientID string) (*ClientConfig, error)

	// ListClients returns every configured client. The scheduler iterates
	// this when cron fires.
	ListClients(ctx context.Context) ([]*ClientConfig, error)
}
