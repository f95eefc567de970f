// Package models defines the gorm persistence models for clients and cost
// records. Breakdown maps are stored as jsonb: per-service rows would
// explode the row count without any query pattern needing them relational.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jscharber/costlens/pkg/clients"
	"github.com/jscharber/costlens/pkg/costdata"
)

// Client is the persisted client configuration.
type Client struct {
	ClientID  string `gorm:"primaryKey;size:128" json:"client_id"`
	Name      string `gorm:"size:256" json:"name"`
	Tier      string `gorm:"size:32;index" json:"tier"`
	Frequency string `gorm:"size:16" json:"frequency"`

	CloudAccounts CloudAccountList   `gorm:"type:jsonb" json:"cloud_accounts"`
	Budget        *BudgetJSON        `gorm:"type:jsonb" json:"budget,omitempty"`
	Notifications *NotificationsJSON `gorm:"type:jsonb" json:"notifications,omitempty"`
	Context       *ContextJSON       `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for the client model.
func (Client) TableName() string { return "clients" }

// CostRecord is the persisted unified cost record. The composite unique
// index carries the upsert key.
type CostRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	ClientID string `gorm:"size:128;uniqueIndex:idx_cost_records_key;index" json:"client_id"`
	Provider string `gorm:"size:16;uniqueIndex:idx_cost_records_key" json:"provider"`
	Date     string `gorm:"size:10;uniqueIndex:idx_cost_records_key;index" json:"date"`

	Currency  string  `gorm:"size:3" json:"currency"`
	TotalCost float64 `json:"total_cost"`

	Services ServiceCostMap `gorm:"type:jsonb" json:"services"`
	Accounts AccountCostMap `gorm:"type:jsonb" json:"accounts"`
	Regions  RegionCostMap  `gorm:"type:jsonb" json:"regions"`

	CollectionMetadata *CollectionMetadataJSON `gorm:"type:jsonb" json:"collection_metadata,omitempty"`
	DataQuality        *DataQualityJSON        `gorm:"type:jsonb" json:"data_quality,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for the cost record model.
func (CostRecord) TableName() string { return "cost_records" }

// jsonb wrapper types. Each implements sql.Scanner and driver.Valuer over
// plain JSON encoding.

type CloudAccountList []clients.CloudAccount
type BudgetJSON clients.BudgetInfo
type NotificationsJSON clients.NotificationPrefs
type ContextJSON clients.ClientContext
type ServiceCostMap map[string]costdata.ServiceCost
type AccountCostMap map[string]costdata.AccountCost
type RegionCostMap map[string]costdata.RegionCost
type CollectionMetadataJSON costdata.CollectionMetadata
type DataQualityJSON costdata.DataQuality

func scanJSON(value interface{}, target interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, isString := value.(string); isString {
			bytes = []byte(s)
		} else {
			return fmt.Errorf("cannot scan %T into jsonb field", value)
		}
	}
	return json.Unmarshal(bytes, target)
}

func (l *CloudAccountList) Scan(value interface{}) error { return scanJSON(value, l) }
func (l CloudAccountList) Value() (driver.Value, error)  { return json.Marshal(l) }

func (b *BudgetJSON) Scan(value interface{}) error { return scanJSON(value, b) }
func (b BudgetJSON) Value() (driver.Value, error)  { return json.Marshal(b) }

func (n *NotificationsJSON) Scan(value interface{}) error { return scanJSON(value, n) }
func (n NotificationsJSON) Value() (driver.Value, error)  { return json.Marshal(n) }

func (c *ContextJSON) Scan(value interface{}) error { return scanJSON(value, c) }
func (c ContextJSON) Value() (driver.Value, error)  { return json.Marshal(c) }

func (m *ServiceCostMap) Scan(value interface{}) error { return scanJSON(value, m) }
func (m ServiceCostMap) Value() (driver.Value, error)  { return json.Marshal(m) }

func (m *AccountCostMap) Scan(value interface{}) error { return scanJSON(value, m) }
func (m AccountCostMap) Value() (driver.Value, error)  { return json.Marshal(m) }

func (m *RegionCostMap) Scan(value interface{}) error { return scanJSON(value, m) }
func (m RegionCostMap) Value() (driver.Value, error)  { return json.Marshal(m) }

func (c *CollectionMetadataJSON) Scan(value interface{}) error { return scanJSON(value, c) }
func (c CollectionMetadataJSON) Value() (driver.Value, error)  { return json.Marshal(c) }

func (d *DataQualityJSON) Scan(value interface{}) error { return scanJSON(value, d) }
func (d DataQualityJSON) Value() (driver.Value, error)  { return json.Marshal(d) }

// ToClientConfig converts the persisted client to the domain type.
func (c *Client) ToClientConfig() *clients.ClientConfig {
	cfg := &clients.ClientConfig{
		ClientID:      c.ClientID,
		Name:          c.Name,
		Tier:          clients.ClientTier(c.Tier),
		Frequency:     clients.CollectionFrequency(c.Frequency),
		CloudAccounts: []clients.CloudAccount(c.CloudAccounts),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.Budget != nil {
		budget := clients.BudgetInfo(*c.Budget)
		cfg.Budget = &budget
	}
	if c.Notifications != nil {
		prefs := clients.NotificationPrefs(*c.Notifications)
		cfg.NotificationPrefs = &prefs
	}
	if c.Context != nil {
		context := clients.ClientContext(*c.Context)
		cfg.Context = &context
	}
	return cfg
}

// ClientFromConfig converts a domain client to the persisted model.
func ClientFromConfig(cfg *clients.ClientConfig) *Client {
	model := &Client{
		ClientID:      cfg.ClientID,
		Name:          cfg.Name,
		Tier:          string(cfg.Tier),
		Frequency:     string(cfg.Frequency),
		CloudAccounts: CloudAccountList(cfg.CloudAccounts),
		CreatedAt:     cfg.CreatedAt,
		UpdatedAt:     cfg.UpdatedAt,
	}
	if cfg.Budget != nil {
		budget := BudgetJSON(*cfg.Budget)
		model.Budget = &budget
	}
	if cfg.NotificationPrefs != nil {
		prefs := NotificationsJSON(*cfg.NotificationPrefs)
		model.Notifications = &prefs
	}
	if cfg.Context != nil {
		context := ContextJSON(*cfg.Context)
		model.Context = &context
	}
	return model
}

// ToUnifiedRecord converts the persisted cost record to the domain type.
func (r *CostRecord) ToUnifiedRecord() *costdata.UnifiedCostRecord {
	record := &costdata.UnifiedCostRecord{
		ClientID:  r.ClientID,
		Provider:  costdata.CloudProvider(r.Provider),
		Date:      r.Date,
		Currency:  r.Currency,
		TotalCost: r.TotalCost,
		Services:  map[string]costdata.ServiceCost(r.Services),
		Accounts:  map[string]costdata.AccountCost(r.Accounts),
		Regions:   map[string]costdata.RegionCost(r.Regions),
	}
	if r.CollectionMetadata != nil {
		meta := costdata.CollectionMetadata(*r.CollectionMetadata)
		record.CollectionMetadata = &meta
	}
	if r.DataQuality != nil {
		quality := costdata.DataQuality(*r.DataQuality)
		record.DataQuality = &quality
	}
	return record
}

// CostRecordFromUnified converts a domain cost record to the persisted
// model.
func CostRecordFromUnified(record *costdata.UnifiedCostRecord) *CostRecord {
	model := &CostRecord{
		ClientID:  record.ClientID,
		Provider:  string(record.Provider),
		Date:      record.Date,
		Currency:  record.Currency,
		TotalCost: record.TotalCost,
		Services:  ServiceCostMap(record.Services),
		Accounts:  AccountCostMap(record.Accounts),
		Regions:   RegionCostMap(record.Regions),
	}
	if record.CollectionMetadata != nil {
		meta := CollectionMetadataJSON(*record.CollectionMetadata)
		model.CollectionMetadata = &meta
	}
	if record.DataQuality != nil {
		quality := DataQualityJSON(*record.DataQuality)
		model.DataQuality = &quality
	}
	return model
}
