package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jscharber/costlens/internal/database/models"
	"github.com/jscharber/costlens/pkg/costdata"
)

// CostStore is the postgres-backed costdata.Store.
type CostStore struct {
	db *gorm.DB
}

// NewCostStore creates a cost store over an open connection.
func NewCostStore(conn *Connection) *CostStore {
	return &CostStore{db: conn.DB()}
}

// StoreCostRecord upserts on (client_id, provider, date): re-collection for
// the same key replaces the previous figures, last writer wins.
func (s *CostStore) StoreCostRecord(ctx context.Context, record *costdata.UnifiedCostRecord) error {
	model := models.CostRecordFromUnified(record)

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "provider"}, {Name: "date"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("upserting cost record %s: %w", record.Key(), err)
	}
	return nil
}

// GetCostDataRange returns a client's records within [start, end] inclusive,
// optionally filtered to one provider, ordered by date ascending.
func (s *CostStore) GetCostDataRange(ctx context.Context, clientID, start, end string, provider *costdata.CloudProvider) ([]*costdata.UnifiedCostRecord, error) {
	query := s.db.WithContext(ctx).
		Where("client_id = ? AND date >= ? AND date <= ?", clientID, start, end)
	if provider != nil {
		query = query.Where("provider = ?", string(*provider))
	}

	var rows []*models.CostRecord
	if err := query.Order("date asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying cost records for %s: %w", clientID, err)
	}

	records := make([]*costdata.UnifiedCostRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToUnifiedRecord())
	}
	return records, nil
}
