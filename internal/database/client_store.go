package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jscharber/costlens/internal/database/models"
	"github.com/jscharber/costlens/pkg/clients"
)

// ClientStore is the postgres-backed clients.Store.
type ClientStore struct {
	db *gorm.DB
}

// NewClientStore creates a client store over an open connection.
func NewClientStore(conn *Connection) *ClientStore {
	return &ClientStore{db: conn.DB()}
}

// GetClient implements clients.Store.
func (s *ClientStore) GetClient(ctx context.Context, clientID string) (*clients.ClientConfig, error) {
	var model models.Client
	err := s.db.WithContext(ctx).First(&model, "client_id = ?", clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &clients.ClientNotFoundError{ClientID: clientID}
	}
	if err != nil {
		return nil, fmt.Errorf("querying client %s: %w", clientID, err)
	}
	return model.ToClientConfig(), nil
}

// ListClients implements clients.Store.
func (s *ClientStore) ListClients(ctx context.Context) ([]*clients.ClientConfig, error) {
	var rows []*models.Client
	if err := s.db.WithContext(ctx).Order("client_id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}

	configs := make([]*clients.ClientConfig, 0, len(rows))
	for _, row := range rows {
		configs = append(configs, row.ToClientConfig())
	}
	return configs, nil
}

// UpsertClient creates or replaces a client configuration.
func (s *ClientStore) UpsertClient(ctx context.Context, cfg *clients.ClientConfig) error {
	model := models.ClientFromConfig(cfg)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("upserting client %s: %w", cfg.ClientID, err)
	}
	return nil
}
