package sqlite

import (
	"context"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

// ClientRepository implements persistence.ClientRepository using SQLite
type ClientRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewClientRepository creates a new SQLite client repository
func NewClientRepository(pool *ConnectionPool) *ClientRepository {
	return &ClientRepository{helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// SaveClient inserts or replaces a client
func (r *ClientRepository) SaveClient(ctx context.Context, client domain.Client) error {
	if client.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO clients (id, display_name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`,
		client.ID, client.DisplayName)
	return r.mapper.MapError(err)
}

// GetClient retrieves a client by ID
func (r *ClientRepository) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var client domain.Client
	err := r.helper.QueryRow(ctx, `SELECT id, display_name FROM clients WHERE id = ?`, id).Scan(&client.ID, &client.DisplayName)
	if err != nil {
		return domain.Client{}, r.mapper.MapError(err)
	}
	return client, nil
}
