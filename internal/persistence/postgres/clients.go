package postgres

import (
	"context"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

func (s *Store) SaveClient(ctx context.Context, client domain.Client) error {
	if client.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (id, display_name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		client.ID, client.DisplayName)
	return mapError(err)
}

func (s *Store) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var client domain.Client
	if err := s.pool.QueryRow(ctx, `SELECT id, display_name FROM clients WHERE id = $1`, id).Scan(&client.ID, &client.DisplayName); err != nil {
		return domain.Client{}, mapError(err)
	}
	return client, nil
}
