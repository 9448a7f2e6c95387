package application

import (
	"context"
	"errors"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

// ClientLookup is the subset of the client repository the directory reads.
type ClientLookup interface {
	GetClient(ctx context.Context, id string) (domain.Client, error)
}

// StoreClientDirectory resolves client labels from a client repository.
type StoreClientDirectory struct {
	clients ClientLookup
}

// NewClientDirectory wraps a client repository.
func NewClientDirectory(clients ClientLookup) *StoreClientDirectory {
	return &StoreClientDirectory{clients: clients}
}

// ClientLabel returns the client's display name, or an empty label for unknown clients.
func (d *StoreClientDirectory) ClientLabel(ctx context.Context, clientID string) (string, error) {
	client, err := d.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return client.DisplayName, nil
}
