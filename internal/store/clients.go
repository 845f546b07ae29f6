package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
)

// CreateClient registers a tenant prefix.
func (s *Store) CreateClient(ctx context.Context, c *model.Client) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	c.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO clients (prefix, name, created_at) VALUES (?, ?, ?)"),
		c.Prefix, c.Name, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create client %s: %w", c.Prefix, s.conflict(err))
	}
	return nil
}

// GetClient returns the client registered under prefix.
func (s *Store) GetClient(ctx context.Context, prefix string) (*model.Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var c model.Client
	err := s.db.GetContext(ctx, &c,
		s.q("SELECT prefix, name, created_at FROM clients WHERE prefix = ?"), prefix)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListClients returns all clients ordered by prefix.
func (s *Store) ListClients(ctx context.Context) ([]model.Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var clients []model.Client
	err := s.db.SelectContext(ctx, &clients,
		"SELECT prefix, name, created_at FROM clients ORDER BY prefix")
	if err != nil {
		return nil, err
	}
	return clients, nil
}
