package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/billing/internal/clients"
)

// ClientDirectory resolves live client records.
type ClientDirectory interface {
	ResolveClient(ctx context.Context, id uuid.UUID) (*clients.Client, error)
}

// Snapshotter freezes client fiscal data onto new documents.
type Snapshotter struct {
	directory ClientDirectory
}

// NewSnapshotter builds a snapshotter over directory.
func NewSnapshotter(directory ClientDirectory) *Snapshotter {
	return &Snapshotter{directory: directory}
}

// Snapshot returns explicit when given, otherwise the resolved client's data.
// An unknown client yields a nil snapshot and no error.
func (s *Snapshotter) Snapshot(ctx context.Context, clientID uuid.UUID, explicit *ClientSnapshot) (*ClientSnapshot, error) {
	if explicit != nil {
		snap := *explicit
		return &snap, nil
	}
	if s == nil || s.directory == nil || clientID == uuid.Nil {
		return nil, nil
	}
	c, err := s.directory.ResolveClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve client %s: %w", clientID, err)
	}
	if c == nil {
		return nil, nil
	}
	return &ClientSnapshot{
		FiscalName:     c.FiscalName,
		CommercialName: c.CommercialName,
		VATNumber:      c.VATNumber,
		Address:        c.FormattedAddress(),
		Phone:          c.Phone,
		Email:          c.Email,
	}, nil
}
