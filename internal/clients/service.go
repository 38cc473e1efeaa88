package clients

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service manages client records and keeps the directory cache coherent.
type Service struct {
	repo      Repository
	directory *Directory
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService constructs a client service.
func NewService(repo Repository, directory *Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, validate: validator.New(), logger: logger}
}

// Create stores a new client.
func (s *Service) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validate client: %w", err)
	}
	now := time.Now().UTC()
	c := Client{
		ID:             uuid.New(),
		FiscalName:     req.FiscalName,
		CommercialName: req.CommercialName,
		VATNumber:      req.VATNumber,
		AddressLine:    req.AddressLine,
		PostalCode:     req.PostalCode,
		City:           req.City,
		Province:       req.Province,
		Country:        req.Country,
		Phone:          req.Phone,
		Email:          req.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return created, nil
}

// Get returns a client by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// Update patches a live client record. Documents already issued keep their
// snapshot untouched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateClientRequest) (*Client, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validate client: %w", err)
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	req.Apply(existing)
	existing.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, *existing)
	if err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	if err := s.directory.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate client cache", slog.String("client_id", id.String()), slog.Any("error", err))
	}
	return updated, nil
}
