package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists client records.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Client, error)
	Create(ctx context.Context, c Client) (*Client, error)
	Update(ctx context.Context, c Client) (*Client, error)
}

// ============================================================================
// POSTGRES
// ============================================================================

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const clientColumns = `id, fiscal_name, commercial_name, vat_number, address_line, postal_code,
	city, province, country, phone, email, created_at, updated_at`

func (r *pgRepository) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	var c Client
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.FiscalName, &c.CommercialName, &c.VATNumber, &c.AddressLine, &c.PostalCode,
		&c.City, &c.Province, &c.Country, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *pgRepository) Create(ctx context.Context, c Client) (*Client, error) {
	query := `
		INSERT INTO clients (
			id, fiscal_name, commercial_name, vat_number, address_line, postal_code,
			city, province, country, phone, email, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID, c.FiscalName, c.CommercialName, c.VATNumber, c.AddressLine, c.PostalCode,
		c.City, c.Province, c.Country, c.Phone, c.Email, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &c, nil
}

func (r *pgRepository) Update(ctx context.Context, c Client) (*Client, error) {
	query := `
		UPDATE clients
		SET fiscal_name = $2, commercial_name = $3, vat_number = $4, address_line = $5,
		    postal_code = $6, city = $7, province = $8, country = $9, phone = $10,
		    email = $11, updated_at = $12
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.FiscalName, c.CommercialName, c.VATNumber, c.AddressLine, c.PostalCode,
		c.City, c.Province, c.Country, c.Phone, c.Email, c.UpdatedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return &c, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateVAT, pgErr.ConstraintName)
	}
	return err
}

// ============================================================================
// MEMORY
// ============================================================================

// MemoryRepository keeps clients in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]Client
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{clients: make(map[uuid.UUID]Client)}
}

func (m *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryRepository) Create(_ context.Context, c Client) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vatTaken(c.VATNumber, c.ID) {
		return nil, ErrDuplicateVAT
	}
	m.clients[c.ID] = c
	return &c, nil
}

func (m *MemoryRepository) Update(_ context.Context, c Client) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ID]; !ok {
		return nil, ErrNotFound
	}
	if m.vatTaken(c.VATNumber, c.ID) {
		return nil, ErrDuplicateVAT
	}
	c.UpdatedAt = time.Now()
	m.clients[c.ID] = c
	return &c, nil
}

func (m *MemoryRepository) vatTaken(vat string, except uuid.UUID) bool {
	for id, existing := range m.clients {
		if id != except && existing.VATNumber == vat {
			return true
		}
	}
	return false
}
