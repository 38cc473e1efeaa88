package documents

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the read side of document persistence plus the
// transactional entry point for writes.
type Repository interface {
	FindByType(ctx context.Context, t DocumentType) ([]Document, error)
	// FindByID returns ErrDocumentNotFound when the id is unknown.
	FindByID(ctx context.Context, id uuid.UUID) (*Document, error)
	FindByNumber(ctx context.Context, t DocumentType, number string) (*Document, error)
	FindLines(ctx context.Context, documentID uuid.UUID) ([]Line, error)
	List(ctx context.Context, req ListRequest) ([]Document, int, error)

	// WithTx runs fn in a single unit of work. Nothing fn wrote is visible if
	// it returns an error.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	Sequencer

	FindByType(ctx context.Context, t DocumentType) ([]Document, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Document, error)
	FindByNumber(ctx context.Context, t DocumentType, number string) (*Document, error)
	// FindBySource returns the first document of type t that links to
	// sourceID as related or rectified document.
	FindBySource(ctx context.Context, t DocumentType, sourceID uuid.UUID) (*Document, error)
	FindLines(ctx context.Context, documentID uuid.UUID) ([]Line, error)

	InsertDocument(ctx context.Context, doc Document) (*Document, error)
	UpdateDocument(ctx context.Context, id uuid.UUID, patch DocumentPatch) (*Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error)
	InsertLine(ctx context.Context, line Line) (*Line, error)
	DeleteAllLines(ctx context.Context, documentID uuid.UUID) (bool, error)
}
